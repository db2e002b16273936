package flowwatch

import "time"

// Config is a serialisable representation of the client configuration. It
// can be populated from JSON, YAML, environment variables, etc. The
// zero-value is useful – all nested fields inherit their package defaults.

type Config struct {
	Poller PollerConfig `json:"poller" yaml:"poller"`
	Client ClientConfig `json:"client" yaml:"client"`
	Runner RunnerConfig `json:"runner" yaml:"runner"`
}

type PollerConfig struct {
	IntervalMs int `json:"intervalMs" yaml:"intervalMs"`
	TimeoutMs  int `json:"timeoutMs" yaml:"timeoutMs"`
}

// Interval returns the tick interval as a duration.
func (c PollerConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMs) * time.Millisecond
}

// Timeout returns the absolute poll bound as a duration.
func (c PollerConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

type ClientConfig struct {
	BaseURL          string `json:"baseURL" yaml:"baseURL"`
	SecretURL        string `json:"secretURL" yaml:"secretURL"`
	SecretKey        string `json:"secretKey" yaml:"secretKey"`
	RequestTimeoutMs int    `json:"requestTimeoutMs" yaml:"requestTimeoutMs"`
}

type RunnerConfig struct {
	Workers int `json:"workers" yaml:"workers"`
}

// DefaultConfig returns a Config populated with the same default values the
// constructors use. Callers may modify the returned struct before passing it
// to NewFromConfig.
func DefaultConfig() *Config {
	return &Config{
		Poller: PollerConfig{
			IntervalMs: 2000,
			TimeoutMs:  300000,
		},
		Runner: RunnerConfig{
			Workers: 5,
		},
	}
}
