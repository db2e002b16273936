package client

import (
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-resty/resty/v2"
)

const defaultRequestTimeout = 30 * time.Second

// Option mutates the Client during construction.
type Option func(*Client)

// WithRestClient substitutes the underlying resty client, e.g. to install
// custom transports or retry conditions in tests.
func WithRestClient(rest *resty.Client) Option {
	return func(c *Client) {
		c.rest = rest
	}
}

// WithRequestTimeout bounds each individual HTTP request.
func WithRequestTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if c.rest == nil {
			c.rest = resty.New()
		}
		c.rest.SetTimeout(timeout)
	}
}

// WithToken sets a static bearer token.
func WithToken(token string) Option {
	return func(c *Client) {
		c.auth.staticToken = token
	}
}

// WithSecretURL configures the scy resource the bearer token is revealed
// from on first use, e.g. "file:///opt/secrets/api.key" with key
// "blowfish://default".
func WithSecretURL(url, key string) Option {
	return func(c *Client) {
		c.auth.secretURL = url
		c.auth.secretKey = key
	}
}

// WithBackoff replaces the retry policy applied to Start requests.
func WithBackoff(newBackoff func() backoff.BackOff) Option {
	return func(c *Client) {
		c.newBackoff = newBackoff
	}
}

func defaultBackoff() backoff.BackOff {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 200 * time.Millisecond
	policy.MaxInterval = 5 * time.Second
	return backoff.WithMaxRetries(policy, 3)
}
