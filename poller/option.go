package poller

import (
	"time"

	"github.com/flowwatch/flowwatch/model/status"
	"github.com/flowwatch/flowwatch/service/event"
)

// Options controls a single poll session. The zero value inherits the
// package defaults (2s interval, 5m timeout).
type Options struct {
	// Interval is the delay between consecutive status fetches.
	Interval time.Duration

	// Timeout bounds the total wait for a terminal status.
	Timeout time.Duration

	// OnUpdate is invoked after every successful status fetch, terminal or
	// not. Optional.
	OnUpdate func(*status.Status)

	// OnComplete is invoked exactly once with the results payload when the
	// workflow reaches the completed state.
	OnComplete func(results map[string]interface{})

	// OnFailed is invoked exactly once when the workflow reaches the failed
	// state, the timeout elapses, or the backend reports cancellation. The
	// error is distinguishable via errors.Is against the package sentinels.
	OnFailed func(err error)
}

const (
	// DefaultInterval mirrors the 2-second cadence of the product's status
	// polling screens.
	DefaultInterval = 2 * time.Second

	// DefaultTimeout mirrors the 5-minute ceiling after which a poll session
	// gives up.
	DefaultTimeout = 5 * time.Minute
)

// Option mutates the Options of a poll session.
type Option func(*Options)

// WithInterval sets the tick interval.
func WithInterval(interval time.Duration) Option {
	return func(o *Options) {
		o.Interval = interval
	}
}

// WithTimeout sets the absolute poll timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(o *Options) {
		o.Timeout = timeout
	}
}

// WithOnUpdate registers the per-tick observer callback.
func WithOnUpdate(fn func(*status.Status)) Option {
	return func(o *Options) {
		o.OnUpdate = fn
	}
}

// WithOnComplete registers the completion callback.
func WithOnComplete(fn func(results map[string]interface{})) Option {
	return func(o *Options) {
		o.OnComplete = fn
	}
}

// WithOnFailed registers the failure callback.
func WithOnFailed(fn func(err error)) Option {
	return func(o *Options) {
		o.OnFailed = fn
	}
}

func (o *Options) apply(options []Option) {
	for _, opt := range options {
		opt(o)
	}
	if o.Interval <= 0 {
		o.Interval = DefaultInterval
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
}

// PollerOption configures the Poller itself rather than a single session.
type PollerOption func(*Poller)

// WithDefaults sets session defaults applied before per-call options.
func WithDefaults(options ...Option) PollerOption {
	return func(p *Poller) {
		p.defaults = append(p.defaults, options...)
	}
}

// WithTransitionPublisher wires a publisher receiving a Transition event for
// every observed state change.
func WithTransitionPublisher(publisher *event.Publisher[Transition]) PollerOption {
	return func(p *Poller) {
		p.transitions = publisher
	}
}
