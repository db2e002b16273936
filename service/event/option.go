package event

import "github.com/flowwatch/flowwatch/service/messaging/memory"

type Option func(*Service)

// WithQueueConfig customises the per-stream memory queue configuration.
func WithQueueConfig(fn func(name string) memory.Config) Option {
	return func(s *Service) {
		s.newQueueConfig = fn
	}
}
