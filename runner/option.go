package runner

import (
	"github.com/flowwatch/flowwatch/model/status"
	"github.com/flowwatch/flowwatch/service/dao"
	"github.com/flowwatch/flowwatch/service/messaging"
)

type Option func(*Service)

// WithStatusDAO sets the status store implementation
func WithStatusDAO(statusDAO dao.Service[string, status.Status]) Option {
	return func(s *Service) {
		s.statusDAO = statusDAO
	}
}

// WithQueue sets the Submission queue implementation
func WithQueue(queue messaging.Queue[Submission]) Option {
	return func(s *Service) {
		s.queue = queue
	}
}

// WithWorkers sets the number of worker goroutines
func WithWorkers(count int) Option {
	return func(s *Service) {
		s.config.WorkerCount = count
	}
}

// WithHandler registers a handler for a job kind at construction time
func WithHandler(kind string, handler HandlerFunc) Option {
	return func(s *Service) {
		s.handlers[kind] = handler
	}
}

// WithConfig sets the configuration for the service
func WithConfig(config Config) Option {
	return func(s *Service) {
		s.config = config
	}
}
