package flowwatch

import (
	"github.com/viant/afs/storage"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/flowwatch/flowwatch/client"
	"github.com/flowwatch/flowwatch/poller"
	"github.com/flowwatch/flowwatch/runner"
	"github.com/flowwatch/flowwatch/service/event"
	"github.com/flowwatch/flowwatch/service/meta"
	"github.com/flowwatch/flowwatch/tracing"
)

// Option configures the Service.
type Option func(s *Service)

// WithBackend sets the workflow backend explicitly.
func WithBackend(backend Backend) Option {
	return func(s *Service) {
		s.backend = backend
	}
}

// WithClient backs the service with an HTTP client.
func WithClient(c *client.Client) Option {
	return func(s *Service) {
		s.backend = c
	}
}

// WithRunner backs the service with an in-process runner. The runner's
// lifecycle is owned by the service (see Start/Shutdown).
func WithRunner(r *runner.Service) Option {
	return func(s *Service) {
		s.backend = r
		s.runner = r
	}
}

// WithEventService sets the event service
func WithEventService(service *event.Service) Option {
	return func(s *Service) {
		s.eventService = service
	}
}

// WithMetaService sets the meta service
func WithMetaService(service *meta.Service) Option {
	return func(s *Service) {
		s.metaService = service
	}
}

// WithMetaBaseURL sets the meta base URL
func WithMetaBaseURL(url string) Option {
	return func(s *Service) {
		s.metaBaseURL = url
	}
}

// WithMetaFsOptions with meta file system options
func WithMetaFsOptions(options ...storage.Option) Option {
	return func(s *Service) {
		s.metaFsOptions = options
	}
}

// WithConfig applies a serialised configuration.
func WithConfig(config *Config) Option {
	return func(s *Service) {
		if config != nil {
			s.config = config
		}
	}
}

// WithPollOptions sets session defaults applied to every poll started
// through the service, before per-call options.
func WithPollOptions(options ...poller.Option) Option {
	return func(s *Service) {
		s.pollDefaults = append(s.pollDefaults, options...)
	}
}

// WithTracing configures OpenTelemetry tracing for the service. If
// outputFile is empty the stdout exporter is used; otherwise traces are
// written to the supplied file path. Safe to call multiple times – the first
// successful initialisation wins.
func WithTracing(serviceName, serviceVersion, outputFile string) Option {
	return func(s *Service) {
		_ = tracing.Init(serviceName, serviceVersion, outputFile)
	}
}

// WithTracingExporter configures OpenTelemetry tracing using a custom
// SpanExporter, enabling OTLP, Jaeger, Zipkin and similar integrations. Safe
// to call multiple times – the first successful initialisation wins.
func WithTracingExporter(serviceName, serviceVersion string, exporter sdktrace.SpanExporter) Option {
	return func(s *Service) {
		_ = tracing.InitWithExporter(serviceName, serviceVersion, exporter)
	}
}
