package flowwatch

import (
	"context"
	"fmt"
	"time"

	"github.com/viant/afs"
	"github.com/viant/afs/storage"

	"github.com/flowwatch/flowwatch/client"
	"github.com/flowwatch/flowwatch/model/job"
	"github.com/flowwatch/flowwatch/model/status"
	"github.com/flowwatch/flowwatch/poller"
	"github.com/flowwatch/flowwatch/runner"
	"github.com/flowwatch/flowwatch/service/event"
	"github.com/flowwatch/flowwatch/service/meta"
)

// Backend abstracts the workflow API shared by the HTTP client and the
// in-process runner.
type Backend interface {
	Start(ctx context.Context, aJob *job.Job) (string, error)
	Status(ctx context.Context, workflowID string) (*status.Status, error)
	Cancel(ctx context.Context, workflowID string) error
}

// Service is the façade tying a backend, the poller and the supporting
// services together.
type Service struct {
	backend       Backend
	runner        *runner.Service
	poller        *poller.Poller
	eventService  *event.Service
	metaService   *meta.Service
	metaBaseURL   string
	metaFsOptions []storage.Option
	pollDefaults  []poller.Option
	config        *Config
}

func (s *Service) init(options []Option) error {
	for _, option := range options {
		option(s)
	}
	s.ensureBaseSetup()

	var pollerOptions []poller.PollerOption
	if len(s.pollDefaults) > 0 {
		pollerOptions = append(pollerOptions, poller.WithDefaults(s.pollDefaults...))
	}
	if s.eventService != nil {
		pollerOptions = append(pollerOptions,
			poller.WithTransitionPublisher(event.PublisherOf[poller.Transition](s.eventService)))
	}
	p, err := poller.New(s.backend, pollerOptions...)
	if err != nil {
		return err
	}
	s.poller = p
	return nil
}

func (s *Service) ensureBaseSetup() {
	if s.config == nil {
		s.config = DefaultConfig()
	}
	if s.metaService == nil {
		s.metaService = meta.New(afs.New(), s.metaBaseURL, s.metaFsOptions...)
	}
	if s.eventService == nil {
		s.eventService = event.New()
	}
	if s.backend == nil {
		r, _ := runner.New(runner.WithWorkers(s.config.Runner.Workers))
		s.backend = r
		s.runner = r
	}
	if interval := s.config.Poller.Interval(); interval > 0 {
		s.pollDefaults = append([]poller.Option{poller.WithInterval(interval)}, s.pollDefaults...)
	}
	if timeout := s.config.Poller.Timeout(); timeout > 0 {
		s.pollDefaults = append([]poller.Option{poller.WithTimeout(timeout)}, s.pollDefaults...)
	}
}

// New creates a service. Without an explicit backend it embeds an in-process
// runner, which suits tests and single-binary deployments.
func New(options ...Option) (*Service, error) {
	ret := &Service{}
	if err := ret.init(options); err != nil {
		return nil, err
	}
	return ret, nil
}

// NewFromConfig builds the backend from a serialised configuration: an HTTP
// client when Client.BaseURL is set, an embedded runner otherwise.
func NewFromConfig(config *Config, options ...Option) (*Service, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Client.BaseURL != "" {
		var clientOptions []client.Option
		if config.Client.RequestTimeoutMs > 0 {
			clientOptions = append(clientOptions,
				client.WithRequestTimeout(time.Duration(config.Client.RequestTimeoutMs)*time.Millisecond))
		}
		if config.Client.SecretURL != "" {
			clientOptions = append(clientOptions,
				client.WithSecretURL(config.Client.SecretURL, config.Client.SecretKey))
		}
		c, err := client.New(config.Client.BaseURL, clientOptions...)
		if err != nil {
			return nil, err
		}
		options = append([]Option{WithConfig(config), WithClient(c)}, options...)
	} else {
		options = append([]Option{WithConfig(config)}, options...)
	}
	return New(options...)
}

// Start starts the embedded runner's worker pool when one backs the service.
// Services backed by an HTTP client have nothing to start.
func (s *Service) Start(ctx context.Context) error {
	if s.runner == nil {
		return nil
	}
	return s.runner.Run(ctx)
}

// Shutdown stops the embedded runner when one backs the service.
func (s *Service) Shutdown(ctx context.Context) error {
	if s.runner != nil {
		s.runner.Shutdown()
	}
	return nil
}

// StartWorkflow submits the job to the backend and begins polling its
// status. The returned handle reports the outcome through the configured
// callbacks, Wait, or both.
func (s *Service) StartWorkflow(ctx context.Context, aJob *job.Job, options ...poller.Option) (string, *poller.Handle, error) {
	workflowID, err := s.backend.Start(ctx, aJob)
	if err != nil {
		return "", nil, err
	}
	handle, err := s.poller.Start(ctx, workflowID, options...)
	if err != nil {
		return workflowID, nil, err
	}
	return workflowID, handle, nil
}

// Watch begins polling a workflow that was started elsewhere.
func (s *Service) Watch(ctx context.Context, workflowID string, options ...poller.Option) (*poller.Handle, error) {
	return s.poller.Start(ctx, workflowID, options...)
}

// CancelWorkflow stops the local poll session immediately, then signals
// server-side cancellation best-effort. The local stop never depends on the
// backend call succeeding.
func (s *Service) CancelWorkflow(ctx context.Context, handle *poller.Handle) error {
	if handle == nil {
		return fmt.Errorf("handle is nil")
	}
	handle.Cancel()
	if err := s.backend.Cancel(ctx, handle.WorkflowID()); err != nil {
		return fmt.Errorf("backend cancellation of %q failed: %w", handle.WorkflowID(), err)
	}
	return nil
}

// LoadJob loads a job definition from the meta service.
func (s *Service) LoadJob(ctx context.Context, location string) (*job.Job, error) {
	aJob := &job.Job{}
	if err := s.metaService.Load(ctx, location, aJob); err != nil {
		return nil, err
	}
	if err := aJob.Validate(); err != nil {
		return nil, fmt.Errorf("invalid job definition at %s: %w", location, err)
	}
	return aJob, nil
}

// RefreshJob discards any cached copy of the job definition located at the
// given location. The next LoadJob call will reload it via the meta service.
func (s *Service) RefreshJob(location string) {
	s.metaService.Refresh(location)
}

// Poller returns the underlying poller.
func (s *Service) Poller() *poller.Poller {
	return s.poller
}

// Runner returns the embedded runner, nil when the service is backed by an
// HTTP client.
func (s *Service) Runner() *runner.Service {
	return s.runner
}

// Events returns the event service.
func (s *Service) Events() *event.Service {
	return s.eventService
}
