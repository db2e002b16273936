// Package runner is an embeddable workflow backend: jobs are queued,
// executed by registered handlers on a worker pool, and their status
// transitions are persisted so that poll sessions can observe them without
// any HTTP round-trip. It implements the same start/status/cancel contract
// as the HTTP client.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/flowwatch/flowwatch/internal/clock"
	"github.com/flowwatch/flowwatch/model/job"
	"github.com/flowwatch/flowwatch/model/status"
	"github.com/flowwatch/flowwatch/service/dao"
	daomemory "github.com/flowwatch/flowwatch/service/dao/status/memory"
	"github.com/flowwatch/flowwatch/service/messaging"
	"github.com/flowwatch/flowwatch/service/messaging/memory"
	"github.com/flowwatch/flowwatch/tracing"
)

// HandlerFunc executes one job kind and returns its results payload.
type HandlerFunc func(ctx context.Context, aJob *job.Job) (map[string]interface{}, error)

// Config represents runner configuration
type Config struct {
	// WorkerCount is the number of workers executing jobs
	WorkerCount int
}

// DefaultConfig returns the default runner configuration
func DefaultConfig() Config {
	return Config{
		WorkerCount: 5,
	}
}

// Submission is the queued unit of work.
type Submission struct {
	WorkflowID string
	Job        job.Job
}

// Service executes submitted jobs and tracks their status.
type Service struct {
	config    Config
	statusDAO dao.Service[string, status.Status]
	queue     messaging.Queue[Submission]

	handlersMu sync.RWMutex
	handlers   map[string]HandlerFunc

	cancelMu sync.Mutex
	cancels  map[string]context.CancelFunc

	workers  []*worker
	workerWg sync.WaitGroup
}

type worker struct {
	id       int
	service  *Service
	ctx      context.Context
	cancelFn context.CancelFunc
}

// New creates a runner service. Storage and queue default to in-memory
// implementations.
func New(options ...Option) (*Service, error) {
	s := &Service{
		config:   DefaultConfig(),
		handlers: map[string]HandlerFunc{},
		cancels:  map[string]context.CancelFunc{},
	}
	for _, opt := range options {
		opt(s)
	}
	if s.config.WorkerCount <= 0 {
		s.config.WorkerCount = DefaultConfig().WorkerCount
	}
	if s.statusDAO == nil {
		s.statusDAO = daomemory.New()
	}
	if s.queue == nil {
		s.queue = memory.NewQueue[Submission](memory.DefaultConfig())
	}
	return s, nil
}

// Register binds a handler to a job kind, replacing any previous binding.
func (s *Service) Register(kind string, handler HandlerFunc) {
	s.handlersMu.Lock()
	defer s.handlersMu.Unlock()
	s.handlers[kind] = handler
}

func (s *Service) handler(kind string) HandlerFunc {
	s.handlersMu.RLock()
	defer s.handlersMu.RUnlock()
	return s.handlers[kind]
}

// Run starts the worker pool. Workers stop when ctx is cancelled or
// Shutdown is called.
func (s *Service) Run(ctx context.Context) error {
	for i := 0; i < s.config.WorkerCount; i++ {
		workerCtx, cancel := context.WithCancel(ctx)
		w := &worker{
			id:       i,
			service:  s,
			ctx:      workerCtx,
			cancelFn: cancel,
		}
		s.workers = append(s.workers, w)
		s.workerWg.Add(1)
		go w.run()
	}
	return nil
}

// Shutdown stops all workers and waits for in-flight jobs to finish.
func (s *Service) Shutdown() {
	for _, w := range s.workers {
		w.cancelFn()
	}
	s.workerWg.Wait()
}

// Start accepts a job, records it as pending and queues it for execution.
// It returns the assigned workflow identifier.
func (s *Service) Start(ctx context.Context, aJob *job.Job) (string, error) {
	if err := aJob.Validate(); err != nil {
		return "", err
	}
	workflowID := aJob.Kind + "/" + uuid.New().String()
	if err := s.saveState(ctx, workflowID, status.StatePending, nil, ""); err != nil {
		return "", err
	}
	if err := s.queue.Publish(ctx, &Submission{WorkflowID: workflowID, Job: *aJob}); err != nil {
		return "", fmt.Errorf("failed to queue workflow %q: %w", workflowID, err)
	}
	return workflowID, nil
}

// Status returns the latest observation for the workflow.
func (s *Service) Status(ctx context.Context, workflowID string) (*status.Status, error) {
	return s.statusDAO.Load(ctx, workflowID)
}

// Cancel marks a non-terminal workflow as cancelled and interrupts its
// handler when one is running.
func (s *Service) Cancel(ctx context.Context, workflowID string) error {
	current, err := s.statusDAO.Load(ctx, workflowID)
	if err != nil {
		return err
	}
	if current.State.IsTerminal() {
		return nil
	}
	if err := s.saveState(ctx, workflowID, status.StateCancelled, nil, ""); err != nil {
		return err
	}
	s.cancelMu.Lock()
	cancel := s.cancels[workflowID]
	s.cancelMu.Unlock()
	if cancel != nil {
		cancel()
	}
	return nil
}

// run consumes submissions until the worker context is cancelled.
func (w *worker) run() {
	defer w.service.workerWg.Done()

	for {
		msg, err := w.service.queue.Consume(w.ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			time.Sleep(100 * time.Millisecond)
			continue
		}
		if msg == nil {
			continue
		}
		if pErr := w.service.process(w.ctx, msg); pErr != nil {
			log.Printf("runner worker %d: failed to process submission: %v", w.id, pErr)
		}
	}
}

func (s *Service) process(ctx context.Context, msg messaging.Message[Submission]) (err error) {
	sub := msg.T()
	ctx, span := tracing.StartSpan(ctx, "runner.process "+sub.Job.Kind, "CONSUMER")
	span.WithAttributes(map[string]string{"workflow.id": sub.WorkflowID})
	defer func() { tracing.EndSpan(span, err) }()

	current, loadErr := s.statusDAO.Load(ctx, sub.WorkflowID)
	if loadErr == nil && current.State.IsTerminal() {
		// Cancelled (or already resolved) before a worker picked it up.
		return msg.Ack()
	}

	handler := s.handler(sub.Job.Kind)
	if handler == nil {
		if err = s.saveState(ctx, sub.WorkflowID, status.StateFailed, nil,
			fmt.Sprintf("no handler registered for kind %q", sub.Job.Kind)); err != nil {
			return errors.Join(err, msg.Nack(err))
		}
		return msg.Ack()
	}

	if err = s.saveState(ctx, sub.WorkflowID, status.StateRunning, nil, ""); err != nil {
		return errors.Join(err, msg.Nack(err))
	}

	jobCtx, cancel := context.WithCancel(ctx)
	if sub.Job.TimeoutSec > 0 {
		jobCtx, cancel = context.WithTimeout(ctx, time.Duration(sub.Job.TimeoutSec)*time.Second)
	}
	s.registerCancel(sub.WorkflowID, cancel)
	defer func() {
		s.unregisterCancel(sub.WorkflowID)
		cancel()
	}()

	results, handlerErr := handler(jobCtx, &sub.Job)

	if s.isCancelled(ctx, sub.WorkflowID) {
		// The outcome of a cancelled workflow is never reported.
		return msg.Ack()
	}
	if handlerErr != nil {
		if err = s.saveState(ctx, sub.WorkflowID, status.StateFailed, nil, handlerErr.Error()); err != nil {
			return errors.Join(err, msg.Nack(err))
		}
		return msg.Ack()
	}
	if err = s.saveState(ctx, sub.WorkflowID, status.StateCompleted, results, ""); err != nil {
		return errors.Join(err, msg.Nack(err))
	}
	return msg.Ack()
}

func (s *Service) saveState(ctx context.Context, workflowID string, state status.State, results map[string]interface{}, errMsg string) error {
	return s.statusDAO.Save(ctx, &status.Status{
		WorkflowID: workflowID,
		State:      state,
		Results:    results,
		Error:      errMsg,
		UpdatedAt:  clock.Now(),
	})
}

func (s *Service) isCancelled(ctx context.Context, workflowID string) bool {
	current, err := s.statusDAO.Load(ctx, workflowID)
	return err == nil && current.State == status.StateCancelled
}

func (s *Service) registerCancel(workflowID string, cancel context.CancelFunc) {
	s.cancelMu.Lock()
	defer s.cancelMu.Unlock()
	s.cancels[workflowID] = cancel
}

func (s *Service) unregisterCancel(workflowID string) {
	s.cancelMu.Lock()
	defer s.cancelMu.Unlock()
	delete(s.cancels, workflowID)
}
