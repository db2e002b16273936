package event

import (
	"reflect"
	"sync"

	"github.com/flowwatch/flowwatch/service/messaging"
	"github.com/flowwatch/flowwatch/service/messaging/memory"
)

// Service maintains one publisher/listener pair per payload type, all backed
// by in-memory queues, plus an untyped catch-all stream.
type Service struct {
	publisher       *Publisher[any]
	listener        *Listener[any]
	typedPublishers map[reflect.Type]any
	typedListeners  map[reflect.Type]any
	mux             *sync.RWMutex
	newQueueConfig  func(name string) memory.Config
}

// SetListener registers the catch-all handler, replacing any previous one.
func (s *Service) SetListener(handler func(*Event[any])) {
	if s.listener != nil {
		s.listener.Stop()
	}
	s.listener = NewListener[any](s.publisher, handler)
	s.listener.Start()
}

func New(opts ...Option) *Service {
	ret := &Service{
		typedPublishers: make(map[reflect.Type]any),
		typedListeners:  make(map[reflect.Type]any),
		mux:             &sync.RWMutex{},
	}
	for _, opt := range opts {
		opt(ret)
	}
	if ret.newQueueConfig == nil {
		ret.newQueueConfig = func(string) memory.Config { return memory.DefaultConfig() }
	}
	queue := QueueOf[Event[any]](ret, "any")
	ret.publisher = NewPublisher[any](queue)
	return ret
}

// QueueOf builds a queue for the provided payload type.
func QueueOf[T any](s *Service, name string) messaging.Queue[T] {
	return memory.NewQueue[T](s.newQueueConfig(name))
}

func keyOf[T any]() reflect.Type {
	var t T
	rType := reflect.TypeOf(t)
	if rType != nil && rType.Kind() == reflect.Ptr {
		rType = rType.Elem()
	}
	return rType
}

// SetListenerOf registers a handler for the typed event stream, replacing any
// previous listener of the same type.
func SetListenerOf[T any](s *Service, handler func(*Event[T])) {
	key := keyOf[T]()
	s.mux.RLock()
	previous, ok := s.typedListeners[key]
	s.mux.RUnlock()
	if ok {
		previous.(*Listener[T]).Stop()
	}
	publisher := PublisherOf[T](s)
	listener := NewListener[T](publisher, handler)
	s.mux.Lock()
	s.typedListeners[key] = listener
	listener.Start()
	s.mux.Unlock()
}

// PublisherOf returns (creating on first use) the publisher for the provided
// payload type.
func PublisherOf[T any](s *Service) *Publisher[T] {
	key := keyOf[T]()
	s.mux.RLock()
	ret, ok := s.typedPublishers[key]
	s.mux.RUnlock()
	if !ok {
		queue := QueueOf[Event[T]](s, key.String())
		publisher := NewPublisher[T](queue)
		publisher.anyQueue = s.publisher.queue
		s.mux.Lock()
		s.typedPublishers[key] = publisher
		s.mux.Unlock()
		return publisher
	}
	return ret.(*Publisher[T])
}
