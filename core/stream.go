package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// YieldFunc hands one event to the consumer. It blocks until the consumer
// asks for the next event and returns ErrStreamClosed (or the context error)
// once the consumer is gone; producers must return promptly when it fails.
type YieldFunc func(ev *Event) error

// EventStream is a lazily produced, finite, non-restartable sequence of
// events backed by a worker goroutine.
//
// The worker does not start producing until the first Next call, and after
// each yield it waits for the following Next before resuming: a producer never
// runs ahead of its consumer. Close cancels the worker at its next yield; an
// in-flight tool or model call is not interrupted.
type EventStream struct {
	ctx      context.Context
	events   chan *Event
	pull     chan struct{}
	done     chan struct{}
	finished chan struct{}
	once     sync.Once
	err      error
}

// NewEventStream starts a worker running produce. The worker exits when
// produce returns, when Close is called or when ctx is cancelled.
func NewEventStream(ctx context.Context, produce func(yield YieldFunc) error) *EventStream {
	s := &EventStream{
		ctx:      ctx,
		events:   make(chan *Event, 1),
		pull:     make(chan struct{}),
		done:     make(chan struct{}),
		finished: make(chan struct{}),
	}
	go s.work(produce)
	return s
}

// EmptyStream returns a stream that yields nothing.
func EmptyStream(ctx context.Context) *EventStream {
	return NewEventStream(ctx, func(YieldFunc) error { return nil })
}

// ErrorStream returns a stream that yields nothing and reports err.
func ErrorStream(ctx context.Context, err error) *EventStream {
	return NewEventStream(ctx, func(YieldFunc) error { return err })
}

func (s *EventStream) work(produce func(yield YieldFunc) error) {
	defer close(s.finished)
	defer func() {
		if r := recover(); r != nil {
			s.err = fmt.Errorf("agent panic: %v", r)
		}
	}()

	if err := s.ctx.Err(); err != nil {
		s.err = err
		return
	}
	if err := s.awaitPull(); err != nil {
		s.err = err
		return
	}
	s.err = produce(s.yield)
}

func (s *EventStream) awaitPull() error {
	select {
	case <-s.pull:
		return nil
	case <-s.done:
		return ErrStreamClosed
	case <-s.ctx.Done():
		return s.ctx.Err()
	}
}

func (s *EventStream) yield(ev *Event) error {
	select {
	case <-s.done:
		return ErrStreamClosed
	default:
	}
	select {
	case s.events <- ev:
	case <-s.done:
		return ErrStreamClosed
	case <-s.ctx.Done():
		return s.ctx.Err()
	}
	return s.awaitPull()
}

// Next blocks until the producer yields the next event. It returns false when
// the stream is exhausted or closed; Err then reports why.
func (s *EventStream) Next() (*Event, bool) {
	select {
	case <-s.done:
		return nil, false
	default:
	}
	select {
	case s.pull <- struct{}{}:
	case <-s.finished:
		return nil, false
	case <-s.done:
		return nil, false
	}
	select {
	case ev := <-s.events:
		return ev, true
	case <-s.finished:
		// The producer may have yielded right before returning.
		select {
		case ev := <-s.events:
			return ev, true
		default:
			return nil, false
		}
	case <-s.done:
		return nil, false
	}
}

// Err returns the producer's error once the stream is finished. A stream that
// ended because the consumer closed it reports nil.
func (s *EventStream) Err() error {
	select {
	case <-s.finished:
	default:
		return nil
	}
	if errors.Is(s.err, ErrStreamClosed) {
		return nil
	}
	return s.err
}

// Wait blocks until the producer returned and reports its error.
func (s *EventStream) Wait() error {
	<-s.finished
	return s.Err()
}

// Finished is closed once the worker exited, whether or not produce ran.
func (s *EventStream) Finished() <-chan struct{} { return s.finished }

// Close stops the stream. It is safe to call more than once.
func (s *EventStream) Close() {
	s.once.Do(func() { close(s.done) })
}

// Forward drains src into yield, closing src when yield fails. It returns the
// source's error once exhausted.
func Forward(src *EventStream, yield YieldFunc) error {
	for {
		ev, ok := src.Next()
		if !ok {
			return src.Wait()
		}
		if err := yield(ev); err != nil {
			src.Close()
			return err
		}
	}
}

// Collect drains the stream into a slice.
func (s *EventStream) Collect() ([]*Event, error) {
	var out []*Event
	for {
		ev, ok := s.Next()
		if !ok {
			return out, s.Wait()
		}
		out = append(out, ev)
	}
}
