package leadgen

import "sync"

// streamBuffer lets the producer run a few events ahead of a slow reader.
const streamBuffer = 16

// Stream is the consumer side of a running generation. The producer owns
// the run; a consumer that goes away calls Detach and the run still
// finishes and persists.
type Stream struct {
	events   chan Event
	detached chan struct{}
	done     chan struct{}
	once     sync.Once

	summary Summary
	err     error
}

func newStream() *Stream {
	return &Stream{
		events:   make(chan Event, streamBuffer),
		detached: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Events yields run events in order. The channel is closed after done or
// error.
func (s *Stream) Events() <-chan Event { return s.events }

// Detach stops delivery. Events produced afterwards are dropped.
func (s *Stream) Detach() {
	s.once.Do(func() { close(s.detached) })
}

// Wait blocks until the run has finished and returns its summary. The error
// is non-nil when the run ended with an error event.
func (s *Stream) Wait() (Summary, error) {
	<-s.done
	return s.summary, s.err
}

func (s *Stream) emit(ev Event) {
	select {
	case <-s.detached:
		return
	default:
	}
	select {
	case s.events <- ev:
	case <-s.detached:
	}
}

func (s *Stream) finish(sum Summary, err error) {
	s.summary = sum
	s.err = err
	close(s.events)
	close(s.done)
}
