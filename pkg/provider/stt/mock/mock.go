// Package mock provides test doubles for the stt package interfaces.
//
// Use Engine to verify that streams are opened for the expected session ids
// and Stream.Emit to push scripted fragments into code under test.
package mock

import (
	"context"
	"sync"

	"github.com/sotto-app/sotto/pkg/audio"
	"github.com/sotto-app/sotto/pkg/provider/stt"
)

// BeginCall records a single invocation of Engine.Begin.
type BeginCall struct {
	// SessionID is the id passed to Begin.
	SessionID uint64
}

// Engine is a mock implementation of stt.Engine.
type Engine struct {
	mu sync.Mutex

	// Stream is returned by Begin. If nil, Begin returns a new Stream.
	Stream *Stream

	// BeginErr, if non-nil, is returned as the error from Begin.
	BeginErr error

	// BeginCalls records every call to Begin in order.
	BeginCalls []BeginCall
}

// Begin records the call and returns Stream, BeginErr.
func (e *Engine) Begin(_ context.Context, sessionID uint64) (stt.Stream, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.BeginCalls = append(e.BeginCalls, BeginCall{SessionID: sessionID})
	if e.BeginErr != nil {
		return nil, e.BeginErr
	}
	if e.Stream == nil {
		e.Stream = NewStream()
	}
	return e.Stream, nil
}

var _ stt.Engine = (*Engine)(nil)

// Stream is a scripted stt.Stream. Tests push fragments with Emit and close
// the stream with EndFragments (or rely on Finalize auto-closing when
// FinalizeEmits is set).
type Stream struct {
	mu sync.Mutex

	fragments chan stt.Fragment
	closed    bool

	// FeedErr, if non-nil, is returned by every Feed call.
	FeedErr error

	// FinalizeEmits, if non-nil, is emitted (followed by channel close) when
	// Finalize is called.
	FinalizeEmits *stt.Fragment

	// FedFrames records every frame passed to Feed.
	FedFrames []audio.Frame

	// FinalizeCallCount is the number of times Finalize was called.
	FinalizeCallCount int

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int
}

// NewStream creates a Stream with a buffered fragment channel.
func NewStream() *Stream {
	return &Stream{fragments: make(chan stt.Fragment, 64)}
}

// Emit pushes a fragment to the consumer. No-op after the channel closed.
func (s *Stream) Emit(f stt.Fragment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.fragments <- f
}

// EndFragments closes the fragment channel.
func (s *Stream) EndFragments() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.fragments)
	}
}

// Feed records the frame and returns FeedErr.
func (s *Stream) Feed(frame audio.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.FedFrames = append(s.FedFrames, frame)
	return s.FeedErr
}

func (s *Stream) Fragments() <-chan stt.Fragment { return s.fragments }

// Finalize records the call. When FinalizeEmits is set, it emits the trailing
// fragment and closes the channel like a real stream would; otherwise the
// stream stays open so tests can simulate a decoder that never flushes.
func (s *Stream) Finalize() {
	s.mu.Lock()
	s.FinalizeCallCount++
	final := s.FinalizeEmits
	s.mu.Unlock()
	if final != nil {
		s.Emit(*final)
		s.EndFragments()
	}
}

// Close records the call and closes the fragment channel.
func (s *Stream) Close() error {
	s.mu.Lock()
	s.CloseCallCount++
	s.mu.Unlock()
	s.EndFragments()
	return nil
}

var _ stt.Stream = (*Stream)(nil)
