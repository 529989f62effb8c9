// Package mock provides test doubles for the audio package interfaces.
//
// Use Source to verify capture configuration and to hand out a scripted
// Session; use Session.Push to feed frames into code under test.
package mock

import (
	"context"
	"sync"

	"github.com/sotto-app/sotto/pkg/audio"
)

// StartCall records a single invocation of Source.Start.
type StartCall struct {
	// Cfg is the Config passed to Start.
	Cfg audio.Config
}

// Source is a mock implementation of audio.Source.
type Source struct {
	mu sync.Mutex

	// Session is returned by Start. If nil, Start returns a new Session.
	Session *Session

	// StartErr, if non-nil, is returned as the error from Start.
	StartErr error

	// Devices is returned by ListDevices.
	Devices []string

	// ListDevicesErr, if non-nil, is returned by ListDevices.
	ListDevicesErr error

	// StartCalls records every call to Start in order.
	StartCalls []StartCall
}

// Start records the call and returns Session, StartErr.
func (s *Source) Start(_ context.Context, cfg audio.Config) (audio.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.StartCalls = append(s.StartCalls, StartCall{Cfg: cfg})
	if s.StartErr != nil {
		return nil, s.StartErr
	}
	if s.Session == nil {
		s.Session = NewSession()
	}
	return s.Session, nil
}

// ListDevices returns Devices, ListDevicesErr.
func (s *Source) ListDevices(context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Devices, s.ListDevicesErr
}

var _ audio.Source = (*Source)(nil)

// Session is a scripted audio.Session fed by the test via Push.
type Session struct {
	mu sync.Mutex

	frames chan audio.Frame
	closed bool

	// TerminalErr is returned by Err after the frame channel closes.
	TerminalErr error

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int
}

// NewSession creates a Session with a buffered frame channel.
func NewSession() *Session {
	return &Session{frames: make(chan audio.Frame, 64)}
}

// Push feeds a frame to the consumer. No-op after End or Close.
func (s *Session) Push(frame audio.Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.frames <- frame
}

// End closes the frame channel, simulating device loss when TerminalErr is
// set beforehand.
func (s *Session) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.frames)
	}
}

func (s *Session) Frames() <-chan audio.Frame { return s.frames }

func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.TerminalErr
}

// Close records the call and closes the frame channel.
func (s *Session) Close() error {
	s.mu.Lock()
	s.CloseCallCount++
	s.mu.Unlock()
	s.End()
	return nil
}

var _ audio.Session = (*Session)(nil)
