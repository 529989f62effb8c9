// Package mock provides test doubles for the vad package interfaces.
//
// Use Session.Script to enqueue classifications; once the script is
// exhausted, Default is returned for every further frame.
package mock

import (
	"sync"

	"github.com/sotto-app/sotto/pkg/audio"
	"github.com/sotto-app/sotto/pkg/provider/vad"
)

// NewSessionCall records a single invocation of Classifier.NewSession.
type NewSessionCall struct {
	// Cfg is the Config passed to NewSession.
	Cfg vad.Config
}

// Classifier is a mock implementation of vad.Classifier.
type Classifier struct {
	mu sync.Mutex

	// Session is returned by NewSession. If nil, a new default Session is
	// returned.
	Session *Session

	// NewSessionErr, if non-nil, is returned as the error from NewSession.
	NewSessionErr error

	// NewSessionCalls records every call to NewSession in order.
	NewSessionCalls []NewSessionCall
}

// NewSession records the call and returns Session, NewSessionErr.
func (c *Classifier) NewSession(cfg vad.Config) (vad.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.NewSessionCalls = append(c.NewSessionCalls, NewSessionCall{Cfg: cfg})
	if c.NewSessionErr != nil {
		return nil, c.NewSessionErr
	}
	if c.Session == nil {
		c.Session = &Session{}
	}
	return c.Session, nil
}

var _ vad.Classifier = (*Classifier)(nil)

// Session is a mock implementation of vad.Session.
type Session struct {
	mu sync.Mutex

	// Script holds classifications returned in order by Classify.
	Script []vad.Class

	// Default is returned once Script is exhausted.
	Default vad.Class

	// ClassifyCount is the number of times Classify was called.
	ClassifyCount int

	// ResetCallCount is the number of times Reset was called.
	ResetCallCount int

	// Sensitivities records every SetSensitivity value in order.
	Sensitivities []float64
}

// Classify pops the next scripted class, or Default when the script is empty.
func (s *Session) Classify(audio.Frame) vad.Class {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ClassifyCount++
	if len(s.Script) > 0 {
		next := s.Script[0]
		s.Script = s.Script[1:]
		return next
	}
	return s.Default
}

// SetSensitivity records the value.
func (s *Session) SetSensitivity(sensitivity float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Sensitivities = append(s.Sensitivities, sensitivity)
}

// Reset records the call.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ResetCallCount++
}

var _ vad.Session = (*Session)(nil)
