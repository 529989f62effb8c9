// Package vad defines the voice-activity-gate capability consumed by the
// session coordinator.
//
// A classifier decides, frame by frame, whether a block of PCM contains
// speech. The coordinator — not the classifier — applies the silence-duration
// threshold that ends a dictation session, so implementations stay stateless
// with respect to session lifecycle and only smooth their own detection
// state.
//
// Classification is synchronous by design: Classify returns immediately so
// it can run inline in the coordinator's frame fan-in without adding latency.
package vad

import "github.com/sotto-app/sotto/pkg/audio"

// Class is the per-frame classification result.
type Class int

const (
	// Silence indicates no speech detected in the frame.
	Silence Class = iota

	// Speech indicates the frame contains voice activity.
	Speech
)

// String returns "speech" or "silence".
func (c Class) String() string {
	if c == Speech {
		return "speech"
	}
	return "silence"
}

// Config holds the parameters for a VAD session.
type Config struct {
	// Sensitivity in (0, 1]. Higher values classify quieter audio as speech.
	// Mapped to the classifier's native threshold scale by the implementation.
	Sensitivity float64
}

// Session is a stateful per-dictation classifier. A Session must not be
// shared across goroutines unless the implementation documents otherwise.
type Session interface {
	// Classify analyses one audio frame and reports speech or silence.
	// It must not block.
	Classify(frame audio.Frame) Class

	// SetSensitivity adjusts the speech threshold mid-session.
	SetSensitivity(sensitivity float64)

	// Reset clears smoothing state so a session can be reused for a fresh
	// listening window with no tail from the previous one. The dictation
	// engine builds a new session per dictation and never calls it.
	Reset()
}

// Classifier is the factory for VAD sessions. Implementations must be safe
// for concurrent use.
type Classifier interface {
	// NewSession creates a session with the given configuration. Returns an
	// error if the configuration is invalid.
	NewSession(cfg Config) (Session, error)
}
