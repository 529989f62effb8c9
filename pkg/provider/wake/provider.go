// Package wake defines the wake-phrase detection capability consumed by the
// session coordinator.
//
// A Detector consumes capture frames one at a time while the engine is armed
// and reports a detection when the configured wake phrase is heard. Scan runs
// on the coordinator's wake fan-out goroutine, never on the event loop, so
// implementations may occasionally do real inference inside Scan.
package wake

import (
	"time"

	"github.com/sotto-app/sotto/pkg/audio"
)

// Event is a single wake-phrase detection.
type Event struct {
	// Keyword is the phrase that was matched.
	Keyword string

	// Confidence is the match score in [0, 1].
	Confidence float64

	// Timestamp marks when the detection fired. The wake-to-overlay latency
	// budget is measured from this instant.
	Timestamp time.Time
}

// Detector is the wake-phrase capability. A Detector is owned by a single
// goroutine; implementations need no internal locking.
type Detector interface {
	// Scan consumes one frame. When the wake phrase completes inside the
	// detector's window, it returns the detection and true. Errors are
	// fatal for the detector (e.g., model failure) and disarm the engine.
	Scan(frame audio.Frame) (Event, bool, error)

	// Reset drops buffered audio. Called when the engine re-arms so speech
	// from a finished session cannot trigger a phantom wake.
	Reset()
}
