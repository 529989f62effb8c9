// Package mock provides a test double for the wake package interfaces.
package mock

import (
	"sync"

	"github.com/sotto-app/sotto/pkg/audio"
	"github.com/sotto-app/sotto/pkg/provider/wake"
)

// Detector is a mock implementation of wake.Detector. Tests arm it with
// Trigger to make the next Scan report a detection.
type Detector struct {
	mu sync.Mutex

	// ScanErr, if non-nil, is returned by every Scan call.
	ScanErr error

	pending []wake.Event

	// ScanCount is the number of times Scan was called.
	ScanCount int

	// ResetCallCount is the number of times Reset was called.
	ResetCallCount int
}

// Trigger queues an event to be returned by the next Scan call.
func (d *Detector) Trigger(ev wake.Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending = append(d.pending, ev)
}

// Scan records the call and pops a queued event, if any.
func (d *Detector) Scan(audio.Frame) (wake.Event, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ScanCount++
	if d.ScanErr != nil {
		return wake.Event{}, false, d.ScanErr
	}
	if len(d.pending) > 0 {
		ev := d.pending[0]
		d.pending = d.pending[1:]
		return ev, true, nil
	}
	return wake.Event{}, false, nil
}

// Reset records the call.
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ResetCallCount++
}

var _ wake.Detector = (*Detector)(nil)
