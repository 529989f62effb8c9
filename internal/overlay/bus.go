// Package overlay is the boundary between the engine and its UI surfaces:
// the dictation overlay and the shell (tray, settings window).
//
// The engine publishes typed [Event] values on a [Bus]; each surface holds
// its own bounded subscription. Like the audio fan-out, subscriptions drop
// their oldest event under backpressure — a stalled overlay process must
// never stall the engine loop, and for every event kind a newer event
// supersedes an older one.
package overlay

import (
	"sync"

	"github.com/sotto-app/sotto/internal/permissions"
)

// EventKind names an engine-to-surface event.
type EventKind string

// Event kinds emitted by the engine.
const (
	// EventStateChanged reports an engine state transition. Payload: State.
	EventStateChanged EventKind = "state-changed"

	// EventTrayChanged reports a coarse tray indicator change. Payload: Tray.
	EventTrayChanged EventKind = "tray-changed"

	// EventOverlayShow asks the overlay to become visible.
	EventOverlayShow EventKind = "overlay-show"

	// EventOverlayHide asks the overlay to hide.
	EventOverlayHide EventKind = "overlay-hide"

	// EventOverlayReset clears the overlay's transcript display.
	EventOverlayReset EventKind = "overlay-reset"

	// EventOverlayText carries newly recognised text. Payload: Text (the
	// fragment delta), Transcript (the session transcript so far), Final.
	EventOverlayText EventKind = "overlay-text"

	// EventOverlayWave carries the live input level for the waveform.
	// Payload: Level.
	EventOverlayWave EventKind = "overlay-wave"

	// EventPermissionsRequired reports missing OS permissions. Payload:
	// Permissions.
	EventPermissionsRequired EventKind = "permissions-required"

	// EventEngineError reports a non-fatal engine failure. Payload: Error.
	EventEngineError EventKind = "engine-error"
)

// TrayState is the coarse indicator shown in the system tray.
type TrayState string

// Tray states.
const (
	// TrayIdle: the engine is disabled or unpermitted.
	TrayIdle TrayState = "idle"

	// TrayArmed: the engine is listening for the wake phrase.
	TrayArmed TrayState = "armed"

	// TrayDictating: a dictation session is live.
	TrayDictating TrayState = "dictating"
)

// Event is one engine-to-surface notification. Only the fields relevant to
// Kind are populated; the rest stay at their zero values and are omitted
// from the wire encoding.
type Event struct {
	Kind EventKind `json:"kind"`

	// State is the engine state name for EventStateChanged.
	State string `json:"state,omitempty"`

	// Tray is the indicator for EventTrayChanged.
	Tray TrayState `json:"tray,omitempty"`

	// Text is the newly recognised fragment text for EventOverlayText. An
	// overlay appends it; events lost to eviction are recovered from
	// Transcript.
	Text string `json:"text,omitempty"`

	// Transcript is the accumulated session transcript for EventOverlayText.
	Transcript string `json:"transcript,omitempty"`

	// Final marks the EventOverlayText that carries the session's final
	// text.
	Final bool `json:"final,omitempty"`

	// Level is the input peak amplitude in [0, 1] for EventOverlayWave.
	Level float32 `json:"level,omitempty"`

	// Permissions is the missing-permission detail for
	// EventPermissionsRequired.
	Permissions *permissions.Status `json:"permissions,omitempty"`

	// Error is the human-readable failure for EventEngineError.
	Error string `json:"error,omitempty"`
}

// DefaultBusCapacity is the per-subscriber event buffer when none is given.
const DefaultBusCapacity = 128

// Bus fans engine events out to UI surface subscribers. Publish never
// blocks: a subscriber that has fallen DefaultBusCapacity events behind
// loses its oldest event first.
type Bus struct {
	mu       sync.Mutex
	capacity int
	subs     []chan Event
	closed   bool
}

// NewBus returns a Bus with the given per-subscriber capacity.
// Non-positive capacities use DefaultBusCapacity.
func NewBus(capacity int) *Bus {
	if capacity <= 0 {
		capacity = DefaultBusCapacity
	}
	return &Bus{capacity: capacity}
}

// Subscribe registers a new subscriber and returns its event channel. The
// channel is closed when the Bus is closed. Subscribing to a closed Bus
// returns an already-closed channel.
func (b *Bus) Subscribe() <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan Event, b.capacity)
	if b.closed {
		close(ch)
		return ch
	}
	b.subs = append(b.subs, ch)
	return ch
}

// Publish delivers ev to every subscriber, evicting each full subscriber's
// oldest event to make room. Publishing to a closed Bus is a no-op.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs {
		for {
			select {
			case ch <- ev:
			default:
				// Full: evict the oldest and retry. The publisher holds the
				// only send side, so the retry can block at most once more.
				select {
				case <-ch:
				default:
				}
				continue
			}
			break
		}
	}
}

// Close closes every subscriber channel. Safe to call more than once.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, ch := range b.subs {
		close(ch)
	}
	b.subs = nil
}
