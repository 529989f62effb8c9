package engine

import (
	"sync"

	"github.com/sotto-app/sotto/internal/overlay"
)

// State is the engine's coordinator state.
type State string

// Engine states. Exactly one is current at any time; every transition is
// made by the coordinator loop through a [Machine] guard method.
const (
	// StateDisabled: not listening. Entered when the engine is switched off,
	// a required permission is missing, or the input device is gone.
	StateDisabled State = "disabled"

	// StateIdle: armed for the wake phrase, no session live.
	StateIdle State = "idle"

	// StateListening: a dictation session is live and consuming audio.
	StateListening State = "listening"

	// StateFinalizing: audio intake has stopped; waiting (bounded) for the
	// trailing final fragment.
	StateFinalizing State = "finalizing"

	// StateCancelling: the session is being rolled back.
	StateCancelling State = "cancelling"
)

// Machine guards the engine's state transitions. Illegal transitions are
// refused rather than panicking: the caller checks the returned bool and
// drops the triggering command.
//
// The enabled/permitted/deviceReady conditions gate arming; they are inputs
// to the machine, not states of it, so a mid-session disable simply changes
// where the running cycle lands when it finishes.
type Machine struct {
	mu sync.Mutex

	state       State
	enabled     bool
	permitted   bool
	deviceReady bool
}

// NewMachine returns a Machine in StateDisabled.
func NewMachine() *Machine {
	return &Machine{state: StateDisabled, deviceReady: true}
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// SetEnabled records the user-facing enable switch.
func (m *Machine) SetEnabled(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = v
}

// SetPermitted records whether all required OS permissions are granted.
func (m *Machine) SetPermitted(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.permitted = v
}

// SetDeviceReady records whether the audio input device is usable.
func (m *Machine) SetDeviceReady(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deviceReady = v
}

// CanArm reports whether the engine may leave StateDisabled.
func (m *Machine) CanArm() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.canArmLocked()
}

func (m *Machine) canArmLocked() bool {
	return m.enabled && m.permitted && m.deviceReady
}

// Arm transitions Disabled → Idle when arming conditions hold.
func (m *Machine) Arm() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateDisabled || !m.canArmLocked() {
		return false
	}
	m.state = StateIdle
	return true
}

// Disarm transitions Idle → Disabled.
func (m *Machine) Disarm() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateIdle {
		return false
	}
	m.state = StateDisabled
	return true
}

// StartSession transitions Idle → Listening.
func (m *Machine) StartSession() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateIdle {
		return false
	}
	m.state = StateListening
	return true
}

// BeginFinalize transitions Listening → Finalizing.
func (m *Machine) BeginFinalize() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateListening {
		return false
	}
	m.state = StateFinalizing
	return true
}

// BeginCancel transitions Listening or Finalizing → Cancelling.
func (m *Machine) BeginCancel() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateListening && m.state != StateFinalizing {
		return false
	}
	m.state = StateCancelling
	return true
}

// FinishCycle ends the running session cycle, landing in Idle when arming
// conditions still hold and Disabled otherwise. Permitted from Listening
// (session open failure), Finalizing, and Cancelling. Returns the new state
// and whether a transition happened.
func (m *Machine) FinishCycle() (State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.state {
	case StateListening, StateFinalizing, StateCancelling:
	default:
		return m.state, false
	}
	if m.canArmLocked() {
		m.state = StateIdle
	} else {
		m.state = StateDisabled
	}
	return m.state, true
}

// Tray maps the current state to the coarse tray indicator.
func (m *Machine) Tray() overlay.TrayState {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.state {
	case StateDisabled:
		return overlay.TrayIdle
	case StateIdle:
		return overlay.TrayArmed
	default:
		return overlay.TrayDictating
	}
}
