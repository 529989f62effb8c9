// Package inject defines the text injection capability: applying recognised
// text to the OS input focus, deleting previously injected characters for
// rollback/undo, and probing whether the focused control is a secure field.
//
// Character counts are in runes, and always reflect what was actually
// applied or removed — the coordinator's bookkeeping is built on these
// return values, never on estimates.
package inject

import "errors"

// ErrNoFocusedTarget is returned by Apply when no editable control has
// keyboard focus. The coordinator treats this as overlay-only display, not
// as a session failure.
var ErrNoFocusedTarget = errors.New("inject: no focused editable target")

// Injector is the keystroke injection capability. Calls may block on the OS
// event queue; the coordinator therefore drives an Injector only from its
// dedicated injection worker goroutine.
type Injector interface {
	// Apply types delta into the focused control and returns the number of
	// characters actually applied. An empty delta is a no-op returning 0.
	Apply(delta string) (int, error)

	// DeleteLast removes up to count characters before the cursor and
	// returns the number actually removed. It must never remove more than
	// count; fewer is possible if the focus changed mid-operation.
	DeleteLast(count int) (int, error)

	// FocusedFieldSecure reports whether the focused control is a secure
	// (password) field. Probed once at session start; the result is fixed
	// for the session's lifetime.
	FocusedFieldSecure() bool
}
