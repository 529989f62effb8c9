// Package mock provides a test double for the inject package interfaces.
//
// The Injector maintains a visible text buffer so tests can assert the net
// effect of apply/rollback/undo sequences on the injection target.
package mock

import (
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/sotto-app/sotto/pkg/provider/inject"
)

// ApplyCall records a single invocation of Apply.
type ApplyCall struct {
	// Delta is the text passed to Apply.
	Delta string
}

// DeleteCall records a single invocation of DeleteLast.
type DeleteCall struct {
	// Count is the requested deletion count.
	Count int
}

// Injector is a mock implementation of inject.Injector backed by an
// in-memory buffer.
type Injector struct {
	mu sync.Mutex

	buffer []rune

	// Secure is returned by FocusedFieldSecure.
	Secure bool

	// ApplyErr, if non-nil, is returned by every Apply call.
	ApplyErr error

	// DeleteErr, if non-nil, is returned by every DeleteLast call.
	DeleteErr error

	// ShortApplyBy reduces each Apply's reported count by this many
	// characters, simulating a target that swallowed part of the delta.
	ShortApplyBy int

	// ApplyCalls records every call to Apply in order.
	ApplyCalls []ApplyCall

	// DeleteCalls records every call to DeleteLast in order.
	DeleteCalls []DeleteCall
}

// Apply records the call, appends delta to the buffer, and returns the
// applied rune count.
func (i *Injector) Apply(delta string) (int, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.ApplyCalls = append(i.ApplyCalls, ApplyCall{Delta: delta})
	if i.ApplyErr != nil {
		return 0, i.ApplyErr
	}
	if delta == "" {
		return 0, nil
	}
	applied := utf8.RuneCountInString(delta) - i.ShortApplyBy
	if applied < 0 {
		applied = 0
	}
	kept := []rune(delta)[:applied]
	i.buffer = append(i.buffer, kept...)
	return applied, nil
}

// DeleteLast records the call, removes up to count runes from the buffer,
// and returns the number removed.
func (i *Injector) DeleteLast(count int) (int, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.DeleteCalls = append(i.DeleteCalls, DeleteCall{Count: count})
	if i.DeleteErr != nil {
		return 0, i.DeleteErr
	}
	if count <= 0 {
		return 0, nil
	}
	removed := count
	if removed > len(i.buffer) {
		removed = len(i.buffer)
	}
	i.buffer = i.buffer[:len(i.buffer)-removed]
	return removed, nil
}

// FocusedFieldSecure returns Secure.
func (i *Injector) FocusedFieldSecure() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.Secure
}

var _ inject.Injector = (*Injector)(nil)

// Buffer returns the current visible text of the injection target.
func (i *Injector) Buffer() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	var b strings.Builder
	for _, r := range i.buffer {
		b.WriteRune(r)
	}
	return b.String()
}
