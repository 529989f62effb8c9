// Package stt defines the streaming transcription capability consumed by the
// session coordinator.
//
// An Engine opens one Stream per dictation session. The stream accepts PCM
// frames and emits an ordered, sequence-numbered series of Fragment values —
// low-latency partial deltas while the user speaks and a trailing final
// fragment once Finalize is requested. Fragments carry the session id they
// belong to so the coordinator can discard results that arrive after a
// session was cancelled; staleness filtering, not hard preemption, is what
// makes cancellation immediate.
//
// A Stream is finite and not restartable: after Finalize (or Close) its
// fragment channel is closed and the stream must be discarded.
package stt

import (
	"context"

	"github.com/sotto-app/sotto/pkg/audio"
)

// Fragment is one ordered chunk of recognised text within a session.
type Fragment struct {
	// SessionID identifies the dictation session the fragment belongs to.
	SessionID uint64

	// Seq is strictly increasing per session, starting at 1. The coordinator
	// applies fragments only in exact sequence order.
	Seq uint64

	// Delta is the newly recognised text relative to the previous fragment.
	Delta string

	// Final marks the trailing authoritative fragment emitted by Finalize.
	Final bool
}

// Stream is an open transcription session. All methods are safe for
// concurrent use; Feed and Finalize never block on inference, which runs on
// the stream's own goroutine.
type Stream interface {
	// Feed queues one audio frame for recognition. Returns an error once the
	// stream has been finalized or closed.
	Feed(frame audio.Frame) error

	// Fragments returns the ordered fragment stream. The channel is closed
	// after the final fragment (or after Close).
	Fragments() <-chan Fragment

	// Finalize requests a final decode of all buffered audio. The trailing
	// fragment (if any text remains) is emitted with Final set, then the
	// fragment channel closes. Finalize does not block on inference.
	Finalize()

	// Close abandons the stream without a final decode and releases its
	// resources. Safe to call more than once and after Finalize.
	Close() error
}

// Engine is the transcription capability. Implementations must be safe for
// concurrent use, although the coordinator opens at most one stream at a
// time; the engine must hold no warm inference state between streams so the
// idle resource budget holds.
type Engine interface {
	// Begin opens a stream scoped to sessionID. Returns an error if the
	// model is unavailable or ctx is already cancelled.
	Begin(ctx context.Context, sessionID uint64) (Stream, error)
}
