package engine

import (
	"time"

	"github.com/sotto-app/sotto/pkg/provider/stt"
	"github.com/sotto-app/sotto/pkg/provider/vad"
)

// session tracks one dictation cycle from open to completion or rollback.
// It is owned exclusively by the coordinator loop.
type session struct {
	// id is the monotonically allocated session id. Never reused, never 0.
	id uint64

	startedAt time.Time

	// wakeAt is the wake detection timestamp, zero for push-to-talk.
	wakeAt time.Time

	// secure is the focused-field probe result, fixed at session open.
	// Secure sessions never inject and never retain an undo record.
	secure bool

	stream stt.Stream
	vad    vad.Session

	// lastSeq is the highest fragment sequence number accepted so far.
	// Fragments at or below it are dropped as out of order.
	lastSeq uint64

	// transcript is the accumulated session text shown on the overlay.
	transcript string

	// injected mirrors the injection worker's applied-character count, for
	// logging. The worker's own count is authoritative.
	injected int

	// speechAt is the timestamp of the first speech-classified frame.
	speechAt time.Time

	// firstText records whether the first fragment latency was observed.
	firstText bool

	// silenceSince is the timestamp of the first frame of the current
	// silence run, zero while speech is live.
	silenceSince time.Time

	// grace bounds the wait for the trailing final fragment.
	grace *time.Timer
}

func (s *session) stopGrace() {
	if s.grace != nil {
		s.grace.Stop()
		s.grace = nil
	}
}
