package engine

import "errors"

// Sentinel errors for the failure modes the engine reports to its surfaces.
// All are non-fatal to the process: the engine converts them into
// engine-error events and a safe state rather than exiting.
var (
	// ErrPermissionDenied: a required OS permission (microphone,
	// accessibility) is missing. The engine disarms until a re-check grants
	// it.
	ErrPermissionDenied = errors.New("engine: required permission denied")

	// ErrDeviceUnavailable: the configured audio input device disappeared or
	// could not be opened.
	ErrDeviceUnavailable = errors.New("engine: audio input device unavailable")

	// ErrModelLoadFailed: a recognition model could not be loaded.
	ErrModelLoadFailed = errors.New("engine: model load failed")

	// ErrTranscriptionFailed: the transcription stream for a session could
	// not be opened or failed mid-session.
	ErrTranscriptionFailed = errors.New("engine: transcription failed")

	// ErrInjectionFailed: a keystroke apply or delete did not complete. The
	// session continues overlay-only.
	ErrInjectionFailed = errors.New("engine: text injection failed")

	// ErrUndoUnavailable: undo was requested with no eligible injection
	// record.
	ErrUndoUnavailable = errors.New("engine: no injection eligible for undo")
)
