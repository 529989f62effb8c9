// Package audio defines the capture-side types of the Sotto pipeline: the
// Frame transport type, the Source capability for microphone capture, the
// bounded drop-oldest Tee used to fan frames out to consumers, and the
// 16 kHz resampler shared by the recognition stages.
//
// A Source is infinite while running and restartable: the engine stops and
// restarts capture when the configured input device changes or when the
// microphone permission is granted after startup.
package audio

import "context"

// Config describes how a capture session should be opened.
type Config struct {
	// Device is the input device name. Empty selects the platform default.
	Device string

	// SampleRate is the requested capture rate in Hz. Sources may deliver a
	// different rate; consumers must honour Frame.SampleRate.
	SampleRate int

	// FrameSamples is the number of samples per emitted Frame. Zero lets the
	// source pick its native block size (typically 20 ms).
	FrameSamples int
}

// Session is an open capture stream. Frames() yields PCM until Close is
// called or the device is lost, at which point the channel is closed.
type Session interface {
	// Frames returns the capture stream. The channel is closed when the
	// session ends for any reason; Err reports why.
	Frames() <-chan Frame

	// Err returns the terminal error after Frames is closed. A clean Close
	// yields nil; device loss yields a non-nil error.
	Err() error

	// Close stops capture and releases the device. Safe to call more than
	// once.
	Close() error
}

// Source is the microphone capture capability. Implementations must be safe
// for concurrent use; each Start call yields an independent session.
type Source interface {
	// Start opens a capture session. Returns an error if the device cannot
	// be opened (missing permission, unknown device, backend failure).
	Start(ctx context.Context, cfg Config) (Session, error)

	// ListDevices enumerates available input device names.
	ListDevices(ctx context.Context) ([]string, error)
}
