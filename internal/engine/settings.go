package engine

import "time"

// Defaults applied by [Settings.withDefaults].
const (
	// DefaultSilenceTimeout is how long sustained silence ends a session.
	DefaultSilenceTimeout = time.Second

	// DefaultFinalizeGrace bounds the wait for the trailing final fragment.
	DefaultFinalizeGrace = 1500 * time.Millisecond

	// DefaultSensitivity is the wake/VAD sensitivity when unset.
	DefaultSensitivity = 0.5

	// DefaultFrameBuffer is the audio fan-out capacity in frames.
	DefaultFrameBuffer = 64
)

// Settings is the engine's runtime configuration. A copy is applied at
// construction; live updates arrive through [Engine.ApplySettings].
type Settings struct {
	// Enabled is the user-facing master switch.
	Enabled bool

	// Microphone is the capture device identifier; empty selects the
	// platform default.
	Microphone string

	// WakePhrase is the configured wake phrase, used by the shell and the
	// wake detector factory. The engine itself does not interpret it.
	WakePhrase string

	// Sensitivity in (0, 1] tunes both wake acceptance and the VAD energy
	// threshold. Higher is more eager.
	Sensitivity float64

	// SilenceTimeout is the sustained-silence duration that ends a session.
	SilenceTimeout time.Duration

	// FinalizeGrace bounds how long a finalizing session waits for the
	// trailing final fragment before completing with what it has.
	FinalizeGrace time.Duration

	// FrameBuffer is the bounded audio fan-out capacity in frames. Oldest
	// frames are dropped under backpressure.
	FrameBuffer int
}

// withDefaults fills zero-valued fields.
func (s Settings) withDefaults() Settings {
	if s.Sensitivity <= 0 {
		s.Sensitivity = DefaultSensitivity
	}
	if s.SilenceTimeout <= 0 {
		s.SilenceTimeout = DefaultSilenceTimeout
	}
	if s.FinalizeGrace <= 0 {
		s.FinalizeGrace = DefaultFinalizeGrace
	}
	if s.FrameBuffer <= 0 {
		s.FrameBuffer = DefaultFrameBuffer
	}
	return s
}
