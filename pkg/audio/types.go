package audio

import "time"

// Frame is a single fixed-duration block of microphone PCM flowing through
// the pipeline. Frames are ephemeral: they are produced by a Source, fanned
// out to the wake detector, VAD, and transcriber, and never persisted.
type Frame struct {
	// Samples holds 16-bit signed mono PCM.
	Samples []int16

	// SampleRate in Hz (e.g., 48000 from the capture device, 16000 after
	// resampling for recognition).
	SampleRate int

	// Peak is the normalised peak amplitude of the frame in [0, 1].
	// Drives the overlay waveform.
	Peak float32

	// Timestamp marks when the frame was captured.
	Timestamp time.Time
}

// Duration returns the wall-clock length of the frame.
func (f Frame) Duration() time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(f.Samples)) * time.Second / time.Duration(f.SampleRate)
}

// PeakOf computes the normalised peak amplitude of a sample block.
func PeakOf(samples []int16) float32 {
	var peak int16
	for _, s := range samples {
		if s < 0 {
			if s == -32768 {
				return 1
			}
			s = -s
		}
		if s > peak {
			peak = s
		}
	}
	return float32(peak) / 32767.0
}
