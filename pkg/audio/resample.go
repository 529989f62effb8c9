package audio

import "math"

// RecognitionRate is the sample rate expected by the wake detector and the
// transcriber.
const RecognitionRate = 16000

// ResampleTo16k converts mono PCM from sourceRate to 16 kHz using linear
// interpolation. Samples at 16 kHz are returned as a copy so callers may
// retain the result independently of the input buffer.
func ResampleTo16k(samples []int16, sourceRate int) []int16 {
	if sourceRate == RecognitionRate {
		out := make([]int16, len(samples))
		copy(out, samples)
		return out
	}
	if len(samples) == 0 || sourceRate <= 0 {
		return nil
	}

	ratio := float64(RecognitionRate) / float64(sourceRate)
	targetLen := int(float64(len(samples)) * ratio)
	if targetLen < 1 {
		targetLen = 1
	}

	out := make([]int16, 0, targetLen)
	for i := 0; i < targetLen; i++ {
		pos := float64(i) / ratio
		idx := int(pos)
		next := idx + 1
		if next >= len(samples) {
			next = len(samples) - 1
		}
		frac := pos - float64(idx)
		cur := float64(samples[idx])
		interpolated := cur + (float64(samples[next])-cur)*frac
		out = append(out, int16(math.Round(interpolated)))
	}
	return out
}
