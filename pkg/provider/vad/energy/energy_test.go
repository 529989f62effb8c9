package energy

import (
	"testing"

	"github.com/sotto-app/sotto/pkg/audio"
	"github.com/sotto-app/sotto/pkg/provider/vad"
)

func loudFrame() audio.Frame {
	samples := make([]int16, 320)
	for i := range samples {
		samples[i] = 12000
	}
	return audio.Frame{Samples: samples, SampleRate: 16000}
}

func quietFrame() audio.Frame {
	return audio.Frame{Samples: make([]int16, 320), SampleRate: 16000}
}

func TestClassifier_RejectsInvalidSensitivity(t *testing.T) {
	t.Parallel()

	c := New()
	for _, sensitivity := range []float64{0, -0.1, 1.5} {
		if _, err := c.NewSession(vad.Config{Sensitivity: sensitivity}); err == nil {
			t.Errorf("NewSession(sensitivity=%v) expected error", sensitivity)
		}
	}
}

func TestSession_SpeechRequiresConsecutiveFrames(t *testing.T) {
	t.Parallel()

	c := New()
	sess, err := c.NewSession(vad.Config{Sensitivity: 0.5})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	if got := sess.Classify(loudFrame()); got != vad.Silence {
		t.Errorf("first loud frame = %v, want silence (hysteresis)", got)
	}
	if got := sess.Classify(loudFrame()); got != vad.Speech {
		t.Errorf("second loud frame = %v, want speech", got)
	}
	if got := sess.Classify(quietFrame()); got != vad.Silence {
		t.Errorf("quiet frame = %v, want silence", got)
	}
}

func TestSession_ResetClearsGate(t *testing.T) {
	t.Parallel()

	c := New()
	sess, _ := c.NewSession(vad.Config{Sensitivity: 0.5})

	sess.Classify(loudFrame())
	sess.Classify(loudFrame())
	sess.Reset()

	if got := sess.Classify(loudFrame()); got != vad.Silence {
		t.Errorf("post-reset first loud frame = %v, want silence", got)
	}
}

func TestThresholdFromSensitivity_MonotonicallyDecreasing(t *testing.T) {
	t.Parallel()

	low := thresholdFromSensitivity(0.1)
	high := thresholdFromSensitivity(0.9)
	if high >= low {
		t.Errorf("threshold(0.9)=%v should be below threshold(0.1)=%v", high, low)
	}
}

func TestSetSensitivity_ChangesGate(t *testing.T) {
	t.Parallel()

	c := New()
	sess, _ := c.NewSession(vad.Config{Sensitivity: 0.01})

	// Very low sensitivity: moderate audio stays silence.
	soft := loudFrame()
	for i := range soft.Samples {
		soft.Samples[i] = 1500
	}
	sess.Classify(soft)
	if got := sess.Classify(soft); got != vad.Silence {
		t.Fatalf("moderate frame at low sensitivity = %v, want silence", got)
	}

	sess.SetSensitivity(1.0)
	sess.Reset()
	sess.Classify(soft)
	if got := sess.Classify(soft); got != vad.Speech {
		t.Errorf("moderate frame at high sensitivity = %v, want speech", got)
	}
}
