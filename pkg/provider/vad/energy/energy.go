// Package energy implements vad.Classifier with a mean-amplitude energy gate
// plus hysteresis. It is dependency-free and cheap enough to run inline on
// every 20 ms frame, which keeps the idle CPU budget intact.
package energy

import (
	"errors"

	"github.com/sotto-app/sotto/pkg/audio"
	"github.com/sotto-app/sotto/pkg/provider/vad"
)

// speechConfirmFrames is the number of consecutive speech frames required
// before the gate opens; suppresses single-frame clicks.
const speechConfirmFrames = 2

// Classifier creates energy-gate VAD sessions.
type Classifier struct{}

// New returns an energy-based vad.Classifier.
func New() *Classifier {
	return &Classifier{}
}

// NewSession creates a session. Sensitivity must be in (0, 1].
func (c *Classifier) NewSession(cfg vad.Config) (vad.Session, error) {
	if cfg.Sensitivity <= 0 || cfg.Sensitivity > 1 {
		return nil, errors.New("energy: sensitivity must be in (0, 1]")
	}
	return &session{threshold: thresholdFromSensitivity(cfg.Sensitivity)}, nil
}

var _ vad.Classifier = (*Classifier)(nil)

type session struct {
	threshold   float64
	speechCount int
	inSpeech    bool
}

// Classify gates on the mean absolute amplitude of the frame, normalised to
// [0, 1]. Hysteresis: entering speech needs speechConfirmFrames consecutive
// hits, leaving it is immediate (the coordinator applies the long silence
// timeout on top).
func (s *session) Classify(frame audio.Frame) vad.Class {
	level := meanAmplitude(frame.Samples)

	if level > s.threshold {
		s.speechCount++
		if s.speechCount >= speechConfirmFrames {
			s.inSpeech = true
		}
	} else {
		s.speechCount = 0
		s.inSpeech = false
	}

	if s.inSpeech {
		return vad.Speech
	}
	return vad.Silence
}

func (s *session) SetSensitivity(sensitivity float64) {
	if sensitivity <= 0 {
		sensitivity = 0.01
	} else if sensitivity > 1 {
		sensitivity = 1
	}
	s.threshold = thresholdFromSensitivity(sensitivity)
}

func (s *session) Reset() {
	s.speechCount = 0
	s.inSpeech = false
}

var _ vad.Session = (*session)(nil)

// thresholdFromSensitivity maps the user-facing sensitivity to a
// mean-amplitude threshold in a realistic speech-energy range. Higher
// sensitivity requires less energy to classify as speech.
func thresholdFromSensitivity(sensitivity float64) float64 {
	if sensitivity < 0.01 {
		sensitivity = 0.01
	} else if sensitivity > 1 {
		sensitivity = 1
	}
	return 0.12 - sensitivity*0.10
}

func meanAmplitude(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s)
		if v < 0 {
			v = -v
		}
		sum += v / 32767.0
	}
	return sum / float64(len(samples))
}
