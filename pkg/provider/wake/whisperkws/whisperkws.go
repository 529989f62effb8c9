// Package whisperkws implements wake.Detector by spotting the wake phrase in
// short whisper.cpp decodes of a sliding audio window.
//
// To stay inside the idle CPU budget, inference is gated twice: the window
// must contain speech-level energy, and decodes are rate-limited to one per
// decodeInterval. Decoded text is matched against the configured phrase
// phonetically (Double Metaphone + Jaro-Winkler), which tolerates the
// misspellings a small model produces for an out-of-vocabulary wake word.
package whisperkws

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/sotto-app/sotto/pkg/audio"
	"github.com/sotto-app/sotto/pkg/provider/wake"
)

const (
	// windowSamples is the sliding decode window: 2 s at 16 kHz.
	windowSamples = 2 * audio.RecognitionRate

	// minEnergy gates inference on mean amplitude so silence never decodes.
	minEnergy = 0.01

	defaultDecodeInterval = 600 * time.Millisecond
)

// Option is a functional option for configuring a Detector.
type Option func(*Detector)

// WithDecodeInterval sets the minimum time between decode attempts.
// Default 600 ms.
func WithDecodeInterval(d time.Duration) Option {
	return func(det *Detector) { det.decodeInterval = d }
}

// WithLanguage sets the decode language. Default "en".
func WithLanguage(lang string) Option {
	return func(det *Detector) { det.language = lang }
}

// Detector spots a wake phrase using a dedicated (typically tiny) whisper
// model. It is owned by the engine's wake fan-out goroutine and therefore
// unlocked.
type Detector struct {
	model          whisperlib.Model
	phrase         string
	threshold      float64
	language       string
	decodeInterval time.Duration

	window     []int16
	lastDecode time.Time
}

// New loads the keyword-spotting model and returns a Detector for phrase.
// Sensitivity in (0, 1] widens or narrows the phonetic acceptance threshold.
// The caller must call Close when the detector is no longer needed.
func New(modelPath, phrase string, sensitivity float64, opts ...Option) (*Detector, error) {
	if modelPath == "" {
		return nil, errors.New("whisperkws: modelPath must not be empty")
	}
	if strings.TrimSpace(phrase) == "" {
		return nil, errors.New("whisperkws: wake phrase must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisperkws: load model %q: %w", modelPath, err)
	}

	d := &Detector{
		model:          model,
		phrase:         phrase,
		threshold:      acceptThreshold(sensitivity),
		language:       "en",
		decodeInterval: defaultDecodeInterval,
	}
	for _, o := range opts {
		o(d)
	}
	return d, nil
}

// Close releases the model.
func (d *Detector) Close() error {
	if d.model != nil {
		return d.model.Close()
	}
	return nil
}

// SetSensitivity adjusts the acceptance threshold for subsequent scans.
func (d *Detector) SetSensitivity(sensitivity float64) {
	d.threshold = acceptThreshold(sensitivity)
}

// Scan appends the frame to the sliding window and, when the gates allow,
// decodes the window and matches the wake phrase.
func (d *Detector) Scan(frame audio.Frame) (wake.Event, bool, error) {
	d.window = append(d.window, audio.ResampleTo16k(frame.Samples, frame.SampleRate)...)
	if overflow := len(d.window) - windowSamples; overflow > 0 {
		d.window = d.window[overflow:]
	}

	if len(d.window) < windowSamples/2 {
		return wake.Event{}, false, nil
	}
	if time.Since(d.lastDecode) < d.decodeInterval {
		return wake.Event{}, false, nil
	}
	if meanAmplitude(d.window) < minEnergy {
		return wake.Event{}, false, nil
	}

	d.lastDecode = time.Now()
	text, err := d.decode()
	if err != nil {
		return wake.Event{}, false, err
	}

	confidence, ok := matchPhrase(text, d.phrase)
	if !ok || confidence < d.threshold {
		return wake.Event{}, false, nil
	}

	// Detection consumes the window so the same utterance cannot re-fire.
	d.window = d.window[:0]
	return wake.Event{
		Keyword:    d.phrase,
		Confidence: confidence,
		Timestamp:  time.Now(),
	}, true, nil
}

// Reset drops the sliding window.
func (d *Detector) Reset() {
	d.window = d.window[:0]
}

func (d *Detector) decode() (string, error) {
	samples := make([]float32, len(d.window))
	for i, v := range d.window {
		samples[i] = float32(v) / 32768.0
	}

	wctx, err := d.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("whisperkws: create context: %w", err)
	}
	_ = wctx.SetLanguage(d.language)

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("whisperkws: process window: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("whisperkws: read segment: %w", err)
		}
		parts = append(parts, segment.Text)
	}
	return strings.Join(parts, " "), nil
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

var _ wake.Detector = (*Detector)(nil)
