// Package whisper implements stt.Engine with the whisper.cpp CGO bindings.
// The whisper.cpp static library (libwhisper.a) and headers (whisper.h) must
// be available at link time via LIBRARY_PATH and C_INCLUDE_PATH.
//
// The model is loaded once at construction and shared across streams; no
// inference runs between sessions. Each stream buffers session audio and
// re-decodes the growing buffer on a fixed cadence, emitting only the text
// delta since the previous decode — this is what keeps time-to-first-text
// low while the authoritative final decode covers the whole utterance.
package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/sotto-app/sotto/pkg/audio"
	"github.com/sotto-app/sotto/pkg/provider/stt"
)

const (
	defaultLanguage       = "en"
	defaultDecodeInterval = 350 * time.Millisecond

	// minDecodeSamples is 200 ms at 16 kHz — decoding less than this wastes
	// a context on noise.
	minDecodeSamples = 3200
)

// Option is a functional option for configuring an Engine.
type Option func(*Engine)

// WithLanguage sets the decode language (e.g., "en", "de"). Default "en".
func WithLanguage(lang string) Option {
	return func(e *Engine) { e.language = lang }
}

// WithDecodeInterval sets the minimum time between partial decodes.
// Default 350 ms.
func WithDecodeInterval(d time.Duration) Option {
	return func(e *Engine) { e.decodeInterval = d }
}

// Engine implements stt.Engine backed by a local whisper.cpp model.
type Engine struct {
	model          whisperlib.Model
	language       string
	decodeInterval time.Duration
}

// New loads the whisper model at modelPath. The caller must call Close when
// the engine is no longer needed.
func New(modelPath string, opts ...Option) (*Engine, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}
	e := &Engine{
		model:          model,
		language:       defaultLanguage,
		decodeInterval: defaultDecodeInterval,
	}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// Close releases the whisper model.
func (e *Engine) Close() error {
	if e.model != nil {
		return e.model.Close()
	}
	return nil
}

// Begin opens a transcription stream scoped to sessionID.
func (e *Engine) Begin(ctx context.Context, sessionID uint64) (stt.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("whisper: context already cancelled: %w", err)
	}

	s := &stream{
		model:          e.model,
		language:       e.language,
		decodeInterval: e.decodeInterval,
		sessionID:      sessionID,

		audioCh:   make(chan audio.Frame, 256),
		fragments: make(chan stt.Fragment, 64),
		finalize:  make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	s.wg.Add(1)
	go s.decodeLoop(ctx)
	return s, nil
}

var _ stt.Engine = (*Engine)(nil)

// stream is a live whisper transcription session. All decode state is
// confined to the decodeLoop goroutine.
type stream struct {
	model          whisperlib.Model
	language       string
	decodeInterval time.Duration
	sessionID      uint64

	audioCh   chan audio.Frame
	fragments chan stt.Fragment
	finalize  chan struct{}

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

// Feed queues one frame for recognition.
func (s *stream) Feed(frame audio.Frame) error {
	select {
	case <-s.done:
		return errors.New("whisper: stream is closed")
	default:
	}
	select {
	case s.audioCh <- frame:
		return nil
	case <-s.done:
		return errors.New("whisper: stream is closed")
	}
}

func (s *stream) Fragments() <-chan stt.Fragment { return s.fragments }

// Finalize requests the trailing final decode.
func (s *stream) Finalize() {
	select {
	case s.finalize <- struct{}{}:
	default:
	}
}

// Close abandons the stream. Any in-flight decode finishes but its result is
// discarded by the caller via stale-session filtering.
func (s *stream) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.wg.Wait()
	})
	return nil
}

// decodeLoop buffers session audio and runs cadenced partial decodes plus a
// single final decode.
func (s *stream) decodeLoop(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.fragments)

	var (
		buffer      []int16
		lastEmitted string
		lastDecode  = time.Now()
		seq         uint64
	)

	emit := func(delta string, final bool) {
		if delta == "" && !final {
			return
		}
		seq++
		select {
		case s.fragments <- stt.Fragment{SessionID: s.sessionID, Seq: seq, Delta: delta, Final: final}:
		case <-s.done:
		}
	}

	for {
		select {
		case <-ctx.Done():
			return

		case <-s.done:
			return

		case <-s.finalize:
			text, err := s.decode(buffer, true)
			if err != nil {
				slog.Error("whisper: final decode failed", "session_id", s.sessionID, "err", err)
				return
			}
			emit(stt.Delta(lastEmitted, text), true)
			return

		case frame := <-s.audioCh:
			buffer = append(buffer, audio.ResampleTo16k(frame.Samples, frame.SampleRate)...)
			if time.Since(lastDecode) < s.decodeInterval || len(buffer) < minDecodeSamples {
				continue
			}

			text, err := s.decode(buffer, false)
			lastDecode = time.Now()
			if err != nil {
				slog.Warn("whisper: partial decode failed", "session_id", s.sessionID, "err", err)
				continue
			}
			if delta := stt.Delta(lastEmitted, text); delta != "" {
				emit(delta, false)
				lastEmitted = text
			}
		}
	}
}

// decode converts the buffered PCM to float32 and runs whisper inference on
// a fresh context. Contexts are not thread-safe but the model is shared.
func (s *stream) decode(buffer []int16, final bool) (string, error) {
	if len(buffer) == 0 {
		return "", nil
	}

	samples := make([]float32, len(buffer))
	for i, v := range buffer {
		samples[i] = float32(v) / 32768.0
	}

	wctx, err := s.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("whisper: create context: %w", err)
	}
	if err := wctx.SetLanguage(s.language); err != nil {
		slog.Warn("whisper: failed to set language, using default", "language", s.language, "err", err)
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("whisper: process audio: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("whisper: read segment: %w", err)
		}
		if text := strings.TrimSpace(segment.Text); text != "" {
			parts = append(parts, text)
		}
	}

	return stt.Normalize(strings.Join(parts, " "), final), nil
}

var _ stt.Stream = (*stream)(nil)
