// Package ffmpeg implements audio.Source by spawning an ffmpeg process that
// streams raw s16le PCM from the platform capture backend (avfoundation on
// macOS, pulse on Linux) to stdout. Running capture out of process keeps the
// engine free of audio-backend CGO and makes device loss observable as a
// plain process exit.
package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sotto-app/sotto/pkg/audio"
)

const (
	defaultSampleRate   = 16000
	defaultFrameSamples = 320 // 20 ms at 16 kHz
)

// Source captures microphone audio via an ffmpeg subprocess.
type Source struct {
	command string
	format  string
}

// Option configures a Source.
type Option func(*Source)

// WithCommand overrides the ffmpeg executable path. Default: "ffmpeg".
func WithCommand(command string) Option {
	return func(s *Source) { s.command = command }
}

// WithInputFormat overrides the capture backend passed to ffmpeg's -f flag
// (e.g., "pulse", "alsa", "avfoundation"). Default is chosen per platform.
func WithInputFormat(format string) Option {
	return func(s *Source) { s.format = format }
}

// New creates an ffmpeg-backed Source.
func New(opts ...Option) *Source {
	s := &Source{
		command: "ffmpeg",
		format:  defaultInputFormat(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func defaultInputFormat() string {
	switch runtime.GOOS {
	case "darwin":
		return "avfoundation"
	case "windows":
		return "dshow"
	default:
		return "pulse"
	}
}

// Start spawns ffmpeg and begins streaming frames. The returned session ends
// when Close is called, ctx is cancelled, or the process exits (device loss).
func (s *Source) Start(ctx context.Context, cfg audio.Config) (audio.Session, error) {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = defaultSampleRate
	}
	if cfg.FrameSamples <= 0 {
		cfg.FrameSamples = cfg.SampleRate / 50 // 20 ms
	}
	device := cfg.Device
	if device == "" {
		device = defaultDevice(s.format)
	}

	args := captureArgs(s.format, device, cfg.SampleRate)

	cmd := exec.CommandContext(ctx, s.command, args...)
	stderr := &lockedBuffer{}
	cmd.Stderr = stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg: stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("ffmpeg: start: %w", err)
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
		close(waitErr)
	}()

	// Fail fast if ffmpeg dies immediately (bad device, missing permission).
	select {
	case err := <-waitErr:
		msg := strings.TrimSpace(stderr.String())
		if err != nil {
			return nil, fmt.Errorf("ffmpeg: exited before capture started: %w: %s", err, msg)
		}
		return nil, fmt.Errorf("ffmpeg: exited before capture started: %s", msg)
	case <-time.After(250 * time.Millisecond):
	}

	sess := &session{
		stdout:       stdout,
		stderr:       stderr,
		process:      cmd.Process,
		waitErr:      waitErr,
		sampleRate:   cfg.SampleRate,
		frameSamples: cfg.FrameSamples,
		frames:       make(chan audio.Frame, 8),
	}
	go sess.readLoop()
	return sess, nil
}

// captureArgs builds the ffmpeg argument list for a raw PCM capture stream.
func captureArgs(format, device string, sampleRate int) []string {
	return []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", format,
		"-i", device,
		"-ac", "1",
		"-ar", strconv.Itoa(sampleRate),
		"-f", "s16le",
		"-",
	}
}

func defaultDevice(format string) string {
	if format == "avfoundation" {
		return ":0"
	}
	return "default"
}

// ListDevices enumerates input devices. On pulse backends it shells out to
// pactl; elsewhere it returns the platform default placeholder, leaving
// fine-grained enumeration to the settings UI.
func (s *Source) ListDevices(ctx context.Context) ([]string, error) {
	if s.format != "pulse" {
		return []string{defaultDevice(s.format)}, nil
	}
	out, err := exec.CommandContext(ctx, "pactl", "list", "short", "sources").Output()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg: list sources: %w", err)
	}
	var devices []string
	for _, line := range strings.Split(string(out), "\n") {
		fields := strings.Fields(line)
		if len(fields) >= 2 {
			devices = append(devices, fields[1])
		}
	}
	return devices, nil
}

// lockedBuffer collects ffmpeg's stderr. The process copier writes it until
// Wait returns while readLoop reads it on stream failure, so both sides
// take the lock.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// session is one running ffmpeg capture stream.
type session struct {
	stdout  io.ReadCloser
	stderr  *lockedBuffer
	process *os.Process
	waitErr <-chan error

	sampleRate   int
	frameSamples int
	frames       chan audio.Frame

	mu       sync.Mutex
	err      error
	stopOnce sync.Once
	stopErr  error
}

func (s *session) Frames() <-chan audio.Frame { return s.frames }

func (s *session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// readLoop slices the raw s16le byte stream into fixed-size frames.
func (s *session) readLoop() {
	defer close(s.frames)

	reader := bufio.NewReaderSize(s.stdout, s.frameSamples*2*4)
	buf := make([]byte, s.frameSamples*2)
	for {
		if _, err := io.ReadFull(reader, buf); err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, os.ErrClosed) {
				s.setErr(fmt.Errorf("ffmpeg: read capture stream: %w", err))
			} else if msg := strings.TrimSpace(s.stderr.String()); msg != "" {
				s.setErr(fmt.Errorf("ffmpeg: capture ended: %s", msg))
			}
			return
		}

		samples := make([]int16, s.frameSamples)
		for i := range samples {
			samples[i] = int16(binary.LittleEndian.Uint16(buf[i*2:]))
		}
		s.frames <- audio.Frame{
			Samples:    samples,
			SampleRate: s.sampleRate,
			Peak:       audio.PeakOf(samples),
			Timestamp:  time.Now(),
		}
	}
}

func (s *session) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

// Close interrupts ffmpeg, waits briefly for a clean exit, then kills it.
func (s *session) Close() error {
	s.stopOnce.Do(func() {
		if s.process != nil {
			_ = s.process.Signal(os.Interrupt)
		}
		select {
		case err, ok := <-s.waitErr:
			if ok {
				s.stopErr = normalizeExit(err)
			}
		case <-time.After(1200 * time.Millisecond):
			if s.process != nil {
				_ = s.process.Kill()
			}
			if err, ok := <-s.waitErr; ok {
				s.stopErr = normalizeExit(err)
			}
		}
		_ = s.stdout.Close()
	})
	return s.stopErr
}

// normalizeExit treats a non-zero exit after interrupt as a clean stop.
func normalizeExit(err error) error {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}

var _ audio.Source = (*Source)(nil)
