package ffmpeg

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"testing"
)

func TestCaptureArgs(t *testing.T) {
	t.Parallel()

	args := captureArgs("pulse", "default", 16000)

	want := []string{
		"-nostdin", "-hide_banner", "-loglevel", "warning",
		"-f", "pulse", "-i", "default",
		"-ac", "1", "-ar", "16000",
		"-f", "s16le", "-",
	}
	if !slices.Equal(args, want) {
		t.Errorf("captureArgs = %v, want %v", args, want)
	}
}

func TestDefaultDevice(t *testing.T) {
	t.Parallel()

	if got := defaultDevice("avfoundation"); got != ":0" {
		t.Errorf("avfoundation default = %q, want %q", got, ":0")
	}
	if got := defaultDevice("pulse"); got != "default" {
		t.Errorf("pulse default = %q, want %q", got, "default")
	}
}

// The process copier keeps writing stderr until the child exits while
// readLoop may read it on a stream error; the buffer has to tolerate that.
func TestLockedBufferConcurrentReadWrite(t *testing.T) {
	t.Parallel()

	buf := &lockedBuffer{}
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			fmt.Fprintf(buf, "line %d\n", i)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			_ = buf.String()
		}
	}()
	wg.Wait()

	if got := strings.Count(buf.String(), "\n"); got != 1000 {
		t.Errorf("buffer holds %d lines, want 1000", got)
	}
}

func TestNormalizeExit(t *testing.T) {
	t.Parallel()

	if err := normalizeExit(nil); err != nil {
		t.Errorf("normalizeExit(nil) = %v, want nil", err)
	}
}
