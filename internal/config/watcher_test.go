package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func TestWatcher_InitialLoad(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, "dictation:\n  wake_phrase: hey sotto\n")

	w, err := NewWatcher(path, nil, WithInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	if got := w.Current().Dictation.WakePhrase; got != "hey sotto" {
		t.Errorf("wake phrase = %q, want %q", got, "hey sotto")
	}
}

func TestWatcher_InitialLoadFailsOnInvalidConfig(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, "log_level: verbose\n")

	if _, err := NewWatcher(path, nil); err == nil {
		t.Error("NewWatcher accepted an invalid config")
	}
}

func TestWatcher_DetectsChange(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, "dictation:\n  silence_timeout_ms: 1000\n")

	changed := make(chan *Config, 1)
	w, err := NewWatcher(path, func(_, new *Config) {
		changed <- new
	}, WithInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	writeConfig(t, path, "dictation:\n  silence_timeout_ms: 2000\n")

	select {
	case cfg := <-changed:
		if cfg.Dictation.SilenceTimeoutMs != 2000 {
			t.Errorf("reloaded silence_timeout_ms = %d, want 2000", cfg.Dictation.SilenceTimeoutMs)
		}
		if w.Current().Dictation.SilenceTimeoutMs != 2000 {
			t.Error("Current() not updated after reload")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("change not detected")
	}
}

func TestWatcher_KeepsOldConfigWhenNewIsInvalid(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, "dictation:\n  silence_timeout_ms: 1000\n")

	changed := make(chan struct{}, 1)
	w, err := NewWatcher(path, func(_, _ *Config) {
		changed <- struct{}{}
	}, WithInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	writeConfig(t, path, "log_level: verbose\n")

	select {
	case <-changed:
		t.Fatal("invalid config triggered onChange")
	case <-time.After(200 * time.Millisecond):
	}
	if w.Current().Dictation.SilenceTimeoutMs != 1000 {
		t.Error("Current() replaced by an invalid config")
	}
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, "dictation: {}\n")

	w, err := NewWatcher(path, nil)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	w.Stop()
	w.Stop()
}
