// Package config provides the configuration schema, loader, and provider
// registry for the Sotto dictation engine.
package config

import (
	"time"

	"github.com/sotto-app/sotto/internal/engine"
	"github.com/sotto-app/sotto/internal/hotkeys"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for Sotto.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	// LogLevel controls verbosity. Empty means info.
	LogLevel LogLevel `yaml:"log_level"`

	Dictation DictationConfig `yaml:"dictation"`
	Providers ProvidersConfig `yaml:"providers"`
	Overlay   OverlayConfig   `yaml:"overlay"`
	Hotkeys   hotkeys.Config  `yaml:"hotkeys"`
}

// DictationConfig holds the dictation behaviour settings that the engine
// consumes. Durations are expressed in milliseconds.
type DictationConfig struct {
	// Enabled starts the engine armed. The tray toggle changes this at
	// runtime without touching the file.
	Enabled bool `yaml:"enabled"`

	// Microphone names the capture device. Empty means the system default.
	Microphone string `yaml:"microphone"`

	// WakePhrase is the phrase that opens a dictation session.
	WakePhrase string `yaml:"wake_phrase"`

	// Sensitivity tunes wake-word and speech detection in (0, 1].
	// 0 means the built-in default.
	Sensitivity float64 `yaml:"sensitivity"`

	// SilenceTimeoutMs is how long dictation may stay silent before the
	// session finalizes. 0 means the built-in default.
	SilenceTimeoutMs int `yaml:"silence_timeout_ms"`

	// FinalizeGraceMs bounds how long the engine waits for the final
	// transcript after silence. 0 means the built-in default.
	FinalizeGraceMs int `yaml:"finalize_grace_ms"`

	// FrameBuffer is the audio fan-out capacity in frames.
	// 0 means the built-in default.
	FrameBuffer int `yaml:"frame_buffer"`
}

// Settings converts the file representation into [engine.Settings].
// Zero-valued fields keep the engine defaults.
func (d DictationConfig) Settings() engine.Settings {
	return engine.Settings{
		Enabled:        d.Enabled,
		Microphone:     d.Microphone,
		WakePhrase:     d.WakePhrase,
		Sensitivity:    d.Sensitivity,
		SilenceTimeout: time.Duration(d.SilenceTimeoutMs) * time.Millisecond,
		FinalizeGrace:  time.Duration(d.FinalizeGraceMs) * time.Millisecond,
		FrameBuffer:    d.FrameBuffer,
	}
}

// ProvidersConfig declares which provider implementation to use for each
// pipeline stage. Each field selects a named provider registered in the
// [Registry].
type ProvidersConfig struct {
	Audio     ProviderEntry `yaml:"audio"`
	Wake      ProviderEntry `yaml:"wake"`
	VAD       ProviderEntry `yaml:"vad"`
	STT       ProviderEntry `yaml:"stt"`
	Injection ProviderEntry `yaml:"injection"`
}

// ProviderEntry is the common configuration block shared by all provider
// kinds. The Name field is used to look up the constructor in the [Registry].
// There is deliberately no API key or endpoint field: every provider runs
// on the local machine.
type ProviderEntry struct {
	// Name selects the registered provider implementation
	// (e.g., "whisper-native", "ffmpeg").
	Name string `yaml:"name"`

	// Model is the path to the provider's model file, for providers that
	// load one (e.g., a whisper GGML file).
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by
	// the standard fields above.
	Options map[string]any `yaml:"options"`
}

// OverlayConfig holds settings for the overlay/tray bridge.
type OverlayConfig struct {
	// ListenAddr is the loopback TCP address the bridge listens on.
	// Defaults to DefaultListenAddr. Non-loopback addresses are rejected:
	// dictated text crosses this socket.
	ListenAddr string `yaml:"listen_addr"`

	// BusCapacity is the per-subscriber event buffer. 0 means the
	// built-in default.
	BusCapacity int `yaml:"bus_capacity"`
}

// DefaultListenAddr is the bridge address used when overlay.listen_addr is
// not set.
const DefaultListenAddr = "127.0.0.1:8849"
