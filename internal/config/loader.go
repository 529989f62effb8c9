package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"audio":     {"ffmpeg"},
	"wake":      {"whisper-kws"},
	"vad":       {"energy"},
	"stt":       {"whisper-native"},
	"injection": {"oskbd"},
}

// Providers that load a model file and therefore require the model field.
var modelRequired = map[string]bool{
	"whisper-kws":    true,
	"whisper-native": true,
}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if cfg.Overlay.ListenAddr == "" {
		cfg.Overlay.ListenAddr = DefaultListenAddr
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.LogLevel != "" && !cfg.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("log_level %q is invalid; valid values: debug, info, warn, error", cfg.LogLevel))
	}

	// Dictation
	if s := cfg.Dictation.Sensitivity; s != 0 && (s <= 0 || s > 1) {
		errs = append(errs, fmt.Errorf("dictation.sensitivity %.2f is out of range (0, 1]", s))
	}
	if cfg.Dictation.SilenceTimeoutMs < 0 {
		errs = append(errs, fmt.Errorf("dictation.silence_timeout_ms %d is negative", cfg.Dictation.SilenceTimeoutMs))
	}
	if cfg.Dictation.FinalizeGraceMs < 0 {
		errs = append(errs, fmt.Errorf("dictation.finalize_grace_ms %d is negative", cfg.Dictation.FinalizeGraceMs))
	}
	if cfg.Providers.Wake.Name != "" && cfg.Dictation.WakePhrase == "" {
		errs = append(errs, errors.New("dictation.wake_phrase is required when a wake provider is configured"))
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderName("audio", cfg.Providers.Audio.Name)
	validateProviderName("wake", cfg.Providers.Wake.Name)
	validateProviderName("vad", cfg.Providers.VAD.Name)
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("injection", cfg.Providers.Injection.Name)

	// Model paths for providers that load one.
	for kind, entry := range map[string]ProviderEntry{
		"wake": cfg.Providers.Wake,
		"stt":  cfg.Providers.STT,
	} {
		if modelRequired[entry.Name] && entry.Model == "" {
			errs = append(errs, fmt.Errorf("providers.%s.model is required for provider %q", kind, entry.Name))
		}
	}

	// Overlay bridge address must stay on the local machine.
	if addr := cfg.Overlay.ListenAddr; addr != "" {
		if err := validateLoopback(addr); err != nil {
			errs = append(errs, fmt.Errorf("overlay.listen_addr: %w", err))
		}
	}
	if cfg.Overlay.BusCapacity < 0 {
		errs = append(errs, fmt.Errorf("overlay.bus_capacity %d is negative", cfg.Overlay.BusCapacity))
	}

	return errors.Join(errs...)
}

// validateLoopback rejects addresses that would expose the overlay socket
// beyond the local machine.
func validateLoopback(addr string) error {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid address %q: %w", addr, err)
	}
	if host == "localhost" {
		return nil
	}
	ip := net.ParseIP(host)
	if ip == nil || !ip.IsLoopback() {
		return fmt.Errorf("%q is not a loopback address", addr)
	}
	return nil
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
