// Command sotto is the Sotto dictation engine: wake-word activated,
// fully local speech-to-text that types into whatever control has focus.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sotto-app/sotto/internal/config"
	"github.com/sotto-app/sotto/internal/engine"
	"github.com/sotto-app/sotto/internal/health"
	"github.com/sotto-app/sotto/internal/hotkeys"
	"github.com/sotto-app/sotto/internal/observe"
	"github.com/sotto-app/sotto/internal/overlay"
	"github.com/sotto-app/sotto/internal/overlay/bridge"
	"github.com/sotto-app/sotto/internal/permissions"
	"github.com/sotto-app/sotto/pkg/audio"
	"github.com/sotto-app/sotto/pkg/audio/ffmpeg"
	"github.com/sotto-app/sotto/pkg/provider/inject"
	"github.com/sotto-app/sotto/pkg/provider/inject/oskbd"
	"github.com/sotto-app/sotto/pkg/provider/stt"
	"github.com/sotto-app/sotto/pkg/provider/stt/whisper"
	"github.com/sotto-app/sotto/pkg/provider/vad"
	"github.com/sotto-app/sotto/pkg/provider/vad/energy"
	"github.com/sotto-app/sotto/pkg/provider/wake"
	"github.com/sotto-app/sotto/pkg/provider/wake/whisperkws"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Logger ────────────────────────────────────────────────────────────────
	// The level lives in a LevelVar so config reloads can adjust it live.
	level := &slog.LevelVar{}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	// ── Configuration (watched for changes) ───────────────────────────────────
	// The watcher callback runs on its own goroutine before the engine
	// exists, so it reads the engine through an atomic pointer.
	var engPtr atomic.Pointer[engine.Engine]
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		applyReload(level, &engPtr, old, new)
	})
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "sotto: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "sotto: %v\n", err)
		}
		return 1
	}
	defer watcher.Stop()

	cfg := watcher.Current()
	level.Set(logLevel(cfg.LogLevel))

	slog.Info("sotto starting",
		"version", version,
		"config", *configPath,
		"overlay_addr", cfg.Overlay.ListenAddr,
		"log_level", cfg.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg, cfg)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Engine + surfaces ─────────────────────────────────────────────────────
	bus := overlay.NewBus(cfg.Overlay.BusCapacity)
	defer bus.Close()

	eng, err := engine.New(cfg.Dictation.Settings(), providers, bus, engine.WithLogger(logger))
	if err != nil {
		slog.Error("failed to initialise engine", "err", err)
		return 1
	}
	engPtr.Store(eng)

	prober := permissions.NewProber()
	br, err := bridge.New(eng, bus,
		bridge.WithLogger(logger),
		bridge.WithChecker(prober),
		bridge.WithHealthCheckers(
			health.Permissions(prober),
			health.AudioDevices(providers.Source),
		),
	)
	if err != nil {
		slog.Error("failed to initialise overlay bridge", "err", err)
		return 1
	}

	keys, err := hotkeys.New(cfg.Hotkeys, eng, logger)
	if err != nil {
		slog.Error("failed to initialise hotkeys", "err", err)
		return 1
	}

	// ── Initial permission probe ──────────────────────────────────────────────
	// The engine stays disarmed until this lands; the overlay can re-probe
	// after the user grants access.
	go func() {
		status, err := prober.Check(ctx)
		if err != nil {
			slog.Warn("permission probe failed", "err", err)
		}
		slog.Info("permissions probed",
			"microphone", status.Microphone,
			"accessibility", status.Accessibility,
		)
		eng.PermissionsChecked(status)
	}()

	slog.Info("sotto ready", "overlay_addr", cfg.Overlay.ListenAddr)

	// ── Run ───────────────────────────────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return eng.Run(gctx) })
	g.Go(func() error { return br.Serve(gctx, cfg.Overlay.ListenAddr) })
	g.Go(func() error { return keys.Run(gctx) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// applyReload pushes hot-reloadable config changes into the running process.
func applyReload(level *slog.LevelVar, engPtr *atomic.Pointer[engine.Engine], old, new *config.Config) {
	d := config.Diff(old, new)
	if !d.Changed() {
		return
	}
	if d.LogLevelChanged {
		level.Set(logLevel(d.NewLogLevel))
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.DictationChanged {
		if eng := engPtr.Load(); eng != nil {
			eng.ApplySettings(new.Dictation.Settings())
			slog.Info("dictation settings reloaded")
		}
	}
	if d.RestartRequired {
		slog.Warn("provider, overlay, or hotkey configuration changed — restart sotto to apply")
	}
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in provider factories into reg.
// Factories close over cfg for settings that live outside the provider
// entry, like the wake phrase.
func registerBuiltinProviders(reg *config.Registry, cfg *config.Config) {
	reg.RegisterAudio("ffmpeg", func(entry config.ProviderEntry) (audio.Source, error) {
		var opts []ffmpeg.Option
		if cmd := optString(entry.Options, "command"); cmd != "" {
			opts = append(opts, ffmpeg.WithCommand(cmd))
		}
		if format := optString(entry.Options, "input_format"); format != "" {
			opts = append(opts, ffmpeg.WithInputFormat(format))
		}
		return ffmpeg.New(opts...), nil
	})

	reg.RegisterWake("whisper-kws", func(entry config.ProviderEntry) (wake.Detector, error) {
		var opts []whisperkws.Option
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisperkws.WithLanguage(lang))
		}
		sensitivity := cfg.Dictation.Sensitivity
		if sensitivity == 0 {
			sensitivity = engine.DefaultSensitivity
		}
		return whisperkws.New(entry.Model, cfg.Dictation.WakePhrase, sensitivity, opts...)
	})

	reg.RegisterVAD("energy", func(config.ProviderEntry) (vad.Classifier, error) {
		return energy.New(), nil
	})

	reg.RegisterSTT("whisper-native", func(entry config.ProviderEntry) (stt.Engine, error) {
		var opts []whisper.Option
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.New(entry.Model, opts...)
	})

	reg.RegisterInjection("oskbd", func(config.ProviderEntry) (inject.Injector, error) {
		return oskbd.New(), nil
	})

	for kind, names := range config.ValidProviderNames {
		for _, name := range names {
			slog.Debug("registered provider", "kind", kind, "name", name)
		}
	}
}

// buildProviders instantiates all providers named in cfg using the registry
// and returns them in an [engine.Providers] struct. Unlike a server with
// optional stages, every stage of the dictation pipeline is required, so
// missing names fall back to the defaults.
func buildProviders(cfg *config.Config, reg *config.Registry) (engine.Providers, error) {
	var p engine.Providers
	var err error

	if p.Source, err = reg.CreateAudio(orDefault(cfg.Providers.Audio, "ffmpeg")); err != nil {
		return p, fmt.Errorf("create audio provider: %w", err)
	}
	if p.Wake, err = reg.CreateWake(orDefault(cfg.Providers.Wake, "whisper-kws")); err != nil {
		return p, fmt.Errorf("create wake provider: %w", err)
	}
	if p.VAD, err = reg.CreateVAD(orDefault(cfg.Providers.VAD, "energy")); err != nil {
		return p, fmt.Errorf("create vad provider: %w", err)
	}
	if p.STT, err = reg.CreateSTT(orDefault(cfg.Providers.STT, "whisper-native")); err != nil {
		return p, fmt.Errorf("create stt provider: %w", err)
	}
	if p.Injector, err = reg.CreateInjection(orDefault(cfg.Providers.Injection, "oskbd")); err != nil {
		return p, fmt.Errorf("create injection provider: %w", err)
	}

	slog.Info("providers created",
		"audio", orDefault(cfg.Providers.Audio, "ffmpeg").Name,
		"wake", orDefault(cfg.Providers.Wake, "whisper-kws").Name,
		"vad", orDefault(cfg.Providers.VAD, "energy").Name,
		"stt", orDefault(cfg.Providers.STT, "whisper-native").Name,
		"injection", orDefault(cfg.Providers.Injection, "oskbd").Name,
	)
	return p, nil
}

// orDefault fills in the default provider name when the entry leaves it
// empty.
func orDefault(entry config.ProviderEntry, name string) config.ProviderEntry {
	if entry.Name == "" {
		entry.Name = name
	}
	return entry
}

// ── Helpers ───────────────────────────────────────────────────────────────────

func logLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a
// string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	v, ok := opts[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}
