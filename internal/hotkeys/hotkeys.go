// Package hotkeys binds global keyboard shortcuts to dictation actions.
// Shortcuts work regardless of which application has focus, so a session
// can be cancelled without reaching for the overlay.
package hotkeys

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	hook "github.com/robotn/gohook"
)

// Default chords. Escape alone is deliberately not bound: it is too common
// a keystroke to hijack globally.
var (
	DefaultCancel  = []string{"ctrl", "shift", "escape"}
	DefaultUndo    = []string{"ctrl", "shift", "z"}
	DefaultTrigger = []string{"ctrl", "shift", "space"}
)

// Config names the chord for each action. An empty chord leaves the action
// unbound; a nil field takes the default.
type Config struct {
	// Cancel discards the live session and rolls injected text back.
	Cancel []string `yaml:"cancel"`

	// Undo removes the most recent completed injection.
	Undo []string `yaml:"undo"`

	// Trigger starts a session without the wake phrase.
	Trigger []string `yaml:"trigger"`
}

func (c Config) withDefaults() Config {
	if c.Cancel == nil {
		c.Cancel = DefaultCancel
	}
	if c.Undo == nil {
		c.Undo = DefaultUndo
	}
	if c.Trigger == nil {
		c.Trigger = DefaultTrigger
	}
	return c
}

// Actions is the engine surface the listener drives. *engine.Engine
// satisfies it.
type Actions interface {
	Cancel()
	Undo()
	Trigger()
}

// Listener registers the configured chords with the OS-global keyboard
// hook and dispatches matches to Actions.
type Listener struct {
	cfg     Config
	actions Actions
	log     *slog.Logger
}

// New creates a Listener. Chords are normalised to lower case.
func New(cfg Config, actions Actions, log *slog.Logger) (*Listener, error) {
	if actions == nil {
		return nil, errors.New("hotkeys: actions are required")
	}
	if log == nil {
		log = slog.Default()
	}
	cfg = cfg.withDefaults()
	cfg.Cancel = normalize(cfg.Cancel)
	cfg.Undo = normalize(cfg.Undo)
	cfg.Trigger = normalize(cfg.Trigger)
	return &Listener{cfg: cfg, actions: actions, log: log}, nil
}

func normalize(chord []string) []string {
	out := make([]string, 0, len(chord))
	for _, key := range chord {
		key = strings.ToLower(strings.TrimSpace(key))
		if key != "" {
			out = append(out, key)
		}
	}
	return out
}

// Run installs the global hook and blocks until ctx is done. The hook is
// process-wide, so at most one Listener may run at a time.
func (l *Listener) Run(ctx context.Context) error {
	l.register(l.cfg.Cancel, "cancel", l.actions.Cancel)
	l.register(l.cfg.Undo, "undo", l.actions.Undo)
	l.register(l.cfg.Trigger, "trigger", l.actions.Trigger)

	events := hook.Start()
	defer hook.End()

	done := make(chan struct{})
	go func() {
		defer close(done)
		<-hook.Process(events)
	}()

	select {
	case <-ctx.Done():
		hook.End()
		<-done
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (l *Listener) register(chord []string, action string, fn func()) {
	if len(chord) == 0 {
		return
	}
	l.log.Debug("hotkey bound", "action", action, "chord", strings.Join(chord, "+"))
	hook.Register(hook.KeyDown, chord, func(hook.Event) {
		l.log.Debug("hotkey pressed", "action", action)
		fn()
	})
}
