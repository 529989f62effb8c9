package hotkeys

import (
	"io"
	"log/slog"
	"reflect"
	"testing"
)

type nopActions struct{}

func (nopActions) Cancel()  {}
func (nopActions) Undo()    {}
func (nopActions) Trigger() {}

func TestNew_RequiresActions(t *testing.T) {
	t.Parallel()
	if _, err := New(Config{}, nil, nil); err == nil {
		t.Error("New with nil actions succeeded")
	}
}

func TestNew_AppliesDefaults(t *testing.T) {
	t.Parallel()
	l, err := New(Config{}, nopActions{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !reflect.DeepEqual(l.cfg.Cancel, DefaultCancel) {
		t.Errorf("cancel chord = %v, want %v", l.cfg.Cancel, DefaultCancel)
	}
	if !reflect.DeepEqual(l.cfg.Undo, DefaultUndo) {
		t.Errorf("undo chord = %v, want %v", l.cfg.Undo, DefaultUndo)
	}
	if !reflect.DeepEqual(l.cfg.Trigger, DefaultTrigger) {
		t.Errorf("trigger chord = %v, want %v", l.cfg.Trigger, DefaultTrigger)
	}
}

func TestNew_NormalizesAndKeepsUnbound(t *testing.T) {
	t.Parallel()
	cfg := Config{
		Cancel:  []string{" Ctrl ", "ALT", "c"},
		Undo:    []string{}, // explicitly unbound
		Trigger: []string{"F9"},
	}
	l, err := New(cfg, nopActions{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if want := []string{"ctrl", "alt", "c"}; !reflect.DeepEqual(l.cfg.Cancel, want) {
		t.Errorf("cancel chord = %v, want %v", l.cfg.Cancel, want)
	}
	if len(l.cfg.Undo) != 0 {
		t.Errorf("undo chord = %v, want unbound", l.cfg.Undo)
	}
	if want := []string{"f9"}; !reflect.DeepEqual(l.cfg.Trigger, want) {
		t.Errorf("trigger chord = %v, want %v", l.cfg.Trigger, want)
	}
}
