package config

import (
	"errors"
	"testing"

	"github.com/sotto-app/sotto/pkg/provider/stt"
	sttmock "github.com/sotto-app/sotto/pkg/provider/stt/mock"
)

func TestRegistry_CreateUsesRegisteredFactory(t *testing.T) {
	t.Parallel()
	reg := NewRegistry()

	var gotEntry ProviderEntry
	reg.RegisterSTT("fake", func(entry ProviderEntry) (stt.Engine, error) {
		gotEntry = entry
		return &sttmock.Engine{}, nil
	})

	entry := ProviderEntry{Name: "fake", Model: "m.bin"}
	engine, err := reg.CreateSTT(entry)
	if err != nil {
		t.Fatalf("CreateSTT: %v", err)
	}
	if engine == nil {
		t.Fatal("CreateSTT returned nil engine")
	}
	if gotEntry.Model != "m.bin" {
		t.Errorf("factory received entry %+v", gotEntry)
	}
}

func TestRegistry_UnregisteredName(t *testing.T) {
	t.Parallel()
	reg := NewRegistry()

	_, err := reg.CreateWake(ProviderEntry{Name: "nope"})
	if !errors.Is(err, ErrProviderNotRegistered) {
		t.Errorf("err = %v, want ErrProviderNotRegistered", err)
	}
	_, err = reg.CreateInjection(ProviderEntry{Name: "nope"})
	if !errors.Is(err, ErrProviderNotRegistered) {
		t.Errorf("err = %v, want ErrProviderNotRegistered", err)
	}
}

func TestRegistry_ReRegistrationOverwrites(t *testing.T) {
	t.Parallel()
	reg := NewRegistry()

	reg.RegisterSTT("fake", func(ProviderEntry) (stt.Engine, error) {
		t.Fatal("stale factory invoked")
		return nil, nil
	})
	reg.RegisterSTT("fake", func(ProviderEntry) (stt.Engine, error) {
		return &sttmock.Engine{}, nil
	})

	if _, err := reg.CreateSTT(ProviderEntry{Name: "fake"}); err != nil {
		t.Fatalf("CreateSTT: %v", err)
	}
}
