package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sotto-app/sotto/pkg/audio"
	"github.com/sotto-app/sotto/pkg/provider/inject"
	"github.com/sotto-app/sotto/pkg/provider/stt"
	"github.com/sotto-app/sotto/pkg/provider/vad"
	"github.com/sotto-app/sotto/pkg/provider/wake"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory
// has been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructor functions for each
// provider kind. It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	audio     map[string]func(ProviderEntry) (audio.Source, error)
	wake      map[string]func(ProviderEntry) (wake.Detector, error)
	vad       map[string]func(ProviderEntry) (vad.Classifier, error)
	stt       map[string]func(ProviderEntry) (stt.Engine, error)
	injection map[string]func(ProviderEntry) (inject.Injector, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		audio:     make(map[string]func(ProviderEntry) (audio.Source, error)),
		wake:      make(map[string]func(ProviderEntry) (wake.Detector, error)),
		vad:       make(map[string]func(ProviderEntry) (vad.Classifier, error)),
		stt:       make(map[string]func(ProviderEntry) (stt.Engine, error)),
		injection: make(map[string]func(ProviderEntry) (inject.Injector, error)),
	}
}

// RegisterAudio registers an audio source factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterAudio(name string, factory func(ProviderEntry) (audio.Source, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.audio[name] = factory
}

// RegisterWake registers a wake-word detector factory under name.
func (r *Registry) RegisterWake(name string, factory func(ProviderEntry) (wake.Detector, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.wake[name] = factory
}

// RegisterVAD registers a voice-activity classifier factory under name.
func (r *Registry) RegisterVAD(name string, factory func(ProviderEntry) (vad.Classifier, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vad[name] = factory
}

// RegisterSTT registers a transcription engine factory under name.
func (r *Registry) RegisterSTT(name string, factory func(ProviderEntry) (stt.Engine, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stt[name] = factory
}

// RegisterInjection registers a text injector factory under name.
func (r *Registry) RegisterInjection(name string, factory func(ProviderEntry) (inject.Injector, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.injection[name] = factory
}

// CreateAudio instantiates an audio source using the factory registered
// under entry.Name. Returns [ErrProviderNotRegistered] if no factory has
// been registered for that name.
func (r *Registry) CreateAudio(entry ProviderEntry) (audio.Source, error) {
	r.mu.RLock()
	factory, ok := r.audio[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: audio/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateWake instantiates a wake-word detector using the factory registered
// under entry.Name.
func (r *Registry) CreateWake(entry ProviderEntry) (wake.Detector, error) {
	r.mu.RLock()
	factory, ok := r.wake[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: wake/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateVAD instantiates a voice-activity classifier using the factory
// registered under entry.Name.
func (r *Registry) CreateVAD(entry ProviderEntry) (vad.Classifier, error) {
	r.mu.RLock()
	factory, ok := r.vad[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: vad/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateSTT instantiates a transcription engine using the factory
// registered under entry.Name.
func (r *Registry) CreateSTT(entry ProviderEntry) (stt.Engine, error) {
	r.mu.RLock()
	factory, ok := r.stt[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: stt/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateInjection instantiates a text injector using the factory registered
// under entry.Name.
func (r *Registry) CreateInjection(entry ProviderEntry) (inject.Injector, error) {
	r.mu.RLock()
	factory, ok := r.injection[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: injection/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}
