package config

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/MrWong99/voicecli/pkg/provider/llm"
	"github.com/MrWong99/voicecli/pkg/provider/stt"
)

// ErrProviderNotRegistered is returned when a config entry names a provider
// that has no factory.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// factories is a name-keyed constructor table for one provider kind. Names
// are matched case-insensitively.
type factories[P any] struct {
	kind   string
	byName map[string]func(ProviderEntry) (P, error)
}

func (f *factories[P]) create(entry ProviderEntry) (P, error) {
	factory, ok := f.byName[strings.ToLower(entry.Name)]
	if !ok {
		var zero P
		return zero, fmt.Errorf("%w: %s/%q (known: %s)", ErrProviderNotRegistered,
			f.kind, entry.Name, strings.Join(slices.Sorted(maps.Keys(f.byName)), ", "))
	}
	return factory(entry)
}

// Registry holds the speech engine and language model factories the daemon
// builds its providers from. It is safe for concurrent use.
type Registry struct {
	mu  sync.RWMutex
	stt factories[stt.Provider]
	llm factories[llm.Provider]
}

// NewRegistry returns an empty [Registry].
func NewRegistry() *Registry {
	return &Registry{
		stt: factories[stt.Provider]{kind: "stt", byName: map[string]func(ProviderEntry) (stt.Provider, error){}},
		llm: factories[llm.Provider]{kind: "llm", byName: map[string]func(ProviderEntry) (llm.Provider, error){}},
	}
}

// RegisterSTT adds or replaces the speech engine factory for name.
func (r *Registry) RegisterSTT(name string, factory func(ProviderEntry) (stt.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stt.byName[strings.ToLower(name)] = factory
}

// RegisterLLM adds or replaces the language model factory for name.
func (r *Registry) RegisterLLM(name string, factory func(ProviderEntry) (llm.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llm.byName[strings.ToLower(name)] = factory
}

// CreateSTT builds the speech engine for entry.Name.
func (r *Registry) CreateSTT(entry ProviderEntry) (stt.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stt.create(entry)
}

// CreateLLM builds the language model for entry.Name.
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.llm.create(entry)
}
