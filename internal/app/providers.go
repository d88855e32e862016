package app

import (
	"errors"
	"fmt"
	"log/slog"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/voicecli/internal/config"
	"github.com/MrWong99/voicecli/internal/resilience"
	"github.com/MrWong99/voicecli/pkg/provider/llm"
	"github.com/MrWong99/voicecli/pkg/provider/llm/anyllm"
	oaillm "github.com/MrWong99/voicecli/pkg/provider/llm/openai"
	"github.com/MrWong99/voicecli/pkg/provider/stt"
	"github.com/MrWong99/voicecli/pkg/provider/stt/deepgram"
	"github.com/MrWong99/voicecli/pkg/provider/stt/groq"
	"github.com/MrWong99/voicecli/pkg/provider/stt/whisper"
)

// Providers holds the constructed engines and the arbitration model.
type Providers struct {
	EngineA stt.Provider
	EngineB stt.Provider
	Merger  llm.Provider
}

// RegisterBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry with credentials already
// resolved and constructs the provider from its implementation package.
func RegisterBuiltinProviders(reg *config.Registry) {
	// ── LLM ───────────────────────────────────────────────────────────────────
	// Hosted any-llm backends share the same pattern: optional APIKey plus
	// optional BaseURL.
	for _, providerName := range []string{
		"groq", "anthropic", "gemini", "deepseek", "mistral", "llamacpp", "llamafile",
	} {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterLLM("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New("ollama", entry.Model, opts...)
	})

	// openai talks to the chat completions API directly, so any compatible
	// server can be targeted through base_url.
	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []oaillm.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaillm.WithBaseURL(entry.BaseURL))
		}
		if org := optString(entry.Options, "organization"); org != "" {
			opts = append(opts, oaillm.WithOrganization(org))
		}
		return oaillm.New(entry.APIKey, entry.Model, opts...)
	})

	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("groq", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []groq.Option
		if entry.Model != "" {
			opts = append(opts, groq.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, groq.WithBaseURL(entry.BaseURL))
		}
		return groq.New(entry.APIKey, opts...)
	})

	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(entry.BaseURL))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	for _, name := range config.ValidProviderNames["stt"] {
		slog.Debug("registered provider", "kind", "stt", "name", name)
	}
	for _, name := range config.ValidProviderNames["llm"] {
		slog.Debug("registered provider", "kind", "llm", "name", name)
	}
}

// BuildProviders instantiates both engines and the merger named in cfg. Each
// engine is wrapped in its own circuit breaker so a dead engine fails fast
// and the other one carries the session. breaker is the template for both
// breakers; its Name is set per slot.
func BuildProviders(cfg *config.Config, reg *config.Registry, breaker resilience.CircuitBreakerConfig) (*Providers, error) {
	var errs []error
	ps := &Providers{}

	for _, slot := range []struct {
		name  string
		entry config.ProviderEntry
		dst   *stt.Provider
	}{
		{"engine_a", cfg.Transcription.EngineA, &ps.EngineA},
		{"engine_b", cfg.Transcription.EngineB, &ps.EngineB},
	} {
		p, err := reg.CreateSTT(cfg.Credentials(slot.entry))
		if err != nil {
			errs = append(errs, fmt.Errorf("create %s provider %q: %w", slot.name, slot.entry.Name, err))
			continue
		}
		bc := breaker
		bc.Name = slot.name + "/" + slot.entry.Name
		*slot.dst = resilience.Guard(p, bc)
		slog.Info("provider created", "kind", "stt", "slot", slot.name, "name", slot.entry.Name)
	}

	m, err := reg.CreateLLM(cfg.Credentials(cfg.Merger))
	if err != nil {
		errs = append(errs, fmt.Errorf("create merger provider %q: %w", cfg.Merger.Name, err))
	} else {
		ps.Merger = m
		slog.Info("provider created", "kind", "llm", "slot", "merger", "name", cfg.Merger.Name)
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return ps, nil
}

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	s, _ := opts[key].(string)
	return s
}
