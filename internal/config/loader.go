package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/voicecli/internal/atomicfile"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm": {"groq", "openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "llamacpp", "llamafile"},
	"stt": {"groq", "deepgram", "whisper"},
}

// Environment variables that override values from the config file.
const (
	EnvGroqAPIKey     = "VOICE_CLI_GROQ_API_KEY"
	EnvDeepgramAPIKey = "VOICE_CLI_DEEPGRAM_API_KEY"
	EnvLogLevel       = "LOG_LEVEL"
)

// Load reads the YAML configuration file at path and returns a validated [Config].
// A missing file yields [Default]. Environment overrides are applied before
// validation.
func Load(path string) (*Config, error) {
	cfg, err := readFile(path)
	if err != nil {
		return nil, err
	}
	applyEnv(cfg)
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config: invalid %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r on top of [Default] and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg, err := decode(r)
	if err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadRaw reads path without env overrides or validation. Commands that
// rewrite the file use it so that environment secrets are never persisted.
func LoadRaw(path string) (*Config, error) {
	return readFile(path)
}

func readFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := decode(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

func decode(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvGroqAPIKey); v != "" {
		cfg.APIKeys.Groq = v
	}
	if v := os.Getenv(EnvDeepgramAPIKey); v != "" {
		cfg.APIKeys.Deepgram = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.LogLevel = LogLevel(strings.ToLower(v))
	}
}

// Save validates cfg and writes it to path atomically with mode 0600.
func Save(path string, cfg *Config) error {
	if err := Validate(cfg); err != nil {
		return err
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("config: encode yaml: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("config: encode yaml: %w", err)
	}
	if err := atomicfile.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("config: save: %w", err)
	}
	return nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.LogLevel != "" && !cfg.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("log_level %q is invalid; valid values: debug, info, warn, error", cfg.LogLevel))
	}

	if cfg.APIKeys.Groq != "" && !strings.HasPrefix(cfg.APIKeys.Groq, "gsk_") {
		errs = append(errs, errors.New("api_keys.groq: Groq API key must start with 'gsk_'"))
	}

	if cfg.Behavior.MinDuration < 0 {
		errs = append(errs, fmt.Errorf("behavior.min_duration %.2f must not be negative", cfg.Behavior.MinDuration))
	}

	if n := len(cfg.Transcription.BoostWords); n > MaxBoostWords {
		errs = append(errs, fmt.Errorf("transcription.boost_words has %d entries; at most %d are allowed", n, MaxBoostWords))
	}
	for i, w := range cfg.Transcription.BoostWords {
		if strings.TrimSpace(w) == "" {
			errs = append(errs, fmt.Errorf("transcription.boost_words[%d] is empty", i))
		}
	}

	for key, entry := range map[string]ProviderEntry{
		"transcription.engine_a": cfg.Transcription.EngineA,
		"transcription.engine_b": cfg.Transcription.EngineB,
	} {
		if entry.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", key))
			continue
		}
		validateProviderName("stt", entry.Name)
	}

	if cfg.Merger.Name == "" {
		errs = append(errs, errors.New("merger.name is required"))
	} else {
		validateProviderName("llm", cfg.Merger.Name)
	}

	return errors.Join(errs...)
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
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
