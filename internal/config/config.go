// Package config provides the configuration schema, loader, and provider registry
// for the voice-cli dictation daemon.
package config

import (
	"os"
	"path/filepath"
	"strings"
)

// LogLevel controls log verbosity for the daemon and the CLI.
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

// MaxBoostWords is the largest custom vocabulary the engines accept.
const MaxBoostWords = 450

// Well-known file names inside the config directory.
const (
	ConfigFileName = "config.yaml"
	PIDFileName    = "daemon.pid"
	StateFileName  = "daemon.state"
	SocketFileName = "daemon.sock"
	StatsFileName  = "stats.json"
)

// Config is the root configuration structure for voice-cli.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	LogLevel      LogLevel            `yaml:"log_level"`
	APIKeys       APIKeys             `yaml:"api_keys"`
	Behavior      BehaviorConfig      `yaml:"behavior"`
	Transcription TranscriptionConfig `yaml:"transcription"`

	// Merger selects the language model that arbitrates between the two
	// engine transcripts.
	Merger ProviderEntry `yaml:"merger"`

	Paths  PathsConfig  `yaml:"paths"`
	Daemon DaemonConfig `yaml:"daemon"`
}

// APIKeys holds credentials shared by provider entries that do not carry
// their own api_key.
type APIKeys struct {
	Groq     string `yaml:"groq"`
	Deepgram string `yaml:"deepgram"`
	OpenAI   string `yaml:"openai"`
}

// BehaviorConfig tunes how a dictation session feels to the user.
type BehaviorConfig struct {
	// Hotkey is informational; the compositor binds it to `voice-cli toggle`.
	Hotkey string `yaml:"hotkey"`

	// ToggleMode keeps one key for both start and stop.
	ToggleMode bool `yaml:"toggle_mode"`

	// AudioDevice is the capture device passed to the recorder ("default" for
	// the system default).
	AudioDevice string `yaml:"audio_device"`

	// MinDuration is the shortest clip, in seconds, that is sent for
	// transcription. Shorter recordings are discarded.
	MinDuration float64 `yaml:"min_duration"`

	// Notifications enables desktop notifications.
	Notifications bool `yaml:"notifications"`

	Clipboard ClipboardConfig `yaml:"clipboard"`
}

// ClipboardConfig controls clipboard delivery.
type ClipboardConfig struct {
	// Append joins new transcripts onto the existing clipboard content instead
	// of replacing it.
	Append bool `yaml:"append"`
}

// TranscriptionConfig selects the two speech engines and their shared
// recognition hints.
type TranscriptionConfig struct {
	// Language is the BCP-47 code sent to both engines.
	Language string `yaml:"language"`

	// BoostWords is the custom vocabulary forwarded to both engines.
	BoostWords []string `yaml:"boost_words"`

	// VocabularyCorrection rewrites words in the final transcript that sound
	// like a boost word but are spelled differently.
	VocabularyCorrection bool `yaml:"vocabulary_correction"`

	// EngineA is labelled first during arbitration.
	EngineA ProviderEntry `yaml:"engine_a"`

	// EngineB is the fallback transcript when arbitration fails.
	EngineB ProviderEntry `yaml:"engine_b"`
}

// ProviderEntry is the common configuration shape for every provider slot.
type ProviderEntry struct {
	// Name selects the provider implementation (e.g., "groq", "deepgram", "whisper").
	Name string `yaml:"name"`

	// APIKey overrides the matching value from [APIKeys].
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects the model or voice variant.
	Model string `yaml:"model"`

	// Options holds provider-specific settings not covered above.
	Options map[string]any `yaml:"options"`
}

// PathsConfig holds filesystem locations.
type PathsConfig struct {
	// Logs is the directory for daily JSON log files.
	Logs string `yaml:"logs"`
}

// DaemonConfig holds settings for the long-running worker.
type DaemonConfig struct {
	// DiagnosticsAddr, when set, serves /healthz, /readyz and /metrics on this
	// TCP address (e.g., "127.0.0.1:9464").
	DiagnosticsAddr string `yaml:"diagnostics_addr"`

	// Socket overrides the control socket path.
	Socket string `yaml:"socket"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		LogLevel: LogInfo,
		Behavior: BehaviorConfig{
			Hotkey:        "Right Control",
			ToggleMode:    true,
			AudioDevice:   "default",
			MinDuration:   0.5,
			Notifications: true,
			Clipboard:     ClipboardConfig{Append: true},
		},
		Transcription: TranscriptionConfig{
			Language:   "en",
			BoostWords: []string{},
			EngineA:    ProviderEntry{Name: "groq", Model: "whisper-large-v3-turbo"},
			EngineB:    ProviderEntry{Name: "deepgram", Model: "nova-3"},
		},
		Merger: ProviderEntry{Name: "groq", Model: "llama-3.3-70b-versatile"},
		Paths:  PathsConfig{Logs: filepath.Join(Dir(), "logs")},
	}
}

// Dir returns the voice-cli configuration directory. VOICE_CLI_CONFIG_DIR
// overrides the default of ~/.config/voice-cli.
func Dir() string {
	if d := os.Getenv("VOICE_CLI_CONFIG_DIR"); d != "" {
		return d
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".config", "voice-cli")
}

// DefaultPath returns the default config file location.
func DefaultPath() string { return filepath.Join(Dir(), ConfigFileName) }

// PIDPath returns the daemon pid file location.
func PIDPath() string { return filepath.Join(Dir(), PIDFileName) }

// StatePath returns the daemon state snapshot location.
func StatePath() string { return filepath.Join(Dir(), StateFileName) }

// StatsPath returns the transcription statistics file location.
func StatsPath() string { return filepath.Join(Dir(), StatsFileName) }

// SocketPath returns the control socket location for cfg.
func (c *Config) SocketPath() string {
	if c.Daemon.Socket != "" {
		return expandHome(c.Daemon.Socket)
	}
	return filepath.Join(Dir(), SocketFileName)
}

// LogDir returns the log directory with a leading ~ expanded.
func (c *Config) LogDir() string {
	if c.Paths.Logs == "" {
		return filepath.Join(Dir(), "logs")
	}
	return expandHome(c.Paths.Logs)
}

// Credentials returns e with APIKey filled from the shared [APIKeys] when the
// entry does not carry its own key.
func (c *Config) Credentials(e ProviderEntry) ProviderEntry {
	if e.APIKey != "" {
		return e
	}
	switch strings.ToLower(e.Name) {
	case "groq":
		e.APIKey = c.APIKeys.Groq
	case "deepgram":
		e.APIKey = c.APIKeys.Deepgram
	case "openai":
		e.APIKey = c.APIKeys.OpenAI
	}
	return e
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return p
		}
		return filepath.Join(home, strings.TrimPrefix(p, "~"))
	}
	return p
}
