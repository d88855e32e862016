package config

import (
	"reflect"
	"slices"
)

// ConfigDiff describes what changed between two configs.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// TranscriptionChanged is true when language or boost words changed.
	// Both apply to the next session without a restart.
	TranscriptionChanged bool

	// BehaviorChanged covers recorder, clipboard and notification settings.
	BehaviorChanged bool

	// RestartRequired lists settings that only take effect after the daemon
	// is restarted (engines, merger, credentials, daemon section).
	RestartRequired []string
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.LogLevel != new.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.LogLevel
	}

	if old.Transcription.Language != new.Transcription.Language ||
		!slices.Equal(old.Transcription.BoostWords, new.Transcription.BoostWords) {
		d.TranscriptionChanged = true
	}

	if old.Behavior != new.Behavior {
		d.BehaviorChanged = true
	}

	if !sameEntry(old.Transcription.EngineA, new.Transcription.EngineA) {
		d.RestartRequired = append(d.RestartRequired, "transcription.engine_a")
	}
	if !sameEntry(old.Transcription.EngineB, new.Transcription.EngineB) {
		d.RestartRequired = append(d.RestartRequired, "transcription.engine_b")
	}
	if old.Transcription.VocabularyCorrection != new.Transcription.VocabularyCorrection {
		d.RestartRequired = append(d.RestartRequired, "transcription.vocabulary_correction")
	}
	if !sameEntry(old.Merger, new.Merger) {
		d.RestartRequired = append(d.RestartRequired, "merger")
	}
	if old.APIKeys != new.APIKeys {
		d.RestartRequired = append(d.RestartRequired, "api_keys")
	}
	if old.Daemon != new.Daemon {
		d.RestartRequired = append(d.RestartRequired, "daemon")
	}

	return d
}

func sameEntry(a, b ProviderEntry) bool {
	return reflect.DeepEqual(a, b)
}
