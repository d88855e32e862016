package config

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrUnknownKey is returned by [Get] and [Set] for a dotted path that does not
// exist in the schema.
var ErrUnknownKey = errors.New("config: unknown key")

// Get returns the value at the dotted key (e.g., "behavior.hotkey") formatted
// for display. Scalars are returned bare; mappings and lists as YAML.
func Get(cfg *Config, key string) (string, error) {
	tree, err := toTree(cfg)
	if err != nil {
		return "", err
	}
	v, err := lookup(tree, key)
	if err != nil {
		return "", err
	}
	switch v.(type) {
	case map[string]any, []any:
		out, err := yaml.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("config: encode %q: %w", key, err)
		}
		return strings.TrimRight(string(out), "\n"), nil
	case nil:
		return "", nil
	default:
		return fmt.Sprint(v), nil
	}
}

// Set returns a copy of cfg with the dotted key replaced by value. value is
// parsed as a YAML scalar so "false" becomes a bool and "1.5" a float. The
// result is decoded with strict field checking and validated.
func Set(cfg *Config, key, value string) (*Config, error) {
	tree, err := toTree(cfg)
	if err != nil {
		return nil, err
	}

	var parsed any
	if err := yaml.Unmarshal([]byte(value), &parsed); err != nil {
		return nil, fmt.Errorf("config: parse value for %q: %w", key, err)
	}
	if parsed == nil {
		parsed = value
	}

	parts := strings.Split(key, ".")
	node := tree
	for i, p := range parts[:len(parts)-1] {
		next, ok := node[p].(map[string]any)
		if !ok {
			// Free-form option maps may be created on demand.
			if node[p] == nil && p == "options" {
				next = map[string]any{}
				node[p] = next
			} else {
				return nil, fmt.Errorf("%w: %q", ErrUnknownKey, strings.Join(parts[:i+1], "."))
			}
		}
		node = next
	}
	leaf := parts[len(parts)-1]
	parent := ""
	if len(parts) > 1 {
		parent = parts[len(parts)-2]
	}
	if _, ok := node[leaf]; !ok && parent != "options" {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}
	node[leaf] = parsed

	data, err := yaml.Marshal(tree)
	if err != nil {
		return nil, fmt.Errorf("config: encode: %w", err)
	}
	updated, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("config: set %q: %w", key, err)
	}
	return updated, nil
}

// Masked returns a copy of cfg with every credential obscured so it can be
// printed.
func Masked(cfg *Config) *Config {
	out := *cfg
	out.APIKeys = APIKeys{
		Groq:     MaskSecret(cfg.APIKeys.Groq),
		Deepgram: MaskSecret(cfg.APIKeys.Deepgram),
		OpenAI:   MaskSecret(cfg.APIKeys.OpenAI),
	}
	out.Transcription.BoostWords = append([]string(nil), cfg.Transcription.BoostWords...)
	out.Transcription.EngineA.APIKey = MaskSecret(cfg.Transcription.EngineA.APIKey)
	out.Transcription.EngineB.APIKey = MaskSecret(cfg.Transcription.EngineB.APIKey)
	out.Merger.APIKey = MaskSecret(cfg.Merger.APIKey)
	return &out
}

// MaskSecret keeps a recognisable prefix and the last four characters of s.
//
//	gsk_test_key_12345 -> gsk_****2345
//	4b5c...ef12        -> ****ef12
func MaskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return "****"
	}
	tail := s[len(s)-4:]
	if strings.HasPrefix(s, "gsk_") {
		return "gsk_****" + tail
	}
	return "****" + tail
}

func toTree(cfg *Config) (map[string]any, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("config: encode: %w", err)
	}
	tree := map[string]any{}
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	return tree, nil
}

func lookup(tree map[string]any, key string) (any, error) {
	var cur any = tree
	for _, p := range strings.Split(key, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownKey, key)
		}
		cur, ok = m[p]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownKey, key)
		}
	}
	return cur, nil
}
