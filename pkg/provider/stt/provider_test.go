package stt_test

import (
	"testing"

	"github.com/MrWong99/voicecli/pkg/provider/stt"
)

func TestKeywords(t *testing.T) {
	t.Parallel()
	got := stt.Keywords([]string{"Hyprland", "  ", " Wayland "})
	if len(got) != 2 {
		t.Fatalf("expected 2 keywords, got %d: %v", len(got), got)
	}
	if got[0].Keyword != "Hyprland" || got[1].Keyword != "Wayland" {
		t.Errorf("keywords = %v", got)
	}
	for _, k := range got {
		if k.Boost != stt.DefaultBoost {
			t.Errorf("boost for %q = %v, want %v", k.Keyword, k.Boost, stt.DefaultBoost)
		}
	}
}

func TestPrompt(t *testing.T) {
	t.Parallel()
	if got := stt.Prompt(nil); got != "" {
		t.Errorf("Prompt(nil) = %q, want empty", got)
	}
	got := stt.Prompt([]stt.KeywordBoost{{Keyword: "kubectl"}, {Keyword: "Grafana"}})
	if got != "kubectl, Grafana" {
		t.Errorf("Prompt = %q", got)
	}
}
