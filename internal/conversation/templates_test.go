package conversation

import (
	"strings"
	"testing"
)

func TestTemplates_AllLanguagesHaveEveryKey(t *testing.T) {
	for lang, texts := range defaultTemplates.byLang {
		for _, k := range requiredKeys {
			if strings.TrimSpace(texts[k]) == "" {
				t.Fatalf("%s: missing %q", lang, k)
			}
		}
	}
}

func TestTemplates_RenderFallsBackToEnglish(t *testing.T) {
	got := defaultTemplates.Render("fr", "confirmed", map[string]string{"ticket_id": "T1"})
	if got != "Thank you. Your ticket T1 is confirmed." {
		t.Fatalf("unexpected render %q", got)
	}
}

func TestParseTemplates_RequiresEnglishKeys(t *testing.T) {
	if _, err := ParseTemplates([]byte("ms:\n  greeting: hai\n")); err == nil {
		t.Fatalf("expected error without an en section")
	}
	if _, err := ParseTemplates([]byte("en:\n  greeting: hi\n")); err == nil {
		t.Fatalf("expected error for missing keys")
	}
}

func TestParseState(t *testing.T) {
	for _, s := range allStates {
		got, err := ParseState(string(s))
		if err != nil || got != s {
			t.Fatalf("ParseState(%s) = %s, %v", s, got, err)
		}
	}
	if _, err := ParseState("limbo"); err == nil {
		t.Fatalf("expected error for unknown state")
	}
}
