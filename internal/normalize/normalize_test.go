package normalize

import (
	"context"
	"testing"
)

type stubTranscriber struct {
	text  string
	calls int
}

func (s *stubTranscriber) Transcribe(ctx context.Context, ref string) string {
	s.calls++
	return s.text
}

func TestClean(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"leak leak leak in the toilet", "Leak in the toilet"},
		{"  um   the  aircond   is  uh broken ", "The aircond is broken"},
		{"Leak, leak, LEAK", "Leak,"},
		{"paip bocor lah", "Paip bocor"},
		{"", ""},
		{"水管漏水", "水管漏水"},
	}
	for _, tc := range cases {
		if got := Clean(tc.in); got != tc.want {
			t.Fatalf("Clean(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNormalize_Precedence(t *testing.T) {
	tr := &stubTranscriber{text: "lift stuck at level 3"}
	n := New(tr)
	ctx := context.Background()

	if got := n.Normalize(ctx, Input{Text: "pipe leaking", VoiceRef: "v1", PhotoRef: "p1"}); got != "Pipe leaking" {
		t.Fatalf("expected text to win, got %q", got)
	}
	if tr.calls != 0 {
		t.Fatalf("transcriber must not run when text is present")
	}
	if got := n.Normalize(ctx, Input{VoiceRef: "v1", PhotoRef: "p1"}); got != "Lift stuck at level 3" {
		t.Fatalf("expected transcription, got %q", got)
	}
	if got := n.Normalize(ctx, Input{PhotoRef: "p1"}); got != PhotoPlaceholder {
		t.Fatalf("expected placeholder, got %q", got)
	}
	if got := n.Normalize(ctx, Input{}); got != "" {
		t.Fatalf("expected empty, got %q", got)
	}
}

func TestNormalize_FailedTranscriptionIsEmpty(t *testing.T) {
	n := New(&stubTranscriber{})
	if got := n.Normalize(context.Background(), Input{VoiceRef: "v1"}); got != "" {
		t.Fatalf("expected empty, got %q", got)
	}
}

func TestIsGreeting(t *testing.T) {
	greetings := []string{"hi", "Helo", "hey!", "good morning", "Hello there", "selamat pagi semua", "你好", "thank you so much"}
	for _, g := range greetings {
		if !IsGreeting(g) {
			t.Fatalf("expected %q to be a greeting", g)
		}
	}
	reports := []string{"hello, my toilet is leaking badly", "pipe leaking in kitchen", "hill road lamp is broken", "你好，我家厨房的水管漏水了"}
	for _, r := range reports {
		if IsGreeting(r) {
			t.Fatalf("expected %q not to be a greeting", r)
		}
	}
}

func TestHasListSeparator(t *testing.T) {
	if !HasListSeparator("door broken, light flickering") {
		t.Fatalf("expected comma separator")
	}
	if !HasListSeparator("sink leaking and fan broken") {
		t.Fatalf("expected and separator")
	}
	if !HasListSeparator("paip bocor dan lampu rosak") {
		t.Fatalf("expected dan separator")
	}
	if HasListSeparator("the bathroom sink is leaking") {
		t.Fatalf("expected no separator")
	}
}

func TestDetectLanguage(t *testing.T) {
	cases := map[string]string{
		"pipe leaking in kitchen": LangEnglish,
		"paip dapur bocor":        LangMalay,
		"厨房水管漏水":                  LangChinese,
	}
	for in, want := range cases {
		if got := DetectLanguage(in); got != want {
			t.Fatalf("DetectLanguage(%q) = %q, want %q", in, got, want)
		}
	}
}
