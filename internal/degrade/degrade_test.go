package degrade

import (
	"context"
	"errors"
	"testing"

	"resident-intake/internal/intent"
	"resident-intake/internal/llm"
)

var errDown = errors.New("down")

type failing struct{}

func (failing) Transcribe(ctx context.Context, ref string) (string, error) { return "", errDown }
func (failing) ClassifyIntent(ctx context.Context, text string) (llm.Intent, error) {
	return llm.Intent{}, errDown
}
func (failing) CheckMeaningful(ctx context.Context, text string) (bool, error) { return false, errDown }
func (failing) Translate(ctx context.Context, text, lang string) (string, error) {
	return "", errDown
}
func (failing) Embed(ctx context.Context, text string) ([]float32, error) { return nil, errDown }
func (failing) Send(ctx context.Context, phone, text string) error        { return errDown }

func TestDefaultsOnFailure(t *testing.T) {
	ctx := context.Background()
	f := failing{}

	if got := NewTranscriber(f).Transcribe(ctx, "v"); got != "" {
		t.Fatalf("transcriber: expected empty, got %q", got)
	}
	if got := NewClassifier(f).Classify(ctx, "x"); got != intent.Uncertain {
		t.Fatalf("classifier: expected uncertain, got %+v", got)
	}
	if !NewMeaning(f).IsMeaningful(ctx, "x") {
		t.Fatalf("meaning: expected true")
	}
	if got := NewTranslator(f).Translate(ctx, "paip bocor", "en"); got != "paip bocor" {
		t.Fatalf("translator: expected original, got %q", got)
	}
	if got := NewEmbedder(f).Embed(ctx, "x"); got != nil {
		t.Fatalf("embedder: expected nil, got %v", got)
	}
	NewSender(f).Send(ctx, "+60123456789", "hello")
}

func TestDefaultsWhenUnconfigured(t *testing.T) {
	ctx := context.Background()
	if got := NewClassifier(nil).Classify(ctx, "x"); got != intent.Uncertain {
		t.Fatalf("expected uncertain, got %+v", got)
	}
	if !NewMeaning(nil).IsMeaningful(ctx, "x") {
		t.Fatalf("expected true")
	}
	if got := NewEmbedder(nil).Embed(ctx, "x"); got != nil {
		t.Fatalf("expected nil")
	}
	NewSender(nil).Send(ctx, "+60123456789", "hello")
}

type okModel struct{ ans llm.Intent }

func (m okModel) ClassifyIntent(ctx context.Context, text string) (llm.Intent, error) {
	return m.ans, nil
}

func TestClassifier_MapsModelAnswer(t *testing.T) {
	got := NewClassifier(okModel{ans: llm.Intent{Category: "unit", Confidence: 0.8}}).Classify(context.Background(), "x")
	want := intent.Result{Category: intent.CategoryUnit, Confidence: 0.8, Source: intent.SourceAI}
	if got != want {
		t.Fatalf("expected %+v, got %+v", want, got)
	}

	got = NewClassifier(okModel{ans: llm.Intent{Category: "garden", Confidence: 0.99}}).Classify(context.Background(), "x")
	if got != intent.Uncertain {
		t.Fatalf("expected unknown category to be uncertain, got %+v", got)
	}
}
