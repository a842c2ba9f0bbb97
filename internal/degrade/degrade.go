// Package degrade wraps every external collaborator of the intake engine with
// its declared failure default, so callers never see collaborator errors.
//
//	Collaborator      On failure
//	Transcriber       ""
//	Model classifier  uncertain / none / 1.0
//	Meaning check     true
//	Translator        the original text
//	Embedder          nil (duplicate detection is skipped)
//	Sender            logged and dropped
package degrade

import (
	"context"
	"log/slog"

	"resident-intake/internal/intent"
	"resident-intake/internal/llm"
	"resident-intake/pkg/logger"
)

type TranscribeFunc interface {
	Transcribe(ctx context.Context, mediaRef string) (string, error)
}

type Transcriber struct{ inner TranscribeFunc }

func NewTranscriber(inner TranscribeFunc) Transcriber { return Transcriber{inner: inner} }

func (t Transcriber) Transcribe(ctx context.Context, mediaRef string) string {
	if t.inner == nil {
		return ""
	}
	text, err := t.inner.Transcribe(ctx, mediaRef)
	if err != nil {
		logger.From(ctx).Warn("transcription failed", slog.Any("err", err))
		return ""
	}
	return text
}

type IntentModel interface {
	ClassifyIntent(ctx context.Context, text string) (llm.Intent, error)
}

type Classifier struct{ inner IntentModel }

func NewClassifier(inner IntentModel) Classifier { return Classifier{inner: inner} }

func (c Classifier) Classify(ctx context.Context, text string) intent.Result {
	if c.inner == nil {
		return intent.Uncertain
	}
	ans, err := c.inner.ClassifyIntent(ctx, text)
	if err != nil {
		logger.From(ctx).Warn("intent model failed", slog.Any("err", err))
		return intent.Uncertain
	}
	cat := intent.Category(ans.Category)
	if !cat.Valid() {
		logger.From(ctx).Warn("intent model returned unknown category", slog.String("category", ans.Category))
		return intent.Uncertain
	}
	return intent.Result{Category: cat, Confidence: ans.Confidence, Source: intent.SourceAI}
}

type MeaningModel interface {
	CheckMeaningful(ctx context.Context, text string) (bool, error)
}

type Meaning struct{ inner MeaningModel }

func NewMeaning(inner MeaningModel) Meaning { return Meaning{inner: inner} }

func (m Meaning) IsMeaningful(ctx context.Context, text string) bool {
	if m.inner == nil {
		return true
	}
	ok, err := m.inner.CheckMeaningful(ctx, text)
	if err != nil {
		logger.From(ctx).Warn("meaning check failed, accepting message", slog.Any("err", err))
		return true
	}
	return ok
}

type TranslateModel interface {
	Translate(ctx context.Context, text, targetLang string) (string, error)
}

type Translator struct{ inner TranslateModel }

func NewTranslator(inner TranslateModel) Translator { return Translator{inner: inner} }

func (t Translator) Translate(ctx context.Context, text, targetLang string) string {
	if t.inner == nil || text == "" {
		return text
	}
	out, err := t.inner.Translate(ctx, text, targetLang)
	if err != nil || out == "" {
		logger.From(ctx).Warn("translation failed, keeping original", slog.Any("err", err))
		return text
	}
	return out
}

type EmbedModel interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type Embedder struct{ inner EmbedModel }

func NewEmbedder(inner EmbedModel) Embedder { return Embedder{inner: inner} }

func (e Embedder) Embed(ctx context.Context, text string) []float32 {
	if e.inner == nil {
		return nil
	}
	v, err := e.inner.Embed(ctx, text)
	if err != nil {
		logger.From(ctx).Warn("embedding failed, duplicate detection skipped", slog.Any("err", err))
		return nil
	}
	return v
}

type SendFunc interface {
	Send(ctx context.Context, phone, text string) error
}

type Sender struct{ inner SendFunc }

func NewSender(inner SendFunc) Sender { return Sender{inner: inner} }

func (s Sender) Send(ctx context.Context, phone, text string) {
	if s.inner == nil || text == "" {
		return
	}
	if err := s.inner.Send(ctx, phone, text); err != nil {
		logger.From(ctx).Warn("reply delivery failed",
			slog.String("phone", logger.MaskPhone(phone)),
			slog.Any("err", err),
		)
	}
}
