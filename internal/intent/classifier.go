package intent

import (
	"context"
	"strings"
)

type Category string

const (
	CategoryUnit       Category = "unit"
	CategoryCommonArea Category = "common_area"
	CategoryMixed      Category = "mixed"
	CategoryUncertain  Category = "uncertain"
)

func (c Category) Valid() bool {
	switch c {
	case CategoryUnit, CategoryCommonArea, CategoryMixed, CategoryUncertain:
		return true
	}
	return false
}

type Source string

const (
	SourceKeyword Source = "keyword"
	SourceAI      Source = "ai"
	SourceNone    Source = "none"
)

type Result struct {
	Category   Category `json:"category"`
	Confidence float64  `json:"confidence"`
	Source     Source   `json:"source"`
}

// Uncertain is returned when neither keywords nor the model produce a usable answer.
// Its confidence is a default, not a measurement.
var Uncertain = Result{Category: CategoryUncertain, Confidence: 1, Source: SourceNone}

// ModelClassifier is the model fallback. Implementations never fail; they
// return Uncertain instead.
type ModelClassifier interface {
	Classify(ctx context.Context, text string) Result
}

// MeaningJudge asks the model whether text describes a real issue.
// Implementations return true when they cannot tell.
type MeaningJudge interface {
	IsMeaningful(ctx context.Context, text string) bool
}

// Classifier is keyword-first with a model fallback.
//
// Order:
// - common area and unit keywords both match: mixed
// - common area matches, no ambiguous term: common_area
// - unit matches, no ambiguous term: unit
// - otherwise the model, accepted only at or above MinConfidence
type Classifier struct {
	kw            *Keywords
	model         ModelClassifier
	judge         MeaningJudge
	minConfidence float64
}

func NewClassifier(model ModelClassifier, judge MeaningJudge, minConfidence float64) *Classifier {
	if minConfidence <= 0 {
		minConfidence = 0.7
	}
	return &Classifier{kw: defaultKeywords, model: model, judge: judge, minConfidence: minConfidence}
}

// WithKeywords replaces the built-in keyword lists.
func (c *Classifier) WithKeywords(k *Keywords) *Classifier {
	c.kw = k
	return c
}

func (c *Classifier) Classify(ctx context.Context, text string) Result {
	norm := matchText(text)
	common := containsAny(norm, c.kw.CommonArea)
	unit := containsAny(norm, c.kw.Unit)
	ambiguous := containsAny(norm, c.kw.Ambiguous)

	switch {
	case common && unit:
		return Result{Category: CategoryMixed, Confidence: 1, Source: SourceKeyword}
	case common && !ambiguous:
		return Result{Category: CategoryCommonArea, Confidence: 1, Source: SourceKeyword}
	case unit && !ambiguous:
		return Result{Category: CategoryUnit, Confidence: 1, Source: SourceKeyword}
	}

	if c.model == nil {
		return Uncertain
	}
	res := c.model.Classify(ctx, text)
	if !res.Category.Valid() || res.Source == SourceNone || res.Confidence < c.minConfidence {
		return Uncertain
	}
	res.Source = SourceAI
	return res
}

// IsMeaningful reports whether text is worth turning into a ticket. Any
// keyword hit is enough; outside strict mode so are three or more words.
// Everything else is left to the model.
func (c *Classifier) IsMeaningful(ctx context.Context, text string, strict bool) bool {
	norm := matchText(text)
	if norm == "" {
		return false
	}
	for _, list := range [][]string{c.kw.CommonArea, c.kw.Unit, c.kw.Ambiguous, c.kw.Symptoms} {
		if containsAny(norm, list) {
			return true
		}
	}
	if !strict && len(strings.Fields(norm)) >= 3 {
		return true
	}
	if c.judge == nil {
		return true
	}
	return c.judge.IsMeaningful(ctx, text)
}

// IsNewIssuePhrase reports whether the resident asks to start over with a different problem.
func (c *Classifier) IsNewIssuePhrase(text string) bool {
	return containsAny(matchText(text), c.kw.NewIssue)
}
