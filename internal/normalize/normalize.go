package normalize

import (
	"context"
	"strings"
	"unicode"
	"unicode/utf8"
)

// PhotoPlaceholder stands in for a message that only carries a photo.
const PhotoPlaceholder = "[photo]"

// Input is one inbound message. Exactly one of the fields drives normalization;
// text wins over voice, voice over photo.
type Input struct {
	Text     string
	VoiceRef string
	PhotoRef string
}

// Transcriber turns a voice reference into text. Implementations return "" on failure.
type Transcriber interface {
	Transcribe(ctx context.Context, mediaRef string) string
}

type Normalizer struct {
	transcriber Transcriber
	lex         *Lexicon
}

func New(t Transcriber) *Normalizer {
	return &Normalizer{transcriber: t, lex: defaultLexicon}
}

// Resolve picks the text a message carries before cleaning.
func (n *Normalizer) Resolve(ctx context.Context, in Input) string {
	switch {
	case strings.TrimSpace(in.Text) != "":
		return in.Text
	case strings.TrimSpace(in.VoiceRef) != "":
		if n.transcriber == nil {
			return ""
		}
		return n.transcriber.Transcribe(ctx, in.VoiceRef)
	case strings.TrimSpace(in.PhotoRef) != "":
		return PhotoPlaceholder
	default:
		return ""
	}
}

func (n *Normalizer) Normalize(ctx context.Context, in Input) string {
	raw := n.Resolve(ctx, in)
	if raw == PhotoPlaceholder {
		return raw
	}
	return n.lex.Clean(raw)
}

// Clean applies the default lexicon.
func Clean(text string) string { return defaultLexicon.Clean(text) }

// Clean drops filler tokens, collapses immediately repeated words, normalizes
// whitespace and capitalizes the first letter.
func (lx *Lexicon) Clean(text string) string {
	words := strings.Fields(text)
	out := make([]string, 0, len(words))
	prev := ""
	for _, w := range words {
		key := foldWord(w)
		if key == "" {
			out = append(out, w)
			prev = ""
			continue
		}
		if _, filler := lx.fillerSet[key]; filler {
			continue
		}
		if key == prev {
			continue
		}
		out = append(out, w)
		prev = key
	}
	return capitalize(strings.Join(out, " "))
}

// IsGreeting reports whether text is small talk: six characters or fewer, or a
// greeting followed by at most two more words.
func (lx *Lexicon) IsGreeting(text string) bool {
	t := strings.ToLower(strings.TrimSpace(text))
	if utf8.RuneCountInString(t) <= 6 {
		return true
	}
	for _, g := range lx.greetings {
		if t == g {
			return true
		}
		if !strings.HasPrefix(t, g) {
			continue
		}
		rest := t[len(g):]
		if r, _ := utf8.DecodeRuneInString(rest); unicode.IsLetter(r) && !isHan(r) {
			continue
		}
		if shortTail(rest) {
			return true
		}
	}
	return false
}

func IsGreeting(text string) bool { return defaultLexicon.IsGreeting(text) }

// shortTail accepts what may follow a greeting: a name or a couple of words.
func shortTail(rest string) bool {
	rest = strings.TrimFunc(rest, func(r rune) bool { return unicode.IsPunct(r) || unicode.IsSpace(r) })
	if rest == "" {
		return true
	}
	han := 0
	for _, r := range rest {
		if isHan(r) {
			han++
		}
	}
	if han > 0 {
		return han <= 2
	}
	return len(strings.Fields(rest)) <= 2
}

// HasListSeparator reports whether text looks like several issues in one message.
func (lx *Lexicon) HasListSeparator(text string) bool {
	t := " " + strings.ToLower(text) + " "
	for _, sep := range lx.Separators {
		if strings.Contains(t, sep) {
			return true
		}
	}
	return false
}

func HasListSeparator(text string) bool { return defaultLexicon.HasListSeparator(text) }

const (
	LangEnglish = "en"
	LangMalay   = "ms"
	LangChinese = "zh"
)

// DetectLanguage returns zh for any Han character, ms when a Malay marker word
// is present, and en otherwise.
func (lx *Lexicon) DetectLanguage(text string) string {
	for _, r := range text {
		if isHan(r) {
			return LangChinese
		}
	}
	for _, w := range strings.Fields(text) {
		if _, ok := lx.malaySet[foldWord(w)]; ok {
			return LangMalay
		}
	}
	return LangEnglish
}

func DetectLanguage(text string) string { return defaultLexicon.DetectLanguage(text) }

func isHan(r rune) bool { return unicode.Is(unicode.Han, r) }

func foldWord(w string) string {
	return strings.ToLower(strings.TrimFunc(w, func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSymbol(r)
	}))
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
