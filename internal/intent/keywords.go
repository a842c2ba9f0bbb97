package intent

import (
	_ "embed"
	"fmt"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"
)

//go:embed keywords.yaml
var keywordsYAML []byte

// Keywords is the keyword data the classifier matches against.
type Keywords struct {
	CommonArea []string `yaml:"common_area"`
	Unit       []string `yaml:"unit"`
	Ambiguous  []string `yaml:"ambiguous"`
	Symptoms   []string `yaml:"symptoms"`
	NewIssue   []string `yaml:"new_issue"`
}

func ParseKeywords(b []byte) (*Keywords, error) {
	var k Keywords
	if err := yaml.Unmarshal(b, &k); err != nil {
		return nil, fmt.Errorf("intent: parse keywords: %w", err)
	}
	if len(k.CommonArea) == 0 || len(k.Unit) == 0 {
		return nil, fmt.Errorf("intent: keyword lists must not be empty")
	}
	return &k, nil
}

var defaultKeywords = func() *Keywords {
	k, err := ParseKeywords(keywordsYAML)
	if err != nil {
		panic(err)
	}
	return k
}()

func DefaultKeywords() *Keywords { return defaultKeywords }

// matchText lowercases text and replaces punctuation with spaces so that
// whole-word lookups can use " word " containment.
func matchText(text string) string {
	var b strings.Builder
	b.WriteByte(' ')
	for _, r := range strings.ToLower(text) {
		if unicode.IsPunct(r) || unicode.IsSymbol(r) || unicode.IsSpace(r) {
			b.WriteByte(' ')
			continue
		}
		b.WriteRune(r)
	}
	b.WriteByte(' ')
	return strings.Join(strings.Fields(b.String()), " ")
}

func containsAny(norm string, words []string) bool {
	padded := " " + norm + " "
	for _, w := range words {
		w = strings.ToLower(w)
		if hasHan(w) {
			if strings.Contains(norm, w) {
				return true
			}
			continue
		}
		if strings.Contains(padded, " "+w+" ") {
			return true
		}
	}
	return false
}

func hasHan(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Han, r) {
			return true
		}
	}
	return false
}
