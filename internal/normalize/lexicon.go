package normalize

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed lexicon.yaml
var lexiconYAML []byte

// Lexicon holds the multilingual word lists the normalizer matches against.
type Lexicon struct {
	Fillers      map[string][]string `yaml:"fillers"`
	Greetings    map[string][]string `yaml:"greetings"`
	Separators   []string            `yaml:"separators"`
	MalayMarkers []string            `yaml:"malay_markers"`

	fillerSet map[string]struct{}
	greetings []string
	malaySet  map[string]struct{}
}

// ParseLexicon decodes a lexicon document.
func ParseLexicon(b []byte) (*Lexicon, error) {
	var lx Lexicon
	if err := yaml.Unmarshal(b, &lx); err != nil {
		return nil, fmt.Errorf("normalize: parse lexicon: %w", err)
	}
	lx.fillerSet = map[string]struct{}{}
	for _, words := range lx.Fillers {
		for _, w := range words {
			lx.fillerSet[strings.ToLower(w)] = struct{}{}
		}
	}
	for _, words := range lx.Greetings {
		for _, w := range words {
			lx.greetings = append(lx.greetings, strings.ToLower(w))
		}
	}
	lx.malaySet = map[string]struct{}{}
	for _, w := range lx.MalayMarkers {
		lx.malaySet[strings.ToLower(w)] = struct{}{}
	}
	return &lx, nil
}

var defaultLexicon = mustParseLexicon(lexiconYAML)

func mustParseLexicon(b []byte) *Lexicon {
	lx, err := ParseLexicon(b)
	if err != nil {
		panic(err)
	}
	return lx
}

// DefaultLexicon returns the built-in word lists.
func DefaultLexicon() *Lexicon { return defaultLexicon }
