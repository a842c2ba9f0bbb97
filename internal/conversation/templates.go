package conversation

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed templates.yaml
var templatesYAML []byte

// Templates holds reply texts keyed by language, then by message key.
type Templates struct {
	byLang map[string]map[string]string
}

func ParseTemplates(b []byte) (*Templates, error) {
	var raw map[string]map[string]string
	if err := yaml.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("conversation: parse templates: %w", err)
	}
	en, ok := raw[defaultLang]
	if !ok {
		return nil, fmt.Errorf("conversation: templates need an %q section", defaultLang)
	}
	for _, k := range requiredKeys {
		if strings.TrimSpace(en[k]) == "" {
			return nil, fmt.Errorf("conversation: template %q missing", k)
		}
	}
	return &Templates{byLang: raw}, nil
}

var defaultTemplates = func() *Templates {
	t, err := ParseTemplates(templatesYAML)
	if err != nil {
		panic(err)
	}
	return t
}()

const defaultLang = "en"

var requiredKeys = []string{
	"greeting", "throttled", "not_meaningful", "not_understood", "describe_first",
	"preview_header", "issue_line", "location_unit", "location_common", "fee_line", "no_fee_line",
	"photos_line", "duplicate_note", "related_note", "menu", "menu_reprompt", "edit_prompt",
	"edit_reprompt", "photo_prompt", "photo_reprompt", "confirmed", "confirmed_fee",
	"already_confirmed", "cancelled", "split_prompt", "split_reprompt", "one_at_a_time", "closed",
	"closed_reprompt", "continue_prompt", "new_issue_prompt", "problem",
}

// Render returns the text for key in lang, falling back to English, with
// {name} placeholders replaced by vars.
func (t *Templates) Render(lang, key string, vars map[string]string) string {
	s := t.byLang[lang][key]
	if s == "" {
		s = t.byLang[defaultLang][key]
	}
	if len(vars) == 0 {
		return s
	}
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(s)
}

// ProblemReply is the generic text sent when a message could not be processed.
func ProblemReply(lang string) string {
	return defaultTemplates.Render(lang, "problem", nil)
}
