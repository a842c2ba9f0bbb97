package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

var (
	ErrNotConfigured = errors.New("llm: client not configured")
	ErrMalformed     = errors.New("llm: malformed model output")
)

type Config struct {
	BaseURL        string
	APIKey         string
	ChatModel      string
	EmbeddingModel string
	Timeout        time.Duration
	MaxRetries     int
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.BaseURL) == "" {
		c.BaseURL = "https://api.openai.com/v1"
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.ChatModel == "" {
		c.ChatModel = "gpt-4o-mini"
	}
	if c.EmbeddingModel == "" {
		c.EmbeddingModel = "text-embedding-3-small"
	}
	if c.Timeout <= 0 {
		c.Timeout = 15 * time.Second
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	return c
}

// Client talks to an OpenAI-compatible chat completions and embeddings API.
// Every chat call asks for a JSON object and rejects anything that does not
// decode into the expected shape.
type Client struct {
	http *resty.Client
	cfg  Config
}

func New(cfg Config) *Client {
	cfg = cfg.withDefaults()
	h := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.MaxRetries).
		SetRetryWaitTime(500*time.Millisecond).
		SetRetryMaxWaitTime(3*time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() == 429 || r.StatusCode() >= 500
		}).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if cfg.APIKey != "" {
		h.SetAuthToken(cfg.APIKey)
	}
	return &Client{http: h, cfg: cfg}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	ResponseFormat map[string]string `json:"response_format"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// HTTPError is a non-2xx answer from the API.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("llm http %d: %s", e.StatusCode, e.Message)
}

func (c *Client) chatJSON(ctx context.Context, system, user string, out any) error {
	if c == nil || c.http == nil {
		return ErrNotConfigured
	}
	req := chatRequest{
		Model: c.cfg.ChatModel,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature:    0,
		ResponseFormat: map[string]string{"type": "json_object"},
	}

	var resp chatResponse
	var apiErr apiError
	r, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&resp).
		SetError(&apiErr).
		Post("/chat/completions")
	if err != nil {
		return fmt.Errorf("llm chat: %w", err)
	}
	if r.IsError() {
		return &HTTPError{StatusCode: r.StatusCode(), Message: apiErr.Error.Message}
	}
	if len(resp.Choices) == 0 {
		return fmt.Errorf("%w: no choices", ErrMalformed)
	}

	dec := json.NewDecoder(strings.NewReader(resp.Choices[0].Message.Content))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}

// Intent is the model's answer to a classification prompt.
type Intent struct {
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
}

const classifyPrompt = `You sort maintenance reports from residents of a managed property.
Answer with a JSON object {"category": string, "confidence": number}.
category is one of "unit" (inside the resident's own unit), "common_area" (shared facilities
such as lifts, corridors, car parks, pools), "mixed" (both), or "uncertain".
confidence is between 0 and 1.`

func (c *Client) ClassifyIntent(ctx context.Context, text string) (Intent, error) {
	var raw struct {
		Category   *string  `json:"category"`
		Confidence *float64 `json:"confidence"`
	}
	if err := c.chatJSON(ctx, classifyPrompt, text, &raw); err != nil {
		return Intent{}, err
	}
	if raw.Category == nil || raw.Confidence == nil {
		return Intent{}, fmt.Errorf("%w: missing category or confidence", ErrMalformed)
	}
	if *raw.Confidence < 0 || *raw.Confidence > 1 {
		return Intent{}, fmt.Errorf("%w: confidence out of range", ErrMalformed)
	}
	return Intent{Category: strings.ToLower(strings.TrimSpace(*raw.Category)), Confidence: *raw.Confidence}, nil
}

const meaningfulPrompt = `Decide whether a resident's message describes a maintenance problem
that a building manager could act on. Small talk, greetings, and random characters are not.
Answer with a JSON object {"meaningful": boolean}.`

func (c *Client) CheckMeaningful(ctx context.Context, text string) (bool, error) {
	var raw struct {
		Meaningful *bool `json:"meaningful"`
	}
	if err := c.chatJSON(ctx, meaningfulPrompt, text, &raw); err != nil {
		return false, err
	}
	if raw.Meaningful == nil {
		return false, fmt.Errorf("%w: missing meaningful", ErrMalformed)
	}
	return *raw.Meaningful, nil
}

const translatePrompt = `Translate the resident's maintenance report into %s.
Keep unit numbers, names and measurements unchanged.
Answer with a JSON object {"translation": string}.`

var languageNames = map[string]string{
	"en": "English",
	"ms": "Malay",
	"zh": "Simplified Chinese",
}

func (c *Client) Translate(ctx context.Context, text, targetLang string) (string, error) {
	name, ok := languageNames[targetLang]
	if !ok {
		return "", fmt.Errorf("llm: unsupported language %q", targetLang)
	}
	var raw struct {
		Translation *string `json:"translation"`
	}
	if err := c.chatJSON(ctx, fmt.Sprintf(translatePrompt, name), text, &raw); err != nil {
		return "", err
	}
	if raw.Translation == nil || strings.TrimSpace(*raw.Translation) == "" {
		return "", fmt.Errorf("%w: empty translation", ErrMalformed)
	}
	return strings.TrimSpace(*raw.Translation), nil
}

type embeddingsRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingsResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if c == nil || c.http == nil {
		return nil, ErrNotConfigured
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("llm: empty embedding input")
	}

	var resp embeddingsResponse
	var apiErr apiError
	r, err := c.http.R().
		SetContext(ctx).
		SetBody(embeddingsRequest{Model: c.cfg.EmbeddingModel, Input: []string{text}}).
		SetResult(&resp).
		SetError(&apiErr).
		Post("/embeddings")
	if err != nil {
		return nil, fmt.Errorf("llm embeddings: %w", err)
	}
	if r.IsError() {
		return nil, &HTTPError{StatusCode: r.StatusCode(), Message: apiErr.Error.Message}
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("%w: no embedding", ErrMalformed)
	}
	return resp.Data[0].Embedding, nil
}
