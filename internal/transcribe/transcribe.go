package transcribe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	speechpb "cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/go-resty/resty/v2"
	"google.golang.org/api/option"
)

var ErrTooLarge = errors.New("transcribe: media too large")

type Config struct {
	// Twilio media URLs require basic auth with the account credentials.
	AccountSID string
	AuthToken  string

	CredentialsFile string
	LanguageCode    string
	AltLanguages    []string

	MaxBytes int64
	Timeout  time.Duration
}

func (c Config) withDefaults() Config {
	if c.LanguageCode == "" {
		c.LanguageCode = "en-US"
	}
	if c.AltLanguages == nil {
		c.AltLanguages = []string{"ms-MY", "cmn-Hans-CN"}
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = 10 << 20
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	return c
}

// recognizer is the part of the Speech client used here.
type recognizer interface {
	Recognize(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error)
	Close() error
}

type speechClient struct{ c *speech.Client }

func (s speechClient) Recognize(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error) {
	return s.c.Recognize(ctx, req)
}

func (s speechClient) Close() error { return s.c.Close() }

// Transcriber downloads a voice note and runs it through Google Cloud Speech.
type Transcriber struct {
	http *resty.Client
	rec  recognizer
	cfg  Config
}

func New(ctx context.Context, cfg Config) (*Transcriber, error) {
	cfg = cfg.withDefaults()
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	c, err := speech.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("speech client: %w", err)
	}
	return newWithRecognizer(cfg, speechClient{c: c}), nil
}

func newWithRecognizer(cfg Config, rec recognizer) *Transcriber {
	cfg = cfg.withDefaults()
	h := resty.New().
		SetTimeout(cfg.Timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond)
	if cfg.AccountSID != "" {
		h.SetBasicAuth(cfg.AccountSID, cfg.AuthToken)
	}
	return &Transcriber{http: h, rec: rec, cfg: cfg}
}

func (t *Transcriber) Close() error {
	if t == nil || t.rec == nil {
		return nil
	}
	return t.rec.Close()
}

// Transcribe returns the recognised text of the clip at mediaRef, or "" when
// nothing was recognised.
func (t *Transcriber) Transcribe(ctx context.Context, mediaRef string) (string, error) {
	audio, contentType, err := t.download(ctx, mediaRef)
	if err != nil {
		return "", err
	}
	if len(audio) == 0 {
		return "", nil
	}

	req := &speechpb.RecognizeRequest{
		Config: recognitionConfig(contentType, t.cfg),
		Audio:  &speechpb.RecognitionAudio{AudioSource: &speechpb.RecognitionAudio_Content{Content: audio}},
	}
	resp, err := t.rec.Recognize(ctx, req)
	if err != nil {
		return "", fmt.Errorf("speech recognize: %w", err)
	}

	parts := make([]string, 0, len(resp.GetResults()))
	for _, r := range resp.GetResults() {
		alts := r.GetAlternatives()
		if len(alts) == 0 {
			continue
		}
		if s := strings.TrimSpace(alts[0].GetTranscript()); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " "), nil
}

func (t *Transcriber) download(ctx context.Context, mediaRef string) ([]byte, string, error) {
	if strings.TrimSpace(mediaRef) == "" {
		return nil, "", errors.New("transcribe: empty media reference")
	}
	resp, err := t.http.R().SetContext(ctx).Get(mediaRef)
	if err != nil {
		return nil, "", fmt.Errorf("download media: %w", err)
	}
	if resp.IsError() {
		return nil, "", fmt.Errorf("download media: http %d", resp.StatusCode())
	}
	body := resp.Body()
	if int64(len(body)) > t.cfg.MaxBytes {
		return nil, "", ErrTooLarge
	}
	return body, resp.Header().Get("Content-Type"), nil
}

func recognitionConfig(contentType string, cfg Config) *speechpb.RecognitionConfig {
	rc := &speechpb.RecognitionConfig{
		LanguageCode:               cfg.LanguageCode,
		AlternativeLanguageCodes:   cfg.AltLanguages,
		EnableAutomaticPunctuation: true,
		Encoding:                   inferEncoding(contentType),
	}
	// WhatsApp and most phone voice notes are 16 kHz Opus in an Ogg container.
	if rc.Encoding == speechpb.RecognitionConfig_OGG_OPUS {
		rc.SampleRateHertz = 16000
	}
	return rc
}

func inferEncoding(contentType string) speechpb.RecognitionConfig_AudioEncoding {
	m := strings.ToLower(strings.TrimSpace(contentType))
	switch {
	case strings.Contains(m, "ogg"), strings.Contains(m, "opus"):
		return speechpb.RecognitionConfig_OGG_OPUS
	case strings.Contains(m, "amr"):
		return speechpb.RecognitionConfig_AMR
	case strings.Contains(m, "wav"):
		return speechpb.RecognitionConfig_LINEAR16
	case strings.Contains(m, "flac"):
		return speechpb.RecognitionConfig_FLAC
	case strings.Contains(m, "mpeg"), strings.Contains(m, "mp3"):
		return speechpb.RecognitionConfig_MP3
	default:
		return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED
	}
}
