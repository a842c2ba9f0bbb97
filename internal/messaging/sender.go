package messaging

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const defaultTwilioBaseURL = "https://api.twilio.com/2010-04-01"

// whatsappPrefix marks Twilio WhatsApp addresses, e.g. "whatsapp:+60123456789".
const whatsappPrefix = "whatsapp:"

type SenderConfig struct {
	AccountSID string
	AuthToken  string
	// FromNumber is the sending address. A "whatsapp:" prefix sends over WhatsApp.
	FromNumber string
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
}

// Sender posts replies to the Twilio Messages API.
type Sender struct {
	http *resty.Client
	cfg  SenderConfig
}

func NewSender(cfg SenderConfig) (*Sender, error) {
	cfg.AccountSID = strings.TrimSpace(cfg.AccountSID)
	cfg.FromNumber = strings.TrimSpace(cfg.FromNumber)
	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, errors.New("messaging: twilio account sid and auth token required")
	}
	if cfg.FromNumber == "" {
		return nil, errors.New("messaging: twilio from number required")
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = defaultTwilioBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 2
	}

	h := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetBasicAuth(cfg.AccountSID, cfg.AuthToken).
		SetRetryCount(cfg.MaxRetries).
		SetRetryWaitTime(time.Second).
		SetRetryMaxWaitTime(5*time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() == 429 || r.StatusCode() >= 500
		}).
		SetHeader("Accept", "application/json")
	return &Sender{http: h, cfg: cfg}, nil
}

type twilioMessage struct {
	SID    string `json:"sid"`
	Status string `json:"status"`
}

type twilioError struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	MoreInfo string `json:"more_info"`
}

// HTTPError is a non-2xx answer from Twilio.
type HTTPError struct {
	StatusCode int
	Code       int
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("twilio http %d: %s (code=%d)", e.StatusCode, e.Message, e.Code)
	}
	return fmt.Sprintf("twilio http %d: %s", e.StatusCode, e.Message)
}

// Send delivers text to phone on the channel of the configured sender.
func (s *Sender) Send(ctx context.Context, phone, text string) error {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return errors.New("messaging: recipient required")
	}
	if strings.TrimSpace(text) == "" {
		return errors.New("messaging: body required")
	}

	to := phone
	if strings.HasPrefix(s.cfg.FromNumber, whatsappPrefix) && !strings.HasPrefix(to, whatsappPrefix) {
		to = whatsappPrefix + to
	}

	var msg twilioMessage
	var apiErr twilioError
	r, err := s.http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"To":   to,
			"From": s.cfg.FromNumber,
			"Body": text,
		}).
		SetResult(&msg).
		SetError(&apiErr).
		Post("/Accounts/" + s.cfg.AccountSID + "/Messages.json")
	if err != nil {
		return fmt.Errorf("twilio send: %w", err)
	}
	if r.IsError() {
		return &HTTPError{StatusCode: r.StatusCode(), Code: apiErr.Code, Message: apiErr.Message}
	}
	return nil
}
