package messaging

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"resident-intake/internal/jobs"
	"resident-intake/internal/store"
	"resident-intake/pkg/logger"
)

// InboundForm is the subset of the Twilio messaging webhook we use.
// Twilio sends application/x-www-form-urlencoded.
type InboundForm struct {
	MessageSid        string
	AccountSid        string
	From              string
	To                string
	Body              string
	NumMedia          int
	MediaURL0         string
	MediaContentType0 string
}

func ParseInbound(r *http.Request) (InboundForm, error) {
	if err := r.ParseForm(); err != nil {
		return InboundForm{}, err
	}
	n, _ := strconv.Atoi(r.PostFormValue("NumMedia"))
	return InboundForm{
		MessageSid:        r.PostFormValue("MessageSid"),
		AccountSid:        r.PostFormValue("AccountSid"),
		From:              normalizeAddress(r.PostFormValue("From")),
		To:                normalizeAddress(r.PostFormValue("To")),
		Body:              strings.TrimSpace(r.PostFormValue("Body")),
		NumMedia:          n,
		MediaURL0:         strings.TrimSpace(r.PostFormValue("MediaUrl0")),
		MediaContentType0: strings.ToLower(strings.TrimSpace(r.PostFormValue("MediaContentType0"))),
	}, nil
}

// normalizeAddress drops the channel prefix so SMS and WhatsApp messages from
// one number share a conversation.
func normalizeAddress(s string) string {
	return strings.TrimPrefix(strings.TrimSpace(s), whatsappPrefix)
}

// Payload maps the message onto normalizer input. Audio media is a voice
// note, image media a photo; other media is ignored.
func (f InboundForm) Payload() jobs.MessagePayload {
	p := jobs.MessagePayload{Text: f.Body}
	if f.NumMedia < 1 || f.MediaURL0 == "" {
		return p
	}
	switch {
	case strings.HasPrefix(f.MediaContentType0, "audio/"):
		p.VoiceRef = f.MediaURL0
	case strings.HasPrefix(f.MediaContentType0, "image/"):
		p.PhotoRef = f.MediaURL0
	}
	return p
}

type Enqueuer interface {
	EnqueueMessage(ctx context.Context, propertyID, phone string, p jobs.MessagePayload) (jobs.Job, error)
}

type PropertyResolver interface {
	ResolveProperty(ctx context.Context, channelNumber string) (string, error)
}

// WebhookHandler turns Twilio webhooks into queued jobs. It never runs the
// conversation itself, so Twilio always gets a fast answer.
type WebhookHandler struct {
	Queue      Enqueuer
	Properties PropertyResolver

	// AuthToken and PublicBaseURL enable signature checks; both must be set.
	AuthToken     string
	PublicBaseURL string
}

func (h WebhookHandler) HandleInboundMessage(c *gin.Context) {
	log := logger.FromGin(c)

	if h.Queue == nil || h.Properties == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "messaging not configured"})
		return
	}

	form, err := ParseInbound(c.Request)
	if err != nil {
		log.Warn("twilio webhook parse failed", "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid form"})
		return
	}

	if h.AuthToken != "" && h.PublicBaseURL != "" {
		fullURL := h.PublicBaseURL + c.Request.URL.RequestURI()
		if !ValidSignature(h.AuthToken, fullURL, c.Request.PostForm, c.GetHeader(SignatureHeader)) {
			log.Warn("twilio signature mismatch", slog.String("message_sid", form.MessageSid))
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "invalid signature"})
			return
		}
	}

	if form.From == "" || form.To == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "from and to required"})
		return
	}

	ctx := c.Request.Context()
	propertyID, err := h.Properties.ResolveProperty(ctx, form.To)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			log.Warn("message to unknown number", slog.String("to", logger.MaskPhone(form.To)))
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "unknown destination"})
			return
		}
		log.Error("property resolution failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	job, err := h.Queue.EnqueueMessage(ctx, propertyID, form.From, form.Payload())
	switch {
	case errors.Is(err, jobs.ErrInvalidJob):
		// Nothing the engine could use, e.g. a sticker or a location pin.
		log.Info("empty inbound message dropped", slog.String("message_sid", form.MessageSid))
	case err != nil:
		log.Error("enqueue failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	default:
		log.Info("inbound message queued",
			slog.String("job_id", job.ID),
			slog.String("property_id", propertyID),
			slog.String("phone", logger.MaskPhone(form.From)),
		)
	}

	twiml, err := RenderTwiML()
	if err != nil {
		log.Error("twiml render failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "twiml failed"})
		return
	}
	c.Header("Content-Type", "application/xml")
	c.String(http.StatusOK, twiml)
}
