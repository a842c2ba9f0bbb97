package messaging

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resident-intake/internal/jobs"
	"resident-intake/internal/store"
)

type fakeQueue struct {
	calls []queued
}

type queued struct {
	propertyID string
	phone      string
	payload    jobs.MessagePayload
}

func (q *fakeQueue) EnqueueMessage(_ context.Context, propertyID, phone string, p jobs.MessagePayload) (jobs.Job, error) {
	q.calls = append(q.calls, queued{propertyID, phone, p})
	if p == (jobs.MessagePayload{}) {
		return jobs.Job{}, jobs.ErrInvalidJob
	}
	return jobs.Job{ID: "j1"}, nil
}

type fakeProperties map[string]string

func (f fakeProperties) ResolveProperty(_ context.Context, number string) (string, error) {
	if p, ok := f[number]; ok {
		return p, nil
	}
	return "", store.ErrNotFound
}

func newWebhookRouter(h WebhookHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/webhooks/twilio/messages", h.HandleInboundMessage)
	return r
}

func postForm(r http.Handler, form url.Values, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/twilio/messages", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if signature != "" {
		req.Header.Set(SignatureHeader, signature)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestWebhook_QueuesMessageAndAnswersEmptyTwiML(t *testing.T) {
	q := &fakeQueue{}
	r := newWebhookRouter(WebhookHandler{Queue: q, Properties: fakeProperties{"+60300000001": "P1"}})

	w := postForm(r, url.Values{
		"MessageSid": {"SM1"},
		"From":       {"whatsapp:+60123456789"},
		"To":         {"whatsapp:+60300000001"},
		"Body":       {" pipe leaking in kitchen "},
	}, "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "<Response></Response>")
	require.Len(t, q.calls, 1)
	assert.Equal(t, queued{"P1", "+60123456789", jobs.MessagePayload{Text: "pipe leaking in kitchen"}}, q.calls[0])
}

func TestWebhook_MediaKinds(t *testing.T) {
	cases := []struct {
		contentType string
		want        jobs.MessagePayload
	}{
		{"audio/ogg", jobs.MessagePayload{VoiceRef: "https://api.twilio.com/media/1"}},
		{"image/jpeg", jobs.MessagePayload{PhotoRef: "https://api.twilio.com/media/1"}},
		{"text/vcard", jobs.MessagePayload{}},
	}
	for _, tc := range cases {
		q := &fakeQueue{}
		r := newWebhookRouter(WebhookHandler{Queue: q, Properties: fakeProperties{"+60300000001": "P1"}})
		w := postForm(r, url.Values{
			"From":              {"+60123456789"},
			"To":                {"+60300000001"},
			"NumMedia":          {"1"},
			"MediaUrl0":         {"https://api.twilio.com/media/1"},
			"MediaContentType0": {tc.contentType},
		}, "")
		require.Equal(t, http.StatusOK, w.Code, tc.contentType)
		require.Len(t, q.calls, 1)
		assert.Equal(t, tc.want, q.calls[0].payload, tc.contentType)
	}
}

func TestWebhook_UnknownDestination(t *testing.T) {
	q := &fakeQueue{}
	r := newWebhookRouter(WebhookHandler{Queue: q, Properties: fakeProperties{}})
	w := postForm(r, url.Values{"From": {"+60123456789"}, "To": {"+60399999999"}, "Body": {"hi"}}, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Empty(t, q.calls)
}

func TestWebhook_Signature(t *testing.T) {
	q := &fakeQueue{}
	h := WebhookHandler{
		Queue:         q,
		Properties:    fakeProperties{"+60300000001": "P1"},
		AuthToken:     "secret",
		PublicBaseURL: "https://intake.example.com",
	}
	r := newWebhookRouter(h)
	form := url.Values{"From": {"+60123456789"}, "To": {"+60300000001"}, "Body": {"lift broken"}}

	w := postForm(r, form, "bogus")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, q.calls)

	sig := Sign("secret", "https://intake.example.com/webhooks/twilio/messages", form)
	w = postForm(r, form, sig)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, q.calls, 1)
}

func TestSign_DependsOnEveryInput(t *testing.T) {
	params := url.Values{"Body": {"hi"}, "From": {"+6011"}}
	base := Sign("token", "https://x.example/hook", params)

	assert.True(t, ValidSignature("token", "https://x.example/hook", params, base))
	assert.False(t, ValidSignature("other", "https://x.example/hook", params, base))
	assert.False(t, ValidSignature("token", "https://x.example/hook2", params, base))
	assert.False(t, ValidSignature("token", "https://x.example/hook", url.Values{"Body": {"hi!"}, "From": {"+6011"}}, base))
	assert.False(t, ValidSignature("token", "https://x.example/hook", params, ""))
}

func TestSender_PostsForm(t *testing.T) {
	var got url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "AC1", user)
		assert.Equal(t, "tok", pass)
		assert.Equal(t, "/Accounts/AC1/Messages.json", r.URL.Path)
		assert.NoError(t, r.ParseForm())
		got = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"sid":"SM1","status":"queued"}`))
	}))
	defer srv.Close()

	s, err := NewSender(SenderConfig{AccountSID: "AC1", AuthToken: "tok", FromNumber: "whatsapp:+60300000001", BaseURL: srv.URL})
	require.NoError(t, err)
	require.NoError(t, s.Send(context.Background(), "+60123456789", "Your ticket T1 is confirmed."))

	assert.Equal(t, "whatsapp:+60123456789", got.Get("To"))
	assert.Equal(t, "whatsapp:+60300000001", got.Get("From"))
	assert.Equal(t, "Your ticket T1 is confirmed.", got.Get("Body"))
}

func TestSender_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":21211,"message":"Invalid 'To' Phone Number"}`))
	}))
	defer srv.Close()

	s, err := NewSender(SenderConfig{AccountSID: "AC1", AuthToken: "tok", FromNumber: "+60300000001", BaseURL: srv.URL})
	require.NoError(t, err)
	err = s.Send(context.Background(), "+1", "hi")

	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusBadRequest, httpErr.StatusCode)
	assert.Equal(t, 21211, httpErr.Code)
}

func TestNewSender_RequiresCredentials(t *testing.T) {
	_, err := NewSender(SenderConfig{FromNumber: "+6030"})
	assert.Error(t, err)
}
