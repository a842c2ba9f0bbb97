package transcribe

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	speechpb "cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRecognizer struct {
	req  *speechpb.RecognizeRequest
	resp *speechpb.RecognizeResponse
	err  error
}

func (f *fakeRecognizer) Recognize(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error) {
	f.req = req
	return f.resp, f.err
}

func (f *fakeRecognizer) Close() error { return nil }

func mediaServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "AC123" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "audio/ogg")
		_, _ = w.Write([]byte("OggS-fake-audio"))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func result(text string) *speechpb.SpeechRecognitionResult {
	return &speechpb.SpeechRecognitionResult{
		Alternatives: []*speechpb.SpeechRecognitionAlternative{{Transcript: text}},
	}
}

func TestTranscribe_JoinsResults(t *testing.T) {
	srv := mediaServer(t)
	rec := &fakeRecognizer{resp: &speechpb.RecognizeResponse{
		Results: []*speechpb.SpeechRecognitionResult{result("pipe leaking"), result(" in kitchen ")},
	}}
	tr := newWithRecognizer(Config{AccountSID: "AC123", AuthToken: "secret"}, rec)

	got, err := tr.Transcribe(context.Background(), srv.URL+"/media/1")
	require.NoError(t, err)
	assert.Equal(t, "pipe leaking in kitchen", got)

	require.NotNil(t, rec.req)
	assert.Equal(t, speechpb.RecognitionConfig_OGG_OPUS, rec.req.GetConfig().GetEncoding())
	assert.Equal(t, int32(16000), rec.req.GetConfig().GetSampleRateHertz())
	assert.Equal(t, []byte("OggS-fake-audio"), rec.req.GetAudio().GetContent())
}

func TestTranscribe_DownloadUnauthorized(t *testing.T) {
	srv := mediaServer(t)
	tr := newWithRecognizer(Config{AccountSID: "AC123", AuthToken: "wrong"}, &fakeRecognizer{})

	_, err := tr.Transcribe(context.Background(), srv.URL+"/media/1")
	assert.Error(t, err)
}

func TestTranscribe_RecognizerError(t *testing.T) {
	srv := mediaServer(t)
	tr := newWithRecognizer(Config{AccountSID: "AC123", AuthToken: "secret"}, &fakeRecognizer{err: errors.New("quota")})

	_, err := tr.Transcribe(context.Background(), srv.URL+"/media/1")
	assert.Error(t, err)
}

func TestTranscribe_TooLarge(t *testing.T) {
	srv := mediaServer(t)
	tr := newWithRecognizer(Config{AccountSID: "AC123", AuthToken: "secret", MaxBytes: 4}, &fakeRecognizer{})

	_, err := tr.Transcribe(context.Background(), srv.URL+"/media/1")
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestInferEncoding(t *testing.T) {
	assert.Equal(t, speechpb.RecognitionConfig_OGG_OPUS, inferEncoding("audio/ogg; codecs=opus"))
	assert.Equal(t, speechpb.RecognitionConfig_AMR, inferEncoding("audio/amr"))
	assert.Equal(t, speechpb.RecognitionConfig_MP3, inferEncoding("audio/mpeg"))
	assert.Equal(t, speechpb.RecognitionConfig_ENCODING_UNSPECIFIED, inferEncoding(""))
}
