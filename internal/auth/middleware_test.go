package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func serveWithToken(t *testing.T, m *Manager, now time.Time, header string) (*httptest.ResponseRecorder, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	var seen string
	r := gin.New()
	r.Use(requireAccessToken(m, func() time.Time { return now }))
	r.GET("/x", func(c *gin.Context) {
		seen, _ = PropertyID(c.Request.Context())
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w, seen
}

func TestRequireAccessToken(t *testing.T) {
	m := testManager(t)
	now := time.Unix(1700000000, 0).UTC()
	pair, err := m.IssuePair(now, "user-1", "prop-1", "operator")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	cases := []struct {
		name     string
		header   string
		at       time.Time
		wantCode int
		wantProp string
	}{
		{"valid", "Bearer " + pair.AccessToken, now, http.StatusNoContent, "prop-1"},
		{"lowercase scheme", "bearer " + pair.AccessToken, now, http.StatusNoContent, "prop-1"},
		{"missing header", "", now, http.StatusUnauthorized, ""},
		{"empty token", "Bearer   ", now, http.StatusUnauthorized, ""},
		{"refresh token", "Bearer " + pair.RefreshToken, now, http.StatusUnauthorized, ""},
		{"expired", "Bearer " + pair.AccessToken, now.Add(time.Hour), http.StatusUnauthorized, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w, prop := serveWithToken(t, m, tc.at, tc.header)
			if w.Code != tc.wantCode {
				t.Fatalf("code = %d, want %d (%s)", w.Code, tc.wantCode, w.Body.String())
			}
			if prop != tc.wantProp {
				t.Fatalf("property = %q, want %q", prop, tc.wantProp)
			}
		})
	}
}
