package middleware_test

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"lunchbot/middleware"

	"github.com/gin-gonic/gin"
)

const secret = "8f742231b10e8888abcd99yyyzzz85a5"

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sign(body string, ts int64) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte("v0:" + strconv.FormatInt(ts, 10) + ":" + body))
	return "v0=" + hex.EncodeToString(mac.Sum(nil))
}

func setupRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.Recovery(quietLogger()))
	r.POST("/slack/commands", middleware.SlackSignatureRequired(secret, quietLogger()), func(c *gin.Context) {
		c.String(http.StatusOK, c.PostForm("text"))
	})
	r.GET("/boom", func(c *gin.Context) {
		panic("boom")
	})
	return r
}

func TestSlackSignature(t *testing.T) {
	r := setupRouter()
	body := "command=%2Fsuggest&text=hello"
	now := time.Now().Unix()

	cases := []struct {
		name      string
		signature string
		ts        int64
		want      int
	}{
		{"valid", sign(body, now), now, http.StatusOK},
		{"wrong signature", sign(body+"x", now), now, http.StatusUnauthorized},
		{"missing signature", "", now, http.StatusUnauthorized},
		{"stale timestamp", sign(body, now-3600), now - 3600, http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/slack/commands", strings.NewReader(body))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			req.Header.Set("X-Slack-Request-Timestamp", strconv.FormatInt(tc.ts, 10))
			if tc.signature != "" {
				req.Header.Set("X-Slack-Signature", tc.signature)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, w.Code)
			}
			// the handler must still see the body after verification
			if tc.want == http.StatusOK && w.Body.String() != "hello" {
				t.Fatalf("body not restored, handler saw %q", w.Body.String())
			}
		})
	}
}

func TestRecoveryAnswers200(t *testing.T) {
	r := setupRouter()
	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 after panic, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "something went wrong") {
		t.Fatalf("unexpected body %q", w.Body.String())
	}
}
