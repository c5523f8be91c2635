package webhookgin

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/PaulFidika/tpayhook/adapters/ginutil"
	"github.com/PaulFidika/tpayhook/webhook"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type stubReceiver struct {
	err   error
	calls int
}

func (s *stubReceiver) Receive(ctx context.Context, req webhook.Request) (webhook.Outcome, error) {
	s.calls++
	if s.err != nil {
		return webhook.Outcome{}, s.err
	}
	return webhook.Outcome{}, nil
}

type denyAll struct{}

func (denyAll) Allow(context.Context, string) (bool, error) { return false, nil }

type brokenLimiter struct{}

func (brokenLimiter) Allow(context.Context, string) (bool, error) { return false, errors.New("redis down") }

func newTestRouter(rcv *stubReceiver, rl ginutil.RateLimiter) *gin.Engine {
	gin.SetMode(gin.TestMode)
	log := logrus.New()
	log.SetOutput(io.Discard)
	return NewRouter(rcv, rl, log)
}

func do(r http.Handler, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader("id=1"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set(webhook.SignatureHeader, "a.b.c")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestNotificationPOST_StatusMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{nil, http.StatusOK, ""},
		{webhook.ErrMissingSignature, http.StatusBadRequest, "missing_signature"},
		{webhook.ErrInvalidSignature, http.StatusBadRequest, "invalid_signature"},
		{webhook.ErrInvalidNotification, http.StatusBadRequest, "invalid_notification"},
		{errors.Join(webhook.ErrUnavailable, errors.New("db")), http.StatusServiceUnavailable, "unavailable"},
	}
	for _, tc := range cases {
		w := do(newTestRouter(&stubReceiver{err: tc.err}, nil), NotificationPath)
		if w.Code != tc.status {
			t.Fatalf("%v: expected %d, got %d", tc.err, tc.status, w.Code)
		}
		var got map[string]any
		if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if tc.err == nil {
			if got["result"] != true {
				t.Fatalf("expected result=true, got %v", got)
			}
			continue
		}
		if got["error"] != tc.code {
			t.Fatalf("expected error %q, got %v", tc.code, got["error"])
		}
	}
}

func TestNotificationPOST_RateLimited(t *testing.T) {
	rcv := &stubReceiver{}
	r := newTestRouter(rcv, denyAll{})
	for _, path := range []string{NotificationPath, NotificationTextPath} {
		if w := do(r, path); w.Code != http.StatusTooManyRequests {
			t.Fatalf("%s: expected 429, got %d", path, w.Code)
		}
	}
	if rcv.calls != 0 {
		t.Fatalf("receiver must not run when rate limited")
	}
}

func TestNotificationPOST_LimiterErrorAdmits(t *testing.T) {
	rcv := &stubReceiver{}
	if w := do(newTestRouter(rcv, brokenLimiter{}), NotificationPath); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestNotificationTextPath(t *testing.T) {
	w := do(newTestRouter(&stubReceiver{}, nil), NotificationTextPath)
	if w.Code != http.StatusOK || w.Body.String() != "TRUE" {
		t.Fatalf("got %d %q", w.Code, w.Body.String())
	}
	w = do(newTestRouter(&stubReceiver{err: webhook.ErrInvalidSignature}, nil), NotificationTextPath)
	if w.Code != http.StatusBadRequest || w.Body.String() != "FALSE" {
		t.Fatalf("got %d %q", w.Code, w.Body.String())
	}
}

func TestHealth(t *testing.T) {
	r := newTestRouter(&stubReceiver{}, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, HealthPath, nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}
