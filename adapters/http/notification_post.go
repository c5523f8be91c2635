// Package webhookhttp exposes the notification receiver as a net/http handler
// answering in the plain-text form the payment provider expects.
package webhookhttp

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/PaulFidika/tpayhook/webhook"
)

// MaxBodyBytes caps inbound notification bodies.
const MaxBodyBytes = 1 << 20

// Receiver is implemented by *webhook.Receiver.
type Receiver interface {
	Receive(ctx context.Context, req webhook.Request) (webhook.Outcome, error)
}

// NotificationHandler accepts POSTed notifications. It answers "TRUE" only when
// the notification was verified and accepted; any failure answers "FALSE" with a
// non-2xx status so the provider redelivers.
func NotificationHandler(rcv Receiver) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
		if err != nil {
			writeText(w, http.StatusRequestEntityTooLarge, "FALSE")
			return
		}
		_, err = rcv.Receive(r.Context(), webhook.Request{
			Signature:   r.Header.Get(webhook.SignatureHeader),
			ContentType: r.Header.Get("Content-Type"),
			Body:        body,
		})
		writeText(w, StatusFor(err), responseText(err))
	})
}

// StatusFor maps a Receive error to an HTTP status.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, webhook.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadRequest
	}
}

func responseText(err error) string {
	if err == nil {
		return "TRUE"
	}
	return "FALSE"
}

func writeText(w http.ResponseWriter, status int, text string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, text)
}
