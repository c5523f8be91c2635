// Package webhook accepts payment notifications: it verifies the JWS signature
// over the raw body, decodes the notification, drops redeliveries, persists the
// notification, and hands it to background processing.
package webhook

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"

	"github.com/PaulFidika/tpayhook/notification"
	"github.com/google/uuid"
	"github.com/mr-tron/base58"
	"github.com/sirupsen/logrus"
)

// SignatureHeader carries the compact JWS on inbound notifications.
const SignatureHeader = "X-JWS-Signature"

var (
	// ErrMissingSignature reports a request without a signature header.
	ErrMissingSignature = errors.New("webhook: missing signature")
	// ErrInvalidSignature reports a signature that did not verify.
	ErrInvalidSignature = errors.New("webhook: invalid signature")
	// ErrInvalidNotification reports a decoded notification whose md5sum does not
	// match the configured security code.
	ErrInvalidNotification = notification.ErrInvalidNotification
	// ErrUnavailable reports a storage or queue failure; the sender should retry.
	ErrUnavailable = errors.New("webhook: temporarily unavailable")
)

// SignatureVerifier checks a compact JWS against the raw body.
type SignatureVerifier interface {
	Verify(ctx context.Context, compact string, body []byte) bool
}

// ReceiptCache remembers notification fingerprints already accepted.
type ReceiptCache interface {
	// Claim records fingerprint and reports whether it was new.
	Claim(ctx context.Context, fingerprint string) (bool, error)
	Release(ctx context.Context, fingerprint string) error
}

// Store persists accepted notifications.
type Store interface {
	// Save returns the record id and whether a new record was written.
	Save(ctx context.Context, n *notification.Notification, body []byte) (uuid.UUID, bool, error)
}

// Queue schedules background processing of a stored notification.
type Queue interface {
	Enqueue(ctx context.Context, recordID uuid.UUID, n *notification.Notification) error
}

// Request is an inbound notification as received over HTTP.
type Request struct {
	Signature   string
	ContentType string
	Body        []byte
}

// Outcome describes an accepted notification. Notification is nil when the
// body verified but is not in a format this package decodes.
type Outcome struct {
	Notification *notification.Notification
	RecordID     uuid.UUID
	Duplicate    bool
	Undecoded    bool
}

// Receiver processes inbound notifications.
type Receiver struct {
	verifier     SignatureVerifier
	receipts     ReceiptCache
	store        Store
	queue        Queue
	securityCode string
	log          logrus.FieldLogger
}

// Option configures a Receiver.
type Option func(*Receiver)

// WithReceiptCache enables redelivery detection.
func WithReceiptCache(c ReceiptCache) Option { return func(r *Receiver) { r.receipts = c } }

// WithStore enables persistence.
func WithStore(s Store) Option { return func(r *Receiver) { r.store = s } }

// WithQueue enables background processing. It only takes effect together with a Store.
func WithQueue(q Queue) Option { return func(r *Receiver) { r.queue = q } }

// WithSecurityCode enables the md5sum check with the merchant security code.
func WithSecurityCode(code string) Option {
	return func(r *Receiver) { r.securityCode = strings.TrimSpace(code) }
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(r *Receiver) {
		if l != nil {
			r.log = l
		}
	}
}

// NewReceiver builds a receiver that trusts only what verifier accepts.
func NewReceiver(verifier SignatureVerifier, opts ...Option) *Receiver {
	r := &Receiver{verifier: verifier, log: logrus.StandardLogger()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Receive verifies and accepts req. Nothing in the body is read before the
// signature has been verified.
func (r *Receiver) Receive(ctx context.Context, req Request) (Outcome, error) {
	sig := strings.TrimSpace(req.Signature)
	if sig == "" {
		r.log.Warn("webhook: notification without signature")
		return Outcome{}, ErrMissingSignature
	}
	if !r.verifier.Verify(ctx, sig, req.Body) {
		return Outcome{}, ErrInvalidSignature
	}

	n, err := notification.Decode(req.ContentType, req.Body)
	if err != nil {
		return r.acceptUndecoded(ctx, req.Body, err)
	}
	if r.securityCode != "" {
		if err := n.CheckMD5(r.securityCode); err != nil {
			r.log.WithError(err).WithField("tr_id", n.TransID).Warn("webhook: md5sum rejected")
			return Outcome{}, err
		}
	}
	log := r.log.WithFields(logrus.Fields{"tr_id": n.TransID, "tr_status": n.Status, "test_mode": n.TestMode})

	fp := n.Fingerprint()
	if r.receipts != nil {
		fresh, err := r.receipts.Claim(ctx, fp)
		switch {
		case err != nil:
			// The store still de-duplicates; a cache outage must not reject genuine notifications.
			log.WithError(err).Warn("webhook: receipt cache unavailable")
		case !fresh:
			log.Info("webhook: duplicate notification")
			return Outcome{Notification: n, Duplicate: true}, nil
		}
	}

	out := Outcome{Notification: n}
	if r.store == nil {
		out.RecordID = uuid.New()
		log.WithField("record_id", out.RecordID).Info("webhook: notification accepted")
		return out, nil
	}

	id, inserted, err := r.store.Save(ctx, n, req.Body)
	if err != nil {
		r.release(ctx, fp)
		log.WithError(err).Error("webhook: failed to store notification")
		return Outcome{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	out.RecordID = id
	out.Duplicate = !inserted

	// Enqueue even for stored duplicates; the queue is unique per record, and this
	// recovers notifications whose earlier enqueue failed.
	if r.queue != nil {
		if err := r.queue.Enqueue(ctx, id, n); err != nil {
			r.release(ctx, fp)
			log.WithError(err).Error("webhook: failed to enqueue notification")
			return Outcome{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
	}
	log.WithFields(logrus.Fields{"record_id": id, "duplicate": out.Duplicate}).Info("webhook: notification accepted")
	return out, nil
}

// acceptUndecoded acknowledges a verified body that does not decode. The sender
// signed it, so rejecting would only cause redelivery; it is logged and
// de-duplicated by body hash but neither stored nor enqueued.
func (r *Receiver) acceptUndecoded(ctx context.Context, body []byte, decodeErr error) (Outcome, error) {
	out := Outcome{RecordID: uuid.New(), Undecoded: true}
	log := r.log.WithError(decodeErr).WithFields(logrus.Fields{"record_id": out.RecordID, "body_bytes": len(body)})
	if r.receipts != nil {
		fresh, err := r.receipts.Claim(ctx, BodyFingerprint(body))
		switch {
		case err != nil:
			log.WithField("cache_error", err.Error()).Warn("webhook: receipt cache unavailable")
		case !fresh:
			out.Duplicate = true
		}
	}
	log.WithField("duplicate", out.Duplicate).Warn("webhook: verified notification could not be decoded, accepted without processing")
	return out, nil
}

// BodyFingerprint identifies a raw body for de-duplication when it cannot be decoded.
func BodyFingerprint(body []byte) string {
	sum := sha256.Sum256(body)
	return "raw:" + base58.Encode(sum[:])
}

func (r *Receiver) release(ctx context.Context, fp string) {
	if r.receipts == nil {
		return
	}
	if err := r.receipts.Release(ctx, fp); err != nil {
		r.log.WithError(err).Warn("webhook: failed to release receipt")
	}
}
