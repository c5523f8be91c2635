package webhook_test

import (
	"context"
	"errors"
	"io"
	"testing"

	certkit "github.com/PaulFidika/tpayhook/certs"
	jwskit "github.com/PaulFidika/tpayhook/jws"
	"github.com/PaulFidika/tpayhook/notification"
	memorystore "github.com/PaulFidika/tpayhook/storage/memory"
	paytest "github.com/PaulFidika/tpayhook/testing"
	"github.com/PaulFidika/tpayhook/webhook"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const body = "id=1010&tr_id=TR-1&tr_amount=10.00&tr_paid=10.00&tr_status=TRUE&tr_error=none"

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newVerifier(t *testing.T, ca *paytest.TestCA) *jwskit.Verifier {
	t.Helper()
	r, err := certkit.NewResolver(ca.RootURL(), ca.LeafURL(), certkit.WithLogger(quietLogger()))
	if err != nil {
		t.Fatal(err)
	}
	return jwskit.NewVerifier(r, jwskit.WithLogger(quietLogger()))
}

type fakeStore struct {
	saved map[string]uuid.UUID
	err   error
}

func (s *fakeStore) Save(ctx context.Context, n *notification.Notification, b []byte) (uuid.UUID, bool, error) {
	if s.err != nil {
		return uuid.Nil, false, s.err
	}
	if id, ok := s.saved[n.Fingerprint()]; ok {
		return id, false, nil
	}
	id := uuid.New()
	s.saved[n.Fingerprint()] = id
	return id, true, nil
}

type fakeQueue struct {
	ids []uuid.UUID
	err error
}

func (q *fakeQueue) Enqueue(ctx context.Context, id uuid.UUID, n *notification.Notification) error {
	if q.err != nil {
		return q.err
	}
	q.ids = append(q.ids, id)
	return nil
}

func TestReceive_AcceptsSignedNotification(t *testing.T) {
	ca := paytest.NewTestCA()
	defer ca.Close()
	store := &fakeStore{saved: map[string]uuid.UUID{}}
	queue := &fakeQueue{}
	rcv := webhook.NewReceiver(newVerifier(t, ca), webhook.WithStore(store), webhook.WithQueue(queue), webhook.WithLogger(quietLogger()))

	out, err := rcv.Receive(context.Background(), webhook.Request{Signature: ca.Sign([]byte(body)), Body: []byte(body)})
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if out.Duplicate || out.RecordID == uuid.Nil || out.Notification.TransID != "TR-1" {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if len(queue.ids) != 1 || queue.ids[0] != out.RecordID {
		t.Fatalf("expected record to be enqueued, got %v", queue.ids)
	}
}

func TestReceive_RejectsBeforeDecoding(t *testing.T) {
	ca := paytest.NewTestCA()
	defer ca.Close()
	store := &fakeStore{saved: map[string]uuid.UUID{}}
	rcv := webhook.NewReceiver(newVerifier(t, ca), webhook.WithStore(store), webhook.WithLogger(quietLogger()))
	ctx := context.Background()

	if _, err := rcv.Receive(ctx, webhook.Request{Body: []byte(body)}); !errors.Is(err, webhook.ErrMissingSignature) {
		t.Fatalf("expected ErrMissingSignature, got %v", err)
	}
	tampered := []byte(body + "&tr_paid=1000.00")
	if _, err := rcv.Receive(ctx, webhook.Request{Signature: ca.Sign([]byte(body)), Body: tampered}); !errors.Is(err, webhook.ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
	if len(store.saved) != 0 {
		t.Fatal("expected nothing to be stored")
	}
}

func TestReceive_Duplicates(t *testing.T) {
	ca := paytest.NewTestCA()
	defer ca.Close()
	cache := memorystore.NewReceiptCache(0)
	defer cache.Close()
	store := &fakeStore{saved: map[string]uuid.UUID{}}
	rcv := webhook.NewReceiver(newVerifier(t, ca), webhook.WithReceiptCache(cache), webhook.WithStore(store), webhook.WithLogger(quietLogger()))
	req := webhook.Request{Signature: ca.Sign([]byte(body)), Body: []byte(body)}

	if out, err := rcv.Receive(context.Background(), req); err != nil || out.Duplicate {
		t.Fatalf("first delivery: %+v %v", out, err)
	}
	if out, err := rcv.Receive(context.Background(), req); err != nil || !out.Duplicate {
		t.Fatalf("second delivery: %+v %v", out, err)
	}
}

func TestReceive_StoreFailureReleasesReceipt(t *testing.T) {
	ca := paytest.NewTestCA()
	defer ca.Close()
	cache := memorystore.NewReceiptCache(0)
	defer cache.Close()
	store := &fakeStore{saved: map[string]uuid.UUID{}, err: errors.New("db down")}
	rcv := webhook.NewReceiver(newVerifier(t, ca), webhook.WithReceiptCache(cache), webhook.WithStore(store), webhook.WithLogger(quietLogger()))
	req := webhook.Request{Signature: ca.Sign([]byte(body)), Body: []byte(body)}

	if _, err := rcv.Receive(context.Background(), req); !errors.Is(err, webhook.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	store.err = nil
	if out, err := rcv.Receive(context.Background(), req); err != nil || out.Duplicate {
		t.Fatalf("retry after outage: %+v %v", out, err)
	}
}

func TestReceive_SecurityCode(t *testing.T) {
	ca := paytest.NewTestCA()
	defer ca.Close()
	rcv := webhook.NewReceiver(newVerifier(t, ca), webhook.WithSecurityCode("secret"), webhook.WithLogger(quietLogger()))

	if _, err := rcv.Receive(context.Background(), webhook.Request{Signature: ca.Sign([]byte(body)), Body: []byte(body)}); !errors.Is(err, webhook.ErrInvalidNotification) {
		t.Fatalf("expected md5sum rejection, got %v", err)
	}
}

func TestReceive_AcceptsVerifiedUndecodableBody(t *testing.T) {
	ca := paytest.NewTestCA()
	defer ca.Close()
	cache := memorystore.NewReceiptCache(0)
	defer cache.Close()
	store := &fakeStore{saved: map[string]uuid.UUID{}}
	queue := &fakeQueue{}
	rcv := webhook.NewReceiver(newVerifier(t, ca),
		webhook.WithReceiptCache(cache), webhook.WithStore(store), webhook.WithQueue(queue), webhook.WithLogger(quietLogger()))

	marketplace := []byte(`{"type":"marketplace_transaction","data":{"transactionId":"01H","status":"correct","amount":10.5}}`)
	req := webhook.Request{Signature: ca.Sign(marketplace), ContentType: "application/json", Body: marketplace}

	out, err := rcv.Receive(context.Background(), req)
	if err != nil {
		t.Fatalf("expected verified body to be accepted, got %v", err)
	}
	if !out.Undecoded || out.Notification != nil || out.Duplicate || out.RecordID == uuid.Nil {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if len(store.saved) != 0 || len(queue.ids) != 0 {
		t.Fatal("undecoded body must not be stored or enqueued")
	}

	out, err = rcv.Receive(context.Background(), req)
	if err != nil || !out.Duplicate {
		t.Fatalf("redelivery: %+v %v", out, err)
	}

	// An unsigned copy of the same body is still rejected.
	if _, err := rcv.Receive(context.Background(), webhook.Request{Signature: ca.Sign([]byte("other")), Body: marketplace}); !errors.Is(err, webhook.ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}
