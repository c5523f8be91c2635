package jobs

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/PaulFidika/tpayhook/notification"
	pgstore "github.com/PaulFidika/tpayhook/storage/postgres"
	"github.com/google/uuid"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
	"github.com/sirupsen/logrus"
)

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type memRecords struct {
	recs      map[uuid.UUID]*pgstore.Record
	processed []uuid.UUID
}

func (m *memRecords) Get(ctx context.Context, id uuid.UUID) (*pgstore.Record, error) {
	return m.recs[id], nil
}

func (m *memRecords) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	now := time.Now()
	m.recs[id].ProcessedAt = &now
	m.processed = append(m.processed, id)
	return nil
}

func job(id uuid.UUID) *river.Job[NotificationArgs] {
	return &river.Job[NotificationArgs]{
		JobRow: &rivertype.JobRow{Attempt: 1},
		Args:   NotificationArgs{RecordID: id, TransID: "TR-1"},
	}
}

func TestNotificationWorker_ProcessesOnce(t *testing.T) {
	id := uuid.New()
	store := &memRecords{recs: map[uuid.UUID]*pgstore.Record{id: {ID: id, TransID: "TR-1"}}}
	calls := 0
	w := NewNotificationWorker(store, PaymentHandlerFunc(func(ctx context.Context, rec *pgstore.Record) error {
		calls++
		return nil
	}), quietLogger())

	for i := 0; i < 2; i++ {
		if err := w.Work(context.Background(), job(id)); err != nil {
			t.Fatalf("Work #%d: %v", i, err)
		}
	}
	if calls != 1 || len(store.processed) != 1 {
		t.Fatalf("expected one handler call, got calls=%d processed=%d", calls, len(store.processed))
	}
}

func TestNotificationWorker_HandlerErrorRetries(t *testing.T) {
	id := uuid.New()
	store := &memRecords{recs: map[uuid.UUID]*pgstore.Record{id: {ID: id}}}
	w := NewNotificationWorker(store, PaymentHandlerFunc(func(ctx context.Context, rec *pgstore.Record) error {
		return errors.New("order service down")
	}), quietLogger())

	if err := w.Work(context.Background(), job(id)); err == nil {
		t.Fatal("expected error so the job is retried")
	}
	if len(store.processed) != 0 {
		t.Fatal("expected record to stay unprocessed")
	}
}

func TestNotificationWorker_MissingRecordCancels(t *testing.T) {
	w := NewNotificationWorker(&memRecords{recs: map[uuid.UUID]*pgstore.Record{}}, nil, quietLogger())
	err := w.Work(context.Background(), job(uuid.New()))
	if err == nil || !strings.Contains(err.Error(), "no longer exists") {
		t.Fatalf("expected cancellation, got %v", err)
	}
}

type recordingInserter struct {
	args []river.JobArgs
}

func (r *recordingInserter) Insert(ctx context.Context, args river.JobArgs, opts *river.InsertOpts) (*rivertype.JobInsertResult, error) {
	r.args = append(r.args, args)
	return &rivertype.JobInsertResult{}, nil
}

func TestRiverQueue_Enqueue(t *testing.T) {
	ins := &recordingInserter{}
	q := NewRiverQueue(ins)
	id := uuid.New()
	n := &notification.Notification{TransID: "TR-9", Status: notification.StatusTrue}
	if err := q.Enqueue(context.Background(), id, n); err != nil {
		t.Fatal(err)
	}
	args, ok := ins.args[0].(NotificationArgs)
	if !ok || args.RecordID != id || args.TransID != "TR-9" {
		t.Fatalf("unexpected args: %#v", ins.args)
	}
	if args.Kind() != "payment_notification" {
		t.Fatalf("unexpected kind %q", args.Kind())
	}
}

type fakePruner struct {
	cutoff time.Time
}

func (p *fakePruner) DeleteReceivedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	p.cutoff = cutoff
	return 3, nil
}

func TestRetentionSweeper_Sweep(t *testing.T) {
	p := &fakePruner{}
	s := NewRetentionSweeper(p, 24*time.Hour, quietLogger())
	now := time.Date(2024, 7, 7, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	n, err := s.Sweep(context.Background())
	if err != nil || n != 3 {
		t.Fatalf("Sweep: n=%d err=%v", n, err)
	}
	if !p.cutoff.Equal(now.Add(-24 * time.Hour)) {
		t.Fatalf("unexpected cutoff %s", p.cutoff)
	}
}

func TestRetentionSweeper_StartRejectsBadSpec(t *testing.T) {
	s := NewRetentionSweeper(&fakePruner{}, 0, quietLogger())
	if err := s.Start("not a cron spec"); err == nil {
		t.Fatal("expected invalid spec error")
	}
	if err := s.Start("@every 1h"); err != nil {
		t.Fatal(err)
	}
	s.Stop()
}
