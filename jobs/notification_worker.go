// Package jobs runs the background side of notification handling: a river
// worker that processes stored notifications and a cron-driven retention sweep.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/PaulFidika/tpayhook/notification"
	pgstore "github.com/PaulFidika/tpayhook/storage/postgres"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivertype"
	"github.com/sirupsen/logrus"
)

// NotificationArgs identifies a stored notification awaiting processing.
type NotificationArgs struct {
	RecordID uuid.UUID `json:"record_id"`
	TransID  string    `json:"tr_id"`
	Status   string    `json:"tr_status"`
}

func (NotificationArgs) Kind() string { return "payment_notification" }

// InsertOpts makes one job per record.
func (NotificationArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		MaxAttempts: 10,
		UniqueOpts:  river.UniqueOpts{ByArgs: true},
	}
}

// RecordStore is the part of the notification store the worker needs.
type RecordStore interface {
	Get(ctx context.Context, id uuid.UUID) (*pgstore.Record, error)
	MarkProcessed(ctx context.Context, id uuid.UUID) error
}

// PaymentHandler applies a verified notification to the application, e.g. by
// marking an order paid. It must be idempotent; jobs are retried on error.
type PaymentHandler interface {
	HandleNotification(ctx context.Context, rec *pgstore.Record) error
}

// PaymentHandlerFunc adapts a function to PaymentHandler.
type PaymentHandlerFunc func(ctx context.Context, rec *pgstore.Record) error

func (f PaymentHandlerFunc) HandleNotification(ctx context.Context, rec *pgstore.Record) error {
	return f(ctx, rec)
}

// NotificationWorker processes NotificationArgs jobs.
type NotificationWorker struct {
	river.WorkerDefaults[NotificationArgs]
	store   RecordStore
	handler PaymentHandler
	log     logrus.FieldLogger
}

// NewNotificationWorker builds a worker. handler may be nil, in which case
// notifications are only marked processed.
func NewNotificationWorker(store RecordStore, handler PaymentHandler, log logrus.FieldLogger) *NotificationWorker {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &NotificationWorker{store: store, handler: handler, log: log}
}

func (w *NotificationWorker) Work(ctx context.Context, job *river.Job[NotificationArgs]) error {
	log := w.log.WithFields(logrus.Fields{"record_id": job.Args.RecordID, "tr_id": job.Args.TransID, "attempt": job.Attempt})
	rec, err := w.store.Get(ctx, job.Args.RecordID)
	if err != nil {
		return fmt.Errorf("load notification: %w", err)
	}
	if rec == nil {
		return river.JobCancel(errors.New("notification record no longer exists"))
	}
	if rec.ProcessedAt != nil {
		log.Debug("jobs: notification already processed")
		return nil
	}
	if w.handler != nil {
		if err := w.handler.HandleNotification(ctx, rec); err != nil {
			log.WithError(err).Warn("jobs: payment handler failed")
			return err
		}
	}
	if err := w.store.MarkProcessed(ctx, rec.ID); err != nil {
		return fmt.Errorf("mark processed: %w", err)
	}
	log.Info("jobs: notification processed")
	return nil
}

// Timeout bounds a single attempt.
func (w *NotificationWorker) Timeout(*river.Job[NotificationArgs]) time.Duration { return time.Minute }

// NewClient builds a river client on pool with the notification worker registered.
func NewClient(pool *pgxpool.Pool, worker *NotificationWorker, maxWorkers int) (*river.Client[pgx.Tx], error) {
	if maxWorkers <= 0 {
		maxWorkers = 10
	}
	workers := river.NewWorkers()
	if err := river.AddWorkerSafely(workers, worker); err != nil {
		return nil, err
	}
	return river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: maxWorkers},
		},
		Workers: workers,
	})
}

// JobInserter is the part of a river client the queue needs.
type JobInserter interface {
	Insert(ctx context.Context, args river.JobArgs, opts *river.InsertOpts) (*rivertype.JobInsertResult, error)
}

// RiverQueue enqueues stored notifications on a river client.
type RiverQueue struct {
	client JobInserter
}

func NewRiverQueue(client JobInserter) *RiverQueue { return &RiverQueue{client: client} }

func (q *RiverQueue) Enqueue(ctx context.Context, recordID uuid.UUID, n *notification.Notification) error {
	_, err := q.client.Insert(ctx, NotificationArgs{RecordID: recordID, TransID: n.TransID, Status: n.Status}, nil)
	return err
}
