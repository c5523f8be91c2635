package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Pruner deletes notifications received before a cutoff.
type Pruner interface {
	DeleteReceivedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// RetentionSweeper deletes stored notifications older than the retention window
// on a cron schedule.
type RetentionSweeper struct {
	store     Pruner
	retention time.Duration
	log       logrus.FieldLogger
	now       func() time.Time
	cron      *cron.Cron
}

// NewRetentionSweeper builds a sweeper. If retention <= 0, 90 days is used.
func NewRetentionSweeper(store Pruner, retention time.Duration, log logrus.FieldLogger) *RetentionSweeper {
	if retention <= 0 {
		retention = 90 * 24 * time.Hour
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &RetentionSweeper{store: store, retention: retention, log: log, now: time.Now}
}

// Start schedules the sweep with a standard cron spec or descriptor such as "@daily".
func (s *RetentionSweeper) Start(spec string) error {
	if spec == "" {
		spec = "@daily"
	}
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		_, _ = s.Sweep(ctx)
	}); err != nil {
		return err
	}
	s.cron = c
	c.Start()
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *RetentionSweeper) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
}

// Sweep deletes expired notifications once.
func (s *RetentionSweeper) Sweep(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-s.retention)
	n, err := s.store.DeleteReceivedBefore(ctx, cutoff)
	if err != nil {
		s.log.WithError(err).Error("jobs: retention sweep failed")
		return 0, err
	}
	s.log.WithFields(logrus.Fields{"deleted": n, "cutoff": cutoff}).Info("jobs: retention sweep finished")
	return n, nil
}
