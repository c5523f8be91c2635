package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/PaulFidika/tpayhook/adapters/ginutil"
	webhookgin "github.com/PaulFidika/tpayhook/adapters/gin"
	certkit "github.com/PaulFidika/tpayhook/certs"
	"github.com/PaulFidika/tpayhook/config"
	"github.com/PaulFidika/tpayhook/jobs"
	jwskit "github.com/PaulFidika/tpayhook/jws"
	memorylimiter "github.com/PaulFidika/tpayhook/ratelimit/memory"
	redislimiter "github.com/PaulFidika/tpayhook/ratelimit/redis"
	memorystore "github.com/PaulFidika/tpayhook/storage/memory"
	pgstore "github.com/PaulFidika/tpayhook/storage/postgres"
	redisstore "github.com/PaulFidika/tpayhook/storage/redis"
	"github.com/PaulFidika/tpayhook/webhook"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the notification endpoint",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, log)
		},
	}
}

func newVerifier(cfg *config.Config, log logrus.FieldLogger) (*jwskit.Verifier, error) {
	resolver, err := certkit.NewResolver(cfg.CARootCertificate, cfg.SignatureCertificate,
		certkit.WithFetcher(certkit.NewHTTPFetcher(cfg.FetchTimeout)),
		certkit.WithLogger(log),
	)
	if err != nil {
		return nil, err
	}
	log.WithField("x5u", resolver.SignatureURL()).Info("trusting signature certificate")
	return jwskit.NewVerifier(resolver, jwskit.WithLogger(log)), nil
}

// paymentLogger is the default payment handler: it records the outcome of each
// stored notification.
func paymentLogger(log logrus.FieldLogger) jobs.PaymentHandler {
	return jobs.PaymentHandlerFunc(func(ctx context.Context, rec *pgstore.Record) error {
		n := rec.Notification()
		entry := log.WithFields(logrus.Fields{
			"record_id": rec.ID,
			"tr_id":     rec.TransID,
			"tr_status": rec.Status,
			"paid":      n.Paid.String(),
			"test_mode": rec.TestMode,
		})
		switch {
		case !n.IsPaid():
			entry.WithField("tr_error", rec.Error).Warn("payment not completed")
		case n.Overpaid():
			entry.WithField("amount", n.Amount.String()).Warn("payment overpaid")
		default:
			entry.Info("payment completed")
		}
		return nil
	})
}

func serve(ctx context.Context, cfg *config.Config, log *logrus.Logger) error {
	verifier, err := newVerifier(cfg, log)
	if err != nil {
		return err
	}
	opts := []webhook.Option{webhook.WithLogger(log), webhook.WithSecurityCode(cfg.SecurityCode)}

	var limiter ginutil.RateLimiter
	if cfg.RedisURL != "" {
		ropts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return err
		}
		rdb := redis.NewClient(ropts)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return err
		}
		opts = append(opts, webhook.WithReceiptCache(redisstore.NewReceiptCache(rdb, "", cfg.ReceiptTTL)))
		limiter = redislimiter.New(rdb, "", redislimiter.Limit{Limit: cfg.RateLimit, Window: cfg.RateWindow})
		log.Info("using redis for receipts and rate limiting")
	} else {
		receipts := memorystore.NewReceiptCache(cfg.ReceiptTTL)
		defer receipts.Close()
		opts = append(opts, webhook.WithReceiptCache(receipts))
		ml := memorylimiter.New(memorylimiter.Limit{Limit: cfg.RateLimit, Window: cfg.RateWindow})
		sweeps := cron.New()
		if _, err := sweeps.AddFunc("@every 1m", ml.Sweep); err != nil {
			return err
		}
		sweeps.Start()
		defer sweeps.Stop()
		limiter = ml
	}
	if cfg.RateLimit == 0 {
		limiter = nil
	}

	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pool.Close()
		store := pgstore.NewStore(pool, "")

		worker := jobs.NewNotificationWorker(store, paymentLogger(log), log)
		client, err := jobs.NewClient(pool, worker, cfg.Workers)
		if err != nil {
			return err
		}
		if err := client.Start(ctx); err != nil {
			return err
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = client.Stop(stopCtx)
		}()

		sweeper := jobs.NewRetentionSweeper(store, cfg.Retention, log)
		if err := sweeper.Start(cfg.RetentionSchedule); err != nil {
			return err
		}
		defer sweeper.Stop()

		opts = append(opts, webhook.WithStore(store), webhook.WithQueue(jobs.NewRiverQueue(client)))
		log.Info("using postgres for notifications")
	}

	rcv := webhook.NewReceiver(verifier, opts...)
	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           webhookgin.NewRouter(rcv, limiter, log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.HTTPAddr).Info("listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	log.Info("shutting down")
	return srv.Shutdown(shutdownCtx)
}
