package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ricirt/job-harvester/internal/config"
	"github.com/ricirt/job-harvester/internal/db"
	"github.com/ricirt/job-harvester/internal/failurelog"
	"github.com/ricirt/job-harvester/internal/queue"
	"github.com/ricirt/job-harvester/internal/ratelimiter"
	"github.com/ricirt/job-harvester/internal/repository"
	"github.com/ricirt/job-harvester/internal/retry"
	"github.com/ricirt/job-harvester/internal/scraper"
	"github.com/ricirt/job-harvester/internal/service"
	"github.com/ricirt/job-harvester/internal/sink"
	"github.com/ricirt/job-harvester/internal/worker"
)

// app holds the process-wide dependencies shared by every command.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	store  service.Store
	pool   *pgxpool.Pool
	rdb    *redis.Client

	closers []func()
}

// newApp loads configuration, builds the logger and opens the queue store.
// With migrate set, pending PostgreSQL migrations are applied first.
func newApp(ctx context.Context, migrate bool) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := newLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger}
	a.closers = append(a.closers, func() { _ = logger.Sync() })

	if err := a.openStore(ctx, migrate); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *app) openStore(ctx context.Context, migrate bool) error {
	switch a.cfg.QueueBackend {
	case config.BackendPostgres:
		pool, err := a.postgres(ctx, migrate)
		if err != nil {
			return err
		}
		a.store = repository.NewPgQueue(pool)

	case config.BackendRedis:
		rdb, err := db.ConnectRedis(ctx, a.cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		a.rdb = rdb
		a.closers = append(a.closers, func() { _ = rdb.Close() })
		a.store = repository.NewRedisQueue(rdb, a.cfg.RedisKeyPrefix)

	case config.BackendMemory:
		a.logger.Warn("using in-memory queue; work items are lost when the process exits")
		a.store = queue.NewMemoryQueue()
	}

	a.logger.Info("queue store ready", zap.String("backend", a.cfg.QueueBackend))
	return nil
}

// postgres returns the shared pool, connecting and migrating on first use.
func (a *app) postgres(ctx context.Context, migrate bool) (*pgxpool.Pool, error) {
	if a.pool != nil {
		return a.pool, nil
	}
	if migrate {
		if err := db.Migrate(a.cfg.DatabaseURL); err != nil {
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		a.logger.Info("database migrations applied")
	}

	pool, err := db.Connect(ctx, a.cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	a.pool = pool
	a.closers = append(a.closers, pool.Close)
	return pool, nil
}

// sinks builds the configured sink chain: the HTML snapshot and text summary
// always, then the S3 mirror, the webhook and the job_records table when
// enabled.
func (a *app) sinks(ctx context.Context) (sink.Sink, error) {
	chain := sink.Multi{
		sink.NewSnapshotSink(a.cfg.HTMLDir),
		sink.NewSummarySink(a.cfg.TextDir),
	}

	if a.cfg.S3Bucket != "" {
		client, err := sink.NewS3Client(ctx, sink.S3Config{
			Bucket:    a.cfg.S3Bucket,
			Region:    a.cfg.S3Region,
			Endpoint:  a.cfg.S3Endpoint,
			Prefix:    a.cfg.S3Prefix,
			AccessKey: a.cfg.S3AccessKey,
			SecretKey: a.cfg.S3SecretKey,
		})
		if err != nil {
			return nil, err
		}
		chain = append(chain, sink.NewS3SnapshotSink(client, a.cfg.S3Bucket, a.cfg.S3Prefix))
	}

	if a.cfg.WebhookURL != "" {
		chain = append(chain, sink.NewWebhookSink(a.cfg.WebhookURL, a.cfg.WebhookTimeout))
	}

	if a.cfg.RecordsToPostgres {
		pool, err := a.postgres(ctx, true)
		if err != nil {
			return nil, err
		}
		chain = append(chain, repository.NewPgRecordRepository(pool))
	}

	a.logger.Info("sinks configured", zap.String("chain", chain.Name()))
	return chain, nil
}

// processor wires the scraper, retry policy, sinks and failure log around
// the queue store.
func (a *app) processor(ctx context.Context, hooks worker.Hooks) (*worker.Processor, error) {
	out, err := a.sinks(ctx)
	if err != nil {
		return nil, err
	}

	flog, err := failurelog.Open(a.cfg.FailureLogPath)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() { _ = flog.Close() })

	s := scraper.New(scraper.Options{
		UserAgent: a.cfg.UserAgent,
		Timeout:   a.cfg.FetchTimeout,
		Limiter:   ratelimiter.New(a.cfg.FetchRatePerSec, a.cfg.FetchBurst),
		Logger:    a.logger.Named("scraper"),
	})

	return worker.NewProcessor(worker.Options{
		Queue: a.store,
		Fetch: s.Fetch,
		Sink:  out,
		Retry: retry.Policy{
			MaxAttempts: a.cfg.RetryMaxAttempts,
			BaseDelay:   a.cfg.RetryBaseDelay,
			MaxDelay:    a.cfg.RetryMaxDelay,
			Jitter:      a.cfg.RetryJitter,
		},
		Failures:        flog,
		DeadLetterAfter: a.cfg.DeadLetterAfter,
		Hooks:           hooks,
		Logger:          a.logger.Named("processor"),
	}), nil
}

// close releases resources in reverse order of acquisition.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// newLogger builds the process logger. format "console" switches to the
// human-readable development encoder.
func newLogger(level, format string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", level, err)
	}
	if debug {
		lvl = zapcore.DebugLevel
	}

	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(lvl)
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if format == "console" {
		zc.Encoding = "console"
		zc.EncoderConfig = zap.NewDevelopmentEncoderConfig()
		zc.Sampling = nil
	}
	return zc.Build()
}

// signalContext returns a context cancelled by the first SIGINT or SIGTERM.
// After that signal the default handling is restored, so a second one kills
// the process without waiting for the drain.
func signalContext(logger *zap.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigs:
			signal.Stop(sigs)
			logger.Info("shutdown signal received, finishing current item; signal again to exit immediately",
				zap.String("signal", sig.String()))
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigs)
		cancel()
	}
}
