package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"ayl/internal/adapter/beanstalk"
	"ayl/internal/adapter/nsq"
	"ayl/internal/config"
	"ayl/internal/notify"
	"ayl/internal/queue"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
)

type Dependencies struct {
	// Consumer is owned by the worker loop. Admin serves submissions,
	// health checks and quarantine retries on a separate connection.
	Consumer queue.Backend
	Admin    queue.Backend
	// DB is nil unless the quarantine ledger is enabled.
	DB       *sql.DB
	Notifier notify.Notifier
}

// Dialer opens one backend connection.
type Dialer func(ctx context.Context, cfg *config.Config) (queue.Backend, error)

func Bootstrap(ctx context.Context, cfg *config.Config) (*Dependencies, error) {
	return BootstrapWith(ctx, cfg, DialBackend)
}

func BootstrapWith(ctx context.Context, cfg *config.Config, dial Dialer) (*Dependencies, error) {
	retryDelay := time.Duration(cfg.BootstrapRetryDelaySeconds) * time.Second
	deps := &Dependencies{Notifier: NewNotifier(cfg)}

	var err error
	deps.Consumer, err = connectWithRetry(ctx, cfg, dial, cfg.BootstrapRetryAttempts, retryDelay)
	if err != nil {
		return nil, fmt.Errorf("queue backend error: %w", err)
	}
	deps.Admin, err = connectWithRetry(ctx, cfg, dial, cfg.BootstrapRetryAttempts, retryDelay)
	if err != nil {
		deps.Close()
		return nil, fmt.Errorf("queue backend error: %w", err)
	}

	if cfg.LedgerEnabled {
		deps.DB, err = OpenLedger(ctx, cfg)
		if err != nil {
			deps.Close()
			return nil, err
		}
	}

	return deps, nil
}

func (d *Dependencies) Close() {
	if d.Consumer != nil {
		if err := d.Consumer.Close(); err != nil {
			slog.Warn("failed to close consumer backend", "error", err)
		}
	}
	if d.Admin != nil {
		if err := d.Admin.Close(); err != nil {
			slog.Warn("failed to close admin backend", "error", err)
		}
	}
	if d.DB != nil {
		if err := d.DB.Close(); err != nil {
			slog.Warn("failed to close db", "error", err)
		}
	}
}

// DialBackend opens the backend named by QUEUE_BACKEND.
func DialBackend(ctx context.Context, cfg *config.Config) (queue.Backend, error) {
	window := time.Duration(cfg.BeanstalkReserveWindow) * time.Second

	switch cfg.QueueBackend {
	case config.BackendBeanstalk:
		b, err := beanstalk.Dial(cfg.BeanstalkAddr,
			beanstalk.WithReserveWindow(window),
			beanstalk.WithDrain(cfg.WorkerDrain),
		)
		if err != nil {
			return nil, err
		}
		return b, nil
	case config.BackendNSQ:
		opts := nsq.Options{
			NSQDHost:   cfg.NSQDHost,
			NSQLookupd: cfg.NSQLookupd,
			Channel:    cfg.NSQChannel,
		}
		if cfg.WorkerDrain {
			opts.DrainAfter = window
		}
		b, err := nsq.Dial(opts)
		if err != nil {
			return nil, err
		}
		return b, nil
	default:
		return nil, fmt.Errorf("%w: QUEUE_BACKEND %q", config.ErrInvalid, cfg.QueueBackend)
	}
}

func connectWithRetry(ctx context.Context, cfg *config.Config, dial Dialer, attempts int, delay time.Duration) (queue.Backend, error) {
	var lastErr error
	for i := 0; i < max(attempts, 1); i++ {
		b, err := dial(ctx, cfg)
		if err == nil {
			if err = b.Ping(ctx); err == nil {
				return b, nil
			}
			_ = b.Close()
		}
		if errors.Is(err, config.ErrInvalid) {
			return nil, err
		}
		lastErr = err
		slog.WarnContext(ctx, "failed to connect to queue backend, retrying...", "backend", cfg.QueueBackend, "attempt", i+1, "error", err)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, lastErr
}

// NewNotifier logs every alert and, when recipients are configured, also
// mails it through a rate limiter.
func NewNotifier(cfg *config.Config) notify.Notifier {
	chain := notify.Multi{notify.NewLog(slog.Default())}

	if to := cfg.EmailRecipients(); len(to) > 0 {
		email := notify.NewEmail(notify.SmtpConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			From:     cfg.SMTPFrom,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			TLS:      cfg.SMTPTLS,
		}, to)
		chain = append(chain, notify.NewThrottle(email, cfg.NotifyRatePerMinute, cfg.NotifyBurst))
	}
	return chain
}

// OpenLedger connects to Postgres and applies migrations.
func OpenLedger(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	// Retry loop
	retryDelay := time.Duration(cfg.BootstrapRetryDelaySeconds) * time.Second
	for i := 0; i < cfg.BootstrapRetryAttempts; i++ {
		if err := db.PingContext(ctx); err == nil {
			break
		}
		slog.Warn("failed to ping db, retrying...", "attempt", i+1)
		time.Sleep(retryDelay)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	if err := Migrate(db, cfg.MigrationPath); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func Migrate(db *sql.DB, path string) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("migration driver error: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance(path, "postgres", driver)
	if err != nil {
		return fmt.Errorf("migration instance error: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up error: %w", err)
	}
	slog.Info("migrations applied successfully")
	return nil
}
