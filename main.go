// Command ayl runs and feeds reliable queue workers.
//
// Subcommands:
//
//	worker   reserve, execute and dispose of jobs from one queue
//	submit   enqueue a message
//	serve    admin HTTP only (health, metrics, quarantine ledger)
//	migrate  apply quarantine ledger migrations and exit
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"ayl/internal/app"
	"ayl/internal/config"
	"ayl/internal/handlers"
	"ayl/internal/logger"
	"ayl/internal/message"
	"ayl/internal/worker"
)

func main() {
	root := &cobra.Command{
		Use:           "ayl",
		Short:         "Reliable beanstalkd/NSQ queue worker",
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	root.AddCommand(
		workerCmd(),
		submitCmd(),
		serveCmd(),
		migrateCmd(),
	)

	if err := root.Execute(); err != nil {
		if code, ok := worker.ExitCode(err); ok {
			slog.Info("exiting on handler request", "code", code)
			os.Exit(code)
		}
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func setup() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return nil, err
	}
	slog.SetDefault(logger.New(os.Stdout, cfg.LogLevel, cfg.LogFormat))
	return cfg, nil
}

func registry() *message.Registry {
	r := message.NewRegistry()
	handlers.Register(r)
	return r
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// ── worker ───────────────────────────────────────────────────────────────────

func workerCmd() *cobra.Command {
	var (
		tube  string
		drain bool
	)
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Consume jobs from a queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup()
			if err != nil {
				return err
			}
			if tube != "" {
				cfg.QueueName = tube
			}
			if cmd.Flags().Changed("drain") {
				cfg.WorkerDrain = drain
			}
			return runWorker(cfg)
		},
	}
	cmd.Flags().StringVarP(&tube, "tube", "t", "", "queue to consume (default QUEUE_NAME)")
	cmd.Flags().BoolVar(&drain, "drain", false, "exit once the queue is empty")
	return cmd
}

func runWorker(cfg *config.Config) error {
	ctx, stop := signalContext()
	defer stop()

	deps, err := app.Bootstrap(ctx, cfg)
	if err != nil {
		return err
	}
	defer deps.Close()

	c := app.Wire(cfg, deps, registry())

	if cfg.AdminEnabled {
		adminCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go func() {
			if err := app.New(cfg, c).Run(adminCtx); err != nil {
				slog.Error("admin server failed", "error", err)
			}
		}()
	}

	res, err := c.Loop.Run(ctx, cfg.QueueName)
	slog.Info("worker finished", "reason", res.Reason.String(), "processed", res.Processed)
	return err
}

// ── submit ───────────────────────────────────────────────────────────────────

func submitCmd() *cobra.Command {
	var (
		tube      string
		handler   string
		rawArgs   string
		priority  uint32
		delay     time.Duration
		ttr       time.Duration
		onFailure string
		threshold int
		decay     time.Duration
		mode      string
	)
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Enqueue a message",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup()
			if err != nil {
				return err
			}
			// Submitting never needs the ledger.
			cfg.LedgerEnabled = false

			if !json.Valid([]byte(rawArgs)) {
				return fmt.Errorf("--args is not valid JSON: %s", rawArgs)
			}

			m := message.New(handler, json.RawMessage(rawArgs))
			m.Options = message.Options{Queue: tube, Priority: priority, Delay: delay, TimeToRun: ttr}
			m.Policy = message.Policy{
				OnFailure:      message.Action(onFailure),
				DecayThreshold: threshold,
				DecayDelay:     decay,
				RetryMode:      message.RetryMode(mode),
			}

			ctx, stop := signalContext()
			defer stop()

			deps, err := app.BootstrapWith(ctx, cfg, app.DialBackend)
			if err != nil {
				return err
			}
			defer deps.Close()

			id, err := app.Wire(cfg, deps, registry()).Engine.Submit(ctx, m)
			if err != nil {
				return err
			}
			fmt.Println(id)
			return nil
		},
	}
	cmd.Flags().StringVarP(&tube, "tube", "t", "", "destination queue (default QUEUE_NAME)")
	cmd.Flags().StringVar(&handler, "handler", "", "registered handler name")
	cmd.Flags().StringVar(&rawArgs, "args", "{}", "handler arguments as JSON")
	cmd.Flags().Uint32Var(&priority, "priority", 0, "job priority (default DEFAULT_PRIORITY)")
	cmd.Flags().DurationVar(&delay, "delay", 0, "delay before the job becomes ready")
	cmd.Flags().DurationVar(&ttr, "ttr", 0, "time to run (default DEFAULT_TTR_SECONDS)")
	cmd.Flags().StringVar(&onFailure, "on-failure", "", "delete, decay or bury (default FAILED_JOB_HANDLER)")
	cmd.Flags().IntVar(&threshold, "decay-threshold", 0, "reservations before a decaying job is buried")
	cmd.Flags().DurationVar(&decay, "decay-delay", 0, "delay between decays")
	cmd.Flags().StringVar(&mode, "retry-mode", "", "attempts or age (default RETRY_MODE)")
	_ = cmd.MarkFlagRequired("handler")
	return cmd
}

// ── serve ────────────────────────────────────────────────────────────────────

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the admin HTTP server only",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup()
			if err != nil {
				return err
			}

			ctx, stop := signalContext()
			defer stop()

			deps, err := app.Bootstrap(ctx, cfg)
			if err != nil {
				return err
			}
			defer deps.Close()

			// The consumer connection is unused here.
			if err := deps.Consumer.Close(); err != nil {
				slog.Warn("failed to close consumer backend", "error", err)
			}
			deps.Consumer = nil

			return app.New(cfg, app.Wire(cfg, deps, registry())).Run(ctx)
		},
	}
}

// ── migrate ──────────────────────────────────────────────────────────────────

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply quarantine ledger migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup()
			if err != nil {
				return err
			}

			db, err := sql.Open("postgres", cfg.DSN())
			if err != nil {
				return fmt.Errorf("failed to open db: %w", err)
			}
			defer db.Close()

			if err := db.PingContext(cmd.Context()); err != nil {
				return fmt.Errorf("failed to ping db: %w", err)
			}
			return app.Migrate(db, cfg.MigrationPath)
		},
	}
}
