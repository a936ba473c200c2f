// Command marginalia turns book highlights into spaced-repetition study
// sessions.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/conorfennell/marginalia/internal/config"
	"github.com/conorfennell/marginalia/internal/session"
	"github.com/conorfennell/marginalia/internal/storage"
	"github.com/conorfennell/marginalia/internal/transient"
	"github.com/conorfennell/marginalia/internal/writeback"
)

var rootCmd = &cobra.Command{
	Use:           "marginalia",
	Short:         "Review your book highlights with spaced repetition",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	config.RegisterFlags(rootCmd.PersistentFlags())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// app holds what every subcommand needs once configuration is resolved.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	db     *storage.DB
	clock  func() time.Time
}

func setup(cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return nil, err
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	db, err := storage.Open(cfg.DB)
	if err != nil {
		return nil, err
	}
	logger.Debug("Database opened", "path", cfg.DB)

	return &app{
		cfg:    cfg,
		logger: logger,
		db:     db,
		clock:  func() time.Time { return time.Now().In(loc) },
	}, nil
}

func (a *app) Close() error {
	return a.db.Close()
}

func newLogger(cfg config.Log) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
}

// applyDailyLimit stores a configured global daily limit in the user's
// settings so every surface sees the same value.
func (a *app) applyDailyLimit(ctx context.Context) error {
	if a.cfg.DailyLimit <= 0 {
		return nil
	}
	settings, err := a.db.GetSettings(ctx)
	if err != nil {
		return err
	}
	if settings.DailyReviewLimit == a.cfg.DailyLimit {
		return nil
	}
	settings.DailyReviewLimit = a.cfg.DailyLimit
	return a.db.UpsertSettings(ctx, settings)
}

// newEngine builds a loaded session engine writing back through a queue.
// Close the queue to flush pending writes.
func (a *app) newEngine(ctx context.Context) (*session.Engine, *writeback.Queue, error) {
	if err := a.applyDailyLimit(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to apply daily limit: %w", err)
	}

	state, err := transient.Open(a.cfg.State)
	if err != nil {
		return nil, nil, err
	}

	queue := writeback.New(a.logger, writeback.Options{
		Workers:  a.cfg.Writeback.Workers,
		Attempts: a.cfg.Writeback.Attempts,
		Backoff:  a.cfg.Writeback.Backoff,
		Buffer:   a.cfg.Writeback.Buffer,
	})

	engine := session.NewEngine(a.db, state, queue, session.Options{
		Logger: a.logger,
		Clock:  a.clock,
	})
	if err := engine.Load(ctx); err != nil {
		queue.Close(ctx)
		return nil, nil, err
	}
	return engine, queue, nil
}

// flush waits a bounded time for background writes to land.
func flush(q *writeback.Queue, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := q.Close(ctx); err != nil {
		logger.Warn("Pending writes abandoned", "error", err)
	}
}
