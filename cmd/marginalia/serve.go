package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/conorfennell/marginalia/internal/sync"
	"github.com/conorfennell/marginalia/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the JSON study API",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		engine, queue, err := a.newEngine(ctx)
		if err != nil {
			return err
		}
		defer flush(queue, a.logger)

		syncFn := func(ctx context.Context) (sync.Report, error) {
			return sync.Run(ctx, a.db, a.cfg.ReposDir, a.clock(), nil)
		}
		srv := &http.Server{
			Addr:              a.cfg.Listen,
			Handler:           web.NewServer(a.db, engine, syncFn, a.logger),
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			a.logger.Info("Starting server", "addr", a.cfg.Listen)
			errCh <- srv.ListenAndServe()
		}()

		select {
		case <-ctx.Done():
			a.logger.Info("Shutting down server...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		case err := <-errCh:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
