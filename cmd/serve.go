package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nicsan/crm-extract/internal/monitoring"
)

var (
	servePort          int
	serveStatsInterval time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the extraction and review API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           newRouter(newAPI(env), cfg.Server.AllowedOrigins),
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       30 * time.Second,
			// Forced OCR can poll for minutes.
			WriteTimeout: 5 * time.Minute,
			IdleTimeout:  2 * time.Minute,
		}

		return runServer(ctx, srv, monitoring.NewChecker(env.Collector, serveStatsInterval), shutdownTimeout())
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().DurationVar(&serveStatsInterval, "stats-interval", monitoring.DefaultInterval, "upload status gauge refresh interval")
	rootCmd.AddCommand(serveCmd)
}

func shutdownTimeout() time.Duration {
	if cfg != nil && cfg.Server.ShutdownTimeoutSec > 0 {
		return time.Duration(cfg.Server.ShutdownTimeoutSec) * time.Second
	}
	return 10 * time.Second
}

// runServer serves until ctx is cancelled, then drains in-flight requests
// for up to grace. The status checker runs alongside and stops with ctx.
func runServer(ctx context.Context, srv *http.Server, checker *monitoring.Checker, grace time.Duration) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		zap.L().Info("starting server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		zap.L().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), grace)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return eris.Wrap(err, "server shutdown")
		}
		return nil
	})

	if checker != nil {
		g.Go(func() error {
			checker.Run(gctx)
			return nil
		})
	}

	return g.Wait()
}
