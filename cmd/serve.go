package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/leadgen-cli/internal/api"
	"github.com/sells-group/leadgen-cli/internal/auth"
	"github.com/sells-group/leadgen-cli/internal/config"
	"github.com/sells-group/leadgen-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the lead generation API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		e, err := initEnv(ctx, "serve")
		if err != nil {
			return err
		}
		defer e.Close()

		verifier, err := auth.FromConfig(cfg.Auth, e.Cache)
		if err != nil {
			return err
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           buildHandler(e.Orchestrator, e.Store, verifier, cfg.Server),
			ReadHeaderTimeout: 10 * time.Second,
			// Streams stay open for the whole run.
			WriteTimeout: 0,
		}

		// Graceful shutdown
		shutdownDone := make(chan struct{})
		go func() {
			defer close(shutdownDone)
			<-ctx.Done()
			zap.L().Info("shutting down server")
			gracefulShutdown(srv, e.Orchestrator, time.Duration(cfg.Server.ShutdownTimeoutSecs)*time.Second)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		// The store stays open until in-flight runs have persisted.
		<-shutdownDone
		return nil
	},
}

type shutdowner interface {
	Shutdown(ctx context.Context) error
}

type runDrainer interface {
	Drain(ctx context.Context) error
}

// gracefulShutdown stops accepting requests, then waits for detached runs.
// Both share one timeout.
func gracefulShutdown(srv shutdowner, runs runDrainer, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		zap.L().Warn("server shutdown", zap.Error(err))
	}
	if err := runs.Drain(ctx); err != nil {
		zap.L().Warn("runs still in progress at exit", zap.Error(err))
	}
}

// buildHandler assembles the API router over the pipeline and store.
func buildHandler(gen api.Generator, st store.Store, verifier auth.Verifier, sc config.ServerConfig) http.Handler {
	srv := api.NewServer(gen, st, st, verifier, api.Config{
		AllowedOrigins: sc.AllowedOrigins,
		KeepAlive:      time.Duration(sc.KeepAliveSecs) * time.Second,
	})
	return srv.Router()
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
