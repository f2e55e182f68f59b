package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/bayneri/slareport/internal/api"
	"github.com/bayneri/slareport/internal/jobs"
)

func newServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP job API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
	flags := cmd.Flags()
	flags.String("addr", "", "listen address (overrides server.addr)")
	flags.String("store-backend", "", "job store backend, memory or gcs (overrides store.backend)")
	flags.String("store-bucket", "", "bucket for the gcs job store (overrides store.bucket)")
	flags.String("store-prefix", "", "object prefix for the gcs job store (overrides store.prefix)")
	viper.BindPFlag("addr", flags.Lookup("addr"))
	viper.BindPFlag("store_backend", flags.Lookup("store-backend"))
	viper.BindPFlag("store_bucket", flags.Lookup("store-bucket"))
	viper.BindPFlag("store_prefix", flags.Lookup("store-prefix"))
	return cmd
}

func runServe(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := logrus.WithField("component", "server")

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry, err := cfg.Registry()
	if err != nil {
		return err
	}
	source, err := newSource(ctx, cfg)
	if err != nil {
		return err
	}
	defer source.Close()
	store, closeStore, err := newStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	runner, err := jobs.NewRunner(jobs.RunnerConfig{
		Store:   store,
		Source:  source,
		Configs: registry,
		Limits:  cfg.Jobs.Limits(),
		Metrics: jobs.NewMetrics(promRegistry),
		Logger:  logrus.WithField("component", "runner"),
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: api.New(runner, registry, promRegistry, logrus.WithField("component", "api")),
	}
	errCh := make(chan error, 1)
	go func() {
		logger.WithFields(logrus.Fields{"addr": cfg.Server.Addr, "store": cfg.Store.Backend}).Info("Serving job API.")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		logger.Info("Shutting down.")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("HTTP server did not shut down cleanly.")
	}

	done := make(chan struct{})
	go func() {
		runner.Wait()
		close(done)
	}()
	select {
	case <-done:
		logger.Info("All jobs finished.")
	case <-shutdownCtx.Done():
		logger.Warn("Jobs still processing at shutdown; they will stay in processing state.")
	}
	return nil
}
