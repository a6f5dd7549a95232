package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/molpadia/molparelay/internal/app"
	"github.com/molpadia/molparelay/internal/config"
	"github.com/molpadia/molparelay/internal/domain/repository"
	"github.com/molpadia/molparelay/internal/infrastructure/persistence"
	"github.com/molpadia/molparelay/internal/ingest"
	"github.com/molpadia/molparelay/internal/logging"
	"github.com/molpadia/molparelay/internal/pipeline"
	"github.com/molpadia/molparelay/internal/relay"
)

const shutdownTimeout = 10 * time.Second

func runServe(cmd *cobra.Command, opts *rootOptions) error {
	cfg, err := config.Load(opts.envFile)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	logger := logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	logger.Info("configuration loaded", "config", cfg)

	pipelineOpts := []pipeline.Option{pipeline.WithLogger(logger)}
	var uploads repository.UploadRepository
	if cfg.LedgerTable != "" {
		sess, err := persistence.NewSession(cfg.AWSRegion)
		if err != nil {
			return fmt.Errorf("cannot create AWS session: %w", err)
		}
		uploads = persistence.NewUploadRepository(sess, cfg.LedgerTable)
		pipelineOpts = append(pipelineOpts, pipeline.WithLedger(uploads))
	}

	client := relay.NewClient(cfg.Cloud.Endpoint, relay.Credentials{
		Key:       cfg.Cloud.APIKey,
		Secret:    cfg.Cloud.APISecret,
		Namespace: cfg.Cloud.Namespace,
	}, relay.WithHTTPClient(&http.Client{Timeout: cfg.RelayTimeout}))
	p := pipeline.New(ingest.New(cfg.TempDir, ingest.MaxUploadSize), client, pipelineOpts...)

	srv := &http.Server{
		Handler:           app.NewRouter(app.NewController(p, uploads, ingest.MaxUploadSize), logger),
		Addr:              cfg.Addr,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       2 * time.Minute,
		WriteTimeout:      cfg.RelayTimeout + 2*time.Minute,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("the server started", "addr", cfg.Addr, "tls", cfg.CertFile != "")
		var err error
		if cfg.CertFile != "" {
			err = srv.ListenAndServeTLS(cfg.CertFile, cfg.KeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down the server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
