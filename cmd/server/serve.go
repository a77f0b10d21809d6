package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/0xPexy/aletta-backend/internal/analysis"
	"github.com/0xPexy/aletta-backend/internal/auth"
	cfgpkg "github.com/0xPexy/aletta-backend/internal/config"
	"github.com/0xPexy/aletta-backend/internal/diagnosis"
	"github.com/0xPexy/aletta-backend/internal/logging"
	"github.com/0xPexy/aletta-backend/internal/metrics"
	"github.com/0xPexy/aletta-backend/internal/server"
	"github.com/0xPexy/aletta-backend/internal/store"
	"github.com/0xPexy/aletta-backend/internal/tracing"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg := cfgpkg.Load()
	logger := logging.New(cfg.Log)

	db, err := store.Open(cfg.Database, logger)
	if err != nil {
		return err
	}
	if err := store.AutoMigrate(db); err != nil {
		return err
	}
	repo := store.NewRepository(db)

	registry, err := loadABIs(cfg.Analyzer.ABIDir)
	if err != nil {
		return err
	}
	symbols, err := loadSymbols(cfg.Analyzer.SymbolsDir)
	if err != nil {
		return err
	}

	m := metrics.New()
	source := tracing.NewSource(cfg.Chain, tracing.SourceOptions{
		TraceCacheSize:   cfg.Analyzer.TraceCacheSize,
		CodeFetchWorkers: cfg.Analyzer.CodeFetchWorkers,
		Metrics:          m.Trace,
		Logger:           logger,
	})
	defer source.Close()

	eventHub := server.NewEventHub(logger)
	svc := analysis.NewService(analysis.Options{
		Config:    cfg.Analyzer,
		Chains:    cfg.Chain,
		Source:    source,
		Store:     repo,
		Decoder:   registry,
		Symbols:   symbols,
		Publisher: eventHub,
		Metrics:   m.Analysis,
		Logger:    logger,
	})
	authSvc := auth.NewService(cfg.Auth)
	if !authSvc.Enabled() {
		logger.Warn("JWT_SECRET not set, POST /api/analyze is unauthenticated")
	}

	r := server.NewRouter(svc, authSvc, eventHub, m)
	srv := server.NewHTTP(cfg.Server, r)
	if wt := cfg.Server.WriteTimeout; wt > 0 && wt <= cfg.Analyzer.Timeout {
		logger.Warn("HTTP_WRITE_TIMEOUT does not outlast ANALYZE_TIMEOUT, slow analyses will be cut off",
			"write_timeout", wt, "analyze_timeout", cfg.Analyzer.Timeout)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go eventHub.Run(ctx)
	go svc.RunPurger(ctx, cfg.Analyzer.PurgeInterval)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", cfg.Server.HTTPAddr, "chains", cfg.Chain.Names(), "default_chain", cfg.Chain.Default)
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	shutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Stop(shutdown)
}

func loadABIs(dir string) (*diagnosis.ABIRegistry, error) {
	registry := diagnosis.NewABIRegistry()
	if dir == "" {
		return registry, nil
	}
	if _, err := registry.LoadDir(dir); err != nil {
		return nil, err
	}
	return registry, nil
}

func loadSymbols(dir string) (*diagnosis.SymbolTable, error) {
	symbols := diagnosis.NewSymbolTable()
	if dir == "" {
		return symbols, nil
	}
	if _, err := symbols.LoadDir(dir); err != nil {
		return nil, err
	}
	return symbols, nil
}
