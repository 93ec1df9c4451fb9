package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/omni/transfer-indexer/config"
	"github.com/omni/transfer-indexer/db"
	"github.com/omni/transfer-indexer/ethclient"
	"github.com/omni/transfer-indexer/indexer"
	"github.com/omni/transfer-indexer/logging"
	"github.com/omni/transfer-indexer/repository"
	"github.com/omni/transfer-indexer/source"
)

type app struct {
	logger logging.Logger
	cfg    *config.Config
	repo   *repository.Repo
	dbConn *db.DB
	client ethclient.Client
}

func newApp() (*app, error) {
	logger := logging.New()

	cfg, err := config.ReadConfigFromFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("can't read config: %w", err)
	}
	logger.SetLevel(cfg.LogLevel)

	a := &app{logger: logger, cfg: cfg}
	if cfg.DBConfig == nil {
		logger.Warn("postgres is not configured, indexed data will not be persisted")
		a.repo = repository.NewMemoryRepo()
		return a, nil
	}
	a.dbConn, err = db.ConnectToDBAndMigrate(cfg.DBConfig)
	if err != nil {
		return nil, fmt.Errorf("can't connect to database and apply migrations: %w", err)
	}
	a.repo = repository.NewRepo(a.dbConn)
	return a, nil
}

func (a *app) newIndexer() (*indexer.Indexer, error) {
	client, err := ethclient.NewClient(a.cfg.Chain.RPC, a.cfg.Chain.ChainID)
	if err != nil {
		return nil, fmt.Errorf("can't dial rpc client: %w", err)
	}
	a.client = client
	logger := a.logger.WithField("chain_id", a.cfg.Chain.ChainID)
	src := source.NewAdapter(logger.WithField("service", "source"), client, a.cfg.Chain, a.cfg.Indexer)
	return indexer.NewIndexer(logger.WithField("service", "indexer"), src, a.repo, a.cfg.Indexer, indexer.TrackedTokens(a.cfg)), nil
}

func (a *app) serveMetrics(ctx context.Context) {
	if a.cfg.Metrics == nil {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: a.cfg.Metrics.Host, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.WithError(err).Fatal("can't start listener for prometheus metrics")
		}
	}()
}

func (a *app) Close() {
	if a.client != nil {
		a.client.Close()
	}
	if a.dbConn != nil {
		if err := a.dbConn.Close(); err != nil {
			a.logger.WithError(err).Warn("failed to close database connection")
		}
	}
}
