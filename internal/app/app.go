package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"auth-bridge/internal/config"
	"auth-bridge/internal/crmsync"
)

type App struct {
	httpServer *http.Server
	infra      *Infra
	sync       *crmsync.Synchronizer
	logger     *zap.Logger
}

func New(ctx context.Context, cfg config.Config, log *zap.Logger) (*App, error) {
	infra, err := setupInfra(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	syncer, err := setupSync(cfg.CRM, log)
	if err != nil {
		_ = infra.Close()
		return nil, err
	}

	router, err := setupHTTP(ctx, cfg, infra, syncer, log)
	if err != nil {
		_ = infra.Close()
		return nil, err
	}

	server := &http.Server{
		Addr:              ":" + cfg.App.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &App{
		httpServer: server,
		infra:      infra,
		sync:       syncer,
		logger:     log,
	}, nil
}

// Run serves HTTP until Shutdown is called.
func (a *App) Run() error {
	if a.infra.Sweeper != nil {
		a.infra.Sweeper.Start()
	}
	if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, lets in-flight CRM syncs finish and
// closes the session backend.
func (a *App) Shutdown(ctx context.Context) error {
	if err := a.httpServer.Shutdown(ctx); err != nil {
		return err
	}
	if err := a.sync.Wait(ctx); err != nil {
		a.logger.Warn("crm syncs still running at shutdown", zap.Error(err))
	}
	return a.infra.Close()
}
