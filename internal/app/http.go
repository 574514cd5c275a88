package app

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"auth-bridge/internal/auth/flow"
	"auth-bridge/internal/auth/handler"
	"auth-bridge/internal/auth/lifecycle"
	"auth-bridge/internal/auth/provider"
	"auth-bridge/internal/auth/provider/facebook"
	"auth-bridge/internal/auth/provider/google"
	"auth-bridge/internal/auth/redirect"
	"auth-bridge/internal/config"
	"auth-bridge/internal/crm"
	"auth-bridge/internal/crmsync"
	"auth-bridge/internal/middleware"
)

func setupProviders(ctx context.Context, cfg config.Config, log *zap.Logger) (*provider.Registry, error) {
	var list []provider.OAuthProvider

	if cfg.Google.Enabled() {
		p, err := google.New(ctx, cfg.Google, log)
		if err != nil {
			return nil, err
		}
		list = append(list, p)
	}

	if cfg.Facebook.Enabled() {
		p, err := facebook.New(cfg.Facebook, log)
		if err != nil {
			return nil, err
		}
		list = append(list, p)
	}

	return provider.NewRegistry(list...), nil
}

func setupSync(cfg config.CRMConfig, log *zap.Logger) (*crmsync.Synchronizer, error) {
	if !cfg.Enabled() {
		log.Warn("crm sync disabled: CRM_BASE_URL not set")
		return crmsync.New(nil, cfg.MarkerTag, cfg.Timeout, log), nil
	}
	client, err := crm.New(cfg, log)
	if err != nil {
		return nil, err
	}
	return crmsync.New(client, cfg.MarkerTag, cfg.Timeout, log), nil
}

func setupRateLimit(cfg config.RateLimitConfig, infra *Infra, log *zap.Logger) gin.HandlerFunc {
	if !cfg.Enabled || cfg.RequestsPerMinute == 0 {
		return nil
	}
	var l middleware.Limiter = middleware.NewMemoryLimiter(cfg.RequestsPerMinute, cfg.Burst)
	if infra.Redis != nil {
		l = middleware.NewRedisLimiter(infra.Redis.Client, cfg.RequestsPerMinute+cfg.Burst, "ratelimit:login")
	}
	return middleware.RateLimit(l, log)
}

func setupHTTP(
	ctx context.Context,
	cfg config.Config,
	infra *Infra,
	syncer *crmsync.Synchronizer,
	log *zap.Logger,
) (*gin.Engine, error) {

	// ----------------------------
	// Dependencies
	// ----------------------------

	registry, err := setupProviders(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	log.Info("oauth providers registered", zap.Strings("providers", registry.Names()))

	redirects, err := redirect.NewResolver(
		infra.Store,
		cfg.App.DefaultRedirectURL,
		cfg.App.AllowedOrigins,
		log,
	)
	if err != nil {
		return nil, err
	}

	users := lifecycle.New(infra.Store, log)

	flows := flow.NewControllers(registry, flow.Deps{
		Store:     infra.Store,
		Redirects: redirects,
		Users:     users,
		Sync:      syncer,
		Logger:    log,
	})

	sessions := middleware.NewSessionMiddleware(infra.Store, users, cfg.Session.TTL, log)

	authHandler := handler.NewHandler(
		flows,
		redirects,
		users,
		sessions,
		cfg.App.LogoutRedirectURL,
		log,
	)

	// ----------------------------
	// Router
	// ----------------------------

	if cfg.App.Env != "development" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger(log))
	router.Use(middleware.CORS(cfg.App.CORSOrigins))

	// ----------------------------
	// Routes
	// ----------------------------

	authHandler.RegisterRoutes(router, setupRateLimit(cfg.RateLimit, infra, log))

	router.GET("/health", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := infra.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "version": cfg.App.Version})
	})

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return router, nil
}
