package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"auth-bridge/internal/config"
	"auth-bridge/internal/db"
	"auth-bridge/internal/redis"
	"auth-bridge/internal/session"
)

// Infra holds the session backend and the connections behind it. Exactly
// one of DB and Redis is set.
type Infra struct {
	DB      *sqlx.DB
	Redis   *redis.Client
	Store   session.Store
	Sweeper *session.Sweeper
}

func setupInfra(ctx context.Context, cfg config.Config, log *zap.Logger) (*Infra, error) {
	switch cfg.Session.Backend {
	case "postgres":
		sqlDB, err := db.Connect(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		if err := db.RunMigrations(ctx, sqlDB); err != nil {
			_ = sqlDB.Close()
			return nil, err
		}
		log.Info("database ready")

		store := session.NewPostgresStore(sqlDB, cfg.Session.TTL)
		sweeper, err := session.NewSweeper(store, cfg.Session.SweepSchedule, log)
		if err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("session sweeper: %w", err)
		}
		return &Infra{DB: sqlDB, Store: store, Sweeper: sweeper}, nil

	default:
		client, err := redis.New(ctx, cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
		log.Info("redis ready", zap.String("addr", cfg.Redis.Addr))

		return &Infra{
			Redis: client,
			Store: session.NewRedisStore(client.Client, cfg.Session.TTL),
		}, nil
	}
}

// Ping reports whether the session backend answers.
func (i *Infra) Ping(ctx context.Context) error {
	if i.DB != nil {
		return i.DB.PingContext(ctx)
	}
	if i.Redis != nil {
		return i.Redis.Ping(ctx).Err()
	}
	return errors.New("no session backend")
}

func (i *Infra) Close() error {
	if i.Sweeper != nil {
		i.Sweeper.Stop()
	}
	var errs []error
	if i.DB != nil {
		errs = append(errs, i.DB.Close())
	}
	if i.Redis != nil {
		errs = append(errs, i.Redis.Close())
	}
	return errors.Join(errs...)
}
