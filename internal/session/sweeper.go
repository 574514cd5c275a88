package session

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Sweeper periodically deletes expired sessions from backends that keep
// them until told otherwise.
type Sweeper struct {
	store  ExpiringStore
	cron   *cron.Cron
	logger *zap.Logger
}

// NewSweeper schedules store.DeleteExpired on the given cron spec
// (e.g. "@every 15m").
func NewSweeper(store ExpiringStore, spec string, logger *zap.Logger) (*Sweeper, error) {
	s := &Sweeper{
		store:  store,
		cron:   cron.New(),
		logger: logger.Named("session_sweeper"),
	}
	if _, err := s.cron.AddFunc(spec, s.sweep); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Sweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	n, err := s.store.DeleteExpired(ctx)
	if err != nil {
		s.logger.Error("expired session sweep failed", zap.Error(err))
		return
	}
	if n > 0 {
		s.logger.Info("expired sessions removed", zap.Int64("count", n))
	}
}

func (s *Sweeper) Start() {
	s.cron.Start()
}

// Stop halts scheduling and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}
