package session

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type countingStore struct {
	calls int
	err   error
}

func (c *countingStore) DeleteExpired(context.Context) (int64, error) {
	c.calls++
	return 2, c.err
}

func TestSweeperRunsDeleteExpired(t *testing.T) {
	store := &countingStore{}
	s, err := NewSweeper(store, "@every 1h", zap.NewNop())
	require.NoError(t, err)

	s.sweep()
	store.err = errors.New("db down")
	s.sweep()

	require.Equal(t, 2, store.calls)
}

func TestSweeperRejectsBadSchedule(t *testing.T) {
	_, err := NewSweeper(&countingStore{}, "every now and then", zap.NewNop())
	require.Error(t, err)
}

func TestSweeperStopWithoutStart(t *testing.T) {
	s, err := NewSweeper(&countingStore{}, "@every 1h", zap.NewNop())
	require.NoError(t, err)
	s.Stop()
}
