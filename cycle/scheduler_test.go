package cycle_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ineyio/cyclequota"
	"github.com/ineyio/cyclequota/cycle"
	"github.com/ineyio/cyclequota/ledger"
)

type countingResetter struct {
	calls atomic.Int64
	err   error
}

func (r *countingResetter) Reset(context.Context) error {
	r.calls.Add(1)
	return r.err
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestScheduler_InvalidSchedule(t *testing.T) {
	s := cycle.NewScheduler(&countingResetter{}, "not a schedule", cycle.WithLogger(quietLogger()))

	err := s.Start(context.Background())
	assert.Error(t, err)
	assert.False(t, s.IsRunning())
}

func TestScheduler_Trigger(t *testing.T) {
	r := &countingResetter{}
	s := cycle.NewScheduler(r, "@every 1h", cycle.WithLogger(quietLogger()))

	require.NoError(t, s.Trigger(context.Background()))
	assert.Equal(t, int64(1), r.calls.Load())

	boom := errors.New("boom")
	r.err = boom
	assert.ErrorIs(t, s.Trigger(context.Background()), boom)
}

func TestScheduler_ResetsOnSchedule(t *testing.T) {
	r := &countingResetter{}
	s := cycle.NewScheduler(r, "@every 1s", cycle.WithLogger(quietLogger()))

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()
	assert.True(t, s.IsRunning())

	next, ok := s.NextBoundary()
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(time.Second), next, 2*time.Second)

	require.Eventually(t, func() bool {
		return r.calls.Load() >= 1
	}, 5*time.Second, 50*time.Millisecond)
}

func TestScheduler_StartTwiceIsNoop(t *testing.T) {
	s := cycle.NewScheduler(&countingResetter{}, "@every 1h", cycle.WithLogger(quietLogger()))

	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Start(context.Background()))
	s.Stop()
	assert.False(t, s.IsRunning())
}

func TestScheduler_Stop(t *testing.T) {
	s := cycle.NewScheduler(&countingResetter{}, "@every 1h",
		cycle.WithLogger(quietLogger()),
		cycle.WithLocation(time.UTC),
	)

	_, ok := s.NextBoundary()
	assert.False(t, ok)

	require.NoError(t, s.Start(context.Background()))
	s.Stop()
	s.Stop()

	assert.False(t, s.IsRunning())
	_, ok = s.NextBoundary()
	assert.False(t, ok)
}

func TestScheduler_StopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := cycle.NewScheduler(&countingResetter{}, "@every 1h", cycle.WithLogger(quietLogger()))

	require.NoError(t, s.Start(ctx))
	cancel()

	require.Eventually(t, func() bool {
		return !s.IsRunning()
	}, time.Second, 10*time.Millisecond)
}

func TestScheduler_RestartIgnoresEarlierContext(t *testing.T) {
	first, cancelFirst := context.WithCancel(context.Background())
	defer cancelFirst()
	s := cycle.NewScheduler(&countingResetter{}, "@every 1h", cycle.WithLogger(quietLogger()))

	require.NoError(t, s.Start(first))
	s.Stop()

	second, cancelSecond := context.WithCancel(context.Background())
	defer cancelSecond()
	require.NoError(t, s.Start(second))
	defer s.Stop()

	cancelFirst()
	assert.Never(t, func() bool {
		return !s.IsRunning()
	}, 200*time.Millisecond, 10*time.Millisecond)

	cancelSecond()
	require.Eventually(t, func() bool {
		return !s.IsRunning()
	}, time.Second, 10*time.Millisecond)
}

func TestScheduler_RestartResetsOnSchedule(t *testing.T) {
	r := &countingResetter{}
	s := cycle.NewScheduler(r, "@every 1s", cycle.WithLogger(quietLogger()))

	require.NoError(t, s.Start(context.Background()))
	s.Stop()
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	_, ok := s.NextBoundary()
	assert.True(t, ok)
	require.Eventually(t, func() bool {
		return r.calls.Load() >= 1
	}, 5*time.Second, 50*time.Millisecond)
}

func TestScheduler_ResetsEnforcer(t *testing.T) {
	ctx := context.Background()
	dist := cyclequota.NewDistributionBuilder().
		Add("balances", cyclequota.FractionFromPercent(50)).
		MustBuild()
	e, err := cyclequota.NewEnforcer(dist, ledger.NewMemoryLedger())
	require.NoError(t, err)

	request := cyclequota.Request{Category: "balances", Cost: 500, TotalBudget: 1000}
	require.NoError(t, e.CheckAndAccount(ctx, request))
	require.Error(t, e.CheckAndAccount(ctx, request))

	s := cycle.NewScheduler(e, "@every 1h", cycle.WithLogger(quietLogger()))
	before := e.CycleID()
	require.NoError(t, s.Trigger(ctx))

	assert.NotEqual(t, before, e.CycleID())
	assert.NoError(t, e.CheckAndAccount(ctx, request))
}
