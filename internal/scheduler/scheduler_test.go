package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"go.uber.org/zap/zapcore"
)

type countingCleaner struct {
	calls atomic.Int32
	err   error
}

func (c *countingCleaner) CleanupExpired(context.Context) (int64, error) {
	c.calls.Add(1)
	return 3, c.err
}

type panickingCleaner struct{ calls atomic.Int32 }

func (p *panickingCleaner) CleanupExpired(context.Context) (int64, error) {
	p.calls.Add(1)
	panic("boom")
}

func TestRunCleanupLogsFailure(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	cleaner := &countingCleaner{err: errors.New("db down")}

	RunCleanup(context.Background(), cleaner, zap.New(core))

	assert.Equal(t, int32(1), cleaner.calls.Load())
	assert.Equal(t, 1, logs.FilterMessage("Failed to clean up expired short URLs").Len())
}

func TestScheduleCleanupRejectsShortInterval(t *testing.T) {
	s := New(zap.NewNop())
	_, err := s.ScheduleCleanup(&countingCleaner{}, 500*time.Millisecond, time.Second)
	assert.Error(t, err)
}

func TestScheduledCleanupRuns(t *testing.T) {
	s := New(zap.NewNop())
	cleaner := &countingCleaner{}
	_, err := s.ScheduleCleanup(cleaner, time.Second, time.Second)
	require.NoError(t, err)

	s.Start()
	assert.Eventually(t, func() bool { return cleaner.calls.Load() >= 1 }, 3*time.Second, 20*time.Millisecond)
	require.NoError(t, s.Stop(context.Background()))
}

func TestScheduledCleanupRecoversPanics(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	s := New(zap.New(core))
	cleaner := &panickingCleaner{}
	_, err := s.ScheduleCleanup(cleaner, time.Second, time.Second)
	require.NoError(t, err)

	s.Start()
	assert.Eventually(t, func() bool { return logs.FilterMessage("panic").Len() >= 1 }, 3*time.Second, 20*time.Millisecond)
	require.NoError(t, s.Stop(context.Background()))
	assert.GreaterOrEqual(t, cleaner.calls.Load(), int32(1))
}
