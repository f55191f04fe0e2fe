package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Cleaner 软删除已过期记录
type Cleaner interface {
	CleanupExpired(ctx context.Context) (int64, error)
}

// Scheduler 定时任务，目前只有过期清理
type Scheduler struct {
	cron   *cron.Cron
	logger *zap.Logger
}

func New(logger *zap.Logger) *Scheduler {
	cl := cronLogger{logger.Sugar()}
	return &Scheduler{
		cron:   cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl))),
		logger: logger,
	}
}

// ScheduleCleanup 每隔 interval 执行一次清理。
// 不做重入保护：重复软删除同一条记录是幂等的。
func (s *Scheduler) ScheduleCleanup(cleaner Cleaner, interval, timeout time.Duration) (cron.EntryID, error) {
	if interval < time.Second {
		return 0, fmt.Errorf("cleanup interval %s is below 1s", interval)
	}
	id, err := s.cron.AddFunc("@every "+interval.String(), func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		RunCleanup(ctx, cleaner, s.logger)
	})
	if err != nil {
		return 0, fmt.Errorf("schedule cleanup: %w", err)
	}
	s.logger.Info("Cleanup job scheduled", zap.Duration("interval", interval))
	return id, nil
}

// RunCleanup 执行一次清理，失败只记录日志
func RunCleanup(ctx context.Context, cleaner Cleaner, logger *zap.Logger) {
	start := time.Now()
	n, err := cleaner.CleanupExpired(ctx)
	if err != nil {
		logger.Error("Failed to clean up expired short URLs", zap.Error(err))
		return
	}
	logger.Debug("Cleanup finished", zap.Int64("count", n), zap.Duration("elapsed", time.Since(start)))
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop 停止调度并等待正在执行的任务结束
func (s *Scheduler) Stop(ctx context.Context) error {
	select {
	case <-s.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cronLogger 将 cron 的日志接口桥接到 zap
type cronLogger struct {
	l *zap.SugaredLogger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debugw(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Errorw(msg, append(keysAndValues, "error", err)...)
}
