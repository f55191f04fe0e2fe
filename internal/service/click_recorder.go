package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"shorturl-go/internal/model"
	"shorturl-go/internal/storage"
)

const clickWriteTimeout = 5 * time.Second

// ClickRecorder 写入访问记录；失败只记录日志，不影响跳转
type ClickRecorder interface {
	Record(ctx context.Context, event *model.ClickEvent)
	Close(ctx context.Context) error
}

// SyncClickRecorder 在请求协程内直接写入
type SyncClickRecorder struct {
	store  storage.Adapter
	logger *zap.Logger
}

func NewSyncClickRecorder(store storage.Adapter, logger *zap.Logger) *SyncClickRecorder {
	return &SyncClickRecorder{store: store, logger: logger}
}

func (r *SyncClickRecorder) Record(ctx context.Context, event *model.ClickEvent) {
	if err := r.store.RecordClick(ctx, event); err != nil {
		r.logger.Warn("Failed to record click",
			zap.String("short_code", event.ShortCode),
			zap.Error(err),
		)
	}
}

func (r *SyncClickRecorder) Close(context.Context) error { return nil }

// AsyncClickRecorder 有界队列 + 固定数量的 worker。
// 队列满时丢弃事件并告警，跳转请求永不阻塞。
type AsyncClickRecorder struct {
	store  storage.Adapter
	logger *zap.Logger
	queue  chan *model.ClickEvent
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func NewAsyncClickRecorder(store storage.Adapter, logger *zap.Logger, buffer, workers int) *AsyncClickRecorder {
	if buffer < 1 {
		buffer = 1
	}
	if workers < 1 {
		workers = 1
	}
	r := &AsyncClickRecorder{
		store:  store,
		logger: logger,
		queue:  make(chan *model.ClickEvent, buffer),
	}
	r.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go r.worker()
	}
	return r
}

func (r *AsyncClickRecorder) worker() {
	defer r.wg.Done()
	for event := range r.queue {
		ctx, cancel := context.WithTimeout(context.Background(), clickWriteTimeout)
		if err := r.store.RecordClick(ctx, event); err != nil {
			r.logger.Warn("Failed to record click",
				zap.String("short_code", event.ShortCode),
				zap.Error(err),
			)
		}
		cancel()
	}
}

func (r *AsyncClickRecorder) Record(_ context.Context, event *model.ClickEvent) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.logger.Warn("Click recorder closed, dropping event", zap.String("short_code", event.ShortCode))
		return
	}
	select {
	case r.queue <- event:
	default:
		r.logger.Warn("Click queue full, dropping event",
			zap.String("short_code", event.ShortCode),
			zap.Int("capacity", cap(r.queue)),
		)
	}
}

// Close 停止接收并等待队列中的事件写完，ctx 到期时直接返回
func (r *AsyncClickRecorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
