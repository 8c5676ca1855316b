package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/langchou/parkmeter/internal/clock"
	"github.com/langchou/parkmeter/internal/models"
	"github.com/langchou/parkmeter/internal/observability"
)

// maxCatchUp 循环落后时最多补扫的秒数
const maxCatchUp = 120

// ExpirationScheduler 在区域关闭时刻结束区域内所有进行中的会话
type ExpirationScheduler struct {
	engine   *SessionEngine
	sessions SessionRepository
	catalog  *Catalog
	clock    clock.Clock
	interval time.Duration
	logger   *zap.Logger
	metrics  *observability.Collector

	mu        sync.Mutex
	stopCh    chan struct{}
	wg        sync.WaitGroup
	running   bool
	lastSwept time.Time
}

// NewExpirationScheduler 创建扫描器
func NewExpirationScheduler(
	engine *SessionEngine,
	sessions SessionRepository,
	catalog *Catalog,
	clk clock.Clock,
	interval time.Duration,
	logger *zap.Logger,
) *ExpirationScheduler {
	if interval <= 0 {
		interval = time.Second
	}
	return &ExpirationScheduler{
		engine:   engine,
		sessions: sessions,
		catalog:  catalog,
		clock:    clk,
		interval: interval,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

// SetMetrics 设置指标
func (x *ExpirationScheduler) SetMetrics(m *observability.Collector) {
	x.metrics = m
}

// Sweep 对关闭时间等于 now 的排班，结束对应区域内在关闭前开始的会话
// 结束时间为今天的关闭时刻（24:00 关闭的排班为今天 00:00）；单个会话失败只记录日志
// 关闭时刻之后才开始的会话不结束，避免结束时间早于开始时间
func (x *ExpirationScheduler) Sweep(ctx context.Context, now time.Time) (int, error) {
	started := time.Now()

	snap, err := x.catalog.Snapshot(ctx)
	if err != nil {
		return 0, fmt.Errorf("load catalog: %w", err)
	}

	count := 0
	entries := snap.Schedules().ClosingAt(models.WeekdayOf(now), models.TimeOfDayOf(now))
	for _, entry := range entries {
		closeAt := entry.CloseTime.On(now)
		if entry.CloseTime == models.EndOfDay {
			closeAt = models.TimeOfDay(0).On(now)
		}

		active, err := x.sessions.ListActiveByZone(ctx, entry.ZoneID)
		if err != nil {
			x.logger.Error("Failed to list active sessions", zap.Int64("zone_id", entry.ZoneID), zap.Error(err))
			continue
		}

		for _, s := range active {
			if err := ctx.Err(); err != nil {
				x.metrics.ObserveSweep(time.Since(started), count)
				return count, fmt.Errorf("sweep interrupted: %w", err)
			}
			if !s.StartTime.Before(closeAt) {
				continue
			}
			if _, err := x.engine.Expire(ctx, s.ID, closeAt); err != nil {
				if errors.Is(err, ErrNotFound) {
					x.logger.Debug("Session already closed", zap.Int64("session_id", s.ID))
				} else {
					x.logger.Warn("Failed to expire session", zap.Int64("session_id", s.ID), zap.Error(err))
				}
				continue
			}
			count++
		}
	}

	x.metrics.ObserveSweep(time.Since(started), count)
	if count > 0 {
		x.logger.Info("Sessions expired at zone close", zap.Int("count", count), zap.Time("at", now))
	}
	return count, nil
}

// Start 启动扫描循环
func (x *ExpirationScheduler) Start(ctx context.Context) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.running {
		return
	}
	x.stopCh = make(chan struct{})
	x.running = true
	x.lastSwept = x.clock.Now().Truncate(time.Second)

	x.wg.Add(1)
	go x.loop(ctx)
	x.logger.Info("Expiration scheduler started", zap.Duration("interval", x.interval))
}

// Stop 停止扫描循环
func (x *ExpirationScheduler) Stop() {
	x.mu.Lock()
	if !x.running {
		x.mu.Unlock()
		return
	}
	x.running = false
	close(x.stopCh)
	x.mu.Unlock()

	x.wg.Wait()
	x.logger.Info("Expiration scheduler stopped")
}

func (x *ExpirationScheduler) loop(ctx context.Context) {
	defer x.wg.Done()

	ticker := time.NewTicker(x.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-x.stopCh:
			return
		case <-ticker.C:
			tickCtx, cancel := context.WithTimeout(ctx, x.interval)
			x.tick(tickCtx, x.clock.Now())
			cancel()
		}
	}
}

// tick 扫描上次扫描之后到 now 的每一秒，避免计时器抖动漏掉带秒的关闭时间
func (x *ExpirationScheduler) tick(ctx context.Context, now time.Time) {
	to := now.Truncate(time.Second)
	from := x.lastSwept.Add(time.Second)
	if to.Sub(from) > maxCatchUp*time.Second {
		from = to.Add(-maxCatchUp * time.Second)
	}

	for t := from; !t.After(to); t = t.Add(time.Second) {
		if _, err := x.Sweep(ctx, t); err != nil {
			x.logger.Error("Expiration sweep failed", zap.Time("at", t), zap.Error(err))
			if ctx.Err() != nil {
				return
			}
		}
		x.lastSwept = t
	}
}
