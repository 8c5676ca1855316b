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
	"github.com/langchou/parkmeter/internal/repository"
)

// DefaultAlarmLead 默认提前提醒时间
const DefaultAlarmLead = 30 * time.Minute

const dispatchBatch = 100

// AlarmPlanner 为新会话安排到期提醒
type AlarmPlanner struct {
	alarms   AlarmRepository
	sessions SessionRepository
	catalog  *Catalog
	clock    clock.Clock
	lead     time.Duration
	logger   *zap.Logger
	metrics  *observability.Collector
}

// NewAlarmPlanner 创建提醒规划器，lead <= 0 时使用 DefaultAlarmLead
func NewAlarmPlanner(
	alarms AlarmRepository,
	sessions SessionRepository,
	catalog *Catalog,
	clk clock.Clock,
	lead time.Duration,
	logger *zap.Logger,
) *AlarmPlanner {
	if lead <= 0 {
		lead = DefaultAlarmLead
	}
	return &AlarmPlanner{
		alarms:   alarms,
		sessions: sessions,
		catalog:  catalog,
		clock:    clk,
		lead:     lead,
		logger:   logger,
	}
}

// SetMetrics 设置指标
func (p *AlarmPlanner) SetMetrics(m *observability.Collector) {
	p.metrics = m
}

// FireTime 今天关闭时间减去提前量；已经过去时改为 now + lead
func (p *AlarmPlanner) FireTime(now time.Time, closeTime models.TimeOfDay) time.Time {
	fire := closeTime.On(now).Add(-p.lead)
	if fire.Before(now) {
		fire = now.Add(p.lead)
	}
	return fire
}

// PlanReminder 创建会话的提醒，会先停用该会话已有的提醒
// 区域今天没有启用的排班时返回 ErrNoSchedule
func (p *AlarmPlanner) PlanReminder(ctx context.Context, s *models.ParkingSession, zone *models.Zone) (*models.Alarm, error) {
	now := p.clock.Now()

	snap, err := p.catalog.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	entry, ok := snap.Schedules().EnabledEntry(zone.ID, models.WeekdayOf(now))
	if !ok {
		return nil, ErrNoSchedule
	}

	if _, err := p.alarms.DeactivateBySession(ctx, s.ID); err != nil {
		return nil, fmt.Errorf("deactivate previous alarm: %w", err)
	}

	alarm := &models.Alarm{
		SessionID: s.ID,
		FireAt:    p.FireTime(now, entry.CloseTime),
		Message:   fmt.Sprintf("Parking in %s ends at %s", zone.Name, entry.CloseTime.ShortString()),
		Kind:      models.AlarmExpiration,
		Active:    true,
	}
	if err := p.alarms.Create(ctx, alarm); err != nil {
		return nil, fmt.Errorf("create alarm: %w", err)
	}
	if err := p.sessions.SetAlarmScheduled(ctx, s.ID, true); err != nil {
		return nil, fmt.Errorf("mark alarm scheduled: %w", err)
	}

	p.metrics.AlarmPlanned()
	p.logger.Debug("Reminder planned",
		zap.Int64("session_id", s.ID),
		zap.Time("fire_at", alarm.FireAt))
	return alarm, nil
}

// AlarmDispatcher 推送到期的提醒并标记为已发送
type AlarmDispatcher struct {
	alarms   AlarmRepository
	sessions SessionRepository
	notifier Notifier
	clock    clock.Clock
	interval time.Duration
	logger   *zap.Logger
	metrics  *observability.Collector

	mu      sync.Mutex
	stopCh  chan struct{}
	wg      sync.WaitGroup
	running bool
}

// NewAlarmDispatcher 创建提醒分发器
func NewAlarmDispatcher(
	alarms AlarmRepository,
	sessions SessionRepository,
	notifier Notifier,
	clk clock.Clock,
	interval time.Duration,
	logger *zap.Logger,
) *AlarmDispatcher {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &AlarmDispatcher{
		alarms:   alarms,
		sessions: sessions,
		notifier: notifier,
		clock:    clk,
		interval: interval,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

// SetMetrics 设置指标
func (d *AlarmDispatcher) SetMetrics(m *observability.Collector) {
	d.metrics = m
}

// DispatchDue 推送 now 之前到期的提醒，返回成功推送的条数
// 推送失败的提醒保留，下次重试；会话已结束的提醒直接停用
func (d *AlarmDispatcher) DispatchDue(ctx context.Context, now time.Time) (int, error) {
	due, err := d.alarms.ListDue(ctx, now, dispatchBatch)
	if err != nil {
		return 0, fmt.Errorf("list due alarms: %w", err)
	}

	sent := 0
	for _, a := range due {
		s, err := d.sessions.GetByID(ctx, a.SessionID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			d.logger.Warn("Failed to load alarm session", zap.Int64("alarm_id", a.ID), zap.Error(err))
			continue
		}
		if s == nil || !s.IsActive() {
			if _, err := d.alarms.DeactivateBySession(ctx, a.SessionID); err != nil {
				d.logger.Warn("Failed to deactivate stale alarm", zap.Int64("alarm_id", a.ID), zap.Error(err))
			}
			continue
		}

		if err := d.notifier.NotifyAlarm(a, s); err != nil {
			d.logger.Warn("Failed to deliver alarm", zap.Int64("alarm_id", a.ID), zap.Error(err))
			continue
		}
		if err := d.alarms.MarkSent(ctx, a.ID); err != nil {
			d.logger.Warn("Failed to mark alarm sent", zap.Int64("alarm_id", a.ID), zap.Error(err))
			continue
		}
		sent++
		d.metrics.AlarmDispatched()
	}

	return sent, nil
}

// Start 启动分发循环
func (d *AlarmDispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return
	}
	d.stopCh = make(chan struct{})
	d.running = true

	d.wg.Add(1)
	go d.loop(ctx)
	d.logger.Info("Alarm dispatcher started", zap.Duration("interval", d.interval))
}

// Stop 停止分发循环
func (d *AlarmDispatcher) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.running = false
	close(d.stopCh)
	d.mu.Unlock()

	d.wg.Wait()
	d.logger.Info("Alarm dispatcher stopped")
}

func (d *AlarmDispatcher) loop(ctx context.Context) {
	defer d.wg.Done()

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-d.stopCh:
			return
		case <-ticker.C:
			tickCtx, cancel := context.WithTimeout(ctx, d.interval)
			n, err := d.DispatchDue(tickCtx, d.clock.Now())
			cancel()
			if err != nil {
				d.logger.Error("Alarm dispatch failed", zap.Error(err))
			} else if n > 0 {
				d.logger.Info("Alarms dispatched", zap.Int("count", n))
			}
		}
	}
}
