package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/langchou/parkmeter/internal/clock"
	"github.com/langchou/parkmeter/internal/models"
	"github.com/langchou/parkmeter/internal/observability"
	"github.com/langchou/parkmeter/internal/repository"
	"github.com/langchou/parkmeter/internal/state"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// StartRequest 开始停车请求
type StartRequest struct {
	VehicleID  int64
	Coordinate models.Coordinate
	ZoneID     *int64
	Address    *models.Address
}

// StartResult 开始停车结果
type StartResult struct {
	Session         *models.ParkingSession `json:"session"`
	Zone            *models.Zone           `json:"zone"`
	RequiresPayment bool                   `json:"requires_payment"`
}

// FinishResult 结束停车结果
type FinishResult struct {
	Session   *models.ParkingSession `json:"session"`
	AmountDue decimal.Decimal        `json:"amount_due"`
}

// SessionEngine 停车会话状态机
// 同一车辆的 Start/Finish/Cancel/Expire 串行执行，不同车辆互不影响
type SessionEngine struct {
	vehicles VehicleRepository
	sessions SessionRepository
	alarms   AlarmRepository
	catalog  *Catalog
	resolver *ZoneResolver
	planner  *AlarmPlanner
	clock    clock.Clock
	logger   *zap.Logger

	geocoder     Geocoder
	listener     SessionListener
	metrics      *observability.Collector
	rejectClosed bool

	locks *keyedMutex
}

// NewSessionEngine 创建会话引擎
func NewSessionEngine(
	vehicles VehicleRepository,
	sessions SessionRepository,
	alarms AlarmRepository,
	catalog *Catalog,
	resolver *ZoneResolver,
	planner *AlarmPlanner,
	clk clock.Clock,
	logger *zap.Logger,
) *SessionEngine {
	return &SessionEngine{
		vehicles: vehicles,
		sessions: sessions,
		alarms:   alarms,
		catalog:  catalog,
		resolver: resolver,
		planner:  planner,
		clock:    clk,
		logger:   logger,
		locks:    newKeyedMutex(),
	}
}

// SetGeocoder 设置逆地理编码器
func (e *SessionEngine) SetGeocoder(g Geocoder) {
	e.geocoder = g
}

// SetListener 设置会话变化监听
func (e *SessionEngine) SetListener(l SessionListener) {
	e.listener = l
}

// SetMetrics 设置指标
func (e *SessionEngine) SetMetrics(m *observability.Collector) {
	e.metrics = m
}

// SetRejectClosedZones 是否拒绝在非营业时段的收费区域开始停车
func (e *SessionEngine) SetRejectClosedZones(reject bool) {
	e.rejectClosed = reject
}

// Start 开始停车
func (e *SessionEngine) Start(ctx context.Context, req StartRequest) (*StartResult, error) {
	unlock := e.locks.Lock(req.VehicleID)
	defer unlock()

	vehicle, err := e.vehicles.GetByID(ctx, req.VehicleID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: vehicle %d", ErrNotFound, req.VehicleID)
		}
		return nil, internalError("get vehicle", err)
	}

	existing, err := e.sessions.GetActiveByVehicle(ctx, vehicle.ID)
	switch {
	case err == nil:
		e.metrics.SessionRejected("conflict")
		return nil, fmt.Errorf("%w: vehicle %d already has active session %d", ErrConflict, vehicle.ID, existing.ID)
	case !errors.Is(err, repository.ErrNotFound):
		return nil, internalError("get active session", err)
	}

	zone, err := e.resolveZone(ctx, req)
	if err != nil {
		return nil, err
	}
	if zone != nil && zone.Prohibited {
		e.metrics.SessionRejected("forbidden")
		return nil, fmt.Errorf("%w: parking is prohibited in zone %d", ErrForbiddenZone, zone.ID)
	}

	now := e.clock.Now()
	if zone != nil && e.rejectClosed {
		closed, err := e.zoneClosed(ctx, zone, now)
		if err != nil {
			return nil, err
		}
		if closed {
			e.metrics.SessionRejected("closed")
			return nil, fmt.Errorf("%w: zone %d at %s", ErrZoneClosed, zone.ID, now.Format(time.RFC3339))
		}
	}

	s := &models.ParkingSession{
		VehicleID: vehicle.ID,
		Latitude:  req.Coordinate.Lat,
		Longitude: req.Coordinate.Lng,
		Address:   req.Address,
		StartTime: now,
		State:     models.SessionActive,
	}
	if zone != nil {
		zoneID := zone.ID
		s.ZoneID = &zoneID
	}
	if s.Address == nil && e.geocoder != nil {
		addr, err := e.geocoder.ReverseGeocode(ctx, s.Latitude, s.Longitude)
		if err != nil {
			e.logger.Warn("Failed to geocode session start", zap.Int64("vehicle_id", vehicle.ID), zap.Error(err))
		} else {
			s.Address = addr
		}
	}

	if err := e.sessions.Create(ctx, s); err != nil {
		if errors.Is(err, repository.ErrActiveSessionExists) {
			e.metrics.SessionRejected("conflict")
			return nil, fmt.Errorf("%w: vehicle %d already has an active session", ErrConflict, vehicle.ID)
		}
		return nil, internalError("create session", err)
	}

	requiresPayment := zone != nil && !zone.Prohibited
	if requiresPayment && e.planner != nil {
		if _, err := e.planner.PlanReminder(ctx, s, zone); err != nil {
			if errors.Is(err, ErrNoSchedule) {
				e.logger.Debug("No reminder planned", zap.Int64("session_id", s.ID), zap.Int64("zone_id", zone.ID))
			} else {
				e.logger.Warn("Failed to plan reminder", zap.Int64("session_id", s.ID), zap.Error(err))
			}
		} else {
			s.AlarmScheduled = true
		}
	}

	if err := e.vehicles.UpdateLocation(ctx, vehicle.ID, req.Coordinate, now); err != nil {
		e.logger.Warn("Failed to update vehicle location", zap.Int64("vehicle_id", vehicle.ID), zap.Error(err))
	}

	e.metrics.SessionStarted(zone != nil)
	e.notify(s)
	e.logger.Info("Parking session started",
		zap.Int64("session_id", s.ID),
		zap.Int64("vehicle_id", vehicle.ID),
		zap.Bool("requires_payment", requiresPayment))

	return &StartResult{Session: s, Zone: zone, RequiresPayment: requiresPayment}, nil
}

// Finish 结束停车，forcedEnd 为空时使用当前时间
func (e *SessionEngine) Finish(ctx context.Context, sessionID int64, forcedEnd *time.Time) (*FinishResult, error) {
	s, err := e.close(ctx, sessionID, state.EventFinish, forcedEnd)
	if err != nil {
		return nil, err
	}
	return &FinishResult{Session: s, AmountDue: s.AmountDue.Decimal}, nil
}

// Cancel 取消停车，不计费
func (e *SessionEngine) Cancel(ctx context.Context, sessionID int64) (*models.ParkingSession, error) {
	return e.close(ctx, sessionID, state.EventCancel, nil)
}

// Expire 区域关闭时由扫描结束会话
func (e *SessionEngine) Expire(ctx context.Context, sessionID int64, end time.Time) (*FinishResult, error) {
	s, err := e.close(ctx, sessionID, state.EventExpire, &end)
	if err != nil {
		return nil, err
	}
	return &FinishResult{Session: s, AmountDue: s.AmountDue.Decimal}, nil
}

// Get 获取会话
func (e *SessionEngine) Get(ctx context.Context, sessionID int64) (*models.ParkingSession, error) {
	s, err := e.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: session %d", ErrNotFound, sessionID)
		}
		return nil, internalError("get session", err)
	}
	return s, nil
}

// GetActive 车辆进行中的会话，没有时返回 nil, nil
func (e *SessionEngine) GetActive(ctx context.Context, vehicleID int64) (*models.ParkingSession, error) {
	s, err := e.sessions.GetActiveByVehicle(ctx, vehicleID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, internalError("get active session", err)
	}
	return s, nil
}

// ListByVehicle 车辆的会话历史
func (e *SessionEngine) ListByVehicle(ctx context.Context, vehicleID int64, limit, offset int) ([]*models.ParkingSession, error) {
	if offset < 0 {
		return nil, fmt.Errorf("%w: negative offset", ErrInvalidInput)
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	sessions, err := e.sessions.ListByVehicle(ctx, vehicleID, limit, offset)
	if err != nil {
		return nil, internalError("list sessions", err)
	}
	return sessions, nil
}

// EstimateCost 进行中的会话按当前时间估算；已结束的返回结算金额
func (e *SessionEngine) EstimateCost(ctx context.Context, sessionID int64) (decimal.Decimal, error) {
	s, err := e.Get(ctx, sessionID)
	if err != nil {
		return decimal.Zero, err
	}
	if !s.IsActive() {
		if s.AmountDue.Valid {
			return s.AmountDue.Decimal, nil
		}
		return decimal.Zero, nil
	}
	return e.cost(ctx, s, e.clock.Now())
}

func (e *SessionEngine) resolveZone(ctx context.Context, req StartRequest) (*models.Zone, error) {
	if req.ZoneID == nil {
		return e.resolver.Resolve(ctx, req.Coordinate), nil
	}

	snap, err := e.catalog.Snapshot(ctx)
	if err != nil {
		return nil, internalError("load catalog", err)
	}
	zone, ok := snap.Zone(*req.ZoneID)
	if !ok || !zone.Active {
		return nil, fmt.Errorf("%w: zone %d", ErrNotFound, *req.ZoneID)
	}
	return zone, nil
}

// zoneClosed 有排班的区域在当前时刻是否关闭；没有排班的区域视为免费区域
func (e *SessionEngine) zoneClosed(ctx context.Context, zone *models.Zone, now time.Time) (bool, error) {
	snap, err := e.catalog.Snapshot(ctx)
	if err != nil {
		return false, internalError("load catalog", err)
	}
	idx := snap.Schedules()
	if !idx.HasSchedule(zone.ID) {
		return false, nil
	}
	return !idx.IsOpen(zone, models.WeekdayOf(now), models.TimeOfDayOf(now)), nil
}

func (e *SessionEngine) close(ctx context.Context, sessionID int64, event string, forcedEnd *time.Time) (*models.ParkingSession, error) {
	s, err := e.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	unlock := e.locks.Lock(s.VehicleID)
	defer unlock()

	// 加锁后重新读取，期间可能已被其他调用结束
	s, err = e.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	next, err := state.ForSession(s, e.onTransition).Trigger(ctx, event)
	if err != nil {
		return nil, fmt.Errorf("%w: no active session %d", ErrNotFound, sessionID)
	}

	end := e.clock.Now()
	if forcedEnd != nil {
		end = *forcedEnd
	}

	amount := decimal.Zero
	if event != state.EventCancel {
		amount, err = e.cost(ctx, s, end)
		if err != nil {
			return nil, err
		}
	}

	s.EndTime = &end
	s.State = next
	s.AmountDue = decimal.NewNullDecimal(amount)

	if err := e.sessions.Close(ctx, s); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: no active session %d", ErrNotFound, sessionID)
		}
		return nil, internalError("close session", err)
	}

	if e.alarms != nil {
		if _, err := e.alarms.DeactivateBySession(ctx, s.ID); err != nil {
			e.logger.Warn("Failed to deactivate alarm", zap.Int64("session_id", s.ID), zap.Error(err))
		}
	}

	e.metrics.SessionClosed(string(next), amount.InexactFloat64())
	e.notify(s)
	e.logger.Info("Parking session closed",
		zap.Int64("session_id", s.ID),
		zap.String("state", string(next)),
		zap.String("amount_due", amount.StringFixed(2)))

	return s, nil
}

// cost 区域为空或禁停时为 0，否则按区域费率表积分
func (e *SessionEngine) cost(ctx context.Context, s *models.ParkingSession, end time.Time) (decimal.Decimal, error) {
	if s.ZoneID == nil {
		return decimal.Zero, nil
	}

	snap, err := e.catalog.Snapshot(ctx)
	if err != nil {
		return decimal.Zero, internalError("load catalog", err)
	}
	zone, ok := snap.Zone(*s.ZoneID)
	if !ok {
		e.logger.Warn("Session zone no longer exists, charging nothing",
			zap.Int64("session_id", s.ID), zap.Int64("zone_id", *s.ZoneID))
		return decimal.Zero, nil
	}
	if zone.Prohibited {
		return decimal.Zero, nil
	}
	return snap.TariffFor(zone.ID).IntegrateCost(s.StartTime, end), nil
}

func (e *SessionEngine) onTransition(sessionID int64, from, to models.SessionState) {
	e.logger.Debug("Session state changed",
		zap.Int64("session_id", sessionID),
		zap.String("from", string(from)),
		zap.String("to", string(to)))
}

func (e *SessionEngine) notify(s *models.ParkingSession) {
	if e.listener != nil {
		e.listener.NotifySession(s.Clone())
	}
}
