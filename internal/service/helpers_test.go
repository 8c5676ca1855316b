package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/langchou/parkmeter/internal/clock"
	"github.com/langchou/parkmeter/internal/models"
	"github.com/langchou/parkmeter/internal/repository"
)

// monday 2025-07-21 是星期一
func monday(hour, minute int) time.Time {
	return time.Date(2025, 7, 21, hour, minute, 0, 0, time.UTC)
}

type harness struct {
	store    *repository.Memory
	clock    *clock.Manual
	catalog  *Catalog
	resolver *ZoneResolver
	planner  *AlarmPlanner
	engine   *SessionEngine
	sweeper  *ExpirationScheduler
}

func newHarness(t *testing.T, now time.Time) *harness {
	t.Helper()

	logger := zap.NewNop()
	store := repository.NewMemory()
	clk := clock.NewManual(now)

	catalog := NewCatalog(store.Zones, store.Schedules, store.Tariffs, clk, time.UTC, 0, logger)
	resolver := NewZoneResolver(catalog, logger)
	planner := NewAlarmPlanner(store.Alarms, store.Sessions, catalog, clk, 30*time.Minute, logger)
	engine := NewSessionEngine(store.Vehicles, store.Sessions, store.Alarms, catalog, resolver, planner, clk, logger)
	sweeper := NewExpirationScheduler(engine, store.Sessions, catalog, clk, time.Second, logger)

	return &harness{
		store:    store,
		clock:    clk,
		catalog:  catalog,
		resolver: resolver,
		planner:  planner,
		engine:   engine,
		sweeper:  sweeper,
	}
}

func square(lat, lng, size float64) models.PolygonSet {
	return models.PolygonSet{{
		{Lat: lat, Lng: lng},
		{Lat: lat + size, Lng: lng},
		{Lat: lat + size, Lng: lng + size},
		{Lat: lat, Lng: lng + size},
	}}
}

func (h *harness) zone(t *testing.T, name string, polygons models.PolygonSet, prohibited bool) *models.Zone {
	t.Helper()
	z := &models.Zone{Name: name, Polygons: polygons, Prohibited: prohibited, Active: true}
	require.NoError(t, h.store.Zones.Create(context.Background(), z))
	return z
}

func (h *harness) schedule(t *testing.T, zoneID int64, wd models.Weekday, open, close string) {
	t.Helper()
	require.NoError(t, h.store.Schedules.Create(context.Background(), &models.ZoneSchedule{
		ZoneID:    zoneID,
		Weekday:   wd,
		OpenTime:  models.MustTimeOfDay(open),
		CloseTime: models.MustTimeOfDay(close),
		Enabled:   true,
	}))
}

func (h *harness) tariff(t *testing.T, start, end string, rate int64) {
	t.Helper()
	require.NoError(t, h.store.Tariffs.Create(context.Background(), &models.TariffWindow{
		StartTime:   models.MustTimeOfDay(start),
		EndTime:     models.MustTimeOfDay(end),
		RatePerHour: decimal.NewFromInt(rate),
		Enabled:     true,
	}))
}

func (h *harness) vehicle(t *testing.T, plate string) *models.Vehicle {
	t.Helper()
	v := &models.Vehicle{OwnerID: 1, Plate: plate}
	require.NoError(t, h.store.Vehicles.Create(context.Background(), v))
	return v
}

// paidZone 星期一 08:00-20:00 营业，全局费率 500/小时
func (h *harness) paidZone(t *testing.T) *models.Zone {
	t.Helper()
	z := h.zone(t, "Centro", square(0, 0, 1), false)
	h.schedule(t, z.ID, models.Monday, "08:00", "20:00")
	h.tariff(t, "08:00", "20:00", 500)
	return z
}

func inside(z *models.Zone) models.Coordinate {
	p := z.Polygons[0]
	return models.Coordinate{
		Lat: (p[0].Lat + p[2].Lat) / 2,
		Lng: (p[0].Lng + p[2].Lng) / 2,
	}
}

func assertAmount(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.True(t, decimal.RequireFromString(want).Equal(got), "want %s, got %s", want, got)
}

type recordingNotifier struct {
	mu     sync.Mutex
	alarms []*models.Alarm
	err    error
}

func (n *recordingNotifier) NotifyAlarm(a *models.Alarm, _ *models.ParkingSession) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.alarms = append(n.alarms, a)
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.alarms)
}

type recordingListener struct {
	mu       sync.Mutex
	sessions []*models.ParkingSession
}

func (l *recordingListener) NotifySession(s *models.ParkingSession) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sessions = append(l.sessions, s)
}

type stubGeocoder struct {
	addr *models.Address
	err  error
}

func (g stubGeocoder) ReverseGeocode(context.Context, float64, float64) (*models.Address, error) {
	return g.addr, g.err
}

// extraSchedules 在仓库结果后追加固定条目，模拟库中的脏数据
type extraSchedules struct {
	inner ScheduleRepository
	extra []models.ZoneSchedule
}

func (s *extraSchedules) List(ctx context.Context) ([]models.ZoneSchedule, error) {
	list, err := s.inner.List(ctx)
	if err != nil {
		return nil, err
	}
	return append(list, s.extra...), nil
}
