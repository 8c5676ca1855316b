package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/langchou/parkmeter/internal/models"
)

func TestStartInPaidZone(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, monday(10, 0))
	zone := h.paidZone(t)
	v := h.vehicle(t, "abc123")

	listener := &recordingListener{}
	h.engine.SetListener(listener)
	h.engine.SetGeocoder(stubGeocoder{addr: &models.Address{City: "Buenos Aires"}})

	res, err := h.engine.Start(ctx, StartRequest{VehicleID: v.ID, Coordinate: inside(zone)})
	require.NoError(t, err)

	assert.True(t, res.RequiresPayment)
	require.NotNil(t, res.Zone)
	assert.Equal(t, zone.ID, res.Zone.ID)
	require.NotNil(t, res.Session.ZoneID)
	assert.Equal(t, zone.ID, *res.Session.ZoneID)
	assert.Equal(t, models.SessionActive, res.Session.State)
	assert.Equal(t, monday(10, 0), res.Session.StartTime)
	assert.True(t, res.Session.AlarmScheduled)
	require.NotNil(t, res.Session.Address)
	assert.Equal(t, "Buenos Aires", res.Session.Address.City)

	alarm, err := h.store.Alarms.GetActiveBySession(ctx, res.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, monday(19, 30), alarm.FireAt)
	assert.Contains(t, alarm.Message, "Centro")

	stored, err := h.store.Sessions.GetByID(ctx, res.Session.ID)
	require.NoError(t, err)
	assert.True(t, stored.AlarmScheduled)

	vehicle, err := h.store.Vehicles.GetByID(ctx, v.ID)
	require.NoError(t, err)
	require.NotNil(t, vehicle.ParkedAt)
	assert.Equal(t, monday(10, 0), *vehicle.ParkedAt)

	require.Len(t, listener.sessions, 1)
	assert.Equal(t, res.Session.ID, listener.sessions[0].ID)
}

func TestStartOutsideAnyZoneIsFree(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, monday(10, 0))
	h.paidZone(t)
	v := h.vehicle(t, "abc123")

	res, err := h.engine.Start(ctx, StartRequest{VehicleID: v.ID, Coordinate: models.Coordinate{Lat: 50, Lng: 50}})
	require.NoError(t, err)

	assert.False(t, res.RequiresPayment)
	assert.Nil(t, res.Zone)
	assert.Nil(t, res.Session.ZoneID)
	assert.False(t, res.Session.AlarmScheduled)

	_, err = h.store.Alarms.GetActiveBySession(ctx, res.Session.ID)
	assert.Error(t, err)

	fin, err := h.engine.Finish(ctx, res.Session.ID, nil)
	require.NoError(t, err)
	assertAmount(t, "0", fin.AmountDue)
}

func TestStartInProhibitedZone(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, monday(10, 0))
	zone := h.zone(t, "Hospital", square(0, 0, 1), true)
	h.schedule(t, zone.ID, models.Monday, "00:00", "23:59")
	v := h.vehicle(t, "abc123")

	_, err := h.engine.Start(ctx, StartRequest{VehicleID: v.ID, Coordinate: inside(zone)})
	require.ErrorIs(t, err, ErrForbiddenZone)

	active, err := h.engine.GetActive(ctx, v.ID)
	require.NoError(t, err)
	assert.Nil(t, active)

	history, err := h.engine.ListByVehicle(ctx, v.ID, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestStartConflict(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, monday(10, 0))
	zone := h.paidZone(t)
	v := h.vehicle(t, "abc123")

	first, err := h.engine.Start(ctx, StartRequest{VehicleID: v.ID, Coordinate: inside(zone)})
	require.NoError(t, err)

	h.clock.Advance(5 * time.Minute)
	_, err = h.engine.Start(ctx, StartRequest{VehicleID: v.ID, Coordinate: models.Coordinate{Lat: 50, Lng: 50}})
	require.ErrorIs(t, err, ErrConflict)

	active, err := h.engine.GetActive(ctx, v.ID)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, first.Session.ID, active.ID)
	assert.Equal(t, first.Session.StartTime, active.StartTime)
	assert.Equal(t, zone.ID, *active.ZoneID)
}

func TestStartConcurrentSameVehicle(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, monday(10, 0))
	zone := h.paidZone(t)
	v := h.vehicle(t, "abc123")

	const workers = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		ok        int
		conflicts int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.engine.Start(ctx, StartRequest{VehicleID: v.ID, Coordinate: inside(zone)})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, ErrConflict):
				conflicts++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, workers-1, conflicts)
	assert.Equal(t, 0, h.engine.locks.size())

	history, err := h.engine.ListByVehicle(ctx, v.ID, 0, 0)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestStartDirectZone(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, monday(10, 0))
	zone := h.paidZone(t)
	inactive := &models.Zone{Name: "Old", Polygons: square(5, 5, 1)}
	require.NoError(t, h.store.Zones.Create(ctx, inactive))
	v := h.vehicle(t, "abc123")

	missing := int64(999)
	_, err := h.engine.Start(ctx, StartRequest{VehicleID: v.ID, ZoneID: &missing})
	require.ErrorIs(t, err, ErrNotFound)

	_, err = h.engine.Start(ctx, StartRequest{VehicleID: v.ID, ZoneID: &inactive.ID})
	require.ErrorIs(t, err, ErrNotFound)

	// 直接指定区域时不检查坐标
	res, err := h.engine.Start(ctx, StartRequest{VehicleID: v.ID, ZoneID: &zone.ID, Coordinate: models.Coordinate{Lat: 50, Lng: 50}})
	require.NoError(t, err)
	assert.True(t, res.RequiresPayment)
	assert.Equal(t, zone.ID, *res.Session.ZoneID)
}

func TestStartUnknownVehicle(t *testing.T) {
	h := newHarness(t, monday(10, 0))
	_, err := h.engine.Start(context.Background(), StartRequest{VehicleID: 42})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestStartRejectsClosedZoneWhenEnabled(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, monday(21, 0))
	zone := h.paidZone(t)
	free := h.zone(t, "Plaza", square(5, 5, 1), false)
	v := h.vehicle(t, "abc123")

	h.engine.SetRejectClosedZones(true)

	_, err := h.engine.Start(ctx, StartRequest{VehicleID: v.ID, Coordinate: inside(zone)})
	require.ErrorIs(t, err, ErrZoneClosed)
	assert.ErrorIs(t, err, ErrForbiddenZone)

	// 没有排班的区域不受影响
	res, err := h.engine.Start(ctx, StartRequest{VehicleID: v.ID, Coordinate: inside(free)})
	require.NoError(t, err)
	assert.True(t, res.RequiresPayment)
	assert.False(t, res.Session.AlarmScheduled)
}

func TestStartClosedZoneAllowedByDefault(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, monday(21, 0))
	zone := h.paidZone(t)
	v := h.vehicle(t, "abc123")

	res, err := h.engine.Start(ctx, StartRequest{VehicleID: v.ID, Coordinate: inside(zone)})
	require.NoError(t, err)
	assert.True(t, res.RequiresPayment)

	// 关闭时间已过，提醒改为 now + 30m
	alarm, err := h.store.Alarms.GetActiveBySession(ctx, res.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, monday(21, 30), alarm.FireAt)
}

func TestStartThenFinishImmediatelyIsFree(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, monday(10, 0))
	zone := h.paidZone(t)
	v := h.vehicle(t, "abc123")

	res, err := h.engine.Start(ctx, StartRequest{VehicleID: v.ID, Coordinate: inside(zone)})
	require.NoError(t, err)

	fin, err := h.engine.Finish(ctx, res.Session.ID, nil)
	require.NoError(t, err)
	assertAmount(t, "0", fin.AmountDue)
	assert.Equal(t, models.SessionFinished, fin.Session.State)
	require.NotNil(t, fin.Session.EndTime)
	assert.Equal(t, res.Session.StartTime, *fin.Session.EndTime)
}

func TestFinishIntegratesTariff(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, monday(8, 0))
	zone := h.paidZone(t)
	v := h.vehicle(t, "abc123")

	res, err := h.engine.Start(ctx, StartRequest{VehicleID: v.ID, Coordinate: inside(zone)})
	require.NoError(t, err)

	h.clock.Set(monday(9, 30))
	estimate, err := h.engine.EstimateCost(ctx, res.Session.ID)
	require.NoError(t, err)
	assertAmount(t, "750.00", estimate)

	fin, err := h.engine.Finish(ctx, res.Session.ID, nil)
	require.NoError(t, err)
	assertAmount(t, "750.00", fin.AmountDue)
	assert.True(t, fin.Session.AmountDue.Valid)

	// 结束后估算返回结算金额
	h.clock.Set(monday(12, 0))
	estimate, err = h.engine.EstimateCost(ctx, res.Session.ID)
	require.NoError(t, err)
	assertAmount(t, "750.00", estimate)

	_, err = h.store.Alarms.GetActiveBySession(ctx, res.Session.ID)
	assert.Error(t, err, "alarm should be deactivated")

	active, err := h.engine.GetActive(ctx, v.ID)
	require.NoError(t, err)
	assert.Nil(t, active)
}

func TestFinishWithForcedEnd(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, monday(9, 0))
	zone := h.zone(t, "Centro", square(0, 0, 1), false)
	h.schedule(t, zone.ID, models.Monday, "07:00", "14:00")
	h.tariff(t, "07:00", "10:00", 300)
	h.tariff(t, "10:00", "14:00", 500)
	v := h.vehicle(t, "abc123")

	res, err := h.engine.Start(ctx, StartRequest{VehicleID: v.ID, Coordinate: inside(zone)})
	require.NoError(t, err)

	end := monday(11, 0)
	fin, err := h.engine.Finish(ctx, res.Session.ID, &end)
	require.NoError(t, err)
	assertAmount(t, "800.00", fin.AmountDue)
	assert.Equal(t, end, *fin.Session.EndTime)
}

func TestFinishTwiceIsNotFound(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, monday(10, 0))
	zone := h.paidZone(t)
	v := h.vehicle(t, "abc123")

	res, err := h.engine.Start(ctx, StartRequest{VehicleID: v.ID, Coordinate: inside(zone)})
	require.NoError(t, err)

	_, err = h.engine.Finish(ctx, res.Session.ID, nil)
	require.NoError(t, err)

	_, err = h.engine.Finish(ctx, res.Session.ID, nil)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = h.engine.Cancel(ctx, res.Session.ID)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = h.engine.Finish(ctx, 12345, nil)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCancelChargesNothing(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, monday(10, 0))
	zone := h.paidZone(t)
	v := h.vehicle(t, "abc123")

	res, err := h.engine.Start(ctx, StartRequest{VehicleID: v.ID, Coordinate: inside(zone)})
	require.NoError(t, err)

	h.clock.Advance(2 * time.Hour)
	s, err := h.engine.Cancel(ctx, res.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionCancelled, s.State)
	assert.True(t, s.AmountDue.Valid)
	assertAmount(t, "0", s.AmountDue.Decimal)

	_, err = h.store.Alarms.GetActiveBySession(ctx, res.Session.ID)
	assert.Error(t, err)

	// 取消后可以重新开始
	_, err = h.engine.Start(ctx, StartRequest{VehicleID: v.ID, Coordinate: inside(zone)})
	require.NoError(t, err)
}

func TestListByVehicleValidation(t *testing.T) {
	h := newHarness(t, monday(10, 0))
	_, err := h.engine.ListByVehicle(context.Background(), 1, 10, -1)
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestEstimateCostUnknownSession(t *testing.T) {
	h := newHarness(t, monday(10, 0))
	_, err := h.engine.EstimateCost(context.Background(), 7)
	require.ErrorIs(t, err, ErrNotFound)
}
