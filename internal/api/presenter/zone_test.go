package presenter

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/langchou/parkmeter/internal/models"
	"github.com/langchou/parkmeter/internal/schedule"
	"github.com/langchou/parkmeter/internal/tariff"
)

var square = models.PolygonSet{{
	{Lat: 0, Lng: 0}, {Lat: 2, Lng: 0}, {Lat: 2, Lng: 2}, {Lat: 0, Lng: 2},
}}

func fixture(t *testing.T) (*schedule.Index, *tariff.Table) {
	t.Helper()
	idx, err := schedule.NewIndex([]models.ZoneSchedule{
		{ZoneID: 1, Weekday: models.Monday, OpenTime: models.MustTimeOfDay("08:00"), CloseTime: models.MustTimeOfDay("20:00"), Enabled: true},
		{ZoneID: 1, Weekday: models.Saturday, OpenTime: models.MustTimeOfDay("09:00"), CloseTime: models.MustTimeOfDay("13:00"), Enabled: false},
		{ZoneID: 3, Weekday: models.Monday, OpenTime: models.MustTimeOfDay("00:00"), CloseTime: models.MustTimeOfDay("23:59"), Enabled: true},
	})
	require.NoError(t, err)

	table := tariff.NewTable([]models.TariffWindow{
		{Name: "Mañana", StartTime: models.MustTimeOfDay("08:00"), EndTime: models.MustTimeOfDay("12:00"), RatePerHour: decimal.NewFromInt(300), Enabled: true},
		{Name: "Tarde", StartTime: models.MustTimeOfDay("12:00"), EndTime: models.MustTimeOfDay("20:00"), RatePerHour: decimal.NewFromInt(500), Enabled: true},
	}, time.UTC)
	return idx, table
}

func TestKind(t *testing.T) {
	idx, _ := fixture(t)

	assert.Equal(t, models.ZonePaid, Kind(&models.Zone{ID: 1}, idx))
	assert.Equal(t, models.ZoneFree, Kind(&models.Zone{ID: 2}, idx))
	assert.Equal(t, models.ZoneProhibited, Kind(&models.Zone{ID: 3, Prohibited: true}, idx))
	assert.Equal(t, models.ZoneFree, Kind(&models.Zone{ID: 1}, nil))
}

func TestPaidZoneView(t *testing.T) {
	idx, table := fixture(t)
	z := &models.Zone{ID: 1, Name: "Centro", Polygons: square, Active: true}

	// 2025-07-21 星期一 10:15
	v := Zone(z, idx, table, time.Date(2025, 7, 21, 10, 15, 0, 0, time.UTC))

	assert.Equal(t, models.ZonePaid, v.Kind)
	require.NotNil(t, v.Centroid)
	assert.InDelta(t, 1.0, v.Centroid.Lat, 1e-9)

	require.Len(t, v.Schedule, 7)
	assert.Equal(t, DayView{Weekday: "monday", Open: "08:00", Close: "20:00"}, v.Schedule[0])
	assert.True(t, v.Schedule[1].Closed)
	assert.True(t, v.Schedule[5].Closed, "disabled entries show as closed")

	assert.Len(t, v.Tariffs, 2)
	require.NotNil(t, v.CurrentTariff)
	assert.Equal(t, "Mañana", v.CurrentTariff.Name)

	assert.True(t, v.OpenNow)
	require.NotNil(t, v.NextTransition)
	assert.Equal(t, TransitionView{Kind: "closes", At: "20:00"}, *v.NextTransition)
}

func TestPaidZoneViewBeforeOpening(t *testing.T) {
	idx, table := fixture(t)
	z := &models.Zone{ID: 1, Name: "Centro", Polygons: square}

	v := Zone(z, idx, table, time.Date(2025, 7, 21, 7, 0, 0, 0, time.UTC))
	assert.False(t, v.OpenNow)
	assert.Nil(t, v.CurrentTariff)
	require.NotNil(t, v.NextTransition)
	assert.Equal(t, "opens", v.NextTransition.Kind)
}

func TestFreeAndProhibitedViews(t *testing.T) {
	idx, table := fixture(t)
	now := time.Date(2025, 7, 21, 10, 0, 0, 0, time.UTC)

	free := Zone(&models.Zone{ID: 2, Name: "Plaza", Polygons: square}, idx, table, now)
	assert.Equal(t, models.ZoneFree, free.Kind)
	assert.Empty(t, free.Tariffs)
	assert.Nil(t, free.CurrentTariff)
	assert.False(t, free.OpenNow)

	banned := Zone(&models.Zone{ID: 3, Name: "Hospital", Polygons: square, Prohibited: true}, idx, table, now)
	assert.Equal(t, models.ZoneProhibited, banned.Kind)
	assert.Empty(t, banned.Tariffs)
	assert.Nil(t, banned.NextTransition)
}
