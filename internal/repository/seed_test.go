package repository

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/langchou/parkmeter/internal/models"
)

const seedJSON = `{
  "zones": [
    {
      "name": "Centro",
      "active": true,
      "color": "#ff0000",
      "polygons": [[{"lat": 0, "lng": 0}, {"lat": 0, "lng": 1}, {"lat": 1, "lng": 1}, {"lat": 1, "lng": 0}]],
      "schedules": [
        {"weekday": 1, "open_time": "08:00", "close_time": "20:00", "enabled": true}
      ],
      "tariffs": [
        {"name": "day", "start_time": "08:00", "end_time": "20:00", "rate_per_hour": "500", "enabled": true}
      ]
    }
  ],
  "tariffs": [
    {"name": "global", "start_time": "07:00", "end_time": "21:00", "rate_per_hour": "300", "enabled": true}
  ],
  "vehicles": [
    {"owner_id": 1, "plate": "abc123"}
  ]
}`

func writeSeed(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seed.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestApplySeed(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	seed, err := LoadSeed(writeSeed(t, seedJSON))
	require.NoError(t, err)

	n, err := ApplySeed(ctx, store.SeedTarget(), seed)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	zones, err := store.Zones.List(ctx)
	require.NoError(t, err)
	require.Len(t, zones, 1)
	assert.True(t, zones[0].Active)
	assert.Len(t, zones[0].Polygons, 1)

	schedules, err := store.Schedules.List(ctx)
	require.NoError(t, err)
	require.Len(t, schedules, 1)
	assert.Equal(t, zones[0].ID, schedules[0].ZoneID)

	tariffs, err := store.Tariffs.List(ctx)
	require.NoError(t, err)
	require.Len(t, tariffs, 2)
	require.NotNil(t, tariffs[0].ZoneID)
	assert.Equal(t, zones[0].ID, *tariffs[0].ZoneID)
	assert.Nil(t, tariffs[1].ZoneID)

	v, err := store.Vehicles.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "ABC123", v.Plate)

	// 再次写入时跳过区域，重复车牌忽略
	seed, err = LoadSeed(writeSeed(t, seedJSON))
	require.NoError(t, err)
	n, err = ApplySeed(ctx, store.SeedTarget(), seed)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	zones, err = store.Zones.List(ctx)
	require.NoError(t, err)
	assert.Len(t, zones, 1)
}

func TestApplySeedRejectsInvalidPolygon(t *testing.T) {
	seed, err := LoadSeed(writeSeed(t, `{"zones": [{"name": "bad", "polygons": [[{"lat": 0, "lng": 0}]]}]}`))
	require.NoError(t, err)

	_, err = ApplySeed(context.Background(), NewMemory().SeedTarget(), seed)
	assert.Error(t, err)
}

func TestApplySeedRejectsInvalidSchedule(t *testing.T) {
	for name, schedule := range map[string]string{
		"weekday":  `{"weekday": 9, "open_time": "08:00", "close_time": "20:00", "enabled": true}`,
		"reversed": `{"weekday": 1, "open_time": "20:00", "close_time": "08:00", "enabled": true}`,
	} {
		t.Run(name, func(t *testing.T) {
			seed, err := LoadSeed(writeSeed(t, `{"zones": [{"name": "bad", "active": true,
				"polygons": [[{"lat": 0, "lng": 0}, {"lat": 0, "lng": 1}, {"lat": 1, "lng": 1}]],
				"schedules": [`+schedule+`]}]}`))
			require.NoError(t, err)

			store := NewMemory()
			_, err = ApplySeed(context.Background(), store.SeedTarget(), seed)
			assert.ErrorIs(t, err, models.ErrInvalidSchedule)

			list, err := store.Schedules.List(context.Background())
			require.NoError(t, err)
			assert.Empty(t, list)
		})
	}
}

func TestLoadSeedMissingFile(t *testing.T) {
	_, err := LoadSeed(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
