package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/langchou/parkmeter/internal/models"
)

func setupTestCache(t *testing.T) (*miniredis.Miniredis, *CatalogCache) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return mr, NewCatalogCache(client, "parkmeter:", time.Minute, zap.NewNop())
}

func TestCatalogCacheMiss(t *testing.T) {
	_, c := setupTestCache(t)

	_, err := c.Get(context.Background())
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestCatalogCacheSetGet(t *testing.T) {
	mr, c := setupTestCache(t)
	ctx := context.Background()

	catalog := &models.Catalog{
		Zones: []*models.Zone{{
			ID:     1,
			Name:   "Centro",
			Active: true,
			Polygons: models.PolygonSet{{
				{Lat: 0, Lng: 0}, {Lat: 0, Lng: 1}, {Lat: 1, Lng: 1},
			}},
		}},
		Schedules: []models.ZoneSchedule{{
			ZoneID:    1,
			Weekday:   models.Monday,
			OpenTime:  models.MustTimeOfDay("08:00"),
			CloseTime: models.MustTimeOfDay("20:00:30"),
			Enabled:   true,
		}},
		Tariffs: []models.TariffWindow{{
			StartTime:   models.MustTimeOfDay("08:00"),
			EndTime:     models.MustTimeOfDay("20:00"),
			RatePerHour: decimal.RequireFromString("512.50"),
			Enabled:     true,
		}},
	}
	require.NoError(t, c.Set(ctx, catalog))
	assert.True(t, mr.Exists("parkmeter:catalog:snapshot"))
	assert.Equal(t, time.Minute, mr.TTL("parkmeter:catalog:snapshot"))

	got, err := c.Get(ctx)
	require.NoError(t, err)
	require.Len(t, got.Zones, 1)
	assert.Equal(t, "Centro", got.Zones[0].Name)
	assert.Equal(t, catalog.Zones[0].Polygons, got.Zones[0].Polygons)
	require.Len(t, got.Schedules, 1)
	assert.Equal(t, models.MustTimeOfDay("20:00:30"), got.Schedules[0].CloseTime)
	require.Len(t, got.Tariffs, 1)
	assert.True(t, got.Tariffs[0].RatePerHour.Equal(decimal.RequireFromString("512.5")))
}

func TestCatalogCacheExpires(t *testing.T) {
	mr, c := setupTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, &models.Catalog{}))
	mr.FastForward(2 * time.Minute)

	_, err := c.Get(ctx)
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestCatalogCacheInvalidate(t *testing.T) {
	_, c := setupTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, &models.Catalog{}))
	require.NoError(t, c.Invalidate(ctx))

	_, err := c.Get(ctx)
	assert.ErrorIs(t, err, ErrCacheMiss)
	assert.NoError(t, c.Ping(ctx))
}

func TestCatalogCacheCorruptValue(t *testing.T) {
	mr, c := setupTestCache(t)
	require.NoError(t, mr.Set("parkmeter:catalog:snapshot", "{not json"))

	_, err := c.Get(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCacheMiss)
}
