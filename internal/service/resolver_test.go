package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/langchou/parkmeter/internal/models"
)

func TestResolveLowestIDWins(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, monday(10, 0))
	first := h.zone(t, "Centro", square(0, 0, 2), false)
	h.zone(t, "Overlap", square(0.5, 0.5, 2), false)

	z := h.resolver.Resolve(ctx, models.Coordinate{Lat: 1, Lng: 1})
	require.NotNil(t, z)
	assert.Equal(t, first.ID, z.ID)
}

func TestResolveIgnoresInactiveZones(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, monday(10, 0))
	require.NoError(t, h.store.Zones.Create(ctx, &models.Zone{Name: "Old", Polygons: square(0, 0, 1)}))
	active := h.zone(t, "New", square(0, 0, 1), false)

	z := h.resolver.Resolve(ctx, models.Coordinate{Lat: 0.5, Lng: 0.5})
	require.NotNil(t, z)
	assert.Equal(t, active.ID, z.ID)
}

func TestResolveNoMatch(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, monday(10, 0))
	h.zone(t, "Centro", square(0, 0, 1), false)

	assert.Nil(t, h.resolver.Resolve(ctx, models.Coordinate{Lat: 3, Lng: 3}))
	assert.Nil(t, h.resolver.Resolve(ctx, models.Coordinate{Lat: 91, Lng: 0}))
}

func TestResolveMultiPolygonZone(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, monday(10, 0))
	polygons := append(square(0, 0, 1), square(10, 10, 1)...)
	z := h.zone(t, "Split", polygons, false)

	got := h.resolver.Resolve(ctx, models.Coordinate{Lat: 10.5, Lng: 10.5})
	require.NotNil(t, got)
	assert.Equal(t, z.ID, got.ID)
	assert.Nil(t, h.resolver.Resolve(ctx, models.Coordinate{Lat: 5, Lng: 5}))
}

func TestContains(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, monday(10, 0))
	z := h.zone(t, "Centro", square(0, 0, 1), false)

	ok, err := h.resolver.Contains(ctx, z.ID, models.Coordinate{Lat: 0.5, Lng: 0.5})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.resolver.Contains(ctx, z.ID, models.Coordinate{Lat: 2, Lng: 2})
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = h.resolver.Contains(ctx, 99, models.Coordinate{Lat: 0.5, Lng: 0.5})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestNearby(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, monday(10, 0))
	near := h.zone(t, "Near", square(0, 0, 0.002), false)
	h.zone(t, "Far", square(1, 1, 0.002), false)

	zones, err := h.resolver.Nearby(ctx, models.Coordinate{Lat: 0.005, Lng: 0.005}, 0)
	require.NoError(t, err)
	require.Len(t, zones, 1)
	assert.Equal(t, near.ID, zones[0].ID)

	_, err = h.resolver.Nearby(ctx, models.Coordinate{Lat: 0, Lng: 200}, 0)
	require.ErrorIs(t, err, ErrInvalidInput)
}
