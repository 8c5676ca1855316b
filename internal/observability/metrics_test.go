package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorRecords(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	require.NoError(t, err)

	c.SessionStarted(true)
	c.SessionStarted(true)
	c.SessionStarted(false)
	c.SessionRejected("conflict")
	c.SessionClosed("finished", 750)
	c.SessionClosed("cancelled", 0)
	c.ObserveSweep(5*time.Millisecond, 3)
	c.AlarmPlanned()
	c.AlarmDispatched()
	c.CatalogRefreshed("store")

	assert.Equal(t, 2.0, testutil.ToFloat64(c.SessionsStarted.WithLabelValues("zoned")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.SessionsStarted.WithLabelValues("none")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.SessionsRejected.WithLabelValues("conflict")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.SessionsClosed.WithLabelValues("finished")))
	assert.Equal(t, 750.0, testutil.ToFloat64(c.AmountCharged))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.SweepExpired))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.AlarmsPlanned))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.AlarmsDispatched))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.CatalogRefreshes.WithLabelValues("store")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.SweepDuration))
	assert.Equal(t, reg, c.Gatherer())
}

func TestCollectorReusesRegistered(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewCollector(reg)
	require.NoError(t, err)
	second, err := NewCollector(reg)
	require.NoError(t, err)

	first.AlarmDispatched()
	assert.Equal(t, 1.0, testutil.ToFloat64(second.AlarmsDispatched))
}

func TestNilCollectorIsSafe(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.SessionStarted(true)
		c.SessionRejected("forbidden")
		c.SessionClosed("expired", 10)
		c.ObserveSweep(time.Second, 1)
		c.AlarmPlanned()
		c.AlarmDispatched()
		c.CatalogRefreshed("cache")
	})
	assert.Nil(t, c.Gatherer())
}
