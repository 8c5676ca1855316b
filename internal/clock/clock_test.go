package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestManualAdvance(t *testing.T) {
	start := time.Date(2025, 7, 21, 8, 0, 0, 0, time.UTC)
	c := NewManual(start)

	assert.Equal(t, start, c.Now())
	assert.Equal(t, start.Add(90*time.Minute), c.Advance(90*time.Minute))

	c.Set(start)
	assert.Equal(t, start, c.Now())
}

func TestRealUsesLocation(t *testing.T) {
	loc := time.FixedZone("UTC-3", -3*3600)
	c := NewReal(loc)
	assert.Equal(t, loc, c.Now().Location())
}
