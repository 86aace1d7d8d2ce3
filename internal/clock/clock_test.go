package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRealClock_Now(t *testing.T) {
	c := New()
	before := time.Now().UTC().Add(-time.Second)
	now := c.Now()
	after := time.Now().UTC().Add(time.Second)

	assert.True(t, now.After(before))
	assert.True(t, now.Before(after))
	assert.Equal(t, time.UTC, now.Location())
}

func TestFakeClock(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c := NewFake(start)

	assert.Equal(t, start, c.Now())

	c.Advance(30 * time.Second)
	assert.Equal(t, start.Add(30*time.Second), c.Now())

	later := start.Add(time.Hour)
	c.Set(later)
	assert.Equal(t, later, c.Now())
}
