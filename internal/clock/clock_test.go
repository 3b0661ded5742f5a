package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMock(t *testing.T) {
	t0 := time.Date(2026, 5, 1, 20, 0, 0, 0, time.FixedZone("CEST", 2*60*60))
	m := NewMock(t0)
	assert.True(t, m.Now().Equal(t0))
	assert.Equal(t, time.UTC, m.Now().Location())

	m.Advance(90 * time.Second)
	assert.True(t, m.Now().Equal(t0.Add(90*time.Second)))
}

func TestSystem(t *testing.T) {
	before := time.Now()
	now := NewSystem().Now()
	assert.Equal(t, time.UTC, now.Location())
	assert.False(t, now.Before(before.Truncate(time.Second)))
}
