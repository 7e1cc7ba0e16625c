package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRealClock_Now(t *testing.T) {
	c := RealClock{}

	before := time.Now()
	got := c.Now()
	after := time.Now()

	assert.False(t, got.Before(before), "Now() returned a time before the call")
	assert.False(t, got.After(after), "Now() returned a time after the call")
}

func TestFixed_Now(t *testing.T) {
	at := time.Date(2026, 3, 1, 9, 15, 0, 0, time.UTC)
	c := Fixed{T: at}

	assert.Equal(t, at, c.Now())
	assert.Equal(t, at, c.Now(), "fixed clock must not advance")
}
