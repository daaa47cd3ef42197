package smtp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConnectionLimiter_Concurrency(t *testing.T) {
	l := NewConnectionLimiter(2, 100)

	assert.True(t, l.Acquire())
	assert.True(t, l.Acquire())
	assert.False(t, l.Acquire())
	assert.Equal(t, 2, l.Current())

	l.Release()
	assert.True(t, l.Acquire())
}

func TestConnectionLimiter_Rate(t *testing.T) {
	l := NewConnectionLimiter(100, 2)

	assert.True(t, l.Acquire())
	assert.True(t, l.Acquire())
	assert.False(t, l.Acquire(), "burst exhausted")
	assert.Equal(t, 2, l.Current())
}

func TestConnectionLimiter_ReleaseNeverNegative(t *testing.T) {
	l := NewConnectionLimiter(1, 1)
	l.Release()
	assert.Equal(t, 0, l.Current())
}
