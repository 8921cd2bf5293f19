package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiter_BurstExhaustion(t *testing.T) {
	t.Parallel()

	// 1 rps gives a burst of 2.
	rl := NewRateLimiter(1)

	assert.True(t, rl.Allow("10.0.0.1"))
	assert.True(t, rl.Allow("10.0.0.1"))
	assert.False(t, rl.Allow("10.0.0.1"))
}

func TestRateLimiter_PerIPIsolation(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(1)

	for i := 0; i < 5; i++ {
		rl.Allow("10.0.0.1")
	}

	assert.False(t, rl.Allow("10.0.0.1"))
	assert.True(t, rl.Allow("10.0.0.2"))
}

func TestRateLimiter_MinimumBurst(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(0.1)

	assert.True(t, rl.Allow("10.0.0.1"))
	assert.False(t, rl.Allow("10.0.0.1"))
}
