package common

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiter(t *testing.T) {
	l := NewRateLimiter(2, time.Second)
	now := time.Now()
	assert.True(t, l.Allow("u1", now), "first should pass")
	assert.True(t, l.Allow("u1", now.Add(100*time.Millisecond)), "second should pass")
	assert.False(t, l.Allow("u1", now.Add(200*time.Millisecond)), "third should be blocked")
	assert.True(t, l.Allow("u2", now.Add(200*time.Millisecond)), "keys are independent")
	assert.True(t, l.Allow("u1", now.Add(2*time.Second)), "should pass after window")
}
