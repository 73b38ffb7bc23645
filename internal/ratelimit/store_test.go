package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMemoryStore_SweepDropsExpired(t *testing.T) {
	s := NewMemoryStore(0)
	now := time.Unix(1_700_000_000, 0)
	ctx := context.Background()

	_, _, _ = s.Increment(ctx, "old", time.Second, now)
	_, _, _ = s.Increment(ctx, "new", time.Hour, now)
	assert.Equal(t, 2, s.Len())

	s.Sweep(now.Add(2 * time.Second))
	assert.Equal(t, 1, s.Len())
}

func TestMemoryStore_JanitorStops(t *testing.T) {
	s := NewMemoryStore(5 * time.Millisecond)
	_, _, _ = s.Increment(context.Background(), "k", time.Millisecond, time.Now())

	assert.Eventually(t, func() bool { return s.Len() == 0 }, time.Second, 5*time.Millisecond)
	s.Close()
	s.Close()
}

func TestMemoryStore_ResetAtIsFixedFromFirstHit(t *testing.T) {
	s := NewMemoryStore(0)
	now := time.Unix(100, 0)
	ctx := context.Background()

	c, reset1, _ := s.Increment(ctx, "k", time.Minute, now)
	assert.Equal(t, 1, c)
	c, reset2, _ := s.Increment(ctx, "k", time.Minute, now.Add(30*time.Second))
	assert.Equal(t, 2, c)
	assert.Equal(t, reset1, reset2)
}
