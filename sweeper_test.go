package paidquiz

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweepOnce(t *testing.T) {
	ctx := context.Background()
	f := newSessionFixture(t)
	createTestUser(t, f.db, "u1", "0")
	sweeper := NewSweeper(f.cache, f.sessions, time.Minute, nil)

	f.start(t, "u1", "ref-1")

	result, err := sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{}, result)

	f.clock.Advance(25 * time.Hour)
	result, err = sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{ExpiredSets: 1, AbandonedSessions: 1}, result)

	result, err = sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{}, result)
}

func TestSweeperRunStopsOnCancel(t *testing.T) {
	f := newSessionFixture(t)
	sweeper := NewSweeper(f.cache, f.sessions, 10*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sweeper.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop")
	}
}
