package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"turnover_backend/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a settable clock for driving cutoff waits in tests
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestCutoff(clock *fakeClock) *CutoffCalculator {
	return &CutoffCalculator{
		offset:       35 * time.Minute,
		pollInterval: time.Millisecond,
		now:          clock.Now,
	}
}

func TestCutoffForScheduledRun(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 8, 28, 14, 8, 0, 0, time.UTC)}
	calc := newTestCutoff(clock)

	scheduled := time.Date(2026, 8, 28, 14, 8, 0, 0, time.UTC)
	cutoff, err := calc.CutoffFor(models.VenueASX, &scheduled)
	require.NoError(t, err)
	assert.Equal(t, scheduled.Add(35*time.Minute), cutoff)
}

func TestCutoffForDefaultsToVenueLocalTime(t *testing.T) {
	sydney, err := time.LoadLocation("Australia/Sydney")
	require.NoError(t, err)
	newYork, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	clock := &fakeClock{now: time.Date(2026, 8, 28, 10, 0, 0, 0, sydney)}
	calc := newTestCutoff(clock)

	cutoff, err := calc.CutoffFor(models.VenueASX, nil)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 8, 28, 16, 35, 0, 0, sydney).Unix(), cutoff.Unix())

	cutoff, err = calc.CutoffFor(models.VenueUS, nil)
	require.NoError(t, err)
	// 10:00 Sydney on Aug 28 is still Aug 27 in New York
	wantDay := clock.Now().In(newYork)
	assert.Equal(t, time.Date(wantDay.Year(), wantDay.Month(), wantDay.Day(), 9, 35, 0, 0, newYork).Unix(), cutoff.Unix())
}

func TestWaitUntilPastCutoffReturnsImmediately(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 8, 28, 17, 0, 0, 0, time.UTC)}
	calc := newTestCutoff(clock)

	cutoff := clock.Now().Add(-time.Hour)
	require.NoError(t, calc.WaitUntil(context.Background(), cutoff))
}

func TestWaitUntilUnblocksWhenCutoffPasses(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 8, 28, 16, 0, 0, 0, time.UTC)}
	calc := newTestCutoff(clock)
	cutoff := clock.Now().Add(35 * time.Minute)

	done := make(chan error, 1)
	go func() {
		done <- calc.WaitUntil(context.Background(), cutoff)
	}()

	select {
	case <-done:
		t.Fatal("wait returned before cutoff")
	case <-time.After(10 * time.Millisecond):
	}

	clock.Advance(40 * time.Minute)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("wait did not unblock after cutoff passed")
	}
}

func TestWaitUntilHonoursCancellation(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 8, 28, 16, 0, 0, 0, time.UTC)}
	calc := newTestCutoff(clock)
	cutoff := clock.Now().Add(time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- calc.WaitUntil(ctx, cutoff)
	}()

	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("wait did not unblock on cancellation")
	}
}
