package scheduler

import (
	"path/filepath"
	"testing"
	"time"

	"turnover_backend/config"
	"turnover_backend/models"
	"turnover_backend/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubTickers struct {
	symbols []string
}

func (s *stubTickers) DiscoverTickers(venue models.Venue, scanID int) ([]string, error) {
	return s.symbols, nil
}

type stubMarket struct{}

func (s *stubMarket) FetchDailyBars(symbol string) ([]models.DailyBar, error) {
	return nil, nil
}

func (s *stubMarket) FetchSharesOutstanding(symbol string) (float64, error) {
	return 0, services.ErrSharesUnavailable
}

func newTestScheduler(t *testing.T) *Scheduler {
	t.Helper()
	cfg := &config.Config{
		StorePathOverride: filepath.Join(t.TempDir(), "turnover_test.db"),
		StoreMaxRetries:   5,
		StoreRetryDelayMs: 1,
		ScheduleTimezone:  "Australia/Sydney",
		ASXScheduleTime:   "14:08",
		USScheduleTime:    "14:15",
		CutoffPollSeconds: 1,
	}
	store := services.NewTurnoverStore(cfg)
	require.NoError(t, store.Init())

	cutoff := services.NewCutoffCalculator(cfg)
	pipeline := services.NewTurnoverPipeline(cfg, store, &stubTickers{}, &stubMarket{}, cutoff)

	sched, err := NewScheduler(cfg, pipeline, store, nil)
	require.NoError(t, err)
	return sched
}

func TestNewSchedulerRejectsBadTimezone(t *testing.T) {
	cfg := &config.Config{ScheduleTimezone: "Mars/Olympus"}
	_, err := NewScheduler(cfg, nil, nil, nil)
	assert.Error(t, err)
}

func TestStartRegistersBothDailyTriggers(t *testing.T) {
	sched := newTestScheduler(t)
	require.NoError(t, sched.Start())
	defer sched.Stop()

	jobs := sched.Jobs()
	require.Len(t, jobs, 2)

	tags := []string{jobs[0].Tag, jobs[1].Tag}
	assert.Contains(t, tags, ASXJobTag)
	assert.Contains(t, tags, USJobTag)

	for _, job := range jobs {
		assert.False(t, job.NextRun.IsZero(), "trigger %s must have a next fire time", job.Tag)
	}
}

func TestSubmitTracksRunHandles(t *testing.T) {
	sched := newTestScheduler(t)

	handle, err := sched.Submit(models.VenueASX, nil)
	require.NoError(t, err)
	require.NotNil(t, handle)

	runs := sched.Runs()
	require.Len(t, runs, 1)
	assert.Equal(t, models.VenueASX, runs[0].Run.Venue)

	// Empty discovery completes immediately, so the handle is finished
	require.NoError(t, handle.Wait())
	assert.False(t, handle.Running())
}

func TestTrackPrunesFinishedRunsOverBudget(t *testing.T) {
	sched := newTestScheduler(t)

	for i := 0; i < maxTrackedRuns+5; i++ {
		handle, err := sched.Submit(models.VenueASX, nil)
		require.NoError(t, err)
		require.NoError(t, handle.Wait())
	}

	assert.LessOrEqual(t, len(sched.Runs()), maxTrackedRuns)
}

func TestScheduledTimeTodayResolvesInSchedulerZone(t *testing.T) {
	sched := newTestScheduler(t)

	at, err := sched.scheduledTimeToday("14:08")
	require.NoError(t, err)

	assert.Equal(t, 14, at.Hour())
	assert.Equal(t, 8, at.Minute())
	assert.Equal(t, "Australia/Sydney", at.Location().String())

	today := time.Now().In(sched.location)
	assert.Equal(t, today.Day(), at.Day())

	_, err = sched.scheduledTimeToday("25:99")
	assert.Error(t, err)
}
