package services

import (
	"context"
	"time"

	"turnover_backend/config"
	"turnover_backend/models"
)

// CutoffCalculator computes the instant after which a venue's end-of-day data
// is treated as final, and waits for it. The wait is a plain poll loop: data
// availability is not an event anyone pushes to us, so there is nothing
// better to block on.
type CutoffCalculator struct {
	offset       time.Duration
	pollInterval time.Duration
	now          func() time.Time
}

// NewCutoffCalculator builds a calculator from config
func NewCutoffCalculator(cfg *config.Config) *CutoffCalculator {
	return &CutoffCalculator{
		offset:       cfg.CutoffOffset(),
		pollInterval: cfg.CutoffPollInterval(),
		now:          time.Now,
	}
}

// CutoffFor returns the cutoff instant for a run. With an explicit scheduled
// time the cutoff is scheduledAt + offset. Without one it falls back to the
// venue's default local close-based time (16:35 Sydney for ASX, 09:35 New
// York for US) on the current day.
func (c *CutoffCalculator) CutoffFor(venue models.Venue, scheduledAt *time.Time) (time.Time, error) {
	if scheduledAt != nil {
		return scheduledAt.Add(c.offset), nil
	}

	loc, err := venue.Location()
	if err != nil {
		return time.Time{}, err
	}
	now := c.now().In(loc)
	hour, minute := venue.DefaultCutoff()
	return time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, loc), nil
}

// WaitUntil blocks until now >= cutoff, polling at the configured interval.
// A cutoff already in the past returns immediately; expiry is never an error.
// The only other way out is ctx being cancelled.
func (c *CutoffCalculator) WaitUntil(ctx context.Context, cutoff time.Time) error {
	for c.now().Before(cutoff) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.pollInterval):
		}
	}
	return nil
}
