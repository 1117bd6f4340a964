package services

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"turnover_backend/config"
	"turnover_backend/models"
)

// TurnoverThreshold is the minimum register turnover (percent of shares on
// issue traded in one session) a ticker must hit before it is tracked.
// Anything below is noise and never written.
const TurnoverThreshold = 4.0

// RunHandle tracks one in-flight pipeline run. Runs are fire-and-forget from
// the scheduler's point of view; the handle exists so a future graceful
// shutdown can cancel the cutoff wait, and so tests and the admin API can
// observe completion.
type RunHandle struct {
	Run models.ScheduledRun

	cancel context.CancelFunc
	done   chan struct{}

	mu  sync.Mutex
	err error
}

// Wait blocks until the run finishes and returns its terminal error, if any
func (h *RunHandle) Wait() error {
	<-h.done
	return h.Err()
}

// Done returns a channel closed when the run finishes
func (h *RunHandle) Done() <-chan struct{} {
	return h.done
}

// Cancel aborts the run's cutoff wait and symbol loop
func (h *RunHandle) Cancel() {
	h.cancel()
}

// Err returns the terminal error of a finished run, nil while running
func (h *RunHandle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Running reports whether the run is still in flight
func (h *RunHandle) Running() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

func (h *RunHandle) finish(err error) {
	h.mu.Lock()
	h.err = err
	h.mu.Unlock()
	close(h.done)
}

// TurnoverPipeline runs the daily ingestion for one venue: discover candidate
// tickers, wait for the venue's data cutoff on a background goroutine, then
// walk the symbols sequentially computing register turnover and upserting
// cumulative state into the shared store.
//
// Symbols are processed strictly one at a time to bound load on the market
// data provider and keep store lock windows short. Per-symbol data gaps are
// skipped; store errors abort the whole run.
type TurnoverPipeline struct {
	store   *TurnoverStore
	tickers TickerSource
	market  MarketDataSource
	cutoff  *CutoffCalculator
	scanID  int
	now     func() time.Time
}

// NewTurnoverPipeline wires the pipeline from its collaborators
func NewTurnoverPipeline(cfg *config.Config, store *TurnoverStore, tickers TickerSource, market MarketDataSource, cutoff *CutoffCalculator) *TurnoverPipeline {
	return &TurnoverPipeline{
		store:   store,
		tickers: tickers,
		market:  market,
		cutoff:  cutoff,
		scanID:  cfg.ScannerScanID,
		now:     time.Now,
	}
}

// SubmitRun starts one pipeline run for a venue. Discovery happens
// synchronously; everything after (cutoff wait, symbol loop, store writes)
// runs on its own goroutine so the caller returns immediately.
//
// scheduledAt is the trigger's fire time when the run came from the daily
// scheduler; the cutoff is then scheduledAt plus the configured offset. A nil
// scheduledAt (manual trigger) falls back to the venue's default cutoff.
func (p *TurnoverPipeline) SubmitRun(venue models.Venue, scheduledAt *time.Time) (*RunHandle, error) {
	symbols, err := p.tickers.DiscoverTickers(venue, p.scanID)
	if err != nil {
		log.Printf("Run for %s aborted: %v", venue, err)
		return nil, err
	}

	cutoffAt, err := p.cutoff.CutoffFor(venue, scheduledAt)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	handle := &RunHandle{
		Run: models.ScheduledRun{
			Venue:       venue,
			ScheduledAt: scheduledAt,
			CutoffAt:    cutoffAt,
		},
		cancel: cancel,
		done:   make(chan struct{}),
	}

	if len(symbols) == 0 {
		log.Printf("Scanner returned no symbols for %s, nothing to do", venue)
		handle.finish(nil)
		return handle, nil
	}

	go func() {
		defer cancel()
		handle.finish(p.runAfterCutoff(ctx, venue, cutoffAt, symbols))
	}()

	return handle, nil
}

// runAfterCutoff waits for the cutoff, then processes every symbol in order
func (p *TurnoverPipeline) runAfterCutoff(ctx context.Context, venue models.Venue, cutoffAt time.Time, symbols []string) error {
	log.Printf("Run for %s waiting until cutoff %s (%d symbols)", venue, cutoffAt.Format(time.RFC3339), len(symbols))
	if err := p.cutoff.WaitUntil(ctx, cutoffAt); err != nil {
		log.Printf("Run for %s cancelled during cutoff wait", venue)
		return err
	}

	date, err := p.tradingDate(venue)
	if err != nil {
		return err
	}

	written := 0
	for _, ticker := range symbols {
		if ctx.Err() != nil {
			log.Printf("Run for %s cancelled after %d symbols", venue, written)
			return ctx.Err()
		}
		wrote, err := p.processSymbol(venue, ticker, date)
		if err != nil {
			log.Printf("Run for %s aborted at %s: %v", venue, ticker, err)
			return err
		}
		if wrote {
			written++
		}
	}

	log.Printf("Run for %s completed: %d of %d symbols recorded", venue, written, len(symbols))
	return nil
}

// tradingDate returns today's date in the venue's local timezone
func (p *TurnoverPipeline) tradingDate(venue models.Venue) (string, error) {
	loc, err := venue.Location()
	if err != nil {
		return "", err
	}
	return p.now().In(loc).Format(models.DateFormat), nil
}

// processSymbol handles one ticker. Data gaps (no bars, no shares figure,
// fetch failures) skip the symbol and return wrote=false with a nil error;
// only store failures propagate and abort the run.
func (p *TurnoverPipeline) processSymbol(venue models.Venue, ticker, date string) (wrote bool, err error) {
	qualified := venue.QualifySymbol(ticker)

	bars, err := p.market.FetchDailyBars(qualified)
	if err != nil {
		log.Printf("Skipping %s: failed to fetch bars: %v", qualified, err)
		return false, nil
	}
	if len(bars) == 0 {
		log.Printf("Skipping %s: no bar data for session", qualified)
		return false, nil
	}

	shares, err := p.market.FetchSharesOutstanding(qualified)
	if err != nil {
		if errors.Is(err, ErrSharesUnavailable) {
			log.Printf("Skipping %s: shares outstanding not available", qualified)
		} else {
			log.Printf("Skipping %s: failed to fetch shares outstanding: %v", qualified, err)
		}
		return false, nil
	}

	latest := bars[len(bars)-1]
	registerTurnover := float64(latest.Volume) / shares * 100

	if registerTurnover < TurnoverThreshold {
		return false, nil
	}

	prior, found, err := p.store.LatestCumulativeTurnover(ticker, venue)
	if err != nil {
		return false, err
	}
	cumulative := registerTurnover
	if found {
		cumulative = prior + registerTurnover
	}

	rec := &models.TurnoverRecord{
		Ticker:             ticker,
		Date:               date,
		Venue:              venue,
		RegisterTurnover:   registerTurnover,
		CumulativeTurnover: cumulative,
	}
	if err := p.store.UpsertDailyTurnover(rec); err != nil {
		return false, err
	}

	// Audit row. Written after the turnover record: if this fails the record
	// above still stands, the snapshot is supplementary.
	snap := &models.SOISnapshot{
		Ticker: ticker,
		Date:   date,
		Venue:  venue,
		SOI:    shares,
	}
	if err := p.store.InsertSOI(snap); err != nil {
		return true, err
	}

	log.Printf("Recorded %s on %s: turnover %.2f%%, cumulative %.2f%%", ticker, venue, registerTurnover, cumulative)
	return true, nil
}
