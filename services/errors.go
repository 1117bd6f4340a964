package services

import (
	"errors"
	"fmt"
)

// ErrSharesUnavailable is returned when the market data provider has no
// shares-outstanding figure for a symbol. The pipeline skips such symbols.
var ErrSharesUnavailable = errors.New("shares outstanding not available")

// ErrNoBars is returned when the provider has no bar data for the session.
// Like ErrSharesUnavailable it is a per-symbol skip, not a run failure.
var ErrNoBars = errors.New("no bar data for session")

// DiscoveryError indicates the scanner gateway failed to produce a ticker
// list. A run that hits this terminates before any store access.
type DiscoveryError struct {
	Venue string
	Err   error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("ticker discovery failed for %s: %v", e.Venue, e.Err)
}

func (e *DiscoveryError) Unwrap() error {
	return e.Err
}

// StoreBusyError indicates a statement kept hitting SQLite lock contention
// until the retry budget ran out. It aborts the run that raised it; other
// runs and the HTTP layer are unaffected.
type StoreBusyError struct {
	Attempts int
	Err      error
}

func (e *StoreBusyError) Error() string {
	return fmt.Sprintf("store busy after %d attempts: %v", e.Attempts, e.Err)
}

func (e *StoreBusyError) Unwrap() error {
	return e.Err
}
