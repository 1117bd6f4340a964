package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateFormat is the canonical date layout used in the store
const DateFormat = "2006-01-02"

// Venue identifies a trading exchange grouping
type Venue string

const (
	VenueASX Venue = "ASX"
	VenueUS  Venue = "US"
)

// Venues lists all supported venues in registration order
var Venues = []Venue{VenueASX, VenueUS}

// ParseVenue converts a string into a Venue
func ParseVenue(s string) (Venue, error) {
	switch Venue(strings.ToUpper(strings.TrimSpace(s))) {
	case VenueASX:
		return VenueASX, nil
	case VenueUS:
		return VenueUS, nil
	}
	return "", fmt.Errorf("unknown venue: %q", s)
}

// Location returns the venue's local timezone
func (v Venue) Location() (*time.Location, error) {
	switch v {
	case VenueASX:
		return time.LoadLocation("Australia/Sydney")
	case VenueUS:
		return time.LoadLocation("America/New_York")
	}
	return nil, fmt.Errorf("unknown venue: %q", string(v))
}

// QualifySymbol returns the venue-qualified symbol used by the market data API.
// ASX symbols get the ".AX" suffix, US symbols pass through unchanged.
func (v Venue) QualifySymbol(ticker string) string {
	if v == VenueASX {
		return ticker + ".AX"
	}
	return ticker
}

// DefaultCutoff returns the venue's default local close-based cutoff (hour, minute),
// used when a run has no explicit scheduled time.
func (v Venue) DefaultCutoff() (hour, minute int) {
	switch v {
	case VenueASX:
		return 16, 35
	default:
		return 9, 35
	}
}

// TurnoverRecord is one row of the register_turnover table:
// daily register turnover plus the running cumulative sum for a (ticker, venue).
type TurnoverRecord struct {
	ID                 int64   `json:"id"`
	Ticker             string  `json:"ticker"`
	Date               string  `json:"date"` // YYYY-MM-DD
	Venue              Venue   `json:"venue"`
	RegisterTurnover   float64 `json:"register_turnover"`   // volume / shares outstanding * 100
	CumulativeTurnover float64 `json:"cumulative_turnover"` // running sum, non-decreasing
}

// SOISnapshot is one row of the soi (shares on issue) table.
// Append-only audit trail written alongside every turnover record.
type SOISnapshot struct {
	ID     int64   `json:"id"`
	Ticker string  `json:"ticker"`
	Date   string  `json:"date"` // YYYY-MM-DD
	Venue  Venue   `json:"venue"`
	SOI    float64 `json:"soi"`
}

// DailyBar is a single daily OHLCV bar from the market data provider
type DailyBar struct {
	Date   time.Time       `json:"date"`
	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume int64           `json:"volume"`
}

// TypicalPrice returns (high + low + close) / 3, the VWAP numerator basis
func (b DailyBar) TypicalPrice() decimal.Decimal {
	three := decimal.NewFromInt(3)
	return b.High.Add(b.Low).Add(b.Close).Div(three)
}

// ScheduledRun describes one pipeline invocation. It is never persisted;
// it exists only for the lifetime of the run it describes.
type ScheduledRun struct {
	Venue       Venue      `json:"venue"`
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
	CutoffAt    time.Time  `json:"cutoff_at"`
}
