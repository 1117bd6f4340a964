package services

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"turnover_backend/config"
	"turnover_backend/models"
)

// TickerSource produces candidate symbols for a venue. The production
// implementation talks to the scanner gateway; tests substitute fakes.
type TickerSource interface {
	DiscoverTickers(venue models.Venue, scanID int) ([]string, error)
}

// ScannerService fetches top-movers symbols from the market scanner gateway.
// The gateway wraps the broker's scanner subscription (top percentage
// gainers, one result set per request) behind a plain HTTP endpoint.
type ScannerService struct {
	baseURL    string
	httpClient *http.Client
}

// scannerResponse represents the gateway response
type scannerResponse struct {
	Venue   string   `json:"venue"`
	ScanID  int      `json:"scan_id"`
	Symbols []string `json:"symbols"`
}

// NewScannerService creates a scanner client
func NewScannerService(cfg *config.Config) *ScannerService {
	return &ScannerService{
		baseURL: cfg.ScannerBaseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// DiscoverTickers returns the deduplicated symbol list for a venue, in
// scanner rank order. An empty list is a valid result, not an error; the
// request timing out or failing is a *DiscoveryError.
func (s *ScannerService) DiscoverTickers(venue models.Venue, scanID int) ([]string, error) {
	endpoint := fmt.Sprintf("%s/scanner?venue=%s&scan_id=%s",
		s.baseURL, url.QueryEscape(string(venue)), strconv.Itoa(scanID))

	resp, err := s.httpClient.Get(endpoint)
	if err != nil {
		return nil, &DiscoveryError{Venue: string(venue), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &DiscoveryError{
			Venue: string(venue),
			Err:   fmt.Errorf("scanner gateway returned status %d", resp.StatusCode),
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &DiscoveryError{Venue: string(venue), Err: fmt.Errorf("failed to read response: %w", err)}
	}

	var scan scannerResponse
	if err := json.Unmarshal(body, &scan); err != nil {
		return nil, &DiscoveryError{Venue: string(venue), Err: fmt.Errorf("failed to parse response: %w", err)}
	}

	symbols := dedupeSymbols(scan.Symbols)
	log.Printf("Scanner returned %d symbols for %s (scan %d)", len(symbols), venue, scanID)
	return symbols, nil
}

// dedupeSymbols removes duplicates while keeping scanner rank order
func dedupeSymbols(symbols []string) []string {
	seen := make(map[string]bool, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		if sym == "" || seen[sym] {
			continue
		}
		seen[sym] = true
		out = append(out, sym)
	}
	return out
}
