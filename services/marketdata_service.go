package services

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"turnover_backend/config"
	"turnover_backend/models"

	"github.com/shopspring/decimal"
)

// MarketDataSource provides end-of-day market data. The production
// implementation is the Yahoo-style finance API; tests substitute fakes.
type MarketDataSource interface {
	// FetchDailyBars returns the bars for the current/most recent session.
	// An empty result means the symbol had no session data (skip, not error).
	FetchDailyBars(qualifiedSymbol string) ([]models.DailyBar, error)
	// FetchSharesOutstanding returns total issued shares for a symbol, or
	// ErrSharesUnavailable when the provider has no figure.
	FetchSharesOutstanding(qualifiedSymbol string) (float64, error)
}

// MarketDataService fetches price history and company statistics from the
// finance API. Symbols must already be venue-qualified (e.g. "BHP.AX").
type MarketDataService struct {
	baseURL    string
	httpClient *http.Client
}

// chartResponse represents the chart API response
type chartResponse struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []float64 `json:"open"`
					High   []float64 `json:"high"`
					Low    []float64 `json:"low"`
					Close  []float64 `json:"close"`
					Volume []int64   `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *apiError `json:"error"`
	} `json:"chart"`
}

// quoteSummaryResponse represents the quote summary API response
type quoteSummaryResponse struct {
	QuoteSummary struct {
		Result []struct {
			DefaultKeyStatistics struct {
				SharesOutstanding struct {
					Raw float64 `json:"raw"`
					Fmt string  `json:"fmt"`
				} `json:"sharesOutstanding"`
			} `json:"defaultKeyStatistics"`
		} `json:"result"`
		Error *apiError `json:"error"`
	} `json:"quoteSummary"`
}

type apiError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// NewMarketDataService creates a market data client
func NewMarketDataService(cfg *config.Config) *MarketDataService {
	return &MarketDataService{
		baseURL: cfg.MarketDataURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (m *MarketDataService) get(endpoint string, out interface{}) error {
	req, err := http.NewRequest(http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	// The finance API rejects requests without a browser-like agent
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64)")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("market data API returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// FetchDailyBars returns the current session's daily bars for a symbol
func (m *MarketDataService) FetchDailyBars(qualifiedSymbol string) ([]models.DailyBar, error) {
	endpoint := fmt.Sprintf("%s/v8/finance/chart/%s?range=1d&interval=1d",
		m.baseURL, url.PathEscape(qualifiedSymbol))
	return m.fetchBars(qualifiedSymbol, endpoint)
}

// FetchHistory returns daily bars between start and end inclusive, oldest
// first. Used by the chart data endpoint, not by the pipeline.
func (m *MarketDataService) FetchHistory(qualifiedSymbol string, start, end time.Time) ([]models.DailyBar, error) {
	endpoint := fmt.Sprintf("%s/v8/finance/chart/%s?interval=1d&period1=%d&period2=%d",
		m.baseURL, url.PathEscape(qualifiedSymbol), start.Unix(), end.Unix())
	return m.fetchBars(qualifiedSymbol, endpoint)
}

func (m *MarketDataService) fetchBars(symbol, endpoint string) ([]models.DailyBar, error) {
	var chart chartResponse
	if err := m.get(endpoint, &chart); err != nil {
		return nil, fmt.Errorf("failed to fetch bars for %s: %w", symbol, err)
	}
	if chart.Chart.Error != nil {
		return nil, fmt.Errorf("market data error for %s: %s", symbol, chart.Chart.Error.Description)
	}
	if len(chart.Chart.Result) == 0 {
		return nil, nil
	}

	result := chart.Chart.Result[0]
	if len(result.Indicators.Quote) == 0 {
		return nil, nil
	}
	quote := result.Indicators.Quote[0]

	bars := make([]models.DailyBar, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		if i >= len(quote.Close) || i >= len(quote.Volume) {
			break
		}
		bars = append(bars, models.DailyBar{
			Date:   time.Unix(ts, 0).UTC(),
			Open:   decimal.NewFromFloat(quote.Open[i]),
			High:   decimal.NewFromFloat(quote.High[i]),
			Low:    decimal.NewFromFloat(quote.Low[i]),
			Close:  decimal.NewFromFloat(quote.Close[i]),
			Volume: quote.Volume[i],
		})
	}
	return bars, nil
}

// FetchSharesOutstanding returns the total issued shares for a symbol
func (m *MarketDataService) FetchSharesOutstanding(qualifiedSymbol string) (float64, error) {
	endpoint := fmt.Sprintf("%s/v10/finance/quoteSummary/%s?modules=defaultKeyStatistics",
		m.baseURL, url.PathEscape(qualifiedSymbol))

	var summary quoteSummaryResponse
	if err := m.get(endpoint, &summary); err != nil {
		return 0, fmt.Errorf("failed to fetch statistics for %s: %w", qualifiedSymbol, err)
	}
	if summary.QuoteSummary.Error != nil || len(summary.QuoteSummary.Result) == 0 {
		return 0, ErrSharesUnavailable
	}

	shares := summary.QuoteSummary.Result[0].DefaultKeyStatistics.SharesOutstanding.Raw
	if shares <= 0 {
		return 0, ErrSharesUnavailable
	}
	return shares, nil
}
