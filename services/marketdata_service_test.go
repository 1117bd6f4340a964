package services

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"turnover_backend/config"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const chartBody = `{
	"chart": {
		"result": [{
			"timestamp": [1787788800, 1787875200],
			"indicators": {
				"quote": [{
					"open": [1.00, 1.05],
					"high": [1.10, 1.20],
					"low": [0.95, 1.00],
					"close": [1.05, 1.15],
					"volume": [100000, 250000]
				}]
			}
		}],
		"error": null
	}
}`

func newMarketForURL(url string) *MarketDataService {
	return NewMarketDataService(&config.Config{MarketDataURL: url})
}

func TestFetchDailyBars(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v8/finance/chart/BHP.AX", r.URL.Path)
		assert.Equal(t, "1d", r.URL.Query().Get("range"))
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		w.Write([]byte(chartBody))
	}))
	defer server.Close()

	bars, err := newMarketForURL(server.URL).FetchDailyBars("BHP.AX")
	require.NoError(t, err)
	require.Len(t, bars, 2)

	assert.Equal(t, int64(100000), bars[0].Volume)
	assert.True(t, bars[1].Close.Equal(decimal.NewFromFloat(1.15)))
}

func TestFetchHistoryPassesRange(t *testing.T) {
	start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1785542400", r.URL.Query().Get("period1"))
		assert.Equal(t, "1787875200", r.URL.Query().Get("period2"))
		w.Write([]byte(chartBody))
	}))
	defer server.Close()

	bars, err := newMarketForURL(server.URL).FetchHistory("BHP.AX", start, end)
	require.NoError(t, err)
	assert.Len(t, bars, 2)
}

func TestFetchDailyBarsEmptyResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"chart":{"result":[],"error":null}}`))
	}))
	defer server.Close()

	bars, err := newMarketForURL(server.URL).FetchDailyBars("GONE.AX")
	require.NoError(t, err, "an empty result set is a data gap, not a failure")
	assert.Empty(t, bars)
}

func TestFetchDailyBarsAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found"}}}`))
	}))
	defer server.Close()

	_, err := newMarketForURL(server.URL).FetchDailyBars("NOPE.AX")
	assert.Error(t, err)
}

func TestFetchSharesOutstanding(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v10/finance/quoteSummary/BHP.AX", r.URL.Path)
		assert.Equal(t, "defaultKeyStatistics", r.URL.Query().Get("modules"))
		w.Write([]byte(`{
			"quoteSummary": {
				"result": [{
					"defaultKeyStatistics": {
						"sharesOutstanding": {"raw": 5000000000, "fmt": "5B"}
					}
				}],
				"error": null
			}
		}`))
	}))
	defer server.Close()

	shares, err := newMarketForURL(server.URL).FetchSharesOutstanding("BHP.AX")
	require.NoError(t, err)
	assert.Equal(t, 5_000_000_000.0, shares)
}

func TestFetchSharesOutstandingMissingFigure(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{
			name: "empty result",
			body: `{"quoteSummary":{"result":[],"error":null}}`,
		},
		{
			name: "api error",
			body: `{"quoteSummary":{"result":null,"error":{"code":"Not Found","description":"Quote not found"}}}`,
		},
		{
			name: "zero shares",
			body: `{"quoteSummary":{"result":[{"defaultKeyStatistics":{"sharesOutstanding":{"raw":0}}}],"error":null}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := newMarketForURL(server.URL).FetchSharesOutstanding("X.AX")
			assert.ErrorIs(t, err, ErrSharesUnavailable)
		})
	}
}
