package services

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"turnover_backend/config"
	"turnover_backend/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newScannerForURL(url string) *ScannerService {
	return NewScannerService(&config.Config{ScannerBaseURL: url})
}

func TestDiscoverTickers(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/scanner", r.URL.Path)
		assert.Equal(t, "ASX", r.URL.Query().Get("venue"))
		assert.Equal(t, "5", r.URL.Query().Get("scan_id"))
		w.Write([]byte(`{"venue":"ASX","scan_id":5,"symbols":["ABC","XYZ","ABC","","DEF"]}`))
	}))
	defer server.Close()

	symbols, err := newScannerForURL(server.URL).DiscoverTickers(models.VenueASX, 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"ABC", "XYZ", "DEF"}, symbols, "duplicates and blanks dropped, rank order kept")
}

func TestDiscoverTickersEmptyResultIsNotAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"venue":"US","scan_id":5,"symbols":[]}`))
	}))
	defer server.Close()

	symbols, err := newScannerForURL(server.URL).DiscoverTickers(models.VenueUS, 5)
	require.NoError(t, err)
	assert.Empty(t, symbols)
}

func TestDiscoverTickersGatewayFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := newScannerForURL(server.URL).DiscoverTickers(models.VenueASX, 5)

	var discErr *DiscoveryError
	require.ErrorAs(t, err, &discErr)
	assert.Equal(t, "ASX", discErr.Venue)
}

func TestDiscoverTickersUnreachableGateway(t *testing.T) {
	_, err := newScannerForURL("http://127.0.0.1:1").DiscoverTickers(models.VenueASX, 5)

	var discErr *DiscoveryError
	assert.ErrorAs(t, err, &discErr)
}
