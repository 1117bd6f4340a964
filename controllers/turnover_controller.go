package controllers

import (
	"net/http"
	"strconv"
	"time"

	"turnover_backend/models"
	"turnover_backend/services"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// TurnoverController serves the tracking data the reporting layer renders:
// the turnover table, per-ticker series, SOI audit rows and chart data. It
// reads the same environment-selected store the pipeline writes.
type TurnoverController struct {
	store  *services.TurnoverStore
	market *services.MarketDataService
}

// NewTurnoverController creates a new turnover controller
func NewTurnoverController(store *services.TurnoverStore, market *services.MarketDataService) *TurnoverController {
	return &TurnoverController{
		store:  store,
		market: market,
	}
}

// parseVenueQuery reads an optional venue filter from the query string
func parseVenueQuery(c *gin.Context) (models.Venue, bool) {
	raw := c.Query("venue")
	if raw == "" {
		return "", true
	}
	venue, err := models.ParseVenue(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return "", false
	}
	return venue, true
}

// GetTurnover returns tracked turnover records
// GET /api/v1/turnover?venue=ASX&ticker=BHP
func (tc *TurnoverController) GetTurnover(c *gin.Context) {
	venue, ok := parseVenueQuery(c)
	if !ok {
		return
	}

	records, err := tc.store.ListTurnover(venue, c.Query("ticker"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch turnover records"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"records": records,
		"total":   len(records),
	})
}

// GetTurnoverSeries returns the stored time series for one ticker
// GET /api/v1/turnover/:ticker/series?venue=ASX
func (tc *TurnoverController) GetTurnoverSeries(c *gin.Context) {
	ticker := c.Param("ticker")
	venue, err := models.ParseVenue(c.DefaultQuery("venue", string(models.VenueASX)))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	records, err := tc.store.TurnoverSeries(ticker, venue)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch turnover series"})
		return
	}
	if len(records) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "No records for ticker"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ticker": ticker,
		"venue":  venue,
		"series": records,
	})
}

// AddTickerRequest is the manual add-ticker payload
type AddTickerRequest struct {
	Ticker string `json:"ticker" binding:"required"`
	Date   string `json:"date"`
	Venue  string `json:"venue"`
}

// AddTicker seeds a manually tracked ticker with a zero-value row
// POST /api/v1/turnover
func (tc *TurnoverController) AddTicker(c *gin.Context) {
	var req AddTickerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Ticker is required"})
		return
	}

	venue := models.VenueASX
	if req.Venue != "" {
		parsed, err := models.ParseVenue(req.Venue)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		venue = parsed
	}

	date := req.Date
	if date == "" {
		date = time.Now().Format(models.DateFormat)
	} else if _, err := time.Parse(models.DateFormat, date); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Date must be YYYY-MM-DD"})
		return
	}

	rec, err := tc.store.AddTicker(req.Ticker, date, venue)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to add ticker"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"success": true, "record": rec})
}

// DeleteTurnover removes one tracked row by id
// DELETE /api/v1/turnover/:id
func (tc *TurnoverController) DeleteTurnover(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid id"})
		return
	}

	deleted, err := tc.store.DeleteTurnover(id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete record"})
		return
	}
	if !deleted {
		c.JSON(http.StatusNotFound, gin.H{"error": "Record not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// GetSOI returns shares-on-issue audit snapshots
// GET /api/v1/soi?venue=ASX
func (tc *TurnoverController) GetSOI(c *gin.Context) {
	venue, ok := parseVenueQuery(c)
	if !ok {
		return
	}

	snaps, err := tc.store.ListSOI(venue)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch SOI snapshots"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"snapshots": snaps,
		"total":     len(snaps),
	})
}

// ChartPoint is one element of the chart data series
type ChartPoint struct {
	Date               string          `json:"date"`
	Open               decimal.Decimal `json:"open"`
	High               decimal.Decimal `json:"high"`
	Low                decimal.Decimal `json:"low"`
	Close              decimal.Decimal `json:"close"`
	Volume             int64           `json:"volume"`
	VWAP               decimal.Decimal `json:"vwap"`
	CumulativeTurnover *float64        `json:"cumulative_turnover,omitempty"`
}

// GetChartData returns fetched OHLCV history with server-computed VWAP and
// cumulative turnover series for the reporting layer's charts
// GET /api/v1/charts/:ticker?venue=ASX&start=2024-01-01&end=2024-02-01
func (tc *TurnoverController) GetChartData(c *gin.Context) {
	ticker := c.Param("ticker")
	venue, err := models.ParseVenue(c.DefaultQuery("venue", string(models.VenueASX)))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	today := time.Now().Format(models.DateFormat)
	start, err := time.Parse(models.DateFormat, c.DefaultQuery("start", today))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "start must be YYYY-MM-DD"})
		return
	}
	end, err := time.Parse(models.DateFormat, c.DefaultQuery("end", today))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "end must be YYYY-MM-DD"})
		return
	}
	// Make the end date inclusive
	end = end.AddDate(0, 0, 1)

	qualified := venue.QualifySymbol(ticker)
	bars, err := tc.market.FetchHistory(qualified, start, end)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to fetch price history"})
		return
	}
	if len(bars) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "No price history for range"})
		return
	}

	// Shares outstanding drives the cumulative turnover overlay; without it
	// the chart still renders price, VWAP and volume.
	shares, sharesErr := tc.market.FetchSharesOutstanding(qualified)
	hasShares := sharesErr == nil

	points := buildChartPoints(bars, shares, hasShares)

	resp := gin.H{
		"ticker": ticker,
		"venue":  venue,
		"points": points,
	}
	if hasShares {
		resp["shares_outstanding"] = shares
		resp["latest_cumulative_turnover"] = points[len(points)-1].CumulativeTurnover
	}
	c.JSON(http.StatusOK, resp)
}

// buildChartPoints computes cumulative VWAP and turnover across the bars
func buildChartPoints(bars []models.DailyBar, shares float64, hasShares bool) []ChartPoint {
	points := make([]ChartPoint, 0, len(bars))
	pvSum := decimal.Zero // cumulative typical price x volume
	volSum := decimal.Zero
	turnoverSum := 0.0

	for _, bar := range bars {
		vol := decimal.NewFromInt(bar.Volume)
		pvSum = pvSum.Add(bar.TypicalPrice().Mul(vol))
		volSum = volSum.Add(vol)

		vwap := decimal.Zero
		if !volSum.IsZero() {
			vwap = pvSum.Div(volSum).Round(4)
		}

		point := ChartPoint{
			Date:   bar.Date.Format(models.DateFormat),
			Open:   bar.Open,
			High:   bar.High,
			Low:    bar.Low,
			Close:  bar.Close,
			Volume: bar.Volume,
			VWAP:   vwap,
		}
		if hasShares && shares > 0 {
			turnoverSum += float64(bar.Volume) / shares * 100
			cumulative := turnoverSum
			point.CumulativeTurnover = &cumulative
		}
		points = append(points, point)
	}
	return points
}
