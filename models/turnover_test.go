package models

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVenue(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Venue
		wantErr bool
	}{
		{name: "asx uppercase", input: "ASX", want: VenueASX},
		{name: "asx lowercase", input: "asx", want: VenueASX},
		{name: "us with whitespace", input: " us ", want: VenueUS},
		{name: "unknown venue", input: "LSE", wantErr: true},
		{name: "empty string", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseVenue(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestVenueLocation(t *testing.T) {
	loc, err := VenueASX.Location()
	require.NoError(t, err)
	assert.Equal(t, "Australia/Sydney", loc.String())

	loc, err = VenueUS.Location()
	require.NoError(t, err)
	assert.Equal(t, "America/New_York", loc.String())

	_, err = Venue("LSE").Location()
	assert.Error(t, err)
}

func TestQualifySymbol(t *testing.T) {
	assert.Equal(t, "BHP.AX", VenueASX.QualifySymbol("BHP"))
	assert.Equal(t, "AAPL", VenueUS.QualifySymbol("AAPL"))
}

func TestDefaultCutoff(t *testing.T) {
	hour, minute := VenueASX.DefaultCutoff()
	assert.Equal(t, 16, hour)
	assert.Equal(t, 35, minute)

	hour, minute = VenueUS.DefaultCutoff()
	assert.Equal(t, 9, hour)
	assert.Equal(t, 35, minute)
}

func TestTypicalPrice(t *testing.T) {
	bar := DailyBar{
		High:  decimal.NewFromInt(12),
		Low:   decimal.NewFromInt(9),
		Close: decimal.NewFromInt(9),
	}
	assert.True(t, bar.TypicalPrice().Equal(decimal.NewFromInt(10)),
		"typical price should be (high+low+close)/3, got %s", bar.TypicalPrice())
}
