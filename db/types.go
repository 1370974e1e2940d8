package db

import (
	"time"

	"github.com/google/uuid"
)

// RowScanner defines the interface for scanning a single row result.
// It is implemented by *sql.Row and *sql.Rows.
type RowScanner interface {
	Scan(dest ...interface{}) error
}

// SearchRecord is one row of the search history table.
type SearchRecord struct {
	ID                 uuid.UUID `json:"id"`
	CreatedAt          time.Time `json:"created_at"`
	OutboundOrigins    []string  `json:"outbound_origins"`
	ReturnOrigins      []string  `json:"return_origins"`
	OutboundDates      []string  `json:"outbound_dates"`
	ReturnDates        []string  `json:"return_dates"`
	StayLengths        []int64   `json:"stay_lengths"`
	BlacklistCountries []string  `json:"blacklist_countries,omitempty"`
	WhitelistCountries []string  `json:"whitelist_countries,omitempty"`
	SameAirportReturn  bool      `json:"same_airport_return"`
	MaxDistanceKm      *float64  `json:"max_distance_km,omitempty"`
	Adults             int       `json:"adults"`
	Currency           string    `json:"currency"`
	Candidates         int       `json:"candidates"`
	Itineraries        int       `json:"itineraries"`
	FailedCandidates   int       `json:"failed_candidates"`
	CheapestFare       *float64  `json:"cheapest_fare,omitempty"`
	DurationMs         int64     `json:"duration_ms"`
}
