// Package trips turns route graph candidates into priced round-trip
// itineraries: it resolves fares for both legs of every candidate
// concurrently, combines them, and ranks the result by total fare.
package trips

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gilby125/tripfinder/fares"
	"github.com/gilby125/tripfinder/graph"
	"golang.org/x/text/currency"
)

// ErrInvalidRequest is wrapped by every validation failure of a search.
var ErrInvalidRequest = errors.New("invalid search request")

// InvalidRequestf builds a validation error that matches ErrInvalidRequest.
func InvalidRequestf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}

// FareResolver prices the flights of one directional leg on one day.
type FareResolver interface {
	ResolveFares(ctx context.Context, req fares.Request) ([]fares.PricedLeg, error)
}

// Stop is one of the four airport roles of an itinerary. Latitude and
// Longitude are nil when the airport is not in the directory.
type Stop struct {
	Code      string     `json:"code"`
	Time      *time.Time `json:"time,omitempty"`
	Latitude  *float64   `json:"latitude"`
	Longitude *float64   `json:"longitude"`
}

// Itinerary is a priced round trip: one outbound flight and one return
// flight belonging to the same candidate.
type Itinerary struct {
	Destination    string    `json:"destination"`
	OutboundOrigin Stop      `json:"outbound_origin"`
	Arrival        Stop      `json:"arrival"`
	Departure      Stop      `json:"departure"`
	ReturnOrigin   Stop      `json:"return_origin"`
	OutboundDate   time.Time `json:"outbound_date"`
	ReturnDate     time.Time `json:"return_date"`
	StayLength     int       `json:"stay_length"`
	OutboundFlight string    `json:"outbound_flight,omitempty"`
	ReturnFlight   string    `json:"return_flight,omitempty"`
	OutboundFare   float64   `json:"outbound_fare"`
	ReturnFare     float64   `json:"return_fare"`
	FullFare       float64   `json:"full_fare"`
	Currency       string    `json:"currency"`
	// MixedCurrency marks a pair whose return fare is quoted in another
	// currency than Currency; FullFare is then an unconverted sum.
	MixedCurrency  bool      `json:"mixed_currency,omitempty"`
	Transfer       bool      `json:"transfer"`
	DistanceKm     *float64  `json:"distance_km,omitempty"`
}

// Stats describes the work done by one search.
type Stats struct {
	Candidates       int           `json:"candidates"`
	FailedCandidates int           `json:"failed_candidates"`
	SkippedPairs     int           `json:"skipped_pairs"`
	Itineraries      int           `json:"itineraries"`
	Duration         time.Duration `json:"duration"`
}

// SearchRequest is a parsed, typed search. Country lists are already
// expanded from region macros.
type SearchRequest struct {
	OutboundOrigins    []string
	ReturnOrigins      []string
	OutboundDates      []time.Time
	ReturnDates        []time.Time
	StayLengths        []int
	BlacklistCountries []string
	WhitelistCountries []string
	SameAirportReturn  bool
	MaxDistanceKm      *float64
	Adults             int
	Currency           currency.Unit
}

// Validate rejects requests that could never be sent to the route graph.
func (r SearchRequest) Validate() error {
	if len(r.OutboundOrigins) == 0 {
		return InvalidRequestf("at least one outbound airport is required")
	}
	if len(r.ReturnOrigins) == 0 {
		return InvalidRequestf("at least one return airport is required")
	}
	if r.Adults < 1 {
		return InvalidRequestf("adults must be at least 1, got %d", r.Adults)
	}
	for _, n := range r.StayLengths {
		if n < 0 {
			return InvalidRequestf("stay length must not be negative, got %d", n)
		}
	}
	if r.MaxDistanceKm != nil && *r.MaxDistanceKm < 0 {
		return InvalidRequestf("max distance must not be negative, got %v", *r.MaxDistanceKm)
	}
	return nil
}

// Query converts the request into a candidate-path query.
func (r SearchRequest) Query() graph.CandidateQuery {
	return graph.CandidateQuery{
		OutboundOrigins:    r.OutboundOrigins,
		ReturnOrigins:      r.ReturnOrigins,
		OutboundDates:      r.OutboundDates,
		ReturnDates:        r.ReturnDates,
		StayLengths:        r.StayLengths,
		BlacklistCountries: r.BlacklistCountries,
		WhitelistCountries: r.WhitelistCountries,
		SameAirportReturn:  r.SameAirportReturn,
		MaxDistanceKm:      r.MaxDistanceKm,
	}
}
