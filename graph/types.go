// Package graph defines the route graph model: airports, dated FLYS_TO
// edges, precomputed DISTANCE_TO edges, and the candidate-path query that
// enumerates round-trip shapes over them.
package graph

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DateLayout is the calendar-day layout used for flight edge dates.
const DateLayout = "2006-01-02"

// Airport is a node in the route graph, keyed by its IATA code.
type Airport struct {
	Code      string  `json:"code"`
	Name      string  `json:"name"`
	City      string  `json:"city"`
	Country   string  `json:"country"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	TimeZone  string  `json:"time_zone,omitempty"`
	Base      bool    `json:"base"`
}

// FlightEdge is a dated FLYS_TO relationship. (Origin, Destination, Date)
// is its identity.
type FlightEdge struct {
	Origin        string     `json:"origin"`
	Destination   string     `json:"destination"`
	Date          time.Time  `json:"date"`
	DepartureTime *time.Time `json:"departure_time,omitempty"`
	ArrivalTime   *time.Time `json:"arrival_time,omitempty"`
	Fare          *float64   `json:"fare,omitempty"`
	FlightNumber  string     `json:"flight_number,omitempty"`
	Duration      string     `json:"duration,omitempty"`
}

// DistanceEdge is a directed DISTANCE_TO relationship carrying the
// great-circle distance between two airports.
type DistanceEdge struct {
	Origin      string  `json:"origin"`
	Destination string  `json:"destination"`
	DistanceKm  float64 `json:"distance_km"`
}

// Candidate is a structurally valid round-trip shape. Arrival and Departure
// are the same airport unless the traveller crosses a DISTANCE_TO edge
// between the two legs, in which case DistanceKm is set.
type Candidate struct {
	OutboundOrigin string    `json:"outbound_origin"`
	OutboundDate   time.Time `json:"outbound_date"`
	Arrival        string    `json:"arrival"`
	Departure      string    `json:"departure"`
	ReturnDate     time.Time `json:"return_date"`
	ReturnOrigin   string    `json:"return_origin"`
	DistanceKm     *float64  `json:"distance_km,omitempty"`
}

// IsDetour reports whether the candidate uses a ground transfer.
func (c Candidate) IsDetour() bool {
	return c.DistanceKm != nil
}

// StayLength returns the whole-day difference between return and outbound dates.
func (c Candidate) StayLength() int {
	return DaysBetween(c.OutboundDate, c.ReturnDate)
}

func (c Candidate) String() string {
	if c.IsDetour() {
		return fmt.Sprintf("%s %s -> %s ~%.0fkm~ %s -> %s %s",
			c.OutboundOrigin, c.OutboundDate.Format(DateLayout), c.Arrival, *c.DistanceKm,
			c.Departure, c.ReturnOrigin, c.ReturnDate.Format(DateLayout))
	}
	return fmt.Sprintf("%s %s -> %s -> %s %s",
		c.OutboundOrigin, c.OutboundDate.Format(DateLayout), c.Arrival,
		c.ReturnOrigin, c.ReturnDate.Format(DateLayout))
}

// Day truncates t to its calendar day in UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the number of calendar days from a to b.
func DaysBetween(a, b time.Time) int {
	return int(Day(b).Sub(Day(a)).Hours() / 24)
}

// ParseDate parses a YYYY-MM-DD calendar date.
func ParseDate(value string) (time.Time, error) {
	t, err := time.Parse(DateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD: %w", value, err)
	}
	return t, nil
}

// CandidateQuery holds the constraints for FindCandidates. Empty country
// lists mean no restriction; a nil MaxDistanceKm disables detours.
type CandidateQuery struct {
	OutboundOrigins    []string
	ReturnOrigins      []string
	OutboundDates      []time.Time
	ReturnDates        []time.Time
	StayLengths        []int
	BlacklistCountries []string
	WhitelistCountries []string
	SameAirportReturn  bool
	MaxDistanceKm      *float64
}

// ErrEmptyOrigins is returned when a query names no origin airports.
var ErrEmptyOrigins = errors.New("at least one outbound and one return airport is required")

// Validate checks the structural preconditions of a query.
func (q CandidateQuery) Validate() error {
	if len(q.OutboundOrigins) == 0 || len(q.ReturnOrigins) == 0 {
		return ErrEmptyOrigins
	}
	for _, n := range q.StayLengths {
		if n < 0 {
			return fmt.Errorf("stay length must not be negative: %d", n)
		}
	}
	if q.MaxDistanceKm != nil && *q.MaxDistanceKm < 0 {
		return fmt.Errorf("max distance must not be negative: %v", *q.MaxDistanceKm)
	}
	return nil
}

// Unsatisfiable reports whether the query can match nothing regardless of
// the graph contents.
func (q CandidateQuery) Unsatisfiable() bool {
	return len(q.OutboundDates) == 0 || len(q.ReturnDates) == 0 || len(q.StayLengths) == 0
}

// DetoursEnabled reports whether the detour shape should be evaluated.
func (q CandidateQuery) DetoursEnabled() bool {
	return q.MaxDistanceKm != nil && *q.MaxDistanceKm > 0
}

// CandidateFinder runs the candidate-path query.
type CandidateFinder interface {
	FindCandidates(ctx context.Context, q CandidateQuery) ([]Candidate, error)
}

// AirportLister reads airport nodes.
type AirportLister interface {
	ListAirports(ctx context.Context) ([]Airport, error)
	ListBaseAirports(ctx context.Context) ([]Airport, error)
}

// Store is the full route graph contract.
type Store interface {
	CandidateFinder
	AirportLister
	UpsertAirports(ctx context.Context, airports []Airport) error
	UpsertFlightEdges(ctx context.Context, edges []FlightEdge) error
	UpsertDistanceEdges(ctx context.Context, edges []DistanceEdge) error
	SetBaseAirports(ctx context.Context, codes []string) error
	Clear(ctx context.Context) error
}
