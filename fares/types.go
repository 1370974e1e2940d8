// Package fares is a client for the airline fare source: the active airport
// feed, per-airport routes, available flight dates, and per-day priced
// flights.
package fares

import (
	"errors"
	"time"

	"golang.org/x/text/currency"
)

// ErrUnexpectedStatus is wrapped by errors for non-200 upstream responses.
var ErrUnexpectedStatus = errors.New("unexpected status from fare source")

// ErrRateLimited is wrapped when the fare source still answers 429 after
// retries.
var ErrRateLimited = errors.New("fare source rate limited")

// Request identifies one directional lookup.
type Request struct {
	Adults      int
	Date        time.Time
	Origin      string
	Destination string
	Currency    currency.Unit
}

// PricedLeg is one scheduled flight resolved for a request. A nil Fare
// means no regular fare is on sale.
type PricedLeg struct {
	Origin          string     `json:"origin"`
	Destination     string     `json:"destination"`
	OriginName      string     `json:"origin_name"`
	DestinationName string     `json:"destination_name"`
	DepartureTime   *time.Time `json:"departure_time,omitempty"`
	ArrivalTime     *time.Time `json:"arrival_time,omitempty"`
	Fare            *float64   `json:"fare,omitempty"`
	Currency        string     `json:"currency"`
	FlightNumber    string     `json:"flight_number,omitempty"`
	Duration        string     `json:"duration,omitempty"`
}

type namedRef struct {
	Name string `json:"name"`
	Code string `json:"code"`
}

type airportPayload struct {
	Code        string   `json:"code"`
	Name        string   `json:"name"`
	City        namedRef `json:"city"`
	Country     namedRef `json:"country"`
	TimeZone    string   `json:"timeZone"`
	Coordinates struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	} `json:"coordinates"`
}

type routePayload struct {
	ArrivalAirport airportPayload `json:"arrivalAirport"`
}

type availabilityPayload struct {
	Currency string        `json:"currency"`
	Trips    []tripPayload `json:"trips"`
}

type tripPayload struct {
	Origin          string `json:"origin"`
	OriginName      string `json:"originName"`
	Destination     string `json:"destination"`
	DestinationName string `json:"destinationName"`
	Dates           []struct {
		DateOut string          `json:"dateOut"`
		Flights []flightPayload `json:"flights"`
	} `json:"dates"`
}

type farePayload struct {
	Type   string  `json:"type"`
	Amount float64 `json:"amount"`
	Count  int     `json:"count"`
}

type flightPayload struct {
	FlightNumber string   `json:"flightNumber"`
	Duration     string   `json:"duration"`
	Time         []string `json:"time"`
	RegularFare  *struct {
		Fares []farePayload `json:"fares"`
	} `json:"regularFare"`
	Segments []struct {
		FlightNumber string   `json:"flightNumber"`
		Duration     string   `json:"duration"`
		Time         []string `json:"time"`
	} `json:"segments"`
}
