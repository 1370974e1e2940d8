package trips

import (
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"github.com/gilby125/tripfinder/graph"
	"github.com/jszwec/csvutil"
)

type csvRow struct {
	Destination    string   `csv:"destination"`
	OutboundOrigin string   `csv:"outbound_origin"`
	Arrival        string   `csv:"arrival"`
	Departure      string   `csv:"departure"`
	ReturnOrigin   string   `csv:"return_origin"`
	OutboundDate   string   `csv:"outbound_date"`
	ReturnDate     string   `csv:"return_date"`
	StayLength     int      `csv:"stay_length"`
	DepartsAt      string   `csv:"departs_at"`
	ArrivesAt      string   `csv:"arrives_at"`
	ReturnDeparts  string   `csv:"return_departs_at"`
	ReturnArrives  string   `csv:"return_arrives_at"`
	OutboundFlight string   `csv:"outbound_flight"`
	ReturnFlight   string   `csv:"return_flight"`
	OutboundFare   float64  `csv:"outbound_fare"`
	ReturnFare     float64  `csv:"return_fare"`
	FullFare       float64  `csv:"full_fare"`
	Currency       string   `csv:"currency"`
	MixedCurrency  bool     `csv:"mixed_currency"`
	Transfer       bool     `csv:"transfer"`
	DistanceKm     *float64 `csv:"distance_km,omitempty"`
}

// WriteCSV writes itineraries as CSV with a header row, in slice order.
func WriteCSV(w io.Writer, items []Itinerary) error {
	cw := csv.NewWriter(w)
	enc := csvutil.NewEncoder(cw)
	if len(items) == 0 {
		if err := enc.EncodeHeader(csvRow{}); err != nil {
			return fmt.Errorf("encode csv header: %w", err)
		}
	}
	for _, it := range items {
		if err := enc.Encode(toCSVRow(it)); err != nil {
			return fmt.Errorf("encode csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func toCSVRow(it Itinerary) csvRow {
	return csvRow{
		Destination:    it.Destination,
		OutboundOrigin: it.OutboundOrigin.Code,
		Arrival:        it.Arrival.Code,
		Departure:      it.Departure.Code,
		ReturnOrigin:   it.ReturnOrigin.Code,
		OutboundDate:   it.OutboundDate.Format(graph.DateLayout),
		ReturnDate:     it.ReturnDate.Format(graph.DateLayout),
		StayLength:     it.StayLength,
		DepartsAt:      clock(it.OutboundOrigin.Time),
		ArrivesAt:      clock(it.Arrival.Time),
		ReturnDeparts:  clock(it.Departure.Time),
		ReturnArrives:  clock(it.ReturnOrigin.Time),
		OutboundFlight: it.OutboundFlight,
		ReturnFlight:   it.ReturnFlight,
		OutboundFare:   it.OutboundFare,
		ReturnFare:     it.ReturnFare,
		FullFare:       it.FullFare,
		Currency:       it.Currency,
		MixedCurrency:  it.MixedCurrency,
		Transfer:       it.Transfer,
		DistanceKm:     it.DistanceKm,
	}
}

func clock(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02 15:04")
}
