package trips_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gilby125/tripfinder/fares"
	"github.com/gilby125/tripfinder/graph"
	"github.com/gilby125/tripfinder/test/mocks"
	"github.com/gilby125/tripfinder/trips"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/currency"
)

func mustDay(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse(graph.DateLayout, s)
	require.NoError(t, err)
	return d
}

func pricedLeg(origin, destination string, fare float64) []fares.PricedLeg {
	return []fares.PricedLeg{{Origin: origin, Destination: destination, Fare: &fare, Currency: "EUR"}}
}

func TestService_DirectoryFailureOmitsCoordinates(t *testing.T) {
	ctx := context.Background()
	out, back := mustDay(t, "2026-03-25"), mustDay(t, "2026-03-29")

	g := new(mocks.MockGraphStore)
	g.On("FindCandidates", mock.Anything, mock.AnythingOfType("graph.CandidateQuery")).Return([]graph.Candidate{{
		OutboundOrigin: "SNN", OutboundDate: out, Arrival: "STN", Departure: "STN", ReturnDate: back, ReturnOrigin: "SNN",
	}}, nil)
	g.On("ListAirports", mock.Anything).Return(nil, errors.New("neo4j unavailable"))

	r := new(mocks.MockFareResolver)
	r.On("ResolveFares", mock.Anything, mock.MatchedBy(func(req fares.Request) bool { return req.Origin == "SNN" })).
		Return(pricedLeg("SNN", "STN", 20), nil)
	r.On("ResolveFares", mock.Anything, mock.MatchedBy(func(req fares.Request) bool { return req.Origin == "STN" })).
		Return(pricedLeg("STN", "SNN", 25), nil)

	svc := trips.NewService(g, trips.NewAssembler(r, nil, trips.AssemblerOptions{}), trips.ServiceOptions{})
	res, err := svc.Search(ctx, trips.SearchRequest{
		OutboundOrigins: []string{"SNN"},
		ReturnOrigins:   []string{"SNN"},
		OutboundDates:   []time.Time{out},
		ReturnDates:     []time.Time{back},
		Adults:          1,
		Currency:        currency.EUR,
	})
	require.NoError(t, err)
	require.Len(t, res.Itineraries, 1)
	assert.Equal(t, 45.0, res.Itineraries[0].FullFare)
	assert.Nil(t, res.Itineraries[0].Arrival.Latitude)
	assert.Nil(t, res.Itineraries[0].OutboundOrigin.Longitude)

	g.AssertExpectations(t)
	r.AssertNumberOfCalls(t, "ResolveFares", 2)
}

func TestService_NoCandidatesSkipsFareSource(t *testing.T) {
	g := new(mocks.MockGraphStore)
	g.On("FindCandidates", mock.Anything, mock.Anything).Return([]graph.Candidate{}, nil)
	r := new(mocks.MockFareResolver)

	svc := trips.NewService(g, trips.NewAssembler(r, nil, trips.AssemblerOptions{}), trips.ServiceOptions{})
	res, err := svc.Search(context.Background(), trips.SearchRequest{
		OutboundOrigins: []string{"SNN"},
		ReturnOrigins:   []string{"SNN"},
		OutboundDates:   []time.Time{mustDay(t, "2026-03-25")},
		ReturnDates:     []time.Time{mustDay(t, "2026-03-29")},
		Adults:          1,
	})
	require.NoError(t, err)
	assert.Empty(t, res.Itineraries)
	r.AssertNotCalled(t, "ResolveFares", mock.Anything, mock.Anything)
	g.AssertNotCalled(t, "ListAirports", mock.Anything)
}
