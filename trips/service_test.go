package trips

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gilby125/tripfinder/db"
	"github.com/gilby125/tripfinder/graph"
	"github.com/gilby125/tripfinder/pkg/cache"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/currency"
)

type recordingHistory struct {
	records []db.SearchRecord
	err     error
}

func (h *recordingHistory) RecordSearch(_ context.Context, rec db.SearchRecord) error {
	h.records = append(h.records, rec)
	return h.err
}

type failingGraph struct {
	*graph.MemoryStore
	err error
}

func (f failingGraph) FindCandidates(context.Context, graph.CandidateQuery) ([]graph.Candidate, error) {
	return nil, f.err
}

func shannonGraph(t *testing.T) *graph.MemoryStore {
	t.Helper()
	ctx := context.Background()
	s := graph.NewMemoryStore()
	require.NoError(t, s.UpsertAirports(ctx, []graph.Airport{
		{Code: "SNN", Name: "Shannon", Country: "Ireland", Latitude: 52.7020, Longitude: -8.9248},
		{Code: "STN", Name: "London Stansted", Country: "United Kingdom", Latitude: 51.8850, Longitude: 0.2350},
		{Code: "BGY", Name: "Milan Bergamo", Country: "Italy", Latitude: 45.6739, Longitude: 9.7042},
		{Code: "KRK", Name: "Krakow", Country: "Poland", Latitude: 50.0777, Longitude: 19.7848},
	}))
	var edges []graph.FlightEdge
	for _, code := range []string{"STN", "BGY", "KRK"} {
		edges = append(edges,
			graph.FlightEdge{Origin: "SNN", Destination: code, Date: day("2026-03-25")},
			graph.FlightEdge{Origin: code, Destination: "SNN", Date: day("2026-03-29")})
	}
	require.NoError(t, s.UpsertFlightEdges(ctx, edges))
	return s
}

func shannonRequest() SearchRequest {
	return SearchRequest{
		OutboundOrigins:    []string{"SNN"},
		ReturnOrigins:      []string{"SNN"},
		OutboundDates:      []time.Time{day("2026-03-25")},
		ReturnDates:        []time.Time{day("2026-03-29")},
		StayLengths:        []int{2, 3, 4, 5, 6},
		BlacklistCountries: []string{"Ireland", "Poland"},
		SameAirportReturn:  true,
		Adults:             1,
		Currency:           currency.EUR,
	}
}

func shannonFares() *fakeResolver {
	return newFakeResolver().
		on("SNN", "STN", "2026-03-25", leg("SNN", "STN", "Shannon", "London Stansted", "FR 1", amount(100))).
		on("STN", "SNN", "2026-03-29", leg("STN", "SNN", "London Stansted", "Shannon", "FR 2", amount(100))).
		on("SNN", "BGY", "2026-03-25", leg("SNN", "BGY", "Shannon", "Milan Bergamo", "FR 3", amount(40))).
		on("BGY", "SNN", "2026-03-29", leg("BGY", "SNN", "Milan Bergamo", "Shannon", "FR 4", amount(50))).
		on("SNN", "KRK", "2026-03-25", leg("SNN", "KRK", "Shannon", "Krakow", "FR 5", amount(1)))
}

func TestService_Search(t *testing.T) {
	history := &recordingHistory{}
	r := shannonFares()
	svc := NewService(shannonGraph(t), NewAssembler(r, nil, AssemblerOptions{}), ServiceOptions{History: history})

	res, err := svc.Search(context.Background(), shannonRequest())
	require.NoError(t, err)

	require.Len(t, res.Itineraries, 2)
	assert.Equal(t, "Milan Bergamo", res.Itineraries[0].Destination)
	assert.Equal(t, 90.0, res.Itineraries[0].FullFare)
	assert.Equal(t, 200.0, res.Itineraries[1].FullFare)
	require.NotNil(t, res.Itineraries[0].Arrival.Latitude, "coordinates come from the graph directory")
	assert.Equal(t, 45.6739, *res.Itineraries[0].Arrival.Latitude)
	assert.Equal(t, 2, res.Stats.Candidates)

	for _, req := range r.calls {
		assert.NotEqual(t, "KRK", req.Destination, "blacklisted countries never reach the fare source")
	}

	require.Len(t, history.records, 1)
	rec := history.records[0]
	assert.Equal(t, res.ID, rec.ID)
	assert.Equal(t, []string{"2026-03-25"}, rec.OutboundDates)
	assert.Equal(t, []int64{2, 3, 4, 5, 6}, rec.StayLengths)
	assert.Equal(t, "EUR", rec.Currency)
	require.NotNil(t, rec.CheapestFare)
	assert.Equal(t, 90.0, *rec.CheapestFare)
}

func TestService_SearchEmptyIsSuccess(t *testing.T) {
	svc := NewService(shannonGraph(t), NewAssembler(newFakeResolver(), nil, AssemblerOptions{}), ServiceOptions{})

	req := shannonRequest()
	req.ReturnDates = []time.Time{day("2026-04-10")}
	res, err := svc.Search(context.Background(), req)
	require.NoError(t, err)
	assert.NotNil(t, res.Itineraries)
	assert.Empty(t, res.Itineraries)
}

func TestService_SearchInvalidRequest(t *testing.T) {
	svc := NewService(shannonGraph(t), NewAssembler(newFakeResolver(), nil, AssemblerOptions{}), ServiceOptions{})

	tests := []struct {
		name   string
		mutate func(*SearchRequest)
	}{
		{"no outbound airports", func(r *SearchRequest) { r.OutboundOrigins = nil }},
		{"no return airports", func(r *SearchRequest) { r.ReturnOrigins = nil }},
		{"zero adults", func(r *SearchRequest) { r.Adults = 0 }},
		{"negative stay", func(r *SearchRequest) { r.StayLengths = []int{-1} }},
		{"negative distance", func(r *SearchRequest) { d := -5.0; r.MaxDistanceKm = &d }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := shannonRequest()
			tt.mutate(&req)
			_, err := svc.Search(context.Background(), req)
			assert.ErrorIs(t, err, ErrInvalidRequest)
		})
	}
}

func TestService_GraphFailureIsFatal(t *testing.T) {
	storeErr := errors.New("connection refused")
	g := failingGraph{MemoryStore: shannonGraph(t), err: storeErr}
	svc := NewService(g, NewAssembler(newFakeResolver(), nil, AssemblerOptions{}), ServiceOptions{})

	_, err := svc.Search(context.Background(), shannonRequest())
	assert.ErrorIs(t, err, ErrGraphQuery)
	assert.ErrorIs(t, err, storeErr)
}

func TestService_HistoryFailureDoesNotFailSearch(t *testing.T) {
	history := &recordingHistory{err: errors.New("postgres down")}
	svc := NewService(shannonGraph(t), NewAssembler(shannonFares(), nil, AssemblerOptions{}), ServiceOptions{History: history})

	res, err := svc.Search(context.Background(), shannonRequest())
	require.NoError(t, err)
	assert.Len(t, res.Itineraries, 2)
}

func TestService_DirectoryQueriesAreCached(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	g := shannonGraph(t)
	cm := cache.NewCacheManager(cache.NewRedisCache(client, "test"))
	svc := NewService(g, NewAssembler(newFakeResolver(), nil, AssemblerOptions{}), ServiceOptions{Cache: cm})
	ctx := context.Background()

	countries, err := svc.Countries(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Ireland", "Italy", "Poland", "United Kingdom"}, countries)

	require.NoError(t, g.UpsertAirports(ctx, []graph.Airport{{Code: "BVA", Name: "Paris Beauvais", Country: "France"}}))
	countries, err = svc.Countries(ctx)
	require.NoError(t, err)
	assert.NotContains(t, countries, "France", "served from cache")

	require.NoError(t, cm.Delete(ctx, cache.DirectoryKeys()...))
	countries, err = svc.Countries(ctx)
	require.NoError(t, err)
	assert.Contains(t, countries, "France")

	require.NoError(t, g.SetBaseAirports(ctx, []string{"SNN"}))
	bases, err := svc.BaseAirports(ctx)
	require.NoError(t, err)
	require.Len(t, bases, 1)
	assert.Equal(t, "SNN", bases[0].Code)
}

func TestAirportIndex_Search(t *testing.T) {
	idx := NewAirportIndex([]graph.Airport{
		{Code: "AGP", Name: "Málaga", City: "Málaga", Country: "Spain"},
		{Code: "KRK", Name: "Kraków", City: "Kraków", Country: "Poland"},
		{Code: "SNN", Name: "Shannon", City: "Shannon", Country: "Ireland"},
	})

	got := idx.Search("malaga")
	require.Len(t, got, 1)
	assert.Equal(t, "AGP", got[0].Code)

	got = idx.Search("KRAKOW")
	require.Len(t, got, 1)
	assert.Equal(t, "KRK", got[0].Code)

	got = idx.Search("snn")
	require.Len(t, got, 1)

	assert.Len(t, idx.Search(""), 3)
	assert.Empty(t, idx.Search("zzz"))

	a, ok := idx.Lookup("agp")
	assert.True(t, ok)
	assert.Equal(t, "Spain", a.Country)
	_, ok = idx.Lookup("XXX")
	assert.False(t, ok)
}

func TestWriteCSV(t *testing.T) {
	dep := time.Date(2026, 3, 25, 6, 30, 0, 0, time.UTC)
	items := []Itinerary{{
		Destination:    "Milan Bergamo",
		OutboundOrigin: Stop{Code: "SNN", Time: &dep},
		Arrival:        Stop{Code: "BGY"},
		Departure:      Stop{Code: "BGY"},
		ReturnOrigin:   Stop{Code: "SNN"},
		OutboundDate:   day("2026-03-25"),
		ReturnDate:     day("2026-03-29"),
		StayLength:     4,
		OutboundFare:   40,
		ReturnFare:     50,
		FullFare:       90,
		Currency:       "EUR",
	}}

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, items))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "destination,outbound_origin,arrival,departure,return_origin,outbound_date"))
	assert.Contains(t, lines[1], "Milan Bergamo,SNN,BGY,BGY,SNN,2026-03-25,2026-03-29,4,2026-03-25 06:30")
	assert.Contains(t, lines[1], ",90,EUR,false,false,")
	assert.Contains(t, lines[0], ",currency,mixed_currency,transfer,")

	buf.Reset()
	require.NoError(t, WriteCSV(&buf, nil))
	assert.True(t, strings.HasPrefix(buf.String(), "destination,"))
}
