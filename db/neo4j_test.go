package db

import (
	"strings"
	"testing"
	"time"

	"github.com/gilby125/tripfinder/graph"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCandidateQueries_UseFilterStages(t *testing.T) {
	assert.Contains(t, directCandidatesQuery, graph.WhereClause(false))
	assert.Contains(t, detourCandidatesQuery, graph.WhereClause(true))
	assert.Contains(t, directCandidatesQuery, "a AS b")
	assert.Contains(t, directCandidatesQuery, "null AS distanceKm")
	assert.Contains(t, detourCandidatesQuery, "[g:DISTANCE_TO]")
	assert.NotContains(t, directCandidatesQuery, "DISTANCE_TO")

	for _, st := range graph.Stages {
		if st.DetourOnly {
			continue
		}
		assert.True(t, strings.Contains(directCandidatesQuery, st.Cypher), st.Name)
	}
}

func TestFlightRows_NullableFields(t *testing.T) {
	dep := time.Date(2026, 3, 25, 6, 30, 0, 0, time.UTC)
	fare := 29.99
	rows := flightRows([]graph.FlightEdge{
		{Origin: "SNN", Destination: "STN", Date: dep, DepartureTime: &dep, Fare: &fare, FlightNumber: "FR 1234"},
		{Origin: "STN", Destination: "SNN", Date: time.Date(2026, 3, 29, 0, 0, 0, 0, time.UTC)},
	})

	require.Len(t, rows, 2)
	assert.Equal(t, "2026-03-25", rows[0]["date"])
	assert.Equal(t, dep, rows[0]["departureTime"])
	assert.Equal(t, 29.99, rows[0]["fare"])
	assert.Nil(t, rows[0]["arrivalTime"])
	assert.Equal(t, "2026-03-29", rows[1]["date"])
	assert.Nil(t, rows[1]["fare"])
	assert.Nil(t, rows[1]["departureTime"])
}

func TestAirportRows_OmitBase(t *testing.T) {
	rows := airportRows([]graph.Airport{{Code: "SNN", Name: "Shannon", Country: "Ireland", Base: true}})
	require.Len(t, rows, 1)
	assert.Equal(t, "SNN", rows[0]["code"])
	assert.NotContains(t, rows[0], "base")
}

func TestDistanceRows(t *testing.T) {
	rows := distanceRows([]graph.DistanceEdge{{Origin: "BGY", Destination: "MXP", DistanceKm: 76.02}})
	require.Len(t, rows, 1)
	assert.Equal(t, 76.02, rows[0]["distance"])
}

func TestCandidateFromRecord(t *testing.T) {
	keys := []string{"outboundOrigin", "outboundDate", "arrival", "departure", "returnDate", "returnOrigin", "distanceKm"}
	out := neo4j.DateOf(time.Date(2026, 3, 25, 0, 0, 0, 0, time.UTC))
	ret := neo4j.DateOf(time.Date(2026, 3, 29, 0, 0, 0, 0, time.UTC))

	t.Run("direct", func(t *testing.T) {
		record := &neo4j.Record{Keys: keys, Values: []any{"SNN", out, "STN", "STN", ret, "SNN", nil}}
		c, err := candidateFromRecord(record)
		require.NoError(t, err)
		assert.Equal(t, "SNN", c.OutboundOrigin)
		assert.Equal(t, "STN", c.Arrival)
		assert.Equal(t, 4, c.StayLength())
		assert.False(t, c.IsDetour())
	})

	t.Run("detour", func(t *testing.T) {
		record := &neo4j.Record{Keys: keys, Values: []any{"SNN", out, "BGY", "MXP", ret, "SNN", 76.02}}
		c, err := candidateFromRecord(record)
		require.NoError(t, err)
		require.True(t, c.IsDetour())
		assert.Equal(t, 76.02, *c.DistanceKm)
		assert.Equal(t, "MXP", c.Departure)
	})

	t.Run("wrong type", func(t *testing.T) {
		record := &neo4j.Record{Keys: keys, Values: []any{"SNN", "2026-03-25", "STN", "STN", ret, "SNN", nil}}
		_, err := candidateFromRecord(record)
		assert.Error(t, err)
	})
}

func TestAirportFromRecord(t *testing.T) {
	record := &neo4j.Record{
		Keys:   []string{"code", "name", "city", "country", "latitude", "longitude", "timeZone", "base"},
		Values: []any{"SNN", "Shannon", "Shannon", "Ireland", 52.702, -8.9248, nil, true},
	}
	a, err := airportFromRecord(record)
	require.NoError(t, err)
	assert.Equal(t, graph.Airport{
		Code: "SNN", Name: "Shannon", City: "Shannon", Country: "Ireland",
		Latitude: 52.702, Longitude: -8.9248, Base: true,
	}, a)
}
