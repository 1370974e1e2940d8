package api_test

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gilby125/tripfinder/api"
	"github.com/gilby125/tripfinder/config"
	"github.com/gilby125/tripfinder/trips"
	"github.com/gin-gonic/gin"
	"github.com/go-test/deep"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/currency"
)

func formContext(t *testing.T, form url.Values) *gin.Context {
	t.Helper()
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(form.Encode()))
	c.Request.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c
}

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse("2006-01-02", s)
	require.NoError(t, err)
	return d
}

func searchDefaults() config.SearchConfig {
	return config.SearchConfig{DefaultAdults: 1}
}

func TestParseSearchForm(t *testing.T) {
	form := url.Values{
		"origin_departure_airports[]": {"SNN", "dub"},
		"origin_arrival_airports[]":   {"SNN"},
		"r1_dates":                    {"2026-03-25, 2026-03-26"},
		"r2_dates":                    {"2026-03-29"},
		"lengths_of_stay":             {"3,4"},
		"adults":                      {"2"},
		"blacklist_countries[]":       {"Ireland", "REGION:BALTICS"},
		"same_airport_return":         {"on"},
		"max_distance":                {"150"},
	}

	body, err := api.ParseSearchForm(formContext(t, form))
	require.NoError(t, err)
	req, err := api.BuildSearchRequest(body, searchDefaults())
	require.NoError(t, err)

	km := 150.0
	want := trips.SearchRequest{
		OutboundOrigins:    []string{"SNN", "DUB"},
		ReturnOrigins:      []string{"SNN"},
		OutboundDates:      []time.Time{mustDate(t, "2026-03-25"), mustDate(t, "2026-03-26")},
		ReturnDates:        []time.Time{mustDate(t, "2026-03-29")},
		StayLengths:        []int{3, 4},
		BlacklistCountries: []string{"Ireland", "Estonia", "Latvia", "Lithuania"},
		SameAirportReturn:  true,
		MaxDistanceKm:      &km,
		Adults:             2,
	}
	if diff := deep.Equal(want, req); diff != nil {
		t.Error(diff)
	}
}

func TestParseSearchForm_OmittedOptionalFields(t *testing.T) {
	form := url.Values{
		"origin_departure_airports[]": {"SNN"},
		"origin_arrival_airports[]":   {"SNN"},
		"r1_dates":                    {""},
		"r2_dates":                    {""},
		"lengths_of_stay":             {""},
		"max_distance":                {""},
	}
	body, err := api.ParseSearchForm(formContext(t, form))
	require.NoError(t, err)

	req, err := api.BuildSearchRequest(body, config.SearchConfig{DefaultAdults: 1, DefaultBlacklist: []string{"Ireland"}})
	require.NoError(t, err)
	assert.False(t, req.SameAirportReturn)
	assert.Nil(t, req.MaxDistanceKm, "empty max distance disables detours")
	assert.Empty(t, req.OutboundDates)
	assert.Empty(t, req.StayLengths)
	assert.Equal(t, 1, req.Adults)
	assert.Equal(t, []string{"Ireland"}, req.BlacklistCountries)
}

func TestParseSearchForm_BadNumbers(t *testing.T) {
	for _, field := range []string{"lengths_of_stay", "adults", "max_distance"} {
		t.Run(field, func(t *testing.T) {
			_, err := api.ParseSearchForm(formContext(t, url.Values{field: {"many"}}))
			assert.ErrorIs(t, err, trips.ErrInvalidRequest)
		})
	}
}

func TestBuildSearchRequest_Invalid(t *testing.T) {
	valid := func() api.TripSearchBody {
		return api.TripSearchBody{
			OutboundOrigins: []string{"SNN"},
			ReturnOrigins:   []string{"SNN"},
			OutboundDates:   []string{"2026-03-25"},
			ReturnDates:     []string{"2026-03-29"},
			StayLengths:     []int{4},
			Adults:          1,
		}
	}
	tests := []struct {
		name   string
		mutate func(*api.TripSearchBody)
	}{
		{"bad airport", func(b *api.TripSearchBody) { b.OutboundOrigins = []string{"SHANNON"} }},
		{"no return airports", func(b *api.TripSearchBody) { b.ReturnOrigins = nil }},
		{"bad date", func(b *api.TripSearchBody) { b.ReturnDates = []string{"29/03/2026"} }},
		{"negative stay", func(b *api.TripSearchBody) { b.StayLengths = []int{-1} }},
		{"unknown region", func(b *api.TripSearchBody) { b.WhitelistCountries = []string{"REGION:ATLANTIS"} }},
		{"bad currency", func(b *api.TripSearchBody) { b.Currency = "EURO" }},
		{"negative adults", func(b *api.TripSearchBody) { b.Adults = -2 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := valid()
			tt.mutate(&body)
			_, err := api.BuildSearchRequest(body, searchDefaults())
			assert.ErrorIs(t, err, trips.ErrInvalidRequest)
		})
	}

	req, err := api.BuildSearchRequest(valid(), searchDefaults())
	require.NoError(t, err)
	assert.Nil(t, req.BlacklistCountries)
}

func TestBuildSearchRequest_Currency(t *testing.T) {
	body := api.TripSearchBody{
		OutboundOrigins: []string{"snn"},
		ReturnOrigins:   []string{"SNN, DUB"},
		Currency:        "gbp",
	}
	req, err := api.BuildSearchRequest(body, searchDefaults())
	require.NoError(t, err)
	assert.Equal(t, currency.GBP, req.Currency)
	assert.Equal(t, []string{"SNN", "DUB"}, req.ReturnOrigins)
}
