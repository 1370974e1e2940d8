package api

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gilby125/tripfinder/config"
	"github.com/gilby125/tripfinder/graph"
	"github.com/gilby125/tripfinder/pkg/macros"
	"github.com/gilby125/tripfinder/trips"
	"golang.org/x/text/currency"
)

var airportCodePattern = regexp.MustCompile(`^[A-Z]{3}$`)

// TripSearchBody is the JSON body of POST /api/v1/trips/search. Date and
// stay lists also accept comma-separated strings as elements.
type TripSearchBody struct {
	OutboundOrigins    []string `json:"outbound_origins"`
	ReturnOrigins      []string `json:"return_origins"`
	OutboundDates      []string `json:"outbound_dates"`
	ReturnDates        []string `json:"return_dates"`
	StayLengths        []int    `json:"stay_lengths"`
	BlacklistCountries []string `json:"blacklist_countries"`
	WhitelistCountries []string `json:"whitelist_countries"`
	SameAirportReturn  bool     `json:"same_airport_return"`
	MaxDistanceKm      *float64 `json:"max_distance_km"`
	Adults             int      `json:"adults"`
	Currency           string   `json:"currency"`
	Format             string   `json:"format"`
}

// FormValues is the subset of url.Values / gin form access the form parser
// needs.
type FormValues interface {
	PostFormArray(key string) []string
	PostForm(key string) string
	GetPostForm(key string) (string, bool)
}

// ParseSearchForm reads the HTML form field names used by the search page:
// origin_departure_airports[], origin_arrival_airports[], r1_dates,
// r2_dates, lengths_of_stay, adults, blacklist_countries[],
// whitelist_countries[], same_airport_return, max_distance.
func ParseSearchForm(f FormValues) (TripSearchBody, error) {
	body := TripSearchBody{
		OutboundOrigins:    f.PostFormArray("origin_departure_airports[]"),
		ReturnOrigins:      f.PostFormArray("origin_arrival_airports[]"),
		OutboundDates:      []string{f.PostForm("r1_dates")},
		ReturnDates:        []string{f.PostForm("r2_dates")},
		BlacklistCountries: f.PostFormArray("blacklist_countries[]"),
		WhitelistCountries: f.PostFormArray("whitelist_countries[]"),
		Currency:           f.PostForm("currency"),
		Format:             f.PostForm("format"),
	}
	_, body.SameAirportReturn = f.GetPostForm("same_airport_return")

	stays, err := parseIntList(f.PostForm("lengths_of_stay"))
	if err != nil {
		return body, err
	}
	body.StayLengths = stays

	if raw := strings.TrimSpace(f.PostForm("adults")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return body, trips.InvalidRequestf("adults: %q is not a number", raw)
		}
		body.Adults = n
	}
	if raw := strings.TrimSpace(f.PostForm("max_distance")); raw != "" {
		km, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return body, trips.InvalidRequestf("max_distance: %q is not a number", raw)
		}
		body.MaxDistanceKm = &km
	}
	return body, nil
}

// BuildSearchRequest validates the wire body and converts it into a typed
// search, applying configured defaults and expanding region macros.
func BuildSearchRequest(body TripSearchBody, defaults config.SearchConfig) (trips.SearchRequest, error) {
	req := trips.SearchRequest{
		SameAirportReturn: body.SameAirportReturn,
		MaxDistanceKm:     body.MaxDistanceKm,
		Adults:            body.Adults,
		StayLengths:       body.StayLengths,
	}
	if req.Adults == 0 {
		req.Adults = defaults.DefaultAdults
	}

	var err error
	if req.OutboundOrigins, err = parseAirportCodes("outbound_origins", body.OutboundOrigins); err != nil {
		return req, err
	}
	if req.ReturnOrigins, err = parseAirportCodes("return_origins", body.ReturnOrigins); err != nil {
		return req, err
	}
	if req.OutboundDates, err = parseDateList("outbound_dates", body.OutboundDates); err != nil {
		return req, err
	}
	if req.ReturnDates, err = parseDateList("return_dates", body.ReturnDates); err != nil {
		return req, err
	}

	blacklist := body.BlacklistCountries
	if blacklist == nil {
		blacklist = defaults.DefaultBlacklist
	}
	if req.BlacklistCountries, err = expandCountries("blacklist_countries", blacklist); err != nil {
		return req, err
	}
	if req.WhitelistCountries, err = expandCountries("whitelist_countries", body.WhitelistCountries); err != nil {
		return req, err
	}

	if code := strings.ToUpper(strings.TrimSpace(body.Currency)); code != "" {
		unit, err := currency.ParseISO(code)
		if err != nil {
			return req, trips.InvalidRequestf("currency: %q is not an ISO 4217 code", code)
		}
		req.Currency = unit
	}

	return req, req.Validate()
}

func parseAirportCodes(field string, values []string) ([]string, error) {
	var out []string
	seen := make(map[string]bool)
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			code := strings.ToUpper(strings.TrimSpace(part))
			if code == "" {
				continue
			}
			if !airportCodePattern.MatchString(code) {
				return nil, trips.InvalidRequestf("%s: %q is not an IATA airport code", field, part)
			}
			if !seen[code] {
				seen[code] = true
				out = append(out, code)
			}
		}
	}
	return out, nil
}

func parseDateList(field string, values []string) ([]time.Time, error) {
	var out []time.Time
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			d, err := graph.ParseDate(part)
			if err != nil {
				return nil, trips.InvalidRequestf("%s: %v", field, err)
			}
			out = append(out, d)
		}
	}
	return out, nil
}

func parseIntList(value string) ([]int, error) {
	var out []int
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, trips.InvalidRequestf("lengths_of_stay: %q is not a number", part)
		}
		out = append(out, n)
	}
	return out, nil
}

func expandCountries(field string, values []string) ([]string, error) {
	countries, err := macros.ExpandCountryTokens(values)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", trips.ErrInvalidRequest, field, err)
	}
	if len(countries) == 0 {
		return nil, nil
	}
	return countries, nil
}
