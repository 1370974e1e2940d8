// Package macros expands REGION:* tokens in country blacklists and
// whitelists into the country names used by the airport directory.
//
// Country names match the airline feed, e.g. "United Kingdom", "Czechia".
// Membership is geographic and best-effort; it is not a political statement.
package macros

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// regionPrefix is the prefix for region tokens.
const regionPrefix = "REGION:"

// Region tokens supported by the API.
const (
	RegionBritishIsles  = "REGION:BRITISH_ISLES"
	RegionNordics       = "REGION:NORDICS"
	RegionBaltics       = "REGION:BALTICS"
	RegionBenelux       = "REGION:BENELUX"
	RegionDACH          = "REGION:DACH"
	RegionIberia        = "REGION:IBERIA"
	RegionBalkans       = "REGION:BALKANS"
	RegionCentralEurope = "REGION:CENTRAL_EUROPE"
	RegionMediterranean = "REGION:MEDITERRANEAN"
	RegionNorthAfrica   = "REGION:NORTH_AFRICA"
	RegionMiddleEast    = "REGION:MIDDLE_EAST"
)

// countryNamePattern accepts feed country names: letters, spaces, dots,
// apostrophes and hyphens.
var countryNamePattern = regexp.MustCompile(`^[\p{L}][\p{L} .'\-]*$`)

var regionCountries = map[string][]string{
	RegionBritishIsles:  {"Ireland", "United Kingdom", "Isle of Man"},
	RegionNordics:       {"Denmark", "Finland", "Iceland", "Norway", "Sweden"},
	RegionBaltics:       {"Estonia", "Latvia", "Lithuania"},
	RegionBenelux:       {"Belgium", "Luxembourg", "Netherlands"},
	RegionDACH:          {"Austria", "Germany", "Switzerland"},
	RegionIberia:        {"Portugal", "Spain", "Gibraltar"},
	RegionBalkans:       {"Albania", "Bosnia and Herzegovina", "Bulgaria", "Croatia", "Kosovo", "Montenegro", "North Macedonia", "Serbia", "Slovenia"},
	RegionCentralEurope: {"Czechia", "Hungary", "Poland", "Slovakia"},
	RegionMediterranean: {"Cyprus", "Greece", "Italy", "Malta", "France", "Spain", "Croatia", "Turkey"},
	RegionNorthAfrica:   {"Morocco", "Tunisia", "Algeria", "Egypt"},
	RegionMiddleEast:    {"Israel", "Jordan", "Lebanon", "United Arab Emirates", "Qatar", "Saudi Arabia"},
}

// AllRegions returns all supported region tokens, sorted.
func AllRegions() []string {
	out := make([]string, 0, len(regionCountries))
	for token := range regionCountries {
		out = append(out, token)
	}
	sort.Strings(out)
	return out
}

// GetRegionCountries returns the country names for a region token, or nil
// if the region is not recognized.
func GetRegionCountries(region string) []string {
	countries, ok := regionCountries[strings.ToUpper(strings.TrimSpace(region))]
	if !ok {
		return nil
	}
	result := make([]string, len(countries))
	copy(result, countries)
	return result
}

// RegionInfo contains metadata about a region for API responses.
type RegionInfo struct {
	Token     string   `json:"token"`
	Countries []string `json:"countries"`
}

// GetAllRegionInfo returns every region with its countries.
func GetAllRegionInfo() []RegionInfo {
	regions := AllRegions()
	result := make([]RegionInfo, 0, len(regions))
	for _, region := range regions {
		result = append(result, RegionInfo{Token: region, Countries: GetRegionCountries(region)})
	}
	return result
}

// IsRegionToken returns true if the input looks like a region token.
func IsRegionToken(input string) bool {
	return strings.HasPrefix(strings.ToUpper(strings.TrimSpace(input)), regionPrefix)
}

// ExpandCountryTokens expands country names and REGION:* tokens into a
// deduplicated list of country names.
//   - names are trimmed and deduplicated case-insensitively, first spelling wins
//   - unknown region token => error (handlers return 400)
func ExpandCountryTokens(inputs []string) (countries []string, err error) {
	return ExpandCountryTokensWithOverrides(inputs, nil)
}

// ExpandCountryTokensWithOverrides is ExpandCountryTokens with extra or
// replacement region definitions, keyed by token (case-insensitive).
func ExpandCountryTokensWithOverrides(inputs []string, overrides map[string][]string) ([]string, error) {
	normalizedOverrides := make(map[string][]string, len(overrides))
	for k, v := range overrides {
		normalizedOverrides[strings.ToUpper(strings.TrimSpace(k))] = v
	}

	seen := make(map[string]bool)
	result := make([]string, 0, len(inputs))
	add := func(name string) {
		key := strings.ToLower(name)
		if !seen[key] {
			seen[key] = true
			result = append(result, name)
		}
	}

	for _, input := range inputs {
		value := strings.TrimSpace(input)
		if value == "" {
			continue
		}

		if IsRegionToken(value) {
			token := strings.ToUpper(value)
			countries, ok := normalizedOverrides[token]
			if !ok {
				countries = regionCountries[token]
			}
			if countries == nil {
				return nil, fmt.Errorf("unknown region token: %s", value)
			}
			for _, c := range countries {
				add(c)
			}
			continue
		}

		if !countryNamePattern.MatchString(value) {
			return nil, fmt.Errorf("invalid country name: %q", input)
		}
		add(value)
	}

	return result, nil
}
