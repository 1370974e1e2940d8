package trips

import (
	"sort"
	"strings"

	"github.com/anyascii/go"
	"github.com/gilby125/tripfinder/graph"
)

// Directory resolves airport codes to reference data.
type Directory interface {
	Lookup(code string) (graph.Airport, bool)
}

// AirportIndex is an immutable in-memory directory keyed by IATA code.
// It is safe for concurrent reads.
type AirportIndex map[string]graph.Airport

// NewAirportIndex builds an index from a list of airports.
func NewAirportIndex(airports []graph.Airport) AirportIndex {
	idx := make(AirportIndex, len(airports))
	for _, a := range airports {
		idx[strings.ToUpper(a.Code)] = a
	}
	return idx
}

func (idx AirportIndex) Lookup(code string) (graph.Airport, bool) {
	a, ok := idx[strings.ToUpper(code)]
	return a, ok
}

// Countries returns the distinct, sorted country names in the index.
func (idx AirportIndex) Countries() []string {
	seen := make(map[string]struct{})
	for _, a := range idx {
		if a.Country != "" {
			seen[a.Country] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Search matches airports whose code, name, city or country contains the
// query. Matching ignores case and diacritics, so "malaga" finds "Málaga".
// An empty query returns every airport. Results are sorted by code.
func (idx AirportIndex) Search(query string) []graph.Airport {
	q := fold(query)
	out := make([]graph.Airport, 0)
	for _, a := range idx {
		if q == "" || matches(a, q) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

func matches(a graph.Airport, q string) bool {
	for _, field := range []string{a.Code, a.Name, a.City, a.Country} {
		if strings.Contains(fold(field), q) {
			return true
		}
	}
	return false
}

func fold(s string) string {
	return strings.ToLower(strings.TrimSpace(anyascii.Transliterate(s)))
}
