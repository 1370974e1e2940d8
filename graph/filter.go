package graph

import (
	"slices"
	"strings"
	"time"
)

// Shape is one traversal match. Field names follow the aliases the Cypher
// stages are written against:
//
//	(o)-[f1:FLYS_TO]->(a)-[g:DISTANCE_TO]->(b)-[f2:FLYS_TO]->(r)
//
// For a direct shape a and b are the same node and g is absent.
type Shape struct {
	Origin       Airport   // o
	Arrival      Airport   // a
	Departure    Airport   // b
	ReturnOrigin Airport   // r
	OutboundDate time.Time // f1.date
	ReturnDate   time.Time // f2.date
	DistanceKm   *float64  // g.distance
}

// Candidate projects the shape onto its candidate tuple.
func (s Shape) Candidate() Candidate {
	return Candidate{
		OutboundOrigin: s.Origin.Code,
		OutboundDate:   Day(s.OutboundDate),
		Arrival:        s.Arrival.Code,
		Departure:      s.Departure.Code,
		ReturnDate:     Day(s.ReturnDate),
		ReturnOrigin:   s.ReturnOrigin.Code,
		DistanceKm:     s.DistanceKm,
	}
}

// Stage is one optional filter over the candidate traversal. Cypher is a
// fixed predicate referencing only query parameters; Bind supplies those
// parameters and Match evaluates the same predicate in memory. A stage whose
// input is empty binds null and its predicate short-circuits to true.
type Stage struct {
	Name       string
	Cypher     string
	DetourOnly bool
	Bind       func(q CandidateQuery, params map[string]any)
	Match      func(q CandidateQuery, s Shape) bool
}

// Stages is the fixed, ordered list of candidate filters.
var Stages = []Stage{
	{
		Name:   "outbound-origin",
		Cypher: "o.code IN $outboundOrigins",
		Bind: func(q CandidateQuery, p map[string]any) {
			p["outboundOrigins"] = q.OutboundOrigins
		},
		Match: func(q CandidateQuery, s Shape) bool {
			return slices.Contains(q.OutboundOrigins, s.Origin.Code)
		},
	},
	{
		Name:   "return-origin",
		Cypher: "r.code IN $returnOrigins",
		Bind: func(q CandidateQuery, p map[string]any) {
			p["returnOrigins"] = q.ReturnOrigins
		},
		Match: func(q CandidateQuery, s Shape) bool {
			return slices.Contains(q.ReturnOrigins, s.ReturnOrigin.Code)
		},
	},
	{
		Name:   "outbound-date",
		Cypher: "f1.date IN [d IN $outboundDates | date(d)]",
		Bind: func(q CandidateQuery, p map[string]any) {
			p["outboundDates"] = formatDates(q.OutboundDates)
		},
		Match: func(q CandidateQuery, s Shape) bool {
			return containsDay(q.OutboundDates, s.OutboundDate)
		},
	},
	{
		Name:   "return-date",
		Cypher: "f2.date IN [d IN $returnDates | date(d)]",
		Bind: func(q CandidateQuery, p map[string]any) {
			p["returnDates"] = formatDates(q.ReturnDates)
		},
		Match: func(q CandidateQuery, s Shape) bool {
			return containsDay(q.ReturnDates, s.ReturnDate)
		},
	},
	{
		Name:   "date-order",
		Cypher: "f2.date >= f1.date",
		Bind:   func(CandidateQuery, map[string]any) {},
		Match: func(_ CandidateQuery, s Shape) bool {
			return !Day(s.ReturnDate).Before(Day(s.OutboundDate))
		},
	},
	{
		Name:   "stay-length",
		Cypher: "duration.inDays(f1.date, f2.date).days IN $stayLengths",
		Bind: func(q CandidateQuery, p map[string]any) {
			p["stayLengths"] = q.StayLengths
		},
		Match: func(q CandidateQuery, s Shape) bool {
			return slices.Contains(q.StayLengths, DaysBetween(s.OutboundDate, s.ReturnDate))
		},
	},
	{
		Name:   "same-airport-return",
		Cypher: "(NOT $sameAirportReturn OR o.code = r.code)",
		Bind: func(q CandidateQuery, p map[string]any) {
			p["sameAirportReturn"] = q.SameAirportReturn
		},
		Match: func(q CandidateQuery, s Shape) bool {
			return !q.SameAirportReturn || s.Origin.Code == s.ReturnOrigin.Code
		},
	},
	{
		Name:   "blacklist",
		Cypher: "($blacklistCountries IS NULL OR NOT (a.country IN $blacklistCountries OR b.country IN $blacklistCountries))",
		Bind: func(q CandidateQuery, p map[string]any) {
			p["blacklistCountries"] = nilIfEmpty(q.BlacklistCountries)
		},
		Match: func(q CandidateQuery, s Shape) bool {
			if len(q.BlacklistCountries) == 0 {
				return true
			}
			return !slices.Contains(q.BlacklistCountries, s.Arrival.Country) &&
				!slices.Contains(q.BlacklistCountries, s.Departure.Country)
		},
	},
	{
		Name:   "whitelist",
		Cypher: "($whitelistCountries IS NULL OR (a.country IN $whitelistCountries AND b.country IN $whitelistCountries))",
		Bind: func(q CandidateQuery, p map[string]any) {
			p["whitelistCountries"] = nilIfEmpty(q.WhitelistCountries)
		},
		Match: func(q CandidateQuery, s Shape) bool {
			if len(q.WhitelistCountries) == 0 {
				return true
			}
			return slices.Contains(q.WhitelistCountries, s.Arrival.Country) &&
				slices.Contains(q.WhitelistCountries, s.Departure.Country)
		},
	},
	{
		Name:       "max-distance",
		Cypher:     "g.distance < $maxDistanceKm",
		DetourOnly: true,
		Bind: func(q CandidateQuery, p map[string]any) {
			if q.MaxDistanceKm != nil {
				p["maxDistanceKm"] = *q.MaxDistanceKm
			} else {
				p["maxDistanceKm"] = nil
			}
		},
		Match: func(q CandidateQuery, s Shape) bool {
			return q.MaxDistanceKm != nil && s.DistanceKm != nil && *s.DistanceKm < *q.MaxDistanceKm
		},
	},
}

// WhereClause joins the predicates that apply to the direct or detour shape.
func WhereClause(detour bool) string {
	preds := make([]string, 0, len(Stages))
	for _, st := range Stages {
		if st.DetourOnly && !detour {
			continue
		}
		preds = append(preds, st.Cypher)
	}
	return strings.Join(preds, "\n  AND ")
}

// Params binds every stage's parameters for q.
func Params(q CandidateQuery) map[string]any {
	params := make(map[string]any, len(Stages))
	for _, st := range Stages {
		st.Bind(q, params)
	}
	return params
}

// Accept evaluates every applicable stage against s.
func Accept(q CandidateQuery, s Shape) bool {
	detour := s.DistanceKm != nil
	for _, st := range Stages {
		if st.DetourOnly && !detour {
			continue
		}
		if !st.Match(q, s) {
			return false
		}
	}
	return true
}

func formatDates(dates []time.Time) []string {
	out := make([]string, 0, len(dates))
	for _, d := range dates {
		out = append(out, d.Format(DateLayout))
	}
	return out
}

func containsDay(dates []time.Time, t time.Time) bool {
	day := Day(t)
	for _, d := range dates {
		if Day(d).Equal(day) {
			return true
		}
	}
	return false
}

// nilIfEmpty returns an untyped nil for an empty list. The driver packs a
// typed nil slice as an empty LIST, which would fail `IS NULL`.
func nilIfEmpty(values []string) any {
	if len(values) == 0 {
		return nil
	}
	return values
}
