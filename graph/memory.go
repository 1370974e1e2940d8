package graph

import (
	"context"
	"sort"
	"sync"
	"time"
)

type flightKey struct {
	origin, destination string
	date                time.Time
}

type pairKey struct {
	origin, destination string
}

// MemoryStore is an in-process Store. It evaluates candidate queries with
// the same filter stages the Neo4j store compiles into Cypher.
type MemoryStore struct {
	mu        sync.RWMutex
	airports  map[string]Airport
	flights   map[flightKey]FlightEdge
	distances map[pairKey]float64
}

// NewMemoryStore returns an empty in-memory route graph.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		airports:  make(map[string]Airport),
		flights:   make(map[flightKey]FlightEdge),
		distances: make(map[pairKey]float64),
	}
}

func (m *MemoryStore) UpsertAirports(_ context.Context, airports []Airport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range airports {
		if existing, ok := m.airports[a.Code]; ok {
			a.Base = existing.Base
		} else {
			a.Base = false
		}
		m.airports[a.Code] = a
	}
	return nil
}

func (m *MemoryStore) UpsertFlightEdges(_ context.Context, edges []FlightEdge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range edges {
		m.ensureAirport(e.Origin)
		m.ensureAirport(e.Destination)
		e.Date = Day(e.Date)
		m.flights[flightKey{e.Origin, e.Destination, e.Date}] = e
	}
	return nil
}

func (m *MemoryStore) UpsertDistanceEdges(_ context.Context, edges []DistanceEdge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range edges {
		m.ensureAirport(e.Origin)
		m.ensureAirport(e.Destination)
		m.distances[pairKey{e.Origin, e.Destination}] = e.DistanceKm
	}
	return nil
}

// ensureAirport mirrors MERGE semantics for edge endpoints. Caller holds mu.
func (m *MemoryStore) ensureAirport(code string) {
	if _, ok := m.airports[code]; !ok {
		m.airports[code] = Airport{Code: code}
	}
}

func (m *MemoryStore) SetBaseAirports(_ context.Context, codes []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	bases := make(map[string]bool, len(codes))
	for _, c := range codes {
		bases[c] = true
	}
	for code, a := range m.airports {
		a.Base = bases[code]
		m.airports[code] = a
	}
	return nil
}

func (m *MemoryStore) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.airports = make(map[string]Airport)
	m.flights = make(map[flightKey]FlightEdge)
	m.distances = make(map[pairKey]float64)
	return nil
}

func (m *MemoryStore) ListAirports(_ context.Context) ([]Airport, error) {
	return m.list(func(Airport) bool { return true }), nil
}

func (m *MemoryStore) ListBaseAirports(_ context.Context) ([]Airport, error) {
	return m.list(func(a Airport) bool { return a.Base }), nil
}

func (m *MemoryStore) list(keep func(Airport) bool) []Airport {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Airport, 0, len(m.airports))
	for _, a := range m.airports {
		if keep(a) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// FlightEdges returns a snapshot of all stored flight edges.
func (m *MemoryStore) FlightEdges() []FlightEdge {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]FlightEdge, 0, len(m.flights))
	for _, e := range m.flights {
		out = append(out, e)
	}
	return out
}

// DistanceEdges returns a snapshot of all stored distance edges.
func (m *MemoryStore) DistanceEdges() []DistanceEdge {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]DistanceEdge, 0, len(m.distances))
	for k, d := range m.distances {
		out = append(out, DistanceEdge{Origin: k.origin, Destination: k.destination, DistanceKm: d})
	}
	return out
}

func (m *MemoryStore) FindCandidates(ctx context.Context, q CandidateQuery) ([]Candidate, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if q.Unsatisfiable() {
		return nil, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	outgoing := make(map[string][]FlightEdge)
	for _, e := range m.flights {
		outgoing[e.Origin] = append(outgoing[e.Origin], e)
	}
	hops := make(map[string][]pairKey)
	if q.DetoursEnabled() {
		for k := range m.distances {
			hops[k.origin] = append(hops[k.origin], k)
		}
	}

	var out []Candidate
	seen := make(map[string]bool, len(q.OutboundOrigins))
	for _, origin := range q.OutboundOrigins {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		o, ok := m.airports[origin]
		if !ok || seen[origin] {
			continue
		}
		seen[origin] = true
		for _, f1 := range outgoing[origin] {
			a := m.airports[f1.Destination]
			for _, f2 := range outgoing[a.Code] {
				s := Shape{
					Origin: o, Arrival: a, Departure: a, ReturnOrigin: m.airports[f2.Destination],
					OutboundDate: f1.Date, ReturnDate: f2.Date,
				}
				if Accept(q, s) {
					out = append(out, s.Candidate())
				}
			}
			for _, g := range hops[a.Code] {
				dist := m.distances[g]
				b := m.airports[g.destination]
				for _, f2 := range outgoing[b.Code] {
					s := Shape{
						Origin: o, Arrival: a, Departure: b, ReturnOrigin: m.airports[f2.Destination],
						OutboundDate: f1.Date, ReturnDate: f2.Date, DistanceKm: &dist,
					}
					if Accept(q, s) {
						out = append(out, s.Candidate())
					}
				}
			}
		}
	}
	return out, nil
}

var _ Store = (*MemoryStore)(nil)
