package trips

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gilby125/tripfinder/db"
	"github.com/gilby125/tripfinder/graph"
	"github.com/gilby125/tripfinder/pkg/cache"
	"github.com/gilby125/tripfinder/pkg/logger"
	"github.com/google/uuid"
	"golang.org/x/text/currency"
)

// ErrGraphQuery is wrapped by route graph failures during a search.
var ErrGraphQuery = errors.New("route graph query failed")

// SearchHistory records completed searches.
type SearchHistory interface {
	RecordSearch(ctx context.Context, rec db.SearchRecord) error
}

// GraphReader is the part of the route graph a search needs.
type GraphReader interface {
	graph.CandidateFinder
	graph.AirportLister
}

// Result is the outcome of one search.
type Result struct {
	ID          uuid.UUID   `json:"id"`
	Itineraries []Itinerary `json:"itineraries"`
	Stats       Stats       `json:"stats"`
}

// ServiceOptions configures a Service.
type ServiceOptions struct {
	Timeout  time.Duration
	Cache    *cache.CacheManager
	History  SearchHistory
	CacheTTL time.Duration
}

// Service runs searches: candidate query, concurrent fare resolution,
// ranking, and history recording.
type Service struct {
	graph     GraphReader
	assembler *Assembler
	cache     *cache.CacheManager
	history   SearchHistory
	timeout   time.Duration
	cacheTTL  time.Duration
}

// NewService wires a search service.
func NewService(g GraphReader, assembler *Assembler, opts ServiceOptions) *Service {
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = cache.MediumTTL
	}
	return &Service{
		graph:     g,
		assembler: assembler,
		cache:     opts.Cache,
		history:   opts.History,
		timeout:   opts.Timeout,
		cacheTTL:  opts.CacheTTL,
	}
}

// Search validates the request and returns itineraries ascending by
// total fare. An empty result is not an error.
func (s *Service) Search(ctx context.Context, req SearchRequest) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	result := &Result{ID: uuid.New(), Itineraries: []Itinerary{}}

	candidates, err := s.graph.FindCandidates(ctx, req.Query())
	if err != nil {
		if errors.Is(err, graph.ErrEmptyOrigins) {
			return nil, InvalidRequestf("%v", err)
		}
		return nil, fmt.Errorf("%w: %w", ErrGraphQuery, err)
	}
	log := logger.WithContext(ctx).WithField("search_id", result.ID.String())
	log.Info("Candidate query finished", "candidates", len(candidates))

	if len(candidates) > 0 {
		dir, err := s.Directory(ctx)
		if err != nil {
			log.Warn("Airport directory unavailable, coordinates omitted", "error", err)
			dir = AirportIndex{}
		}
		items, stats, err := s.assembler.WithDirectory(dir).Assemble(ctx, candidates, req.Adults, req.Currency)
		if err != nil {
			return nil, err
		}
		Rank(items)
		result.Itineraries = items
		result.Stats = stats
	}
	result.Stats.Duration = time.Since(start)

	log.Info("Search finished",
		"candidates", result.Stats.Candidates,
		"itineraries", result.Stats.Itineraries,
		"failed_candidates", result.Stats.FailedCandidates,
		"skipped_pairs", result.Stats.SkippedPairs,
		"duration", result.Stats.Duration.String())

	s.record(ctx, result, req)
	return result, nil
}

func (s *Service) record(ctx context.Context, result *Result, req SearchRequest) {
	if s.history == nil {
		return
	}
	if err := s.history.RecordSearch(context.WithoutCancel(ctx), NewSearchRecord(result, req)); err != nil {
		logger.Error(err, "Failed to record search history", "search_id", result.ID.String())
	}
}

// NewSearchRecord flattens a search into a history row.
func NewSearchRecord(result *Result, req SearchRequest) db.SearchRecord {
	rec := db.SearchRecord{
		ID:                 result.ID,
		OutboundOrigins:    req.OutboundOrigins,
		ReturnOrigins:      req.ReturnOrigins,
		OutboundDates:      formatDates(req.OutboundDates),
		ReturnDates:        formatDates(req.ReturnDates),
		BlacklistCountries: req.BlacklistCountries,
		WhitelistCountries: req.WhitelistCountries,
		SameAirportReturn:  req.SameAirportReturn,
		MaxDistanceKm:      req.MaxDistanceKm,
		Adults:             req.Adults,
		Candidates:         result.Stats.Candidates,
		Itineraries:        result.Stats.Itineraries,
		FailedCandidates:   result.Stats.FailedCandidates,
		DurationMs:         result.Stats.Duration.Milliseconds(),
	}
	if req.Currency != (currency.Unit{}) {
		rec.Currency = req.Currency.String()
	} else if len(result.Itineraries) > 0 {
		rec.Currency = result.Itineraries[0].Currency
	}
	for _, n := range req.StayLengths {
		rec.StayLengths = append(rec.StayLengths, int64(n))
	}
	if len(result.Itineraries) > 0 {
		cheapest := result.Itineraries[0].FullFare
		rec.CheapestFare = &cheapest
	}
	return rec
}

func formatDates(dates []time.Time) []string {
	out := make([]string, len(dates))
	for i, d := range dates {
		out[i] = d.Format(graph.DateLayout)
	}
	return out
}

// Directory returns the airport directory, cached when a cache is set.
func (s *Service) Directory(ctx context.Context) (AirportIndex, error) {
	airports, err := cache.GetOrLoad(ctx, s.cache, cache.AirportsKey(), s.cacheTTL, s.graph.ListAirports)
	if err != nil {
		return nil, fmt.Errorf("list airports: %w", err)
	}
	return NewAirportIndex(airports), nil
}

// Airports returns directory entries matching query.
func (s *Service) Airports(ctx context.Context, query string) ([]graph.Airport, error) {
	dir, err := s.Directory(ctx)
	if err != nil {
		return nil, err
	}
	return dir.Search(query), nil
}

// Countries returns the sorted distinct countries of the route graph.
func (s *Service) Countries(ctx context.Context) ([]string, error) {
	return cache.GetOrLoad(ctx, s.cache, cache.CountriesKey(), s.cacheTTL, func(ctx context.Context) ([]string, error) {
		dir, err := s.Directory(ctx)
		if err != nil {
			return nil, err
		}
		return dir.Countries(), nil
	})
}

// BaseAirports returns the airports flagged as refresh bases.
func (s *Service) BaseAirports(ctx context.Context) ([]graph.Airport, error) {
	airports, err := cache.GetOrLoad(ctx, s.cache, cache.BaseAirportsKey(), s.cacheTTL, s.graph.ListBaseAirports)
	if err != nil {
		return nil, fmt.Errorf("list base airports: %w", err)
	}
	return airports, nil
}
