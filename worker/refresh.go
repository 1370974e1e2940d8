package worker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gilby125/tripfinder/fares"
	"github.com/gilby125/tripfinder/graph"
	"github.com/gilby125/tripfinder/pkg/cache"
	"github.com/gilby125/tripfinder/pkg/geo"
	"github.com/gilby125/tripfinder/pkg/logger"
	"github.com/gilby125/tripfinder/pkg/notify"
	"golang.org/x/sync/errgroup"
)

// Refresh kinds, used in logs and notifications.
const (
	KindRebuild = "rebuild"
	KindRefresh = "refresh"
)

// ErrNoBaseAirports is returned when a refresh has nothing to start from.
var ErrNoBaseAirports = errors.New("no base airports configured")

// FeedSource is the airline feed the route graph is built from.
type FeedSource interface {
	ActiveAirports(ctx context.Context) ([]graph.Airport, error)
	Routes(ctx context.Context, code string) ([]string, error)
	AvailableDates(ctx context.Context, origin, destination string) ([]time.Time, error)
}

// Notifier receives refresh lifecycle alerts.
type Notifier interface {
	AlertRefreshStarted(ctx context.Context, kind string, bases []string) error
	AlertRefreshComplete(ctx context.Context, s notify.RefreshSummary) error
	AlertRefreshFailed(ctx context.Context, kind string, cause error) error
	AlertRateLimited(ctx context.Context, route string) error
}

// RefresherOptions configures a Refresher.
type RefresherOptions struct {
	// Concurrency bounds the number of routes fetched at once.
	Concurrency int
	// DefaultBases are used by RefreshAll when the graph has no base airports.
	DefaultBases []string
	Cache        *cache.CacheManager
	Notifier     Notifier
}

// Refresher rebuilds and refreshes the route graph from the feed. Only one
// refresh runs at a time per Refresher.
type Refresher struct {
	store graph.Store
	feed  FeedSource
	opts  RefresherOptions
	mu    sync.Mutex
}

// NewRefresher creates a refresher.
func NewRefresher(store graph.Store, feed FeedSource, opts RefresherOptions) *Refresher {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	return &Refresher{store: store, feed: feed, opts: opts}
}

// Rebuild clears the graph and builds it again around bases, which become
// the new base airport set.
func (r *Refresher) Rebuild(ctx context.Context, bases []string) (notify.RefreshSummary, error) {
	bases = normaliseCodes(bases)
	if len(bases) == 0 {
		return notify.RefreshSummary{}, ErrNoBaseAirports
	}
	return r.run(ctx, KindRebuild, bases, true)
}

// RefreshAll refreshes flight and distance edges for the current base
// airports without clearing the graph.
func (r *Refresher) RefreshAll(ctx context.Context) (notify.RefreshSummary, error) {
	current, err := r.store.ListBaseAirports(ctx)
	if err != nil {
		return notify.RefreshSummary{}, fmt.Errorf("list base airports: %w", err)
	}
	bases := make([]string, 0, len(current))
	for _, a := range current {
		bases = append(bases, a.Code)
	}
	if len(bases) == 0 {
		bases = normaliseCodes(r.opts.DefaultBases)
	}
	if len(bases) == 0 {
		return notify.RefreshSummary{}, ErrNoBaseAirports
	}
	return r.run(ctx, KindRefresh, bases, false)
}

func (r *Refresher) run(ctx context.Context, kind string, bases []string, clear bool) (notify.RefreshSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := time.Now()
	log := logger.WithFields(map[string]interface{}{"kind": kind, "bases": strings.Join(bases, ",")})
	log.Info("Route graph refresh started")
	r.alert(func(n Notifier) error { return n.AlertRefreshStarted(ctx, kind, bases) })

	summary, err := r.build(ctx, kind, bases, clear)
	summary.Duration = time.Since(start)
	if err != nil {
		log.Error(err, "Route graph refresh failed")
		r.alert(func(n Notifier) error { return n.AlertRefreshFailed(context.WithoutCancel(ctx), kind, err) })
		return summary, err
	}

	r.invalidateDirectory(ctx)
	log.Info("Route graph refresh finished",
		"airports", summary.Airports,
		"flight_edges", summary.FlightEdges,
		"distances", summary.Distances,
		"duration", summary.Duration.String())
	r.alert(func(n Notifier) error { return n.AlertRefreshComplete(ctx, summary) })
	return summary, nil
}

func (r *Refresher) build(ctx context.Context, kind string, bases []string, clear bool) (notify.RefreshSummary, error) {
	summary := notify.RefreshSummary{Kind: kind, BaseAirports: bases}

	airports, err := r.feed.ActiveAirports(ctx)
	if err != nil {
		return summary, fmt.Errorf("fetch active airports: %w", err)
	}
	// Nothing is written until every feed call has succeeded.
	edges, destinations, err := r.collectFlights(ctx, bases)
	if err != nil {
		return summary, err
	}

	if clear {
		if err := r.store.Clear(ctx); err != nil {
			return summary, fmt.Errorf("clear graph: %w", err)
		}
	}
	if err := r.store.UpsertAirports(ctx, airports); err != nil {
		return summary, fmt.Errorf("upsert airports: %w", err)
	}
	summary.Airports = len(airports)

	if clear {
		if err := r.store.SetBaseAirports(ctx, bases); err != nil {
			return summary, fmt.Errorf("set base airports: %w", err)
		}
	}

	if err := r.store.UpsertFlightEdges(ctx, edges); err != nil {
		return summary, fmt.Errorf("upsert flight edges: %w", err)
	}
	summary.FlightEdges = len(edges)

	byCode := make(map[string]graph.Airport, len(airports))
	for _, a := range airports {
		byCode[a.Code] = a
	}
	reachable := make([]graph.Airport, 0, len(destinations))
	for _, code := range destinations {
		if a, ok := byCode[code]; ok {
			reachable = append(reachable, a)
		}
	}
	distances := PairwiseDistances(reachable)
	if err := r.store.UpsertDistanceEdges(ctx, distances); err != nil {
		return summary, fmt.Errorf("upsert distance edges: %w", err)
	}
	summary.Distances = len(distances)
	return summary, nil
}

// collectFlights fetches the dated flights between every base and each of
// its destinations, in both directions. A route whose dates cannot be
// fetched is logged and left out.
func (r *Refresher) collectFlights(ctx context.Context, bases []string) ([]graph.FlightEdge, []string, error) {
	type route struct{ base, dest string }
	var routes []route
	seen := make(map[string]struct{})
	for _, base := range bases {
		dests, err := r.feed.Routes(ctx, base)
		if err != nil {
			return nil, nil, fmt.Errorf("fetch routes for %s: %w", base, err)
		}
		for _, d := range dests {
			routes = append(routes, route{base: base, dest: d})
			seen[d] = struct{}{}
		}
	}

	var (
		mu    sync.Mutex
		edges []graph.FlightEdge
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Concurrency)
	for _, rt := range routes {
		g.Go(func() error {
			var found []graph.FlightEdge
			for _, dir := range [][2]string{{rt.base, rt.dest}, {rt.dest, rt.base}} {
				dates, err := r.feed.AvailableDates(gctx, dir[0], dir[1])
				if err != nil {
					if gctx.Err() != nil {
						return gctx.Err()
					}
					if errors.Is(err, fares.ErrRateLimited) {
						route := dir[0] + "-" + dir[1]
						r.alert(func(n Notifier) error { return n.AlertRateLimited(gctx, route) })
					}
					logger.Error(err, "Skipping route, available dates unavailable", "origin", dir[0], "destination", dir[1])
					continue
				}
				for _, d := range dates {
					found = append(found, graph.FlightEdge{Origin: dir[0], Destination: dir[1], Date: graph.Day(d)})
				}
			}
			mu.Lock()
			edges = append(edges, found...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, fmt.Errorf("fetch flight dates: %w", err)
	}

	destinations := make([]string, 0, len(seen))
	for d := range seen {
		destinations = append(destinations, d)
	}
	sort.Strings(destinations)
	return edges, destinations, nil
}

func (r *Refresher) invalidateDirectory(ctx context.Context) {
	if r.opts.Cache == nil {
		return
	}
	if err := r.opts.Cache.Delete(ctx, cache.DirectoryKeys()...); err != nil {
		logger.Warn("Failed to invalidate airport directory cache", "error", err)
	}
}

func (r *Refresher) alert(send func(Notifier) error) {
	if r.opts.Notifier == nil {
		return
	}
	if err := send(r.opts.Notifier); err != nil {
		logger.Warn("Failed to send refresh notification", "error", err)
	}
}

// PairwiseDistances returns a DISTANCE_TO edge for every ordered pair of
// distinct airports. Airports without usable coordinates get no edges.
func PairwiseDistances(airports []graph.Airport) []graph.DistanceEdge {
	located := make([]graph.Airport, 0, len(airports))
	for _, a := range airports {
		c := geo.Coordinates{Lat: a.Latitude, Lon: a.Longitude}
		if c.IsZero() || !c.IsValid() {
			logger.Warn("Airport has no usable coordinates, skipping distances", "airport", a.Code)
			continue
		}
		located = append(located, a)
	}
	if len(located) < 2 {
		return nil
	}
	out := make([]graph.DistanceEdge, 0, len(located)*(len(located)-1))
	for _, a := range located {
		from := geo.Coordinates{Lat: a.Latitude, Lon: a.Longitude}
		for _, b := range located {
			if a.Code == b.Code {
				continue
			}
			out = append(out, graph.DistanceEdge{
				Origin:      a.Code,
				Destination: b.Code,
				DistanceKm:  geo.DistanceKm(from, geo.Coordinates{Lat: b.Latitude, Lon: b.Longitude}),
			})
		}
	}
	return out
}

func normaliseCodes(codes []string) []string {
	seen := make(map[string]struct{}, len(codes))
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		c = strings.ToUpper(strings.TrimSpace(c))
		if c == "" {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}
