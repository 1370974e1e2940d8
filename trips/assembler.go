package trips

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gilby125/tripfinder/fares"
	"github.com/gilby125/tripfinder/graph"
	"github.com/gilby125/tripfinder/pkg/logger"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/currency"
)

// Failure policies for candidates whose fare lookups fail.
const (
	FailurePolicySkip = "skip"
	FailurePolicyFail = "fail"
)

// DefaultConcurrency bounds the number of candidates resolved at once.
const DefaultConcurrency = 10

// AssemblerOptions configures an Assembler.
type AssemblerOptions struct {
	Concurrency      int
	FailurePolicy    string
	CandidateTimeout time.Duration
}

// Assembler resolves candidates into itineraries using a bounded pool.
type Assembler struct {
	resolver  FareResolver
	directory Directory
	opts      AssemblerOptions
}

// NewAssembler creates an assembler. directory may be nil, in which case
// every itinerary carries nil coordinates.
func NewAssembler(resolver FareResolver, directory Directory, opts AssemblerOptions) *Assembler {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.FailurePolicy == "" {
		opts.FailurePolicy = FailurePolicySkip
	}
	return &Assembler{resolver: resolver, directory: directory, opts: opts}
}

// WithDirectory returns a copy of the assembler using another directory.
func (a *Assembler) WithDirectory(directory Directory) *Assembler {
	cp := *a
	cp.directory = directory
	return &cp
}

// sink collects results from concurrent candidate tasks.
type sink struct {
	mu    sync.Mutex
	items []Itinerary
	stats Stats
}

func (s *sink) add(items []Itinerary, skipped int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, items...)
	s.stats.SkippedPairs += skipped
}

func (s *sink) fail() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.FailedCandidates++
}

// Assemble resolves both legs of every candidate and returns the combined
// itineraries in completion order. Under the skip policy a failed candidate
// is logged and counted; under the fail policy the first failure cancels
// the remaining work and is returned.
func (a *Assembler) Assemble(ctx context.Context, candidates []graph.Candidate, adults int, cur currency.Unit) ([]Itinerary, Stats, error) {
	out := &sink{}
	out.stats.Candidates = len(candidates)
	if len(candidates) == 0 {
		return []Itinerary{}, out.stats, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.opts.Concurrency)

	for _, c := range candidates {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			items, skipped, err := a.resolveCandidate(gctx, c, adults, cur)
			if err != nil {
				if a.opts.FailurePolicy == FailurePolicyFail {
					return fmt.Errorf("candidate %s: %w", c, err)
				}
				logger.Error(err, "Fare lookup failed, skipping candidate",
					"outbound_origin", c.OutboundOrigin,
					"arrival", c.Arrival,
					"departure", c.Departure,
					"return_origin", c.ReturnOrigin,
					"outbound_date", c.OutboundDate.Format(graph.DateLayout),
					"return_date", c.ReturnDate.Format(graph.DateLayout))
				out.fail()
				return nil
			}
			out.add(items, skipped)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, out.stats, err
	}
	if err := ctx.Err(); err != nil {
		return nil, out.stats, fmt.Errorf("assemble itineraries: %w", err)
	}
	if out.items == nil {
		out.items = []Itinerary{}
	}
	out.stats.Itineraries = len(out.items)
	return out.items, out.stats, nil
}

func (a *Assembler) resolveCandidate(ctx context.Context, c graph.Candidate, adults int, cur currency.Unit) ([]Itinerary, int, error) {
	if a.opts.CandidateTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.opts.CandidateTimeout)
		defer cancel()
	}

	outbound, err := a.resolver.ResolveFares(ctx, fares.Request{
		Adults:      adults,
		Date:        c.OutboundDate,
		Origin:      c.OutboundOrigin,
		Destination: c.Arrival,
		Currency:    cur,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("outbound %s->%s: %w", c.OutboundOrigin, c.Arrival, err)
	}
	inbound, err := a.resolver.ResolveFares(ctx, fares.Request{
		Adults:      adults,
		Date:        c.ReturnDate,
		Origin:      c.Departure,
		Destination: c.ReturnOrigin,
		Currency:    cur,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("return %s->%s: %w", c.Departure, c.ReturnOrigin, err)
	}

	items, skipped := Combine(c, outbound, inbound, a.directory)
	return items, skipped, nil
}

// Combine forms the cross product of outbound and return legs for one
// candidate, preserving source order. Pairs where either fare is missing are
// dropped and counted in the second return value. Pairs quoted in different
// currencies are kept with MixedCurrency set.
func Combine(c graph.Candidate, outbound, inbound []fares.PricedLeg, dir Directory) ([]Itinerary, int) {
	items := make([]Itinerary, 0, len(outbound)*len(inbound))
	skipped := 0
	for _, o := range outbound {
		for _, r := range inbound {
			if o.Fare == nil || r.Fare == nil {
				logger.Debug("Dropping pair without a fare",
					"outbound", o.FlightNumber, "return", r.FlightNumber, "candidate", c.String())
				skipped++
				continue
			}
			mixed := o.Currency != r.Currency
			if mixed {
				logger.Warn("Summing fares quoted in different currencies",
					"outbound_currency", o.Currency, "return_currency", r.Currency, "candidate", c.String())
			}
			items = append(items, Itinerary{
				Destination:    destinationLabel(o, r),
				OutboundOrigin: stop(dir, c.OutboundOrigin, o.DepartureTime),
				Arrival:        stop(dir, c.Arrival, o.ArrivalTime),
				Departure:      stop(dir, c.Departure, r.DepartureTime),
				ReturnOrigin:   stop(dir, c.ReturnOrigin, r.ArrivalTime),
				OutboundDate:   c.OutboundDate,
				ReturnDate:     c.ReturnDate,
				StayLength:     c.StayLength(),
				OutboundFlight: o.FlightNumber,
				ReturnFlight:   r.FlightNumber,
				OutboundFare:   *o.Fare,
				ReturnFare:     *r.Fare,
				FullFare:       *o.Fare + *r.Fare,
				Currency:       o.Currency,
				MixedCurrency:  mixed,
				Transfer:       c.IsDetour(),
				DistanceKm:     c.DistanceKm,
			})
		}
	}
	return items, skipped
}

func destinationLabel(outbound, inbound fares.PricedLeg) string {
	if outbound.DestinationName == inbound.OriginName {
		return outbound.DestinationName
	}
	return outbound.DestinationName + " / " + inbound.OriginName
}

func stop(dir Directory, code string, at *time.Time) Stop {
	s := Stop{Code: code, Time: at}
	if dir == nil {
		return s
	}
	if a, ok := dir.Lookup(code); ok {
		lat, lon := a.Latitude, a.Longitude
		s.Latitude, s.Longitude = &lat, &lon
	}
	return s
}
