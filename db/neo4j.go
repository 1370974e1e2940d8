package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gilby125/tripfinder/config"
	"github.com/gilby125/tripfinder/graph"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// upsertBatchSize bounds the rows sent per UNWIND statement.
const upsertBatchSize = 500

// Neo4jDB is the Neo4j-backed route graph store.
type Neo4jDB struct {
	driver       neo4j.DriverWithContext
	database     string
	queryTimeout time.Duration
}

// NewNeo4jDB creates a new Neo4j database connection and verifies it.
func NewNeo4jDB(ctx context.Context, cfg config.Neo4jConfig) (*Neo4jDB, error) {
	trimmedURI := strings.TrimSpace(cfg.URI)
	driver, err := neo4j.NewDriverWithContext(
		trimmedURI,
		neo4j.BasicAuth(cfg.User, cfg.Password, ""),
		func(c *neo4j.Config) {
			if cfg.MaxConnectionPoolSize > 0 {
				c.MaxConnectionPoolSize = cfg.MaxConnectionPoolSize
			}
			if cfg.ConnectTimeout > 0 {
				c.SocketConnectTimeout = cfg.ConnectTimeout
				c.ConnectionAcquisitionTimeout = cfg.ConnectTimeout
			}
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Neo4j: %w", err)
	}

	verifyCtx := ctx
	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		verifyCtx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}
	if err := driver.VerifyConnectivity(verifyCtx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("failed to verify Neo4j connectivity: %w", err)
	}

	return &Neo4jDB{
		driver:       driver,
		database:     cfg.Database,
		queryTimeout: cfg.QueryTimeout,
	}, nil
}

// Close closes the database connection
func (n *Neo4jDB) Close(ctx context.Context) error {
	return n.driver.Close(ctx)
}

// Ping verifies the driver can still reach the server.
func (n *Neo4jDB) Ping(ctx context.Context) error {
	return n.driver.VerifyConnectivity(ctx)
}

// InitSchema creates the uniqueness constraint and indexes the queries rely on.
func (n *Neo4jDB) InitSchema(ctx context.Context) error {
	for _, q := range []string{createAirportConstraintQuery, createFlightDateIndexQuery, createAirportBaseIndexQuery} {
		if err := n.write(ctx, q, nil); err != nil {
			return fmt.Errorf("failed to initialise schema: %w", err)
		}
	}
	return nil
}

func (n *Neo4jDB) UpsertAirports(ctx context.Context, airports []graph.Airport) error {
	if err := n.writeBatches(ctx, upsertAirportsQuery, airportRows(airports)); err != nil {
		return fmt.Errorf("failed to upsert airports: %w", err)
	}
	return nil
}

func (n *Neo4jDB) UpsertFlightEdges(ctx context.Context, edges []graph.FlightEdge) error {
	if err := n.writeBatches(ctx, upsertFlightEdgesQuery, flightRows(edges)); err != nil {
		return fmt.Errorf("failed to upsert flight edges: %w", err)
	}
	return nil
}

func (n *Neo4jDB) UpsertDistanceEdges(ctx context.Context, edges []graph.DistanceEdge) error {
	if err := n.writeBatches(ctx, upsertDistanceEdgesQuery, distanceRows(edges)); err != nil {
		return fmt.Errorf("failed to upsert distance edges: %w", err)
	}
	return nil
}

func (n *Neo4jDB) SetBaseAirports(ctx context.Context, codes []string) error {
	if codes == nil {
		codes = []string{}
	}
	if err := n.write(ctx, setBaseAirportsQuery, map[string]any{"codes": codes}); err != nil {
		return fmt.Errorf("failed to set base airports: %w", err)
	}
	return nil
}

func (n *Neo4jDB) Clear(ctx context.Context) error {
	if err := n.write(ctx, clearGraphQuery, nil); err != nil {
		return fmt.Errorf("failed to clear route graph: %w", err)
	}
	return nil
}

func (n *Neo4jDB) ListAirports(ctx context.Context) ([]graph.Airport, error) {
	return n.listAirports(ctx, listAirportsQuery)
}

func (n *Neo4jDB) ListBaseAirports(ctx context.Context) ([]graph.Airport, error) {
	return n.listAirports(ctx, listBaseAirportsQuery)
}

func (n *Neo4jDB) listAirports(ctx context.Context, query string) ([]graph.Airport, error) {
	result, err := n.read(ctx, query, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list airports: %w", err)
	}
	airports := make([]graph.Airport, 0, len(result.Records))
	for _, record := range result.Records {
		a, err := airportFromRecord(record)
		if err != nil {
			return nil, err
		}
		airports = append(airports, a)
	}
	return airports, nil
}

// FindCandidates runs the direct query and, when detours are enabled, the
// detour query, and returns the union of their rows.
func (n *Neo4jDB) FindCandidates(ctx context.Context, q graph.CandidateQuery) ([]graph.Candidate, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if q.Unsatisfiable() {
		return nil, nil
	}

	params := graph.Params(q)
	queries := []string{directCandidatesQuery}
	if q.DetoursEnabled() {
		queries = append(queries, detourCandidatesQuery)
	}

	var candidates []graph.Candidate
	for _, query := range queries {
		result, err := n.read(ctx, query, params)
		if err != nil {
			return nil, fmt.Errorf("candidate query failed: %w", err)
		}
		for _, record := range result.Records {
			c, err := candidateFromRecord(record)
			if err != nil {
				return nil, err
			}
			candidates = append(candidates, c)
		}
	}
	return candidates, nil
}

func (n *Neo4jDB) read(ctx context.Context, query string, params map[string]any) (*neo4j.EagerResult, error) {
	if n.queryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.queryTimeout)
		defer cancel()
	}
	return neo4j.ExecuteQuery(ctx, n.driver, query, params, neo4j.EagerResultTransformer,
		neo4j.ExecuteQueryWithDatabase(n.database),
		neo4j.ExecuteQueryWithReadersRouting())
}

func (n *Neo4jDB) write(ctx context.Context, query string, params map[string]any) error {
	session := n.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: n.database,
	})
	defer session.Close(ctx)

	var opts []func(*neo4j.TransactionConfig)
	if n.queryTimeout > 0 {
		opts = append(opts, neo4j.WithTxTimeout(n.queryTimeout))
	}
	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		return result.Consume(ctx)
	}, opts...)
	return err
}

func (n *Neo4jDB) writeBatches(ctx context.Context, query string, rows []map[string]any) error {
	for start := 0; start < len(rows); start += upsertBatchSize {
		end := min(start+upsertBatchSize, len(rows))
		if err := n.write(ctx, query, map[string]any{"rows": rows[start:end]}); err != nil {
			return err
		}
	}
	return nil
}

func airportRows(airports []graph.Airport) []map[string]any {
	rows := make([]map[string]any, 0, len(airports))
	for _, a := range airports {
		rows = append(rows, map[string]any{
			"code":      a.Code,
			"name":      a.Name,
			"city":      a.City,
			"country":   a.Country,
			"latitude":  a.Latitude,
			"longitude": a.Longitude,
			"timeZone":  a.TimeZone,
		})
	}
	return rows
}

func flightRows(edges []graph.FlightEdge) []map[string]any {
	rows := make([]map[string]any, 0, len(edges))
	for _, e := range edges {
		row := map[string]any{
			"origin":        e.Origin,
			"destination":   e.Destination,
			"date":          e.Date.Format(graph.DateLayout),
			"departureTime": nil,
			"arrivalTime":   nil,
			"fare":          nil,
			"flightNumber":  e.FlightNumber,
			"duration":      e.Duration,
		}
		if e.DepartureTime != nil {
			row["departureTime"] = *e.DepartureTime
		}
		if e.ArrivalTime != nil {
			row["arrivalTime"] = *e.ArrivalTime
		}
		if e.Fare != nil {
			row["fare"] = *e.Fare
		}
		rows = append(rows, row)
	}
	return rows
}

func distanceRows(edges []graph.DistanceEdge) []map[string]any {
	rows := make([]map[string]any, 0, len(edges))
	for _, e := range edges {
		rows = append(rows, map[string]any{
			"origin":      e.Origin,
			"destination": e.Destination,
			"distance":    e.DistanceKm,
		})
	}
	return rows
}

func airportFromRecord(record *neo4j.Record) (graph.Airport, error) {
	var a graph.Airport
	var err error
	if a.Code, _, err = neo4j.GetRecordValue[string](record, "code"); err != nil {
		return a, fmt.Errorf("airport record: %w", err)
	}
	a.Name = optionalString(record, "name")
	a.City = optionalString(record, "city")
	a.Country = optionalString(record, "country")
	a.TimeZone = optionalString(record, "timeZone")
	a.Latitude = optionalFloat(record, "latitude")
	a.Longitude = optionalFloat(record, "longitude")
	if base, isNil, err := neo4j.GetRecordValue[bool](record, "base"); err == nil && !isNil {
		a.Base = base
	}
	return a, nil
}

func candidateFromRecord(record *neo4j.Record) (graph.Candidate, error) {
	var c graph.Candidate
	var err error
	if c.OutboundOrigin, _, err = neo4j.GetRecordValue[string](record, "outboundOrigin"); err != nil {
		return c, fmt.Errorf("candidate record: %w", err)
	}
	if c.Arrival, _, err = neo4j.GetRecordValue[string](record, "arrival"); err != nil {
		return c, fmt.Errorf("candidate record: %w", err)
	}
	if c.Departure, _, err = neo4j.GetRecordValue[string](record, "departure"); err != nil {
		return c, fmt.Errorf("candidate record: %w", err)
	}
	if c.ReturnOrigin, _, err = neo4j.GetRecordValue[string](record, "returnOrigin"); err != nil {
		return c, fmt.Errorf("candidate record: %w", err)
	}
	outbound, _, err := neo4j.GetRecordValue[neo4j.Date](record, "outboundDate")
	if err != nil {
		return c, fmt.Errorf("candidate record: %w", err)
	}
	inbound, _, err := neo4j.GetRecordValue[neo4j.Date](record, "returnDate")
	if err != nil {
		return c, fmt.Errorf("candidate record: %w", err)
	}
	c.OutboundDate = graph.Day(outbound.Time())
	c.ReturnDate = graph.Day(inbound.Time())

	distance, isNil, err := neo4j.GetRecordValue[float64](record, "distanceKm")
	if err != nil {
		return c, fmt.Errorf("candidate record: %w", err)
	}
	if !isNil {
		c.DistanceKm = &distance
	}
	return c, nil
}

func optionalString(record *neo4j.Record, key string) string {
	v, _, _ := neo4j.GetRecordValue[string](record, key)
	return v
}

func optionalFloat(record *neo4j.Record, key string) float64 {
	v, _, _ := neo4j.GetRecordValue[float64](record, key)
	return v
}

var _ graph.Store = (*Neo4jDB)(nil)
