package db

import "github.com/gilby125/tripfinder/graph"

const (
	createAirportConstraintQuery = `CREATE CONSTRAINT airport_code IF NOT EXISTS FOR (a:Airport) REQUIRE a.code IS UNIQUE`
	createFlightDateIndexQuery   = `CREATE INDEX flys_to_date IF NOT EXISTS FOR ()-[f:FLYS_TO]-() ON (f.date)`
	createAirportBaseIndexQuery  = `CREATE INDEX airport_base IF NOT EXISTS FOR (a:Airport) ON (a.base)`

	upsertAirportsQuery = `
UNWIND $rows AS row
MERGE (a:Airport {code: row.code})
ON CREATE SET a.base = false
SET a.name = row.name,
    a.city = row.city,
    a.country = row.country,
    a.latitude = row.latitude,
    a.longitude = row.longitude,
    a.timeZone = row.timeZone`

	upsertFlightEdgesQuery = `
UNWIND $rows AS row
MERGE (o:Airport {code: row.origin})
ON CREATE SET o.base = false
MERGE (d:Airport {code: row.destination})
ON CREATE SET d.base = false
MERGE (o)-[f:FLYS_TO {date: date(row.date)}]->(d)
SET f.departureTime = row.departureTime,
    f.arrivalTime = row.arrivalTime,
    f.fare = row.fare,
    f.flightNumber = row.flightNumber,
    f.duration = row.duration`

	upsertDistanceEdgesQuery = `
UNWIND $rows AS row
MATCH (a:Airport {code: row.origin})
MATCH (b:Airport {code: row.destination})
MERGE (a)-[g:DISTANCE_TO]->(b)
SET g.distance = row.distance`

	setBaseAirportsQuery = `
MATCH (a:Airport)
SET a.base = a.code IN $codes`

	clearGraphQuery = `MATCH (n:Airport) DETACH DELETE n`

	listAirportsQuery = `
MATCH (a:Airport)
RETURN a.code AS code, a.name AS name, a.city AS city, a.country AS country,
       a.latitude AS latitude, a.longitude AS longitude, a.timeZone AS timeZone,
       coalesce(a.base, false) AS base
ORDER BY code`

	listBaseAirportsQuery = `
MATCH (a:Airport)
WHERE a.base = true
RETURN a.code AS code, a.name AS name, a.city AS city, a.country AS country,
       a.latitude AS latitude, a.longitude AS longitude, a.timeZone AS timeZone,
       true AS base
ORDER BY code`

	candidateColumns = `
RETURN o.code AS outboundOrigin, f1.date AS outboundDate, a.code AS arrival,
       b.code AS departure, f2.date AS returnDate, r.code AS returnOrigin`
)

// The WHERE clauses are assembled once from the fixed filter stages; every
// caller-supplied value reaches Neo4j as a parameter.
var (
	directCandidatesQuery = `
MATCH (o:Airport)-[f1:FLYS_TO]->(a:Airport)-[f2:FLYS_TO]->(r:Airport)
WITH o, f1, a, a AS b, f2, r
WHERE ` + graph.WhereClause(false) + candidateColumns + `, null AS distanceKm`

	detourCandidatesQuery = `
MATCH (o:Airport)-[f1:FLYS_TO]->(a:Airport)-[g:DISTANCE_TO]->(b:Airport)-[f2:FLYS_TO]->(r:Airport)
WHERE ` + graph.WhereClause(true) + candidateColumns + `, g.distance AS distanceKm`
)
