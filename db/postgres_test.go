package db

import (
	"database/sql"
	"database/sql/driver"
	"reflect"
	"testing"
	"time"

	"github.com/gilby125/tripfinder/config"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRow feeds driver-style values through Scan the way database/sql does.
type fakeRow struct {
	values []any
}

func (r fakeRow) Scan(dest ...interface{}) error {
	for i, d := range dest {
		if scanner, ok := d.(sql.Scanner); ok {
			if err := scanner.Scan(r.values[i]); err != nil {
				return err
			}
			continue
		}
		reflect.ValueOf(d).Elem().Set(reflect.ValueOf(r.values[i]))
	}
	return nil
}

func TestScanSearchRecord(t *testing.T) {
	id := uuid.New()
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	row := fakeRow{values: []any{
		id.String(), created,
		[]byte("{SNN}"), []byte("{SNN,DUB}"),
		[]byte("{2026-03-25}"), []byte("{2026-03-29}"),
		[]byte("{2,3,4}"),
		[]byte("{Ireland,Poland}"), nil,
		true, nil, 2, "EUR",
		12, 30, 1, 89.5, int64(1500),
	}}

	rec, err := scanSearchRecord(row)
	require.NoError(t, err)

	assert.Equal(t, id, rec.ID)
	assert.Equal(t, created, rec.CreatedAt)
	assert.Equal(t, []string{"SNN", "DUB"}, rec.ReturnOrigins)
	assert.Equal(t, []int64{2, 3, 4}, rec.StayLengths)
	assert.Equal(t, []string{"Ireland", "Poland"}, rec.BlacklistCountries)
	assert.Nil(t, rec.WhitelistCountries)
	assert.Nil(t, rec.MaxDistanceKm)
	require.NotNil(t, rec.CheapestFare)
	assert.Equal(t, 89.5, *rec.CheapestFare)
	assert.Equal(t, 2, rec.Adults)
	assert.Equal(t, 1, rec.FailedCandidates)
}

func TestSearchArgs_NullableColumns(t *testing.T) {
	dist := 150.0
	args := searchArgs(SearchRecord{ID: uuid.New(), MaxDistanceKm: &dist, Currency: "EUR"})
	require.Len(t, args, 18)

	maxDistance, err := args[10].(driver.Valuer).Value()
	require.NoError(t, err)
	assert.Equal(t, 150.0, maxDistance)

	cheapest, err := args[16].(driver.Valuer).Value()
	require.NoError(t, err)
	assert.Nil(t, cheapest)
}

func TestConnString(t *testing.T) {
	cfg := config.PostgresConfig{Host: "db", Port: "5432", User: "u", Password: "p", DBName: "trips", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=trips sslmode=disable", ConnString(cfg))

	cfg.SSLRootCert = "/etc/ca.pem"
	assert.Contains(t, ConnString(cfg), "sslrootcert=/etc/ca.pem")
}

func TestLoadMigrations(t *testing.T) {
	migrations, err := loadMigrations()
	require.NoError(t, err)
	require.NotEmpty(t, migrations)
	assert.Equal(t, "001_search_history.sql", migrations[0].version)
	assert.Contains(t, migrations[0].sql, "CREATE TABLE IF NOT EXISTS search_history")
	assert.Len(t, migrations[0].checksum, 64)
}
