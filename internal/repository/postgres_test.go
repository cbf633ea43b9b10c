package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abelzeko/riverflow/internal/entities"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })
	return NewPostgresStore(mock), mock
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE EXTENSION IF NOT EXISTS postgis`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveRiver(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	r := &entities.River{
		Slug:            "current-river",
		Name:            "Current River",
		Vertices:        []entities.Coord{{Lon: -91.5, Lat: 37.5}, {Lon: -91.2, Lat: 37.0}},
		HeadwatersFirst: true,
		LengthMiles:     34.5,
	}
	mock.ExpectQuery(`(?s)INSERT INTO rivers .* ST_GeomFromEWKB\(\$3\)`).
		WithArgs("current-river", "Current River", pgxmock.AnyArg(), true, 34.5, pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(7)))

	require.NoError(t, s.SaveRiver(context.Background(), r))
	assert.Equal(t, int64(7), r.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRiverBySlug(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	vertices := []entities.Coord{{Lon: -91.5, Lat: 37.5}, {Lon: -91.2, Lat: 37.0}}
	geom, err := encodeCourse(vertices)
	require.NoError(t, err)
	updated := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT id, slug, name, ST_AsEWKB\(geom\).* FROM rivers WHERE slug = \$1`).
		WithArgs("current-river").
		WillReturnRows(pgxmock.NewRows([]string{"id", "slug", "name", "geom", "headwaters_first", "length_miles", "updated_at"}).
			AddRow(int64(7), "current-river", "Current River", geom, true, 34.5, updated))

	got, err := s.GetRiverBySlug(context.Background(), "current-river")
	require.NoError(t, err)
	assert.Equal(t, vertices, got.Vertices)
	assert.Equal(t, updated, got.UpdatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRiver_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM rivers WHERE id = \$1`).
		WithArgs(int64(9)).
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetRiver(context.Background(), 9)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveRiverGauge_DemotesPrimary(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	g := &entities.RiverGauge{
		RiverID:    1,
		StationID:  2,
		IsPrimary:  true,
		Thresholds: entities.Thresholds{TooLow: 1, Low: 1.5, OptimalMin: 2, OptimalMax: 3.5, High: 5, Dangerous: 8, Unit: entities.UnitFeet},
	}

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE river_gauges SET is_primary = false`).
		WithArgs(int64(1), int64(2)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectQuery(`INSERT INTO river_gauges`).
		WithArgs(int64(1), int64(2), true, "", 1.0, 1.5, 2.0, 3.5, 5.0, 8.0, "ft", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(11)))
	mock.ExpectCommit()

	require.NoError(t, s.SaveRiverGauge(context.Background(), g))
	assert.Equal(t, int64(11), g.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveReadings(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	ts := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	h := 3.2
	mock.ExpectBegin()
	mock.ExpectExec(`(?s)INSERT INTO gauge_readings .* ON CONFLICT \(station_id, ts\)`).
		WithArgs(int64(4), ts, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	err := s.SaveReadings(context.Background(), []entities.GaugeReading{{StationID: 4, Timestamp: ts, HeightFt: &h}})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveReadings_BeginError(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin().WillReturnError(errors.New("db error"))

	err := s.SaveReadings(context.Background(), []entities.GaugeReading{{StationID: 4, Timestamp: time.Now()}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "begin transaction")
}

func TestPostgresStore_ReadingsSince(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	since := time.Date(2025, 5, 1, 11, 0, 0, 0, time.UTC)
	h1, h2 := 3.0, 3.5
	mock.ExpectQuery(`FROM gauge_readings\s+WHERE station_id = \$1 AND ts >= \$2`).
		WithArgs(int64(4), since).
		WillReturnRows(pgxmock.NewRows([]string{"station_id", "ts", "height_ft", "discharge_cfs"}).
			AddRow(int64(4), since, &h1, (*float64)(nil)).
			AddRow(int64(4), since.Add(time.Hour), &h2, (*float64)(nil)))

	readings, err := s.ReadingsSince(context.Background(), 4, since)
	require.NoError(t, err)
	require.Len(t, readings, 2)
	assert.Equal(t, 3.5, *readings[1].HeightFt)
	assert.Nil(t, readings[0].DischargeCfs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SetHighFrequency_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE gauge_stations SET high_frequency`).
		WithArgs(true, pgxmock.AnyArg(), int64(99)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.SetHighFrequency(context.Background(), 99, true, nil)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
