package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/abelzeko/riverflow/internal/entities"
)

// Pool is the subset of pgxpool.Pool used by PostgresStore.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// PostgresStore implements Store on PostGIS.
type PostgresStore struct {
	pool Pool
}

const postgresMigration = `
CREATE EXTENSION IF NOT EXISTS postgis;

CREATE TABLE IF NOT EXISTS rivers (
	id               BIGSERIAL PRIMARY KEY,
	slug             TEXT NOT NULL UNIQUE,
	name             TEXT NOT NULL,
	geom             geometry(LineString, 4326) NOT NULL,
	headwaters_first BOOLEAN NOT NULL,
	length_miles     DOUBLE PRECISION NOT NULL,
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS mile_markers (
	id          BIGSERIAL PRIMARY KEY,
	river_id    BIGINT NOT NULL REFERENCES rivers(id) ON DELETE CASCADE,
	mile        DOUBLE PRECISION NOT NULL,
	name        TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	lon         DOUBLE PRECISION,
	lat         DOUBLE PRECISION,
	UNIQUE (river_id, mile)
);

CREATE TABLE IF NOT EXISTS access_points (
	id             BIGSERIAL PRIMARY KEY,
	river_id       BIGINT NOT NULL REFERENCES rivers(id) ON DELETE CASCADE,
	name           TEXT NOT NULL,
	orig_lon       DOUBLE PRECISION NOT NULL,
	orig_lat       DOUBLE PRECISION NOT NULL,
	snap_lon       DOUBLE PRECISION,
	snap_lat       DOUBLE PRECISION,
	mile           DOUBLE PRECISION,
	off_line_miles DOUBLE PRECISION,
	approved       BOOLEAN NOT NULL DEFAULT false,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_access_points_river ON access_points (river_id);

CREATE TABLE IF NOT EXISTS gauge_stations (
	id               BIGSERIAL PRIMARY KEY,
	source           TEXT NOT NULL,
	site_id          TEXT NOT NULL,
	name             TEXT NOT NULL,
	lon              DOUBLE PRECISION NOT NULL,
	lat              DOUBLE PRECISION NOT NULL,
	active           BOOLEAN NOT NULL DEFAULT true,
	high_frequency   BOOLEAN NOT NULL DEFAULT false,
	rate_ft_per_hour DOUBLE PRECISION,
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (source, site_id)
);

CREATE TABLE IF NOT EXISTS river_gauges (
	id                               BIGSERIAL PRIMARY KEY,
	river_id                         BIGINT NOT NULL REFERENCES rivers(id) ON DELETE CASCADE,
	station_id                       BIGINT NOT NULL REFERENCES gauge_stations(id) ON DELETE CASCADE,
	is_primary                       BOOLEAN NOT NULL DEFAULT false,
	section_name                     TEXT NOT NULL DEFAULT '',
	too_low                          DOUBLE PRECISION NOT NULL,
	low                              DOUBLE PRECISION NOT NULL,
	optimal_min                      DOUBLE PRECISION NOT NULL,
	optimal_max                      DOUBLE PRECISION NOT NULL,
	high                             DOUBLE PRECISION NOT NULL,
	dangerous                        DOUBLE PRECISION NOT NULL,
	unit                             TEXT NOT NULL,
	distance_from_section_miles      DOUBLE PRECISION,
	accuracy_warning_threshold_miles DOUBLE PRECISION,
	UNIQUE (river_id, station_id)
);

CREATE TABLE IF NOT EXISTS gauge_readings (
	station_id    BIGINT NOT NULL REFERENCES gauge_stations(id) ON DELETE CASCADE,
	ts            TIMESTAMPTZ NOT NULL,
	height_ft     DOUBLE PRECISION,
	discharge_cfs DOUBLE PRECISION,
	PRIMARY KEY (station_id, ts)
);
`

// NewPostgresStore wraps an existing pool.
func NewPostgresStore(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// NewPostgresStoreFromURL connects, pings and migrates a PostGIS database.
func NewPostgresStoreFromURL(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 1
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}

	s := NewPostgresStore(pool)
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	zap.L().Info("postgres: connected", zap.String("host", pgxCfg.ConnConfig.Host))
	return s, nil
}

// Migrate creates the schema if it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresMigration); err != nil {
		return eris.Wrap(err, "postgres: migrate")
	}
	return nil
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func affectedOne(tag pgconn.CommandTag) error {
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveRiver stores a river course keyed by slug.
func (s *PostgresStore) SaveRiver(ctx context.Context, r *entities.River) error {
	geom, err := encodeCourse(r.Vertices)
	if err != nil {
		return err
	}
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = time.Now().UTC()
	}

	err = s.pool.QueryRow(ctx, `
		INSERT INTO rivers (slug, name, geom, headwaters_first, length_miles, updated_at)
		VALUES ($1, $2, ST_GeomFromEWKB($3), $4, $5, $6)
		ON CONFLICT (slug) DO UPDATE SET
			name = EXCLUDED.name,
			geom = EXCLUDED.geom,
			headwaters_first = EXCLUDED.headwaters_first,
			length_miles = EXCLUDED.length_miles,
			updated_at = EXCLUDED.updated_at
		RETURNING id`,
		r.Slug, r.Name, geom, r.HeadwatersFirst, r.LengthMiles, r.UpdatedAt,
	).Scan(&r.ID)
	if err != nil {
		return eris.Wrapf(err, "postgres: save river %s", r.Slug)
	}
	return nil
}

const pgRiverColumns = `id, slug, name, ST_AsEWKB(geom), headwaters_first, length_miles, updated_at`

// GetRiver retrieves a river by ID.
func (s *PostgresStore) GetRiver(ctx context.Context, id int64) (*entities.River, error) {
	return s.scanRiver(s.pool.QueryRow(ctx, `SELECT `+pgRiverColumns+` FROM rivers WHERE id = $1`, id))
}

// GetRiverBySlug retrieves a river by slug.
func (s *PostgresStore) GetRiverBySlug(ctx context.Context, slug string) (*entities.River, error) {
	return s.scanRiver(s.pool.QueryRow(ctx, `SELECT `+pgRiverColumns+` FROM rivers WHERE slug = $1`, slug))
}

// ListRivers returns every river ordered by name.
func (s *PostgresStore) ListRivers(ctx context.Context) ([]entities.River, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+pgRiverColumns+` FROM rivers ORDER BY name`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list rivers")
	}
	defer rows.Close()

	var result []entities.River
	for rows.Next() {
		r, err := s.scanRiver(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *r)
	}
	return result, eris.Wrap(rows.Err(), "postgres: iterate rivers")
}

func (s *PostgresStore) scanRiver(row pgx.Row) (*entities.River, error) {
	var (
		r    entities.River
		geom []byte
	)
	if err := row.Scan(&r.ID, &r.Slug, &r.Name, &geom, &r.HeadwatersFirst, &r.LengthMiles, &r.UpdatedAt); err != nil {
		if err = notFound(err); errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, eris.Wrap(err, "postgres: scan river")
	}
	vertices, err := decodeCourse(geom)
	if err != nil {
		return nil, err
	}
	r.Vertices = vertices
	return &r, nil
}

// SaveMileMarker stores a mile marker keyed by (river, mile).
func (s *PostgresStore) SaveMileMarker(ctx context.Context, m *entities.MileMarker) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO mile_markers (river_id, mile, name, description, lon, lat)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (river_id, mile) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			lon = EXCLUDED.lon,
			lat = EXCLUDED.lat
		RETURNING id`,
		m.RiverID, m.Mile, m.Name, m.Description, coordLon(m.Location), coordLat(m.Location),
	).Scan(&m.ID)
	if err != nil {
		return eris.Wrapf(err, "postgres: save mile marker %.2f on river %d", m.Mile, m.RiverID)
	}
	return nil
}

// ListMileMarkers returns a river's markers ordered by mile.
func (s *PostgresStore) ListMileMarkers(ctx context.Context, riverID int64) ([]entities.MileMarker, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, river_id, mile, name, description, lon, lat
		FROM mile_markers
		WHERE river_id = $1
		ORDER BY mile`, riverID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list mile markers for river %d", riverID)
	}
	defer rows.Close()

	var result []entities.MileMarker
	for rows.Next() {
		var (
			m        entities.MileMarker
			lon, lat *float64
		)
		if err := rows.Scan(&m.ID, &m.RiverID, &m.Mile, &m.Name, &m.Description, &lon, &lat); err != nil {
			return nil, eris.Wrap(err, "postgres: scan mile marker")
		}
		if lon != nil && lat != nil {
			m.Location = &entities.Coord{Lon: *lon, Lat: *lat}
		}
		result = append(result, m)
	}
	return result, eris.Wrap(rows.Err(), "postgres: iterate mile markers")
}

// SaveAccessPoint inserts a new access point or updates an existing one.
func (s *PostgresStore) SaveAccessPoint(ctx context.Context, ap *entities.AccessPoint) error {
	now := time.Now().UTC()
	if ap.CreatedAt.IsZero() {
		ap.CreatedAt = now
	}
	ap.UpdatedAt = now

	if ap.ID == 0 {
		err := s.pool.QueryRow(ctx, `
			INSERT INTO access_points (river_id, name, orig_lon, orig_lat, snap_lon, snap_lat,
				mile, off_line_miles, approved, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			RETURNING id`,
			ap.RiverID, ap.Name, ap.Orig.Lon, ap.Orig.Lat, coordLon(ap.Snap), coordLat(ap.Snap),
			ap.MileFromHeadwaters, ap.DistanceOffLineMiles, ap.Approved, ap.CreatedAt, ap.UpdatedAt,
		).Scan(&ap.ID)
		if err != nil {
			return eris.Wrapf(err, "postgres: insert access point %s", ap.Name)
		}
		return nil
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE access_points SET
			river_id = $1, name = $2, orig_lon = $3, orig_lat = $4, snap_lon = $5, snap_lat = $6,
			mile = $7, off_line_miles = $8, approved = $9, updated_at = $10
		WHERE id = $11`,
		ap.RiverID, ap.Name, ap.Orig.Lon, ap.Orig.Lat, coordLon(ap.Snap), coordLat(ap.Snap),
		ap.MileFromHeadwaters, ap.DistanceOffLineMiles, ap.Approved, ap.UpdatedAt, ap.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update access point %d", ap.ID)
	}
	return affectedOne(tag)
}

const pgAccessPointColumns = `id, river_id, name, orig_lon, orig_lat, snap_lon, snap_lat,
	mile, off_line_miles, approved, created_at, updated_at`

// GetAccessPoint retrieves an access point by ID.
func (s *PostgresStore) GetAccessPoint(ctx context.Context, id int64) (*entities.AccessPoint, error) {
	return scanPgAccessPoint(s.pool.QueryRow(ctx,
		`SELECT `+pgAccessPointColumns+` FROM access_points WHERE id = $1`, id))
}

// ListAccessPoints returns access points ordered by ID.
func (s *PostgresStore) ListAccessPoints(ctx context.Context, riverID *int64) ([]entities.AccessPoint, error) {
	query := `SELECT ` + pgAccessPointColumns + ` FROM access_points`
	var args []any
	if riverID != nil {
		query += ` WHERE river_id = $1`
		args = append(args, *riverID)
	}
	query += ` ORDER BY id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list access points")
	}
	defer rows.Close()

	var result []entities.AccessPoint
	for rows.Next() {
		ap, err := scanPgAccessPoint(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ap)
	}
	return result, eris.Wrap(rows.Err(), "postgres: iterate access points")
}

func scanPgAccessPoint(row pgx.Row) (*entities.AccessPoint, error) {
	var (
		ap               entities.AccessPoint
		snapLon, snapLat *float64
	)
	err := row.Scan(&ap.ID, &ap.RiverID, &ap.Name, &ap.Orig.Lon, &ap.Orig.Lat, &snapLon, &snapLat,
		&ap.MileFromHeadwaters, &ap.DistanceOffLineMiles, &ap.Approved, &ap.CreatedAt, &ap.UpdatedAt)
	if err != nil {
		if err = notFound(err); errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, eris.Wrap(err, "postgres: scan access point")
	}
	if snapLon != nil && snapLat != nil {
		ap.Snap = &entities.Coord{Lon: *snapLon, Lat: *snapLat}
	}
	return &ap, nil
}

// UpdateAccessPointMile overwrites only the river mile of an access point.
func (s *PostgresStore) UpdateAccessPointMile(ctx context.Context, id int64, mile float64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE access_points SET mile = $1, updated_at = now() WHERE id = $2`, mile, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: update mile for access point %d", id)
	}
	return affectedOne(tag)
}

// ApproveAccessPoint marks an access point approved.
func (s *PostgresStore) ApproveAccessPoint(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE access_points SET approved = true, updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: approve access point %d", id)
	}
	return affectedOne(tag)
}

// SaveGaugeStation stores a station keyed by (source, site ID).
func (s *PostgresStore) SaveGaugeStation(ctx context.Context, st *entities.GaugeStation) error {
	if st.UpdatedAt.IsZero() {
		st.UpdatedAt = time.Now().UTC()
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO gauge_stations (source, site_id, name, lon, lat, active, high_frequency,
			rate_ft_per_hour, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (source, site_id) DO UPDATE SET
			name = EXCLUDED.name,
			lon = EXCLUDED.lon,
			lat = EXCLUDED.lat,
			active = EXCLUDED.active,
			updated_at = EXCLUDED.updated_at
		RETURNING id`,
		st.Source, st.SiteID, st.Name, st.Location.Lon, st.Location.Lat, st.Active,
		st.HighFrequency, st.RateFtPerHour, st.UpdatedAt,
	).Scan(&st.ID)
	if err != nil {
		return eris.Wrapf(err, "postgres: save gauge station %s:%s", st.Source, st.SiteID)
	}
	return nil
}

const pgStationColumns = `id, source, site_id, name, lon, lat, active, high_frequency,
	rate_ft_per_hour, updated_at`

// GetGaugeStation retrieves a station by ID.
func (s *PostgresStore) GetGaugeStation(ctx context.Context, id int64) (*entities.GaugeStation, error) {
	return scanPgStation(s.pool.QueryRow(ctx,
		`SELECT `+pgStationColumns+` FROM gauge_stations WHERE id = $1`, id))
}

// ListGaugeStations returns every station ordered by ID.
func (s *PostgresStore) ListGaugeStations(ctx context.Context) ([]entities.GaugeStation, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+pgStationColumns+` FROM gauge_stations ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list gauge stations")
	}
	defer rows.Close()

	var result []entities.GaugeStation
	for rows.Next() {
		st, err := scanPgStation(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *st)
	}
	return result, eris.Wrap(rows.Err(), "postgres: iterate gauge stations")
}

func scanPgStation(row pgx.Row) (*entities.GaugeStation, error) {
	var st entities.GaugeStation
	err := row.Scan(&st.ID, &st.Source, &st.SiteID, &st.Name, &st.Location.Lon, &st.Location.Lat,
		&st.Active, &st.HighFrequency, &st.RateFtPerHour, &st.UpdatedAt)
	if err != nil {
		if err = notFound(err); errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, eris.Wrap(err, "postgres: scan gauge station")
	}
	return &st, nil
}

// SetHighFrequency records the polling decision for a station.
func (s *PostgresStore) SetHighFrequency(ctx context.Context, id int64, high bool, rateFtPerHour *float64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE gauge_stations SET high_frequency = $1, rate_ft_per_hour = $2, updated_at = now() WHERE id = $3`,
		high, rateFtPerHour, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: set polling frequency for station %d", id)
	}
	return affectedOne(tag)
}

// SaveRiverGauge stores a river/station association.
func (s *PostgresStore) SaveRiverGauge(ctx context.Context, g *entities.RiverGauge) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin transaction")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if g.IsPrimary {
		_, err := tx.Exec(ctx,
			`UPDATE river_gauges SET is_primary = false WHERE river_id = $1 AND station_id <> $2`,
			g.RiverID, g.StationID)
		if err != nil {
			return eris.Wrapf(err, "postgres: demote primary gauge on river %d", g.RiverID)
		}
	}

	t := g.Thresholds
	err = tx.QueryRow(ctx, `
		INSERT INTO river_gauges (river_id, station_id, is_primary, section_name,
			too_low, low, optimal_min, optimal_max, high, dangerous, unit,
			distance_from_section_miles, accuracy_warning_threshold_miles)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (river_id, station_id) DO UPDATE SET
			is_primary = EXCLUDED.is_primary,
			section_name = EXCLUDED.section_name,
			too_low = EXCLUDED.too_low,
			low = EXCLUDED.low,
			optimal_min = EXCLUDED.optimal_min,
			optimal_max = EXCLUDED.optimal_max,
			high = EXCLUDED.high,
			dangerous = EXCLUDED.dangerous,
			unit = EXCLUDED.unit,
			distance_from_section_miles = EXCLUDED.distance_from_section_miles,
			accuracy_warning_threshold_miles = EXCLUDED.accuracy_warning_threshold_miles
		RETURNING id`,
		g.RiverID, g.StationID, g.IsPrimary, g.SectionName,
		t.TooLow, t.Low, t.OptimalMin, t.OptimalMax, t.High, t.Dangerous, string(t.Unit),
		g.DistanceFromSectionMiles, g.AccuracyWarningThresholdMiles,
	).Scan(&g.ID)
	if err != nil {
		return eris.Wrapf(err, "postgres: save gauge %d for river %d", g.StationID, g.RiverID)
	}

	if err := tx.Commit(ctx); err != nil {
		return eris.Wrap(err, "postgres: commit river gauge")
	}
	return nil
}

// ListRiverGauges returns a river's gauges, primary first.
func (s *PostgresStore) ListRiverGauges(ctx context.Context, riverID int64) ([]entities.RiverGauge, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, river_id, station_id, is_primary, section_name,
			too_low, low, optimal_min, optimal_max, high, dangerous, unit,
			distance_from_section_miles, accuracy_warning_threshold_miles
		FROM river_gauges
		WHERE river_id = $1
		ORDER BY is_primary DESC, id`, riverID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list gauges for river %d", riverID)
	}
	defer rows.Close()

	var result []entities.RiverGauge
	for rows.Next() {
		var (
			g    entities.RiverGauge
			unit string
		)
		t := &g.Thresholds
		err := rows.Scan(&g.ID, &g.RiverID, &g.StationID, &g.IsPrimary, &g.SectionName,
			&t.TooLow, &t.Low, &t.OptimalMin, &t.OptimalMax, &t.High, &t.Dangerous, &unit,
			&g.DistanceFromSectionMiles, &g.AccuracyWarningThresholdMiles)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan river gauge")
		}
		t.Unit = entities.Unit(unit)
		result = append(result, g)
	}
	return result, eris.Wrap(rows.Err(), "postgres: iterate river gauges")
}

// SaveReadings upserts gauge readings in one transaction.
func (s *PostgresStore) SaveReadings(ctx context.Context, readings []entities.GaugeReading) error {
	if len(readings) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin transaction")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, r := range readings {
		_, err := tx.Exec(ctx, `
			INSERT INTO gauge_readings (station_id, ts, height_ft, discharge_cfs)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (station_id, ts) DO UPDATE SET
				height_ft = EXCLUDED.height_ft,
				discharge_cfs = EXCLUDED.discharge_cfs`,
			r.StationID, r.Timestamp.UTC(), r.HeightFt, r.DischargeCfs)
		if err != nil {
			return eris.Wrapf(err, "postgres: insert reading for station %d at %s",
				r.StationID, r.Timestamp.Format(time.RFC3339))
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return eris.Wrap(err, "postgres: commit readings")
	}
	zap.L().Debug("postgres: saved gauge readings", zap.Int("count", len(readings)))
	return nil
}

// LatestReading returns the most recent reading for a station.
func (s *PostgresStore) LatestReading(ctx context.Context, stationID int64) (*entities.GaugeReading, error) {
	var r entities.GaugeReading
	err := s.pool.QueryRow(ctx, `
		SELECT station_id, ts, height_ft, discharge_cfs
		FROM gauge_readings
		WHERE station_id = $1
		ORDER BY ts DESC
		LIMIT 1`, stationID).Scan(&r.StationID, &r.Timestamp, &r.HeightFt, &r.DischargeCfs)
	if err != nil {
		if err = notFound(err); errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, eris.Wrapf(err, "postgres: latest reading for station %d", stationID)
	}
	r.Timestamp = r.Timestamp.UTC()
	return &r, nil
}

// ReadingsSince returns a station's readings at or after since, oldest first.
func (s *PostgresStore) ReadingsSince(ctx context.Context, stationID int64, since time.Time) ([]entities.GaugeReading, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT station_id, ts, height_ft, discharge_cfs
		FROM gauge_readings
		WHERE station_id = $1 AND ts >= $2
		ORDER BY ts`, stationID, since.UTC())
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: readings for station %d", stationID)
	}
	defer rows.Close()

	var result []entities.GaugeReading
	for rows.Next() {
		var r entities.GaugeReading
		if err := rows.Scan(&r.StationID, &r.Timestamp, &r.HeightFt, &r.DischargeCfs); err != nil {
			return nil, eris.Wrap(err, "postgres: scan reading")
		}
		r.Timestamp = r.Timestamp.UTC()
		result = append(result, r)
	}
	return result, eris.Wrap(rows.Err(), "postgres: iterate readings")
}
