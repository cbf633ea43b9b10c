package repository

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/abelzeko/riverflow/internal/entities"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS rivers (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	slug TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL,
	geom BLOB NOT NULL,
	headwaters_first INTEGER NOT NULL,
	length_miles REAL NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS mile_markers (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	river_id INTEGER NOT NULL REFERENCES rivers(id) ON DELETE CASCADE,
	mile REAL NOT NULL,
	name TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	lon REAL,
	lat REAL,
	UNIQUE(river_id, mile)
);
CREATE TABLE IF NOT EXISTS access_points (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	river_id INTEGER NOT NULL REFERENCES rivers(id) ON DELETE CASCADE,
	name TEXT NOT NULL,
	orig_lon REAL NOT NULL,
	orig_lat REAL NOT NULL,
	snap_lon REAL,
	snap_lat REAL,
	mile REAL,
	off_line_miles REAL,
	approved INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_access_points_river ON access_points(river_id);
CREATE TABLE IF NOT EXISTS gauge_stations (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	source TEXT NOT NULL,
	site_id TEXT NOT NULL,
	name TEXT NOT NULL,
	lon REAL NOT NULL,
	lat REAL NOT NULL,
	active INTEGER NOT NULL DEFAULT 1,
	high_frequency INTEGER NOT NULL DEFAULT 0,
	rate_ft_per_hour REAL,
	updated_at INTEGER NOT NULL,
	UNIQUE(source, site_id)
);
CREATE TABLE IF NOT EXISTS river_gauges (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	river_id INTEGER NOT NULL REFERENCES rivers(id) ON DELETE CASCADE,
	station_id INTEGER NOT NULL REFERENCES gauge_stations(id) ON DELETE CASCADE,
	is_primary INTEGER NOT NULL DEFAULT 0,
	section_name TEXT NOT NULL DEFAULT '',
	too_low REAL NOT NULL,
	low REAL NOT NULL,
	optimal_min REAL NOT NULL,
	optimal_max REAL NOT NULL,
	high REAL NOT NULL,
	dangerous REAL NOT NULL,
	unit TEXT NOT NULL,
	distance_from_section_miles REAL,
	accuracy_warning_threshold_miles REAL,
	UNIQUE(river_id, station_id)
);
CREATE TABLE IF NOT EXISTS gauge_readings (
	station_id INTEGER NOT NULL REFERENCES gauge_stations(id) ON DELETE CASCADE,
	ts INTEGER NOT NULL,
	height_ft REAL,
	discharge_cfs REAL,
	PRIMARY KEY (station_id, ts)
);`

// SQLiteStore implements Store using SQLite
type SQLiteStore struct {
	db     *sql.DB
	DBPath string
}

// NewSQLiteStore creates and initializes a new SQLite store
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = filepath.Join("data", "riverflow.db")
	}
	if isFilePath(dbPath) {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, eris.Wrap(err, "failed to create database directory")
		}
	}

	zap.L().Info("opening database", zap.String("path", dbPath))
	db, err := sql.Open("sqlite3", sqliteDSN(dbPath))
	if err != nil {
		return nil, eris.Wrap(err, "failed to open database")
	}
	// One writer avoids SQLITE_BUSY between concurrent ingestion workers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, eris.Wrap(err, "failed to create tables")
	}

	return &SQLiteStore{
		db:     db,
		DBPath: dbPath,
	}, nil
}

// isFilePath reports whether path names a plain file rather than an
// in-memory database or a file: URI.
func isFilePath(path string) bool {
	return !strings.HasPrefix(path, ":memory:") && !strings.HasPrefix(path, "file:")
}

func sqliteDSN(path string) string {
	if strings.Contains(path, "?") {
		return path
	}
	return path + "?_foreign_keys=on&_busy_timeout=5000"
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// SaveRiver stores a river course keyed by slug
func (s *SQLiteStore) SaveRiver(ctx context.Context, r *entities.River) error {
	geom, err := encodeCourse(r.Vertices)
	if err != nil {
		return err
	}
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = time.Now().UTC()
	}

	err = s.db.QueryRowContext(ctx, `
		INSERT INTO rivers(slug, name, geom, headwaters_first, length_miles, updated_at)
		VALUES(?, ?, ?, ?, ?, ?)
		ON CONFLICT(slug) DO UPDATE SET
		name=excluded.name,
		geom=excluded.geom,
		headwaters_first=excluded.headwaters_first,
		length_miles=excluded.length_miles,
		updated_at=excluded.updated_at
		RETURNING id`,
		r.Slug, r.Name, geom, r.HeadwatersFirst, r.LengthMiles, r.UpdatedAt.Unix(),
	).Scan(&r.ID)
	if err != nil {
		return eris.Wrapf(err, "failed to save river %s", r.Slug)
	}
	return nil
}

const riverColumns = `id, slug, name, geom, headwaters_first, length_miles, updated_at`

// GetRiver retrieves a river by ID
func (s *SQLiteStore) GetRiver(ctx context.Context, id int64) (*entities.River, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+riverColumns+` FROM rivers WHERE id = ?`, id)
	return scanRiver(row)
}

// GetRiverBySlug retrieves a river by slug
func (s *SQLiteStore) GetRiverBySlug(ctx context.Context, slug string) (*entities.River, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+riverColumns+` FROM rivers WHERE slug = ?`, slug)
	return scanRiver(row)
}

// ListRivers returns every river ordered by name
func (s *SQLiteStore) ListRivers(ctx context.Context) ([]entities.River, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+riverColumns+` FROM rivers ORDER BY name`)
	if err != nil {
		return nil, eris.Wrap(err, "failed to query rivers")
	}
	defer rows.Close()

	var result []entities.River
	for rows.Next() {
		r, err := scanRiver(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "error during row iteration")
	}
	return result, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRiver(row rowScanner) (*entities.River, error) {
	var (
		r       entities.River
		geom    []byte
		updated int64
	)
	if err := row.Scan(&r.ID, &r.Slug, &r.Name, &geom, &r.HeadwatersFirst, &r.LengthMiles, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrap(err, "failed to scan river")
	}
	vertices, err := decodeCourse(geom)
	if err != nil {
		return nil, err
	}
	r.Vertices = vertices
	r.UpdatedAt = time.Unix(updated, 0).UTC()
	return &r, nil
}

// SaveMileMarker stores a mile marker keyed by (river, mile)
func (s *SQLiteStore) SaveMileMarker(ctx context.Context, m *entities.MileMarker) error {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO mile_markers(river_id, mile, name, description, lon, lat)
		VALUES(?, ?, ?, ?, ?, ?)
		ON CONFLICT(river_id, mile) DO UPDATE SET
		name=excluded.name,
		description=excluded.description,
		lon=excluded.lon,
		lat=excluded.lat
		RETURNING id`,
		m.RiverID, m.Mile, m.Name, m.Description, coordLon(m.Location), coordLat(m.Location),
	).Scan(&m.ID)
	if err != nil {
		return eris.Wrapf(err, "failed to save mile marker %.2f on river %d", m.Mile, m.RiverID)
	}
	return nil
}

// ListMileMarkers returns a river's markers ordered by mile
func (s *SQLiteStore) ListMileMarkers(ctx context.Context, riverID int64) ([]entities.MileMarker, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, river_id, mile, name, description, lon, lat
		FROM mile_markers
		WHERE river_id = ?
		ORDER BY mile`, riverID)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to query mile markers for river %d", riverID)
	}
	defer rows.Close()

	var result []entities.MileMarker
	for rows.Next() {
		var (
			m        entities.MileMarker
			lon, lat sql.NullFloat64
		)
		if err := rows.Scan(&m.ID, &m.RiverID, &m.Mile, &m.Name, &m.Description, &lon, &lat); err != nil {
			return nil, eris.Wrap(err, "failed to scan mile marker")
		}
		m.Location = coordOrNil(lon.Valid, lon.Float64, lat.Valid, lat.Float64)
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "error during row iteration")
	}
	return result, nil
}

// SaveAccessPoint inserts a new access point or updates an existing one
func (s *SQLiteStore) SaveAccessPoint(ctx context.Context, ap *entities.AccessPoint) error {
	now := time.Now().UTC()
	if ap.CreatedAt.IsZero() {
		ap.CreatedAt = now
	}
	ap.UpdatedAt = now

	if ap.ID == 0 {
		err := s.db.QueryRowContext(ctx, `
			INSERT INTO access_points(river_id, name, orig_lon, orig_lat, snap_lon, snap_lat,
				mile, off_line_miles, approved, created_at, updated_at)
			VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			RETURNING id`,
			ap.RiverID, ap.Name, ap.Orig.Lon, ap.Orig.Lat, coordLon(ap.Snap), coordLat(ap.Snap),
			ap.MileFromHeadwaters, ap.DistanceOffLineMiles, ap.Approved,
			ap.CreatedAt.Unix(), ap.UpdatedAt.Unix(),
		).Scan(&ap.ID)
		if err != nil {
			return eris.Wrapf(err, "failed to insert access point %s", ap.Name)
		}
		return nil
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE access_points SET
		river_id=?, name=?, orig_lon=?, orig_lat=?, snap_lon=?, snap_lat=?,
		mile=?, off_line_miles=?, approved=?, updated_at=?
		WHERE id = ?`,
		ap.RiverID, ap.Name, ap.Orig.Lon, ap.Orig.Lat, coordLon(ap.Snap), coordLat(ap.Snap),
		ap.MileFromHeadwaters, ap.DistanceOffLineMiles, ap.Approved, ap.UpdatedAt.Unix(), ap.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "failed to update access point %d", ap.ID)
	}
	return expectOneRow(res)
}

const accessPointColumns = `id, river_id, name, orig_lon, orig_lat, snap_lon, snap_lat,
	mile, off_line_miles, approved, created_at, updated_at`

// GetAccessPoint retrieves an access point by ID
func (s *SQLiteStore) GetAccessPoint(ctx context.Context, id int64) (*entities.AccessPoint, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+accessPointColumns+` FROM access_points WHERE id = ?`, id)
	return scanAccessPoint(row)
}

// ListAccessPoints returns access points ordered by ID
func (s *SQLiteStore) ListAccessPoints(ctx context.Context, riverID *int64) ([]entities.AccessPoint, error) {
	query := `SELECT ` + accessPointColumns + ` FROM access_points`
	var args []any
	if riverID != nil {
		query += ` WHERE river_id = ?`
		args = append(args, *riverID)
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "failed to query access points")
	}
	defer rows.Close()

	var result []entities.AccessPoint
	for rows.Next() {
		ap, err := scanAccessPoint(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ap)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "error during row iteration")
	}
	return result, nil
}

func scanAccessPoint(row rowScanner) (*entities.AccessPoint, error) {
	var (
		ap               entities.AccessPoint
		snapLon, snapLat sql.NullFloat64
		mile, offLine    sql.NullFloat64
		created, updated int64
	)
	err := row.Scan(&ap.ID, &ap.RiverID, &ap.Name, &ap.Orig.Lon, &ap.Orig.Lat, &snapLon, &snapLat,
		&mile, &offLine, &ap.Approved, &created, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrap(err, "failed to scan access point")
	}
	ap.Snap = coordOrNil(snapLon.Valid, snapLon.Float64, snapLat.Valid, snapLat.Float64)
	ap.MileFromHeadwaters = nullableFloat(mile.Valid, mile.Float64)
	ap.DistanceOffLineMiles = nullableFloat(offLine.Valid, offLine.Float64)
	ap.CreatedAt = time.Unix(created, 0).UTC()
	ap.UpdatedAt = time.Unix(updated, 0).UTC()
	return &ap, nil
}

// UpdateAccessPointMile overwrites only the river mile of an access point
func (s *SQLiteStore) UpdateAccessPointMile(ctx context.Context, id int64, mile float64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE access_points SET mile = ?, updated_at = ? WHERE id = ?`,
		mile, time.Now().UTC().Unix(), id)
	if err != nil {
		return eris.Wrapf(err, "failed to update mile for access point %d", id)
	}
	return expectOneRow(res)
}

// ApproveAccessPoint marks an access point approved
func (s *SQLiteStore) ApproveAccessPoint(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE access_points SET approved = 1, updated_at = ? WHERE id = ?`,
		time.Now().UTC().Unix(), id)
	if err != nil {
		return eris.Wrapf(err, "failed to approve access point %d", id)
	}
	return expectOneRow(res)
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "failed to read affected rows")
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveGaugeStation stores a station keyed by (source, site ID)
func (s *SQLiteStore) SaveGaugeStation(ctx context.Context, st *entities.GaugeStation) error {
	if st.UpdatedAt.IsZero() {
		st.UpdatedAt = time.Now().UTC()
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO gauge_stations(source, site_id, name, lon, lat, active, high_frequency,
			rate_ft_per_hour, updated_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source, site_id) DO UPDATE SET
		name=excluded.name,
		lon=excluded.lon,
		lat=excluded.lat,
		active=excluded.active,
		updated_at=excluded.updated_at
		RETURNING id`,
		st.Source, st.SiteID, st.Name, st.Location.Lon, st.Location.Lat, st.Active,
		st.HighFrequency, st.RateFtPerHour, st.UpdatedAt.Unix(),
	).Scan(&st.ID)
	if err != nil {
		return eris.Wrapf(err, "failed to save gauge station %s:%s", st.Source, st.SiteID)
	}
	return nil
}

const stationColumns = `id, source, site_id, name, lon, lat, active, high_frequency,
	rate_ft_per_hour, updated_at`

// GetGaugeStation retrieves a station by ID
func (s *SQLiteStore) GetGaugeStation(ctx context.Context, id int64) (*entities.GaugeStation, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+stationColumns+` FROM gauge_stations WHERE id = ?`, id)
	return scanStation(row)
}

// ListGaugeStations returns every station ordered by ID
func (s *SQLiteStore) ListGaugeStations(ctx context.Context) ([]entities.GaugeStation, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+stationColumns+` FROM gauge_stations ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "failed to query gauge stations")
	}
	defer rows.Close()

	var result []entities.GaugeStation
	for rows.Next() {
		st, err := scanStation(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *st)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "error during row iteration")
	}
	return result, nil
}

func scanStation(row rowScanner) (*entities.GaugeStation, error) {
	var (
		st      entities.GaugeStation
		rate    sql.NullFloat64
		updated int64
	)
	err := row.Scan(&st.ID, &st.Source, &st.SiteID, &st.Name, &st.Location.Lon, &st.Location.Lat,
		&st.Active, &st.HighFrequency, &rate, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrap(err, "failed to scan gauge station")
	}
	st.RateFtPerHour = nullableFloat(rate.Valid, rate.Float64)
	st.UpdatedAt = time.Unix(updated, 0).UTC()
	return &st, nil
}

// SetHighFrequency records the polling decision for a station
func (s *SQLiteStore) SetHighFrequency(ctx context.Context, id int64, high bool, rateFtPerHour *float64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE gauge_stations SET high_frequency = ?, rate_ft_per_hour = ?, updated_at = ? WHERE id = ?`,
		high, rateFtPerHour, time.Now().UTC().Unix(), id)
	if err != nil {
		return eris.Wrapf(err, "failed to set polling frequency for station %d", id)
	}
	return expectOneRow(res)
}

// SaveRiverGauge stores a river/station association
func (s *SQLiteStore) SaveRiverGauge(ctx context.Context, g *entities.RiverGauge) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	if g.IsPrimary {
		_, err := tx.ExecContext(ctx,
			`UPDATE river_gauges SET is_primary = 0 WHERE river_id = ? AND station_id <> ?`,
			g.RiverID, g.StationID)
		if err != nil {
			return eris.Wrapf(err, "failed to demote primary gauge on river %d", g.RiverID)
		}
	}

	t := g.Thresholds
	err = tx.QueryRowContext(ctx, `
		INSERT INTO river_gauges(river_id, station_id, is_primary, section_name,
			too_low, low, optimal_min, optimal_max, high, dangerous, unit,
			distance_from_section_miles, accuracy_warning_threshold_miles)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(river_id, station_id) DO UPDATE SET
		is_primary=excluded.is_primary,
		section_name=excluded.section_name,
		too_low=excluded.too_low,
		low=excluded.low,
		optimal_min=excluded.optimal_min,
		optimal_max=excluded.optimal_max,
		high=excluded.high,
		dangerous=excluded.dangerous,
		unit=excluded.unit,
		distance_from_section_miles=excluded.distance_from_section_miles,
		accuracy_warning_threshold_miles=excluded.accuracy_warning_threshold_miles
		RETURNING id`,
		g.RiverID, g.StationID, g.IsPrimary, g.SectionName,
		t.TooLow, t.Low, t.OptimalMin, t.OptimalMax, t.High, t.Dangerous, string(t.Unit),
		g.DistanceFromSectionMiles, g.AccuracyWarningThresholdMiles,
	).Scan(&g.ID)
	if err != nil {
		return eris.Wrapf(err, "failed to save gauge %d for river %d", g.StationID, g.RiverID)
	}

	if err := tx.Commit(); err != nil {
		return eris.Wrap(err, "failed to commit transaction")
	}
	return nil
}

// ListRiverGauges returns a river's gauges, primary first
func (s *SQLiteStore) ListRiverGauges(ctx context.Context, riverID int64) ([]entities.RiverGauge, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, river_id, station_id, is_primary, section_name,
			too_low, low, optimal_min, optimal_max, high, dangerous, unit,
			distance_from_section_miles, accuracy_warning_threshold_miles
		FROM river_gauges
		WHERE river_id = ?
		ORDER BY is_primary DESC, id`, riverID)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to query gauges for river %d", riverID)
	}
	defer rows.Close()

	var result []entities.RiverGauge
	for rows.Next() {
		var (
			g              entities.RiverGauge
			unit           string
			dist, accuracy sql.NullFloat64
		)
		t := &g.Thresholds
		err := rows.Scan(&g.ID, &g.RiverID, &g.StationID, &g.IsPrimary, &g.SectionName,
			&t.TooLow, &t.Low, &t.OptimalMin, &t.OptimalMax, &t.High, &t.Dangerous, &unit,
			&dist, &accuracy)
		if err != nil {
			return nil, eris.Wrap(err, "failed to scan river gauge")
		}
		t.Unit = entities.Unit(unit)
		g.DistanceFromSectionMiles = nullableFloat(dist.Valid, dist.Float64)
		g.AccuracyWarningThresholdMiles = nullableFloat(accuracy.Valid, accuracy.Float64)
		result = append(result, g)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "error during row iteration")
	}
	return result, nil
}

// SaveReadings stores gauge readings in the database
func (s *SQLiteStore) SaveReadings(ctx context.Context, readings []entities.GaugeReading) error {
	if len(readings) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO gauge_readings(station_id, ts, height_ft, discharge_cfs)
		VALUES(?, ?, ?, ?)
		ON CONFLICT(station_id, ts) DO UPDATE SET
		height_ft=excluded.height_ft,
		discharge_cfs=excluded.discharge_cfs
	`)
	if err != nil {
		return eris.Wrap(err, "failed to prepare statement")
	}
	defer stmt.Close()

	for _, r := range readings {
		if _, err := stmt.ExecContext(ctx, r.StationID, r.Timestamp.Unix(), r.HeightFt, r.DischargeCfs); err != nil {
			return eris.Wrapf(err, "failed to insert reading for station %d at %s",
				r.StationID, r.Timestamp.Format(time.RFC3339))
		}
	}

	if err := tx.Commit(); err != nil {
		return eris.Wrap(err, "failed to commit transaction")
	}

	zap.L().Debug("saved gauge readings", zap.Int("count", len(readings)))
	return nil
}

// LatestReading returns the most recent reading for a station
func (s *SQLiteStore) LatestReading(ctx context.Context, stationID int64) (*entities.GaugeReading, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT station_id, ts, height_ft, discharge_cfs
		FROM gauge_readings
		WHERE station_id = ?
		ORDER BY ts DESC
		LIMIT 1`, stationID)
	r, err := scanReading(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return r, err
}

// ReadingsSince returns a station's readings at or after since, oldest first
func (s *SQLiteStore) ReadingsSince(ctx context.Context, stationID int64, since time.Time) ([]entities.GaugeReading, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT station_id, ts, height_ft, discharge_cfs
		FROM gauge_readings
		WHERE station_id = ? AND ts >= ?
		ORDER BY ts`, stationID, since.Unix())
	if err != nil {
		return nil, eris.Wrapf(err, "failed to query readings for station %d", stationID)
	}
	defer rows.Close()

	var result []entities.GaugeReading
	for rows.Next() {
		r, err := scanReading(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "error during row iteration")
	}
	return result, nil
}

func scanReading(row rowScanner) (*entities.GaugeReading, error) {
	var (
		r                 entities.GaugeReading
		ts                int64
		height, discharge sql.NullFloat64
	)
	if err := row.Scan(&r.StationID, &ts, &height, &discharge); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, eris.Wrap(err, "failed to scan reading")
	}
	r.Timestamp = time.Unix(ts, 0).UTC()
	r.HeightFt = nullableFloat(height.Valid, height.Float64)
	r.DischargeCfs = nullableFloat(discharge.Valid, discharge.Float64)
	return &r, nil
}
