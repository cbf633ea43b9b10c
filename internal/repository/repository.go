// Package repository provides data access implementations
package repository

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/abelzeko/riverflow/internal/entities"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = eris.New("repository: not found")

// RiverRepository persists river geometry and mile-marker references
type RiverRepository interface {
	// SaveRiver inserts or updates a river keyed by slug and sets its ID.
	SaveRiver(ctx context.Context, r *entities.River) error
	GetRiver(ctx context.Context, id int64) (*entities.River, error)
	GetRiverBySlug(ctx context.Context, slug string) (*entities.River, error)
	ListRivers(ctx context.Context) ([]entities.River, error)
	// SaveMileMarker inserts or updates a marker keyed by (river, mile).
	SaveMileMarker(ctx context.Context, m *entities.MileMarker) error
	// ListMileMarkers returns a river's markers ordered by mile.
	ListMileMarkers(ctx context.Context, riverID int64) ([]entities.MileMarker, error)
}

// AccessPointRepository persists access points
type AccessPointRepository interface {
	SaveAccessPoint(ctx context.Context, ap *entities.AccessPoint) error
	GetAccessPoint(ctx context.Context, id int64) (*entities.AccessPoint, error)
	// ListAccessPoints returns every access point, or only one river's when riverID is set.
	ListAccessPoints(ctx context.Context, riverID *int64) ([]entities.AccessPoint, error)
	UpdateAccessPointMile(ctx context.Context, id int64, mile float64) error
	ApproveAccessPoint(ctx context.Context, id int64) error
}

// GaugeRepository persists gauge stations and their river associations
type GaugeRepository interface {
	// SaveGaugeStation inserts or updates a station keyed by (source, site ID).
	SaveGaugeStation(ctx context.Context, s *entities.GaugeStation) error
	GetGaugeStation(ctx context.Context, id int64) (*entities.GaugeStation, error)
	ListGaugeStations(ctx context.Context) ([]entities.GaugeStation, error)
	SetHighFrequency(ctx context.Context, id int64, high bool, rateFtPerHour *float64) error
	// SaveRiverGauge inserts or updates an association keyed by (river, station).
	// Saving a primary association demotes any other primary on the same river.
	SaveRiverGauge(ctx context.Context, g *entities.RiverGauge) error
	ListRiverGauges(ctx context.Context, riverID int64) ([]entities.RiverGauge, error)
}

// ReadingRepository persists the gauge reading time series
type ReadingRepository interface {
	// SaveReadings upserts readings on (station, timestamp).
	SaveReadings(ctx context.Context, readings []entities.GaugeReading) error
	LatestReading(ctx context.Context, stationID int64) (*entities.GaugeReading, error)
	// ReadingsSince returns readings at or after since, oldest first.
	ReadingsSince(ctx context.Context, stationID int64, since time.Time) ([]entities.GaugeReading, error)
}

// Store combines every repository behind one connection
type Store interface {
	RiverRepository
	AccessPointRepository
	GaugeRepository
	ReadingRepository
	Close() error
}

// Open connects to the store selected by driver ("sqlite" or "postgres").
func Open(ctx context.Context, driver, databaseURL string) (Store, error) {
	switch driver {
	case "sqlite", "sqlite3":
		s, err := NewSQLiteStore(databaseURL)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "postgres", "postgresql":
		s, err := NewPostgresStoreFromURL(ctx, databaseURL)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, eris.Errorf("repository: unknown driver %q", driver)
	}
}

func nullableFloat(valid bool, v float64) *float64 {
	if !valid {
		return nil
	}
	return &v
}

func coordOrNil(lonValid bool, lon float64, latValid bool, lat float64) *entities.Coord {
	if !lonValid || !latValid {
		return nil
	}
	return &entities.Coord{Lon: lon, Lat: lat}
}

func coordLon(c *entities.Coord) *float64 {
	if c == nil {
		return nil
	}
	return &c.Lon
}

func coordLat(c *entities.Coord) *float64 {
	if c == nil {
		return nil
	}
	return &c.Lat
}
