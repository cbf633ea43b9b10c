// Package integration handles external service interactions
package integration

import (
	"context"
	"errors"
	"math"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/abelzeko/riverflow/internal/entities"
	"github.com/abelzeko/riverflow/internal/metrics"
)

// ErrUpstreamFetch is returned when a water-data source cannot be read.
var ErrUpstreamFetch = eris.New("integration: upstream fetch failed")

// Physical ranges outside of which a sensor value is treated as garbage.
const (
	MinHeightFt     = -100.0
	MaxHeightFt     = 500.0
	MinDischargeCfs = 0.0
	MaxDischargeCfs = 1_000_000.0
)

// SiteReading is a reading keyed by the upstream agency's site ID
type SiteReading struct {
	SiteID       string
	Timestamp    time.Time
	HeightFt     *float64
	DischargeCfs *float64
}

// GaugeSource fetches the latest readings for a set of upstream sites
type GaugeSource interface {
	Name() string
	FetchLatest(ctx context.Context, siteIDs []string) ([]SiteReading, error)
}

// SanitizeReading drops values outside the physical range. The reading is
// kept when at least one value survives.
func SanitizeReading(r SiteReading) (SiteReading, bool) {
	if r.HeightFt != nil && !inRange(*r.HeightFt, MinHeightFt, MaxHeightFt) {
		zap.L().Warn("discarding out-of-range gauge height",
			zap.String("site_id", r.SiteID),
			zap.Float64("height_ft", *r.HeightFt),
			zap.Time("timestamp", r.Timestamp),
		)
		metrics.ValuesDiscarded.WithLabelValues("height_ft").Inc()
		r.HeightFt = nil
	}
	if r.DischargeCfs != nil && !inRange(*r.DischargeCfs, MinDischargeCfs, MaxDischargeCfs) {
		zap.L().Warn("discarding out-of-range discharge",
			zap.String("site_id", r.SiteID),
			zap.Float64("discharge_cfs", *r.DischargeCfs),
			zap.Time("timestamp", r.Timestamp),
		)
		metrics.ValuesDiscarded.WithLabelValues("discharge_cfs").Inc()
		r.DischargeCfs = nil
	}
	return r, r.HeightFt != nil || r.DischargeCfs != nil
}

func inRange(v, lo, hi float64) bool {
	return !math.IsNaN(v) && v >= lo && v <= hi
}

// MultiSource routes stations to the GaugeSource named by their Source field
type MultiSource struct {
	sources map[string]GaugeSource
}

// NewMultiSource registers sources under their Name().
func NewMultiSource(sources ...GaugeSource) *MultiSource {
	m := &MultiSource{sources: make(map[string]GaugeSource, len(sources))}
	for _, s := range sources {
		m.sources[s.Name()] = s
	}
	return m
}

// Names returns the registered source names in sorted order.
func (m *MultiSource) Names() []string {
	names := make([]string, 0, len(m.sources))
	for name := range m.sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FetchStations fetches and sanitizes the latest readings for stations.
// Readings from sources that succeeded are returned alongside an
// ErrUpstreamFetch-wrapped error describing the sources that failed.
func (m *MultiSource) FetchStations(ctx context.Context, stations []entities.GaugeStation) ([]entities.GaugeReading, error) {
	bySource := make(map[string]map[string]int64)
	var order []string
	for _, st := range stations {
		sites, ok := bySource[st.Source]
		if !ok {
			sites = make(map[string]int64)
			bySource[st.Source] = sites
			order = append(order, st.Source)
		}
		sites[st.SiteID] = st.ID
	}

	var (
		out  []entities.GaugeReading
		errs []error
	)
	for _, name := range order {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		sites := bySource[name]
		src, ok := m.sources[name]
		if !ok {
			errs = append(errs, eris.Wrapf(ErrUpstreamFetch, "no source registered for %q", name))
			continue
		}

		ids := make([]string, 0, len(sites))
		for id := range sites {
			ids = append(ids, id)
		}
		readings, err := src.FetchLatest(ctx, ids)
		if err != nil {
			metrics.UpstreamFailures.WithLabelValues(name).Inc()
			zap.L().Error("gauge source fetch failed", zap.String("source", name), zap.Error(err))
			errs = append(errs, err)
		}

		for _, r := range readings {
			stationID, ok := sites[r.SiteID]
			if !ok {
				continue
			}
			clean, keep := SanitizeReading(r)
			if !keep {
				continue
			}
			out = append(out, entities.GaugeReading{
				StationID:    stationID,
				Timestamp:    clean.Timestamp.UTC(),
				HeightFt:     clean.HeightFt,
				DischargeCfs: clean.DischargeCfs,
			})
		}
	}

	if len(errs) > 0 {
		return out, errors.Join(errs...)
	}
	return out, nil
}
