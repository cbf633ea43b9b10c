package usecases

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/abelzeko/riverflow/internal/condition"
	"github.com/abelzeko/riverflow/internal/entities"
	"github.com/abelzeko/riverflow/internal/georef"
	"github.com/abelzeko/riverflow/internal/repository"
)

// ErrNoPrimaryGauge is returned when a river has no primary gauge to fall back on.
var ErrNoPrimaryGauge = eris.New("usecases: river has no primary gauge")

// GaugeSelection is a gauge chosen for a river or river segment
type GaugeSelection struct {
	Gauge           entities.RiverGauge
	Station         entities.GaugeStation
	PutInMile       *float64 // Set for segment-aware selection
	StationMile     *float64 // Station's projected mile, when it snaps to the river
	DistanceMiles   *float64 // Configured distance used to rank the gauge
	Fallback        bool     // True when the primary was used for lack of candidates
	AccuracyWarning bool
	AccuracyReason  string
}

// RiverCondition is the classified state of a river or segment
type RiverCondition struct {
	River     entities.River
	Selection GaugeSelection
	Reading   *entities.GaugeReading
	Result    condition.Result
}

// GaugeUseCase selects gauges for rivers and classifies their readings
type GaugeUseCase struct {
	store      repository.Store
	staleAfter time.Duration
	now        func() time.Time
}

// NewGaugeUseCase creates a new gauge use case
func NewGaugeUseCase(store repository.Store, staleAfter time.Duration) *GaugeUseCase {
	return &GaugeUseCase{store: store, staleAfter: staleAfter, now: time.Now}
}

// SaveStation registers or updates a gauge station
func (uc *GaugeUseCase) SaveStation(ctx context.Context, st *entities.GaugeStation) error {
	st.SiteID = strings.TrimSpace(st.SiteID)
	if st.SiteID == "" {
		return eris.New("usecases: station site ID is required")
	}
	switch st.Source {
	case entities.SourceUSGS, entities.SourceHTML:
	default:
		return eris.Errorf("usecases: unknown station source %q", st.Source)
	}
	return uc.store.SaveGaugeStation(ctx, st)
}

// LinkGauge associates a station with a river after validating its thresholds
func (uc *GaugeUseCase) LinkGauge(ctx context.Context, g *entities.RiverGauge) error {
	if err := condition.Validate(g.Thresholds); err != nil {
		return err
	}
	if _, err := uc.store.GetRiver(ctx, g.RiverID); err != nil {
		return eris.Wrapf(err, "river %d", g.RiverID)
	}
	if _, err := uc.store.GetGaugeStation(ctx, g.StationID); err != nil {
		return eris.Wrapf(err, "station %d", g.StationID)
	}
	return uc.store.SaveRiverGauge(ctx, g)
}

// SelectGauge returns the river's primary gauge, or with putIn set, the
// association closest to that put-in
func (uc *GaugeUseCase) SelectGauge(ctx context.Context, riverID int64, putIn *entities.Coord) (*GaugeSelection, error) {
	ranked, err := uc.ListGauges(ctx, riverID, putIn)
	if err != nil {
		return nil, err
	}
	return &ranked[0], nil
}

// ListGauges returns the river's gauges with the selected one first
func (uc *GaugeUseCase) ListGauges(ctx context.Context, riverID int64, putIn *entities.Coord) ([]GaugeSelection, error) {
	river, err := uc.store.GetRiver(ctx, riverID)
	if err != nil {
		return nil, err
	}
	gauges, err := uc.store.ListRiverGauges(ctx, riverID)
	if err != nil {
		return nil, err
	}

	selections := make([]GaugeSelection, 0, len(gauges))
	for _, g := range gauges {
		st, err := uc.store.GetGaugeStation(ctx, g.StationID)
		if err != nil {
			return nil, eris.Wrapf(err, "station %d", g.StationID)
		}
		selections = append(selections, GaugeSelection{Gauge: g, Station: *st})
	}

	primary := -1
	for i, s := range selections {
		if s.Gauge.IsPrimary {
			primary = i
			break
		}
	}

	if putIn == nil {
		if primary < 0 {
			return nil, eris.Wrapf(ErrNoPrimaryGauge, "river %s", river.Slug)
		}
		ordered := append([]GaugeSelection{selections[primary]}, without(selections, primary)...)
		return ordered, nil
	}

	proj, err := georef.ProjectOntoRiver(river, *putIn)
	if err != nil {
		return nil, err
	}
	putInMile := proj.MileFromHeadwaters

	// Only an active station with a configured section distance is a
	// candidate. The station's projected distance breaks ties.
	candidates := 0
	for i := range selections {
		s := &selections[i]
		s.PutInMile = &putInMile
		if sp, err := georef.ProjectOntoRiver(river, s.Station.Location); err == nil {
			mile := sp.MileFromHeadwaters
			s.StationMile = &mile
		}
		if d := s.Gauge.DistanceFromSectionMiles; d != nil && s.Station.Active {
			dist := *d
			s.DistanceMiles = &dist
			candidates++
		}
	}

	if candidates == 0 {
		if primary < 0 {
			return nil, eris.Wrapf(ErrNoPrimaryGauge, "river %s has no gauge near mile %.2f", river.Slug, putInMile)
		}
		selections[primary].Fallback = true
		ordered := append([]GaugeSelection{selections[primary]}, without(selections, primary)...)
		return ordered, nil
	}

	sort.SliceStable(selections, func(i, j int) bool {
		a, b := selections[i], selections[j]
		switch {
		case (a.DistanceMiles == nil) != (b.DistanceMiles == nil):
			return a.DistanceMiles != nil
		case a.DistanceMiles != nil && *a.DistanceMiles != *b.DistanceMiles:
			return *a.DistanceMiles < *b.DistanceMiles
		case a.Station.Active != b.Station.Active:
			return a.Station.Active
		}
		da, db := a.projectedDistance(), b.projectedDistance()
		switch {
		case da != db:
			return da < db
		case a.Gauge.IsPrimary != b.Gauge.IsPrimary:
			return a.Gauge.IsPrimary
		default:
			return a.Gauge.ID < b.Gauge.ID
		}
	})

	chosen := &selections[0]
	if limit := chosen.Gauge.AccuracyWarningThresholdMiles; limit != nil && *chosen.DistanceMiles > *limit {
		chosen.AccuracyWarning = true
		chosen.AccuracyReason = fmt.Sprintf("gauge %s is %.1f mi from the put-in at mile %.1f, beyond its %.1f mi accuracy range",
			chosen.Station.Name, *chosen.DistanceMiles, putInMile, *limit)
	}
	return selections, nil
}

// projectedDistance is the along-river distance between the station and the
// put-in, or +Inf when the station did not snap.
func (s GaugeSelection) projectedDistance() float64 {
	if s.StationMile == nil || s.PutInMile == nil {
		return math.Inf(1)
	}
	return math.Abs(*s.StationMile - *s.PutInMile)
}

func without(s []GaugeSelection, i int) []GaugeSelection {
	out := make([]GaugeSelection, 0, len(s)-1)
	out = append(out, s[:i]...)
	return append(out, s[i+1:]...)
}

// RiverCondition selects a gauge and classifies its latest reading
func (uc *GaugeUseCase) RiverCondition(ctx context.Context, riverID int64, putIn *entities.Coord) (*RiverCondition, error) {
	river, err := uc.store.GetRiver(ctx, riverID)
	if err != nil {
		return nil, err
	}
	sel, err := uc.SelectGauge(ctx, riverID, putIn)
	if err != nil {
		return nil, err
	}
	if err := condition.Validate(sel.Gauge.Thresholds); err != nil {
		return nil, err
	}

	reading, err := uc.store.LatestReading(ctx, sel.Station.ID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	result := condition.Classify(reading, sel.Gauge.Thresholds, uc.now(), uc.staleAfter)
	if result.Stale || result.Code == condition.CodeUnknown {
		zap.L().Info("river condition is low confidence",
			zap.String("river", river.Slug),
			zap.String("site_id", sel.Station.SiteID),
			zap.String("code", result.Code),
			zap.String("reason", result.Reason),
		)
	}
	return &RiverCondition{River: *river, Selection: *sel, Reading: reading, Result: result}, nil
}
