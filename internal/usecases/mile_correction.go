package usecases

import (
	"context"
	"fmt"
	"math"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/abelzeko/riverflow/internal/entities"
	"github.com/abelzeko/riverflow/internal/metrics"
	"github.com/abelzeko/riverflow/internal/repository"
)

// ErrInvalidTolerance is returned for a non-positive correction tolerance.
var ErrInvalidTolerance = eris.New("usecases: correction tolerance must be positive")

// MileCorrection is the audit record for one access point
type MileCorrection struct {
	AccessPoint entities.AccessPoint
	OldMile     *float64
	NewMile     *float64
	Corrected   bool
	Reference   *entities.MileMarker
	DriftMiles  float64 // Distance from the reference marker before any correction
	Reason      string
}

// MileCorrectionService replaces unreliable snapped miles with nearby
// authoritative mile-marker values
type MileCorrectionService struct {
	store repository.Store
}

// NewMileCorrectionService creates a new correction service
func NewMileCorrectionService(store repository.Store) *MileCorrectionService {
	return &MileCorrectionService{store: store}
}

// CorrectAccessPointMiles compares every access point (optionally one
// river's) with its nearest mile marker and, when they differ by more than
// toleranceMiles, overwrites the access point's mile with the marker's.
// Each correction is committed on its own; on cancellation the report built
// so far is returned with the context error.
func (s *MileCorrectionService) CorrectAccessPointMiles(ctx context.Context, riverID *int64, toleranceMiles float64) ([]MileCorrection, error) {
	if !(toleranceMiles > 0) || math.IsInf(toleranceMiles, 0) {
		return nil, eris.Wrapf(ErrInvalidTolerance, "got %v", toleranceMiles)
	}
	return s.reconcile(ctx, riverID, toleranceMiles, true)
}

// CheckAccessPointMiles reports how far each access point's mile is from its
// nearest mile marker without changing anything.
func (s *MileCorrectionService) CheckAccessPointMiles(ctx context.Context, riverID *int64) ([]MileCorrection, error) {
	return s.reconcile(ctx, riverID, 0, false)
}

func (s *MileCorrectionService) reconcile(ctx context.Context, riverID *int64, toleranceMiles float64, apply bool) ([]MileCorrection, error) {
	points, err := s.store.ListAccessPoints(ctx, riverID)
	if err != nil {
		return nil, err
	}

	markersByRiver := make(map[int64][]entities.MileMarker)
	report := make([]MileCorrection, 0, len(points))
	corrected := 0

	for _, ap := range points {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		c := MileCorrection{AccessPoint: ap, OldMile: ap.MileFromHeadwaters, NewMile: ap.MileFromHeadwaters}
		if !ap.HasMile() {
			c.Reason = "access point has no computed mile"
			report = append(report, c)
			continue
		}

		markers, ok := markersByRiver[ap.RiverID]
		if !ok {
			markers, err = s.store.ListMileMarkers(ctx, ap.RiverID)
			if err != nil {
				return report, err
			}
			markersByRiver[ap.RiverID] = markers
		}
		ref := nearestMarker(markers, *ap.MileFromHeadwaters)
		if ref == nil {
			c.Reason = "river has no mile markers"
			report = append(report, c)
			continue
		}
		c.Reference = ref

		diff := math.Abs(ref.Mile - *ap.MileFromHeadwaters)
		c.DriftMiles = diff
		if !apply {
			c.Reason = fmt.Sprintf("%.2f mi from marker at mile %.2f", diff, ref.Mile)
			report = append(report, c)
			continue
		}
		if diff <= toleranceMiles {
			c.Reason = fmt.Sprintf("within %.2f mi of marker at mile %.2f", toleranceMiles, ref.Mile)
			report = append(report, c)
			continue
		}

		if err := s.store.UpdateAccessPointMile(ctx, ap.ID, ref.Mile); err != nil {
			return report, err
		}
		newMile := ref.Mile
		c.NewMile = &newMile
		c.Corrected = true
		c.Reason = fmt.Sprintf("snapped mile %.2f is %.2f mi from marker at mile %.2f", *ap.MileFromHeadwaters, diff, ref.Mile)
		report = append(report, c)
		corrected++
		metrics.MilesCorrected.Inc()

		zap.L().Info("corrected access point mile",
			zap.Int64("access_point_id", ap.ID),
			zap.String("name", ap.Name),
			zap.Float64("old_mile", *ap.MileFromHeadwaters),
			zap.Float64("new_mile", ref.Mile),
		)
	}

	if !apply {
		return report, nil
	}
	zap.L().Info("mile correction finished",
		zap.Int("access_points", len(points)),
		zap.Int("corrected", corrected),
		zap.Float64("tolerance_miles", toleranceMiles),
	)
	return report, nil
}

// nearestMarker returns the marker closest to mile. Markers must be sorted by
// mile; on a tie the lower marker wins.
func nearestMarker(markers []entities.MileMarker, mile float64) *entities.MileMarker {
	var (
		best     *entities.MileMarker
		bestDiff float64
	)
	for i := range markers {
		d := math.Abs(markers[i].Mile - mile)
		if best == nil || d < bestDiff {
			best = &markers[i]
			bestDiff = d
		}
	}
	if best == nil {
		return nil
	}
	ref := *best
	return &ref
}
