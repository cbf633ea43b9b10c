// Package usecases contains the application's business logic
package usecases

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/abelzeko/riverflow/internal/entities"
	"github.com/abelzeko/riverflow/internal/georef"
	"github.com/abelzeko/riverflow/internal/repository"
)

// ErrNonMonotonicMarker is returned when a located marker would break the
// mile ordering of its neighbours along the river.
var ErrNonMonotonicMarker = eris.New("usecases: mile marker out of order along the river")

// RiverUseCase handles business logic related to river geometry and access points
type RiverUseCase struct {
	store               repository.Store
	offLineWarningMiles float64
}

// NewRiverUseCase creates a new river use case
func NewRiverUseCase(store repository.Store, offLineWarningMiles float64) *RiverUseCase {
	return &RiverUseCase{
		store:               store,
		offLineWarningMiles: offLineWarningMiles,
	}
}

// ImportRiver validates and stores a river course, re-snaps everything
// referenced onto it and re-validates access point miles against the river's
// mile markers. See RevalidateMiles for the meaning of toleranceMiles.
func (uc *RiverUseCase) ImportRiver(ctx context.Context, slug, name string, vertices []entities.Coord, headwatersFirst bool, toleranceMiles *float64) (*entities.River, []MileCorrection, error) {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return nil, nil, eris.New("usecases: river slug is required")
	}
	if err := georef.ValidateGeometry(vertices); err != nil {
		return nil, nil, eris.Wrapf(err, "river %s", slug)
	}

	river := &entities.River{
		Slug:            slug,
		Name:            name,
		Vertices:        vertices,
		HeadwatersFirst: headwatersFirst,
		LengthMiles:     georef.LengthMiles(vertices),
		UpdatedAt:       time.Now().UTC(),
	}
	if err := uc.store.SaveRiver(ctx, river); err != nil {
		return nil, nil, err
	}
	zap.L().Info("imported river",
		zap.String("slug", slug),
		zap.Int("vertices", len(vertices)),
		zap.Float64("length_miles", river.LengthMiles),
	)

	if _, err := uc.ResnapRiver(ctx, river.ID); err != nil {
		return river, nil, err
	}
	report, err := uc.RevalidateMiles(ctx, river.ID, toleranceMiles)
	return river, report, err
}

// RevalidateMiles reconciles the river's access point miles with its mile
// markers. With toleranceMiles set, miles farther than that from the nearest
// marker are corrected. Without it nothing is written and the drift of every
// access point is returned and logged.
func (uc *RiverUseCase) RevalidateMiles(ctx context.Context, riverID int64, toleranceMiles *float64) ([]MileCorrection, error) {
	svc := NewMileCorrectionService(uc.store)
	if toleranceMiles != nil {
		return svc.CorrectAccessPointMiles(ctx, &riverID, *toleranceMiles)
	}

	report, err := svc.CheckAccessPointMiles(ctx, &riverID)
	for _, c := range report {
		if c.Reference == nil || c.DriftMiles == 0 {
			continue
		}
		zap.L().Warn("access point mile differs from nearest marker",
			zap.Int64("access_point_id", c.AccessPoint.ID),
			zap.String("name", c.AccessPoint.Name),
			zap.Float64("mile", *c.OldMile),
			zap.Float64("marker_mile", c.Reference.Mile),
			zap.Float64("drift_miles", c.DriftMiles),
		)
	}
	return report, err
}

// ListRivers returns every river
func (uc *RiverUseCase) ListRivers(ctx context.Context) ([]entities.River, error) {
	return uc.store.ListRivers(ctx)
}

// RiverBySlug returns a single river
func (uc *RiverUseCase) RiverBySlug(ctx context.Context, slug string) (*entities.River, error) {
	return uc.store.GetRiverBySlug(ctx, slug)
}

// AddMileMarker records an authoritative river-mile checkpoint and
// re-validates the river's access point miles against it. See
// RevalidateMiles for the meaning of toleranceMiles.
func (uc *RiverUseCase) AddMileMarker(ctx context.Context, m entities.MileMarker, toleranceMiles *float64) (*entities.MileMarker, []MileCorrection, error) {
	river, err := uc.store.GetRiver(ctx, m.RiverID)
	if err != nil {
		return nil, nil, err
	}
	if m.Mile < 0 || m.Mile > river.LengthMiles {
		return nil, nil, eris.Wrapf(georef.ErrMileOutOfRange, "mile %.2f on %s (length %.2f)", m.Mile, river.Slug, river.LengthMiles)
	}

	if m.Location != nil {
		existing, err := uc.store.ListMileMarkers(ctx, river.ID)
		if err != nil {
			return nil, nil, err
		}
		if err := checkMarkerOrder(river, existing, m); err != nil {
			return nil, nil, err
		}
	}

	if err := uc.store.SaveMileMarker(ctx, &m); err != nil {
		return nil, nil, err
	}
	report, err := uc.RevalidateMiles(ctx, river.ID, toleranceMiles)
	return &m, report, err
}

// checkMarkerOrder ensures a located marker projects between its located
// neighbours in the same order as their mile values.
func checkMarkerOrder(river *entities.River, existing []entities.MileMarker, m entities.MileMarker) error {
	proj, err := georef.ProjectOntoRiver(river, *m.Location)
	if err != nil {
		return err
	}

	for _, other := range existing {
		if other.Location == nil || other.Mile == m.Mile {
			continue
		}
		op, err := georef.ProjectOntoRiver(river, *other.Location)
		if err != nil {
			return err
		}
		if (other.Mile < m.Mile) != (op.MileFromHeadwaters < proj.MileFromHeadwaters) {
			return eris.Wrapf(ErrNonMonotonicMarker,
				"mile %.2f projects to %.2f but marker %.2f projects to %.2f",
				m.Mile, proj.MileFromHeadwaters, other.Mile, op.MileFromHeadwaters)
		}
	}
	return nil
}

// CreateAccessPoint snaps a new, unapproved access point onto its river
func (uc *RiverUseCase) CreateAccessPoint(ctx context.Context, riverID int64, name string, orig entities.Coord) (*entities.AccessPoint, error) {
	river, err := uc.store.GetRiver(ctx, riverID)
	if err != nil {
		return nil, err
	}

	ap := &entities.AccessPoint{RiverID: riverID, Name: name, Orig: orig}
	if err := uc.snap(river, ap); err != nil {
		return nil, err
	}
	if err := uc.store.SaveAccessPoint(ctx, ap); err != nil {
		return nil, err
	}
	return ap, nil
}

// MoveAccessPoint changes an access point's entered coordinate and re-snaps it
func (uc *RiverUseCase) MoveAccessPoint(ctx context.Context, id int64, orig entities.Coord) (*entities.AccessPoint, error) {
	ap, err := uc.store.GetAccessPoint(ctx, id)
	if err != nil {
		return nil, err
	}
	river, err := uc.store.GetRiver(ctx, ap.RiverID)
	if err != nil {
		return nil, err
	}

	ap.Orig = orig
	if err := uc.snap(river, ap); err != nil {
		return nil, err
	}
	if err := uc.store.SaveAccessPoint(ctx, ap); err != nil {
		return nil, err
	}
	return ap, nil
}

// ApproveAccessPoint publishes an access point
func (uc *RiverUseCase) ApproveAccessPoint(ctx context.Context, id int64) error {
	return uc.store.ApproveAccessPoint(ctx, id)
}

// ResnapRiver re-projects every access point of a river, returning how many were updated
func (uc *RiverUseCase) ResnapRiver(ctx context.Context, riverID int64) (int, error) {
	river, err := uc.store.GetRiver(ctx, riverID)
	if err != nil {
		return 0, err
	}
	points, err := uc.store.ListAccessPoints(ctx, &riverID)
	if err != nil {
		return 0, err
	}

	updated := 0
	for i := range points {
		if err := ctx.Err(); err != nil {
			return updated, err
		}
		ap := &points[i]
		if err := uc.snap(river, ap); err != nil {
			return updated, err
		}
		if err := uc.store.SaveAccessPoint(ctx, ap); err != nil {
			return updated, err
		}
		updated++
	}

	zap.L().Info("re-snapped access points", zap.String("river", river.Slug), zap.Int("count", updated))
	return updated, nil
}

// VerifyDirection checks the river's HeadwatersFirst flag against located mile markers
func (uc *RiverUseCase) VerifyDirection(ctx context.Context, riverID int64) (georef.DirectionCheck, error) {
	river, err := uc.store.GetRiver(ctx, riverID)
	if err != nil {
		return georef.DirectionCheck{}, err
	}
	markers, err := uc.store.ListMileMarkers(ctx, riverID)
	if err != nil {
		return georef.DirectionCheck{}, err
	}
	check, err := georef.VerifyDirection(river, markers)
	if err != nil {
		return check, err
	}
	if !check.Agrees {
		zap.L().Warn("river direction disagrees with mile markers",
			zap.String("river", river.Slug),
			zap.Bool("headwaters_first", river.HeadwatersFirst),
			zap.Int("markers_used", check.MarkersUsed),
		)
	}
	return check, nil
}

func (uc *RiverUseCase) snap(river *entities.River, ap *entities.AccessPoint) error {
	proj, err := georef.ProjectOntoRiver(river, ap.Orig)
	if err != nil {
		return eris.Wrapf(err, "snap access point %q", ap.Name)
	}
	snapped := proj.Snapped
	mile := proj.MileFromHeadwaters
	offLine := proj.DistanceOffLineMiles
	ap.Snap = &snapped
	ap.MileFromHeadwaters = &mile
	ap.DistanceOffLineMiles = &offLine

	if uc.offLineWarningMiles > 0 && offLine > uc.offLineWarningMiles {
		zap.L().Warn("access point is far from its river",
			zap.String("river", river.Slug),
			zap.String("access_point", ap.Name),
			zap.Float64("off_line_miles", offLine),
		)
	}
	return nil
}

// FormatMile renders a river mile for display
func FormatMile(mile *float64) string {
	if mile == nil {
		return "mile unknown"
	}
	return fmt.Sprintf("mile %.1f", *mile)
}
