package usecases

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abelzeko/riverflow/internal/entities"
)

func seedCorrectionRiver(t *testing.T, store *memStore, markerMiles ...float64) int64 {
	t.Helper()
	ctx := context.Background()
	river := &entities.River{Slug: "current", Name: "Current River", Vertices: testCourse(), HeadwatersFirst: true, LengthMiles: 34.55}
	require.NoError(t, store.SaveRiver(ctx, river))
	for _, m := range markerMiles {
		require.NoError(t, store.SaveMileMarker(ctx, &entities.MileMarker{RiverID: river.ID, Mile: m}))
	}
	return river.ID
}

func seedAccessPoint(t *testing.T, store *memStore, riverID int64, name string, mile *float64) int64 {
	t.Helper()
	ap := &entities.AccessPoint{RiverID: riverID, Name: name, MileFromHeadwaters: mile}
	require.NoError(t, store.SaveAccessPoint(context.Background(), ap))
	return ap.ID
}

func TestCorrectAccessPointMiles(t *testing.T) {
	store := newMemStore()
	riverID := seedCorrectionRiver(t, store, 0, 10, 20)
	far := seedAccessPoint(t, store, riverID, "Akers Ferry", fptr(11.2))
	near := seedAccessPoint(t, store, riverID, "Pulltite", fptr(19.7))
	none := seedAccessPoint(t, store, riverID, "Unsnapped", nil)

	svc := NewMileCorrectionService(store)
	report, err := svc.CorrectAccessPointMiles(context.Background(), &riverID, 0.5)
	require.NoError(t, err)
	require.Len(t, report, 3)

	byID := map[int64]MileCorrection{}
	for _, c := range report {
		byID[c.AccessPoint.ID] = c
	}

	c := byID[far]
	assert.True(t, c.Corrected)
	assert.InDelta(t, 11.2, *c.OldMile, 1e-9)
	assert.InDelta(t, 10, *c.NewMile, 1e-9)
	require.NotNil(t, c.Reference)
	assert.InDelta(t, 10, c.Reference.Mile, 1e-9)

	c = byID[near]
	assert.False(t, c.Corrected)
	assert.InDelta(t, 19.7, *c.NewMile, 1e-9)

	c = byID[none]
	assert.False(t, c.Corrected)
	assert.Nil(t, c.NewMile)
	assert.Equal(t, "access point has no computed mile", c.Reason)

	stored, err := store.GetAccessPoint(context.Background(), far)
	require.NoError(t, err)
	assert.InDelta(t, 10, *stored.MileFromHeadwaters, 1e-9)
	assert.Equal(t, 1, store.mileUpdates)
}

func TestCorrectAccessPointMiles_Idempotent(t *testing.T) {
	store := newMemStore()
	riverID := seedCorrectionRiver(t, store, 10)
	seedAccessPoint(t, store, riverID, "Akers Ferry", fptr(11.2))
	svc := NewMileCorrectionService(store)

	_, err := svc.CorrectAccessPointMiles(context.Background(), nil, 0.5)
	require.NoError(t, err)
	report, err := svc.CorrectAccessPointMiles(context.Background(), nil, 0.5)
	require.NoError(t, err)

	require.Len(t, report, 1)
	assert.False(t, report[0].Corrected)
	assert.Equal(t, 1, store.mileUpdates)
}

func TestCorrectAccessPointMiles_ExactToleranceUnchanged(t *testing.T) {
	store := newMemStore()
	riverID := seedCorrectionRiver(t, store, 10)
	seedAccessPoint(t, store, riverID, "Edge", fptr(10.5))

	report, err := NewMileCorrectionService(store).CorrectAccessPointMiles(context.Background(), nil, 0.5)
	require.NoError(t, err)
	require.Len(t, report, 1)
	assert.False(t, report[0].Corrected)
	assert.Zero(t, store.mileUpdates)
}

func TestCheckAccessPointMiles_ReportsWithoutWriting(t *testing.T) {
	store := newMemStore()
	riverID := seedCorrectionRiver(t, store, 0, 10)
	seedAccessPoint(t, store, riverID, "Akers Ferry", fptr(11.2))

	report, err := NewMileCorrectionService(store).CheckAccessPointMiles(context.Background(), &riverID)
	require.NoError(t, err)
	require.Len(t, report, 1)
	assert.False(t, report[0].Corrected)
	assert.InDelta(t, 1.2, report[0].DriftMiles, 1e-9)
	assert.InDelta(t, 11.2, *report[0].NewMile, 1e-9)
	assert.Zero(t, store.mileUpdates)
}

func TestCorrectAccessPointMiles_NoMarkers(t *testing.T) {
	store := newMemStore()
	riverID := seedCorrectionRiver(t, store)
	seedAccessPoint(t, store, riverID, "Lonely", fptr(3))

	report, err := NewMileCorrectionService(store).CorrectAccessPointMiles(context.Background(), nil, 0.5)
	require.NoError(t, err)
	require.Len(t, report, 1)
	assert.Equal(t, "river has no mile markers", report[0].Reason)
	assert.Nil(t, report[0].Reference)
}

func TestCorrectAccessPointMiles_InvalidTolerance(t *testing.T) {
	svc := NewMileCorrectionService(newMemStore())
	for _, tol := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		_, err := svc.CorrectAccessPointMiles(context.Background(), nil, tol)
		assert.True(t, errors.Is(err, ErrInvalidTolerance), "tolerance %v", tol)
	}
}

func TestCorrectAccessPointMiles_Cancelled(t *testing.T) {
	store := newMemStore()
	riverID := seedCorrectionRiver(t, store, 10)
	seedAccessPoint(t, store, riverID, "Akers Ferry", fptr(11.2))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report, err := NewMileCorrectionService(store).CorrectAccessPointMiles(ctx, nil, 0.5)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, report)
	assert.Zero(t, store.mileUpdates)
}

func TestNearestMarker_TiePrefersLower(t *testing.T) {
	markers := []entities.MileMarker{{Mile: 10}, {Mile: 12}}
	ref := nearestMarker(markers, 11)
	require.NotNil(t, ref)
	assert.Equal(t, 10.0, ref.Mile)
	assert.Nil(t, nearestMarker(nil, 11))
}
