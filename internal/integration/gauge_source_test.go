package integration

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abelzeko/riverflow/internal/entities"
	"github.com/abelzeko/riverflow/internal/metrics"
)

func fptr(v float64) *float64 { return &v }

func TestSanitizeReading(t *testing.T) {
	ts := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name          string
		in            SiteReading
		keep          bool
		wantHeight    bool
		wantDischarge bool
	}{
		{"both valid", SiteReading{HeightFt: fptr(3.2), DischargeCfs: fptr(400)}, true, true, true},
		{"height too high", SiteReading{HeightFt: fptr(501), DischargeCfs: fptr(400)}, true, false, true},
		{"negative discharge", SiteReading{HeightFt: fptr(3.2), DischargeCfs: fptr(-1)}, true, true, false},
		{"both out of range", SiteReading{HeightFt: fptr(-101), DischargeCfs: fptr(2e6)}, false, false, false},
		{"NaN height", SiteReading{HeightFt: fptr(math.NaN())}, false, false, false},
		{"bounds inclusive", SiteReading{HeightFt: fptr(-100), DischargeCfs: fptr(1_000_000)}, true, true, true},
		{"nothing reported", SiteReading{}, false, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.in.SiteID = "07064533"
			tt.in.Timestamp = ts
			out, keep := SanitizeReading(tt.in)
			assert.Equal(t, tt.keep, keep)
			assert.Equal(t, tt.wantHeight, out.HeightFt != nil)
			assert.Equal(t, tt.wantDischarge, out.DischargeCfs != nil)
		})
	}
}

func TestSanitizeReading_CountsDiscards(t *testing.T) {
	before := testutil.ToFloat64(metrics.ValuesDiscarded.WithLabelValues("height_ft"))
	SanitizeReading(SiteReading{SiteID: "x", HeightFt: fptr(900)})
	after := testutil.ToFloat64(metrics.ValuesDiscarded.WithLabelValues("height_ft"))
	assert.Equal(t, before+1, after)
}

type fakeSource struct {
	name     string
	readings []SiteReading
	err      error
	asked    []string
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) FetchLatest(_ context.Context, siteIDs []string) ([]SiteReading, error) {
	f.asked = append(f.asked, siteIDs...)
	return f.readings, f.err
}

func TestMultiSource_RoutesBySource(t *testing.T) {
	ts := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	usgs := &fakeSource{name: entities.SourceUSGS, readings: []SiteReading{
		{SiteID: "07064533", Timestamp: ts, HeightFt: fptr(3.2)},
		{SiteID: "unrequested", Timestamp: ts, HeightFt: fptr(1)},
		{SiteID: "07065200", Timestamp: ts, HeightFt: fptr(9000)},
	}}
	html := &fakeSource{name: entities.SourceHTML, readings: []SiteReading{
		{SiteID: "45902", Timestamp: ts, DischargeCfs: fptr(353)},
	}}
	multi := NewMultiSource(usgs, html)

	stations := []entities.GaugeStation{
		{ID: 1, Source: entities.SourceUSGS, SiteID: "07064533"},
		{ID: 2, Source: entities.SourceUSGS, SiteID: "07065200"},
		{ID: 3, Source: entities.SourceHTML, SiteID: "45902"},
	}
	readings, err := multi.FetchStations(context.Background(), stations)
	require.NoError(t, err)
	require.Len(t, readings, 2)
	assert.Equal(t, int64(1), readings[0].StationID)
	assert.Equal(t, int64(3), readings[1].StationID)
	assert.ElementsMatch(t, []string{"07064533", "07065200"}, usgs.asked)
	assert.Equal(t, []string{"45902"}, html.asked)
}

func TestMultiSource_PartialFailure(t *testing.T) {
	ts := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	broken := &fakeSource{name: entities.SourceUSGS, err: errors.Join(ErrUpstreamFetch, errors.New("boom"))}
	html := &fakeSource{name: entities.SourceHTML, readings: []SiteReading{
		{SiteID: "45902", Timestamp: ts, HeightFt: fptr(2)},
	}}
	multi := NewMultiSource(broken, html)

	readings, err := multi.FetchStations(context.Background(), []entities.GaugeStation{
		{ID: 1, Source: entities.SourceUSGS, SiteID: "07064533"},
		{ID: 3, Source: entities.SourceHTML, SiteID: "45902"},
		{ID: 4, Source: "ftp", SiteID: "x"},
	})
	assert.ErrorIs(t, err, ErrUpstreamFetch)
	require.Len(t, readings, 1)
	assert.Equal(t, int64(3), readings[0].StationID)
}
