package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abelzeko/riverflow/internal/entities"
)

func subcommandNames(c *cobra.Command) map[string]bool {
	names := make(map[string]bool)
	for _, sub := range c.Commands() {
		names[sub.Name()] = true
	}
	return names
}

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := subcommandNames(rootCmd)
	for _, name := range []string{"river", "marker", "access-point", "gauge", "condition", "correct-miles", "ingest"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}

	names = subcommandNames(riverCmd)
	for _, name := range []string{"import", "list", "export", "resnap", "verify-direction"} {
		assert.True(t, names[name], "expected river subcommand %q not found", name)
	}
}

func TestCorrectMilesCommand_ToleranceRequired(t *testing.T) {
	flag := correctMilesCmd.Flags().Lookup("tolerance")
	require.NotNil(t, flag)
	assert.Equal(t, "0", flag.DefValue)
	assert.Equal(t, []string{"true"}, flag.Annotations[cobra.BashCompOneRequiredFlag])
}

func TestToleranceFlag(t *testing.T) {
	for _, c := range []*cobra.Command{riverImportCmd, riverResnapCmd, markerAddCmd} {
		require.NotNil(t, c.Flags().Lookup("tolerance"), c.Name())
	}

	cmd := &cobra.Command{Use: "add"}
	cmd.Flags().Float64("tolerance", 0, "")
	assert.Nil(t, toleranceFlag(cmd))

	require.NoError(t, cmd.Flags().Parse([]string{"--tolerance", "0.25"}))
	tol := toleranceFlag(cmd)
	require.NotNil(t, tol)
	assert.Equal(t, 0.25, *tol)
}

func TestIngestCommand_Flags(t *testing.T) {
	flag := ingestCmd.Flags().Lookup("cadence")
	require.NotNil(t, flag)
	assert.Equal(t, "normal", flag.DefValue)
}

func TestLoadCourse(t *testing.T) {
	path := filepath.Join(t.TempDir(), "course.geojson")
	require.NoError(t, os.WriteFile(path, []byte(`{"type":"LineString","coordinates":[[-91.0,37.0],[-91.0,36.5]]}`), 0o600))

	coords, err := loadCourse(path, "")
	require.NoError(t, err)
	assert.Equal(t, []entities.Coord{{Lon: -91.0, Lat: 37.0}, {Lon: -91.0, Lat: 36.5}}, coords)

	// Same course as an encoded polyline.
	coords, err = loadCourse("", exportMust(t, coords, "polyline"))
	require.NoError(t, err)
	require.Len(t, coords, 2)
	assert.InDelta(t, 36.5, coords[1].Lat, 1e-5)

	_, err = loadCourse(path, "abc")
	assert.Error(t, err)
	_, err = loadCourse("", "")
	assert.Error(t, err)
}

func TestExportCourse(t *testing.T) {
	course := []entities.Coord{{Lon: -91.0, Lat: 37.0}, {Lon: -91.0, Lat: 36.5}}

	assert.JSONEq(t, `{"type":"LineString","coordinates":[[-91,37],[-91,36.5]]}`, exportMust(t, course, "geojson"))

	_, err := exportCourse(course, "kml")
	assert.Error(t, err)
}

func TestRiverGaugeFromFlags(t *testing.T) {
	require.NoError(t, gaugeLinkCmd.Flags().Parse([]string{
		"--primary", "--too-low", "1.5", "--low", "2", "--optimal-min", "2.5",
		"--optimal-max", "4", "--high", "5", "--dangerous", "6", "--distance", "3.5",
	}))
	g, err := riverGaugeFromFlags(gaugeLinkCmd)
	require.NoError(t, err)
	assert.True(t, g.IsPrimary)
	assert.Equal(t, entities.UnitFeet, g.Thresholds.Unit)
	assert.Equal(t, 4.0, g.Thresholds.OptimalMax)
	require.NotNil(t, g.DistanceFromSectionMiles)
	assert.Equal(t, 3.5, *g.DistanceFromSectionMiles)
	assert.Nil(t, g.AccuracyWarningThresholdMiles)
}

func TestRiverGaugeFromFlags_MissingBand(t *testing.T) {
	_, err := riverGaugeFromFlags(&cobra.Command{Use: "link"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--too-low is required")
}

func TestParseID(t *testing.T) {
	id, err := parseID("42")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	for _, bad := range []string{"", "0", "-3", "x"} {
		_, err := parseID(bad)
		assert.Error(t, err, bad)
	}
}

func exportMust(t *testing.T, course []entities.Coord, format string) string {
	t.Helper()
	s, err := exportCourse(course, format)
	require.NoError(t, err)
	return s
}
