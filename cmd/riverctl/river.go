package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/abelzeko/riverflow/internal/entities"
	"github.com/abelzeko/riverflow/internal/georef"
	"github.com/abelzeko/riverflow/internal/usecases"
)

var riverCmd = &cobra.Command{
	Use:   "river",
	Short: "Manage river courses",
}

var riverImportCmd = &cobra.Command{
	Use:   "import <slug>",
	Short: "Import or replace a river course",
	Long:  "Validates a river course from a GeoJSON file or an encoded polyline, derives its length and re-snaps its access points.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		geojsonPath, _ := cmd.Flags().GetString("geojson")
		encoded, _ := cmd.Flags().GetString("polyline")
		name, _ := cmd.Flags().GetString("name")
		headwatersFirst, _ := cmd.Flags().GetBool("headwaters-first")

		vertices, err := loadCourse(geojsonPath, encoded)
		if err != nil {
			return err
		}
		if name == "" {
			name = args[0]
		}

		river, report, err := riverUseCase().ImportRiver(cmd.Context(), args[0], name, vertices, headwatersFirst, toleranceFlag(cmd))
		if river != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "imported %s (id %d): %d vertices, %.2f mi\n",
				river.Slug, river.ID, len(river.Vertices), river.LengthMiles)
		}
		printRevalidation(cmd, report)
		return err
	},
}

var riverListCmd = &cobra.Command{
	Use:   "list",
	Short: "List rivers",
	RunE: func(cmd *cobra.Command, _ []string) error {
		rivers, err := riverUseCase().ListRivers(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, r := range rivers {
			fmt.Fprintf(out, "%-4d %-24s %-32s %8.2f mi headwaters_first=%t\n", r.ID, r.Slug, r.Name, r.LengthMiles, r.HeadwatersFirst)
		}
		return nil
	},
}

var riverExportCmd = &cobra.Command{
	Use:   "export <slug>",
	Short: "Print a river course as an encoded polyline or GeoJSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		river, err := riverUseCase().RiverBySlug(cmd.Context(), args[0])
		if err != nil {
			return eris.Wrapf(err, "river %s", args[0])
		}
		text, err := exportCourse(river.Vertices, format)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), text)
		return nil
	},
}

var riverResnapCmd = &cobra.Command{
	Use:   "resnap <slug>",
	Short: "Re-project every access point of a river",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		uc := riverUseCase()
		river, err := uc.RiverBySlug(cmd.Context(), args[0])
		if err != nil {
			return eris.Wrapf(err, "river %s", args[0])
		}
		n, err := uc.ResnapRiver(cmd.Context(), river.ID)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "re-snapped %d access points on %s\n", n, river.Slug)
		report, err := uc.RevalidateMiles(cmd.Context(), river.ID, toleranceFlag(cmd))
		printRevalidation(cmd, report)
		return err
	},
}

var riverVerifyCmd = &cobra.Command{
	Use:   "verify-direction <slug>",
	Short: "Check the headwaters flag against located mile markers",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		uc := riverUseCase()
		river, err := uc.RiverBySlug(cmd.Context(), args[0])
		if err != nil {
			return eris.Wrapf(err, "river %s", args[0])
		}
		check, err := uc.VerifyDirection(cmd.Context(), river.ID)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: markers imply headwaters_first=%t (stored %t), agrees=%t consistent=%t markers=%d\n",
			river.Slug, check.HeadwatersFirst, river.HeadwatersFirst, check.Agrees, check.Consistent, check.MarkersUsed)
		return nil
	},
}

var markerCmd = &cobra.Command{
	Use:   "marker",
	Short: "Manage mile markers",
}

var markerAddCmd = &cobra.Command{
	Use:   "add <slug>",
	Short: "Record an authoritative mile marker",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mile, _ := cmd.Flags().GetFloat64("mile")
		name, _ := cmd.Flags().GetString("name")
		desc, _ := cmd.Flags().GetString("description")

		uc := riverUseCase()
		river, err := uc.RiverBySlug(cmd.Context(), args[0])
		if err != nil {
			return eris.Wrapf(err, "river %s", args[0])
		}
		m := entities.MileMarker{RiverID: river.ID, Mile: mile, Name: name, Description: desc}
		if cmd.Flags().Changed("lat") || cmd.Flags().Changed("lon") {
			loc, err := coordFlags(cmd)
			if err != nil {
				return err
			}
			m.Location = &loc
		}

		saved, report, err := uc.AddMileMarker(cmd.Context(), m, toleranceFlag(cmd))
		if saved != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "marker %d at mile %.2f on %s\n", saved.ID, saved.Mile, river.Slug)
		}
		printRevalidation(cmd, report)
		return err
	},
}

// loadCourse reads vertices from exactly one of a GeoJSON file or an encoded polyline.
func loadCourse(geojsonPath, encoded string) ([]entities.Coord, error) {
	switch {
	case geojsonPath != "" && encoded != "":
		return nil, eris.New("use either --geojson or --polyline, not both")
	case geojsonPath != "":
		data, err := os.ReadFile(geojsonPath)
		if err != nil {
			return nil, eris.Wrapf(err, "read %s", geojsonPath)
		}
		return georef.FromGeoJSON(data)
	case encoded != "":
		return georef.FromEncodedPolyline(strings.TrimSpace(encoded))
	default:
		return nil, eris.New("one of --geojson or --polyline is required")
	}
}

func exportCourse(vertices []entities.Coord, format string) (string, error) {
	switch format {
	case "polyline":
		return georef.EncodePolyline(vertices), nil
	case "geojson":
		flat := make([]float64, 0, 2*len(vertices))
		for _, c := range vertices {
			flat = append(flat, c.Lon, c.Lat)
		}
		data, err := geojson.Marshal(geom.NewLineStringFlat(geom.XY, flat))
		if err != nil {
			return "", eris.Wrap(err, "encode geojson")
		}
		return string(data), nil
	default:
		return "", eris.Errorf("unknown format %q (polyline|geojson)", format)
	}
}

func coordFlags(cmd *cobra.Command) (entities.Coord, error) {
	lat, _ := cmd.Flags().GetFloat64("lat")
	lon, _ := cmd.Flags().GetFloat64("lon")
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return entities.Coord{}, eris.Errorf("coordinate out of range: lat %v lon %v", lat, lon)
	}
	return entities.Coord{Lon: lon, Lat: lat}, nil
}

// toleranceFlag returns --tolerance when it was given.
func toleranceFlag(cmd *cobra.Command) *float64 {
	if !cmd.Flags().Changed("tolerance") {
		return nil
	}
	t, _ := cmd.Flags().GetFloat64("tolerance")
	return &t
}

// printRevalidation lists access points that were corrected or, without a
// tolerance, that sit away from their nearest mile marker.
func printRevalidation(cmd *cobra.Command, report []usecases.MileCorrection) {
	out := cmd.OutOrStdout()
	for _, c := range report {
		switch {
		case c.Corrected:
			fmt.Fprintf(out, "corrected %-4d %-32s %s -> %s\n", c.AccessPoint.ID, c.AccessPoint.Name,
				usecases.FormatMile(c.OldMile), usecases.FormatMile(c.NewMile))
		case !cmd.Flags().Changed("tolerance") && c.Reference != nil && c.DriftMiles > 0:
			fmt.Fprintf(out, "drift     %-4d %-32s %s, %.2f mi from marker at mile %.2f\n", c.AccessPoint.ID, c.AccessPoint.Name,
				usecases.FormatMile(c.OldMile), c.DriftMiles, c.Reference.Mile)
		}
	}
}

func printMile(cmd *cobra.Command, ap *entities.AccessPoint) {
	fmt.Fprintf(cmd.OutOrStdout(), "access point %d %q: %s", ap.ID, ap.Name, usecases.FormatMile(ap.MileFromHeadwaters))
	if ap.DistanceOffLineMiles != nil {
		fmt.Fprintf(cmd.OutOrStdout(), ", %.3f mi off the river", *ap.DistanceOffLineMiles)
	}
	fmt.Fprintln(cmd.OutOrStdout())
}

func init() {
	riverImportCmd.Flags().String("geojson", "", "path to a GeoJSON LineString/Feature")
	riverImportCmd.Flags().String("polyline", "", "encoded polyline")
	riverImportCmd.Flags().String("name", "", "display name (defaults to the slug)")
	riverImportCmd.Flags().Bool("headwaters-first", true, "first vertex is the upstream end")
	for _, c := range []*cobra.Command{riverImportCmd, riverResnapCmd, markerAddCmd} {
		c.Flags().Float64("tolerance", 0, "correct access point miles farther than this from the nearest marker; without it drift is only reported")
	}

	riverExportCmd.Flags().String("format", "polyline", "output format: polyline or geojson")

	markerAddCmd.Flags().Float64("mile", 0, "river mile from the headwaters")
	markerAddCmd.Flags().String("name", "", "marker name")
	markerAddCmd.Flags().String("description", "", "marker description")
	markerAddCmd.Flags().Float64("lat", 0, "marker latitude (optional)")
	markerAddCmd.Flags().Float64("lon", 0, "marker longitude (optional)")
	_ = markerAddCmd.MarkFlagRequired("mile")

	riverCmd.AddCommand(riverImportCmd, riverListCmd, riverExportCmd, riverResnapCmd, riverVerifyCmd)
	markerCmd.AddCommand(markerAddCmd)
	rootCmd.AddCommand(riverCmd, markerCmd)
}
