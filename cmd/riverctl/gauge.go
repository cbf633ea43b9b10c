package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/abelzeko/riverflow/internal/entities"
)

var gaugeCmd = &cobra.Command{
	Use:   "gauge",
	Short: "Manage gauge stations and their river links",
}

var gaugeAddCmd = &cobra.Command{
	Use:   "add <site-id>",
	Short: "Register or update a gauge station",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		source, _ := cmd.Flags().GetString("source")
		name, _ := cmd.Flags().GetString("name")
		inactive, _ := cmd.Flags().GetBool("inactive")
		loc, err := coordFlags(cmd)
		if err != nil {
			return err
		}

		st := &entities.GaugeStation{SiteID: args[0], Source: source, Name: name, Location: loc, Active: !inactive}
		if err := gaugeUseCase().SaveStation(cmd.Context(), st); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "station %d: %s %s (%s)\n", st.ID, st.Source, st.SiteID, st.Name)
		return nil
	},
}

var gaugeLinkCmd = &cobra.Command{
	Use:   "link <slug> <station-id>",
	Short: "Attach a station to a river with condition thresholds",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		stationID, err := parseID(args[1])
		if err != nil {
			return err
		}
		river, err := riverUseCase().RiverBySlug(cmd.Context(), args[0])
		if err != nil {
			return eris.Wrapf(err, "river %s", args[0])
		}

		g, err := riverGaugeFromFlags(cmd)
		if err != nil {
			return err
		}
		g.RiverID = river.ID
		g.StationID = stationID

		if err := gaugeUseCase().LinkGauge(cmd.Context(), g); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "linked station %d to %s (primary=%t)\n", stationID, river.Slug, g.IsPrimary)
		return nil
	},
}

var conditionCmd = &cobra.Command{
	Use:   "condition <slug>",
	Short: "Classify a river's latest gauge reading",
	Long:  "Selects the river's primary gauge, or with --lat/--lon the gauge closest to that put-in, and classifies its latest reading.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		river, err := riverUseCase().RiverBySlug(cmd.Context(), args[0])
		if err != nil {
			return eris.Wrapf(err, "river %s", args[0])
		}

		var putIn *entities.Coord
		if cmd.Flags().Changed("lat") || cmd.Flags().Changed("lon") {
			c, err := coordFlags(cmd)
			if err != nil {
				return err
			}
			putIn = &c
		}

		rc, err := gaugeUseCase().RiverCondition(cmd.Context(), river.ID, putIn)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s: %s (%s)\n", river.Slug, rc.Result.Label, rc.Result.Code)
		fmt.Fprintf(out, "gauge: %s %s\n", rc.Selection.Station.SiteID, rc.Selection.Station.Name)
		if rc.Result.Value != nil {
			fmt.Fprintf(out, "value: %.2f %s\n", *rc.Result.Value, rc.Result.Unit)
		}
		if rc.Result.ReadingAgeHours != nil {
			fmt.Fprintf(out, "age: %.1f h\n", *rc.Result.ReadingAgeHours)
		}
		if rc.Result.Reason != "" {
			fmt.Fprintf(out, "note: %s\n", rc.Result.Reason)
		}
		if rc.Selection.AccuracyWarning {
			fmt.Fprintf(out, "warning: %s\n", rc.Selection.AccuracyReason)
		}
		if rc.Selection.Fallback {
			fmt.Fprintln(out, "warning: no gauge near the put-in, using the primary gauge")
		}
		return nil
	},
}

func riverGaugeFromFlags(cmd *cobra.Command) (*entities.RiverGauge, error) {
	f := cmd.Flags()
	primary, _ := f.GetBool("primary")
	section, _ := f.GetString("section")
	unit, _ := f.GetString("unit")

	var t entities.Thresholds
	t.Unit = entities.Unit(unit)
	bands := []struct {
		flag string
		dst  *float64
	}{
		{"too-low", &t.TooLow},
		{"low", &t.Low},
		{"optimal-min", &t.OptimalMin},
		{"optimal-max", &t.OptimalMax},
		{"high", &t.High},
		{"dangerous", &t.Dangerous},
	}
	for _, b := range bands {
		if !f.Changed(b.flag) {
			return nil, eris.Errorf("--%s is required", b.flag)
		}
		*b.dst, _ = f.GetFloat64(b.flag)
	}

	g := &entities.RiverGauge{IsPrimary: primary, SectionName: section, Thresholds: t}
	if f.Changed("distance") {
		d, _ := f.GetFloat64("distance")
		g.DistanceFromSectionMiles = &d
	}
	if f.Changed("accuracy-warning") {
		d, _ := f.GetFloat64("accuracy-warning")
		g.AccuracyWarningThresholdMiles = &d
	}
	return g, nil
}

func init() {
	gaugeAddCmd.Flags().String("source", entities.SourceUSGS, "station source: usgs or html")
	gaugeAddCmd.Flags().String("name", "", "station name")
	gaugeAddCmd.Flags().Float64("lat", 0, "station latitude")
	gaugeAddCmd.Flags().Float64("lon", 0, "station longitude")
	gaugeAddCmd.Flags().Bool("inactive", false, "register the station without polling it")

	f := gaugeLinkCmd.Flags()
	f.Bool("primary", false, "make this the river's primary gauge")
	f.String("section", "", "float section the thresholds were calibrated for")
	f.String("unit", string(entities.UnitFeet), "threshold unit: ft or cfs")
	f.Float64("too-low", 0, "below this the river is too low to float")
	f.Float64("low", 0, "upper bound of very low water")
	f.Float64("optimal-min", 0, "lower bound of optimal water")
	f.Float64("optimal-max", 0, "upper bound of optimal water")
	f.Float64("high", 0, "upper bound of high water")
	f.Float64("dangerous", 0, "above this the river is dangerous")
	f.Float64("distance", 0, "configured distance from the section in miles")
	f.Float64("accuracy-warning", 0, "warn when the gauge is farther than this many miles")

	conditionCmd.Flags().Float64("lat", 0, "put-in latitude")
	conditionCmd.Flags().Float64("lon", 0, "put-in longitude")

	gaugeCmd.AddCommand(gaugeAddCmd, gaugeLinkCmd)
	rootCmd.AddCommand(gaugeCmd, conditionCmd)
}
