package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/abelzeko/riverflow/internal/integration"
	"github.com/abelzeko/riverflow/internal/polling"
	"github.com/abelzeko/riverflow/internal/usecases"
)

var correctMilesCmd = &cobra.Command{
	Use:   "correct-miles",
	Short: "Replace access point miles that disagree with the nearest mile marker",
	Long:  "Compares every access point's snapped mile with its nearest mile marker and overwrites it with the marker's mile when they differ by more than --tolerance.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		tolerance, _ := cmd.Flags().GetFloat64("tolerance")
		slug, _ := cmd.Flags().GetString("river")

		var riverID *int64
		if slug != "" {
			river, err := riverUseCase().RiverBySlug(ctx, slug)
			if err != nil {
				return eris.Wrapf(err, "river %s", slug)
			}
			riverID = &river.ID
		}

		report, err := usecases.NewMileCorrectionService(store).CorrectAccessPointMiles(ctx, riverID, tolerance)
		out := cmd.OutOrStdout()
		corrected := 0
		for _, c := range report {
			status := "kept"
			if c.Corrected {
				status = "corrected"
				corrected++
			}
			fmt.Fprintf(out, "%-9s %-4d %-32s %s -> %s  %s\n", status, c.AccessPoint.ID, c.AccessPoint.Name,
				usecases.FormatMile(c.OldMile), usecases.FormatMile(c.NewMile), c.Reason)
		}
		fmt.Fprintf(out, "%d of %d access points corrected\n", corrected, len(report))
		return err
	},
}

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Run one ingestion pass",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		c, _ := cmd.Flags().GetString("cadence")
		cadence, err := polling.ParseCadence(c)
		if err != nil {
			return err
		}
		sources, err := integration.NewMultiSourceFromConfig(cfg)
		if err != nil {
			return err
		}

		uc := usecases.NewIngestionUseCase(store, sources, cfg.Polling.Rule(), cfg.Ingest.Workers, nil)
		report, err := uc.RunPass(ctx, cadence)
		fmt.Fprintf(cmd.OutOrStdout(), "%s pass: %d stations, %d readings saved, %d transitions, %d station failures in %s\n",
			report.Cadence, report.Stations, report.ReadingsSaved, report.Transitions, report.StationFailures, report.Duration)
		return err
	},
}

func init() {
	correctMilesCmd.Flags().Float64("tolerance", 0, "maximum allowed difference in miles before correcting (required, > 0)")
	correctMilesCmd.Flags().String("river", "", "limit correction to one river slug")
	_ = correctMilesCmd.MarkFlagRequired("tolerance")

	ingestCmd.Flags().String("cadence", string(polling.CadenceNormal), "stations to poll: normal (all active) or high")

	rootCmd.AddCommand(correctMilesCmd, ingestCmd)
}
