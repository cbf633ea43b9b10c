// Command riverctl maintains river geometry, access points and gauges.
package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/abelzeko/riverflow/internal/config"
	"github.com/abelzeko/riverflow/internal/repository"
	"github.com/abelzeko/riverflow/internal/usecases"
)

var (
	cfg   *config.Config
	store repository.Store
)

var rootCmd = &cobra.Command{
	Use:   "riverctl",
	Short: "River geometry and gauge maintenance",
	Long:  "Imports river courses, snaps access points to river miles, corrects miles against mile markers, links gauges and runs ingestion passes.",
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		c, err := config.Load()
		if err != nil {
			return eris.Wrap(err, "load config")
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return eris.Wrap(err, "init logger")
		}

		s, err := repository.Open(cmd.Context(), cfg.Store.Driver, cfg.Store.DatabaseURL)
		if err != nil {
			return err
		}
		store = s
		return nil
	},
	PersistentPostRun: func(_ *cobra.Command, _ []string) {
		if store != nil {
			_ = store.Close()
		}
		_ = zap.L().Sync()
	},
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func riverUseCase() *usecases.RiverUseCase {
	return usecases.NewRiverUseCase(store, cfg.Referencing.OffLineWarningMiles)
}

func gaugeUseCase() *usecases.GaugeUseCase {
	return usecases.NewGaugeUseCase(store, cfg.Condition.StaleAfter())
}
