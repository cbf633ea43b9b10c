package main

import (
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var accessPointCmd = &cobra.Command{
	Use:     "access-point",
	Aliases: []string{"ap"},
	Short:   "Manage put-ins and take-outs",
}

var accessPointAddCmd = &cobra.Command{
	Use:   "add <slug>",
	Short: "Create an unapproved access point and snap it to the river",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		orig, err := coordFlags(cmd)
		if err != nil {
			return err
		}

		uc := riverUseCase()
		river, err := uc.RiverBySlug(cmd.Context(), args[0])
		if err != nil {
			return eris.Wrapf(err, "river %s", args[0])
		}
		ap, err := uc.CreateAccessPoint(cmd.Context(), river.ID, name, orig)
		if err != nil {
			return err
		}
		printMile(cmd, ap)
		return nil
	},
}

var accessPointMoveCmd = &cobra.Command{
	Use:   "move <id>",
	Short: "Change an access point's coordinate and re-snap it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		orig, err := coordFlags(cmd)
		if err != nil {
			return err
		}
		ap, err := riverUseCase().MoveAccessPoint(cmd.Context(), id, orig)
		if err != nil {
			return err
		}
		printMile(cmd, ap)
		return nil
	},
}

var accessPointApproveCmd = &cobra.Command{
	Use:   "approve <id>",
	Short: "Publish an access point",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return riverUseCase().ApproveAccessPoint(cmd.Context(), id)
	},
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, eris.Errorf("invalid id %q", s)
	}
	return id, nil
}

func init() {
	for _, c := range []*cobra.Command{accessPointAddCmd, accessPointMoveCmd} {
		c.Flags().Float64("lat", 0, "latitude")
		c.Flags().Float64("lon", 0, "longitude")
		_ = c.MarkFlagRequired("lat")
		_ = c.MarkFlagRequired("lon")
	}
	accessPointAddCmd.Flags().String("name", "", "access point name")
	_ = accessPointAddCmd.MarkFlagRequired("name")

	accessPointCmd.AddCommand(accessPointAddCmd, accessPointMoveCmd, accessPointApproveCmd)
	rootCmd.AddCommand(accessPointCmd)
}
