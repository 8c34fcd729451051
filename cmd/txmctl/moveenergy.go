package main

import (
	"strconv"

	"github.com/spf13/cobra"
)

func moveEnergyCmd() *cobra.Command {
	var (
		constantMag bool
		gapOffset   float64
		noBacklash  bool
	)

	cmd := &cobra.Command{
		Use:   "move-energy <keV>",
		Short: "Move the source and optics to a new X-ray energy",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			energy, err := strconv.ParseFloat(args[0], 64)
			if err != nil {
				return err
			}

			m, _, err := setup()
			if err != nil {
				return err
			}
			defer m.Close()

			return m.MoveEnergy(energy, constantMag, gapOffset, !noBacklash)
		},
	}

	cmd.Flags().BoolVar(&constantMag, "constant-mag", true,
		"move the detector to preserve magnification")
	cmd.Flags().Float64Var(&gapOffset, "gap-offset", 0,
		"extra energy added to the undulator gap setpoint, in keV")
	cmd.Flags().BoolVar(&noBacklash, "no-backlash", false,
		"skip the gap backlash correction")

	return cmd
}
