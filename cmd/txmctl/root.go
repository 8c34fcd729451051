package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/txmlab/go-txm/scan"
	"github.com/txmlab/go-txm/scanlog"
	"github.com/txmlab/go-txm/txm"
)

var (
	flagProfile string
	flagPermit  bool
)

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "txmctl",
		Short:         "Operate the sector 32-ID transmission X-ray microscope",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			// optional; absence of a .env file is not an error
			_ = godotenv.Load()
			if flagProfile == "" {
				flagProfile = os.Getenv("TXM_PROFILE")
			}
		},
	}

	cmd.PersistentFlags().StringVar(&flagProfile, "profile", "",
		"instrument profile YAML (default $TXM_PROFILE)")
	cmd.PersistentFlags().BoolVar(&flagPermit, "permit", false,
		"assert the operating permit regardless of the profile")

	cmd.AddCommand(moveEnergyCmd())
	cmd.AddCommand(energyScanCmd())
	cmd.AddCommand(tomoScanCmd())
	cmd.AddCommand(monitorCmd())

	return cmd
}

// setup loads the profile and builds the microscope it describes.
func setup() (*txm.Microscope, *profile, error) {
	p, err := loadProfile(flagProfile)
	if err != nil {
		return nil, nil, err
	}
	if flagPermit {
		p.HasPermit = true
	}

	m, err := p.microscope()
	if err != nil {
		return nil, nil, err
	}

	return m, p, nil
}

// recorder opens the profile's scan log, or returns a no-op recorder when
// none is configured.
func recorder(p *profile) (scan.Recorder, func(), error) {
	if p.ScanLog == "" {
		return scan.NopRecorder{}, func() {}, nil
	}

	r, err := scanlog.Open(p.ScanLog)
	if err != nil {
		return nil, nil, err
	}

	return r, func() { _ = r.Close() }, nil
}

func printRun(runID string) {
	fmt.Println("run:", runID)
}
