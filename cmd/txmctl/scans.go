package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/txmlab/go-txm/scan"
	"github.com/txmlab/go-txm/txm"
)

// positionFlags holds one sample-stage target from the command line. Axes
// whose flags were never set stay nil in the resulting Position, leaving the
// stage where it is.
type positionFlags struct {
	x, y, z, theta float64
}

func addPositionFlags(cmd *cobra.Command, p *positionFlags, prefix string) {
	cmd.Flags().Float64Var(&p.x, prefix+"-x", 0, "sample X position, mm")
	cmd.Flags().Float64Var(&p.y, prefix+"-y", 0, "sample Y position, mm")
	cmd.Flags().Float64Var(&p.z, prefix+"-z", 0, "sample Z position, mm")
	cmd.Flags().Float64Var(&p.theta, prefix+"-theta", 0, "sample rotation, degrees")
}

func (p *positionFlags) position(cmd *cobra.Command, prefix string) scan.Position {
	pos := scan.Position{}
	if cmd.Flags().Changed(prefix + "-x") {
		pos.X = txm.Float(p.x)
	}
	if cmd.Flags().Changed(prefix + "-y") {
		pos.Y = txm.Float(p.y)
	}
	if cmd.Flags().Changed(prefix + "-z") {
		pos.Z = txm.Float(p.z)
	}
	if cmd.Flags().Changed(prefix + "-theta") {
		pos.Theta = txm.Float(p.theta)
	}

	return pos
}

func energyScanCmd() *cobra.Command {
	var (
		start, end, step float64
		exposure         float64
		preDark          int
		stabilize        time.Duration
		recursive        int
		file             string
		constantMag      bool
		samplePos        positionFlags
		outPos           positionFlags
	)

	cmd := &cobra.Command{
		Use:   "energy-scan",
		Short: "Collect sample and flat-field frames across a range of energies",
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, p, err := setup()
			if err != nil {
				return err
			}
			defer m.Close()

			rec, closeRec, err := recorder(p)
			if err != nil {
				return err
			}
			defer closeRec()

			s := &scan.EnergyScan{
				Microscope:     m,
				Energies:       scan.EnergyRange(start, end, step),
				Exposure:       exposure,
				NumPreDark:     preDark,
				SamplePos:      samplePos.position(cmd, "sample"),
				OutPos:         outPos.position(cmd, "out"),
				ConstantMag:    constantMag,
				StabilizeSleep: stabilize,
				NumRecursive:   recursive,
				FileName:       file,
				Recorder:       rec,
			}

			runID, err := s.Run()
			if err != nil {
				return err
			}
			printRun(runID)

			return nil
		},
	}

	cmd.Flags().Float64Var(&start, "start", 6.7, "first energy, keV")
	cmd.Flags().Float64Var(&end, "end", 6.8, "last energy (inclusive), keV")
	cmd.Flags().Float64Var(&step, "step", 0.001, "energy step, keV")
	cmd.Flags().Float64Var(&exposure, "exposure", 0.5, "per-frame exposure, seconds")
	cmd.Flags().IntVar(&preDark, "pre-dark", 0, "dark fields before the scan")
	cmd.Flags().DurationVar(&stabilize, "stabilize", time.Second,
		"pause after each energy move")
	cmd.Flags().IntVar(&recursive, "recursive", 1,
		"frames averaged through the recursive filter")
	cmd.Flags().StringVar(&file, "file", "", "HDF5 output file name")
	cmd.Flags().BoolVar(&constantMag, "constant-mag", true,
		"move the detector to preserve magnification")
	addPositionFlags(cmd, &samplePos, "sample")
	addPositionFlags(cmd, &outPos, "out")

	return cmd
}

func tomoScanCmd() *cobra.Command {
	var (
		projections          int
		startAngle, endAngle float64
		exposure             float64
		preDark, preWhite    int
		postWhite, postDark  int
		stabilize            time.Duration
		recursive            int
		file                 string
		samplePos, outPos    positionFlags
	)

	cmd := &cobra.Command{
		Use:   "tomo-scan",
		Short: "Collect a stepped tomography series",
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, p, err := setup()
			if err != nil {
				return err
			}
			defer m.Close()

			rec, closeRec, err := recorder(p)
			if err != nil {
				return err
			}
			defer closeRec()

			s := &scan.TomoStepScan{
				Microscope:     m,
				Projections:    projections,
				StartAngle:     startAngle,
				EndAngle:       endAngle,
				Exposure:       exposure,
				NumPreDark:     preDark,
				NumPreWhite:    preWhite,
				NumPostWhite:   postWhite,
				NumPostDark:    postDark,
				SamplePos:      samplePos.position(cmd, "sample"),
				OutPos:         outPos.position(cmd, "out"),
				StabilizeSleep: stabilize,
				NumRecursive:   recursive,
				FileName:       file,
				Recorder:       rec,
			}

			runID, err := s.Run()
			if err != nil {
				return err
			}
			printRun(runID)

			return nil
		},
	}

	cmd.Flags().IntVar(&projections, "projections", 361, "number of projections")
	cmd.Flags().Float64Var(&startAngle, "start-angle", 0, "first rotation angle, degrees")
	cmd.Flags().Float64Var(&endAngle, "end-angle", 180, "last rotation angle, degrees")
	cmd.Flags().Float64Var(&exposure, "exposure", 3, "per-frame exposure, seconds")
	cmd.Flags().IntVar(&preDark, "pre-dark", 5, "dark fields before the scan")
	cmd.Flags().IntVar(&preWhite, "pre-white", 5, "white fields before the scan")
	cmd.Flags().IntVar(&postWhite, "post-white", 5, "white fields after the scan")
	cmd.Flags().IntVar(&postDark, "post-dark", 0, "dark fields after the scan")
	cmd.Flags().DurationVar(&stabilize, "stabilize", time.Millisecond,
		"pause after each rotation step")
	cmd.Flags().IntVar(&recursive, "recursive", 1,
		"frames averaged through the recursive filter")
	cmd.Flags().StringVar(&file, "file", "", "HDF5 output file name")
	addPositionFlags(cmd, &samplePos, "sample")
	addPositionFlags(cmd, &outPos, "out")

	return cmd
}
