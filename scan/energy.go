package scan

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/txmlab/go-txm/logger"
	"github.com/txmlab/go-txm/txm"
)

// EnergyRange builds the list of energies from start to end in increments of
// step, all in keV. The end point is included when it lands on a step, with
// tolerance for accumulated floating-point error.
func EnergyRange(start, end, step float64) []float64 {
	if step <= 0 {
		return nil
	}

	var energies []float64
	for i := 0; ; i++ {
		v := start + float64(i)*step
		if v > end+step/2 {
			break
		}
		energies = append(energies, v)
	}

	return energies
}

// EnergyScan collects a pair of frames at each energy in Energies: a sample
// projection and a white field, moving the sample out of the beam for the
// latter. Consecutive energies alternate which of the pair is collected
// first, halving the number of stage moves. Dark fields are collected up
// front with the shutters closed.
type EnergyScan struct {
	Microscope *txm.Microscope

	// Energies to scan, in keV. See EnergyRange.
	Energies []float64

	// Exposure is the per-frame exposure time in seconds.
	Exposure float64

	// NumPreDark is the number of dark-field frames captured before the scan.
	NumPreDark int

	// SamplePos puts the sample in the beam; OutPos removes it.
	SamplePos Position
	OutPos    Position

	// ConstantMag moves the detector on each energy change to preserve
	// magnification.
	ConstantMag bool

	// StabilizeSleep is the pause after each energy move, letting the beam
	// settle before frames are captured.
	StabilizeSleep time.Duration

	// NumRecursive above one averages that many consecutive frames through
	// the recursive filter.
	NumRecursive int

	// FileName names the HDF5 output file. Empty keeps the writer's current
	// name. FileWriteMode defaults to "Stream".
	FileName      string
	FileWriteMode string

	Recorder Recorder
	Logger   logger.Logger
}

// Run executes the scan and returns its run ID.
func (s *EnergyScan) Run() (string, error) {
	if s.Microscope == nil {
		return "", errors.New("microscope is nil")
	}
	if len(s.Energies) == 0 {
		return "", errors.New("no energies to scan")
	}

	rec := s.Recorder
	if rec == nil {
		rec = NopRecorder{}
	}
	log := s.Logger
	if log == nil {
		log = logger.GetLogger()
	}
	recursive := s.NumRecursive
	if recursive < 1 {
		recursive = 1
	}
	writeMode := s.FileWriteMode
	if writeMode == "" {
		writeMode = "Stream"
	}

	m := s.Microscope
	runID := uuid.NewString()
	start := time.Now()

	if err := rec.BeginRun(Run{ID: runID, Kind: "energy", StartedAt: start}); err != nil {
		return "", fmt.Errorf("begin run: %w", err)
	}
	defer func() {
		if err := rec.EndRun(runID, time.Now()); err != nil {
			log.Warn("failed to end scan run", "run_id", runID, "error", err)
		}
	}()

	log.Info("starting energy scan",
		"run_id", runID, "energies", len(s.Energies),
		"from_kev", s.Energies[0], "to_kev", s.Energies[len(s.Energies)-1])

	if err := m.SetupDetector(s.Exposure); err != nil {
		return runID, err
	}
	total := (s.NumPreDark + 2*len(s.Energies)) * recursive
	if err := m.SetupHDFWriter(s.FileName, total, writeMode, recursive); err != nil {
		return runID, err
	}

	seq := 0
	if s.NumPreDark > 0 {
		if err := m.CloseShutters(); err != nil {
			return runID, err
		}
		log.Info("capturing pre-scan dark fields", "count", s.NumPreDark)
		if err := m.CaptureDarkField(s.NumPreDark*recursive, s.Exposure); err != nil {
			return runID, err
		}
		seq++
		if err := rec.RecordPoint(Point{
			RunID: runID, Seq: seq, Kind: FrameDark,
			Frames: s.NumPreDark * recursive, At: time.Now(),
		}); err != nil {
			return runID, err
		}
	}

	if err := m.OpenShutters(); err != nil {
		return runID, err
	}

	correctBacklash := true // first energy only
	for i, energy := range s.Energies {
		sampleFirst := i%2 == 0

		firstPos, secondPos := s.SamplePos, s.OutPos
		firstKind, secondKind := FrameSample, FrameWhite
		if !sampleFirst {
			firstPos, secondPos = secondPos, firstPos
			firstKind, secondKind = secondKind, firstKind
		}

		if err := firstPos.move(m); err != nil {
			return runID, err
		}
		if err := m.MoveEnergy(energy, s.ConstantMag, 0, correctBacklash); err != nil {
			return runID, err
		}
		correctBacklash = false

		log.Debug("waiting for beam to stabilize", "sleep", s.StabilizeSleep)
		time.Sleep(s.StabilizeSleep)

		if err := s.capture(firstKind, recursive); err != nil {
			return runID, err
		}
		seq++
		if err := rec.RecordPoint(Point{
			RunID: runID, Seq: seq, Kind: firstKind,
			Energy: energy, Frames: recursive, At: time.Now(),
		}); err != nil {
			return runID, err
		}

		if err := m.InScope(true, func() error { return secondPos.move(m) }); err != nil {
			return runID, err
		}
		if err := s.capture(secondKind, recursive); err != nil {
			return runID, err
		}
		seq++
		if err := rec.RecordPoint(Point{
			RunID: runID, Seq: seq, Kind: secondKind,
			Energy: energy, Frames: recursive, At: time.Now(),
		}); err != nil {
			return runID, err
		}
	}

	if err := m.CloseShutters(); err != nil {
		return runID, err
	}

	log.Info("energy scan finished", "run_id", runID, "duration", time.Since(start))

	return runID, nil
}

func (s *EnergyScan) capture(kind FrameKind, frames int) error {
	if kind == FrameSample {
		return s.Microscope.CaptureProjections(frames, s.Exposure)
	}

	return s.Microscope.CaptureWhiteField(frames, s.Exposure)
}
