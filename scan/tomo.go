package scan

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/txmlab/go-txm/logger"
	"github.com/txmlab/go-txm/txm"
)

// TomoStepScan collects a stepped tomography series: dark and white fields
// before the scan, one sample projection per rotation angle, then white and
// dark fields after. The rotation axis is stepped through Projections evenly
// spaced angles from StartAngle to EndAngle inclusive.
type TomoStepScan struct {
	Microscope *txm.Microscope

	Projections int
	StartAngle  float64 // degrees
	EndAngle    float64 // degrees

	// Exposure is the per-frame exposure time in seconds.
	Exposure float64

	NumPreDark   int
	NumPreWhite  int
	NumPostWhite int
	NumPostDark  int

	// SamplePos puts the sample in the beam; OutPos removes it for the
	// white fields.
	SamplePos Position
	OutPos    Position

	// StabilizeSleep is the pause after each rotation step.
	StabilizeSleep time.Duration

	// NumRecursive above one averages that many consecutive frames through
	// the recursive filter.
	NumRecursive int

	FileName      string
	FileWriteMode string

	Recorder Recorder
	Logger   logger.Logger
}

// Angles returns the rotation angles the scan will visit.
func (s *TomoStepScan) Angles() []float64 {
	if s.Projections < 1 {
		return nil
	}

	angles := make([]float64, s.Projections)
	step := 0.0
	if s.Projections > 1 {
		step = (s.EndAngle - s.StartAngle) / float64(s.Projections-1)
	}
	for i := range angles {
		angles[i] = s.StartAngle + float64(i)*step
	}

	return angles
}

// Run executes the scan and returns its run ID.
func (s *TomoStepScan) Run() (string, error) {
	if s.Microscope == nil {
		return "", errors.New("microscope is nil")
	}
	if s.Projections < 1 {
		return "", errors.New("at least one projection required")
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

	if err := rec.BeginRun(Run{ID: runID, Kind: "tomo", StartedAt: start}); err != nil {
		return "", fmt.Errorf("begin run: %w", err)
	}
	defer func() {
		if err := rec.EndRun(runID, time.Now()); err != nil {
			log.Warn("failed to end scan run", "run_id", runID, "error", err)
		}
	}()

	log.Info("starting tomography step scan",
		"run_id", runID, "projections", s.Projections,
		"from_deg", s.StartAngle, "to_deg", s.EndAngle)

	if err := m.SetupDetector(s.Exposure); err != nil {
		return runID, err
	}
	total := (s.NumPreDark + s.NumPreWhite + s.Projections +
		s.NumPostWhite + s.NumPostDark) * recursive
	if err := m.SetupHDFWriter(s.FileName, total, writeMode, recursive); err != nil {
		return runID, err
	}

	seq := 0
	record := func(kind FrameKind, energy, rotation float64, frames int) error {
		seq++
		return rec.RecordPoint(Point{
			RunID: runID, Seq: seq, Kind: kind,
			Energy: energy, Rotation: rotation, Frames: frames, At: time.Now(),
		})
	}

	if s.NumPreDark > 0 {
		if err := m.CloseShutters(); err != nil {
			return runID, err
		}
		log.Info("capturing pre-scan dark fields", "count", s.NumPreDark)
		if err := m.CaptureDarkField(s.NumPreDark*recursive, s.Exposure); err != nil {
			return runID, err
		}
		if err := record(FrameDark, 0, 0, s.NumPreDark*recursive); err != nil {
			return runID, err
		}
	}

	if s.NumPreWhite > 0 {
		err := m.InScope(true, func() error {
			if err := s.OutPos.move(m); err != nil {
				return err
			}
			return m.OpenShutters()
		})
		if err != nil {
			return runID, err
		}
		log.Info("capturing pre-scan white fields", "count", s.NumPreWhite)
		if err := m.CaptureWhiteField(s.NumPreWhite*recursive, s.Exposure); err != nil {
			return runID, err
		}
		if err := record(FrameWhite, 0, 0, s.NumPreWhite*recursive); err != nil {
			return runID, err
		}
	}

	err := m.InScope(true, func() error {
		if err := s.SamplePos.move(m); err != nil {
			return err
		}
		return m.OpenShutters()
	})
	if err != nil {
		return runID, err
	}

	for _, angle := range s.Angles() {
		log.Debug("stepping rotation stage", "angle_deg", angle)
		if err := m.Put("Motor_SampleRot", angle); err != nil {
			return runID, err
		}
		time.Sleep(s.StabilizeSleep)

		if err := m.CaptureProjections(recursive, s.Exposure); err != nil {
			return runID, err
		}
		if err := record(FrameSample, 0, angle, recursive); err != nil {
			return runID, err
		}
	}

	if s.NumPostWhite > 0 {
		if err := m.InScope(true, func() error { return s.OutPos.move(m) }); err != nil {
			return runID, err
		}
		log.Info("capturing post-scan white fields", "count", s.NumPostWhite)
		if err := m.CaptureWhiteField(s.NumPostWhite*recursive, s.Exposure); err != nil {
			return runID, err
		}
		if err := record(FrameWhite, 0, 0, s.NumPostWhite*recursive); err != nil {
			return runID, err
		}
	}

	if s.NumPostDark > 0 {
		if err := m.CloseShutters(); err != nil {
			return runID, err
		}
		log.Info("capturing post-scan dark fields", "count", s.NumPostDark)
		if err := m.CaptureDarkField(s.NumPostDark*recursive, s.Exposure); err != nil {
			return runID, err
		}
		if err := record(FrameDark, 0, 0, s.NumPostDark*recursive); err != nil {
			return runID, err
		}
	}

	if err := m.CloseShutters(); err != nil {
		return runID, err
	}

	log.Info("tomography step scan finished",
		"run_id", runID, "duration", time.Since(start))

	return runID, nil
}
