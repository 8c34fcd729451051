package scan

import (
	"time"

	"github.com/txmlab/go-txm/txm"
)

// FrameKind classifies a recorded acquisition.
type FrameKind string

const (
	FrameSample FrameKind = "sample"
	FrameWhite  FrameKind = "white"
	FrameDark   FrameKind = "dark"
)

// Run describes one scan invocation.
type Run struct {
	ID        string
	Kind      string
	StartedAt time.Time
}

// Point is one recorded acquisition within a run.
type Point struct {
	RunID    string
	Seq      int
	Kind     FrameKind
	Energy   float64 // keV, zero when the scan is not energy resolved
	Rotation float64 // degrees
	Frames   int
	At       time.Time
}

// Recorder persists scan runs and the points captured within them.
type Recorder interface {
	BeginRun(run Run) error
	RecordPoint(p Point) error
	EndRun(runID string, finishedAt time.Time) error
}

// NopRecorder discards everything it is given.
type NopRecorder struct{}

func (NopRecorder) BeginRun(Run) error             { return nil }
func (NopRecorder) RecordPoint(Point) error        { return nil }
func (NopRecorder) EndRun(string, time.Time) error { return nil }

// Position is a sample-stage target. Nil axes are left where they are.
type Position struct {
	X, Y, Z, Theta *float64
}

func (p Position) move(m *txm.Microscope) error {
	return m.MoveSample(p.X, p.Y, p.Z, p.Theta)
}
