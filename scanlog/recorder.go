package scanlog

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	// SQLite driver.
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/xid"
	"github.com/tebeka/atexit"

	"github.com/txmlab/go-txm/logger"
	"github.com/txmlab/go-txm/scan"
)

// ErrClosed is returned when recording to a closed recorder.
var ErrClosed = errors.New("scanlog: recorder closed")

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	kind        TEXT NOT NULL,
	started_at  INTEGER NOT NULL,
	finished_at INTEGER
);
CREATE TABLE IF NOT EXISTS points (
	run_id   TEXT NOT NULL REFERENCES runs(id),
	seq      INTEGER NOT NULL,
	kind     TEXT NOT NULL,
	energy   REAL NOT NULL,
	rotation REAL NOT NULL,
	frames   INTEGER NOT NULL,
	at       INTEGER NOT NULL,
	PRIMARY KEY (run_id, seq)
);
`

// Recorder persists runs and points to a SQLite file.
//
// Safe for use from a single scan at a time; the internal mutex only guards
// against a concurrent Close, e.g. from the exit hook.
type Recorder struct {
	db     *sql.DB
	path   string
	logger logger.Logger

	mu     sync.Mutex
	closed bool
}

// Open creates or opens the database at path. An empty path derives a fresh
// file name, so repeated detached runs never collide. The recorder is flushed
// and closed on process exit through atexit.
func Open(path string) (*Recorder, error) {
	if path == "" {
		path = "scanlog_" + xid.New().String() + ".sqlite3"
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("scanlog: open %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("scanlog: create schema: %w", err)
	}

	r := &Recorder{db: db, path: path, logger: logger.GetLogger()}
	atexit.Register(func() { _ = r.Close() })

	r.logger.Info("scan log opened", "path", path)

	return r, nil
}

// Path returns the database file path.
func (r *Recorder) Path() string { return r.path }

// SetLogger replaces the recorder's logger.
func (r *Recorder) SetLogger(l logger.Logger) {
	if l != nil {
		r.logger = l
	}
}

// BeginRun inserts a new run row.
func (r *Recorder) BeginRun(run scan.Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}

	_, err := r.db.Exec(
		`INSERT INTO runs (id, kind, started_at) VALUES (?, ?, ?)`,
		run.ID, run.Kind, run.StartedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("scanlog: begin run %s: %w", run.ID, err)
	}

	return nil
}

// RecordPoint inserts one captured point.
func (r *Recorder) RecordPoint(p scan.Point) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}

	_, err := r.db.Exec(
		`INSERT INTO points (run_id, seq, kind, energy, rotation, frames, at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.RunID, p.Seq, string(p.Kind), p.Energy, p.Rotation, p.Frames, p.At.UnixNano())
	if err != nil {
		return fmt.Errorf("scanlog: record point %s/%d: %w", p.RunID, p.Seq, err)
	}

	return nil
}

// EndRun stamps the run's finish time.
func (r *Recorder) EndRun(runID string, finishedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}

	res, err := r.db.Exec(
		`UPDATE runs SET finished_at = ? WHERE id = ?`,
		finishedAt.UnixNano(), runID)
	if err != nil {
		return fmt.Errorf("scanlog: end run %s: %w", runID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("scanlog: end run %s: unknown run", runID)
	}

	return nil
}

// RunRecord is a stored run with its completion time, if any.
type RunRecord struct {
	scan.Run
	FinishedAt time.Time // zero while the run is still open
}

// Runs lists stored runs, oldest first.
func (r *Recorder) Runs() ([]RunRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrClosed
	}

	rows, err := r.db.Query(
		`SELECT id, kind, started_at, finished_at FROM runs ORDER BY started_at`)
	if err != nil {
		return nil, fmt.Errorf("scanlog: list runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var (
			rec      RunRecord
			started  int64
			finished sql.NullInt64
		)
		if err := rows.Scan(&rec.ID, &rec.Kind, &started, &finished); err != nil {
			return nil, fmt.Errorf("scanlog: scan run row: %w", err)
		}
		rec.StartedAt = time.Unix(0, started)
		if finished.Valid {
			rec.FinishedAt = time.Unix(0, finished.Int64)
		}
		runs = append(runs, rec)
	}

	return runs, rows.Err()
}

// Points lists the points of one run in capture order.
func (r *Recorder) Points(runID string) ([]scan.Point, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrClosed
	}

	rows, err := r.db.Query(
		`SELECT run_id, seq, kind, energy, rotation, frames, at
		 FROM points WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("scanlog: list points: %w", err)
	}
	defer rows.Close()

	var points []scan.Point
	for rows.Next() {
		var (
			p    scan.Point
			kind string
			at   int64
		)
		if err := rows.Scan(&p.RunID, &p.Seq, &kind, &p.Energy, &p.Rotation, &p.Frames, &at); err != nil {
			return nil, fmt.Errorf("scanlog: scan point row: %w", err)
		}
		p.Kind = scan.FrameKind(kind)
		p.At = time.Unix(0, at)
		points = append(points, p)
	}

	return points, rows.Err()
}

// Close flushes and closes the database. Further calls are no-ops.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true

	return r.db.Close()
}
