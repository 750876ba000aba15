package eventlog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"roicount/tracking"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

// ErrOpen is returned when the event database cannot be opened or migrated
var ErrOpen = errors.New("open event store")

// ErrUnknownRun is returned when a run id has no row
var ErrUnknownRun = errors.New("unknown run")

const timeLayout = time.RFC3339Nano

// Store persists runs and their crossing events to SQLite
type Store struct {
	db  *sql.DB
	log zerolog.Logger
	now func() time.Time
}

// RunRecord is one row of the runs table
type RunRecord struct {
	ID         string
	Input      string
	StartedAt  time.Time
	FinishedAt time.Time // zero while the run is in progress
	Frames     int
	Counts     tracking.Snapshot
}

// EventRecord is one row of the crossing_events table
type EventRecord struct {
	RunID      string
	Frame      int
	TrackID    int64
	DisplayID  int
	Event      string
	X, Y       float64
	RecordedAt time.Time
}

// Open opens (creating if needed) the database at path and migrates it
func Open(path string, log zerolog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOpen, err)
	}
	// one connection keeps writes serialised and lets :memory: databases work
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA busy_timeout = 5000; PRAGMA foreign_keys = ON`); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %w", ErrOpen, err)
	}

	s := &Store{
		db:  db,
		log: log.With().Str("component", "EVENTLOG").Logger(),
		now: time.Now,
	}
	if err := s.MigrateUp(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %w", ErrOpen, err)
	}
	return s, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// StartRun inserts a new run row and returns a handle that records into it
func (s *Store) StartRun(ctx context.Context, input string) (*Run, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, input, started_at) VALUES (?, ?, ?)`,
		id, input, s.now().UTC().Format(timeLayout))
	if err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}
	s.log.Info().Str("run_id", id).Str("input", input).Msg("run started")
	return &Run{store: s, id: id}, nil
}

// GetRun returns the stored row for id
func (s *Store) GetRun(ctx context.Context, id string) (RunRecord, error) {
	var (
		rec               RunRecord
		started, finished sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT run_id, input, started_at, finished_at, frames, inflow, outflow, inside FROM runs WHERE run_id = ?`, id,
	).Scan(&rec.ID, &rec.Input, &started, &finished, &rec.Frames, &rec.Counts.In, &rec.Counts.Out, &rec.Counts.Inside)
	if errors.Is(err, sql.ErrNoRows) {
		return RunRecord{}, fmt.Errorf("%w: %s", ErrUnknownRun, id)
	}
	if err != nil {
		return RunRecord{}, fmt.Errorf("query run: %w", err)
	}
	if rec.StartedAt, err = parseTime(started); err != nil {
		return RunRecord{}, err
	}
	if rec.FinishedAt, err = parseTime(finished); err != nil {
		return RunRecord{}, err
	}
	return rec, nil
}

// Events returns the crossing events of a run in recording order
func (s *Store) Events(ctx context.Context, runID string) ([]EventRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, frame, track_id, display_id, event, x, y, recorded_at
		 FROM crossing_events WHERE run_id = ? ORDER BY event_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []EventRecord
	for rows.Next() {
		var (
			rec      EventRecord
			recorded sql.NullString
		)
		if err := rows.Scan(&rec.RunID, &rec.Frame, &rec.TrackID, &rec.DisplayID, &rec.Event, &rec.X, &rec.Y, &recorded); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if rec.RecordedAt, err = parseTime(recorded); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func parseTime(v sql.NullString) (time.Time, error) {
	if !v.Valid || v.String == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(timeLayout, v.String)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", v.String, err)
	}
	return t, nil
}

// Run records the events of one counting run
type Run struct {
	store  *Store
	id     string
	frames int
}

// ID returns the run's uuid
func (r *Run) ID() string {
	return r.id
}

// ObserveFrame stores the frame's crossing events in a single transaction
func (r *Run) ObserveFrame(ctx context.Context, res tracking.FrameResult, _ time.Duration) error {
	r.frames++
	if len(res.Events) == 0 {
		return nil
	}

	tx, err := r.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO crossing_events (run_id, frame, track_id, display_id, event, x, y, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	now := r.store.now().UTC().Format(timeLayout)
	for _, ev := range res.Events {
		if _, err := stmt.ExecContext(ctx, r.id, ev.Frame, ev.TrackID, ev.DisplayID, ev.Kind.String(), ev.Centroid.X, ev.Centroid.Y, now); err != nil {
			return fmt.Errorf("insert event: %w", err)
		}
	}
	return tx.Commit()
}

// Finish stores the final counts and the finish time
func (r *Run) Finish(ctx context.Context, snap tracking.Snapshot) error {
	_, err := r.store.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, frames = ?, inflow = ?, outflow = ?, inside = ? WHERE run_id = ?`,
		r.store.now().UTC().Format(timeLayout), r.frames, snap.In, snap.Out, snap.Inside, r.id)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	r.store.log.Info().Str("run_id", r.id).Int("frames", r.frames).
		Int("inflow", snap.In).Int("outflow", snap.Out).Int("inside", snap.Inside).Msg("run finished")
	return nil
}
