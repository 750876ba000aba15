package eventlog

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"roicount/tracking"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "events.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func frameWithEvents() tracking.FrameResult {
	return tracking.FrameResult{
		Frame: 2,
		Events: []tracking.Event{
			{Frame: 2, TrackID: 7, DisplayID: 1, Kind: tracking.EventEntered, Centroid: tracking.Point{X: 250, Y: 250}},
			{Frame: 2, TrackID: 9, DisplayID: 2, Kind: tracking.EventExited, Centroid: tracking.Point{X: 50.5, Y: 10}},
		},
		Snapshot: tracking.Snapshot{In: 2, Out: 1, Inside: 1},
	}
}

func TestOpenMigrates(t *testing.T) {
	s := openTestStore(t)
	version, dirty, err := s.MigrateVersion()
	require.NoError(t, err)
	require.False(t, dirty)
	require.Equal(t, uint(1), version)

	// reopening an up-to-date database is a no-op
	require.NoError(t, s.MigrateUp())
}

func TestRunLifecycle(t *testing.T) {
	s := openTestStore(t)
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }
	ctx := context.Background()

	run, err := s.StartRun(ctx, "people.mp4")
	require.NoError(t, err)
	require.Len(t, run.ID(), 36)

	require.NoError(t, run.ObserveFrame(ctx, tracking.FrameResult{Frame: 1}, time.Millisecond))
	require.NoError(t, run.ObserveFrame(ctx, frameWithEvents(), time.Millisecond))

	rec, err := s.GetRun(ctx, run.ID())
	require.NoError(t, err)
	require.True(t, rec.FinishedAt.IsZero())

	require.NoError(t, run.Finish(ctx, tracking.Snapshot{In: 2, Out: 1, Inside: 1}))

	rec, err = s.GetRun(ctx, run.ID())
	require.NoError(t, err)
	want := RunRecord{
		ID:         run.ID(),
		Input:      "people.mp4",
		StartedAt:  fixed,
		FinishedAt: fixed,
		Frames:     2,
		Counts:     tracking.Snapshot{In: 2, Out: 1, Inside: 1},
	}
	if diff := cmp.Diff(want, rec); diff != "" {
		t.Fatalf("run mismatch (-want +got):\n%s", diff)
	}

	events, err := s.Events(ctx, run.ID())
	require.NoError(t, err)
	wantEvents := []EventRecord{
		{RunID: run.ID(), Frame: 2, TrackID: 7, DisplayID: 1, Event: "entered", X: 250, Y: 250, RecordedAt: fixed},
		{RunID: run.ID(), Frame: 2, TrackID: 9, DisplayID: 2, Event: "exited", X: 50.5, Y: 10, RecordedAt: fixed},
	}
	if diff := cmp.Diff(wantEvents, events); diff != "" {
		t.Fatalf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestObserveFrameAfterInterrupt(t *testing.T) {
	s := openTestStore(t)
	run, err := s.StartRun(context.Background(), "people.mp4")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.Error(t, run.ObserveFrame(ctx, frameWithEvents(), 0), "a cancelled context aborts the insert")
	require.NoError(t, run.ObserveFrame(context.WithoutCancel(ctx), frameWithEvents(), 0))
	require.NoError(t, run.Finish(context.Background(), tracking.Snapshot{In: 2, Out: 1, Inside: 1}))

	events, err := s.Events(context.Background(), run.ID())
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, "entered", events[0].Event)
}

func TestRunsAreSeparate(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	a, err := s.StartRun(ctx, "a.mp4")
	require.NoError(t, err)
	b, err := s.StartRun(ctx, "b.mp4")
	require.NoError(t, err)
	require.NotEqual(t, a.ID(), b.ID())

	require.NoError(t, a.ObserveFrame(ctx, frameWithEvents(), 0))

	events, err := s.Events(ctx, b.ID())
	require.NoError(t, err)
	require.Empty(t, events)
}

func TestGetRunUnknown(t *testing.T) {
	s := openTestStore(t)
	_, err := s.GetRun(context.Background(), "nope")
	require.ErrorIs(t, err, ErrUnknownRun)
}

func TestOpenFailure(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing", "dir", "events.db"), zerolog.Nop())
	require.ErrorIs(t, err, ErrOpen)
}

func TestJSONLWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "run-1")

	require.NoError(t, w.ObserveFrame(context.Background(), tracking.FrameResult{Frame: 1}, 0))
	require.NoError(t, w.ObserveFrame(context.Background(), frameWithEvents(), 0))
	require.NoError(t, w.Close())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	first := gjson.Parse(lines[0])
	require.Equal(t, "run-1", first.Get("run_id").String())
	require.Equal(t, int64(2), first.Get("frame").Int())
	require.Equal(t, int64(7), first.Get("track_id").Int())
	require.Equal(t, int64(1), first.Get("display_id").Int())
	require.Equal(t, "entered", first.Get("event").String())
	require.Equal(t, 250.0, first.Get("x").Float())

	second := gjson.Parse(lines[1])
	require.Equal(t, "exited", second.Get("event").String())
	require.Equal(t, 50.5, second.Get("x").Float())
}

func TestCreateJSONL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	w, err := CreateJSONL(path, "run-2")
	require.NoError(t, err)
	require.NoError(t, w.ObserveFrame(context.Background(), frameWithEvents(), 0))
	require.NoError(t, w.Close())

	_, err = CreateJSONL(filepath.Join(t.TempDir(), "missing", "events.jsonl"), "run-3")
	require.Error(t, err)
}
