package tracking

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

// boxAt returns a 20x20 person box centred on (x, y)
func boxAt(id int64, x, y float64) Detection {
	return NewDetection(id, 0, BBox{x - 10, y - 10, x + 10, y + 10})
}

func newTestSession(t *testing.T, mode CountMode) *Session {
	t.Helper()
	opts := DefaultOptions()
	opts.Mode = mode
	return NewSession(square(t, 100, 100, 400, 400), opts)
}

func eventKinds(res FrameResult) []CrossingEvent {
	var out []CrossingEvent
	for _, ev := range res.Events {
		out = append(out, ev.Kind)
	}
	return out
}

func TestSingleObjectEnterAndExit(t *testing.T) {
	s := newTestSession(t, CountModeUnique)

	res := s.ProcessFrame(1, []Detection{boxAt(7, 50, 50)})
	require.Empty(t, res.Events)
	require.Empty(t, res.Visible)

	res = s.ProcessFrame(2, []Detection{boxAt(7, 250, 250)})
	require.Equal(t, []Event{{Frame: 2, TrackID: 7, DisplayID: 1, Kind: EventEntered, Centroid: Point{250, 250}}}, res.Events)
	require.Len(t, res.Visible, 1)
	require.Equal(t, 1, res.Visible[0].DisplayID)

	state, ok := s.Track(7)
	require.True(t, ok)
	require.Equal(t, 1, state.DisplayID)

	res = s.ProcessFrame(3, []Detection{boxAt(7, 250, 250)})
	require.Empty(t, res.Events)
	require.Len(t, res.Visible, 1)

	res = s.ProcessFrame(4, []Detection{boxAt(7, 500, 500)})
	require.Equal(t, []CrossingEvent{EventExited}, eventKinds(res))
	require.Equal(t, 1, res.Events[0].DisplayID)
	require.Empty(t, res.Visible)

	require.Equal(t, Snapshot{In: 1, Out: 1, Inside: 0}, s.Snapshot())

	state, _ = s.Track(7)
	require.False(t, state.Inside)
	require.True(t, state.EverInside)
	require.Equal(t, 1, state.DisplayID, "display id survives exit")
	require.Equal(t, []Point{{50, 50}, {250, 250}, {250, 250}, {500, 500}}, state.History)
	require.Equal(t, 1, state.FirstFrame)
	require.Equal(t, 4, state.LastFrame)
}

func TestStayingInsideEntersOnce(t *testing.T) {
	s := newTestSession(t, CountModeUnique)

	entered := 0
	for frame := 1; frame <= 50; frame++ {
		res := s.ProcessFrame(frame, []Detection{boxAt(3, 200, 200)})
		for _, ev := range res.Events {
			require.Equal(t, EventEntered, ev.Kind)
			entered++
		}
	}
	require.Equal(t, 1, entered)
	require.Equal(t, Snapshot{In: 1, Out: 0, Inside: 1}, s.Snapshot())
}

func TestEnteredCountMatchesTransitions(t *testing.T) {
	s := newTestSession(t, CountModeUnique)

	path := []Point{{50, 50}, {200, 200}, {210, 210}, {50, 200}, {60, 200}, {150, 150}, {500, 150}, {300, 300}}
	var entered, exited int
	for i, p := range path {
		res := s.ProcessFrame(i+1, []Detection{boxAt(11, p.X, p.Y)})
		for _, ev := range res.Events {
			switch ev.Kind {
			case EventEntered:
				entered++
			case EventExited:
				exited++
			}
		}
	}
	require.Equal(t, 3, entered)
	require.Equal(t, 2, exited)

	state, _ := s.Track(11)
	require.Equal(t, 1, state.DisplayID, "re-entry keeps the first display id")
	require.Equal(t, 1, s.DisplayIDsIssued())
}

func TestTwoObjectsOnlyOneEnters(t *testing.T) {
	s := newTestSession(t, CountModeUnique)

	for frame := 1; frame <= 5; frame++ {
		res := s.ProcessFrame(frame, []Detection{
			boxAt(100, 50+float64(frame)*40, 250), // A walks in from the left
			boxAt(200, 600, 600),                 // B never enters
		})
		for _, v := range res.Visible {
			require.Equal(t, int64(100), v.TrackID)
		}
	}

	require.Equal(t, Snapshot{In: 1, Out: 0, Inside: 1}, s.Snapshot())

	a, ok := s.Track(100)
	require.True(t, ok)
	require.Equal(t, 1, a.DisplayID)

	b, ok := s.Track(200)
	require.True(t, ok)
	require.Zero(t, b.DisplayID)
	require.False(t, b.EverInside)
	require.False(t, s.counts.Inflow(200))
	require.False(t, s.counts.Outflow(200))
}

func TestDisplayIDsFollowEntryOrder(t *testing.T) {
	s := newTestSession(t, CountModeUnique)

	s.ProcessFrame(1, []Detection{boxAt(9001, 50, 50), boxAt(42, 50, 50), boxAt(77, 50, 50)})
	s.ProcessFrame(2, []Detection{boxAt(9001, 50, 50), boxAt(42, 200, 200), boxAt(77, 50, 50)})
	s.ProcessFrame(3, []Detection{boxAt(9001, 300, 300), boxAt(42, 200, 200), boxAt(77, 50, 50)})

	for id, want := range map[int64]int{42: 1, 9001: 2, 77: 0} {
		state, ok := s.Track(id)
		require.True(t, ok)
		require.Equal(t, want, state.DisplayID, "track %d", id)
	}
}

func TestReentryIsNotRecountedInUniqueMode(t *testing.T) {
	s := newTestSession(t, CountModeUnique)

	for i, p := range []Point{{50, 50}, {250, 250}, {500, 500}, {250, 250}} {
		s.ProcessFrame(i+1, []Detection{boxAt(5, p.X, p.Y)})
	}
	require.Equal(t, Snapshot{In: 1, Out: 1, Inside: 0}, s.Snapshot())
}

func TestEveryEntryModeCountsEachEdge(t *testing.T) {
	s := newTestSession(t, CountModeEveryEntry)

	for i, p := range []Point{{50, 50}, {250, 250}, {500, 500}, {250, 250}} {
		s.ProcessFrame(i+1, []Detection{boxAt(5, p.X, p.Y)})
	}
	require.Equal(t, Snapshot{In: 2, Out: 1, Inside: 1}, s.Snapshot())

	state, _ := s.Track(5)
	require.Equal(t, 1, state.DisplayID)
}

func TestMalformedDetectionsAreSkipped(t *testing.T) {
	s := newTestSession(t, CountModeUnique)

	id := int64(4)
	cls := 0
	nan := BBox{math.NaN(), 0, 10, 10}
	flat := BBox{200, 200, 200, 260}

	res := s.ProcessFrame(1, []Detection{
		{ClassID: &cls, BBox: &BBox{240, 240, 260, 260}},
		{TrackID: &id, BBox: &BBox{240, 240, 260, 260}},
		{TrackID: &id, ClassID: &cls},
		{TrackID: &id, ClassID: &cls, BBox: &nan},
		{TrackID: &id, ClassID: &cls, BBox: &flat},
	})
	require.Equal(t, 5, res.Skipped)
	require.Empty(t, res.Events)
	require.Zero(t, s.TrackCount(), "malformed detections must not create state")

	res = s.ProcessFrame(2, []Detection{boxAt(4, 250, 250)})
	require.Zero(t, res.Skipped)
	require.Equal(t, []CrossingEvent{EventEntered}, eventKinds(res))
}

func TestRepeatedTrackIDInFrameIsSkipped(t *testing.T) {
	s := newTestSession(t, CountModeUnique)

	res := s.ProcessFrame(1, []Detection{boxAt(5, 250, 250), boxAt(5, 50, 50)})
	require.Equal(t, 1, res.Skipped)
	require.Equal(t, []CrossingEvent{EventEntered}, eventKinds(res))
	require.Equal(t, Snapshot{In: 1, Inside: 1}, res.Snapshot)

	state, _ := s.Track(5)
	require.True(t, state.Inside)
	require.Equal(t, []Point{{250, 250}}, state.History)

	res = s.ProcessFrame(2, []Detection{boxAt(5, 50, 50)})
	require.Zero(t, res.Skipped)
	require.Equal(t, []CrossingEvent{EventExited}, eventKinds(res))
}

func TestOtherClassesAreIgnored(t *testing.T) {
	s := newTestSession(t, CountModeUnique)

	res := s.ProcessFrame(1, []Detection{NewDetection(1, 2, BBox{240, 240, 260, 260})})
	require.Zero(t, res.Skipped)
	require.Empty(t, res.Events)
	require.Zero(t, s.TrackCount())

	opts := DefaultOptions()
	opts.TargetClassID = AnyClass
	all := NewSession(s.ROI(), opts)
	res = all.ProcessFrame(1, []Detection{NewDetection(1, 2, BBox{240, 240, 260, 260})})
	require.Equal(t, []CrossingEvent{EventEntered}, eventKinds(res))
}

func TestHistoryLimit(t *testing.T) {
	opts := DefaultOptions()
	opts.HistoryLimit = 3
	s := NewSession(square(t, 100, 100, 400, 400), opts)

	for i := 0; i < 10; i++ {
		s.ProcessFrame(i+1, []Detection{boxAt(1, 150+float64(i), 150)})
	}
	state, _ := s.Track(1)
	require.Equal(t, []Point{{157, 150}, {158, 150}, {159, 150}}, state.History)
}

func TestVisibleHistoryIsNotAliased(t *testing.T) {
	s := newTestSession(t, CountModeUnique)

	res := s.ProcessFrame(1, []Detection{boxAt(1, 200, 200)})
	hist := res.Visible[0].History
	s.ProcessFrame(2, []Detection{boxAt(1, 210, 210)})
	grown := append(hist, Point{-1, -1})
	require.Equal(t, []Point{{200, 200}, {-1, -1}}, grown)

	state, _ := s.Track(1)
	require.Equal(t, []Point{{200, 200}, {210, 210}}, state.History)
}

func TestSnapshotIsDeterministic(t *testing.T) {
	timeline := func() [][]Detection {
		var frames [][]Detection
		for f := 0; f < 60; f++ {
			var dets []Detection
			for id := int64(1); id <= 6; id++ {
				x := math.Mod(float64(f*7)+float64(id*53), 500)
				y := math.Mod(float64(f*11)+float64(id*29), 500)
				dets = append(dets, boxAt(id, x, y))
			}
			frames = append(frames, dets)
		}
		return frames
	}

	run := func() (Snapshot, []Event) {
		s := newTestSession(t, CountModeUnique)
		var events []Event
		for i, dets := range timeline() {
			events = append(events, s.ProcessFrame(i+1, dets).Events...)
		}
		return s.Snapshot(), events
	}

	firstSnap, firstEvents := run()
	for i := 0; i < 5; i++ {
		snap, events := run()
		if diff := cmp.Diff(firstSnap, snap); diff != "" {
			t.Fatalf("snapshot differs on run %d (-first +got):\n%s", i, diff)
		}
		if diff := cmp.Diff(firstEvents, events); diff != "" {
			t.Fatalf("events differ on run %d (-first +got):\n%s", i, diff)
		}
	}
	require.NotEmpty(t, firstEvents)
}
