package report

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"roicount/tracking"

	"github.com/stretchr/testify/require"
)

func observe(t *testing.T, op *OccupancyPlotter, frame int, snap tracking.Snapshot) {
	t.Helper()
	require.NoError(t, op.ObserveFrame(context.Background(), tracking.FrameResult{Frame: frame, Snapshot: snap}, 0))
}

func TestObserveCompactsUnchangedRuns(t *testing.T) {
	op := NewOccupancyPlotter("test")
	for f := 1; f <= 5; f++ {
		observe(t, op, f, tracking.Snapshot{})
	}
	observe(t, op, 6, tracking.Snapshot{In: 1, Inside: 1})
	observe(t, op, 7, tracking.Snapshot{In: 1, Inside: 1})
	observe(t, op, 8, tracking.Snapshot{In: 1, Out: 1})

	frames := []int{}
	for _, s := range op.Samples() {
		frames = append(frames, s.Frame)
	}
	require.Equal(t, []int{1, 5, 6, 7, 8}, frames)
}

func TestSavePNG(t *testing.T) {
	op := NewOccupancyPlotter("Occupancy")
	observe(t, op, 1, tracking.Snapshot{})
	observe(t, op, 2, tracking.Snapshot{In: 1, Inside: 1})
	observe(t, op, 3, tracking.Snapshot{In: 2, Inside: 2})
	observe(t, op, 4, tracking.Snapshot{In: 2, Out: 1, Inside: 1})

	path := filepath.Join(t.TempDir(), "occupancy.png")
	require.NoError(t, op.Save(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(data, []byte("\x89PNG\r\n\x1a\n")))
}

func TestSaveWithoutSamples(t *testing.T) {
	op := NewOccupancyPlotter("empty")
	require.ErrorIs(t, op.Save(filepath.Join(t.TempDir(), "x.png")), ErrNoSamples)
}
