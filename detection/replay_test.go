package detection

import (
	"strings"
	"testing"

	"roicount/tracking"

	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func TestReplayTracker(t *testing.T) {
	input := strings.Join([]string{
		`{"frame": 1, "detections": [{"track_id": 5, "class_id": 0, "bbox": [10, 10, 30, 50]}]}`,
		`{"frame": 3, "detections": [{"track_id": 5, "class_id": 0, "bbox": [12, 10, 32, 50]}, {"track_id": 6, "class_id": 2, "bbox": [0, 0, 5, 5]}]}`,
		``,
		`{"detections": []}`,
	}, "\n")
	rt := NewReplayTracker(strings.NewReader(input))
	frame := gocv.NewMat()
	defer frame.Close()

	dets, err := rt.Track(frame, 1)
	require.NoError(t, err)
	require.Equal(t, []tracking.Detection{tracking.NewDetection(5, 0, tracking.BBox{10, 10, 30, 50})}, dets)

	dets, err = rt.Track(frame, 2)
	require.NoError(t, err)
	require.Empty(t, dets)

	dets, err = rt.Track(frame, 3)
	require.NoError(t, err)
	require.Len(t, dets, 2)
	require.Equal(t, int64(6), *dets[1].TrackID)

	dets, err = rt.Track(frame, 4)
	require.NoError(t, err)
	require.Empty(t, dets)

	dets, err = rt.Track(frame, 5)
	require.NoError(t, err)
	require.Nil(t, dets)
	require.NoError(t, rt.Close())
}

func TestReplayTrackerSkipsPastFrames(t *testing.T) {
	input := `{"frame": 2, "detections": [{"track_id": 1, "class_id": 0, "bbox": [0, 0, 4, 4]}]}
{"frame": 4, "detections": [{"track_id": 1, "class_id": 0, "bbox": [1, 0, 5, 4]}]}`
	rt := NewReplayTracker(strings.NewReader(input))

	dets, err := rt.Track(gocv.Mat{}, 4)
	require.NoError(t, err)
	require.Len(t, dets, 1)
	require.Equal(t, tracking.BBox{1, 0, 5, 4}, *dets[0].BBox)
}

func TestReplayTrackerMalformedFields(t *testing.T) {
	input := `{"frame": 1, "detections": [
		{"class_id": 0, "bbox": [0, 0, 4, 4]},
		{"track_id": "x", "class_id": 0, "bbox": [0, 0, 4, 4]},
		{"track_id": 2, "bbox": [0, 0, 4, 4]},
		{"track_id": 3, "class_id": 0, "bbox": [0, 0, 4]},
		{"track_id": 4, "class_id": 0, "bbox": [0, "a", 4, 4]},
		{"track_id": 3.7, "class_id": 0, "bbox": [0, 0, 4, 4]},
		{"track_id": 6, "class_id": 0.5, "bbox": [0, 0, 4, 4]}
	]}`
	rt := NewReplayTracker(strings.NewReader(strings.ReplaceAll(input, "\n", " ")))

	dets, err := rt.Track(gocv.Mat{}, 1)
	require.NoError(t, err)
	require.Len(t, dets, 7)
	require.Nil(t, dets[5].TrackID, "fractional track id")
	require.Nil(t, dets[6].ClassID, "fractional class id")
	for _, d := range dets {
		_, err := d.Validate()
		require.ErrorIs(t, err, tracking.ErrMalformedDetection)
	}
}

func TestReplayTrackerAcceptsIntegralFloats(t *testing.T) {
	rt := NewReplayTracker(strings.NewReader(`{"frame": 1, "detections": [{"track_id": 3.0, "class_id": 0, "bbox": [0, 0, 4, 4]}]}`))

	dets, err := rt.Track(gocv.Mat{}, 1)
	require.NoError(t, err)
	require.Len(t, dets, 1)
	require.Equal(t, int64(3), *dets[0].TrackID)
}

func TestReplayTrackerErrors(t *testing.T) {
	rt := NewReplayTracker(strings.NewReader("{not json}\n"))
	_, err := rt.Track(gocv.Mat{}, 1)
	require.Error(t, err)

	rt = NewReplayTracker(strings.NewReader(`{"frame": 3}` + "\n" + `{"frame": 2}`))
	_, err = rt.Track(gocv.Mat{}, 3)
	require.NoError(t, err)
	_, err = rt.Track(gocv.Mat{}, 4)
	require.ErrorContains(t, err, "ascending")
}
