package tracking

import (
	"image"
	"testing"

	"github.com/stretchr/testify/require"
)

func square(t *testing.T, x1, y1, x2, y2 float64) Polygon {
	t.Helper()
	roi, err := NewPolygon([]Point{{x1, y1}, {x2, y1}, {x2, y2}, {x1, y2}})
	require.NoError(t, err)
	return roi
}

func TestBuildROI(t *testing.T) {
	roi, err := BuildROI(1000, 500, DefaultMarginFraction)
	require.NoError(t, err)
	require.Equal(t, []Point{{300, 150}, {700, 150}, {700, 350}, {300, 350}}, roi.Points())
	require.Equal(t, image.Rect(300, 150, 700, 350), roi.Bounds())

	// Margins are truncated to whole pixels.
	roi, err = BuildROI(1001, 7, 0.3)
	require.NoError(t, err)
	require.Equal(t, []Point{{300, 2}, {701, 2}, {701, 5}, {300, 5}}, roi.Points())

	roi, err = BuildROI(640, 480, 0)
	require.NoError(t, err)
	require.Equal(t, image.Rect(0, 0, 640, 480), roi.Bounds())
}

func TestBuildROIRejectsBadInput(t *testing.T) {
	for _, tc := range []struct {
		w, h   int
		margin float64
	}{
		{0, 480, 0.3},
		{640, -1, 0.3},
		{640, 480, -0.1},
		{640, 480, 0.5},
		{640, 480, 0.9},
	} {
		_, err := BuildROI(tc.w, tc.h, tc.margin)
		require.ErrorIs(t, err, ErrInvalidROI, "%+v", tc)
	}
}

func TestNewPolygonValidation(t *testing.T) {
	_, err := NewPolygon([]Point{{0, 0}, {1, 1}})
	require.ErrorIs(t, err, ErrInvalidROI)

	_, err = NewPolygon([]Point{{0, 0}, {1, 1}, {2, 2}})
	require.ErrorIs(t, err, ErrInvalidROI, "collinear points have no area")

	pts := []Point{{0, 0}, {10, 0}, {0, 10}}
	roi, err := NewPolygon(pts)
	require.NoError(t, err)
	pts[0] = Point{99, 99}
	require.Equal(t, Point{0, 0}, roi.Points()[0], "polygon must not alias caller slice")
}

func TestContains(t *testing.T) {
	roi := square(t, 100, 100, 400, 400)

	require.True(t, roi.Contains(Point{250, 250}))
	require.False(t, roi.Contains(Point{50, 50}))
	require.False(t, roi.Contains(Point{500, 500}))
	require.False(t, roi.Contains(Point{250, 401}))
}

func TestContainsBoundaryIsInside(t *testing.T) {
	roi := square(t, 100, 100, 400, 400)

	for _, p := range []Point{
		{100, 250}, // left edge
		{400, 250}, // right edge
		{250, 100}, // top edge
		{250, 400}, // bottom edge
		{100, 100}, // vertices
		{400, 400},
	} {
		require.True(t, roi.Contains(p), "%v should be inside", p)
	}
	require.False(t, roi.Contains(Point{99.5, 250}))
	require.False(t, roi.Contains(Point{250, 400.5}))
}

func TestContainsConcavePolygon(t *testing.T) {
	// An L shape: the notch at the top right is outside.
	roi, err := NewPolygon([]Point{{0, 0}, {50, 0}, {50, 50}, {100, 50}, {100, 100}, {0, 100}})
	require.NoError(t, err)

	require.True(t, roi.Contains(Point{25, 25}))
	require.True(t, roi.Contains(Point{75, 75}))
	require.False(t, roi.Contains(Point{75, 25}))
	require.True(t, roi.Contains(Point{75, 50}), "point on the inner edge")
}

func TestEmptyPolygonContainsNothing(t *testing.T) {
	var roi Polygon
	require.True(t, roi.Empty())
	require.False(t, roi.Contains(Point{0, 0}))
	require.Equal(t, image.Rectangle{}, roi.Bounds())
}
