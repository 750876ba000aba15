package tracking

import (
	"errors"
	"fmt"
	"image"
	"math"
)

// ErrInvalidROI is returned when a region of interest cannot be built.
var ErrInvalidROI = errors.New("invalid roi")

// DefaultMarginFraction is the inset applied on every side of the frame
const DefaultMarginFraction = 0.3

// Polygon is a closed region of interest. It is not modified after construction.
type Polygon struct {
	points []Point
}

// BuildROI returns the rectangle inset from the frame edges by margin on each side,
// ordered clockwise from the top-left corner.
func BuildROI(width, height int, margin float64) (Polygon, error) {
	if width <= 0 || height <= 0 {
		return Polygon{}, fmt.Errorf("%w: frame size %dx%d", ErrInvalidROI, width, height)
	}
	if math.IsNaN(margin) || margin < 0 || margin >= 0.5 {
		return Polygon{}, fmt.Errorf("%w: margin fraction %v outside [0, 0.5)", ErrInvalidROI, margin)
	}

	mx := float64(int(float64(width) * margin))
	my := float64(int(float64(height) * margin))
	w, h := float64(width), float64(height)

	return Polygon{points: []Point{
		{X: mx, Y: my},
		{X: w - mx, Y: my},
		{X: w - mx, Y: h - my},
		{X: mx, Y: h - my},
	}}, nil
}

// NewPolygon builds a region from explicit vertices
func NewPolygon(points []Point) (Polygon, error) {
	if len(points) < 3 {
		return Polygon{}, fmt.Errorf("%w: need at least 3 points, got %d", ErrInvalidROI, len(points))
	}
	for _, p := range points {
		if math.IsNaN(p.X) || math.IsNaN(p.Y) || math.IsInf(p.X, 0) || math.IsInf(p.Y, 0) {
			return Polygon{}, fmt.Errorf("%w: non-finite vertex %v", ErrInvalidROI, p)
		}
	}
	if polygonArea(points) == 0 {
		return Polygon{}, fmt.Errorf("%w: zero-area polygon", ErrInvalidROI)
	}
	pts := make([]Point, len(points))
	copy(pts, points)
	return Polygon{points: pts}, nil
}

// Points returns a copy of the vertices
func (pg Polygon) Points() []Point {
	out := make([]Point, len(pg.points))
	copy(out, pg.points)
	return out
}

// ImagePoints returns the vertices as integer pixels for drawing
func (pg Polygon) ImagePoints() []image.Point {
	out := make([]image.Point, len(pg.points))
	for i, p := range pg.points {
		out[i] = p.ImagePoint()
	}
	return out
}

// Bounds returns the axis-aligned bounding rectangle
func (pg Polygon) Bounds() image.Rectangle {
	if len(pg.points) == 0 {
		return image.Rectangle{}
	}
	minX, minY := pg.points[0].X, pg.points[0].Y
	maxX, maxY := minX, minY
	for _, p := range pg.points[1:] {
		minX, maxX = math.Min(minX, p.X), math.Max(maxX, p.X)
		minY, maxY = math.Min(minY, p.Y), math.Max(maxY, p.Y)
	}
	return image.Rect(int(minX), int(minY), int(maxX), int(maxY))
}

// Empty reports whether the polygon has no vertices
func (pg Polygon) Empty() bool {
	return len(pg.points) == 0
}

// Contains reports whether p is inside the polygon. Points on an edge or vertex count as inside.
func (pg Polygon) Contains(p Point) bool {
	n := len(pg.points)
	if n < 3 {
		return false
	}

	inside := false
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		a, b := pg.points[j], pg.points[i]
		if onSegment(a, b, p) {
			return true
		}
		// Half-open rule on y so a vertex shared by two edges is counted once.
		if (b.Y > p.Y) != (a.Y > p.Y) {
			xCross := b.X + (p.Y-b.Y)*(a.X-b.X)/(a.Y-b.Y)
			if p.X < xCross {
				inside = !inside
			}
		}
	}
	return inside
}

const edgeEpsilon = 1e-9

func onSegment(a, b, p Point) bool {
	cross := (b.X-a.X)*(p.Y-a.Y) - (b.Y-a.Y)*(p.X-a.X)
	if math.Abs(cross) > edgeEpsilon*math.Max(1, math.Hypot(b.X-a.X, b.Y-a.Y)) {
		return false
	}
	return p.X >= math.Min(a.X, b.X)-edgeEpsilon && p.X <= math.Max(a.X, b.X)+edgeEpsilon &&
		p.Y >= math.Min(a.Y, b.Y)-edgeEpsilon && p.Y <= math.Max(a.Y, b.Y)+edgeEpsilon
}

func polygonArea(points []Point) float64 {
	var sum float64
	for i := range points {
		j := (i + 1) % len(points)
		sum += points[i].X*points[j].Y - points[j].X*points[i].Y
	}
	return math.Abs(sum) / 2
}
