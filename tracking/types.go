package tracking

import (
	"errors"
	"fmt"
	"image"
	"math"
)

// ErrMalformedDetection is returned for tracker output that cannot be counted.
var ErrMalformedDetection = errors.New("malformed detection")

// CrossingEvent is the edge produced for one track in one frame
type CrossingEvent int

const (
	EventNone CrossingEvent = iota
	EventEntered
	EventExited
)

func (e CrossingEvent) String() string {
	switch e {
	case EventEntered:
		return "entered"
	case EventExited:
		return "exited"
	default:
		return "none"
	}
}

// Point is a 2-D position in frame pixel space
type Point struct {
	X float64
	Y float64
}

// ImagePoint rounds toward zero, matching integer pixel drawing
func (p Point) ImagePoint() image.Point {
	return image.Pt(int(p.X), int(p.Y))
}

// BBox is an x1,y1,x2,y2 bounding box
type BBox [4]float64

// Centroid returns the box center
func (b BBox) Centroid() Point {
	return Point{X: (b[0] + b[2]) / 2, Y: (b[1] + b[3]) / 2}
}

// Rect converts the box to an image rectangle for drawing
func (b BBox) Rect() image.Rectangle {
	return image.Rect(int(b[0]), int(b[1]), int(b[2]), int(b[3]))
}

// Detection is one raw object reported by the tracker for a frame.
// Fields are pointers so that missing values can be told apart from zero values.
type Detection struct {
	TrackID *int64
	ClassID *int
	BBox    *BBox
}

// NewDetection builds a fully populated detection
func NewDetection(trackID int64, classID int, box BBox) Detection {
	return Detection{TrackID: &trackID, ClassID: &classID, BBox: &box}
}

// TrackedObject is a detection that passed validation
type TrackedObject struct {
	TrackID int64
	ClassID int
	BBox    BBox
}

// Validate checks that every required field is present and the box is usable
func (d Detection) Validate() (TrackedObject, error) {
	if d.TrackID == nil {
		return TrackedObject{}, fmt.Errorf("%w: missing track id", ErrMalformedDetection)
	}
	if d.ClassID == nil {
		return TrackedObject{}, fmt.Errorf("%w: track %d: missing class", ErrMalformedDetection, *d.TrackID)
	}
	if d.BBox == nil {
		return TrackedObject{}, fmt.Errorf("%w: track %d: missing bounding box", ErrMalformedDetection, *d.TrackID)
	}
	b := *d.BBox
	for _, v := range b {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return TrackedObject{}, fmt.Errorf("%w: track %d: non-finite box %v", ErrMalformedDetection, *d.TrackID, b)
		}
	}
	if b[2] <= b[0] || b[3] <= b[1] {
		return TrackedObject{}, fmt.Errorf("%w: track %d: degenerate box %v", ErrMalformedDetection, *d.TrackID, b)
	}
	return TrackedObject{TrackID: *d.TrackID, ClassID: *d.ClassID, BBox: b}, nil
}

// TrackState is the per-track memory kept for the whole run
type TrackState struct {
	Inside     bool // inside the ROI as of the last observation
	EverInside bool
	DisplayID  int // 0 until the track first enters
	History    []Point
	FirstFrame int
	LastFrame  int
}

// Event is a crossing edge with the context needed by event sinks
type Event struct {
	Frame     int
	TrackID   int64
	DisplayID int
	Kind      CrossingEvent
	Centroid  Point
}

// VisibleTrack is an object the annotator should draw this frame
type VisibleTrack struct {
	TrackID   int64
	DisplayID int
	BBox      BBox
	History   []Point
}

// Snapshot holds the reported counts
type Snapshot struct {
	In     int
	Out    int
	Inside int
}

// FrameResult is everything produced by processing a single frame
type FrameResult struct {
	Frame    int
	Events   []Event
	Visible  []VisibleTrack
	Skipped  int
	Snapshot Snapshot
}
