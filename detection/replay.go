package detection

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"

	"roicount/tracking"

	"github.com/tidwall/gjson"
	"gocv.io/x/gocv"
)

const maxReplayLine = 10 << 20

// ReplayTracker serves pre-computed tracker output from a JSON-lines file,
// one line per frame:
//
//	{"frame": 12, "detections": [{"track_id": 3, "class_id": 0, "bbox": [x1, y1, x2, y2]}]}
//
// Frames are 1-based and must be ascending. A line without "frame" belongs to the
// frame after the previous line. Frames with no line have no detections.
type ReplayTracker struct {
	closer  io.Closer
	scanner *bufio.Scanner

	pending   gjson.Result
	pendingAt int
	hasLine   bool
	lastFrame int
	eof       bool
}

// OpenReplay opens a replay file
func OpenReplay(path string) (*ReplayTracker, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open replay: %w", err)
	}
	rt := NewReplayTracker(f)
	rt.closer = f
	return rt, nil
}

// NewReplayTracker reads replay lines from r
func NewReplayTracker(r io.Reader) *ReplayTracker {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64<<10), maxReplayLine)
	return &ReplayTracker{scanner: s}
}

// Track returns the recorded detections for frame index. The frame pixels are not used.
func (rt *ReplayTracker) Track(_ gocv.Mat, index int) ([]tracking.Detection, error) {
	for {
		if !rt.hasLine {
			ok, err := rt.next()
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, nil
			}
		}
		switch {
		case rt.pendingAt < index:
			rt.hasLine = false
		case rt.pendingAt == index:
			rt.hasLine = false
			return parseDetections(rt.pending.Get("detections")), nil
		default:
			return nil, nil
		}
	}
}

func (rt *ReplayTracker) next() (bool, error) {
	if rt.eof {
		return false, nil
	}
	for rt.scanner.Scan() {
		line := rt.scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if !gjson.ValidBytes(line) {
			return false, fmt.Errorf("replay line after frame %d: invalid json", rt.lastFrame)
		}
		res := gjson.ParseBytes(line)
		frame := rt.lastFrame + 1
		if f := res.Get("frame"); f.Exists() {
			frame = int(f.Int())
		}
		if frame <= rt.lastFrame {
			return false, fmt.Errorf("replay frame %d after frame %d: frames must be ascending", frame, rt.lastFrame)
		}
		rt.pending = res
		rt.pendingAt = frame
		rt.lastFrame = frame
		rt.hasLine = true
		return true, nil
	}
	rt.eof = true
	if err := rt.scanner.Err(); err != nil {
		return false, fmt.Errorf("read replay: %w", err)
	}
	return false, nil
}

// parseDetections keeps missing or mistyped fields as nil so the session can reject them
func parseDetections(arr gjson.Result) []tracking.Detection {
	var out []tracking.Detection
	arr.ForEach(func(_, item gjson.Result) bool {
		var det tracking.Detection
		if id := item.Get("track_id"); isInteger(id) {
			v := id.Int()
			det.TrackID = &v
		}
		if cls := item.Get("class_id"); isInteger(cls) {
			v := int(cls.Int())
			det.ClassID = &v
		}
		if box := item.Get("bbox"); box.IsArray() {
			vals := box.Array()
			if len(vals) == 4 {
				var b tracking.BBox
				ok := true
				for i, v := range vals {
					if v.Type != gjson.Number {
						ok = false
						break
					}
					b[i] = v.Float()
				}
				if ok {
					det.BBox = &b
				}
			}
		}
		out = append(out, det)
		return true
	})
	return out
}

// Close closes the underlying file when the tracker opened it
func (rt *ReplayTracker) Close() error {
	if rt.closer != nil {
		return rt.closer.Close()
	}
	return nil
}

// isInteger reports whether r is a JSON number with no fractional part
func isInteger(r gjson.Result) bool {
	return r.Type == gjson.Number && !math.IsInf(r.Num, 0) && r.Num == math.Trunc(r.Num)
}
