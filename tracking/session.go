package tracking

import (
	"sync"

	"github.com/rs/zerolog"
)

// AnyClass disables class filtering
const AnyClass = -1

// Options configures a counting session
type Options struct {
	// TargetClassID is the only class that is counted, or AnyClass.
	TargetClassID int
	Mode          CountMode
	// HistoryLimit caps the centroid history kept per track. 0 keeps everything.
	HistoryLimit int
	Logger       zerolog.Logger
}

// DefaultOptions counts COCO class 0 (person) with unique-set semantics
func DefaultOptions() Options {
	return Options{
		TargetClassID: 0,
		Mode:          CountModeUnique,
		Logger:        zerolog.Nop(),
	}
}

// Session owns all counting state for one video stream.
// Frames must be fed in order; ProcessFrame serialises callers so a single
// writer mutates the track and count maps at a time.
type Session struct {
	mu     sync.Mutex
	roi    Polygon
	opts   Options
	log    zerolog.Logger
	tracks map[int64]*TrackState
	counts *CountState
	ids    *DisplayIDAllocator
	frames int
}

// NewSession creates a session counting crossings of roi
func NewSession(roi Polygon, opts Options) *Session {
	return &Session{
		roi:    roi,
		opts:   opts,
		log:    opts.Logger.With().Str("component", "SESSION").Logger(),
		tracks: make(map[int64]*TrackState),
		counts: NewCountState(opts.Mode),
		ids:    NewDisplayIDAllocator(),
	}
}

// ROI returns the region this session counts against
func (s *Session) ROI() Polygon {
	return s.roi
}

// ProcessFrame runs crossing detection, identity remapping and aggregation for one frame
func (s *Session) ProcessFrame(frame int, dets []Detection) FrameResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.frames++
	res := FrameResult{Frame: frame}
	seen := make(map[int64]struct{}, len(dets))

	for _, det := range dets {
		obj, err := det.Validate()
		if err != nil {
			res.Skipped++
			s.log.Debug().Err(err).Int("frame", frame).Msg("skipping detection")
			continue
		}
		// a track id is observed at most once per frame; later repeats are malformed
		if _, dup := seen[obj.TrackID]; dup {
			res.Skipped++
			s.log.Debug().Int("frame", frame).Int64("track_id", obj.TrackID).Msg("skipping duplicate track id")
			continue
		}
		seen[obj.TrackID] = struct{}{}
		if s.opts.TargetClassID != AnyClass && obj.ClassID != s.opts.TargetClassID {
			continue
		}

		state, ev, centroid := s.observe(obj, frame)
		switch ev {
		case EventEntered:
			s.ids.Assign(state)
			s.counts.OnEvent(obj.TrackID, ev)
		case EventExited:
			s.counts.OnEvent(obj.TrackID, ev)
		}

		if ev != EventNone {
			res.Events = append(res.Events, Event{
				Frame:     frame,
				TrackID:   obj.TrackID,
				DisplayID: state.DisplayID,
				Kind:      ev,
				Centroid:  centroid,
			})
			s.log.Debug().
				Int("frame", frame).
				Int64("track_id", obj.TrackID).
				Int("display_id", state.DisplayID).
				Stringer("event", ev).
				Msg("roi crossing")
		}

		if state.Inside && state.DisplayID != 0 {
			res.Visible = append(res.Visible, VisibleTrack{
				TrackID:   obj.TrackID,
				DisplayID: state.DisplayID,
				BBox:      obj.BBox,
				History:   state.History[:len(state.History):len(state.History)],
			})
		}
	}

	res.Snapshot = s.counts.Snapshot()
	return res
}

// Snapshot returns the counts as of the last processed frame
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts.Snapshot()
}

// Track returns a copy of the state kept for a track id
func (s *Session) Track(trackID int64) (TrackState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.tracks[trackID]
	if !ok {
		return TrackState{}, false
	}
	cp := *state
	cp.History = append([]Point(nil), state.History...)
	return cp, true
}

// TrackCount returns the number of distinct track ids observed
func (s *Session) TrackCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tracks)
}

// FramesProcessed returns how many frames have been fed to the session
func (s *Session) FramesProcessed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

// DisplayIDsIssued returns how many tracks have received a display id
func (s *Session) DisplayIDsIssued() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ids.Issued()
}
