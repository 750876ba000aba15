package detection

import (
	"fmt"
	"time"

	"roicount/tracking"

	"github.com/rs/zerolog"
	"github.com/ugparu/GoPureTrack/puretrack"
	"gocv.io/x/gocv"
)

// boxDetection adapts one detector output to the ByteTrack input interface
type boxDetection struct {
	xyxy    [4]float64
	score   float64
	classID int
}

func (d *boxDetection) GetXYXY() [4]float64 { return d.xyxy }
func (d *boxDetection) GetScore() float64   { return d.score }

// ByteTrackConfig mirrors the association thresholds of the ByteTrack tracker
type ByteTrackConfig struct {
	TrackNewThresh        float64
	DetHighThresh         float64
	DetLowThresh          float64
	MatchDetHighThresh    float64
	MatchDetLowThresh     float64
	UnconfMatchThresh     float64
	RemoveDuplicateThresh float64
	MaxFramesLost         uint
}

// DefaultByteTrackConfig returns the tracker's stock thresholds
func DefaultByteTrackConfig() ByteTrackConfig {
	b := puretrack.BaseConfig
	return ByteTrackConfig{
		TrackNewThresh:        b.TrackNewThresh,
		DetHighThresh:         b.DetHighThresh,
		DetLowThresh:          b.DetLowThresh,
		MatchDetHighThresh:    b.MatchDetHighThresh,
		MatchDetLowThresh:     b.MatchDetLowThresh,
		UnconfMatchThresh:     b.UnconfMatchThresh,
		RemoveDuplicateThresh: b.RemoveDuplicateThresh,
		MaxFramesLost:         b.MaxFramesLost,
	}
}

func (c ByteTrackConfig) puretrack() puretrack.Config {
	return puretrack.Config{
		TrackNewThresh:        c.TrackNewThresh,
		DetHighThresh:         c.DetHighThresh,
		DetLowThresh:          c.DetLowThresh,
		MatchDetHighThresh:    c.MatchDetHighThresh,
		MatchDetLowThresh:     c.MatchDetLowThresh,
		UnconfMatchThresh:     c.UnconfMatchThresh,
		RemoveDuplicateThresh: c.RemoveDuplicateThresh,
		MaxFramesLost:         c.MaxFramesLost,
	}
}

// ByteTracker runs the detector on each frame and associates detections
// across frames so every object keeps a persistent track id.
type ByteTracker struct {
	detector Detector
	tracker  *puretrack.Tracker[*boxDetection]
	log      zerolog.Logger

	lastDetect time.Duration
}

// Detector is the part of an InferenceProvider the tracker needs
type Detector interface {
	Detect(frame gocv.Mat) (*DetectionResult, error)
}

// NewByteTracker wraps a detector with ByteTrack association
func NewByteTracker(detector Detector, cfg ByteTrackConfig, log zerolog.Logger) *ByteTracker {
	return &ByteTracker{
		detector: detector,
		tracker:  puretrack.New[*boxDetection](cfg.puretrack()),
		log:      log.With().Str("component", "BYTETRACK").Logger(),
	}
}

// Track detects objects in frame and returns them with persistent track ids
func (bt *ByteTracker) Track(frame gocv.Mat, index int) ([]tracking.Detection, error) {
	start := time.Now()
	res, err := bt.detector.Detect(frame)
	bt.lastDetect = time.Since(start)
	if err != nil {
		return nil, fmt.Errorf("detect frame %d: %w", index, err)
	}
	return bt.associate(res), nil
}

// associate feeds one frame of detections to ByteTrack
func (bt *ByteTracker) associate(res *DetectionResult) []tracking.Detection {
	dets := make([]*boxDetection, 0, res.Len())
	for i, r := range res.Rects {
		dets = append(dets, &boxDetection{
			xyxy:    [4]float64{float64(r.Min.X), float64(r.Min.Y), float64(r.Max.X), float64(r.Max.Y)},
			score:   res.Confidences[i],
			classID: res.ClassIDs[i],
		})
	}

	tracked, removed := bt.tracker.Update(dets)
	if len(removed) > 0 {
		bt.log.Debug().Int("removed", len(removed)).Msg("tracks expired")
	}

	out := make([]tracking.Detection, 0, len(tracked))
	for _, t := range tracked {
		out = append(out, tracking.NewDetection(int64(t.GetID()), t.GetDetection().classID, tracking.BBox(t.GetXYXY())))
	}
	return out
}

// LastDetectDuration reports how long the most recent inference took
func (bt *ByteTracker) LastDetectDuration() time.Duration {
	return bt.lastDetect
}

// Close is a no-op; the detector is owned by its ProviderManager
func (bt *ByteTracker) Close() error {
	return nil
}
