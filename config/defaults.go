package config

import (
	"roicount/detection"
	"roicount/pkg/ffmpeg"
	"roicount/tracking"
)

// Default returns the stock configuration: people counted against a box inset
// 30% from every edge, drawn in the stock colours, tracked with ByteTrack.
func Default() *Config {
	bt := detection.DefaultByteTrackConfig()
	tc := ffmpeg.DefaultOptions()
	return &Config{
		Output: "output_video.mp4",
		ROI: ROIConfig{
			MarginFraction: tracking.DefaultMarginFraction,
		},
		TargetClass: "person",
		CountMode:   tracking.CountModeUnique.String(),
		Annotation: AnnotationConfig{
			FontScale:  1.1,
			LabelScale: 0.8,
			Colors: ColorsConfig{
				ROI:     "0000FF",
				Box:     "00FF00",
				Label:   "FFFFFF",
				Summary: "FFFF00",
				Shadow:  "000000",
			},
		},
		Model: ModelConfig{
			Weights:    "yolov8n.onnx",
			Backend:    string(detection.BackendAuto),
			Layout:     string(detection.LayoutUltralytics),
			Confidence: 0.25,
			NMS:        0.45,
			InputSize:  detection.DefaultInputSize,
		},
		Tracker: TrackerConfig{
			Kind:                  TrackerByteTrack,
			TrackNewThresh:        bt.TrackNewThresh,
			DetHighThresh:         bt.DetHighThresh,
			DetLowThresh:          bt.DetLowThresh,
			MatchDetHighThresh:    bt.MatchDetHighThresh,
			MatchDetLowThresh:     bt.MatchDetLowThresh,
			UnconfMatchThresh:     bt.UnconfMatchThresh,
			RemoveDuplicateThresh: bt.RemoveDuplicateThresh,
			MaxFramesLost:         bt.MaxFramesLost,
		},
		Transcode: TranscodeConfig{
			Enabled: true,
			CRF:     tc.CRF,
			Preset:  tc.Preset,
			Binary:  tc.Binary,
		},
	}
}
