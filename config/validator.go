package config

import (
	"fmt"
	"math"

	"roicount/detection"
	"roicount/tracking"
)

var validBackends = map[string]bool{
	string(detection.BackendAuto): true,
	string(detection.BackendCPU):  true,
	string(detection.BackendCUDA): true,
}

var validLayouts = map[string]bool{
	string(detection.LayoutUltralytics): true,
	string(detection.LayoutDarknet):     true,
}

// Validate checks the configuration and fills defaults for empty optional fields.
// Every failure wraps ErrInvalid.
func Validate(cfg *Config) error {
	if err := validate(cfg); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

func validate(cfg *Config) error {
	if cfg.Output == "" {
		cfg.Output = "output_video.mp4"
	}
	if cfg.Input != "" && cfg.Input == cfg.Output {
		return fmt.Errorf("output must differ from input")
	}

	if err := ValidateROI(cfg.ROI); err != nil {
		return fmt.Errorf("roi: %w", err)
	}

	if cfg.TargetClass == "" {
		cfg.TargetClass = "person"
	}
	if _, err := tracking.ParseCountMode(cfg.CountMode); err != nil {
		return err
	}
	if cfg.HistoryLimit < 0 {
		return fmt.Errorf("history_limit must be >= 0")
	}

	if _, err := cfg.Style(); err != nil {
		return fmt.Errorf("annotation: %w", err)
	}
	if cfg.Annotation.FontScale <= 0 || cfg.Annotation.LabelScale <= 0 {
		return fmt.Errorf("annotation: font scales must be > 0")
	}

	if !validBackends[cfg.Model.Backend] {
		return fmt.Errorf("model.backend must be auto, cpu or cuda, got %q", cfg.Model.Backend)
	}
	if !validLayouts[cfg.Model.Layout] {
		return fmt.Errorf("model.layout must be ultralytics or darknet, got %q", cfg.Model.Layout)
	}
	if cfg.Model.Confidence < 0 || cfg.Model.Confidence > 1 {
		return fmt.Errorf("model.confidence must be within [0, 1]")
	}
	if cfg.Model.NMS < 0 || cfg.Model.NMS > 1 {
		return fmt.Errorf("model.nms must be within [0, 1]")
	}
	if cfg.Model.InputSize <= 0 || cfg.Model.InputSize%32 != 0 {
		return fmt.Errorf("model.input_size must be a positive multiple of 32")
	}

	switch cfg.Tracker.Kind {
	case TrackerByteTrack:
	case TrackerReplay:
		if cfg.Tracker.ReplayPath == "" {
			return fmt.Errorf("tracker.replay_path is required for the replay tracker")
		}
	default:
		return fmt.Errorf("tracker.kind must be bytetrack or replay, got %q", cfg.Tracker.Kind)
	}

	if cfg.Transcode.CRF < 0 || cfg.Transcode.CRF > 51 {
		return fmt.Errorf("transcode.crf must be within [0, 51]")
	}
	if cfg.Transcode.Preset == "" {
		cfg.Transcode.Preset = "fast"
	}
	if cfg.Transcode.Binary == "" {
		cfg.Transcode.Binary = "ffmpeg"
	}
	return nil
}

// ValidateROI checks the margin, or the custom polygon when one is given
func ValidateROI(roi ROIConfig) error {
	if len(roi.Points) == 0 {
		if roi.MarginFraction < 0 || roi.MarginFraction >= 0.5 {
			return fmt.Errorf("margin_fraction must be within [0, 0.5), got %v", roi.MarginFraction)
		}
		return nil
	}

	if len(roi.Points) < 3 {
		return fmt.Errorf("polygon must have at least 3 points, got %d", len(roi.Points))
	}
	for i, p := range roi.Points {
		if len(p) != 2 {
			return fmt.Errorf("point %d must be [x, y], got %d values", i, len(p))
		}
		if math.IsNaN(p[0]) || math.IsNaN(p[1]) || p[0] < 0 || p[1] < 0 {
			return fmt.Errorf("point %d must have non-negative coordinates", i)
		}
	}
	_, err := tracking.NewPolygon(roi.points())
	return err
}
