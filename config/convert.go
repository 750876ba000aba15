package config

import (
	"fmt"
	"image/color"
	"strconv"
	"strings"

	"roicount/detection"
	"roicount/overlay"
	"roicount/pkg/ffmpeg"
	"roicount/tracking"

	"github.com/rs/zerolog"
)

// parseHexColor converts an RRGGBB hex string (optional leading #) to a colour
func parseHexColor(hexColor string) (color.RGBA, error) {
	hexColor = strings.TrimPrefix(hexColor, "#")

	if len(hexColor) != 6 {
		return color.RGBA{}, fmt.Errorf("invalid hex color format: %s", hexColor)
	}

	rgb, err := strconv.ParseUint(hexColor, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("failed to parse hex color %s: %v", hexColor, err)
	}

	return color.RGBA{
		R: uint8((rgb >> 16) & 0xFF),
		G: uint8((rgb >> 8) & 0xFF),
		B: uint8(rgb & 0xFF),
		A: 0xFF,
	}, nil
}

// Style builds the overlay style from the annotation settings
func (c *Config) Style() (overlay.Style, error) {
	style := overlay.DefaultStyle()
	a := c.Annotation

	fields := []struct {
		name string
		hex  string
		dst  *color.RGBA
	}{
		{"roi", a.Colors.ROI, &style.ROIColor},
		{"box", a.Colors.Box, &style.BoxColor},
		{"label", a.Colors.Label, &style.LabelColor},
		{"summary", a.Colors.Summary, &style.SummaryColor},
		{"shadow", a.Colors.Shadow, &style.ShadowColor},
	}
	for _, f := range fields {
		if f.hex == "" {
			continue
		}
		col, err := parseHexColor(f.hex)
		if err != nil {
			return overlay.Style{}, fmt.Errorf("colors.%s: %w", f.name, err)
		}
		*f.dst = col
	}
	style.TrailColor = style.BoxColor

	if a.FontScale > 0 {
		style.SummaryScale = a.FontScale
	}
	if a.LabelScale > 0 {
		style.LabelScale = a.LabelScale
	}
	style.Trails = a.Trails
	return style, nil
}

// ROIFor builds the counting polygon for a frame size
func (c *Config) ROIFor(width, height int) (tracking.Polygon, error) {
	if len(c.ROI.Points) > 0 {
		return tracking.NewPolygon(c.ROI.points())
	}
	return tracking.BuildROI(width, height, c.ROI.MarginFraction)
}

func (r ROIConfig) points() []tracking.Point {
	pts := make([]tracking.Point, 0, len(r.Points))
	for _, p := range r.Points {
		if len(p) == 2 {
			pts = append(pts, tracking.Point{X: p[0], Y: p[1]})
		}
	}
	return pts
}

// ClassID resolves target_class against the model's class names
func (c *Config) ClassID() (int, error) {
	names, err := detection.LoadClassNames(c.Model.Names)
	if err != nil {
		return 0, err
	}
	return detection.ClassID(names, c.TargetClass)
}

// SessionOptions builds the counting session options
func (c *Config) SessionOptions(classID int, log zerolog.Logger) (tracking.Options, error) {
	mode, err := tracking.ParseCountMode(c.CountMode)
	if err != nil {
		return tracking.Options{}, err
	}
	return tracking.Options{
		TargetClassID: classID,
		Mode:          mode,
		HistoryLimit:  c.HistoryLimit,
		Logger:        log,
	}, nil
}

// DetectorConfig builds the detector network settings
func (c *Config) DetectorConfig(classID int) detection.ModelConfig {
	m := c.Model
	return detection.ModelConfig{
		Weights:       m.Weights,
		Config:        m.Config,
		Names:         m.Names,
		Backend:       detection.Backend(m.Backend),
		Layout:        detection.OutputLayout(m.Layout),
		InputSize:     m.InputSize,
		Confidence:    m.Confidence,
		NMSThreshold:  m.NMS,
		TargetClassID: classID,
	}
}

// ByteTrack builds the association thresholds
func (c *Config) ByteTrack() detection.ByteTrackConfig {
	t := c.Tracker
	return detection.ByteTrackConfig{
		TrackNewThresh:        t.TrackNewThresh,
		DetHighThresh:         t.DetHighThresh,
		DetLowThresh:          t.DetLowThresh,
		MatchDetHighThresh:    t.MatchDetHighThresh,
		MatchDetLowThresh:     t.MatchDetLowThresh,
		UnconfMatchThresh:     t.UnconfMatchThresh,
		RemoveDuplicateThresh: t.RemoveDuplicateThresh,
		MaxFramesLost:         t.MaxFramesLost,
	}
}

// TranscodeOptions builds the re-encode settings
func (c *Config) TranscodeOptions() ffmpeg.Options {
	return ffmpeg.Options{
		Binary: c.Transcode.Binary,
		CRF:    c.Transcode.CRF,
		Preset: c.Transcode.Preset,
	}
}
