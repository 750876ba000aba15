package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrInvalid is returned for configuration that fails validation
var ErrInvalid = errors.New("invalid configuration")

// Tracker kinds
const (
	TrackerByteTrack = "bytetrack"
	TrackerReplay    = "replay"
)

// Config represents the complete roicount configuration
type Config struct {
	Input        string           `yaml:"input"`
	Output       string           `yaml:"output"`
	ROI          ROIConfig        `yaml:"roi"`
	TargetClass  string           `yaml:"target_class"` // class name, or "all"
	CountMode    string           `yaml:"count_mode"`   // unique, every-entry
	HistoryLimit int              `yaml:"history_limit"`
	Annotation   AnnotationConfig `yaml:"annotation"`
	Model        ModelConfig      `yaml:"model"`
	Tracker      TrackerConfig    `yaml:"tracker"`
	Transcode    TranscodeConfig  `yaml:"transcode"`
	Events       EventsConfig     `yaml:"events"`
	Metrics      MetricsConfig    `yaml:"metrics"`
	Report       ReportConfig     `yaml:"report"`
}

// ROIConfig defines the counting region
type ROIConfig struct {
	MarginFraction float64     `yaml:"margin_fraction"`
	Points         [][]float64 `yaml:"points,omitempty"` // [[x1,y1], [x2,y2], ...]; overrides the margin
}

// AnnotationConfig contains drawing settings
type AnnotationConfig struct {
	FontScale  float64      `yaml:"font_scale"`  // summary line
	LabelScale float64      `yaml:"label_scale"` // per-person labels
	Colors     ColorsConfig `yaml:"colors"`
	Trails     bool         `yaml:"trails"`
}

// ColorsConfig holds hex RRGGBB colours
type ColorsConfig struct {
	ROI     string `yaml:"roi"`
	Box     string `yaml:"box"`
	Label   string `yaml:"label"`
	Summary string `yaml:"summary"`
	Shadow  string `yaml:"shadow"`
}

// ModelConfig defines the detector network
type ModelConfig struct {
	Weights    string  `yaml:"weights"`
	Config     string  `yaml:"config"` // darknet .cfg
	Names      string  `yaml:"names"`
	Backend    string  `yaml:"backend"` // auto, cpu, cuda
	Layout     string  `yaml:"layout"`  // ultralytics, darknet
	Confidence float64 `yaml:"confidence"`
	NMS        float64 `yaml:"nms"`
	InputSize  int     `yaml:"input_size"`
}

// TrackerConfig selects where track ids come from
type TrackerConfig struct {
	Kind                  string  `yaml:"kind"` // bytetrack, replay
	ReplayPath            string  `yaml:"replay_path"`
	TrackNewThresh        float64 `yaml:"track_new_thresh"`
	DetHighThresh         float64 `yaml:"det_high_thresh"`
	DetLowThresh          float64 `yaml:"det_low_thresh"`
	MatchDetHighThresh    float64 `yaml:"match_det_high_thresh"`
	MatchDetLowThresh     float64 `yaml:"match_det_low_thresh"`
	UnconfMatchThresh     float64 `yaml:"unconf_match_thresh"`
	RemoveDuplicateThresh float64 `yaml:"remove_duplicate_thresh"`
	MaxFramesLost         uint    `yaml:"max_frames_lost"`
}

// TranscodeConfig contains the H.264 re-encode settings
type TranscodeConfig struct {
	Enabled bool   `yaml:"enabled"`
	CRF     int    `yaml:"crf"`
	Preset  string `yaml:"preset"`
	Binary  string `yaml:"binary"`
}

// EventsConfig contains crossing event log destinations. Empty paths disable them.
type EventsConfig struct {
	DBPath    string `yaml:"db_path"`
	JSONLPath string `yaml:"jsonl_path"`
}

// MetricsConfig contains the Prometheus listener address. Empty disables it.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// ReportConfig contains the occupancy plot destination. Empty disables it.
type ReportConfig struct {
	PlotPath string `yaml:"plot_path"`
}

// Load reads and parses a YAML configuration file. Keys missing from the
// file keep their Default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
