package detection

import (
	"gocv.io/x/gocv"
)

// CPUProvider implements YOLO inference using OpenCV CPU backend
type CPUProvider struct {
	yolo yoloNet
}

// NewCPUProvider returns an uninitialised CPU provider
func NewCPUProvider() *CPUProvider {
	return &CPUProvider{}
}

// Initialize initializes the CPU provider with model files
func (cp *CPUProvider) Initialize(cfg ModelConfig) error {
	return cp.yolo.load(cfg, gocv.NetBackendDefault, gocv.NetTargetCPU)
}

// Detect performs object detection on a frame using CPU
func (cp *CPUProvider) Detect(frame gocv.Mat) (*DetectionResult, error) {
	return cp.yolo.detect(frame)
}

// Close releases resources used by the CPU provider
func (cp *CPUProvider) Close() error {
	return cp.yolo.close()
}

// GetProviderInfo returns information about the CPU provider
func (cp *CPUProvider) GetProviderInfo() ProviderInfo {
	return ProviderInfo{
		Type:    "CPU",
		Backend: "OpenCV CPU",
		Device:  "CPU",
	}
}
