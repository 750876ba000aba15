package detection

import (
	"gocv.io/x/gocv"
)

// GPUProvider implements YOLO inference using OpenCV CUDA backend
type GPUProvider struct {
	yolo yoloNet
}

// NewGPUProvider returns an uninitialised CUDA provider
func NewGPUProvider() *GPUProvider {
	return &GPUProvider{}
}

// Initialize loads the model and selects the CUDA backend.
// The manager confirms CUDA works with a test inference afterwards.
func (gp *GPUProvider) Initialize(cfg ModelConfig) error {
	return gp.yolo.load(cfg, gocv.NetBackendCUDA, gocv.NetTargetCUDA)
}

// Detect performs object detection on a frame using GPU
func (gp *GPUProvider) Detect(frame gocv.Mat) (*DetectionResult, error) {
	return gp.yolo.detect(frame)
}

// Close releases resources used by the GPU provider
func (gp *GPUProvider) Close() error {
	return gp.yolo.close()
}

// GetProviderInfo returns information about the GPU provider
func (gp *GPUProvider) GetProviderInfo() ProviderInfo {
	return ProviderInfo{
		Type:    "GPU",
		Backend: "CUDA",
		Device:  "GPU 0",
	}
}
