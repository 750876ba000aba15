package detection

import (
	"errors"
	"fmt"
	"image"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gocv.io/x/gocv"
)

// ErrModelLoad is returned when no inference backend could load the model.
var ErrModelLoad = errors.New("model load failed")

// DetectionResult represents the output of object detection
type DetectionResult struct {
	Rects       []image.Rectangle
	ClassIDs    []int
	ClassNames  []string
	Confidences []float64
}

// Len returns the number of detections
func (r *DetectionResult) Len() int {
	return len(r.Rects)
}

// InferenceProvider defines the interface for YOLO inference
type InferenceProvider interface {
	Initialize(cfg ModelConfig) error
	Detect(frame gocv.Mat) (*DetectionResult, error)
	Close() error
	GetProviderInfo() ProviderInfo
}

// ProviderInfo contains information about the inference provider
type ProviderInfo struct {
	Type     string        // "GPU" or "CPU"
	Backend  string        // "CUDA", "OpenCV CPU"
	Device   string        // Device identifier
	InitTime time.Duration // Time taken to initialize
}

// Backend selects which provider the manager tries
type Backend string

const (
	BackendAuto Backend = "auto"
	BackendCPU  Backend = "cpu"
	BackendCUDA Backend = "cuda"
)

// ProviderManager handles automatic provider selection and fallback
type ProviderManager struct {
	currentProvider InferenceProvider
	providerInfo    ProviderInfo
	log             zerolog.Logger

	// overridable for tests
	gpuAvailable func() bool
	newGPU       func() InferenceProvider
	newCPU       func() InferenceProvider
}

// NewProviderManager creates a new provider manager with auto-detection
func NewProviderManager(log zerolog.Logger) *ProviderManager {
	return &ProviderManager{
		log:          log.With().Str("component", "PROVIDER").Logger(),
		gpuAvailable: hasGPUCapability,
		newGPU:       func() InferenceProvider { return NewGPUProvider() },
		newCPU:       func() InferenceProvider { return NewCPUProvider() },
	}
}

// Initialize picks a provider for cfg.Backend. With BackendAuto the GPU is tried first
// and the CPU is used when GPU init or the test inference fails.
func (pm *ProviderManager) Initialize(cfg ModelConfig) error {
	backend := cfg.Backend
	if backend == "" {
		backend = BackendAuto
	}

	if backend == BackendCUDA || (backend == BackendAuto && pm.gpuAvailable()) {
		pm.log.Info().Msg("GPU capability detected, attempting GPU initialization")
		gpu := pm.newGPU()

		startTime := time.Now()
		err := gpu.Initialize(cfg)
		if err == nil && testProvider(gpu, cfg.InputSize) {
			pm.currentProvider = gpu
			pm.providerInfo = gpu.GetProviderInfo()
			pm.providerInfo.InitTime = time.Since(startTime)
			pm.log.Info().Dur("init", pm.providerInfo.InitTime).Msg("GPU provider initialized")
			return nil
		}
		if err == nil {
			err = errors.New("test inference failed")
			gpu.Close()
		}
		if backend == BackendCUDA {
			return fmt.Errorf("%w: cuda: %w", ErrModelLoad, err)
		}
		pm.log.Warn().Err(err).Msg("GPU initialization failed, falling back to CPU")
	} else if backend == BackendAuto {
		pm.log.Info().Msg("No GPU capability detected")
	}

	cpu := pm.newCPU()
	startTime := time.Now()
	if err := cpu.Initialize(cfg); err != nil {
		return fmt.Errorf("%w: cpu: %w", ErrModelLoad, err)
	}

	pm.currentProvider = cpu
	pm.providerInfo = cpu.GetProviderInfo()
	pm.providerInfo.InitTime = time.Since(startTime)
	pm.log.Info().Dur("init", pm.providerInfo.InitTime).Msg("CPU provider initialized")
	return nil
}

// GetProvider returns the current active provider
func (pm *ProviderManager) GetProvider() InferenceProvider {
	return pm.currentProvider
}

// GetProviderInfo returns information about the current provider
func (pm *ProviderManager) GetProviderInfo() ProviderInfo {
	return pm.providerInfo
}

// Close closes the current provider
func (pm *ProviderManager) Close() error {
	if pm.currentProvider != nil {
		return pm.currentProvider.Close()
	}
	return nil
}

// hasGPUCapability checks for an NVIDIA GPU with loaded drivers.
// CUDA itself is verified by the test inference during initialization.
func hasGPUCapability() bool {
	return hasNVIDIAGPU() && hasNVIDIADriver()
}

func hasNVIDIAGPU() bool {
	output, err := exec.Command("lspci").Output()
	if err != nil {
		return false
	}
	return strings.Contains(strings.ToLower(string(output)), "nvidia")
}

func hasNVIDIADriver() bool {
	if err := exec.Command("nvidia-smi", "--query-gpu=name", "--format=csv,noheader").Run(); err != nil {
		return false
	}
	matches, _ := filepath.Glob("/dev/nvidia*")
	return len(matches) > 0
}

// testProvider performs a quick test inference to verify the provider works
func testProvider(provider InferenceProvider, size int) bool {
	if size <= 0 {
		size = DefaultInputSize
	}
	testFrame := gocv.NewMatWithSize(size, size, gocv.MatTypeCV8UC3)
	defer testFrame.Close()

	_, err := provider.Detect(testFrame)
	return err == nil
}
