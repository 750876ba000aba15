package pipeline

import (
	"errors"
	"fmt"
	"math"

	"gocv.io/x/gocv"
)

var (
	// ErrOpenInput is returned when the input video cannot be opened or has no frame size
	ErrOpenInput = errors.New("cannot open input video")
	// ErrOpenOutput is returned when the output writer cannot be created
	ErrOpenOutput = errors.New("cannot open output video")
)

// DefaultFPS is used when the container does not report a frame rate
const DefaultFPS = 30.0

// OutputCodec is the fourcc of the annotated output
const OutputCodec = "mp4v"

// VideoInfo describes the input stream
type VideoInfo struct {
	Width  int
	Height int
	FPS    float64
	Frames int // as reported by the container; may be 0
}

// OpenInput opens a video file for decoding
func OpenInput(path string) (*gocv.VideoCapture, VideoInfo, error) {
	vc, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, VideoInfo{}, fmt.Errorf("%w: %s: %w", ErrOpenInput, path, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, VideoInfo{}, fmt.Errorf("%w: %s", ErrOpenInput, path)
	}

	info := VideoInfo{
		Width:  int(vc.Get(gocv.VideoCaptureFrameWidth)),
		Height: int(vc.Get(gocv.VideoCaptureFrameHeight)),
		FPS:    vc.Get(gocv.VideoCaptureFPS),
		Frames: int(vc.Get(gocv.VideoCaptureFrameCount)),
	}
	if info.Width <= 0 || info.Height <= 0 {
		vc.Close()
		return nil, VideoInfo{}, fmt.Errorf("%w: %s: no frame size", ErrOpenInput, path)
	}
	if info.FPS <= 0 || math.IsNaN(info.FPS) {
		info.FPS = DefaultFPS
	}
	return vc, info, nil
}

// OpenOutput creates an mp4v writer matching the input's size and rate
func OpenOutput(path string, info VideoInfo) (*gocv.VideoWriter, error) {
	vw, err := gocv.VideoWriterFile(path, OutputCodec, info.FPS, info.Width, info.Height, true)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrOpenOutput, path, err)
	}
	if !vw.IsOpened() {
		vw.Close()
		return nil, fmt.Errorf("%w: %s", ErrOpenOutput, path)
	}
	return vw, nil
}
