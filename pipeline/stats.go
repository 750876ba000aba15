package pipeline

import (
	"sync"
	"time"
)

// PipelineStats tracks performance metrics for different parts of the pipeline
type PipelineStats struct {
	mu             sync.Mutex
	captureCount   int64
	processCount   int64
	writeCount     int64
	lastReportTime time.Time

	// Timing measurements
	readTimeTotal     time.Duration
	trackTimeTotal    time.Duration
	annotateTimeTotal time.Duration
	writeTimeTotal    time.Duration
	trackCount        int64
	annotateCount     int64

	// Whole-run totals, never reset
	started       time.Time
	framesTotal   int64
	trackTotal    time.Duration
	annotateTotal time.Duration
}

// StatsWindow is the rate and average timings since the previous report
type StatsWindow struct {
	CaptureFPS  float64
	ProcessFPS  float64
	WriteFPS    float64
	AvgRead     time.Duration
	AvgTrack    time.Duration
	AvgAnnotate time.Duration
	AvgWrite    time.Duration
}

// StatsSummary covers the whole run
type StatsSummary struct {
	Frames      int64
	Elapsed     time.Duration
	FPS         float64
	AvgTrack    time.Duration
	AvgAnnotate time.Duration
}

// NewPipelineStats creates a new pipeline statistics tracker
func NewPipelineStats() *PipelineStats {
	now := time.Now()
	return &PipelineStats{
		lastReportTime: now,
		started:        now,
	}
}

// GetStats returns statistics for the current window and resets its counters
func (ps *PipelineStats) GetStats() StatsWindow {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	now := time.Now()
	timeWindow := now.Sub(ps.lastReportTime).Seconds()
	if timeWindow <= 0 {
		timeWindow = 1.0 // Prevent division by zero
	}

	w := StatsWindow{
		CaptureFPS: float64(ps.captureCount) / timeWindow,
		ProcessFPS: float64(ps.processCount) / timeWindow,
		WriteFPS:   float64(ps.writeCount) / timeWindow,
	}
	if ps.captureCount > 0 {
		w.AvgRead = ps.readTimeTotal / time.Duration(ps.captureCount)
	}
	if ps.trackCount > 0 {
		w.AvgTrack = ps.trackTimeTotal / time.Duration(ps.trackCount)
	}
	if ps.annotateCount > 0 {
		w.AvgAnnotate = ps.annotateTimeTotal / time.Duration(ps.annotateCount)
	}
	if ps.writeCount > 0 {
		w.AvgWrite = ps.writeTimeTotal / time.Duration(ps.writeCount)
	}

	// Reset counters but keep timestamps
	ps.captureCount = 0
	ps.processCount = 0
	ps.writeCount = 0
	ps.readTimeTotal = 0
	ps.trackTimeTotal = 0
	ps.annotateTimeTotal = 0
	ps.writeTimeTotal = 0
	ps.trackCount = 0
	ps.annotateCount = 0
	ps.lastReportTime = now

	return w
}

// Summary returns whole-run totals
func (ps *PipelineStats) Summary() StatsSummary {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	s := StatsSummary{Frames: ps.framesTotal, Elapsed: time.Since(ps.started)}
	if secs := s.Elapsed.Seconds(); secs > 0 {
		s.FPS = float64(ps.framesTotal) / secs
	}
	if ps.framesTotal > 0 {
		s.AvgTrack = ps.trackTotal / time.Duration(ps.framesTotal)
		s.AvgAnnotate = ps.annotateTotal / time.Duration(ps.framesTotal)
	}
	return s
}

// UpdateCapture updates capture statistics
func (ps *PipelineStats) UpdateCapture(duration time.Duration) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.captureCount++
	ps.readTimeTotal += duration
}

// UpdateTracking updates tracker statistics
func (ps *PipelineStats) UpdateTracking(duration time.Duration) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.trackTimeTotal += duration
	ps.trackCount++
	ps.trackTotal += duration
}

// UpdateAnnotate updates counting and drawing statistics
func (ps *PipelineStats) UpdateAnnotate(duration time.Duration) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.annotateTimeTotal += duration
	ps.annotateCount++
	ps.annotateTotal += duration
}

// UpdateWrite updates write statistics
func (ps *PipelineStats) UpdateWrite(duration time.Duration) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.writeCount++
	ps.writeTimeTotal += duration
}

// UpdateProcess counts one fully processed frame
func (ps *PipelineStats) UpdateProcess() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.processCount++
	ps.framesTotal++
}
