package pipeline

import (
	"context"
	"fmt"
	"time"

	"roicount/overlay"
	"roicount/tracking"

	"github.com/rs/zerolog"
	"gocv.io/x/gocv"
	"golang.org/x/sync/errgroup"
)

// Source yields decoded frames. Read returns false at end of input.
type Source interface {
	Read(dst *gocv.Mat) bool
}

// Sink receives annotated frames in order
type Sink interface {
	Write(img gocv.Mat) error
}

// Tracker produces tracked detections for one frame
type Tracker interface {
	Track(frame gocv.Mat, index int) ([]tracking.Detection, error)
}

// FrameObserver is notified after each frame has been counted and written.
// Observer errors are logged and do not stop the run.
type FrameObserver interface {
	ObserveFrame(ctx context.Context, res tracking.FrameResult, took time.Duration) error
}

// FrameData is one decoded frame on its way to the processing stage
type FrameData struct {
	frame gocv.Mat
	index int // 1-based
}

// Result summarises a run
type Result struct {
	Frames        int
	Snapshot      tracking.Snapshot
	Skipped       int // malformed detections
	TrackerErrors int // frames whose tracker call failed
	DisplayIDs    int
	Interrupted   bool
	Stats         StatsSummary
}

// Pipeline reads frames, counts crossings and writes annotated frames strictly in frame order
type Pipeline struct {
	source    Source
	sink      Sink
	tracker   Tracker
	session   *tracking.Session
	renderer  *overlay.Renderer
	observers []FrameObserver
	stats     *PipelineStats
	log       zerolog.Logger

	buffer        int
	progressEvery int
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithObserver adds a per-frame observer
func WithObserver(o FrameObserver) Option {
	return func(p *Pipeline) { p.observers = append(p.observers, o) }
}

// WithLogger sets the logger
func WithLogger(log zerolog.Logger) Option {
	return func(p *Pipeline) { p.log = log }
}

// WithBuffer sets how many decoded frames may wait for processing
func WithBuffer(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.buffer = n
		}
	}
}

// WithProgressEvery logs progress every n frames; 0 disables it
func WithProgressEvery(n int) Option {
	return func(p *Pipeline) { p.progressEvery = n }
}

// New creates a pipeline
func New(source Source, sink Sink, tracker Tracker, session *tracking.Session, renderer *overlay.Renderer, opts ...Option) *Pipeline {
	p := &Pipeline{
		source:        source,
		sink:          sink,
		tracker:       tracker,
		session:       session,
		renderer:      renderer,
		stats:         NewPipelineStats(),
		log:           zerolog.Nop(),
		buffer:        30,
		progressEvery: 100,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.log = p.log.With().Str("component", "PIPELINE").Logger()
	return p
}

// Run processes the whole input. End of input returns a nil error. When ctx is
// cancelled the frame in progress is finished and the run stops with
// Result.Interrupted set; counts up to that frame stand.
func (p *Pipeline) Run(ctx context.Context) (Result, error) {
	frames := make(chan FrameData, p.buffer)
	var res Result

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(frames)
		return p.captureFrames(gctx, frames)
	})
	g.Go(func() error {
		return p.processFrames(gctx, frames, &res)
	})
	err := g.Wait()

	for fd := range frames {
		fd.frame.Close()
	}

	res.Snapshot = p.session.Snapshot()
	res.DisplayIDs = p.session.DisplayIDsIssued()
	res.Stats = p.stats.Summary()
	if err == nil && ctx.Err() != nil {
		res.Interrupted = true
	}
	return res, err
}

// captureFrames decodes frames into the channel. Sends block so no frame is dropped.
func (p *Pipeline) captureFrames(ctx context.Context, frames chan<- FrameData) error {
	index := 0
	for {
		if ctx.Err() != nil {
			return nil
		}

		readStart := time.Now()
		img := gocv.NewMat()
		if ok := p.source.Read(&img); !ok || img.Empty() {
			img.Close()
			p.log.Debug().Int("frames", index).Msg("end of input")
			return nil
		}
		p.stats.UpdateCapture(time.Since(readStart))
		index++

		select {
		case frames <- FrameData{frame: img, index: index}:
		case <-ctx.Done():
			img.Close()
			return nil
		}
	}
}

func (p *Pipeline) processFrames(ctx context.Context, frames <-chan FrameData, res *Result) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case fd, ok := <-frames:
			if !ok {
				return nil
			}
			if ctx.Err() != nil {
				fd.frame.Close()
				return nil
			}
			err := p.processFrame(ctx, fd, res)
			fd.frame.Close()
			if err != nil {
				return err
			}
		}
	}
}

func (p *Pipeline) processFrame(ctx context.Context, fd FrameData, res *Result) error {
	start := time.Now()

	dets, err := p.tracker.Track(fd.frame, fd.index)
	p.stats.UpdateTracking(time.Since(start))
	if err != nil {
		res.TrackerErrors++
		p.log.Warn().Err(err).Int("frame", fd.index).Msg("tracker failed, counting frame without detections")
		dets = nil
	}

	annotateStart := time.Now()
	fr := p.session.ProcessFrame(fd.index, dets)
	p.renderer.Annotate(&fd.frame, p.session.ROI(), fr.Visible, fr.Snapshot)
	p.stats.UpdateAnnotate(time.Since(annotateStart))

	writeStart := time.Now()
	if err := p.sink.Write(fd.frame); err != nil {
		return fmt.Errorf("write frame %d: %w", fd.index, err)
	}
	p.stats.UpdateWrite(time.Since(writeStart))

	// the frame is already counted and written, so its observers must finish even after an interrupt
	obsCtx := context.WithoutCancel(ctx)
	took := time.Since(start)
	for _, o := range p.observers {
		if err := o.ObserveFrame(obsCtx, fr, took); err != nil {
			p.log.Warn().Err(err).Int("frame", fd.index).Msg("frame observer failed")
		}
	}

	res.Frames++
	res.Skipped += fr.Skipped
	p.stats.UpdateProcess()

	if p.progressEvery > 0 && fd.index%p.progressEvery == 0 {
		w := p.stats.GetStats()
		p.log.Info().
			Int("frame", fd.index).
			Float64("process_fps", w.ProcessFPS).
			Dur("avg_track", w.AvgTrack).
			Dur("avg_write", w.AvgWrite).
			Int("in", fr.Snapshot.In).
			Int("out", fr.Snapshot.Out).
			Int("inside", fr.Snapshot.Inside).
			Msg("progress")
	}
	return nil
}
