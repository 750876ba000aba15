package report

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"sync"
	"time"

	"roicount/tracking"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// ErrNoSamples is returned when saving a plot before any frame was observed
var ErrNoSamples = errors.New("no samples recorded")

// Sample is the count state after one frame
type Sample struct {
	Frame    int
	Snapshot tracking.Snapshot
}

// OccupancyPlotter records the In/Out/Inside counts per frame and renders
// them as a line chart after the run.
type OccupancyPlotter struct {
	mu      sync.Mutex
	samples []Sample
	title   string
}

// NewOccupancyPlotter creates an empty plotter
func NewOccupancyPlotter(title string) *OccupancyPlotter {
	return &OccupancyPlotter{title: title}
}

// ObserveFrame records the frame's snapshot. Runs of unchanged counts keep
// only their first and last frame.
func (op *OccupancyPlotter) ObserveFrame(_ context.Context, res tracking.FrameResult, _ time.Duration) error {
	op.mu.Lock()
	defer op.mu.Unlock()

	s := Sample{Frame: res.Frame, Snapshot: res.Snapshot}
	n := len(op.samples)
	if n >= 2 && op.samples[n-1].Snapshot == s.Snapshot && op.samples[n-2].Snapshot == s.Snapshot {
		op.samples[n-1] = s
		return nil
	}
	op.samples = append(op.samples, s)
	return nil
}

// Samples returns a copy of the recorded samples
func (op *OccupancyPlotter) Samples() []Sample {
	op.mu.Lock()
	defer op.mu.Unlock()
	return append([]Sample(nil), op.samples...)
}

// Save renders the timeline to path. The format follows the file extension (png, svg, pdf).
func (op *OccupancyPlotter) Save(path string) error {
	samples := op.Samples()
	if len(samples) == 0 {
		return ErrNoSamples
	}

	p := plot.New()
	p.Title.Text = op.title
	p.X.Label.Text = "Frame"
	p.Y.Label.Text = "People"
	p.Y.Min = 0

	inPts := make(plotter.XYs, len(samples))
	outPts := make(plotter.XYs, len(samples))
	insidePts := make(plotter.XYs, len(samples))
	for i, s := range samples {
		x := float64(s.Frame)
		inPts[i] = plotter.XY{X: x, Y: float64(s.Snapshot.In)}
		outPts[i] = plotter.XY{X: x, Y: float64(s.Snapshot.Out)}
		insidePts[i] = plotter.XY{X: x, Y: float64(s.Snapshot.Inside)}
	}

	series := []struct {
		label string
		pts   plotter.XYs
		color color.Color
	}{
		{"In", inPts, color.RGBA{R: 0x1f, G: 0x77, B: 0xb4, A: 0xff}},
		{"Out", outPts, color.RGBA{R: 0xd6, G: 0x27, B: 0x28, A: 0xff}},
		{"Inside", insidePts, color.RGBA{R: 0x2c, G: 0xa0, B: 0x2c, A: 0xff}},
	}
	for _, s := range series {
		line, err := plotter.NewLine(s.pts)
		if err != nil {
			return fmt.Errorf("%s line: %w", s.label, err)
		}
		line.Color = s.color
		line.Width = vg.Points(1.5)
		p.Add(line)
		p.Legend.Add(s.label, line)
	}

	p.Legend.Top = true
	p.Legend.Left = true
	p.Legend.XOffs = 10
	p.Legend.YOffs = -10
	p.Add(plotter.NewGrid())

	if err := p.Save(10*vg.Inch, 4*vg.Inch, path); err != nil {
		return fmt.Errorf("save occupancy plot: %w", err)
	}
	return nil
}
