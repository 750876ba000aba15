package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"roicount/tracking"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Metrics exports counting progress for one run
type Metrics struct {
	Inflow            prometheus.Counter
	Outflow           prometheus.Counter
	Inside            prometheus.Gauge
	FramesProcessed   prometheus.Counter
	DetectionsSkipped prometheus.Counter
	FrameDuration     prometheus.Histogram

	mu   sync.Mutex
	last tracking.Snapshot
}

// NewMetrics creates the collectors and registers them on reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Inflow: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "roicount",
			Name:      "inflow_total",
			Help:      "Tracks counted as entering the region.",
		}),
		Outflow: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "roicount",
			Name:      "outflow_total",
			Help:      "Tracks counted as leaving the region.",
		}),
		Inside: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "roicount",
			Name:      "inside",
			Help:      "Tracks currently counted inside the region.",
		}),
		FramesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "roicount",
			Name:      "frames_processed_total",
			Help:      "Frames run through the counting session.",
		}),
		DetectionsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "roicount",
			Name:      "detections_skipped_total",
			Help:      "Malformed detections dropped before counting.",
		}),
		FrameDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "roicount",
			Name:      "frame_duration_seconds",
			Help:      "Time to track, count and annotate one frame.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}

	reg.MustRegister(m.Inflow)
	reg.MustRegister(m.Outflow)
	reg.MustRegister(m.Inside)
	reg.MustRegister(m.FramesProcessed)
	reg.MustRegister(m.DetectionsSkipped)
	reg.MustRegister(m.FrameDuration)
	return m
}

// Observe records one processed frame. Snapshot counts never decrease, so the
// counters advance by the difference from the previous frame.
func (m *Metrics) Observe(res tracking.FrameResult, took time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if d := res.Snapshot.In - m.last.In; d > 0 {
		m.Inflow.Add(float64(d))
	}
	if d := res.Snapshot.Out - m.last.Out; d > 0 {
		m.Outflow.Add(float64(d))
	}
	m.Inside.Set(float64(res.Snapshot.Inside))
	m.last = res.Snapshot

	m.FramesProcessed.Inc()
	if res.Skipped > 0 {
		m.DetectionsSkipped.Add(float64(res.Skipped))
	}
	m.FrameDuration.Observe(took.Seconds())
}

// Serve exposes the registry on addr until ctx is done
func Serve(ctx context.Context, addr string, gatherer prometheus.Gatherer, log zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("serving metrics")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("metrics shutdown: %w", err)
		}
		<-errCh
		return nil
	}
}
