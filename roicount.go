package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"roicount/config"
	"roicount/detection"
	"roicount/eventlog"
	"roicount/metrics"
	"roicount/overlay"
	"roicount/pipeline"
	"roicount/pkg/ffmpeg"
	"roicount/report"
	"roicount/tracking"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

var (
	// Command-line flags. Any flag given explicitly overrides the config file.
	configPath  = flag.String("config", "", "YAML configuration file (optional)")
	inputPath   = flag.String("input", "", "Input video file (required)\n\t\tExample: -input=entrance.mp4")
	outputPath  = flag.String("output", "output_video.mp4", "Annotated output video")
	debugMode   = flag.Bool("debug", false, "Enable debug logging (per-crossing events, skipped detections)")
	logFormat   = flag.String("log-format", "console", "Log format: console or json")
	weights     = flag.String("weights", "yolov8n.onnx", "Detector weights (ONNX, or darknet .weights with -model-config)")
	modelConfig = flag.String("model-config", "", "Darknet .cfg file for -weights")
	classNames  = flag.String("names", "", "Class names file, one per line (default: COCO)")
	backend     = flag.String("backend", "auto", "Inference backend: auto, cpu or cuda")
	targetClass = flag.String("class", "person", "Class to count, or 'all'")
	countMode   = flag.String("count-mode", "unique", "Count mode: unique or every-entry")
	margin      = flag.Float64("margin", tracking.DefaultMarginFraction, "ROI inset from each frame edge as a fraction of width/height")
	replayPath  = flag.String("replay", "", "Replay tracker output from a JSON-lines file instead of running the detector")
	trails      = flag.Bool("trails", false, "Draw each counted person's centroid trail")
	noTranscode = flag.Bool("no-transcode", false, "Skip the H.264 re-encode of the output")
	eventsDB    = flag.String("events-db", "", "SQLite database for crossing events (optional)")
	eventsJSONL = flag.String("events-jsonl", "", "JSON-lines file for crossing events (optional)")
	metricsAddr = flag.String("metrics-addr", "", "Serve Prometheus metrics on this address while running, e.g. :9090")
	plotPath    = flag.String("plot", "", "Save an occupancy timeline chart (png, svg or pdf)")

	logger = zerolog.Nop()
)

// debugMsg logs a tagged debug line, in the form used throughout the pipeline
func debugMsg(component, message string) {
	logger.Debug().Str("component", component).Msg(message)
}

func main() {
	os.Exit(run())
}

func run() int {
	flag.Parse()
	logger = newLogger(os.Stderr, *logFormat, *debugMode)
	log := logger.With().Str("component", "MAIN").Logger()

	cfg, err := loadConfig()
	if err != nil {
		log.Error().Err(err).Msg("configuration error")
		return 1
	}
	if cfg.Input == "" {
		fmt.Fprintln(os.Stderr, "roicount: -input is required")
		flag.Usage()
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	capture, info, err := pipeline.OpenInput(cfg.Input)
	if err != nil {
		log.Error().Err(err).Msg("setup failed")
		return 1
	}
	defer capture.Close()
	log.Info().Str("input", cfg.Input).Int("width", info.Width).Int("height", info.Height).
		Float64("fps", info.FPS).Int("frames", info.Frames).Msg("input opened")

	roi, err := cfg.ROIFor(info.Width, info.Height)
	if err != nil {
		log.Error().Err(err).Msg("setup failed")
		return 1
	}
	debugMsg("ROI", fmt.Sprintf("counting region %v", roi.Points()))

	classID, err := cfg.ClassID()
	if err != nil {
		log.Error().Err(err).Msg("setup failed")
		return 1
	}
	opts, err := cfg.SessionOptions(classID, logger)
	if err != nil {
		log.Error().Err(err).Msg("setup failed")
		return 1
	}
	session := tracking.NewSession(roi, opts)

	style, err := cfg.Style()
	if err != nil {
		log.Error().Err(err).Msg("setup failed")
		return 1
	}
	renderer := overlay.NewRenderer(style)

	tracker, closeTracker, err := buildTracker(cfg, classID)
	if err != nil {
		log.Error().Err(err).Msg("setup failed")
		return 1
	}
	defer closeTracker()

	writer, err := pipeline.OpenOutput(cfg.Output, info)
	if err != nil {
		log.Error().Err(err).Msg("setup failed")
		return 1
	}

	sinks, err := openSinks(ctx, cfg)
	if err != nil {
		writer.Close()
		log.Error().Err(err).Msg("setup failed")
		return 1
	}

	pipelineOpts := []pipeline.Option{pipeline.WithLogger(logger)}
	for _, o := range sinks.observers {
		pipelineOpts = append(pipelineOpts, pipeline.WithObserver(o))
	}
	p := pipeline.New(capture, writer, tracker, session, renderer, pipelineOpts...)

	res, runErr := p.Run(ctx)
	if err := writer.Close(); err != nil && runErr == nil {
		runErr = fmt.Errorf("close output: %w", err)
	}
	sinks.close(res.Snapshot)

	s := res.Stats
	log.Info().
		Int("frames", res.Frames).
		Int("skipped_detections", res.Skipped).
		Int("tracker_errors", res.TrackerErrors).
		Int("people_labelled", res.DisplayIDs).
		Float64("fps", s.FPS).
		Dur("avg_track", s.AvgTrack).
		Dur("avg_annotate", s.AvgAnnotate).
		Dur("elapsed", s.Elapsed).
		Bool("interrupted", res.Interrupted).
		Msg("run complete")

	fmt.Printf("Inflow: %d | Outflow: %d | Currently Inside: %d\n", res.Snapshot.In, res.Snapshot.Out, res.Snapshot.Inside)

	if runErr != nil {
		log.Error().Err(runErr).Msg("run failed")
		return 1
	}

	switch {
	case !cfg.Transcode.Enabled:
		debugMsg("FFMPEG", "re-encode disabled")
	case res.Interrupted:
		log.Warn().Str("output", cfg.Output).Msg("interrupted, leaving mp4v output as written")
	default:
		tc := ffmpeg.NewTranscoder(cfg.TranscodeOptions(), logger)
		if err := tc.Transcode(ctx, cfg.Output); err != nil {
			// counts are already final; the mp4v output is still usable
			log.Warn().Err(err).Str("output", cfg.Output).Msg("re-encode failed, keeping mp4v output")
		}
	}

	log.Info().Str("output", cfg.Output).Msg("done")
	return 0
}

func newLogger(w io.Writer, format string, debug bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	if strings.EqualFold(format, "json") {
		return zerolog.New(w).Level(level).With().Timestamp().Logger()
	}
	cw := zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05.000"}
	return zerolog.New(cw).Level(level).With().Timestamp().Logger()
}

// loadConfig starts from the config file (or the defaults) and applies explicitly set flags
func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "input":
			cfg.Input = *inputPath
		case "output":
			cfg.Output = *outputPath
		case "weights":
			cfg.Model.Weights = *weights
		case "model-config":
			cfg.Model.Config = *modelConfig
			cfg.Model.Layout = string(detection.LayoutDarknet)
		case "names":
			cfg.Model.Names = *classNames
		case "backend":
			cfg.Model.Backend = *backend
		case "class":
			cfg.TargetClass = *targetClass
		case "count-mode":
			cfg.CountMode = *countMode
		case "margin":
			cfg.ROI.MarginFraction = *margin
			cfg.ROI.Points = nil
		case "replay":
			cfg.Tracker.Kind = config.TrackerReplay
			cfg.Tracker.ReplayPath = *replayPath
		case "trails":
			cfg.Annotation.Trails = *trails
		case "no-transcode":
			cfg.Transcode.Enabled = !*noTranscode
		case "events-db":
			cfg.Events.DBPath = *eventsDB
		case "events-jsonl":
			cfg.Events.JSONLPath = *eventsJSONL
		case "metrics-addr":
			cfg.Metrics.Addr = *metricsAddr
		case "plot":
			cfg.Report.PlotPath = *plotPath
		}
	})

	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// buildTracker returns the detector+ByteTrack tracker or the replay tracker
func buildTracker(cfg *config.Config, classID int) (pipeline.Tracker, func(), error) {
	if cfg.Tracker.Kind == config.TrackerReplay {
		rt, err := detection.OpenReplay(cfg.Tracker.ReplayPath)
		if err != nil {
			return nil, nil, err
		}
		debugMsg("TRACKER", "replaying "+cfg.Tracker.ReplayPath)
		return rt, func() { rt.Close() }, nil
	}

	pm := detection.NewProviderManager(logger)
	if err := pm.Initialize(cfg.DetectorConfig(classID)); err != nil {
		return nil, nil, err
	}
	info := pm.GetProviderInfo()
	logger.Info().Str("component", "PROVIDER").Str("type", info.Type).Str("backend", info.Backend).
		Str("device", info.Device).Dur("init", info.InitTime).Msg("inference provider ready")

	bt := detection.NewByteTracker(pm.GetProvider(), cfg.ByteTrack(), logger)
	return bt, func() {
		bt.Close()
		pm.Close()
	}, nil
}

// runSinks holds the optional per-frame consumers of a run
type runSinks struct {
	observers []pipeline.FrameObserver

	store       *eventlog.Store
	run         *eventlog.Run
	jsonl       *eventlog.JSONLWriter
	plotter     *report.OccupancyPlotter
	plotPath    string
	stopMetrics func()
}

func openSinks(ctx context.Context, cfg *config.Config) (*runSinks, error) {
	s := &runSinks{stopMetrics: func() {}}
	runID := ""

	if cfg.Events.DBPath != "" {
		store, err := eventlog.Open(cfg.Events.DBPath, logger)
		if err != nil {
			return nil, err
		}
		run, err := store.StartRun(ctx, cfg.Input)
		if err != nil {
			store.Close()
			return nil, err
		}
		s.store, s.run = store, run
		runID = run.ID()
		s.observers = append(s.observers, run)
	}

	if cfg.Events.JSONLPath != "" {
		if runID == "" {
			runID = filepath.Base(cfg.Input)
		}
		jw, err := eventlog.CreateJSONL(cfg.Events.JSONLPath, runID)
		if err != nil {
			s.close(tracking.Snapshot{})
			return nil, err
		}
		s.jsonl = jw
		s.observers = append(s.observers, jw)
	}

	if cfg.Metrics.Addr != "" {
		reg := prometheus.NewRegistry()
		m := metrics.NewMetrics(reg)
		s.observers = append(s.observers, metricsObserver{m})

		mctx, cancel := context.WithCancel(ctx)
		done := make(chan struct{})
		go func() {
			defer close(done)
			if err := metrics.Serve(mctx, cfg.Metrics.Addr, reg, logger); err != nil {
				logger.Warn().Str("component", "METRICS").Err(err).Msg("metrics server stopped")
			}
		}()
		s.stopMetrics = func() {
			cancel()
			<-done
		}
	}

	if cfg.Report.PlotPath != "" {
		s.plotter = report.NewOccupancyPlotter("Occupancy: " + filepath.Base(cfg.Input))
		s.plotPath = cfg.Report.PlotPath
		s.observers = append(s.observers, s.plotter)
	}
	return s, nil
}

// close finalises every sink; failures are logged since counts are already final
func (s *runSinks) close(snap tracking.Snapshot) {
	// finishing a run must survive the interrupt that ended it
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if s.run != nil {
		if err := s.run.Finish(ctx, snap); err != nil {
			logger.Warn().Str("component", "EVENTLOG").Err(err).Msg("could not record run totals")
		}
	}
	if s.store != nil {
		s.store.Close()
	}
	if s.jsonl != nil {
		if err := s.jsonl.Close(); err != nil {
			logger.Warn().Str("component", "EVENTLOG").Err(err).Msg("could not flush event lines")
		}
	}
	if s.plotter != nil {
		err := s.plotter.Save(s.plotPath)
		switch {
		case errors.Is(err, report.ErrNoSamples):
			debugMsg("REPORT", "no frames processed, skipping occupancy plot")
		case err != nil:
			logger.Warn().Str("component", "REPORT").Err(err).Msg("could not save occupancy plot")
		default:
			logger.Info().Str("component", "REPORT").Str("path", s.plotPath).Msg("occupancy plot saved")
		}
	}
	s.stopMetrics()
}

// metricsObserver adapts Metrics to the pipeline's observer interface
type metricsObserver struct {
	m *metrics.Metrics
}

func (o metricsObserver) ObserveFrame(_ context.Context, res tracking.FrameResult, took time.Duration) error {
	o.m.Observe(res, took)
	return nil
}
