package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ErrTranscode is returned when the re-encode fails. The original file is left untouched.
var ErrTranscode = errors.New("transcode failed")

const stderrTail = 20

var frameRegex = regexp.MustCompile(`frame=\s*(\d+)`)

// Options configures the H.264 re-encode
type Options struct {
	Binary string // ffmpeg executable; looked up on PATH when bare
	CRF    int
	Preset string
}

// DefaultOptions re-encodes with libx264 at CRF 23, preset fast
func DefaultOptions() Options {
	return Options{Binary: "ffmpeg", CRF: 23, Preset: "fast"}
}

// Transcoder re-encodes finished videos into a widely playable H.264 stream
type Transcoder struct {
	opts Options
	log  zerolog.Logger
}

// NewTranscoder creates a transcoder
func NewTranscoder(opts Options, log zerolog.Logger) *Transcoder {
	if opts.Binary == "" {
		opts.Binary = "ffmpeg"
	}
	return &Transcoder{opts: opts, log: log.With().Str("component", "FFMPEG").Logger()}
}

// Args returns the ffmpeg arguments that encode src into dst
func (t *Transcoder) Args(src, dst string) []string {
	return []string{
		"-y", "-i", src,
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-crf", strconv.Itoa(t.opts.CRF),
		"-preset", t.opts.Preset,
		dst,
	}
}

// Transcode re-encodes path in place. The encoder writes to a temporary file
// in the same directory which then replaces path. On any failure path is
// kept as it was and the error wraps ErrTranscode.
func (t *Transcoder) Transcode(ctx context.Context, path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("%w: %w", ErrTranscode, err)
	}

	ext := filepath.Ext(path)
	tmp := strings.TrimSuffix(path, ext) + ".h264" + ext
	defer os.Remove(tmp)

	cmd := exec.CommandContext(ctx, t.opts.Binary, t.Args(path, tmp)...)
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTranscode, err)
	}

	start := time.Now()
	t.log.Info().Str("input", path).Int("crf", t.opts.CRF).Str("preset", t.opts.Preset).Msg("re-encoding to H.264")
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: start %s: %w", ErrTranscode, t.opts.Binary, err)
	}

	tail := NewOutputBuffer(stderrTail)
	lastFrame := t.monitorOutput(stderr, tail)

	if err := cmd.Wait(); err != nil {
		lines := tail.GetRecent()
		t.log.Debug().Strs("stderr", lines).Msg("ffmpeg output")
		return fmt.Errorf("%w: %w: %s", ErrTranscode, err, lastLine(lines))
	}

	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("%w: replace output: %w", ErrTranscode, err)
	}
	t.log.Info().Int("frames", lastFrame).Dur("took", time.Since(start)).Msg("re-encode complete")
	return nil
}

// monitorOutput records stderr into tail and returns the last frame number reported
func (t *Transcoder) monitorOutput(pipe io.Reader, tail *OutputBuffer) int {
	scanner := bufio.NewScanner(pipe)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	scanner.Split(scanProgressLines)

	lastFrame := 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		tail.Add(line)
		if m := frameRegex.FindStringSubmatch(line); len(m) > 1 {
			if n, err := strconv.Atoi(m[1]); err == nil && n > lastFrame {
				lastFrame = n
				t.log.Trace().Int("frame", n).Msg("progress")
			}
		}
	}
	return lastFrame
}

// scanProgressLines splits on \n and on the bare \r ffmpeg uses for progress updates
func scanProgressLines(data []byte, atEOF bool) (int, []byte, error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

func lastLine(lines []string) string {
	if len(lines) == 0 {
		return "no output"
	}
	return lines[len(lines)-1]
}
