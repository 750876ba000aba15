package eventlog

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"roicount/tracking"

	"github.com/tidwall/sjson"
)

// JSONLWriter mirrors crossing events as JSON lines:
//
//	{"run_id":"…","frame":12,"track_id":3,"display_id":1,"event":"entered","x":320.5,"y":240}
type JSONLWriter struct {
	w      *bufio.Writer
	closer io.Closer
	runID  string
}

// CreateJSONL creates (truncating) a JSON-lines file at path
func CreateJSONL(path, runID string) (*JSONLWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create event log: %w", err)
	}
	jw := NewJSONLWriter(f, runID)
	jw.closer = f
	return jw, nil
}

// NewJSONLWriter writes event lines to w
func NewJSONLWriter(w io.Writer, runID string) *JSONLWriter {
	return &JSONLWriter{w: bufio.NewWriter(w), runID: runID}
}

// ObserveFrame writes one line per crossing event
func (j *JSONLWriter) ObserveFrame(_ context.Context, res tracking.FrameResult, _ time.Duration) error {
	for _, ev := range res.Events {
		line, err := encodeEvent(j.runID, ev)
		if err != nil {
			return err
		}
		if _, err := j.w.Write(append(line, '\n')); err != nil {
			return fmt.Errorf("write event: %w", err)
		}
	}
	return nil
}

func encodeEvent(runID string, ev tracking.Event) ([]byte, error) {
	line := []byte(`{}`)
	fields := []struct {
		path  string
		value interface{}
	}{
		{"run_id", runID},
		{"frame", ev.Frame},
		{"track_id", ev.TrackID},
		{"display_id", ev.DisplayID},
		{"event", ev.Kind.String()},
		{"x", ev.Centroid.X},
		{"y", ev.Centroid.Y},
	}
	var err error
	for _, f := range fields {
		if line, err = sjson.SetBytes(line, f.path, f.value); err != nil {
			return nil, fmt.Errorf("encode %s: %w", f.path, err)
		}
	}
	return line, nil
}

// Close flushes buffered lines and closes the file when the writer created it
func (j *JSONLWriter) Close() error {
	err := j.w.Flush()
	if j.closer != nil {
		if cerr := j.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
