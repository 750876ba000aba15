package detection

import (
	"fmt"
	"image"
	"os"
	"strings"
	"sync"

	"gocv.io/x/gocv"
)

// DefaultInputSize is the square network input used when none is configured
const DefaultInputSize = 640

// OutputLayout describes how a network lays out its predictions
type OutputLayout string

const (
	// LayoutDarknet rows are [cx, cy, w, h, objectness, class scores...], normalised to 0..1.
	LayoutDarknet OutputLayout = "darknet"
	// LayoutUltralytics is a single [1, 4+classes, N] tensor in input pixels, no objectness.
	LayoutUltralytics OutputLayout = "ultralytics"
)

// ModelConfig describes the detector network
type ModelConfig struct {
	Weights       string
	Config        string // darknet .cfg; empty for ONNX
	Names         string // one class name per line; empty uses COCO
	Backend       Backend
	Layout        OutputLayout
	InputSize     int
	Confidence    float64
	NMSThreshold  float64
	TargetClassID int // only this class is kept; -1 keeps all
}

// candidate is a decoded prediction before non-maximum suppression
type candidate struct {
	rect    image.Rectangle
	classID int
	score   float32
}

// yoloNet holds everything shared by the CPU and GPU providers
type yoloNet struct {
	net        gocv.Net
	outNames   []string
	classNames []string
	cfg        ModelConfig
	mu         sync.Mutex
}

func (y *yoloNet) load(cfg ModelConfig, backend gocv.NetBackendType, target gocv.NetTargetType) error {
	if cfg.InputSize <= 0 {
		cfg.InputSize = DefaultInputSize
	}
	if cfg.Layout == "" {
		cfg.Layout = LayoutUltralytics
	}
	y.cfg = cfg

	y.net = gocv.ReadNet(cfg.Weights, cfg.Config)
	if y.net.Empty() {
		return fmt.Errorf("failed to load network from %s", cfg.Weights)
	}
	if err := y.net.SetPreferableBackend(backend); err != nil {
		y.net.Close()
		return fmt.Errorf("set backend: %w", err)
	}
	if err := y.net.SetPreferableTarget(target); err != nil {
		y.net.Close()
		return fmt.Errorf("set target: %w", err)
	}

	for _, id := range y.net.GetUnconnectedOutLayers() {
		layer := y.net.GetLayer(id)
		y.outNames = append(y.outNames, layer.GetName())
		layer.Close()
	}

	names, err := LoadClassNames(cfg.Names)
	if err != nil {
		y.net.Close()
		return err
	}
	y.classNames = names
	return nil
}

func (y *yoloNet) detect(frame gocv.Mat) (*DetectionResult, error) {
	y.mu.Lock()
	defer y.mu.Unlock()

	size := y.cfg.InputSize
	blob := gocv.BlobFromImage(frame, 1.0/255.0, image.Pt(size, size), gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	y.net.SetInput(blob, "")
	outputs := y.net.ForwardLayers(y.outNames)
	defer func() {
		for i := range outputs {
			outputs[i].Close()
		}
	}()

	frameW, frameH := frame.Cols(), frame.Rows()
	var cands []candidate
	for _, out := range outputs {
		data, err := out.DataPtrFloat32()
		if err != nil {
			return nil, fmt.Errorf("read network output: %w", err)
		}
		switch y.cfg.Layout {
		case LayoutDarknet:
			cands = append(cands, decodeDarknet(data, out.Cols(), frameW, frameH, float32(y.cfg.Confidence))...)
		default:
			dims := out.Size()
			if len(dims) != 3 {
				return nil, fmt.Errorf("unexpected output shape %v", dims)
			}
			cands = append(cands, decodeUltralytics(data, dims[1], dims[2], size, frameW, frameH, float32(y.cfg.Confidence))...)
		}
	}

	cands = filterClass(cands, y.cfg.TargetClassID)
	return y.suppress(cands), nil
}

func (y *yoloNet) suppress(cands []candidate) *DetectionResult {
	res := &DetectionResult{}
	if len(cands) == 0 {
		return res
	}

	rects := make([]image.Rectangle, len(cands))
	scores := make([]float32, len(cands))
	for i, c := range cands {
		rects[i] = c.rect
		scores[i] = c.score
	}
	keep := gocv.NMSBoxes(rects, scores, float32(y.cfg.Confidence), float32(y.cfg.NMSThreshold))

	for _, i := range keep {
		c := cands[i]
		res.Rects = append(res.Rects, c.rect)
		res.ClassIDs = append(res.ClassIDs, c.classID)
		res.ClassNames = append(res.ClassNames, className(y.classNames, c.classID))
		res.Confidences = append(res.Confidences, float64(c.score))
	}
	return res
}

func (y *yoloNet) close() error {
	return y.net.Close()
}

// decodeDarknet decodes row-major [cx, cy, w, h, obj, scores...] predictions
func decodeDarknet(data []float32, cols, frameW, frameH int, threshold float32) []candidate {
	if cols <= 5 {
		return nil
	}
	var out []candidate
	for off := 0; off+cols <= len(data); off += cols {
		row := data[off : off+cols]
		classID, score := argmax(row[5:])
		score *= row[4]
		if score <= threshold {
			continue
		}
		cx, cy := row[0]*float32(frameW), row[1]*float32(frameH)
		w, h := row[2]*float32(frameW), row[3]*float32(frameH)
		out = append(out, candidate{rect: centerRect(cx, cy, w, h), classID: classID, score: score})
	}
	return out
}

// decodeUltralytics decodes a channel-major [4+classes, n] tensor in input pixel space
func decodeUltralytics(data []float32, channels, n, inputSize, frameW, frameH int, threshold float32) []candidate {
	if channels <= 4 || len(data) < channels*n {
		return nil
	}
	sx := float32(frameW) / float32(inputSize)
	sy := float32(frameH) / float32(inputSize)

	var out []candidate
	scores := make([]float32, channels-4)
	for i := 0; i < n; i++ {
		for c := range scores {
			scores[c] = data[(4+c)*n+i]
		}
		classID, score := argmax(scores)
		if score <= threshold {
			continue
		}
		cx, cy := data[i]*sx, data[n+i]*sy
		w, h := data[2*n+i]*sx, data[3*n+i]*sy
		out = append(out, candidate{rect: centerRect(cx, cy, w, h), classID: classID, score: score})
	}
	return out
}

func filterClass(cands []candidate, classID int) []candidate {
	if classID < 0 {
		return cands
	}
	kept := cands[:0]
	for _, c := range cands {
		if c.classID == classID {
			kept = append(kept, c)
		}
	}
	return kept
}

func argmax(v []float32) (int, float32) {
	best, bestVal := 0, float32(0)
	for i, x := range v {
		if x > bestVal {
			best, bestVal = i, x
		}
	}
	return best, bestVal
}

func centerRect(cx, cy, w, h float32) image.Rectangle {
	left := int(cx - w/2)
	top := int(cy - h/2)
	return image.Rect(left, top, left+int(w), top+int(h))
}

// LoadClassNames reads one class name per line. An empty path returns the COCO names.
func LoadClassNames(path string) ([]string, error) {
	if path == "" {
		return append([]string(nil), cocoClasses...), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read class names: %w", err)
	}
	var names []string
	for _, line := range strings.Split(string(data), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			names = append(names, line)
		}
	}
	return names, nil
}

// ClassID resolves a class name to its index, or -1 for "all"
func ClassID(names []string, name string) (int, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "all" || name == "*" {
		return -1, nil
	}
	for i, n := range names {
		if strings.ToLower(n) == name {
			return i, nil
		}
	}
	return 0, fmt.Errorf("unknown class %q", name)
}

func className(names []string, id int) string {
	if id >= 0 && id < len(names) {
		return names[id]
	}
	return fmt.Sprintf("class_%d", id)
}

var cocoClasses = []string{
	"person", "bicycle", "car", "motorcycle", "airplane", "bus", "train", "truck", "boat",
	"traffic light", "fire hydrant", "stop sign", "parking meter", "bench", "bird", "cat", "dog",
	"horse", "sheep", "cow", "elephant", "bear", "zebra", "giraffe", "backpack", "umbrella",
	"handbag", "tie", "suitcase", "frisbee", "skis", "snowboard", "sports ball", "kite",
	"baseball bat", "baseball glove", "skateboard", "surfboard", "tennis racket", "bottle",
	"wine glass", "cup", "fork", "knife", "spoon", "bowl", "banana", "apple", "sandwich", "orange",
	"broccoli", "carrot", "hot dog", "pizza", "donut", "cake", "chair", "couch", "potted plant",
	"bed", "dining table", "toilet", "tv", "laptop", "mouse", "remote", "keyboard", "cell phone",
	"microwave", "oven", "toaster", "sink", "refrigerator", "book", "clock", "vase", "scissors",
	"teddy bear", "hair drier", "toothbrush",
}
