// Package detect defines the object detection capability used by the
// sensing loop and an HTTP client for a remote inference service.
package detect

import (
	"context"

	"github.com/HatiCode/linecast/pkg/frames"
)

// Box is a bounding region in source-frame pixel coordinates.
type Box struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// Detection is one object found in a frame.
type Detection struct {
	Class      string  `json:"class"`
	Confidence float64 `json:"confidence"`
	Box        Box     `json:"box"`
}

// Options controls a single inference call.
type Options struct {
	// ImageSize is the inference input resolution (longest side, pixels).
	ImageSize int
	// MinConfidence discards detections below this score.
	MinConfidence float64
}

// DefaultOptions returns the inference settings used by the monitor.
func DefaultOptions() Options {
	return Options{
		ImageSize:     640,
		MinConfidence: 0.4,
	}
}

// Detector runs inference on a frame. Implementations hold no per-frame
// state; Detect must be safe to call once per loop iteration indefinitely.
type Detector interface {
	Detect(ctx context.Context, frame frames.Frame, opts Options) ([]Detection, error)
	Name() string
}

// Func adapts an ordinary function to the Detector interface.
type Func func(ctx context.Context, frame frames.Frame, opts Options) ([]Detection, error)

// Detect calls f.
func (f Func) Detect(ctx context.Context, frame frames.Frame, opts Options) ([]Detection, error) {
	return f(ctx, frame, opts)
}

// Name returns "func".
func (f Func) Name() string { return "func" }

// cocoClasses maps COCO class ids, as emitted by YOLO models, to labels.
var cocoClasses = []string{
	"person", "bicycle", "car", "motorcycle", "airplane", "bus", "train", "truck", "boat",
	"traffic light", "fire hydrant", "stop sign", "parking meter", "bench", "bird", "cat",
	"dog", "horse", "sheep", "cow", "elephant", "bear", "zebra", "giraffe", "backpack",
	"umbrella", "handbag", "tie", "suitcase", "frisbee", "skis", "snowboard", "sports ball",
	"kite", "baseball bat", "baseball glove", "skateboard", "surfboard", "tennis racket",
	"bottle", "wine glass", "cup", "fork", "knife", "spoon", "bowl", "banana", "apple",
	"sandwich", "orange", "broccoli", "carrot", "hot dog", "pizza", "donut", "cake", "chair",
	"couch", "potted plant", "bed", "dining table", "toilet", "tv", "laptop", "mouse",
	"remote", "keyboard", "cell phone", "microwave", "oven", "toaster", "sink",
	"refrigerator", "book", "clock", "vase", "scissors", "teddy bear", "hair drier",
	"toothbrush",
}

// ClassName returns the COCO label for id, or "" if id is out of range.
func ClassName(id int) string {
	if id < 0 || id >= len(cocoClasses) {
		return ""
	}
	return cocoClasses[id]
}
