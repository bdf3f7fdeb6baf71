package detect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/image/draw"

	"github.com/HatiCode/linecast/pkg/frames"
)

// HTTPDetector delegates inference to an external service. The frame is
// downscaled so its longest side fits Options.ImageSize, JPEG-encoded and
// POSTed; the service answers with a JSON detection list.
//
// Request:
//
//	POST <endpoint>?imgsz=640&conf=0.40
//	Content-Type: image/jpeg
//
// Response:
//
//	{"detections": [{"class": "person", "class_id": 0, "confidence": 0.91,
//	                 "box": {"x1": 10, "y1": 20, "x2": 110, "y2": 220}}]}
//
// Either "class" or "class_id" (COCO numbering) identifies the label.
// Boxes are rescaled back to source-frame coordinates.
type HTTPDetector struct {
	endpoint string
	client   *http.Client
	quality  int
}

type detectResponse struct {
	Detections []struct {
		Class      string  `json:"class"`
		ClassID    *int    `json:"class_id"`
		Confidence float64 `json:"confidence"`
		Box        Box     `json:"box"`
	} `json:"detections"`
}

// NewHTTPDetector creates a detector for endpoint. A nil client gets a
// default client with a 30s timeout.
func NewHTTPDetector(endpoint string, client *http.Client) *HTTPDetector {
	if client == nil {
		client = &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				IdleConnTimeout:     90 * time.Second,
				MaxIdleConnsPerHost: 2,
			},
		}
	}
	return &HTTPDetector{
		endpoint: endpoint,
		client:   client,
		quality:  85,
	}
}

// Name returns the detector identifier.
func (d *HTTPDetector) Name() string { return "http" }

// Detect sends frame to the inference service.
func (d *HTTPDetector) Detect(ctx context.Context, frame frames.Frame, opts Options) ([]Detection, error) {
	if frame.Image == nil {
		return nil, fmt.Errorf("detect: frame %d has no image", frame.Seq)
	}

	scaled, scale := fitLongestSide(frame.Image, opts.ImageSize)

	var body bytes.Buffer
	if err := jpeg.Encode(&body, scaled, &jpeg.Options{Quality: d.quality}); err != nil {
		return nil, fmt.Errorf("detect: encode frame: %w", err)
	}

	u, err := url.Parse(d.endpoint)
	if err != nil {
		return nil, fmt.Errorf("detect: parse endpoint: %w", err)
	}
	q := u.Query()
	if opts.ImageSize > 0 {
		q.Set("imgsz", strconv.Itoa(opts.ImageSize))
	}
	q.Set("conf", strconv.FormatFloat(opts.MinConfidence, 'f', 2, 64))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), &body)
	if err != nil {
		return nil, fmt.Errorf("detect: create request: %w", err)
	}
	req.Header.Set("Content-Type", "image/jpeg")
	req.Header.Set("Accept", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("detect: http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("detect: http %d: %s", resp.StatusCode, string(b))
	}

	var dr detectResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return nil, fmt.Errorf("detect: decode response: %w", err)
	}

	out := make([]Detection, 0, len(dr.Detections))
	for _, raw := range dr.Detections {
		class := raw.Class
		if class == "" && raw.ClassID != nil {
			class = ClassName(*raw.ClassID)
		}
		if raw.Confidence < opts.MinConfidence {
			continue
		}
		out = append(out, Detection{
			Class:      class,
			Confidence: raw.Confidence,
			Box: Box{
				X1: raw.Box.X1 / scale,
				Y1: raw.Box.Y1 / scale,
				X2: raw.Box.X2 / scale,
				Y2: raw.Box.Y2 / scale,
			},
		})
	}

	return out, nil
}

// fitLongestSide downscales img so that neither side exceeds size. It
// returns the image and the applied scale factor (1 when untouched).
func fitLongestSide(img image.Image, size int) (image.Image, float64) {
	b := img.Bounds()
	longest := max(b.Dx(), b.Dy())
	if size <= 0 || longest <= size {
		return img, 1
	}

	scale := float64(size) / float64(longest)
	w := max(1, int(float64(b.Dx())*scale))
	h := max(1, int(float64(b.Dy())*scale))

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst, scale
}
