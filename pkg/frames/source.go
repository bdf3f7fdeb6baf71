// Package frames provides camera frame sources for the sensing loop.
//
// A Source yields decoded frames on demand. Available sources:
//   - DirSource: image files from a directory, in lexical order
//   - SnapshotSource: polls an HTTP JPEG snapshot endpoint (IP cameras)
//   - MJPEGSource: reads a multipart/x-mixed-replace MJPEG stream
//
// Next returns io.EOF when the source has no more frames. Any other error
// means the device could not deliver a frame; callers treat both as the
// end of the stream.
package frames

import (
	"context"
	"fmt"
	"image"
	"net/http"
	"time"

	// Register decoders used by image.Decode.
	_ "image/jpeg"
	_ "image/png"
)

// Frame is a single decoded camera frame.
type Frame struct {
	// Seq is the monotonic sequence number within one source.
	Seq uint64
	// Timestamp is when the frame was captured.
	Timestamp time.Time
	// Image holds the decoded pixels.
	Image image.Image
}

// Source produces frames on demand.
type Source interface {
	// Next blocks until a frame is available.
	Next(ctx context.Context) (Frame, error)

	// Close releases the underlying device handle.
	Close() error

	// Name returns a short identifier for logs.
	Name() string
}

// New creates a source based on kind.
//
// Supported kinds:
//   - "dir":      location is a directory path
//   - "snapshot": location is an HTTP URL returning a single JPEG
//   - "mjpeg":    location is an HTTP URL serving an MJPEG stream
//
// client may be nil for the HTTP sources.
func New(kind, location string, client *http.Client) (Source, error) {
	if location == "" {
		return nil, fmt.Errorf("%s source requires a location", kind)
	}

	switch kind {
	case "dir":
		return NewDirSource(location)
	case "snapshot":
		return NewSnapshotSource(location, client), nil
	case "mjpeg":
		return NewMJPEGSource(location, client), nil
	default:
		return nil, fmt.Errorf("unknown source kind: %s (must be dir, snapshot, or mjpeg)", kind)
	}
}
