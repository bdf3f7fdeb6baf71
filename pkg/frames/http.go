package frames

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"time"
)

func defaultClient(client *http.Client) *http.Client {
	if client != nil {
		return client
	}
	return &http.Client{Timeout: 10 * time.Second}
}

// SnapshotSource fetches one JPEG per Next call from a camera snapshot URL.
type SnapshotSource struct {
	url    string
	client *http.Client

	mu     sync.Mutex
	seq    uint64
	closed bool
}

// NewSnapshotSource creates a snapshot source. A nil client uses a default
// client with a 10s timeout.
func NewSnapshotSource(url string, client *http.Client) *SnapshotSource {
	return &SnapshotSource{url: url, client: defaultClient(client)}
}

// Name returns the source identifier.
func (s *SnapshotSource) Name() string { return "snapshot" }

// Next requests a snapshot and decodes it.
func (s *SnapshotSource) Next(ctx context.Context) (Frame, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Frame{}, io.EOF
	}
	s.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return Frame{}, fmt.Errorf("create snapshot request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return Frame{}, fmt.Errorf("snapshot request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Frame{}, fmt.Errorf("snapshot http %d: %s", resp.StatusCode, string(body))
	}

	img, _, err := image.Decode(resp.Body)
	if err != nil {
		return Frame{}, fmt.Errorf("decode snapshot: %w", err)
	}

	s.mu.Lock()
	s.seq++
	seq := s.seq
	s.mu.Unlock()

	return Frame{Seq: seq, Timestamp: time.Now(), Image: img}, nil
}

// Close marks the source closed.
func (s *SnapshotSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// MJPEGSource reads frames from a multipart/x-mixed-replace stream, the
// format most IP cameras and mjpg-streamer serve. The connection is opened
// lazily on the first Next call and held until Close.
type MJPEGSource struct {
	url    string
	client *http.Client

	mu     sync.Mutex
	body   io.ReadCloser
	parts  *multipart.Reader
	seq    uint64
	closed bool
}

// NewMJPEGSource creates an MJPEG source. The client must not set an overall
// Timeout since the stream stays open; a nil client uses one without.
func NewMJPEGSource(url string, client *http.Client) *MJPEGSource {
	if client == nil {
		client = &http.Client{}
	}
	return &MJPEGSource{url: url, client: client}
}

// Name returns the source identifier.
func (m *MJPEGSource) Name() string { return "mjpeg" }

// Next reads the next JPEG part from the stream. A closed stream yields io.EOF.
func (m *MJPEGSource) Next(ctx context.Context) (Frame, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return Frame{}, io.EOF
	}

	if m.parts == nil {
		if err := m.connect(ctx); err != nil {
			return Frame{}, err
		}
	}

	part, err := m.parts.NextPart()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Frame{}, io.EOF
		}
		return Frame{}, fmt.Errorf("read mjpeg part: %w", err)
	}
	defer part.Close()

	img, _, err := image.Decode(bufio.NewReader(part))
	if err != nil {
		return Frame{}, fmt.Errorf("decode mjpeg part: %w", err)
	}

	m.seq++
	return Frame{Seq: m.seq, Timestamp: time.Now(), Image: img}, nil
}

func (m *MJPEGSource) connect(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.url, nil)
	if err != nil {
		return fmt.Errorf("create mjpeg request: %w", err)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("mjpeg request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return fmt.Errorf("mjpeg http %d", resp.StatusCode)
	}

	mediaType, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil {
		resp.Body.Close()
		return fmt.Errorf("parse mjpeg content type: %w", err)
	}
	if !strings.HasPrefix(mediaType, "multipart/") {
		resp.Body.Close()
		return fmt.Errorf("unexpected mjpeg content type %q", mediaType)
	}

	boundary := strings.TrimPrefix(params["boundary"], "--")
	if boundary == "" {
		resp.Body.Close()
		return errors.New("mjpeg content type has no boundary")
	}

	m.body = resp.Body
	m.parts = multipart.NewReader(resp.Body, boundary)
	return nil
}

// Close drops the stream connection.
func (m *MJPEGSource) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	if m.body == nil {
		return nil
	}
	err := m.body.Close()
	m.body = nil
	m.parts = nil
	return err
}
