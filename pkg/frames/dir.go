package frames

import (
	"context"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// DirSource replays image files from a directory in lexical order.
// It is mainly used to run the sensing loop against recorded footage.
type DirSource struct {
	dir   string
	files []string

	mu     sync.Mutex
	next   int
	seq    uint64
	closed bool
}

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
}

// NewDirSource lists the images under dir. Subdirectories are ignored.
func NewDirSource(dir string) (*DirSource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read frame dir: %w", err)
	}

	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if imageExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)

	return &DirSource{dir: dir, files: files}, nil
}

// Name returns the source identifier.
func (d *DirSource) Name() string { return "dir" }

// Len returns the number of frames the source will yield.
func (d *DirSource) Len() int { return len(d.files) }

// Next decodes the next image. It returns io.EOF after the last file.
func (d *DirSource) Next(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed || d.next >= len(d.files) {
		return Frame{}, io.EOF
	}

	path := d.files[d.next]
	d.next++

	f, err := os.Open(path)
	if err != nil {
		return Frame{}, fmt.Errorf("open frame %s: %w", path, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return Frame{}, fmt.Errorf("decode frame %s: %w", path, err)
	}

	d.seq++
	return Frame{Seq: d.seq, Timestamp: time.Now(), Image: img}, nil
}

// Close stops the source. Subsequent Next calls return io.EOF.
func (d *DirSource) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}
