package frames

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"testing"
)

func testImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	return img
}

func jpegBytes(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	return buf.Bytes()
}

func TestDirSource_ReplaysInOrderThenEOF(t *testing.T) {
	dir := t.TempDir()
	for i, name := range []string{"b.png", "a.png", "c.jpg"} {
		f, err := os.Create(filepath.Join(dir, name))
		if err != nil {
			t.Fatal(err)
		}
		img := testImage(8+i, 4)
		if filepath.Ext(name) == ".png" {
			err = png.Encode(f, img)
		} else {
			err = jpeg.Encode(f, img, nil)
		}
		f.Close()
		if err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("skip"), 0o644); err != nil {
		t.Fatal(err)
	}

	src, err := NewDirSource(dir)
	if err != nil {
		t.Fatalf("NewDirSource() error = %v", err)
	}
	defer src.Close()

	if src.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", src.Len())
	}

	ctx := context.Background()
	wantWidths := []int{9, 8, 10} // a.png, b.png, c.jpg
	for i, want := range wantWidths {
		frame, err := src.Next(ctx)
		if err != nil {
			t.Fatalf("Next() #%d error = %v", i, err)
		}
		if got := frame.Image.Bounds().Dx(); got != want {
			t.Errorf("frame %d width = %d, want %d", i, got, want)
		}
		if frame.Seq != uint64(i+1) {
			t.Errorf("frame %d seq = %d, want %d", i, frame.Seq, i+1)
		}
	}

	if _, err := src.Next(ctx); !errors.Is(err, io.EOF) {
		t.Errorf("Next() after last frame error = %v, want io.EOF", err)
	}
}

func TestDirSource_MissingDir(t *testing.T) {
	if _, err := NewDirSource(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Fatal("expected error for missing directory")
	}
}

func TestDirSource_CloseEndsStream(t *testing.T) {
	dir := t.TempDir()
	f, _ := os.Create(filepath.Join(dir, "a.png"))
	png.Encode(f, testImage(4, 4))
	f.Close()

	src, err := NewDirSource(dir)
	if err != nil {
		t.Fatal(err)
	}
	src.Close()

	if _, err := src.Next(context.Background()); !errors.Is(err, io.EOF) {
		t.Errorf("Next() after Close error = %v, want io.EOF", err)
	}
}

func TestSnapshotSource_Next(t *testing.T) {
	body := jpegBytes(t, testImage(16, 12))
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write(body)
	}))
	defer server.Close()

	src := NewSnapshotSource(server.URL, nil)
	defer src.Close()

	frame, err := src.Next(context.Background())
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if b := frame.Image.Bounds(); b.Dx() != 16 || b.Dy() != 12 {
		t.Errorf("frame bounds = %v, want 16x12", b)
	}
}

func TestSnapshotSource_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "camera offline", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	src := NewSnapshotSource(server.URL, nil)
	if _, err := src.Next(context.Background()); err == nil {
		t.Fatal("expected error for 503 response")
	}
}

func TestMJPEGSource_ReadsPartsThenEOF(t *testing.T) {
	frames := [][]byte{
		jpegBytes(t, testImage(8, 8)),
		jpegBytes(t, testImage(10, 8)),
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mw := multipart.NewWriter(w)
		w.Header().Set("Content-Type", fmt.Sprintf("multipart/x-mixed-replace; boundary=%s", mw.Boundary()))
		for _, f := range frames {
			h := textproto.MIMEHeader{}
			h.Set("Content-Type", "image/jpeg")
			pw, err := mw.CreatePart(h)
			if err != nil {
				return
			}
			pw.Write(f)
		}
		mw.Close()
	}))
	defer server.Close()

	src := NewMJPEGSource(server.URL, nil)
	defer src.Close()

	ctx := context.Background()
	for i, want := range []int{8, 10} {
		frame, err := src.Next(ctx)
		if err != nil {
			t.Fatalf("Next() #%d error = %v", i, err)
		}
		if got := frame.Image.Bounds().Dx(); got != want {
			t.Errorf("frame %d width = %d, want %d", i, got, want)
		}
	}

	if _, err := src.Next(ctx); !errors.Is(err, io.EOF) {
		t.Errorf("Next() at end of stream error = %v, want io.EOF", err)
	}
}

func TestMJPEGSource_RejectsNonMultipart(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write([]byte("x"))
	}))
	defer server.Close()

	src := NewMJPEGSource(server.URL, nil)
	defer src.Close()
	if _, err := src.Next(context.Background()); err == nil {
		t.Fatal("expected error for non-multipart stream")
	}
}

func TestNew(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		kind     string
		location string
		wantErr  bool
		wantName string
	}{
		{kind: "dir", location: dir, wantName: "dir"},
		{kind: "snapshot", location: "http://camera/snap.jpg", wantName: "snapshot"},
		{kind: "mjpeg", location: "http://camera/stream", wantName: "mjpeg"},
		{kind: "v4l2", location: "/dev/video0", wantErr: true},
		{kind: "dir", location: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			src, err := New(tt.kind, tt.location, nil)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if src.Name() != tt.wantName {
				t.Errorf("Name() = %q, want %q", src.Name(), tt.wantName)
			}
		})
	}
}
