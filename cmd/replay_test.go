package cmd

import (
	"bytes"
	"context"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/andresmejia3/framewall/internal/transport"
	"github.com/andresmejia3/framewall/internal/types"
)

func TestValidateReplayFlags(t *testing.T) {
	// Create a temp file for valid input
	tmpFile, err := os.CreateTemp("", "stream.mjpeg")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(tmpFile.Name())
	tmpFile.Close()

	// Create a temp dir for invalid input
	tmpDir, err := os.MkdirTemp("", "testdir")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(tmpDir)

	tests := []struct {
		name    string
		opts    ReplayOptions
		wantErr bool
	}{
		{"Valid input", ReplayOptions{InputPath: tmpFile.Name(), Surface: "videoCanvas"}, false},
		{"Missing input", ReplayOptions{InputPath: "/non/existent/stream.mjpeg", Surface: "videoCanvas"}, true},
		{"Directory input", ReplayOptions{InputPath: tmpDir, Surface: "videoCanvas"}, true},
		{"Empty surface", ReplayOptions{InputPath: tmpFile.Name()}, true},
		{"Negative fps", ReplayOptions{InputPath: tmpFile.Name(), Surface: "videoCanvas", FPS: -1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := tt.opts
			err := validateReplayFlags(&opts)
			if (err != nil) != tt.wantErr {
				t.Fatalf("validateReplayFlags() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && !strings.HasPrefix(opts.Output, "replay-") {
				t.Errorf("expected a default replay-<id>.jpg output, got %s", opts.Output)
			}
		})
	}
}

func TestIsJPEGStream(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		content []byte
		want    bool
	}{
		{"JPEG stream", encodeFrame(t, 4, 4, color.RGBA{A: 255}), true},
		{"Video container", []byte{0x00, 0x00, 0x00, 0x20, 'f', 't', 'y', 'p'}, false},
		{"Empty file", nil, false},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, string(rune('a'+i)))
			if err := os.WriteFile(path, tt.content, 0644); err != nil {
				t.Fatal(err)
			}
			got, err := isJPEGStream(path)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("isJPEGStream() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRunReplayMJPEG(t *testing.T) {
	// Three frames of the same size, one garbage segment between them
	var stream bytes.Buffer
	stream.Write(encodeFrame(t, 32, 24, color.RGBA{R: 255, A: 255}))
	stream.Write(encodeFrame(t, 32, 24, color.RGBA{G: 255, A: 255}))
	stream.Write([]byte{0xFF, 0xD8, 0x00, 0x01, 0xFF, 0xD9})
	stream.Write(encodeFrame(t, 32, 24, color.RGBA{B: 255, A: 255}))

	dir := t.TempDir()
	input := filepath.Join(dir, "cam.mjpeg")
	if err := os.WriteFile(input, stream.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}

	out := filepath.Join(dir, "final.jpg")
	opts := ReplayOptions{InputPath: input, Surface: "videoCanvas", Output: out, DropStale: true}
	if err := runReplay(context.Background(), opts); err != nil {
		t.Fatalf("runReplay failed: %v", err)
	}
	if w, h := jpegSize(t, out); w != 32 || h != 24 {
		t.Errorf("replay output is %dx%d, want 32x24", w, h)
	}
}

type countingSource struct {
	n int
}

func (c *countingSource) Next() (types.Frame, error) {
	c.n++
	return types.Frame{Seq: uint64(c.n)}, nil
}

func (c *countingSource) Close() error { return nil }

func TestPacedSource(t *testing.T) {
	var src transport.Source = &pacedSource{Source: &countingSource{}, interval: 20 * time.Millisecond}

	start := time.Now()
	for i := 0; i < 3; i++ {
		if _, err := src.Next(); err != nil {
			t.Fatal(err)
		}
	}
	// The first frame is immediate, the next two wait one interval each
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Errorf("three paced frames took %s, want at least 40ms", elapsed)
	}
}
