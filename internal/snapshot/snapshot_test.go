package snapshot

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/andresmejia3/framewall/internal/surface"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

func filled(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{R: 255, A: 255})
		}
	}
	return img
}

type memSink struct {
	mu   sync.Mutex
	puts map[string][]byte
	err  error
}

func (m *memSink) Put(ctx context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if m.puts == nil {
		m.puts = map[string][]byte{}
	}
	m.puts[key] = data
	return nil
}

func TestOnceSkipsEmptySurfaces(t *testing.T) {
	doc := surface.NewDocument()
	video, _ := doc.Create("videoCanvas")
	doc.Create("faceCanvas") // never drawn
	video.Draw(filled(30, 20))

	sink := &memSink{}
	s := &Snapshotter{Doc: doc, Sink: sink}
	n, err := s.Once(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("Expected 1 snapshot, got %d", n)
	}

	data, ok := sink.puts["videoCanvas.jpg"]
	if !ok {
		t.Fatalf("Expected key videoCanvas.jpg, got %v", sink.puts)
	}
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Snapshot is not a JPEG: %v", err)
	}
	if cfg.Width != 30 || cfg.Height != 20 {
		t.Errorf("Expected 30x20 snapshot, got %dx%d", cfg.Width, cfg.Height)
	}
}

func TestOnceStampedKeys(t *testing.T) {
	doc := surface.NewDocument()
	s1, _ := doc.Create("poseCanvas")
	s1.Draw(filled(2, 2))

	sink := &memSink{}
	s := &Snapshotter{
		Doc:     doc,
		Sink:    sink,
		Stamped: true,
		now:     func() time.Time { return time.UnixMilli(1700000000123) },
	}
	if _, err := s.Once(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, ok := sink.puts["poseCanvas/1700000000123.jpg"]; !ok {
		t.Errorf("Expected stamped key, got %v", sink.puts)
	}
}

func TestOnceSinkError(t *testing.T) {
	doc := surface.NewDocument()
	s1, _ := doc.Create("poseCanvas")
	s1.Draw(filled(2, 2))

	s := &Snapshotter{Doc: doc, Sink: &memSink{err: errors.New("disk full")}}
	if _, err := s.Once(context.Background()); err == nil {
		t.Error("Expected sink error to propagate")
	}
}

func TestDirSink(t *testing.T) {
	dir := t.TempDir()
	sink := DirSink{Dir: dir}

	if err := sink.Put(context.Background(), "objectCanvas/1.jpg", []byte{0xFF, 0xD8}); err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(filepath.Join(dir, "objectCanvas", "1.jpg"))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, []byte{0xFF, 0xD8}) {
		t.Errorf("Unexpected file content %X", got)
	}
	if _, err := os.Stat(filepath.Join(dir, "objectCanvas", "1.jpg.tmp")); !os.IsNotExist(err) {
		t.Error("Temporary file was left behind")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	doc := surface.NewDocument()
	s1, _ := doc.Create("videoCanvas")
	s1.Draw(filled(2, 2))

	sink := &memSink{}
	s := &Snapshotter{Doc: doc, Sink: sink}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx, 10*time.Millisecond)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		sink.mu.Lock()
		n := len(sink.puts)
		sink.mu.Unlock()
		if n > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
	if len(sink.puts) == 0 {
		t.Error("Expected at least one snapshot before cancel")
	}
}

type fakePutter struct {
	input *s3.PutObjectInput
	body  []byte
}

func (f *fakePutter) PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.input = in
	f.body, _ = io.ReadAll(in.Body)
	return &s3.PutObjectOutput{}, nil
}

func TestS3Sink(t *testing.T) {
	p := &fakePutter{}
	sink := NewS3Sink(p, "frames", "wall/")

	if err := sink.Put(context.Background(), "faceCanvas.jpg", []byte{1, 2, 3}); err != nil {
		t.Fatal(err)
	}
	if *p.input.Bucket != "frames" || *p.input.Key != "wall/faceCanvas.jpg" {
		t.Errorf("Unexpected bucket/key %s/%s", *p.input.Bucket, *p.input.Key)
	}
	if *p.input.ContentType != "image/jpeg" {
		t.Errorf("Unexpected content type %s", *p.input.ContentType)
	}
	if !bytes.Equal(p.body, []byte{1, 2, 3}) {
		t.Errorf("Unexpected body %v", p.body)
	}
}

func TestNewS3Client(t *testing.T) {
	c := NewS3Client("eu-west-1", "http://localhost:9000")
	if c == nil {
		t.Fatal("Expected a client")
	}
	o := c.Options()
	if o.Region != "eu-west-1" || !o.UsePathStyle || o.BaseEndpoint == nil || *o.BaseEndpoint != "http://localhost:9000" {
		t.Errorf("Unexpected client options: region %s path-style %v", o.Region, o.UsePathStyle)
	}
}
