// Package snapshot periodically captures every surface as a JPEG and hands it to a sink.
package snapshot

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"time"

	"github.com/andresmejia3/framewall/internal/logging"
	"github.com/andresmejia3/framewall/internal/surface"
)

var log = logging.MustGetLogger("snapshot")

// Sink stores one encoded snapshot under key.
type Sink interface {
	Put(ctx context.Context, key string, data []byte) error
}

// DirSink writes snapshots below a local directory.
type DirSink struct {
	Dir string
}

func (d DirSink) Put(ctx context.Context, key string, data []byte) error {
	path := filepath.Join(d.Dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	// Write then rename so readers never see a half-written file
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// EncodeJPEG encodes img at the given quality (1-100).
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Snapshotter copies every non-empty surface of a document to a sink.
type Snapshotter struct {
	Doc     *surface.Document
	Sink    Sink
	Quality int
	// Stamped keys each snapshot by time ("<id>/<unix-ms>.jpg") instead of
	// overwriting "<id>.jpg".
	Stamped bool

	now func() time.Time
}

// Once takes one snapshot of every surface and returns how many were stored.
func (s *Snapshotter) Once(ctx context.Context) (int, error) {
	quality := s.Quality
	if quality <= 0 {
		quality = 85
	}
	now := time.Now
	if s.now != nil {
		now = s.now
	}

	stored := 0
	for _, id := range s.Doc.IDs() {
		surf, ok := s.Doc.Lookup(id)
		if !ok {
			continue
		}
		img := surf.Snapshot()
		if img.Bounds().Empty() {
			continue
		}

		data, err := EncodeJPEG(img, quality)
		if err != nil {
			return stored, fmt.Errorf("encode %s: %w", id, err)
		}

		key := id + ".jpg"
		if s.Stamped {
			key = fmt.Sprintf("%s/%d.jpg", id, now().UnixMilli())
		}
		if err := s.Sink.Put(ctx, key, data); err != nil {
			return stored, fmt.Errorf("store %s: %w", key, err)
		}
		stored++
	}
	return stored, nil
}

// Run snapshots on every tick until ctx is done. Failures are logged and retried on the next tick.
func (s *Snapshotter) Run(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.Once(ctx)
			if err != nil {
				log.Warningf("snapshot failed after %d surfaces: %v", n, err)
				continue
			}
			log.Debugf("stored %d surface snapshots", n)
		}
	}
}
