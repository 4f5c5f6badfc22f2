// Package surface holds the in-memory drawing surfaces frames are rendered onto,
// and the Document that owns them.
package surface

import (
	"image"
	"image/draw"
	"sync"
)

// Surface is a resizable RGBA raster addressed by an id.
type Surface struct {
	id string

	mu      sync.RWMutex
	img     *image.RGBA
	draws   uint64
	lastSeq uint64
	seen    bool
}

// New creates an empty 0x0 surface.
func New(id string) *Surface {
	return &Surface{
		id:  id,
		img: image.NewRGBA(image.Rect(0, 0, 0, 0)),
	}
}

func (s *Surface) ID() string { return s.id }

// Size returns the current width and height.
func (s *Surface) Size() (int, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b := s.img.Bounds()
	return b.Dx(), b.Dy()
}

// Draws returns how many frames have been drawn so far.
func (s *Surface) Draws() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.draws
}

// Resize sets the surface dimensions. Like a canvas, any resize clears the pixels.
func (s *Surface) Resize(width, height int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resizeLocked(width, height)
}

func (s *Surface) resizeLocked(width, height int) {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	s.img = image.NewRGBA(image.Rect(0, 0, width, height))
}

// Draw resizes the surface to the image's intrinsic size and copies it at the origin.
func (s *Surface) Draw(img image.Image) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drawLocked(img)
}

// DrawSeq draws img tagged with the frame sequence it came from. When dropStale is
// set, an image older than the last drawn one is discarded and false is returned.
func (s *Surface) DrawSeq(seq uint64, img image.Image, dropStale bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if dropStale && s.seen && seq < s.lastSeq {
		return false
	}
	if !s.seen || seq > s.lastSeq {
		s.lastSeq = seq
	}
	s.seen = true
	s.drawLocked(img)
	return true
}

func (s *Surface) drawLocked(img image.Image) {
	b := img.Bounds()
	s.resizeLocked(b.Dx(), b.Dy())
	draw.Draw(s.img, s.img.Bounds(), img, b.Min, draw.Src)
	s.draws++
}

// Snapshot returns a copy of the current pixel buffer.
func (s *Surface) Snapshot() *image.RGBA {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := image.NewRGBA(s.img.Bounds())
	copy(out.Pix, s.img.Pix)
	return out
}
