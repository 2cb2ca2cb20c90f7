package software

import (
	"errors"
	"image"
	"image/color"
	"runtime"
	"sync"

	"github.com/go-gl/mathgl/mgl64"

	"liquidfield/core"
	"liquidfield/field"
)

var errReleased = errors.New("software: backend released")

// Backend is a field.Backend that shades every pixel on the CPU into an
// image.RGBA. Rows are split into bands shaded concurrently.
type Backend struct {
	// Workers bounds the number of concurrent bands; zero means GOMAXPROCS
	Workers int

	mu       sync.Mutex
	layer    *Layer
	rect     image.Rectangle
	released bool
}

// NewBackend creates a CPU backend
func NewBackend() *Backend {
	return &Backend{}
}

// Layer is the drawable produced by the software backend. Hosts read the last
// finished frame from it.
type Layer struct {
	mu    sync.Mutex
	rect  image.Rectangle
	front *image.RGBA
}

func (l *Layer) Bounds() image.Rectangle {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rect
}

// Frame returns the last finished frame, nil before the first draw. The image
// is owned by the layer and replaced, never mutated, after it is returned.
func (l *Layer) Frame() *image.RGBA {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.front
}

func (l *Layer) swap(rect image.Rectangle, img *image.RGBA) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rect = rect
	l.front = img
}

func (b *Backend) Init(rect image.Rectangle, trailSize int) (field.Drawable, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.released {
		return nil, errReleased
	}
	b.rect = rect
	b.layer = &Layer{rect: rect}
	return b.layer, nil
}

func (b *Backend) SetViewport(rect image.Rectangle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rect = rect
	if b.layer != nil {
		b.layer.mu.Lock()
		b.layer.rect = rect
		b.layer.mu.Unlock()
	}
}

// Upload is a no-op. Draw samples the trail texture in place.
func (b *Backend) Upload(tex *core.TrailTexture) {}

func (b *Backend) Draw(f field.Frame) error {
	b.mu.Lock()
	if b.released || b.layer == nil {
		b.mu.Unlock()
		return errReleased
	}
	layer := b.layer
	rect := b.rect
	workers := b.Workers
	b.mu.Unlock()

	w, h := rect.Dx(), rect.Dy()
	if w <= 0 || h <= 0 {
		return nil
	}
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	Render(img, f.Uniforms, workers)

	layer.swap(rect, img)
	return nil
}

func (b *Backend) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.released = true
	b.layer = nil
}

// Render shades every pixel of dst. Image row 0 is the top of the field.
func Render(dst *image.RGBA, u *core.Uniforms, workers int) {
	bounds := dst.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= 0 || h <= 0 {
		return
	}
	if workers < 1 {
		workers = 1
	}
	band := (h + workers - 1) / workers

	// At most workers bands
	var wg sync.WaitGroup
	for y0 := 0; y0 < h; y0 += band {
		y1 := min(y0+band, h)
		wg.Go(func() {
			for y := y0; y < y1; y++ {
				v := 1 - (float64(y)+0.5)/float64(h)
				for x := 0; x < w; x++ {
					uv := mgl64.Vec2{(float64(x) + 0.5) / float64(w), v}
					dst.SetRGBA(bounds.Min.X+x, bounds.Min.Y+y, toRGBA(Shade(u, uv)))
				}
			}
		})
	}
	wg.Wait()
}

func toRGBA(c mgl64.Vec3) color.RGBA {
	return color.RGBA{
		R: uint8(clamp(c[0], 0, 1)*255 + 0.5),
		G: uint8(clamp(c[1], 0, 1)*255 + 0.5),
		B: uint8(clamp(c[2], 0, 1)*255 + 0.5),
		A: 255,
	}
}
