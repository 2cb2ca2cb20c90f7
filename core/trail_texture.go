package core

import (
	"image"
	"image/color"
	"math"

	"github.com/gogpu/gg"
)

// TrailTexture is the square RGBA8 raster produced by a TrailEncoder. Row 0
// is the top of the raster. Version increases after every redraw so that a
// backend can tell when the pixels must be uploaded again.
type TrailTexture struct {
	pixmap  *gg.Pixmap
	size    int
	version uint64
}

func newTrailTexture(size int) *TrailTexture {
	t := &TrailTexture{
		pixmap: gg.NewPixmap(size, size),
		size:   size,
	}
	t.clear()
	return t
}

// Size returns the side length in texels
func (t *TrailTexture) Size() int {
	return t.size
}

// Pix returns the raw RGBA8 pixels, 4 bytes per texel, row-major
func (t *TrailTexture) Pix() []uint8 {
	return t.pixmap.Data()
}

// Version returns the redraw counter
func (t *TrailTexture) Version() uint64 {
	return t.version
}

// At returns the texel at (x, y), transparent outside the raster
func (t *TrailTexture) At(x, y int) color.RGBA {
	if x < 0 || y < 0 || x >= t.size || y >= t.size {
		return color.RGBA{}
	}
	i := (y*t.size + x) * 4
	d := t.pixmap.Data()
	return color.RGBA{R: d[i], G: d[i+1], B: d[i+2], A: d[i+3]}
}

// Sample reads the raster at normalized texture coordinates with v pointing
// up, clamping to the edge like a GL sampler with CLAMP_TO_EDGE.
func (t *TrailTexture) Sample(u, v float64) [4]float64 {
	x := int(math.Floor(u * float64(t.size)))
	y := int(math.Floor((1 - v) * float64(t.size)))
	x = clampInt(x, 0, t.size-1)
	y = clampInt(y, 0, t.size-1)
	c := t.At(x, y)
	return [4]float64{
		float64(c.R) / 255,
		float64(c.G) / 255,
		float64(c.B) / 255,
		float64(c.A) / 255,
	}
}

// Image returns a copy of the raster as an image.RGBA
func (t *TrailTexture) Image() *image.RGBA {
	return t.pixmap.ToImage()
}

func (t *TrailTexture) clear() {
	t.pixmap.Clear(gg.Black)
}

func (t *TrailTexture) markDirty() {
	t.version++
}

// drawBlob composites a soft disc centered at (cx, cy) in texel space. The
// falloff reaches half opacity at radius and zero at twice the radius, which
// approximates a disc of the given radius blurred by the same amount.
func (t *TrailTexture) drawBlob(cx, cy, radius float64, rgba [4]float64) {
	if rgba[3] <= 0 || radius <= 0 {
		return
	}

	reach := radius * 2
	s := float64(t.size)
	if cx+reach <= 0 || cy+reach <= 0 || cx-reach >= s || cy-reach >= s {
		return
	}
	solid := gg.RGBA2(rgba[0], rgba[1], rgba[2], rgba[3])
	half := gg.RGBA2(rgba[0], rgba[1], rgba[2], rgba[3]*0.5)
	transparent := gg.RGBA2(rgba[0], rgba[1], rgba[2], 0)
	brush := gg.NewRadialGradientBrush(cx, cy, 0, reach).
		AddColorStop(0, solid).
		AddColorStop(0.5, half).
		AddColorStop(1, transparent)

	x0 := clampInt(int(math.Floor(cx-reach)), 0, t.size)
	x1 := clampInt(int(math.Ceil(cx+reach)), 0, t.size)
	y0 := clampInt(int(math.Floor(cy-reach)), 0, t.size)
	y1 := clampInt(int(math.Ceil(cy+reach)), 0, t.size)

	data := t.pixmap.Data()
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			src := brush.ColorAt(float64(x)+0.5, float64(y)+0.5)
			if src.A <= 0 {
				continue
			}
			blendOver(data[(y*t.size+x)*4:], src)
		}
	}
}

// blendOver composites a straight-alpha source over the texel at dst[0:4]
func blendOver(dst []uint8, src gg.RGBA) {
	a := clamp01(src.A)
	inv := 1 - a
	dst[0] = toByte(clamp01(src.R)*a + float64(dst[0])/255*inv)
	dst[1] = toByte(clamp01(src.G)*a + float64(dst[1])/255*inv)
	dst[2] = toByte(clamp01(src.B)*a + float64(dst[2])/255*inv)
	dst[3] = toByte(a + float64(dst[3])/255*inv)
}

func toByte(v float64) uint8 {
	return uint8(math.Round(clamp01(v) * 255))
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
