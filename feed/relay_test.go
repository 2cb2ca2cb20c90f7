package feed

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"

	"liquidfield/host/headless"
)

func TestScalePoint(t *testing.T) {
	tests := []struct {
		name     string
		from, to image.Point
		x, y     float64
		wx, wy   float64
	}{
		{"same size", image.Pt(800, 600), image.Pt(800, 600), 10, 20, 10, 20},
		{"half size", image.Pt(1600, 1200), image.Pt(800, 600), 400, 300, 200, 150},
		{"unknown remote", image.Point{}, image.Pt(800, 600), 5, 6, 5, 6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x, y := ScalePoint(tt.x, tt.y, tt.from, tt.to)
			assert.Equal(t, tt.wx, x)
			assert.Equal(t, tt.wy, y)
		})
	}
}

func TestRelayPostsScaledPointer(t *testing.T) {
	h := headless.New(400, 300, image.Rect(0, 0, 400, 300))
	var got [][2]float64
	remove := h.OnPointer(func(x, y float64) { got = append(got, [2]float64{x, y}) })
	defer remove()

	r := NewRelay(h)
	r.Resized(800, 600)
	r.PointerMoved(400, 300)

	assert.Empty(t, got, "events are delivered on the host thread only")
	assert.Equal(t, 1, h.Drain())
	assert.Equal(t, [][2]float64{{200, 150}}, got)
}

func TestRelayDropsOverflowingPointer(t *testing.T) {
	h := headless.New(1920, 1080, image.Rect(0, 0, 1920, 1080))
	moved := 0
	remove := h.OnPointer(func(x, y float64) { moved++ })
	defer remove()

	r := NewRelay(h)
	r.Resized(1, 1)
	r.PointerMoved(1e308, 300)

	assert.Equal(t, 1, h.Drain())
	assert.Zero(t, moved)
}
