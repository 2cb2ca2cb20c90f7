package core

import (
	"image"
	"math"
)

// Client-space coordinates are pixels with the origin at the top-left corner
// of the host window, y pointing down. Normalized coordinates live in the unit
// square with the origin at the bottom-left corner, y pointing up. The trail
// raster uses texel coordinates with y pointing down again.

// NormalizePoint maps a client-space position into the unit square of area.
// The result is not clamped: pointer motion over sibling content outside the
// area maps outside [0,1] and is still a valid impulse source.
// ok is false when area is empty or the result is not finite.
func NormalizePoint(clientX, clientY float64, area image.Rectangle) (x, y float64, ok bool) {
	w := float64(area.Dx())
	h := float64(area.Dy())
	if w <= 0 || h <= 0 {
		return 0, 0, false
	}

	x = (clientX - float64(area.Min.X)) / w
	y = 1 - (clientY-float64(area.Min.Y))/h
	if !(Vec2{x, y}).Finite() {
		return 0, 0, false
	}
	return x, y, true
}

// ToTexel converts a normalized position into texel space of a square raster
// with the given side length. The vertical axis is flipped.
func ToTexel(p Vec2, size int) (tx, ty float64) {
	s := float64(size)
	return p.X * s, (1 - p.Y) * s
}

// ClampSize returns width and height clamped to a minimum of 1, and whether the
// original size was drawable.
func ClampSize(width, height int) (w, h int, valid bool) {
	valid = width > 0 && height > 0
	w, h = width, height
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return w, h, valid
}

// AspectRatio returns width/height for a size already clamped with ClampSize.
// Degenerate inputs give 1.
func AspectRatio(width, height int) float32 {
	if width <= 0 || height <= 0 {
		return 1
	}
	a := float64(width) / float64(height)
	if math.IsNaN(a) || math.IsInf(a, 0) {
		return 1
	}
	return float32(a)
}
