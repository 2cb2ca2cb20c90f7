package core

import "math"

// Vec2 is a 2D vector in normalized space
type Vec2 struct {
	X, Y float64
}

func (v Vec2) Add(other Vec2) Vec2 {
	return Vec2{v.X + other.X, v.Y + other.Y}
}

func (v Vec2) Sub(other Vec2) Vec2 {
	return Vec2{v.X - other.X, v.Y - other.Y}
}

func (v Vec2) Scale(s float64) Vec2 {
	return Vec2{v.X * s, v.Y * s}
}

func (v Vec2) LengthSq() float64 {
	return v.X*v.X + v.Y*v.Y
}

func (v Vec2) Length() float64 {
	return math.Sqrt(v.LengthSq())
}

// Finite reports whether both components are neither NaN nor infinite
func (v Vec2) Finite() bool {
	return !math.IsNaN(v.X) && !math.IsInf(v.X, 0) && !math.IsNaN(v.Y) && !math.IsInf(v.Y, 0)
}

// Impulse is a single pointer-movement sample living on the trail
type Impulse struct {
	Position  Vec2
	Direction Vec2    // unit vector from the previous sample
	Force     float64 // in [0, ForceCap]
	Age       int     // frames since creation
}

// RGB is a linear color triple in [0,1]
type RGB [3]float32

// Valid reports whether every channel is inside [0,1]
func (c RGB) Valid() bool {
	for _, v := range c {
		if v < 0 || v > 1 || math.IsNaN(float64(v)) {
			return false
		}
	}
	return true
}
