package core

import "math"

const (
	DefaultTextureSize = 128
	DefaultMaxAge      = 64
	DefaultRadiusRatio = 0.15 // radius as a fraction of the texture size
	DefaultForceScale  = 20000.0
	DefaultForceCap    = 2.0

	// Impulses ease in over this fraction of their lifespan, then fade linearly
	easeInFraction = 0.3
	// Peak opacity of a rasterized impulse
	blobAlpha = 0.3
)

// TrailOptions configures a TrailEncoder. Zero fields take the defaults.
type TrailOptions struct {
	TextureSize int     // side of the square raster in texels
	MaxAge      int     // frames an impulse stays visible
	Radius      float64 // footprint radius in texels
	ForceScale  float64 // multiplier applied to the squared step length
	ForceCap    float64 // upper bound of an impulse force
}

// DefaultTrailOptions returns the reference trail configuration
func DefaultTrailOptions() TrailOptions {
	return TrailOptions{}.withDefaults()
}

func (o TrailOptions) withDefaults() TrailOptions {
	if o.TextureSize <= 0 {
		o.TextureSize = DefaultTextureSize
	}
	if o.MaxAge <= 0 {
		o.MaxAge = DefaultMaxAge
	}
	if o.Radius <= 0 {
		o.Radius = DefaultRadiusRatio * float64(o.TextureSize)
	}
	if o.ForceScale <= 0 {
		o.ForceScale = DefaultForceScale
	}
	if o.ForceCap <= 0 {
		o.ForceCap = DefaultForceCap
	}
	return o
}

// TrailEncoder turns a stream of normalized pointer positions into a square
// raster whose texels encode local motion direction (red, green) and
// intensity (blue). It is not safe for concurrent use; the owner drives it
// from a single thread.
type TrailEncoder struct {
	opts    TrailOptions
	trail   []Impulse
	last    Vec2
	hasLast bool
	texture *TrailTexture
}

// NewTrailEncoder creates an encoder with a cleared raster
func NewTrailEncoder(opts TrailOptions) *TrailEncoder {
	opts = opts.withDefaults()
	return &TrailEncoder{
		opts:    opts,
		trail:   make([]Impulse, 0, opts.MaxAge),
		texture: newTrailTexture(opts.TextureSize),
	}
}

// Options returns the effective options after defaults were applied
func (e *TrailEncoder) Options() TrailOptions {
	return e.opts
}

// RecordPoint registers a new normalized pointer position. The first position
// only primes the encoder; a repeat of the previous position is ignored.
// Non-finite positions are dropped. A step too long to square in float64
// moves the previous position without adding an impulse.
func (e *TrailEncoder) RecordPoint(x, y float64) {
	p := Vec2{x, y}
	if !p.Finite() {
		return
	}
	if !e.hasLast {
		e.last = p
		e.hasLast = true
		return
	}

	delta := p.Sub(e.last)
	dd := delta.LengthSq()
	if dd == 0 {
		return
	}
	e.last = p
	if math.IsInf(dd, 0) || math.IsNaN(dd) {
		return
	}

	d := math.Sqrt(dd)
	e.trail = append(e.trail, Impulse{
		Position:  p,
		Direction: Vec2{delta.X / d, delta.Y / d},
		Force:     math.Min(dd*e.opts.ForceScale, e.opts.ForceCap),
	})
}

// AdvanceFrame ages every impulse by one frame, drops expired ones and
// redraws the raster from scratch. An impulse reaching MaxAge has a zero
// envelope and is dropped in the same frame.
func (e *TrailEncoder) AdvanceFrame() {
	e.texture.clear()

	maxAge := float64(e.opts.MaxAge)
	speed := 1 / maxAge

	// Back to front so removal does not disturb the walk
	for i := len(e.trail) - 1; i >= 0; i-- {
		p := &e.trail[i]

		f := p.Force * speed * (1 - float64(p.Age)/maxAge)
		p.Position = p.Position.Add(p.Direction.Scale(f))
		p.Age++

		if p.Age >= e.opts.MaxAge {
			e.trail = append(e.trail[:i], e.trail[i+1:]...)
			continue
		}

		intensity := e.intensity(p.Age) * p.Force
		tx, ty := ToTexel(p.Position, e.opts.TextureSize)
		e.texture.drawBlob(tx, ty, e.opts.Radius, blobColor(p.Direction, intensity))
	}

	e.texture.markDirty()
}

// intensity is the envelope of an impulse at the given age, before force
func (e *TrailEncoder) intensity(age int) float64 {
	return Envelope(age, e.opts.MaxAge)
}

// Envelope is the brightness of an impulse at age frames out of maxAge: a
// sine ease-in over the first 30% of its life, then a linear fade to zero.
func Envelope(age, maxAge int) float64 {
	if maxAge <= 0 || age >= maxAge {
		return 0
	}
	m := float64(maxAge)
	ramp := m * easeInFraction
	a := float64(age)
	if a < ramp {
		return math.Sin(a / ramp * (math.Pi / 2))
	}
	return 1 - a/m
}

// Texture returns the raster consumed by the shader
func (e *TrailEncoder) Texture() *TrailTexture {
	return e.texture
}

// Impulses returns a copy of the live trail in insertion order
func (e *TrailEncoder) Impulses() []Impulse {
	out := make([]Impulse, len(e.trail))
	copy(out, e.trail)
	return out
}

// Len returns the number of live impulses
func (e *TrailEncoder) Len() int {
	return len(e.trail)
}

// Reset forgets the trail and the previous pointer position
func (e *TrailEncoder) Reset() {
	e.trail = e.trail[:0]
	e.hasLast = false
	e.texture.clear()
	e.texture.markDirty()
}

func blobColor(dir Vec2, intensity float64) [4]float64 {
	return [4]float64{
		clamp01((dir.X + 1) / 2),
		clamp01((dir.Y + 1) / 2),
		clamp01(intensity),
		clamp01(blobAlpha * intensity),
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
