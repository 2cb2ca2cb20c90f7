package field

import (
	"fmt"
	"image"
	"math"
	"time"

	"go.uber.org/zap"

	"liquidfield/core"
	"liquidfield/metrics"
)

// Options configures a Renderer
type Options struct {
	Trail   core.TrailOptions
	Params  core.FieldParams
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

// Renderer produces the liquid field one frame at a time. It owns the
// backend, the trail encoder, the uniform set and the camera of a single
// mount and is driven from the host thread only.
type Renderer struct {
	backend   Backend
	encoder   *core.TrailEncoder
	uniforms  *core.Uniforms
	camera    *Camera
	container Container
	drawable  Drawable

	width, height int
	sizeValid     bool

	initialized bool
	disposed    bool

	log     *zap.Logger
	metrics *metrics.Metrics
}

// NewRenderer creates a renderer around backend. Nothing is allocated on the
// backend until Initialize.
func NewRenderer(backend Backend, opts Options) *Renderer {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	enc := core.NewTrailEncoder(opts.Trail)
	return &Renderer{
		backend:  backend,
		encoder:  enc,
		uniforms: core.NewUniforms(opts.Params, enc.Texture()),
		camera:   NewCamera(1, 1),
		width:    1,
		height:   1,
		log:      log.Named("field"),
		metrics:  opts.Metrics,
	}
}

// Initialize sizes the renderer to the container, creates the backend
// resources and attaches the drawable to the container.
func (r *Renderer) Initialize(c Container) error {
	if r.disposed {
		return fmt.Errorf("field: initialize after dispose")
	}
	if r.initialized {
		return nil
	}

	bounds := c.Bounds()
	w, h, valid := core.ClampSize(bounds.Dx(), bounds.Dy())
	rect := image.Rect(bounds.Min.X, bounds.Min.Y, bounds.Min.X+w, bounds.Min.Y+h)

	d, err := r.backend.Init(rect, r.encoder.Options().TextureSize)
	if err != nil {
		r.backend.Release()
		return fmt.Errorf("field: init backend: %w", err)
	}

	r.container = c
	r.drawable = d
	r.initialized = true
	r.applySize(w, h, valid)
	c.Attach(d)

	r.log.Debug("render session initialized",
		zap.Int("width", w),
		zap.Int("height", h),
		zap.Int("trailSize", r.encoder.Options().TextureSize))
	return nil
}

// RenderFrame advances simulation time by dt seconds, refreshes the trail and
// draws one frame. Drawing is skipped while the last observed size was
// degenerate; time and trail still advance.
func (r *Renderer) RenderFrame(dt float64) error {
	if !r.initialized || r.disposed {
		return nil
	}
	start := time.Now()

	if dt > 0 && !math.IsInf(dt, 0) {
		r.uniforms.Time += float32(dt)
	}
	r.encoder.AdvanceFrame()

	if r.sizeValid {
		r.backend.Upload(r.encoder.Texture())
		err := r.backend.Draw(Frame{
			Uniforms:   r.uniforms,
			Projection: r.camera.Projection,
			View:       r.camera.View,
			Model:      r.camera.Model,

			Impulses:    r.encoder.Len(),
			MaxImpulses: r.encoder.Options().MaxAge,
			Delta:       dt,
		})
		if err != nil {
			return fmt.Errorf("field: draw: %w", err)
		}
	}

	r.metrics.FrameRendered(time.Since(start), r.encoder.Len())
	return nil
}

// Resize updates the viewport, the camera aspect ratio and the resolution
// uniform. Non-positive sizes clamp to 1x1 and suspend drawing until a valid
// size arrives.
func (r *Renderer) Resize(width, height int) {
	w, h, valid := core.ClampSize(width, height)
	r.applySize(w, h, valid)
}

func (r *Renderer) applySize(w, h int, valid bool) {
	r.width, r.height = w, h
	r.sizeValid = valid
	r.uniforms.Resolution = [2]float32{float32(w), float32(h)}
	r.camera.SetViewport(w, h)

	if r.initialized && !r.disposed {
		origin := r.container.Bounds().Min
		r.backend.SetViewport(image.Rect(origin.X, origin.Y, origin.X+w, origin.Y+h))
	}
}

// RecordPoint forwards a normalized pointer position to the trail
func (r *Renderer) RecordPoint(x, y float64) {
	r.encoder.RecordPoint(x, y)
}

// SetParams replaces the presentation parameters, effective next frame
func (r *Renderer) SetParams(p core.FieldParams) {
	r.uniforms.FieldParams = p
}

// Dispose releases the backend and detaches the drawable. It is safe to call
// before Initialize and more than once.
func (r *Renderer) Dispose() {
	if r.disposed {
		return
	}
	r.disposed = true
	if !r.initialized {
		return
	}

	r.backend.Release()
	if r.container != nil && r.drawable != nil {
		r.container.Detach(r.drawable)
	}
	r.drawable = nil
	r.container = nil
	r.log.Debug("render session disposed")
}

// Uniforms exposes the live uniform set
func (r *Renderer) Uniforms() *core.Uniforms {
	return r.uniforms
}

// Camera exposes the camera
func (r *Renderer) Camera() *Camera {
	return r.camera
}

// Encoder exposes the trail encoder
func (r *Renderer) Encoder() *core.TrailEncoder {
	return r.encoder
}

