// Package field owns the render session of one liquid background: the
// backend graphics context, the camera, the full-screen quad and the shader
// uniforms, driven one frame at a time.
package field

import (
	"errors"
	"image"

	"github.com/go-gl/mathgl/mgl32"

	"liquidfield/core"
)

// ErrBackendUnavailable is returned when no capable graphics context can be
// obtained. Callers fall back to a flat background.
var ErrBackendUnavailable = errors.New("field: rendering backend unavailable")

// Drawable is the surface a backend contributes to its container
type Drawable interface {
	Bounds() image.Rectangle
}

// Container is the host element the renderer is mounted into
type Container interface {
	// Bounds is the container rectangle in client-space pixels
	Bounds() image.Rectangle
	Attach(d Drawable)
	Detach(d Drawable)
}

// Frame carries everything a backend needs to draw one frame
type Frame struct {
	Uniforms   *core.Uniforms
	Projection mgl32.Mat4
	View       mgl32.Mat4
	Model      mgl32.Mat4

	// Trail load and time step, for debug views
	Impulses    int
	MaxImpulses int
	Delta       float64
}

// Backend is one implementation of the field shader. All methods are called
// from the host thread.
type Backend interface {
	// Init creates the context, quad geometry, program and trail texture for
	// a surface of the given client-space rectangle.
	Init(rect image.Rectangle, trailSize int) (Drawable, error)
	// SetViewport moves or resizes the drawable
	SetViewport(rect image.Rectangle)
	// Upload copies the trail raster to the GPU if its version changed
	Upload(tex *core.TrailTexture)
	// Draw renders one frame
	Draw(f Frame) error
	// Release frees every resource created by Init. Safe to call twice.
	Release()
}
