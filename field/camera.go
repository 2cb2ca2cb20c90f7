package field

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"liquidfield/core"
)

const (
	cameraFOV      = 45.0 // degrees
	cameraNear     = 0.1
	cameraFar      = 1000.0
	cameraDistance = 50.0
)

// Camera is a perspective camera looking at a unit quad on the z=0 plane.
// The quad is scaled so that it exactly covers the frustum, which keeps the
// quad UVs aligned with the viewport at any aspect ratio.
type Camera struct {
	Aspect     float32
	Projection mgl32.Mat4
	View       mgl32.Mat4
	Model      mgl32.Mat4
}

// NewCamera creates a camera for the given viewport size
func NewCamera(width, height int) *Camera {
	c := &Camera{
		View: mgl32.LookAtV(
			mgl32.Vec3{0, 0, cameraDistance},
			mgl32.Vec3{0, 0, 0},
			mgl32.Vec3{0, 1, 0},
		),
	}
	c.SetViewport(width, height)
	return c
}

// SetViewport updates the aspect ratio and the derived matrices
func (c *Camera) SetViewport(width, height int) {
	c.Aspect = core.AspectRatio(width, height)
	c.Projection = mgl32.Perspective(mgl32.DegToRad(cameraFOV), c.Aspect, cameraNear, cameraFar)

	visibleHeight := float32(2 * cameraDistance * math.Tan(float64(mgl32.DegToRad(cameraFOV))/2))
	c.Model = mgl32.Scale3D(visibleHeight*c.Aspect, visibleHeight, 1)
}
