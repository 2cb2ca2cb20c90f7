// Package overlay draws debug views on top of the field.
package overlay

import (
	"fmt"
	"image"

	"github.com/go-gl/gl/v4.1-core/gl"

	"liquidfield/rendering/opengl/shaders"
)

// Quad in pixel space with a top-left origin. The trail raster is uploaded
// top row first and texCoord is passed through unflipped; negating the NDC y
// puts row 0 at the top of the preview.
const trailOverlayVertexShader = `#version 410 core

const vec2 positions[4] = vec2[](
    vec2(0.0, 0.0),
    vec2(1.0, 0.0),
    vec2(0.0, 1.0),
    vec2(1.0, 1.0)
);

uniform vec2 offset;
uniform vec2 size;
uniform vec2 screenSize;

out vec2 texCoord;

void main() {
    vec2 pos = positions[gl_VertexID];
    texCoord = pos;
    vec2 pixelPos = offset + pos * size;
    vec2 ndcPos = (pixelPos / screenSize) * 2.0 - 1.0;
    ndcPos.y = -ndcPos.y;
    gl_Position = vec4(ndcPos, 0.0, 1.0);
}
`

const trailOverlayFragmentShader = `#version 410 core

uniform sampler2D trail;
uniform vec4 border;
uniform vec2 size;

in vec2 texCoord;
out vec4 outColor;

void main() {
    vec2 px = texCoord * size;
    if (px.x < 1.0 || px.y < 1.0 || px.x > size.x - 1.0 || px.y > size.y - 1.0) {
        outColor = border;
        return;
    }
    outColor = vec4(texture(trail, texCoord).rgb, 0.85);
}
`

// Margin between the overlay and the viewport corner, in pixels
const Margin = 8

// TrailOverlay shows the raw trail texture in the top-left corner of the
// viewport.
type TrailOverlay struct {
	program uint32
	vao     uint32

	offsetLoc     int32
	sizeLoc       int32
	screenSizeLoc int32
	trailLoc      int32
	borderLoc     int32
}

// NewTrailOverlay compiles the overlay program. A GL context must be current.
func NewTrailOverlay() (*TrailOverlay, error) {
	program, err := shaders.CompileProgram(trailOverlayVertexShader, trailOverlayFragmentShader)
	if err != nil {
		return nil, fmt.Errorf("trail overlay: %w", err)
	}

	o := &TrailOverlay{program: program}
	// Empty VAO, vertices come from gl_VertexID
	gl.GenVertexArrays(1, &o.vao)

	o.offsetLoc = gl.GetUniformLocation(program, gl.Str("offset\x00"))
	o.sizeLoc = gl.GetUniformLocation(program, gl.Str("size\x00"))
	o.screenSizeLoc = gl.GetUniformLocation(program, gl.Str("screenSize\x00"))
	o.trailLoc = gl.GetUniformLocation(program, gl.Str("trail\x00"))
	o.borderLoc = gl.GetUniformLocation(program, gl.Str("border\x00"))
	return o, nil
}

// Placement returns the overlay square for a viewport of the given size in
// local pixel coordinates, empty when the viewport is too small to hold it.
func Placement(viewportWidth, viewportHeight int) image.Rectangle {
	side := min(viewportWidth, viewportHeight) / 4
	if side < 16 {
		return image.Rectangle{}
	}
	return image.Rect(Margin, Margin, Margin+side, Margin+side)
}

// Draw blends the overlay over the current viewport. texture is the trail
// texture name bound on unit 0.
func (o *TrailOverlay) Draw(texture uint32, viewportWidth, viewportHeight int) {
	place := Placement(viewportWidth, viewportHeight)
	if place.Empty() {
		return
	}

	gl.Enable(gl.BLEND)
	gl.BlendFunc(gl.SRC_ALPHA, gl.ONE_MINUS_SRC_ALPHA)

	gl.UseProgram(o.program)
	gl.Uniform2f(o.offsetLoc, float32(place.Min.X), float32(place.Min.Y))
	gl.Uniform2f(o.sizeLoc, float32(place.Dx()), float32(place.Dy()))
	gl.Uniform2f(o.screenSizeLoc, float32(viewportWidth), float32(viewportHeight))
	gl.Uniform4f(o.borderLoc, 1, 1, 1, 0.6)

	gl.ActiveTexture(gl.TEXTURE0)
	gl.BindTexture(gl.TEXTURE_2D, texture)
	gl.Uniform1i(o.trailLoc, 0)

	gl.BindVertexArray(o.vao)
	gl.DrawArrays(gl.TRIANGLE_STRIP, 0, 4)
	gl.BindVertexArray(0)

	gl.Disable(gl.BLEND)
}

// Release deletes the program and vertex array
func (o *TrailOverlay) Release() {
	if o.vao != 0 {
		gl.DeleteVertexArrays(1, &o.vao)
		o.vao = 0
	}
	if o.program != 0 {
		gl.DeleteProgram(o.program)
		o.program = 0
	}
}
