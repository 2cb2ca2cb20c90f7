package overlay

import (
	"fmt"

	"github.com/go-gl/gl/v4.1-core/gl"
	"github.com/go-gl/mathgl/mgl32"

	"liquidfield/rendering/opengl/shaders"
)

const metersVertexShader = `#version 410 core

layout (location = 0) in vec2 position;
layout (location = 1) in vec4 color;

out vec4 fragColor;

uniform mat4 projection;

void main() {
    gl_Position = projection * vec4(position, 0.0, 1.0);
    fragColor = color;
}
`

const metersFragmentShader = `#version 410 core

in vec4 fragColor;
out vec4 outColor;

void main() {
    outColor = fragColor;
}
`

// Meter sizes in pixels
const (
	meterHeight = 6
	meterGap    = 4
)

// frameBudget is the delta that fills the frame-time meter
const frameBudget = 1.0 / 30

// Stats is what the meters show
type Stats struct {
	Impulses    int
	MaxImpulses int
	Delta       float64
}

var (
	meterTrack = mgl32.Vec4{0, 0, 0, 0.5}
	meterLoad  = mgl32.Vec4{0.2, 0.9, 0.4, 0.9}
	meterFrame = mgl32.Vec4{0.95, 0.8, 0.2, 0.9}
)

// Meters draws two horizontal bars below the trail preview: live impulses
// against the trail capacity, and the last time step against a 30 fps
// budget.
type Meters struct {
	program uint32
	vao     uint32
	vbo     uint32

	projectionLoc int32
}

// NewMeters compiles the meter program. A GL context must be current.
func NewMeters() (*Meters, error) {
	program, err := shaders.CompileProgram(metersVertexShader, metersFragmentShader)
	if err != nil {
		return nil, fmt.Errorf("meters: %w", err)
	}
	m := &Meters{program: program}
	m.projectionLoc = gl.GetUniformLocation(program, gl.Str("projection\x00"))

	gl.GenVertexArrays(1, &m.vao)
	gl.GenBuffers(1, &m.vbo)
	gl.BindVertexArray(m.vao)
	gl.BindBuffer(gl.ARRAY_BUFFER, m.vbo)

	// x, y, r, g, b, a
	const stride = 6 * 4
	gl.VertexAttribPointerWithOffset(0, 2, gl.FLOAT, false, stride, 0)
	gl.EnableVertexAttribArray(0)
	gl.VertexAttribPointerWithOffset(1, 4, gl.FLOAT, false, stride, 2*4)
	gl.EnableVertexAttribArray(1)

	gl.BindVertexArray(0)
	return m, nil
}

// meterVertices builds the triangles for both meters in viewport pixels. It
// returns nil when the viewport has no room for the trail preview.
func meterVertices(s Stats, viewportWidth, viewportHeight int) []float32 {
	place := Placement(viewportWidth, viewportHeight)
	if place.Empty() {
		return nil
	}

	x := float32(place.Min.X)
	w := float32(place.Dx())
	y := float32(place.Max.Y + meterGap)

	load := 0.0
	if s.MaxImpulses > 0 {
		load = float64(s.Impulses) / float64(s.MaxImpulses)
	}
	frame := s.Delta / frameBudget

	var v []float32
	for i, bar := range []struct {
		fill  float64
		color mgl32.Vec4
	}{
		{load, meterLoad},
		{frame, meterFrame},
	} {
		top := y + float32(i*(meterHeight+meterGap))
		v = appendRect(v, x, top, w, meterHeight, meterTrack)
		v = appendRect(v, x, top, w*float32(mgl32.Clamp(float32(bar.fill), 0, 1)), meterHeight, bar.color)
	}
	return v
}

func appendRect(v []float32, x, y, w, h float32, c mgl32.Vec4) []float32 {
	if w <= 0 {
		return v
	}
	return append(v,
		x, y, c[0], c[1], c[2], c[3],
		x+w, y, c[0], c[1], c[2], c[3],
		x, y+h, c[0], c[1], c[2], c[3],
		x+w, y, c[0], c[1], c[2], c[3],
		x+w, y+h, c[0], c[1], c[2], c[3],
		x, y+h, c[0], c[1], c[2], c[3],
	)
}

// Draw blends the meters over the current viewport
func (m *Meters) Draw(s Stats, viewportWidth, viewportHeight int) {
	vertices := meterVertices(s, viewportWidth, viewportHeight)
	if len(vertices) == 0 {
		return
	}

	gl.Enable(gl.BLEND)
	gl.BlendFunc(gl.SRC_ALPHA, gl.ONE_MINUS_SRC_ALPHA)

	gl.UseProgram(m.program)
	projection := mgl32.Ortho2D(0, float32(viewportWidth), float32(viewportHeight), 0)
	gl.UniformMatrix4fv(m.projectionLoc, 1, false, &projection[0])

	gl.BindVertexArray(m.vao)
	gl.BindBuffer(gl.ARRAY_BUFFER, m.vbo)
	gl.BufferData(gl.ARRAY_BUFFER, len(vertices)*4, gl.Ptr(vertices), gl.DYNAMIC_DRAW)
	gl.DrawArrays(gl.TRIANGLES, 0, int32(len(vertices)/6))
	gl.BindVertexArray(0)

	gl.Disable(gl.BLEND)
}

// Release deletes the program and buffers
func (m *Meters) Release() {
	if m.program != 0 {
		gl.DeleteProgram(m.program)
		m.program = 0
	}
	if m.vao != 0 {
		gl.DeleteVertexArrays(1, &m.vao)
		m.vao = 0
	}
	if m.vbo != 0 {
		gl.DeleteBuffers(1, &m.vbo)
		m.vbo = 0
	}
}
