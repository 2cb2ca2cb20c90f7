// Package opengl is the OpenGL 4.1 core backend of the field renderer. Every
// call must happen on the thread that owns the current context.
package opengl

import (
	"fmt"
	"image"
	"strings"

	"github.com/go-gl/gl/v4.1-core/gl"
	"go.uber.org/zap"

	"liquidfield/core"
	"liquidfield/field"
	"liquidfield/rendering/opengl/overlay"
	"liquidfield/rendering/opengl/shaders"
)

// Surface reports the window and framebuffer sizes used to map client-space
// rectangles onto framebuffer pixels (they differ on HiDPI displays).
type Surface interface {
	WindowSize() (width, height int)
	FramebufferSize() (width, height int)
}

// Options configures a Backend
type Options struct {
	Logger       *zap.Logger
	DebugOverlay bool
}

// Backend draws the field quad into a rectangle of the current framebuffer
type Backend struct {
	surface Surface
	log     *zap.Logger
	debug   bool

	program uint32
	quadVAO uint32
	quadVBO uint32

	// Trail texture
	texture     uint32
	textureSize int32
	uploaded    uint64
	hasUpload   bool

	locations map[string]int32
	rect      image.Rectangle
	overlay   *overlay.TrailOverlay
	meters    *overlay.Meters
	live      bool
}

type surfaceLayer struct {
	b *Backend
}

func (l *surfaceLayer) Bounds() image.Rectangle {
	return l.b.rect
}

// NewBackend creates a backend drawing into surface. No GL object exists until
// Init.
func NewBackend(surface Surface, opts Options) *Backend {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Backend{
		surface:   surface,
		log:       log.Named("opengl"),
		debug:     opts.DebugOverlay,
		locations: make(map[string]int32),
	}
}

// Probe loads the GL function table for the current context and checks that
// it is at least 4.1 core. Failures wrap field.ErrBackendUnavailable.
func Probe() (string, error) {
	if err := gl.Init(); err != nil {
		return "", fmt.Errorf("%w: %v", field.ErrBackendUnavailable, err)
	}
	version := gl.GoStr(gl.GetString(gl.VERSION))
	var major, minor int
	if _, err := fmt.Sscanf(version, "%d.%d", &major, &minor); err != nil {
		return version, fmt.Errorf("%w: unparsable GL version %q", field.ErrBackendUnavailable, version)
	}
	if major < 4 || (major == 4 && minor < 1) {
		return version, fmt.Errorf("%w: GL %d.%d, need 4.1", field.ErrBackendUnavailable, major, minor)
	}
	return version, nil
}

func (b *Backend) Init(rect image.Rectangle, trailSize int) (field.Drawable, error) {
	program, err := shaders.CompileProgram(shaders.FieldVertexShader, shaders.FieldFragmentShader)
	if err != nil {
		return nil, fmt.Errorf("%w: field program: %v", field.ErrBackendUnavailable, err)
	}
	b.program = program
	b.live = true

	b.createQuad()
	b.createTexture(int32(trailSize))

	if b.debug {
		ov, err := overlay.NewTrailOverlay()
		if err != nil {
			b.log.Warn("debug overlay disabled", zap.Error(err))
		} else {
			b.overlay = ov
		}
		m, err := overlay.NewMeters()
		if err != nil {
			b.log.Warn("debug meters disabled", zap.Error(err))
		} else {
			b.meters = m
		}
	}

	if code := gl.GetError(); code != gl.NO_ERROR {
		return nil, fmt.Errorf("%w: GL error 0x%x during init", field.ErrBackendUnavailable, code)
	}

	b.rect = rect
	b.log.Debug("backend initialized",
		zap.String("renderer", gl.GoStr(gl.GetString(gl.RENDERER))),
		zap.Int("trailSize", trailSize))
	return &surfaceLayer{b: b}, nil
}

// createQuad uploads a unit quad centered on the origin. The camera model
// matrix scales it to the frustum.
func (b *Backend) createQuad() {
	vertices := []float32{
		// x, y, z, u, v
		-0.5, -0.5, 0, 0, 0,
		0.5, -0.5, 0, 1, 0,
		-0.5, 0.5, 0, 0, 1,
		0.5, 0.5, 0, 1, 1,
	}

	gl.GenVertexArrays(1, &b.quadVAO)
	gl.BindVertexArray(b.quadVAO)

	gl.GenBuffers(1, &b.quadVBO)
	gl.BindBuffer(gl.ARRAY_BUFFER, b.quadVBO)
	gl.BufferData(gl.ARRAY_BUFFER, len(vertices)*4, gl.Ptr(vertices), gl.STATIC_DRAW)

	const stride = 5 * 4
	gl.EnableVertexAttribArray(0)
	gl.VertexAttribPointerWithOffset(0, 3, gl.FLOAT, false, stride, 0)
	gl.EnableVertexAttribArray(1)
	gl.VertexAttribPointerWithOffset(1, 2, gl.FLOAT, false, stride, 3*4)

	gl.BindVertexArray(0)
}

func (b *Backend) createTexture(size int32) {
	gl.GenTextures(1, &b.texture)
	gl.BindTexture(gl.TEXTURE_2D, b.texture)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, gl.LINEAR)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, gl.LINEAR)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_S, gl.CLAMP_TO_EDGE)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_T, gl.CLAMP_TO_EDGE)
	gl.TexImage2D(gl.TEXTURE_2D, 0, gl.RGBA8, size, size, 0, gl.RGBA, gl.UNSIGNED_BYTE, nil)
	b.textureSize = size
	b.hasUpload = false
}

func (b *Backend) SetViewport(rect image.Rectangle) {
	b.rect = rect
}

// Upload copies the trail raster into the texture when its version changed
func (b *Backend) Upload(tex *core.TrailTexture) {
	if !b.live {
		return
	}
	if b.hasUpload && tex.Version() == b.uploaded {
		return
	}

	gl.PixelStorei(gl.UNPACK_ALIGNMENT, 1)
	gl.BindTexture(gl.TEXTURE_2D, b.texture)
	size := int32(tex.Size())
	if size != b.textureSize {
		gl.TexImage2D(gl.TEXTURE_2D, 0, gl.RGBA8, size, size, 0, gl.RGBA, gl.UNSIGNED_BYTE, gl.Ptr(tex.Pix()))
		b.textureSize = size
	} else {
		gl.TexSubImage2D(gl.TEXTURE_2D, 0, 0, 0, size, size, gl.RGBA, gl.UNSIGNED_BYTE, gl.Ptr(tex.Pix()))
	}
	b.uploaded = tex.Version()
	b.hasUpload = true
}

// framebufferRect converts a client-space rectangle (top-left origin, window
// units) to framebuffer pixels with a bottom-left origin.
func framebufferRect(rect image.Rectangle, windowW, windowH, fbW, fbH int) (x, y, w, h int32) {
	sx, sy := 1.0, 1.0
	if windowW > 0 && windowH > 0 {
		sx = float64(fbW) / float64(windowW)
		sy = float64(fbH) / float64(windowH)
	}
	x = int32(float64(rect.Min.X) * sx)
	w = int32(float64(rect.Dx()) * sx)
	h = int32(float64(rect.Dy()) * sy)
	y = int32(fbH) - int32(float64(rect.Max.Y)*sy)
	return x, y, w, h
}

func (b *Backend) Draw(f field.Frame) error {
	if !b.live {
		return fmt.Errorf("opengl: draw after release")
	}

	ww, wh := b.surface.WindowSize()
	fw, fh := b.surface.FramebufferSize()
	x, y, w, h := framebufferRect(b.rect, ww, wh, fw, fh)
	if w <= 0 || h <= 0 {
		return nil
	}

	gl.Viewport(x, y, w, h)
	gl.Enable(gl.SCISSOR_TEST)
	gl.Scissor(x, y, w, h)
	gl.Disable(gl.DEPTH_TEST)

	gl.UseProgram(b.program)
	gl.UniformMatrix4fv(b.location("uProjection"), 1, false, &f.Projection[0])
	gl.UniformMatrix4fv(b.location("uView"), 1, false, &f.View[0])
	gl.UniformMatrix4fv(b.location("uModel"), 1, false, &f.Model[0])
	f.Uniforms.Each(b.setUniform)

	gl.BindVertexArray(b.quadVAO)
	gl.DrawArrays(gl.TRIANGLE_STRIP, 0, 4)
	gl.BindVertexArray(0)

	if b.overlay != nil {
		b.overlay.Draw(b.texture, int(w), int(h))
	}
	if b.meters != nil {
		b.meters.Draw(overlay.Stats{
			Impulses:    f.Impulses,
			MaxImpulses: f.MaxImpulses,
			Delta:       f.Delta,
		}, int(w), int(h))
	}
	gl.Disable(gl.SCISSOR_TEST)

	if code := gl.GetError(); code != gl.NO_ERROR {
		return fmt.Errorf("opengl: GL error 0x%x", code)
	}
	return nil
}

func (b *Backend) setUniform(name string, value any) {
	loc := b.location(name)
	if loc < 0 {
		return
	}
	switch v := value.(type) {
	case float32:
		gl.Uniform1f(loc, v)
	case int32:
		gl.Uniform1i(loc, v)
	case [2]float32:
		gl.Uniform2f(loc, v[0], v[1])
	case core.RGB:
		gl.Uniform3f(loc, v[0], v[1], v[2])
	case *core.TrailTexture:
		gl.ActiveTexture(gl.TEXTURE0)
		gl.BindTexture(gl.TEXTURE_2D, b.texture)
		gl.Uniform1i(loc, 0)
	default:
		b.log.Warn("unsupported uniform type", zap.String("uniform", name), zap.String("type", fmt.Sprintf("%T", value)))
	}
}

// location returns the cached uniform location, -1 when the program does not
// use the uniform.
func (b *Backend) location(name string) int32 {
	if loc, ok := b.locations[name]; ok {
		return loc
	}
	loc := gl.GetUniformLocation(b.program, gl.Str(strings.TrimSuffix(name, "\x00")+"\x00"))
	if loc < 0 {
		b.log.Debug("uniform not active", zap.String("uniform", name))
	}
	b.locations[name] = loc
	return loc
}

// Release deletes every GL object the backend created. It tolerates a
// partially initialized backend and repeated calls.
func (b *Backend) Release() {
	if b.meters != nil {
		b.meters.Release()
		b.meters = nil
	}
	if b.overlay != nil {
		b.overlay.Release()
		b.overlay = nil
	}
	if b.texture != 0 {
		gl.DeleteTextures(1, &b.texture)
		b.texture = 0
	}
	if b.quadVBO != 0 {
		gl.DeleteBuffers(1, &b.quadVBO)
		b.quadVBO = 0
	}
	if b.quadVAO != 0 {
		gl.DeleteVertexArrays(1, &b.quadVAO)
		b.quadVAO = 0
	}
	if b.program != 0 {
		gl.DeleteProgram(b.program)
		b.program = 0
	}
	if b.live {
		b.log.Debug("backend released")
	}
	b.live = false
	b.hasUpload = false
	clear(b.locations)
}
