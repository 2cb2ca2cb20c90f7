//go:build raylib

// Package raylib runs the field on raylib, which owns the window, the GL
// context and the frame loop. raylib bundles its own GLFW, so this package is
// only built with the raylib tag and never linked next to glfwhost.
package raylib

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
	"strings"
	"unsafe"

	rl "github.com/gen2brain/raylib-go/raylib"
	"go.uber.org/zap"

	"liquidfield/core"
	"liquidfield/field"
	"liquidfield/rendering/opengl/shaders"
)

// The quad is drawn with raylib's own matrices, so only texture coordinates
// matter. raylib's texture space has v pointing down; the field shader
// expects it up.
const vertexShader = `#version 330

in vec3 vertexPosition;
in vec2 vertexTexCoord;

uniform mat4 mvp;

out vec2 vUv;

void main() {
    vUv = vec2(vertexTexCoord.x, 1.0 - vertexTexCoord.y);
    gl_Position = mvp * vec4(vertexPosition, 1.0);
}
`

// fragmentShader is the shared field shader on the GLSL version raylib's
// core profile context accepts
var fragmentShader = strings.Replace(shaders.FieldFragmentShader, "#version 410 core", "#version 330", 1)

// Backend draws the field through raylib's shader mode. All calls happen on
// the raylib thread, between BeginDrawing and EndDrawing for Draw.
type Backend struct {
	log *zap.Logger

	shader    rl.Shader
	trail     rl.Texture2D
	trailSize int
	uploaded  uint64
	hasUpload bool
	locations map[string]int32
	rect      image.Rectangle
	live      bool
}

type layer struct {
	b *Backend
}

func (l *layer) Bounds() image.Rectangle {
	return l.b.rect
}

// NewBackend creates an uninitialized backend
func NewBackend(log *zap.Logger) *Backend {
	if log == nil {
		log = zap.NewNop()
	}
	return &Backend{
		log:       log.Named("raylib"),
		locations: make(map[string]int32),
	}
}

func (b *Backend) Init(rect image.Rectangle, trailSize int) (field.Drawable, error) {
	shader := rl.LoadShaderFromMemory(vertexShader, fragmentShader)
	if !rl.IsShaderValid(shader) {
		return nil, fmt.Errorf("%w: raylib field shader did not compile", field.ErrBackendUnavailable)
	}
	b.shader = shader

	img := rl.GenImageColor(trailSize, trailSize, rl.Black)
	b.trail = rl.LoadTextureFromImage(img)
	rl.UnloadImage(img)
	rl.SetTextureFilter(b.trail, rl.FilterBilinear)
	rl.SetTextureWrap(b.trail, rl.WrapClamp)
	b.trailSize = trailSize
	b.hasUpload = false

	b.rect = rect
	b.live = true
	return &layer{b: b}, nil
}

func (b *Backend) SetViewport(rect image.Rectangle) {
	b.rect = rect
}

func (b *Backend) Upload(tex *core.TrailTexture) {
	if !b.live || tex.Size() != b.trailSize {
		return
	}
	if b.hasUpload && tex.Version() == b.uploaded {
		return
	}
	pix := tex.Pix()
	if len(pix) == 0 {
		return
	}
	// The raster is tightly packed RGBA, the same layout as color.RGBA
	rl.UpdateTexture(b.trail, unsafe.Slice((*color.RGBA)(unsafe.Pointer(&pix[0])), len(pix)/4))
	b.uploaded = tex.Version()
	b.hasUpload = true
}

var errReleased = errors.New("raylib: draw after release")

func (b *Backend) Draw(f field.Frame) error {
	if !b.live {
		return errReleased
	}
	if b.rect.Empty() {
		return nil
	}

	f.Uniforms.Each(b.setUniform)

	src := rl.NewRectangle(0, 0, float32(b.trailSize), float32(b.trailSize))
	dst := rl.NewRectangle(float32(b.rect.Min.X), float32(b.rect.Min.Y), float32(b.rect.Dx()), float32(b.rect.Dy()))
	rl.BeginShaderMode(b.shader)
	rl.DrawTexturePro(b.trail, src, dst, rl.Vector2{}, 0, rl.White)
	rl.EndShaderMode()
	return nil
}

func (b *Backend) setUniform(name string, value any) {
	loc := b.location(name)
	if loc < 0 {
		return
	}
	switch v := value.(type) {
	case float32:
		rl.SetShaderValue(b.shader, loc, []float32{v}, rl.ShaderUniformFloat)
	case int32:
		// The binding only takes float slices; the bits are passed through
		rl.SetShaderValue(b.shader, loc, []float32{math.Float32frombits(uint32(v))}, rl.ShaderUniformInt)
	case [2]float32:
		rl.SetShaderValue(b.shader, loc, v[:], rl.ShaderUniformVec2)
	case core.RGB:
		rl.SetShaderValue(b.shader, loc, v[:], rl.ShaderUniformVec3)
	case *core.TrailTexture:
		// DrawTexturePro binds the trail on unit 0, the sampler default
	default:
		b.log.Warn("unsupported uniform type", zap.String("uniform", name), zap.String("type", fmt.Sprintf("%T", value)))
	}
}

func (b *Backend) location(name string) int32 {
	if loc, ok := b.locations[name]; ok {
		return loc
	}
	loc := rl.GetShaderLocation(b.shader, name)
	b.locations[name] = loc
	return loc
}

func (b *Backend) Release() {
	if !b.live {
		return
	}
	rl.UnloadTexture(b.trail)
	rl.UnloadShader(b.shader)
	b.live = false
	clear(b.locations)
}
