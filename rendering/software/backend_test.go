package software

import (
	"image"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"liquidfield/core"
	"liquidfield/field"
	"liquidfield/field/fieldtest"
)

func quietUniforms(trail *core.TrailTexture) *core.Uniforms {
	p := core.DefaultFieldParams()
	p.GrainIntensity = 0
	p.GradientSize = 0.01
	return core.NewUniforms(p, trail)
}

func TestShadeFallsBackToDarkBase(t *testing.T) {
	u := quietUniforms(nil)

	got := Shade(u, mgl64.Vec2{0.05, 0.05})

	// No gradient reaches the corner, so the result is mix(dark, 0, floor)
	floor := float64(u.BlendFloor)
	for i := 0; i < 3; i++ {
		assert.InDelta(t, float64(u.DarkBase[i])*(1-floor), got[i], 1e-9)
	}
}

func TestShadeGradientCenter(t *testing.T) {
	u := quietUniforms(nil)
	u.GradientSize = 0.5

	// At time zero every orbiting point sits at (0.5, 0.9)
	got := Shade(u, mgl64.Vec2{0.5, 0.9})

	raw := vec3(u.Color1).Mul(4 * 0.5 * float64(u.Color1Weight)).
		Add(vec3(u.Color2).Mul(4 * 0.5 * float64(u.Color2Weight)))
	for i := range raw {
		raw[i] = clamp(raw[i]*float64(u.Intensity), 0, 1)
	}
	want := mix(vec3(u.DarkBase), raw, math.Max(raw.Len(), float64(u.BlendFloor)))
	for i := 0; i < 3; i++ {
		assert.InDelta(t, want[i], got[i], 1e-9)
	}
}

func TestShadeNeutralTrailDoesNotDisplace(t *testing.T) {
	enc := core.NewTrailEncoder(core.TrailOptions{TextureSize: 16})
	enc.AdvanceFrame()

	withTrail := quietUniforms(enc.Texture())
	withTrail.GradientSize = 0.5
	withTrail.GrainIntensity = 0.08
	withTrail.Time = 1.7
	without := *withTrail
	without.Trail = nil

	for _, uv := range []mgl64.Vec2{{0.1, 0.2}, {0.5, 0.5}, {0.9, 0.7}} {
		assert.Equal(t, Shade(&without, uv), Shade(withTrail, uv), "uv %v", uv)
	}
}

func TestShadeTrailDisplacesLookup(t *testing.T) {
	enc := core.NewTrailEncoder(core.TrailOptions{TextureSize: 32})
	enc.RecordPoint(0.3, 0.5)
	enc.RecordPoint(0.32, 0.5)
	for i := 0; i < 20; i++ {
		enc.AdvanceFrame()
	}

	u := quietUniforms(enc.Texture())
	u.GradientSize = 0.5
	plain := *u
	plain.Trail = nil

	p := enc.Impulses()[0].Position
	uv := mgl64.Vec2{p.X, p.Y}
	assert.NotEqual(t, Shade(&plain, uv), Shade(u, uv))
}

func TestGrainIsDeterministicAndBounded(t *testing.T) {
	res := [2]float32{640, 480}
	for _, uv := range []mgl64.Vec2{{0, 0}, {0.3, 0.8}, {1, 1}} {
		a := grain(uv, res, 3.5)
		assert.Equal(t, a, grain(uv, res, 3.5))
		assert.GreaterOrEqual(t, a, -1.0)
		assert.LessOrEqual(t, a, 1.0)
	}
}

func TestSmoothstep(t *testing.T) {
	tests := []struct {
		name string
		x    float64
		want float64
	}{
		{"below", -1, 0},
		{"edge0", 0, 0},
		{"middle", 0.25, 0.5},
		{"edge1", 0.5, 1},
		{"above", 2, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, smoothstep(0, 0.5, tt.x), 1e-12)
		})
	}
	assert.Equal(t, 1.0, smoothstep(0, 0, 0.1))
}

func TestRenderFillsImage(t *testing.T) {
	u := quietUniforms(nil)
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))

	Render(img, u, 3)

	want := toRGBA(Shade(u, mgl64.Vec2{0.125, 0.875}))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			assert.Equal(t, want, img.RGBAAt(x, y), "pixel %d,%d", x, y)
		}
	}
}

func TestRenderRowZeroIsTop(t *testing.T) {
	u := quietUniforms(nil)
	u.GradientSize = 0.3
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))

	Render(img, u, 1)

	// Gradients start at the top center, (0.5, 0.9) in field space
	top := img.RGBAAt(4, 0)
	bottom := img.RGBAAt(4, 7)
	assert.Greater(t, top.G, bottom.G)
}

func TestBackendThroughRenderer(t *testing.T) {
	b := NewBackend()
	b.Workers = 2
	container := fieldtest.NewContainer(image.Rect(10, 20, 26, 28))
	r := field.NewRenderer(b, field.Options{
		Trail:  core.TrailOptions{TextureSize: 16},
		Params: core.DefaultFieldParams(),
	})
	require.NoError(t, r.Initialize(container))

	layer := b.layer
	require.NotNil(t, layer)
	assert.Nil(t, layer.Frame())

	require.NoError(t, r.RenderFrame(0.016))
	frame := layer.Frame()
	require.NotNil(t, frame)
	assert.Equal(t, 16, frame.Bounds().Dx())
	assert.Equal(t, 8, frame.Bounds().Dy())
	assert.Equal(t, image.Rect(10, 20, 26, 28), layer.Bounds())
	for i := 3; i < len(frame.Pix); i += 4 {
		require.Equal(t, uint8(255), frame.Pix[i])
	}

	r.Resize(4, 2)
	require.NoError(t, r.RenderFrame(0.016))
	assert.Equal(t, image.Rect(0, 0, 4, 2), layer.Frame().Bounds())
	assert.Equal(t, 16, frame.Bounds().Dx(), "earlier frames are not resized in place")

	r.Dispose()
	assert.Equal(t, 0, container.Attached())
	assert.Error(t, b.Draw(field.Frame{Uniforms: r.Uniforms()}))
}
