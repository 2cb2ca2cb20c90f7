package field_test

import (
	"errors"
	"image"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"liquidfield/core"
	"liquidfield/field"
	"liquidfield/field/fieldtest"
)

func newRenderer(b field.Backend) *field.Renderer {
	return field.NewRenderer(b, field.Options{
		Trail:  core.TrailOptions{TextureSize: 32},
		Params: core.DefaultFieldParams(),
	})
}

func TestInitializeAttachesDrawable(t *testing.T) {
	backend := &fieldtest.Backend{}
	container := fieldtest.NewContainer(image.Rect(0, 0, 800, 600))
	r := newRenderer(backend)

	require.NoError(t, r.Initialize(container))
	assert.Equal(t, 1, backend.Inits)
	assert.Equal(t, 1, container.Attached())
	assert.Equal(t, [2]float32{800, 600}, r.Uniforms().Resolution)
	assert.InDelta(t, 800.0/600.0, float64(r.Camera().Aspect), 1e-6)
}

func TestResizeUpdatesResolutionAndAspect(t *testing.T) {
	backend := &fieldtest.Backend{}
	container := fieldtest.NewContainer(image.Rect(0, 0, 800, 600))
	r := newRenderer(backend)
	require.NoError(t, r.Initialize(container))

	r.Resize(400, 300)

	assert.Equal(t, [2]float32{400, 300}, r.Uniforms().Resolution)
	assert.InDelta(t, 400.0/300.0, float64(r.Camera().Aspect), 1e-6)
	assert.Equal(t, image.Rect(0, 0, 400, 300), backend.Viewports[len(backend.Viewports)-1])
}

func TestResizeToZeroClampsAndSkipsDrawing(t *testing.T) {
	backend := &fieldtest.Backend{}
	container := fieldtest.NewContainer(image.Rect(0, 0, 800, 600))
	r := newRenderer(backend)
	require.NoError(t, r.Initialize(container))

	require.NotPanics(t, func() { r.Resize(0, 0) })

	res := r.Uniforms().Resolution
	assert.Equal(t, [2]float32{1, 1}, res)
	assert.Equal(t, float32(1), r.Camera().Aspect)
	for _, v := range r.Camera().Projection {
		assert.False(t, math.IsNaN(float64(v)), "projection contains NaN")
	}

	require.NoError(t, r.RenderFrame(1.0/60))
	assert.Equal(t, 0, backend.Draws, "degenerate size must not draw")
	assert.Greater(t, r.Uniforms().Time, float32(0), "time keeps advancing")

	r.Resize(640, 480)
	require.NoError(t, r.RenderFrame(1.0/60))
	assert.Equal(t, 1, backend.Draws)
}

func TestRenderFrameAdvancesTrailBeforeDraw(t *testing.T) {
	backend := &fieldtest.Backend{}
	r := newRenderer(backend)
	require.NoError(t, r.Initialize(fieldtest.NewContainer(image.Rect(0, 0, 100, 100))))

	r.RecordPoint(0.1, 0.1)
	r.RecordPoint(0.2, 0.1)
	require.NoError(t, r.RenderFrame(0.016))

	tex := r.Encoder().Texture()
	assert.Equal(t, tex.Version(), backend.UploadedVersion)
	assert.Equal(t, tex.Version(), backend.DrawnVersion)
	assert.Equal(t, 1, r.Encoder().Impulses()[0].Age)
	assert.InDelta(t, 0.016, float64(r.Uniforms().Time), 1e-6)

	assert.Equal(t, r.Encoder().Len(), backend.LastFrame.Impulses)
	assert.Equal(t, core.DefaultMaxAge, backend.LastFrame.MaxImpulses)
	assert.Equal(t, 0.016, backend.LastFrame.Delta)
}

func TestRenderFrameIgnoresNegativeDelta(t *testing.T) {
	r := newRenderer(&fieldtest.Backend{})
	require.NoError(t, r.Initialize(fieldtest.NewContainer(image.Rect(0, 0, 10, 10))))

	require.NoError(t, r.RenderFrame(0.5))
	require.NoError(t, r.RenderFrame(-3))
	require.NoError(t, r.RenderFrame(math.NaN()))
	assert.InDelta(t, 0.5, float64(r.Uniforms().Time), 1e-6)
}

func TestInitializeFailureReleasesBackend(t *testing.T) {
	backend := &fieldtest.Backend{InitErr: field.ErrBackendUnavailable}
	container := fieldtest.NewContainer(image.Rect(0, 0, 100, 100))
	r := newRenderer(backend)

	err := r.Initialize(container)
	require.Error(t, err)
	assert.True(t, errors.Is(err, field.ErrBackendUnavailable))
	assert.Equal(t, 0, container.Attached())
	assert.False(t, backend.Live())

	// Rendering an uninitialized renderer is a no-op
	assert.NoError(t, r.RenderFrame(0.1))
	assert.Equal(t, 0, backend.Draws)
}

func TestDisposeIsIdempotent(t *testing.T) {
	t.Run("never initialized", func(t *testing.T) {
		backend := &fieldtest.Backend{}
		r := newRenderer(backend)
		assert.NotPanics(t, r.Dispose)
		assert.NotPanics(t, r.Dispose)
		assert.Equal(t, 0, backend.Releases)
	})

	t.Run("initialized", func(t *testing.T) {
		backend := &fieldtest.Backend{}
		container := fieldtest.NewContainer(image.Rect(0, 0, 100, 100))
		r := newRenderer(backend)
		require.NoError(t, r.Initialize(container))

		r.Dispose()
		r.Dispose()
		assert.Equal(t, 1, backend.Releases)
		assert.Equal(t, 0, container.Attached())

		// Frames after dispose never reach the backend
		require.NoError(t, r.RenderFrame(0.1))
		assert.Equal(t, 0, backend.Draws)
		assert.Error(t, r.Initialize(container))
	})
}

func TestContainerOffsetIsKeptOnResize(t *testing.T) {
	backend := &fieldtest.Backend{}
	container := fieldtest.NewContainer(image.Rect(100, 50, 500, 350))
	r := newRenderer(backend)
	require.NoError(t, r.Initialize(container))

	r.Resize(200, 100)
	assert.Equal(t, image.Rect(100, 50, 300, 150), backend.Viewports[len(backend.Viewports)-1])
}

func TestSetParams(t *testing.T) {
	r := newRenderer(&fieldtest.Backend{})
	p := core.DefaultFieldParams()
	p.GradientCount = 12
	p.DisplacementScale = 0.8
	r.SetParams(p)

	assert.Equal(t, 12, r.Uniforms().GradientCount)
	assert.Equal(t, float32(0.8), r.Uniforms().DisplacementScale)
}
