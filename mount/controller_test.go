package mount_test

import (
	"context"
	"errors"
	"image"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"liquidfield/core"
	"liquidfield/field"
	"liquidfield/field/fieldtest"
	"liquidfield/host/headless"
	"liquidfield/metrics"
	"liquidfield/mount"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func backendLoader(b *fieldtest.Backend) mount.LoaderFunc {
	return func(ctx context.Context) (field.Backend, error) {
		return b, nil
	}
}

func newController(h *headless.Host, l mount.Loader, scope mount.Scope, m *metrics.Metrics) *mount.Controller {
	return mount.NewController(h, l, mount.Options{
		Scope:   scope,
		Trail:   core.TrailOptions{TextureSize: 16},
		Params:  core.DefaultFieldParams(),
		Metrics: m,
	})
}

func waitLoad(t *testing.T, h *headless.Host) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, h.WaitPosted(ctx))
}

func mountActive(t *testing.T, h *headless.Host, c *mount.Controller) {
	t.Helper()
	require.NoError(t, c.Mount(context.Background()))
	assert.Equal(t, mount.StateLoading, c.State())
	waitLoad(t, h)
	require.Equal(t, mount.StateActive, c.State())
}

func TestMountActivatesSession(t *testing.T) {
	h := headless.New(800, 600, image.Rect(0, 0, 800, 600))
	b := &fieldtest.Backend{}
	c := newController(h, backendLoader(b), mount.ScopeWindow, nil)

	mountActive(t, h, c)

	assert.Equal(t, 1, b.Inits)
	assert.Len(t, h.Attached(), 1)
	assert.Equal(t, 2, h.Listeners())
	assert.Equal(t, 1, h.PendingFrames())
	assert.Equal(t, [2]float32{800, 600}, c.Renderer().Uniforms().Resolution)

	c.Unmount()
}

func TestFrameDeltas(t *testing.T) {
	h := headless.New(320, 240, image.Rect(0, 0, 320, 240))
	b := &fieldtest.Backend{}
	c := newController(h, backendLoader(b), mount.ScopeWindow, nil)
	mountActive(t, h, c)
	defer c.Unmount()

	t0 := time.Unix(1000, 0)
	require.Equal(t, 1, h.Step(t0))
	assert.Equal(t, float32(0), c.Renderer().Uniforms().Time, "first frame has no delta")

	h.Step(t0.Add(16 * time.Millisecond))
	assert.InDelta(t, 0.016, float64(c.Renderer().Uniforms().Time), 1e-6)

	// A five second stall is clamped
	h.Step(t0.Add(16*time.Millisecond + 5*time.Second))
	assert.InDelta(t, 0.116, float64(c.Renderer().Uniforms().Time), 1e-6)

	// Clock going backwards is not a negative step
	h.Step(t0)
	assert.InDelta(t, 0.116, float64(c.Renderer().Uniforms().Time), 1e-6)

	assert.Equal(t, 4, b.Draws)
	assert.Equal(t, 1, h.PendingFrames(), "every frame reschedules itself")
}

func TestWindowScopePointer(t *testing.T) {
	h := headless.New(800, 600, image.Rect(100, 100, 500, 400))
	c := newController(h, backendLoader(&fieldtest.Backend{}), mount.ScopeWindow, nil)
	mountActive(t, h, c)
	defer c.Unmount()

	h.MovePointer(0, 600)
	h.MovePointer(400, 600)

	imps := c.Renderer().Encoder().Impulses()
	require.Len(t, imps, 1)
	assert.InDelta(t, 0.5, imps[0].Position.X, 1e-9)
	assert.InDelta(t, 0.0, imps[0].Position.Y, 1e-9)
	assert.Equal(t, core.Vec2{X: 1, Y: 0}, imps[0].Direction)

	h.ResizeWindow(400, 300)
	assert.Equal(t, [2]float32{400, 300}, c.Renderer().Uniforms().Resolution)
	assert.InDelta(t, 400.0/300.0, float64(c.Renderer().Camera().Aspect), 1e-6)
}

func TestContainerScopePointer(t *testing.T) {
	h := headless.New(800, 600, image.Rect(100, 100, 500, 400))
	c := newController(h, backendLoader(&fieldtest.Backend{}), mount.ScopeContainer, nil)
	mountActive(t, h, c)
	defer c.Unmount()

	assert.Equal(t, [2]float32{400, 300}, c.Renderer().Uniforms().Resolution)

	h.MovePointer(100, 400)
	h.MovePointer(500, 100)
	imps := c.Renderer().Encoder().Impulses()
	require.Len(t, imps, 1)
	assert.InDelta(t, 1.0, imps[0].Position.X, 1e-9)
	assert.InDelta(t, 1.0, imps[0].Position.Y, 1e-9)

	// Motion over sibling content outside the container still counts
	h.MovePointer(700, 100)
	imps = c.Renderer().Encoder().Impulses()
	require.Len(t, imps, 2)
	assert.InDelta(t, 1.5, imps[1].Position.X, 1e-9)

	// Window resizes are not observed in container scope
	h.ResizeWindow(1000, 1000)
	assert.Equal(t, [2]float32{400, 300}, c.Renderer().Uniforms().Resolution)

	h.SetContainer(image.Rect(0, 0, 200, 100))
	assert.Equal(t, [2]float32{200, 100}, c.Renderer().Uniforms().Resolution)
}

func TestUnmountReleasesEverything(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	h := headless.New(800, 600, image.Rect(0, 0, 800, 600))
	b := &fieldtest.Backend{}
	c := newController(h, backendLoader(b), mount.ScopeWindow, m)
	mountActive(t, h, c)
	h.Step(time.Now())

	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(`
# HELP liquidfield_mounts_active Background instances currently holding a render session.
# TYPE liquidfield_mounts_active gauge
liquidfield_mounts_active 1
`), "liquidfield_mounts_active"))

	c.Unmount()

	assert.Equal(t, mount.StateUnmounted, c.State())
	assert.Equal(t, 0, h.PendingFrames())
	assert.Equal(t, 0, h.Listeners())
	assert.Empty(t, h.Attached())
	assert.Equal(t, 1, b.Releases)
	assert.Nil(t, c.Renderer())

	// Idempotent
	c.Unmount()
	assert.Equal(t, 1, b.Releases)

	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(`
# HELP liquidfield_mounts_active Background instances currently holding a render session.
# TYPE liquidfield_mounts_active gauge
liquidfield_mounts_active 0
`), "liquidfield_mounts_active"))
}

func TestUnmountBeforeLoadCompletes(t *testing.T) {
	h := headless.New(800, 600, image.Rect(0, 0, 800, 600))
	late := &fieldtest.Backend{}
	started := make(chan struct{})
	loader := mount.LoaderFunc(func(ctx context.Context) (field.Backend, error) {
		close(started)
		<-ctx.Done()
		// The load completes anyway and hands back a backend
		return late, nil
	})
	c := newController(h, loader, mount.ScopeWindow, nil)

	require.NoError(t, c.Mount(context.Background()))
	<-started
	c.Unmount()
	assert.Equal(t, mount.StateUnmounted, c.State())

	waitLoad(t, h)

	assert.Equal(t, mount.StateUnmounted, c.State())
	assert.Equal(t, 0, late.Inits, "late result must not be installed")
	assert.Empty(t, h.Attached())
	assert.Equal(t, 0, h.Listeners())
	assert.Equal(t, 0, h.PendingFrames())
}

func TestLoadFailureShowsFallback(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		reason string
	}{
		{"dependency", errors.New("module fetch failed"), metrics.ReasonLoad},
		{"no context", field.ErrBackendUnavailable, metrics.ReasonBackend},
		{"wrapped no context", joinedWith(field.ErrBackendUnavailable), metrics.ReasonBackend},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := prometheus.NewRegistry()
			m := metrics.New(reg)
			h := headless.New(800, 600, image.Rect(0, 0, 800, 600))
			loader := mount.LoaderFunc(func(ctx context.Context) (field.Backend, error) {
				return nil, tt.err
			})
			c := newController(h, loader, mount.ScopeWindow, m)

			require.NoError(t, c.Mount(context.Background()))
			waitLoad(t, h)

			assert.Equal(t, mount.StateFailed, c.State())
			color, shown := h.Fallback()
			assert.True(t, shown)
			assert.Equal(t, core.DefaultFieldParams().DarkBase, color)
			assert.Equal(t, 0, h.PendingFrames())
			assert.Equal(t, 0, h.Listeners())
			assert.Equal(t, 0, h.Step(time.Now()), "no frame loop after failure")

			count, err := testutil.GatherAndCount(reg, "liquidfield_fallbacks_total")
			require.NoError(t, err)
			assert.Equal(t, 1, count)
			assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(`
# HELP liquidfield_fallbacks_total Mounts that ended on the static fallback background.
# TYPE liquidfield_fallbacks_total counter
liquidfield_fallbacks_total{reason="`+tt.reason+`"} 1
`), "liquidfield_fallbacks_total"))

			// Failed is terminal until unmount
			assert.ErrorIs(t, c.Mount(context.Background()), mount.ErrAlreadyMounted)
			c.Unmount()
			assert.Equal(t, mount.StateUnmounted, c.State())
		})
	}
}

func joinedWith(err error) error {
	return errors.Join(errors.New("probe"), err)
}

func TestInitializeFailureBehavesLikeLoadFailure(t *testing.T) {
	h := headless.New(800, 600, image.Rect(0, 0, 800, 600))
	b := &fieldtest.Backend{InitErr: field.ErrBackendUnavailable}
	c := newController(h, backendLoader(b), mount.ScopeWindow, nil)

	require.NoError(t, c.Mount(context.Background()))
	waitLoad(t, h)

	assert.Equal(t, mount.StateFailed, c.State())
	assert.Empty(t, h.Attached())
	assert.Equal(t, 0, h.PendingFrames())
	_, shown := h.Fallback()
	assert.True(t, shown)
	c.Unmount()
}

func TestDrawFailureTearsDownSession(t *testing.T) {
	h := headless.New(800, 600, image.Rect(0, 0, 800, 600))
	b := &fieldtest.Backend{}
	c := newController(h, backendLoader(b), mount.ScopeWindow, nil)
	mountActive(t, h, c)

	b.DrawErr = errors.New("context lost")
	h.Step(time.Now())

	assert.Equal(t, mount.StateFailed, c.State())
	assert.Equal(t, 1, b.Releases)
	assert.Equal(t, 0, h.PendingFrames())
	assert.Equal(t, 0, h.Listeners())
	assert.Empty(t, h.Attached())
	c.Unmount()
}

func TestDoubleMount(t *testing.T) {
	h := headless.New(800, 600, image.Rect(0, 0, 800, 600))
	var loads atomic.Int32
	loader := mount.LoaderFunc(func(ctx context.Context) (field.Backend, error) {
		loads.Add(1)
		return &fieldtest.Backend{}, nil
	})
	c := newController(h, loader, mount.ScopeWindow, nil)

	require.NoError(t, c.Mount(context.Background()))
	assert.ErrorIs(t, c.Mount(context.Background()), mount.ErrAlreadyMounted)
	waitLoad(t, h)
	assert.ErrorIs(t, c.Mount(context.Background()), mount.ErrAlreadyMounted)

	assert.Equal(t, int32(1), loads.Load())
	assert.Len(t, h.Attached(), 1)
	assert.Equal(t, 2, h.Listeners())
	c.Unmount()
}

func TestRemountCreatesFreshSession(t *testing.T) {
	h := headless.New(800, 600, image.Rect(0, 0, 800, 600))
	loader := mount.LoaderFunc(func(ctx context.Context) (field.Backend, error) {
		return &fieldtest.Backend{}, nil
	})
	c := newController(h, loader, mount.ScopeWindow, nil)

	mountActive(t, h, c)
	first := c.Renderer()
	h.MovePointer(0, 0)
	h.MovePointer(100, 0)
	c.Unmount()

	mountActive(t, h, c)
	defer c.Unmount()
	assert.NotSame(t, first, c.Renderer())
	assert.Zero(t, c.Renderer().Encoder().Len())
	assert.Len(t, h.Attached(), 1)
	assert.Equal(t, 2, h.Listeners())
}

func TestTwoControllersDoNotShareSessions(t *testing.T) {
	h := headless.New(800, 600, image.Rect(0, 0, 800, 600))
	b1, b2 := &fieldtest.Backend{}, &fieldtest.Backend{}
	c1 := newController(h, backendLoader(b1), mount.ScopeWindow, nil)
	c2 := newController(h, backendLoader(b2), mount.ScopeWindow, nil)

	mountActive(t, h, c1)
	mountActive(t, h, c2)
	assert.NotSame(t, c1.Renderer(), c2.Renderer())

	c1.Unmount()
	assert.Equal(t, 1, b1.Releases)
	assert.Equal(t, 0, b2.Releases)
	assert.Equal(t, mount.StateActive, c2.State())
	assert.Equal(t, 1, h.PendingFrames())
	c2.Unmount()
}

func TestSetParamsAppliesLive(t *testing.T) {
	h := headless.New(800, 600, image.Rect(0, 0, 800, 600))
	c := newController(h, backendLoader(&fieldtest.Backend{}), mount.ScopeWindow, nil)
	mountActive(t, h, c)
	defer c.Unmount()

	p := core.DefaultFieldParams()
	p.GradientCount = 12
	c.SetParams(p)
	assert.Equal(t, 12, c.Renderer().Uniforms().GradientCount)
}

func TestSetScopeSwitchesListeners(t *testing.T) {
	h := headless.New(800, 600, image.Rect(100, 100, 500, 400))
	c := newController(h, backendLoader(&fieldtest.Backend{}), mount.ScopeWindow, nil)
	mountActive(t, h, c)
	defer c.Unmount()

	h.MovePointer(0, 0)
	h.MovePointer(10, 0)
	require.Equal(t, 1, c.Renderer().Encoder().Len())

	c.SetScope(mount.ScopeContainer)
	assert.Equal(t, 2, h.Listeners())
	assert.Zero(t, c.Renderer().Encoder().Len(), "trail restarts on scope change")
	assert.Equal(t, [2]float32{400, 300}, c.Renderer().Uniforms().Resolution)

	h.SetContainer(image.Rect(0, 0, 50, 60))
	assert.Equal(t, [2]float32{50, 60}, c.Renderer().Uniforms().Resolution)
}

func TestParseScope(t *testing.T) {
	s, err := mount.ParseScope("container")
	require.NoError(t, err)
	assert.Equal(t, mount.ScopeContainer, s)

	s, err = mount.ParseScope("")
	require.NoError(t, err)
	assert.Equal(t, mount.ScopeWindow, s)

	_, err = mount.ParseScope("document")
	assert.Error(t, err)
	assert.Equal(t, "container", mount.ScopeContainer.String())
	assert.Equal(t, "failed", mount.StateFailed.String())
}
