// Package mount ties a liquid field to the lifecycle of its host: it loads
// the backend asynchronously, wires pointer and resize events, drives the
// frame loop and tears everything down again on unmount.
package mount

import (
	"context"
	"errors"
	"image"
	"time"

	"go.uber.org/zap"

	"liquidfield/core"
	"liquidfield/field"
	"liquidfield/metrics"
)

// ErrAlreadyMounted is returned by Mount on a controller that is not unmounted
var ErrAlreadyMounted = errors.New("mount: already mounted")

// DefaultMaxFrameDelta bounds the time step after a stall (tab switch,
// debugger pause, minimized window).
const DefaultMaxFrameDelta = 100 * time.Millisecond

// Options configures a Controller
type Options struct {
	Scope  Scope
	Trail  core.TrailOptions
	Params core.FieldParams
	// MaxFrameDelta clamps the per-frame time step; zero takes the default
	MaxFrameDelta time.Duration

	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

// Controller owns the render session of one mounted background. All methods
// must be called on the host thread.
type Controller struct {
	host   Host
	loader Loader
	opts   Options
	log    *zap.Logger

	state State
	// generation is bumped by every Mount and Unmount so a late load result
	// can tell it belongs to a previous session
	generation uint64
	cancelLoad context.CancelFunc

	renderer  *field.Renderer
	removers  []func()
	frame     FrameID
	scheduled bool
	lastFrame time.Time
	hasLast   bool
}

// NewController creates an unmounted controller
func NewController(host Host, loader Loader, opts Options) *Controller {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if opts.MaxFrameDelta <= 0 {
		opts.MaxFrameDelta = DefaultMaxFrameDelta
	}
	return &Controller{
		host:   host,
		loader: loader,
		opts:   opts,
		log:    log.Named("mount"),
	}
}

// State returns the lifecycle state
func (c *Controller) State() State {
	return c.state
}

// Renderer returns the live renderer, nil unless Active
func (c *Controller) Renderer() *field.Renderer {
	return c.renderer
}

// Mount starts loading the backend. The result is installed from the host
// thread once the loader finishes; a second Mount fails with
// ErrAlreadyMounted and acquires nothing.
func (c *Controller) Mount(ctx context.Context) error {
	if c.state != StateUnmounted {
		return ErrAlreadyMounted
	}

	loadCtx, cancel := context.WithCancel(ctx)
	c.cancelLoad = cancel
	c.generation++
	c.state = StateLoading
	gen := c.generation

	c.log.Debug("mount requested", zap.Stringer("scope", c.opts.Scope))

	loader := c.loader
	host := c.host
	go func() {
		backend, err := loader.Load(loadCtx)
		host.Post(func() {
			c.finishLoad(gen, backend, err)
		})
	}()
	return nil
}

func (c *Controller) finishLoad(gen uint64, backend field.Backend, err error) {
	if gen != c.generation || c.state != StateLoading {
		if backend != nil {
			backend.Release()
		}
		c.log.Debug("discarded stale load result")
		return
	}
	c.cancelLoad()
	c.cancelLoad = nil

	if err != nil {
		c.fail(err)
		return
	}
	if backend == nil {
		c.fail(field.ErrBackendUnavailable)
		return
	}

	r := field.NewRenderer(backend, field.Options{
		Trail:   c.opts.Trail,
		Params:  c.opts.Params,
		Logger:  c.log,
		Metrics: c.opts.Metrics,
	})
	if err := r.Initialize(scopedContainer{c}); err != nil {
		r.Dispose()
		c.fail(err)
		return
	}

	c.renderer = r
	c.attachListeners()
	c.state = StateActive
	c.opts.Metrics.SessionStarted()
	c.log.Info("background active", zap.Stringer("scope", c.opts.Scope))
	c.schedule()
}

// fail switches to the static fallback. Nothing is retried.
func (c *Controller) fail(err error) {
	reason := metrics.ReasonLoad
	if errors.Is(err, field.ErrBackendUnavailable) {
		reason = metrics.ReasonBackend
	}
	c.host.ShowFallback(c.opts.Params.DarkBase)
	c.opts.Metrics.Fallback(reason)
	c.state = StateFailed
	c.log.Warn("showing static background", zap.String("reason", reason), zap.Error(err))
}

// area is the rectangle the field covers under the current scope
func (c *Controller) area() image.Rectangle {
	if c.opts.Scope == ScopeContainer {
		return c.host.Bounds()
	}
	return c.host.Window()
}

func (c *Controller) attachListeners() {
	switch c.opts.Scope {
	case ScopeContainer:
		c.removers = append(c.removers,
			c.host.OnPointer(c.pointerHandler(c.host.Bounds)),
			c.host.ObserveContainer(func(b image.Rectangle) {
				if c.renderer != nil {
					c.renderer.Resize(b.Dx(), b.Dy())
				}
			}),
		)
	default:
		c.removers = append(c.removers,
			c.host.OnPointer(c.pointerHandler(c.host.Window)),
			c.host.OnWindowResize(func(w, h int) {
				if c.renderer != nil {
					c.renderer.Resize(w, h)
				}
			}),
		)
	}
}

func (c *Controller) pointerHandler(area func() image.Rectangle) func(x, y float64) {
	return func(clientX, clientY float64) {
		if c.renderer == nil {
			return
		}
		x, y, ok := core.NormalizePoint(clientX, clientY, area())
		if !ok {
			return
		}
		c.renderer.RecordPoint(x, y)
	}
}

func (c *Controller) removeListeners() {
	for _, remove := range c.removers {
		remove()
	}
	c.removers = nil
}

func (c *Controller) schedule() {
	c.frame = c.host.RequestFrame(c.onFrame)
	c.scheduled = true
}

func (c *Controller) onFrame(now time.Time) {
	c.scheduled = false
	if c.state != StateActive || c.renderer == nil {
		return
	}

	var dt time.Duration
	if c.hasLast {
		dt = now.Sub(c.lastFrame)
		if dt < 0 {
			dt = 0
		}
		if dt > c.opts.MaxFrameDelta {
			dt = c.opts.MaxFrameDelta
		}
	}
	c.lastFrame = now
	c.hasLast = true

	if err := c.renderer.RenderFrame(dt.Seconds()); err != nil {
		c.teardown()
		c.fail(err)
		return
	}
	c.schedule()
}

// SetParams applies new presentation parameters to the live session and to
// every later one.
func (c *Controller) SetParams(p core.FieldParams) {
	c.opts.Params = p
	if c.renderer != nil {
		c.renderer.SetParams(p)
	}
}

// SetScope switches the event scope of a live session. The trail restarts
// because positions normalized against the old area are meaningless.
func (c *Controller) SetScope(s Scope) {
	if s == c.opts.Scope {
		return
	}
	c.opts.Scope = s
	if c.state != StateActive || c.renderer == nil {
		return
	}

	c.removeListeners()
	c.renderer.Encoder().Reset()
	b := c.area()
	c.renderer.Resize(b.Dx(), b.Dy())
	c.attachListeners()
	c.log.Debug("scope changed", zap.Stringer("scope", s))
}

// teardown releases the live session: pending frame first, then listeners,
// then the renderer.
func (c *Controller) teardown() {
	if c.scheduled {
		c.host.CancelFrame(c.frame)
		c.scheduled = false
	}
	c.removeListeners()
	if c.renderer != nil {
		c.renderer.Dispose()
		c.renderer = nil
		c.opts.Metrics.SessionEnded()
	}
	c.hasLast = false
}

// Unmount cancels the pending frame, removes listeners, disposes the renderer
// and cancels an in-flight load, in that order. It is idempotent and the
// controller can be mounted again afterwards.
func (c *Controller) Unmount() {
	if c.state == StateUnmounted {
		return
	}
	c.teardown()
	if c.cancelLoad != nil {
		c.cancelLoad()
		c.cancelLoad = nil
	}
	c.generation++
	c.state = StateUnmounted
	c.log.Debug("unmounted")
}
