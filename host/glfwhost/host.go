// Package glfwhost runs a liquid field in a native window. The window owns
// an OpenGL 4.1 core context; the goroutine that calls New becomes the host
// thread and must stay locked to its OS thread.
package glfwhost

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sort"
	"sync"
	"time"

	"github.com/go-gl/gl/v4.1-core/gl"
	"github.com/go-gl/glfw/v3.3/glfw"
	"go.uber.org/zap"

	"liquidfield/core"
	"liquidfield/field"
	"liquidfield/mount"
	"liquidfield/rendering/opengl"
)

// ErrClosed is returned by Do once the host loop has stopped
var ErrClosed = errors.New("glfwhost: host closed")

var errGLUnavailable = errors.New("glfwhost: OpenGL failed to load earlier")

// idleWait bounds how long the loop sleeps in WaitEvents when nothing is
// animating
const idleWait = 100 * time.Millisecond

// Options configures a Host
type Options struct {
	Width, Height int
	Title         string
	// ContainerInset shrinks the container on every side of the window
	ContainerInset int
	// Background fills the framebuffer outside the container
	Background core.RGB
	Logger     *zap.Logger
}

// Host is a GLFW window implementing mount.Host and opengl.Surface
type Host struct {
	window *glfw.Window
	log    *zap.Logger
	opts   Options

	mu     sync.Mutex
	posted []func()
	closed bool

	// Host thread only below
	nextFrame mount.FrameID
	frames    map[mount.FrameID]mount.FrameFunc
	nextSub   int
	pointer   map[int]func(x, y float64)
	resize    map[int]func(w, h int)
	observers map[int]func(image.Rectangle)
	attached  []field.Drawable
	fallback  *core.RGB
	glStatus  glState
}

type glState int

const (
	glUnloaded glState = iota
	glReady
	glFailed
)

// New opens the window and makes its context current on the calling thread
func New(opts Options) (*Host, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Title == "" {
		opts.Title = "liquidfield"
	}

	if err := glfw.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize glfw: %w", err)
	}

	glfw.WindowHint(glfw.Resizable, glfw.True)
	glfw.WindowHint(glfw.ContextVersionMajor, 4)
	glfw.WindowHint(glfw.ContextVersionMinor, 1)
	glfw.WindowHint(glfw.OpenGLProfile, glfw.OpenGLCoreProfile)
	glfw.WindowHint(glfw.OpenGLForwardCompatible, glfw.True)

	window, err := glfw.CreateWindow(opts.Width, opts.Height, opts.Title, nil, nil)
	if err != nil {
		glfw.Terminate()
		return nil, fmt.Errorf("failed to create window: %w", err)
	}
	window.MakeContextCurrent()
	glfw.SwapInterval(1)

	h := &Host{
		window:    window,
		log:       log.Named("glfw"),
		opts:      opts,
		frames:    make(map[mount.FrameID]mount.FrameFunc),
		pointer:   make(map[int]func(x, y float64)),
		resize:    make(map[int]func(w, h int)),
		observers: make(map[int]func(image.Rectangle)),
	}

	window.SetCursorPosCallback(func(w *glfw.Window, xpos, ypos float64) {
		h.MovePointer(xpos, ypos)
	})
	window.SetSizeCallback(func(w *glfw.Window, width, height int) {
		h.onResize(width, height)
	})
	window.SetKeyCallback(func(w *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
		if key == glfw.KeyEscape && action == glfw.Press {
			w.SetShouldClose(true)
		}
	})
	return h, nil
}

// WindowSize is the client size in screen units
func (h *Host) WindowSize() (int, int) {
	return h.window.GetSize()
}

// FramebufferSize is the client size in pixels
func (h *Host) FramebufferSize() (int, int) {
	return h.window.GetFramebufferSize()
}

func (h *Host) Window() image.Rectangle {
	w, ht := h.WindowSize()
	return image.Rect(0, 0, w, ht)
}

func (h *Host) Bounds() image.Rectangle {
	return insetRect(h.Window(), h.opts.ContainerInset)
}

func (h *Host) Attach(d field.Drawable) {
	h.attached = append(h.attached, d)
	h.fallback = nil
}

func (h *Host) Detach(d field.Drawable) {
	for i, a := range h.attached {
		if a == d {
			h.attached = append(h.attached[:i], h.attached[i+1:]...)
			return
		}
	}
}

func (h *Host) ShowFallback(c core.RGB) {
	h.fallback = &c
}

func (h *Host) RequestFrame(fn mount.FrameFunc) mount.FrameID {
	h.nextFrame++
	h.frames[h.nextFrame] = fn
	return h.nextFrame
}

func (h *Host) CancelFrame(id mount.FrameID) {
	delete(h.frames, id)
}

// Post queues fn for the host thread and wakes the event loop
func (h *Host) Post(fn func()) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.posted = append(h.posted, fn)
	glfw.PostEmptyEvent()
	h.mu.Unlock()
}

// Do runs fn on the host thread and waits for it. It must not be called from
// the host thread itself.
func (h *Host) Do(ctx context.Context, fn func() error) error {
	done := make(chan error, 1)
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrClosed
	}
	h.posted = append(h.posted, func() { done <- fn() })
	glfw.PostEmptyEvent()
	h.mu.Unlock()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Host) OnPointer(fn func(x, y float64)) func() {
	id := h.subscribe()
	h.pointer[id] = fn
	return func() { delete(h.pointer, id) }
}

func (h *Host) OnWindowResize(fn func(w, h int)) func() {
	id := h.subscribe()
	h.resize[id] = fn
	return func() { delete(h.resize, id) }
}

func (h *Host) ObserveContainer(fn func(image.Rectangle)) func() {
	id := h.subscribe()
	h.observers[id] = fn
	return func() { delete(h.observers, id) }
}

func (h *Host) subscribe() int {
	h.nextSub++
	return h.nextSub
}

// MovePointer delivers a client-space position to pointer listeners. Host
// thread only.
func (h *Host) MovePointer(x, y float64) {
	for _, fn := range snapshot(h.pointer) {
		fn(x, y)
	}
}

func (h *Host) onResize(width, height int) {
	for _, fn := range snapshot(h.resize) {
		fn(width, height)
	}
	bounds := h.Bounds()
	for _, fn := range snapshot(h.observers) {
		fn(bounds)
	}
}

// snapshot copies listeners in registration order so a callback may remove
// itself
func snapshot[F any](m map[int]F) []F {
	ids := make([]int, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]F, 0, len(ids))
	for _, id := range ids {
		fns = append(fns, m[id])
	}
	return fns
}

// Loader probes the context on the host thread and hands out a GL backend
func (h *Host) Loader(opts opengl.Options) mount.Loader {
	return mount.LoaderFunc(func(ctx context.Context) (field.Backend, error) {
		var version string
		err := h.Do(ctx, func() error {
			if err := h.loadGL(gl.Init); err != nil {
				return fmt.Errorf("%w: %v", field.ErrBackendUnavailable, err)
			}
			v, err := opengl.Probe()
			version = v
			return err
		})
		if err != nil {
			return nil, err
		}
		h.log.Info("OpenGL context ready", zap.String("version", version))
		return opengl.NewBackend(h, opts), nil
	})
}

// Run drives the event loop until the window closes or ctx is canceled
func (h *Host) Run(ctx context.Context) error {
	for !h.window.ShouldClose() {
		if ctx.Err() != nil {
			return nil
		}

		if len(h.frames) > 0 {
			glfw.PollEvents()
		} else {
			glfw.WaitEventsTimeout(idleWait.Seconds())
		}
		h.drain()

		if len(h.frames) > 0 {
			h.clear(h.opts.Background)
			h.runFrames(time.Now())
			h.window.SwapBuffers()
		} else if h.fallback != nil && h.clear(*h.fallback) {
			h.window.SwapBuffers()
		}
	}
	return nil
}

func (h *Host) drain() {
	h.mu.Lock()
	fns := h.posted
	h.posted = nil
	h.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (h *Host) runFrames(now time.Time) {
	ids := make([]mount.FrameID, 0, len(h.frames))
	for id := range h.frames {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		fn, ok := h.frames[id]
		if !ok {
			continue
		}
		delete(h.frames, id)
		fn(now)
	}
}

// loadGL resolves the GL entry points once. A failed load is remembered and
// never retried.
func (h *Host) loadGL(load func() error) error {
	switch h.glStatus {
	case glReady:
		return nil
	case glFailed:
		return errGLUnavailable
	}
	if err := load(); err != nil {
		h.glStatus = glFailed
		h.log.Warn("OpenGL entry points unavailable", zap.Error(err))
		return err
	}
	h.glStatus = glReady
	return nil
}

// clear fills the whole framebuffer and reports whether it did. Without GL
// entry points the window keeps its default contents.
func (h *Host) clear(c core.RGB) bool {
	if h.loadGL(gl.Init) != nil {
		return false
	}
	fw, fh := h.FramebufferSize()
	gl.Viewport(0, 0, int32(fw), int32(fh))
	gl.ClearColor(c[0], c[1], c[2], 1)
	gl.Clear(gl.COLOR_BUFFER_BIT)
	return true
}

// Close drops queued and later posts and destroys the window. Pending Do
// calls return when their context ends.
// Host thread only.
func (h *Host) Close() {
	h.mu.Lock()
	h.closed = true
	h.posted = nil
	h.mu.Unlock()
	h.window.Destroy()
	glfw.Terminate()
}

var (
	_ mount.Host     = (*Host)(nil)
	_ opengl.Surface = (*Host)(nil)
)
