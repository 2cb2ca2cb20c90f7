//go:build raylib

package raylib

import (
	"context"
	"image"
	"sort"
	"sync"
	"time"

	rl "github.com/gen2brain/raylib-go/raylib"
	"go.uber.org/zap"

	"liquidfield/core"
	"liquidfield/field"
	"liquidfield/mount"
)

// Options configures a Host
type Options struct {
	Width, Height int
	Title         string
	TargetFPS     int32
	Background    core.RGB
	Logger        *zap.Logger
}

// Host is a raylib window implementing mount.Host. The goroutine that calls
// NewHost is the host thread.
type Host struct {
	log  *zap.Logger
	opts Options

	mu     sync.Mutex
	posted []func()
	closed bool

	// Host thread only below
	ready     bool
	pointer   rl.Vector2
	nextFrame mount.FrameID
	frames    map[mount.FrameID]mount.FrameFunc
	nextSub   int
	pointers  map[int]func(x, y float64)
	resizes   map[int]func(w, h int)
	observers map[int]func(image.Rectangle)
	attached  []field.Drawable
	fallback  *core.RGB
}

// NewHost opens the window
func NewHost(opts Options) *Host {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Title == "" {
		opts.Title = "liquidfield"
	}
	if opts.TargetFPS <= 0 {
		opts.TargetFPS = 60
	}

	rl.SetConfigFlags(rl.FlagWindowResizable | rl.FlagVsyncHint)
	rl.InitWindow(int32(opts.Width), int32(opts.Height), opts.Title)
	rl.SetTargetFPS(opts.TargetFPS)

	return &Host{
		log:       log.Named("raylib"),
		opts:      opts,
		ready:     rl.IsWindowReady(),
		frames:    make(map[mount.FrameID]mount.FrameFunc),
		pointers:  make(map[int]func(x, y float64)),
		resizes:   make(map[int]func(w, h int)),
		observers: make(map[int]func(image.Rectangle)),
	}
}

// Loader hands out a raylib backend, or reports the backend unavailable when
// the window never came up
func (h *Host) Loader() mount.Loader {
	ready := h.ready
	return mount.LoaderFunc(func(ctx context.Context) (field.Backend, error) {
		if !ready {
			return nil, field.ErrBackendUnavailable
		}
		return NewBackend(h.log), nil
	})
}

func (h *Host) Window() image.Rectangle {
	return image.Rect(0, 0, rl.GetScreenWidth(), rl.GetScreenHeight())
}

func (h *Host) Bounds() image.Rectangle {
	return h.Window()
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

func (h *Host) Post(fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.closed {
		h.posted = append(h.posted, fn)
	}
}

func (h *Host) OnPointer(fn func(x, y float64)) func() {
	h.nextSub++
	id := h.nextSub
	h.pointers[id] = fn
	return func() { delete(h.pointers, id) }
}

func (h *Host) OnWindowResize(fn func(w, h int)) func() {
	h.nextSub++
	id := h.nextSub
	h.resizes[id] = fn
	return func() { delete(h.resizes, id) }
}

func (h *Host) ObserveContainer(fn func(image.Rectangle)) func() {
	h.nextSub++
	id := h.nextSub
	h.observers[id] = fn
	return func() { delete(h.observers, id) }
}

// Run drives the raylib loop until the window closes or ctx is canceled
func (h *Host) Run(ctx context.Context) error {
	for !rl.WindowShouldClose() && ctx.Err() == nil {
		h.drain()
		h.pollPointer()
		if rl.IsWindowResized() {
			h.notifyResize()
		}

		bg := h.opts.Background
		if h.fallback != nil {
			bg = *h.fallback
		}
		rl.BeginDrawing()
		rl.ClearBackground(rl.NewColor(channel(bg[0]), channel(bg[1]), channel(bg[2]), 255))
		h.runFrames(time.Now())
		rl.EndDrawing()
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

func (h *Host) pollPointer() {
	p := rl.GetMousePosition()
	if p == h.pointer {
		return
	}
	h.pointer = p
	for _, fn := range h.pointers {
		fn(float64(p.X), float64(p.Y))
	}
}

func (h *Host) notifyResize() {
	win := h.Window()
	for _, fn := range h.resizes {
		fn(win.Dx(), win.Dy())
	}
	for _, fn := range h.observers {
		fn(win)
	}
}

func (h *Host) runFrames(now time.Time) {
	ids := make([]mount.FrameID, 0, len(h.frames))
	for id := range h.frames {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		if fn, ok := h.frames[id]; ok {
			delete(h.frames, id)
			fn(now)
		}
	}
}

func channel(v float32) uint8 {
	return uint8(min(max(v, 0), 1)*255 + 0.5)
}

// Close drops later posts and closes the window
func (h *Host) Close() {
	h.mu.Lock()
	h.closed = true
	h.posted = nil
	h.mu.Unlock()
	rl.CloseWindow()
}

var _ mount.Host = (*Host)(nil)
