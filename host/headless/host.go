// Package headless is a mount.Host without a window. The caller acts as the
// host thread: it injects events and advances frames explicitly. It backs
// the snapshot command and controller tests.
package headless

import (
	"context"
	"image"
	"sort"
	"sync"
	"time"

	"liquidfield/core"
	"liquidfield/field"
	"liquidfield/mount"
)

// Host is a manually driven host
type Host struct {
	mu        sync.Mutex
	window    image.Rectangle
	container image.Rectangle

	posted chan func()
	closed bool

	nextFrame mount.FrameID
	frames    map[mount.FrameID]mount.FrameFunc

	nextSub   int
	pointer   map[int]func(x, y float64)
	resize    map[int]func(w, h int)
	observers map[int]func(image.Rectangle)

	attached []field.Drawable
	fallback *core.RGB
}

// New creates a host with a window of the given size and a container
// rectangle inside it.
func New(width, height int, container image.Rectangle) *Host {
	return &Host{
		window:    image.Rect(0, 0, width, height),
		container: container,
		posted:    make(chan func(), 64),
		frames:    make(map[mount.FrameID]mount.FrameFunc),
		pointer:   make(map[int]func(x, y float64)),
		resize:    make(map[int]func(w, h int)),
		observers: make(map[int]func(image.Rectangle)),
	}
}

func (h *Host) Bounds() image.Rectangle {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.container
}

func (h *Host) Window() image.Rectangle {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.window
}

func (h *Host) Attach(d field.Drawable) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.attached = append(h.attached, d)
	h.fallback = nil
}

func (h *Host) Detach(d field.Drawable) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, a := range h.attached {
		if a == d {
			h.attached = append(h.attached[:i], h.attached[i+1:]...)
			return
		}
	}
}

func (h *Host) ShowFallback(c core.RGB) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.fallback = &c
}

func (h *Host) RequestFrame(fn mount.FrameFunc) mount.FrameID {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextFrame++
	h.frames[h.nextFrame] = fn
	return h.nextFrame
}

func (h *Host) CancelFrame(id mount.FrameID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.frames, id)
}

// Post queues fn. A full queue or a closed host drops it.
func (h *Host) Post(fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	select {
	case h.posted <- fn:
	default:
	}
}

func (h *Host) OnPointer(fn func(x, y float64)) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.subscribe()
	h.pointer[id] = fn
	return h.remover(func() { delete(h.pointer, id) })
}

func (h *Host) OnWindowResize(fn func(w, h int)) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.subscribe()
	h.resize[id] = fn
	return h.remover(func() { delete(h.resize, id) })
}

func (h *Host) ObserveContainer(fn func(image.Rectangle)) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.subscribe()
	h.observers[id] = fn
	return h.remover(func() { delete(h.observers, id) })
}

func (h *Host) subscribe() int {
	h.nextSub++
	return h.nextSub
}

func (h *Host) remover(del func()) func() {
	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		del()
	}
}

// Drain runs every queued post and returns how many ran
func (h *Host) Drain() int {
	n := 0
	for {
		select {
		case fn := <-h.posted:
			fn()
			n++
		default:
			return n
		}
	}
}

// WaitPosted blocks until a post arrives, runs it and drains the rest
func (h *Host) WaitPosted(ctx context.Context) error {
	select {
	case fn := <-h.posted:
		fn()
		h.Drain()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Step drains posts and runs the frames pending at call time, oldest first.
// Frames requested while stepping run on the next Step.
func (h *Host) Step(now time.Time) int {
	h.Drain()

	h.mu.Lock()
	ids := make([]mount.FrameID, 0, len(h.frames))
	for id := range h.frames {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	h.mu.Unlock()

	ran := 0
	for _, id := range ids {
		h.mu.Lock()
		fn, ok := h.frames[id]
		delete(h.frames, id)
		h.mu.Unlock()
		if ok {
			fn(now)
			ran++
		}
	}
	return ran
}

// MovePointer delivers a client-space pointer position to every listener
func (h *Host) MovePointer(x, y float64) {
	h.mu.Lock()
	fns := make([]func(x, y float64), 0, len(h.pointer))
	for _, fn := range h.pointer {
		fns = append(fns, fn)
	}
	h.mu.Unlock()
	for _, fn := range fns {
		fn(x, y)
	}
}

// ResizeWindow changes the window size and notifies resize listeners
func (h *Host) ResizeWindow(width, height int) {
	h.mu.Lock()
	h.window = image.Rect(0, 0, width, height)
	fns := make([]func(w, h int), 0, len(h.resize))
	for _, fn := range h.resize {
		fns = append(fns, fn)
	}
	h.mu.Unlock()
	for _, fn := range fns {
		fn(width, height)
	}
}

// SetContainer moves or resizes the container and notifies observers
func (h *Host) SetContainer(r image.Rectangle) {
	h.mu.Lock()
	h.container = r
	fns := make([]func(image.Rectangle), 0, len(h.observers))
	for _, fn := range h.observers {
		fns = append(fns, fn)
	}
	h.mu.Unlock()
	for _, fn := range fns {
		fn(r)
	}
}

// Listeners returns the number of registered event listeners
func (h *Host) Listeners() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.pointer) + len(h.resize) + len(h.observers)
}

// PendingFrames returns the number of scheduled frame callbacks
func (h *Host) PendingFrames() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.frames)
}

// Attached returns the drawables currently attached to the container
func (h *Host) Attached() []field.Drawable {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]field.Drawable(nil), h.attached...)
}

// Fallback returns the fallback color and whether it is showing
func (h *Host) Fallback() (core.RGB, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.fallback == nil {
		return core.RGB{}, false
	}
	return *h.fallback, true
}

// Close drops every later post
func (h *Host) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
}

var _ mount.Host = (*Host)(nil)
