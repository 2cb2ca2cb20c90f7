package mount

import (
	"context"
	"image"
	"time"

	"liquidfield/core"
	"liquidfield/field"
)

// FrameID identifies a scheduled frame callback
type FrameID uint64

// FrameFunc receives the timestamp of the frame it was scheduled for
type FrameFunc func(now time.Time)

// Scheduler runs callbacks on the host thread
type Scheduler interface {
	// RequestFrame schedules fn once, before the next presentation
	RequestFrame(fn FrameFunc) FrameID
	// CancelFrame drops a pending callback; unknown ids are ignored
	CancelFrame(id FrameID)
	// Post queues fn to run on the host thread. It is safe to call from any
	// goroutine and never blocks; after the host shut down fn is dropped.
	Post(fn func())
}

// Events is the pointer and resize source of a host. Every registration
// returns a function that removes it.
type Events interface {
	// OnPointer delivers pointer positions in window client space
	OnPointer(fn func(x, y float64)) (remove func())
	// OnWindowResize delivers the new window client size
	OnWindowResize(fn func(width, height int)) (remove func())
	// ObserveContainer delivers the container rectangle whenever it changes
	ObserveContainer(fn func(bounds image.Rectangle)) (remove func())
}

// Host is the environment a background is mounted into
type Host interface {
	field.Container
	Scheduler
	Events

	// Window is the client rectangle of the whole window, origin at 0,0
	Window() image.Rectangle
	// ShowFallback paints the container with a flat color while no drawable
	// is attached
	ShowFallback(c core.RGB)
}

// Loader acquires a rendering backend. It runs off the host thread and must
// return promptly once ctx is canceled.
type Loader interface {
	Load(ctx context.Context) (field.Backend, error)
}

// LoaderFunc adapts a function to Loader
type LoaderFunc func(ctx context.Context) (field.Backend, error)

func (f LoaderFunc) Load(ctx context.Context) (field.Backend, error) {
	return f(ctx)
}

// scopedContainer attaches to the host container but reports the area of the
// controller's current scope, so a scope switch moves the viewport too.
type scopedContainer struct {
	c *Controller
}

func (s scopedContainer) Bounds() image.Rectangle {
	return s.c.area()
}

func (s scopedContainer) Attach(d field.Drawable) {
	s.c.host.Attach(d)
}

func (s scopedContainer) Detach(d field.Drawable) {
	s.c.host.Detach(d)
}
