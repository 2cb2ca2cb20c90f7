package feed

import (
	"image"
	"math"
	"sync"
)

// Target is the host side of a Relay
type Target interface {
	// Post runs fn on the host thread
	Post(fn func())
	// Window is the local window client rectangle
	Window() image.Rectangle
	// MovePointer delivers a local client-space position to pointer listeners
	MovePointer(x, y float64)
}

// Relay is an EventSink that replays remote pointer motion on a local host.
// Positions are rescaled from the last size the remote page reported to the
// local window, so the remote page and the window share normalized
// coordinates.
type Relay struct {
	target Target

	mu     sync.Mutex
	remote image.Point
}

// NewRelay creates a relay into target
func NewRelay(target Target) *Relay {
	return &Relay{target: target}
}

func (r *Relay) PointerMoved(x, y float64) {
	r.mu.Lock()
	remote := r.remote
	r.mu.Unlock()

	r.target.Post(func() {
		local := r.target.Window().Size()
		lx, ly := ScalePoint(x, y, remote, local)
		if !finite(lx) || !finite(ly) {
			return
		}
		r.target.MovePointer(lx, ly)
	})
}

func (r *Relay) Resized(width, height int) {
	r.mu.Lock()
	r.remote = image.Pt(width, height)
	r.mu.Unlock()
}

// ScalePoint maps a position in a from-sized client area to a to-sized one.
// Until the remote size is known positions pass through unchanged.
func ScalePoint(x, y float64, from, to image.Point) (float64, float64) {
	if from.X <= 0 || from.Y <= 0 {
		return x, y
	}
	return x * float64(to.X) / float64(from.X), y * float64(to.Y) / float64(from.Y)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
