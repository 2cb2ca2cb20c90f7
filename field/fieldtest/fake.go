// Package fieldtest provides in-memory field backends and containers for
// tests.
package fieldtest

import (
	"errors"
	"image"
	"sync"

	"liquidfield/core"
	"liquidfield/field"
)

// Backend records every call made by a field.Renderer
type Backend struct {
	mu sync.Mutex

	InitErr error
	DrawErr error

	Inits     int
	Releases  int
	Draws     int
	Uploads   int
	Viewports []image.Rectangle

	// Trail version seen by the last Upload and Draw
	UploadedVersion uint64
	DrawnVersion    uint64
	LastFrame       field.Frame

	live bool
}

type drawable struct{ rect image.Rectangle }

func (d *drawable) Bounds() image.Rectangle { return d.rect }

func (b *Backend) Init(rect image.Rectangle, trailSize int) (field.Drawable, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Inits++
	if b.InitErr != nil {
		return nil, b.InitErr
	}
	if trailSize <= 0 {
		return nil, errors.New("fieldtest: bad trail size")
	}
	b.live = true
	b.Viewports = append(b.Viewports, rect)
	return &drawable{rect: rect}, nil
}

func (b *Backend) SetViewport(rect image.Rectangle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Viewports = append(b.Viewports, rect)
}

func (b *Backend) Upload(tex *core.TrailTexture) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if tex.Version() == b.UploadedVersion {
		return
	}
	b.Uploads++
	b.UploadedVersion = tex.Version()
}

func (b *Backend) Draw(f field.Frame) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.DrawErr != nil {
		return b.DrawErr
	}
	b.Draws++
	b.DrawnVersion = f.Uniforms.Trail.Version()
	b.LastFrame = f
	return nil
}

func (b *Backend) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.live {
		return
	}
	b.live = false
	b.Releases++
}

// Live reports whether Init succeeded and Release has not been called since
func (b *Backend) Live() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.live
}

// Container is a fixed-size container that tracks attached drawables
type Container struct {
	mu       sync.Mutex
	rect     image.Rectangle
	attached map[field.Drawable]bool
}

// NewContainer creates a container with the given client-space bounds
func NewContainer(rect image.Rectangle) *Container {
	return &Container{rect: rect, attached: make(map[field.Drawable]bool)}
}

func (c *Container) Bounds() image.Rectangle {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rect
}

// SetBounds changes the container rectangle
func (c *Container) SetBounds(rect image.Rectangle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rect = rect
}

func (c *Container) Attach(d field.Drawable) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attached[d] = true
}

func (c *Container) Detach(d field.Drawable) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.attached, d)
}

// Attached returns the number of drawables currently attached
func (c *Container) Attached() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.attached)
}
