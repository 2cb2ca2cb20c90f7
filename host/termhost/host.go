// Package termhost presents a liquid field in a terminal. Every cell shows two
// vertically stacked pixels with the upper half block glyph, so a terminal of
// C columns and R rows is a C x 2R pixel window. Drawables are expected to
// expose their last frame as an image, as the software backend does.
package termhost

import (
	"context"
	"image"
	"image/color"
	"sort"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"go.uber.org/zap"

	"liquidfield/core"
	"liquidfield/field"
	"liquidfield/mount"
)

// DefaultFrameInterval paces frames; terminals rarely keep up with more
const DefaultFrameInterval = 33 * time.Millisecond

const halfBlock = '▀'

// Options configures a Host
type Options struct {
	FrameInterval time.Duration
	Logger        *zap.Logger
}

// framer is implemented by drawables that keep their last frame in memory
type framer interface {
	Frame() *image.RGBA
}

// Host is a tcell screen implementing mount.Host
type Host struct {
	screen tcell.Screen
	log    *zap.Logger
	opts   Options

	mu     sync.Mutex
	posted []func()
	closed bool
	wake   chan struct{}

	// Host thread only below
	cols, rows int
	nextFrame  mount.FrameID
	frames     map[mount.FrameID]mount.FrameFunc
	nextSub    int
	pointer    map[int]func(x, y float64)
	resize     map[int]func(w, h int)
	observers  map[int]func(image.Rectangle)
	attached   []field.Drawable
	fallback   *core.RGB
}

// New initializes the controlling terminal
func New(opts Options) (*Host, error) {
	screen, err := tcell.NewScreen()
	if err != nil {
		return nil, err
	}
	return NewWithScreen(screen, opts)
}

// NewWithScreen initializes screen and wraps it
func NewWithScreen(screen tcell.Screen, opts Options) (*Host, error) {
	if err := screen.Init(); err != nil {
		return nil, err
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if opts.FrameInterval <= 0 {
		opts.FrameInterval = DefaultFrameInterval
	}

	screen.EnableMouse(tcell.MouseMotionEvents)
	screen.HideCursor()
	screen.Clear()

	h := &Host{
		screen:    screen,
		log:       log.Named("term"),
		opts:      opts,
		wake:      make(chan struct{}, 1),
		frames:    make(map[mount.FrameID]mount.FrameFunc),
		pointer:   make(map[int]func(x, y float64)),
		resize:    make(map[int]func(w, h int)),
		observers: make(map[int]func(image.Rectangle)),
	}
	h.cols, h.rows = screen.Size()
	return h, nil
}

func (h *Host) Window() image.Rectangle {
	return image.Rect(0, 0, h.cols, h.rows*2)
}

// Bounds is the whole terminal; it has no inner container
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
	if h.closed {
		return
	}
	h.posted = append(h.posted, fn)
	select {
	case h.wake <- struct{}{}:
	default:
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

// MovePointer delivers a pixel-space position to pointer listeners. Host
// thread only.
func (h *Host) MovePointer(x, y float64) {
	for _, id := range sortedIDs(h.pointer) {
		if fn, ok := h.pointer[id]; ok {
			fn(x, y)
		}
	}
}

// Run processes terminal events and frames until ctx is canceled or the user
// quits with Esc, q or Ctrl-C.
func (h *Host) Run(ctx context.Context) error {
	events := make(chan tcell.Event, 32)
	quit := make(chan struct{})
	go h.screen.ChannelEvents(events, quit)
	defer close(quit)

	ticker := time.NewTicker(h.opts.FrameInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if !h.handleEvent(ev) {
				return nil
			}
		case <-h.wake:
			h.drain()
		case now := <-ticker.C:
			h.drain()
			h.tick(now)
		}
	}
}

// handleEvent reports false when the user asked to quit
func (h *Host) handleEvent(ev tcell.Event) bool {
	switch ev := ev.(type) {
	case *tcell.EventKey:
		switch ev.Key() {
		case tcell.KeyEscape, tcell.KeyCtrlC:
			return false
		case tcell.KeyRune:
			if ev.Rune() == 'q' {
				return false
			}
		}
	case *tcell.EventMouse:
		col, row := ev.Position()
		h.MovePointer(float64(col)+0.5, float64(row)*2+1)
	case *tcell.EventResize:
		h.screen.Sync()
		h.onResize(ev.Size())
	}
	return true
}

func (h *Host) onResize(cols, rows int) {
	if cols == h.cols && rows == h.rows {
		return
	}
	h.cols, h.rows = cols, rows
	win := h.Window()
	for _, id := range sortedIDs(h.resize) {
		if fn, ok := h.resize[id]; ok {
			fn(win.Dx(), win.Dy())
		}
	}
	for _, id := range sortedIDs(h.observers) {
		if fn, ok := h.observers[id]; ok {
			fn(win)
		}
	}
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

func (h *Host) tick(now time.Time) {
	ran := false
	for _, id := range sortedIDs(h.frames) {
		fn, ok := h.frames[id]
		if !ok {
			continue
		}
		delete(h.frames, id)
		fn(now)
		ran = true
	}
	if ran || h.fallback != nil {
		h.present()
	}
}

// present copies the attached frames, or the fallback color, to the screen
func (h *Host) present() {
	if h.fallback != nil {
		fill(h.screen, h.cols, h.rows, rgbColor(*h.fallback))
		h.screen.Show()
		return
	}
	for _, d := range h.attached {
		f, ok := d.(framer)
		if !ok {
			continue
		}
		if img := f.Frame(); img != nil {
			blit(h.screen, img, d.Bounds().Min)
		}
	}
	h.screen.Show()
}

// blit draws img with its top-left pixel at the pixel position at. Pixel rows
// pair up into cells; an odd leading row starts in a lower half.
func blit(screen tcell.Screen, img *image.RGBA, at image.Point) {
	cols, rows := screen.Size()
	b := img.Bounds()
	for row := max(at.Y/2, 0); row < rows; row++ {
		topY, botY := row*2-at.Y, row*2+1-at.Y
		if topY >= b.Dy() {
			break
		}
		for col := max(at.X, 0); col < cols; col++ {
			x := col - at.X
			if x >= b.Dx() {
				break
			}
			top, hasTop := pixel(img, x, topY)
			bot, hasBot := pixel(img, x, botY)
			if !hasTop && !hasBot {
				continue
			}
			if !hasTop {
				top = bot
			}
			if !hasBot {
				bot = top
			}
			style := tcell.StyleDefault.Foreground(top).Background(bot)
			screen.SetContent(col, row, halfBlock, nil, style)
		}
	}
}

func pixel(img *image.RGBA, x, y int) (tcell.Color, bool) {
	b := img.Bounds()
	if y < 0 || y >= b.Dy() {
		return tcell.ColorDefault, false
	}
	c := img.RGBAAt(b.Min.X+x, b.Min.Y+y)
	return toColor(c), true
}

func toColor(c color.RGBA) tcell.Color {
	return tcell.NewRGBColor(int32(c.R), int32(c.G), int32(c.B))
}

func rgbColor(c core.RGB) tcell.Color {
	return tcell.NewRGBColor(int32(c[0]*255+0.5), int32(c[1]*255+0.5), int32(c[2]*255+0.5))
}

func fill(screen tcell.Screen, cols, rows int, c tcell.Color) {
	style := tcell.StyleDefault.Background(c)
	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			screen.SetContent(col, row, ' ', nil, style)
		}
	}
}

func sortedIDs[K ~int | ~uint64, V any](m map[K]V) []K {
	ids := make([]K, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Close restores the terminal and drops later posts
func (h *Host) Close() {
	h.mu.Lock()
	h.closed = true
	h.posted = nil
	h.mu.Unlock()
	h.screen.Fini()
}

var _ mount.Host = (*Host)(nil)
