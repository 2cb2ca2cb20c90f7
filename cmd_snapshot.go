package main

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"time"

	"github.com/gogpu/gg"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"liquidfield/config"
	"liquidfield/host/headless"
	"liquidfield/mount"
	"liquidfield/rendering/software"
)

// Synthetic pointer paths
const (
	pathSweep  = "sweep"
	pathCircle = "circle"
	pathNone   = "none"
)

type snapshotOptions struct {
	Width, Height int
	Frames        int
	FPS           int
	Path          string
}

var snapOpts = snapshotOptions{Width: 640, Height: 360, Frames: 90, FPS: 60, Path: pathSweep}
var snapOut string

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Render frames headless and write the last one as PNG",
	Long: `Mounts the field on a headless host with the CPU backend, drives a
synthetic pointer along --path for --frames frames at a fixed --fps and writes
the final frame to --out.

Paths: sweep (left to right with a wave), circle, none.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		img, err := renderSnapshot(cmd.Context(), snapOpts, settings, logger)
		if err != nil {
			return err
		}
		if err := gg.FromImage(img).SavePNG(snapOut); err != nil {
			return fmt.Errorf("failed to write %s: %w", snapOut, err)
		}
		logger.Info("snapshot written", zap.String("path", snapOut), zap.Int("frames", snapOpts.Frames))
		return nil
	},
}

func init() {
	f := snapshotCmd.Flags()
	f.IntVar(&snapOpts.Width, "width", snapOpts.Width, "image width")
	f.IntVar(&snapOpts.Height, "height", snapOpts.Height, "image height")
	f.IntVar(&snapOpts.Frames, "frames", snapOpts.Frames, "frames to simulate")
	f.IntVar(&snapOpts.FPS, "fps", snapOpts.FPS, "simulated frame rate")
	f.StringVar(&snapOpts.Path, "path", snapOpts.Path, "pointer path: sweep, circle or none")
	f.StringVarP(&snapOut, "out", "o", "liquidfield.png", "output PNG")
}

// pointerPath returns the client-space pointer position at progress t in
// [0,1] along the named path.
func pointerPath(path string, t float64, width, height int) (x, y float64, ok bool) {
	w, h := float64(width), float64(height)
	switch path {
	case pathSweep:
		return (0.1 + 0.8*t) * w, (0.5 + 0.25*math.Sin(t*4*math.Pi)) * h, true
	case pathCircle:
		a := t * 2 * math.Pi
		r := 0.3 * math.Min(w, h)
		return w/2 + r*math.Cos(a), h/2 + r*math.Sin(a), true
	}
	return 0, 0, false
}

func renderSnapshot(ctx context.Context, o snapshotOptions, s *config.Settings, log *zap.Logger) (*image.RGBA, error) {
	if o.Width <= 0 || o.Height <= 0 {
		return nil, fmt.Errorf("snapshot: invalid size %dx%d", o.Width, o.Height)
	}
	if o.Frames < 1 || o.FPS < 1 {
		return nil, errors.New("snapshot: frames and fps must be positive")
	}
	if _, _, ok := pointerPath(o.Path, 0, 1, 1); !ok && o.Path != pathNone {
		return nil, fmt.Errorf("snapshot: unknown path %q", o.Path)
	}

	host := headless.New(o.Width, o.Height, image.Rect(0, 0, o.Width, o.Height))
	defer host.Close()

	opts := s.MountOptions()
	opts.Scope = mount.ScopeWindow
	opts.Logger = log
	ctrl := mount.NewController(host, softwareLoader(), opts)
	if err := ctrl.Mount(ctx); err != nil {
		return nil, err
	}
	defer ctrl.Unmount()

	if err := host.WaitPosted(ctx); err != nil {
		return nil, err
	}
	if ctrl.State() != mount.StateActive {
		return nil, fmt.Errorf("snapshot: field did not start (%s)", ctrl.State())
	}

	step := time.Second / time.Duration(o.FPS)
	start := time.Unix(0, 0)
	for i := 0; i < o.Frames; i++ {
		if x, y, ok := pointerPath(o.Path, float64(i)/float64(o.Frames), o.Width, o.Height); ok {
			host.MovePointer(x, y)
		}
		host.Step(start.Add(time.Duration(i) * step))
	}

	for _, d := range host.Attached() {
		if layer, ok := d.(*software.Layer); ok && layer.Frame() != nil {
			return layer.Frame(), nil
		}
	}
	return nil, errors.New("snapshot: no frame rendered")
}
