// Command trailprobe feeds a scripted pointer path to a trail encoder and
// prints the live impulses after every frame.
package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/gogpu/gg"
	"github.com/spf13/cobra"

	"liquidfield/core"
)

type probeOptions struct {
	Points      string
	Frames      int
	TextureSize int
	MaxAge      int
	PNG         string
}

var opts = probeOptions{
	Points:      "0.2,0.5 0.3,0.5 0.4,0.52 0.5,0.55",
	Frames:      6,
	TextureSize: core.DefaultTextureSize,
	MaxAge:      core.DefaultMaxAge,
}

var rootCmd = &cobra.Command{
	Use:   "trailprobe",
	Short: "Print the impulse table for a scripted pointer path",
	Long: `Records every point of --points (space separated x,y pairs in normalized
coordinates, y up) before the first frame, then advances the trail --frames
times and prints position, direction, force, age and envelope of each live
impulse. With --png the final trail raster is written as an image.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return probe(cmd.OutOrStdout(), opts)
	},
}

func init() {
	f := rootCmd.Flags()
	f.StringVar(&opts.Points, "points", opts.Points, "pointer path")
	f.IntVar(&opts.Frames, "frames", opts.Frames, "frames to advance")
	f.IntVar(&opts.TextureSize, "texture-size", opts.TextureSize, "trail raster side in texels")
	f.IntVar(&opts.MaxAge, "max-age", opts.MaxAge, "frames an impulse lives")
	f.StringVar(&opts.PNG, "png", "", "write the final trail raster to this file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func parsePoints(s string) ([]core.Vec2, error) {
	var points []core.Vec2
	for _, field := range strings.Fields(s) {
		xs, ys, ok := strings.Cut(field, ",")
		if !ok {
			return nil, fmt.Errorf("point %q: want x,y", field)
		}
		x, err := strconv.ParseFloat(xs, 64)
		if err != nil {
			return nil, fmt.Errorf("point %q: %w", field, err)
		}
		y, err := strconv.ParseFloat(ys, 64)
		if err != nil {
			return nil, fmt.Errorf("point %q: %w", field, err)
		}
		points = append(points, core.Vec2{X: x, Y: y})
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("no points given")
	}
	return points, nil
}

func probe(w io.Writer, o probeOptions) error {
	points, err := parsePoints(o.Points)
	if err != nil {
		return err
	}
	enc := core.NewTrailEncoder(core.TrailOptions{TextureSize: o.TextureSize, MaxAge: o.MaxAge})
	for _, p := range points {
		enc.RecordPoint(p.X, p.Y)
	}
	fmt.Fprintf(w, "=== Trail probe: %d points, %d impulses recorded ===\n", len(points), enc.Len())

	for frame := 1; frame <= o.Frames; frame++ {
		enc.AdvanceFrame()
		fmt.Fprintf(w, "\nFrame %d: %d live, texture version %d\n", frame, enc.Len(), enc.Texture().Version())

		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "#\tx\ty\tdx\tdy\tforce\tage\tenvelope")
		for i, imp := range enc.Impulses() {
			fmt.Fprintf(tw, "%d\t%.4f\t%.4f\t%.3f\t%.3f\t%.4f\t%d\t%.4f\n",
				i, imp.Position.X, imp.Position.Y, imp.Direction.X, imp.Direction.Y,
				imp.Force, imp.Age, core.Envelope(imp.Age, o.MaxAge))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	if o.PNG != "" {
		if err := gg.FromImage(enc.Texture().Image()).SavePNG(o.PNG); err != nil {
			return fmt.Errorf("failed to write %s: %w", o.PNG, err)
		}
		fmt.Fprintf(w, "\nTrail raster written to %s\n", o.PNG)
	}
	return nil
}
