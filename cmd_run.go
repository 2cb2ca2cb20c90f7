//go:build !raylib

package main

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"liquidfield/config"
	"liquidfield/feed"
	"liquidfield/host/glfwhost"
	"liquidfield/logging"
	"liquidfield/metrics"
	"liquidfield/mount"
	"liquidfield/rendering/opengl"
)

// feedFromSettings is the value --feed takes without an argument
const feedFromSettings = "settings"

const feedShutdownTimeout = 2 * time.Second

var runFeed string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Open a window with the field",
	Long: `Opens a native window with an OpenGL 4.1 context and mounts the field in it.

With --feed the process also serves a websocket pointer feed on /ws and
Prometheus metrics on /metrics, so a remote page can drive the pointer. Edits
to the settings file are applied while running.`,
	Args: cobra.NoArgs,
	RunE: runWindow,
}

func init() {
	runCmd.Flags().StringVar(&runFeed, "feed", "", "serve the pointer feed on this address (bare flag: feed.addr)")
	runCmd.Flags().Lookup("feed").NoOptDefVal = feedFromSettings
	rootCmd.AddCommand(runCmd)
}

func runWindow(cmd *cobra.Command, args []string) error {
	s := settings
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	host, err := glfwhost.New(glfwhost.Options{
		Width:          s.Host.Width,
		Height:         s.Host.Height,
		Title:          s.Host.Title,
		ContainerInset: s.Host.ContainerInset,
		Background:     s.FieldParams().DarkBase,
		Logger:         logger,
	})
	if err != nil {
		return err
	}
	defer host.Close()

	opts := s.MountOptions()
	opts.Logger = logger
	opts.Metrics = m
	loader := host.Loader(opengl.Options{Logger: logger, DebugOverlay: s.Host.DebugOverlay})
	ctrl := mount.NewController(host, loader, opts)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := config.Watch(gctx, configPath, logger, func(next *config.Settings) {
			if lvl, err := logging.ParseLevel(next.Logging.Level); err == nil && !verbose {
				logLevel.SetLevel(lvl)
			}
			host.Post(func() {
				ctrl.SetParams(next.FieldParams())
				ctrl.SetScope(next.Scope())
			})
		})
		if err != nil {
			logger.Warn("live settings reload disabled", zap.Error(err))
		}
		return nil
	})

	if runFeed != "" {
		addr := runFeed
		if addr == feedFromSettings {
			addr = s.Feed.Addr
		}
		srv := feed.NewServer(feed.NewRelay(host), feed.Options{
			Addr:           addr,
			AllowedOrigins: s.Feed.AllowedOrigins,
			Gatherer:       reg,
			Logger:         logger,
		})
		g.Go(srv.ListenAndServe)
		g.Go(func() error {
			<-gctx.Done()
			sctx, scancel := context.WithTimeout(context.Background(), feedShutdownTimeout)
			defer scancel()
			return srv.Shutdown(sctx)
		})
	}

	if err := ctrl.Mount(gctx); err != nil {
		return err
	}
	logger.Info("field mounted",
		zap.String("scope", opts.Scope.String()),
		zap.Int("width", s.Host.Width),
		zap.Int("height", s.Host.Height))

	runErr := host.Run(gctx)
	ctrl.Unmount()
	cancel()

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return runErr
}
