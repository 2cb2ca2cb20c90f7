//go:build raylib

package main

import (
	"github.com/spf13/cobra"

	"liquidfield/mount"
	"liquidfield/rendering/raylib"
)

var raylibCmd = &cobra.Command{
	Use:   "raylib",
	Short: "Open a raylib window with the field",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s := settings
		host := raylib.NewHost(raylib.Options{
			Width:      s.Host.Width,
			Height:     s.Host.Height,
			Title:      s.Host.Title,
			Background: s.FieldParams().DarkBase,
			Logger:     logger,
		})
		defer host.Close()

		opts := s.MountOptions()
		opts.Logger = logger
		ctrl := mount.NewController(host, host.Loader(), opts)

		ctx := cmd.Context()
		if err := ctrl.Mount(ctx); err != nil {
			return err
		}
		err := host.Run(ctx)
		ctrl.Unmount()
		return err
	},
}

func init() {
	rootCmd.AddCommand(raylibCmd)
}
