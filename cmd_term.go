package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"liquidfield/field"
	"liquidfield/host/termhost"
	"liquidfield/logging"
	"liquidfield/mount"
	"liquidfield/rendering/software"
)

var termLogFile string

var termCmd = &cobra.Command{
	Use:   "term",
	Short: "Render the field in the terminal",
	Long: `Renders the field on the CPU and shows it in the terminal with half
block cells, two pixels per cell. Move the mouse over the terminal to stir it;
Esc, q or Ctrl-C quits.

The terminal owns stdout and stderr while running, so logs go to --log-file.`,
	Args: cobra.NoArgs,
	RunE: runTerm,
}

func init() {
	termCmd.Flags().StringVar(&termLogFile, "log-file", "liquidfield-term.log", "log destination while the terminal is in use")
}

func softwareLoader() mount.Loader {
	return mount.LoaderFunc(func(ctx context.Context) (field.Backend, error) {
		return software.NewBackend(), nil
	})
}

func runTerm(cmd *cobra.Command, args []string) error {
	log, _, err := logging.New(logging.Config{
		Level:       settings.Logging.Level,
		Development: settings.Logging.Development,
		OutputPaths: []string{termLogFile},
	})
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer func() { _ = log.Sync() }()

	host, err := termhost.New(termhost.Options{Logger: log})
	if err != nil {
		return fmt.Errorf("failed to initialize terminal: %w", err)
	}
	defer host.Close()

	opts := settings.MountOptions()
	opts.Logger = log
	ctrl := mount.NewController(host, softwareLoader(), opts)

	ctx := cmd.Context()
	if err := ctrl.Mount(ctx); err != nil {
		return err
	}
	err = host.Run(ctx)
	ctrl.Unmount()
	return err
}
