package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"liquidfield/config"
	"liquidfield/logging"
)

var (
	// Global flags
	configPath string
	verbose    bool

	settings *config.Settings
	logger   *zap.Logger
	logLevel zap.AtomicLevel
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "liquidfield",
	Short: "Pointer-reactive liquid gradient background",
	Long: `liquidfield renders an animated liquid gradient that bends around the
pointer. The field can run in a native window, in a terminal or headless,
writing a snapshot image.

Settings are read from the YAML file given with --config; a missing file
leaves every setting at its default.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		s, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if verbose {
			s.Logging.Level = "debug"
		}
		settings = s

		logger, logLevel, err = logging.New(logging.Config{
			Level:       s.Logging.Level,
			Development: s.Logging.Development,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "liquidfield.yaml", "settings file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(termCmd, snapshotCmd)
}

func main() {
	// Window system and GL calls must stay on the main thread
	runtime.LockOSThread()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
