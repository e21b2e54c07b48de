package main

import (
	"os"

	"github.com/KevinKickass/OpenBlenderCore/internal/config"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	verbose    bool
	configPath string
	cfg        *config.Config
	logger     *zap.Logger

	rootCmd = &cobra.Command{
		Use:           "blenderd",
		Short:         "Controller for the automatic smoothie blender",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			logger, err = newLogger(verbose)
			if err != nil {
				return err
			}

			cfg, err = config.Load(configPath)
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = logger.Sync()
		},
	}
)

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to the yaml configuration (defaults only when empty)")
}

// newLogger returns a console logger on a terminal or with verbose set,
// JSON otherwise.
func newLogger(verbose bool) (*zap.Logger, error) {
	fd := os.Stderr.Fd()
	if !verbose && !isatty.IsTerminal(fd) && !isatty.IsCygwinTerminal(fd) {
		return zap.NewProduction()
	}

	zc := zap.NewDevelopmentConfig()
	if !verbose {
		zc.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return zc.Build()
}
