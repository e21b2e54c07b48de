package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/KevinKickass/OpenBlenderCore/internal/system"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func init() {
	var simulate bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the blender controller and its telemetry API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd.Context(), simulate)
		},
	}
	cmd.Flags().BoolVar(&simulate, "simulate", false, "Use the in-memory rig instead of the configured hardware")
	rootCmd.AddCommand(cmd)
}

func runDaemon(ctx context.Context, simulate bool) error {
	lifecycle, err := system.NewLifecycleManager(cfg, logger, simulate)
	if err != nil {
		return err
	}

	if err := lifecycle.Start(); err != nil {
		_ = lifecycle.Shutdown(context.Background())
		return fmt.Errorf("failed to start system: %w", err)
	}

	logger.Info("OpenBlenderCore started successfully")

	// Graceful Shutdown auf Signal
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	logger.Info("Shutdown signal received")

	if err := lifecycle.Shutdown(context.Background()); err != nil {
		logger.Error("Shutdown failed", zap.Error(err))
		return err
	}

	logger.Info("OpenBlenderCore stopped successfully")
	return nil
}
