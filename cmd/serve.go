package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chronosync/internal/daemon"
	"chronosync/internal/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the scheduler daemon with all configured jobs",
	RunE:  runDaemon,
}

func runDaemon(cmd *cobra.Command, args []string) error {
	defer logger.Sync()

	manager, err := daemon.NewManager(cfg)
	if err != nil {
		return err
	}

	if err := manager.Start(); err != nil {
		return err
	}

	if len(cfg.Jobs) == 0 {
		logger.Log.Info("no jobs configured, add them to ~/.chronosync/config.yaml")
	}

	srv := daemon.NewServer(manager, cfg.DaemonPort)
	srv.Start()

	logger.Log.Info("chronosync daemon started",
		zap.Int("jobs", len(cfg.Jobs)),
		zap.Int("port", cfg.DaemonPort))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Log.Info("shutting down",
			zap.String("signal", sig.String()))
	case <-srv.StopCh():
		logger.Log.Info("stop requested via API")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Stop(ctx)
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
