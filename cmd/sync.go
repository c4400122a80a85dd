package cmd

import (
	"fmt"

	"chronosync/internal/checkpoint"
	"chronosync/internal/engine"
	"chronosync/internal/logger"
	"chronosync/internal/model"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	syncMode    string
	syncCompare string
	syncWorkers int
	syncExclude []string
	syncInclude []string
)

var syncCmd = &cobra.Command{
	Use:   "sync [source] [target]",
	Short: "Sync two local directories once",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		defer logger.Sync()
		src, dst := args[0], args[1]

		task := model.SyncTask{
			Source:  model.Endpoint{Kind: model.EndpointLocal, Path: src},
			Target:  model.Endpoint{Kind: model.EndpointLocal, Path: dst},
			Mode:    model.SyncMode(syncMode),
			Compare: model.CompareMethod(syncCompare),
			Workers: syncWorkers,
			Filter: model.FilterRule{
				Include: syncInclude,
				Exclude: syncExclude,
			},
		}

		store, err := checkpoint.Open(cfg.CheckpointPath)
		if err != nil {
			return err
		}
		defer func() {
			_ = store.Close()
		}()

		logger.Log.Info("starting one-off sync",
			zap.String("src", src),
			zap.String("dst", dst),
			zap.String("mode", syncMode))

		result, err := engine.New("adhoc", task, store).Run(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Println(result.Summary)
		if result.Failed > 0 {
			return fmt.Errorf("%d file(s) failed", result.Failed)
		}
		return nil
	},
}

func init() {
	syncCmd.Flags().StringVar(&syncMode, "mode", string(model.ModeIncremental), "sync mode: mirror, incremental or add_only")
	syncCmd.Flags().StringVar(&syncCompare, "compare", string(model.CompareSizeTime), "compare method: size, mtime, size_mtime or checksum")
	syncCmd.Flags().IntVar(&syncWorkers, "workers", 2, "concurrent transfer workers")
	syncCmd.Flags().StringSliceVar(&syncInclude, "include", nil, "glob patterns to include")
	syncCmd.Flags().StringSliceVar(&syncExclude, "exclude", nil, "glob patterns to exclude")
	rootCmd.AddCommand(syncCmd)
}
