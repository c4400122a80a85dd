package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"chronosync/internal/scheduler"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "View daemon status",
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := http.Get(daemonURL("/status"))
		if err != nil {
			return fmt.Errorf("daemon not running: %w", err)
		}

		defer func(Body io.ReadCloser) {
			_ = Body.Close()
		}(resp.Body)

		var result struct {
			Jobs      []scheduler.JobSnapshot `json:"jobs"`
			TotalRuns int64                   `json:"total_runs"`
			Success   int64                   `json:"success"`
			Failed    int64                   `json:"failed"`
		}

		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return fmt.Errorf("failed to decode status response: %w", err)
		}

		var running int
		for _, snap := range result.Jobs {
			if snap.Running {
				running++
			}
		}

		fmt.Printf("jobs: %d registered, %d running\n", len(result.Jobs), running)
		fmt.Printf("runs: %d total, %d success, %d failed\n",
			result.TotalRuns, result.Success, result.Failed)

		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
