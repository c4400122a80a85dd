package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"chronosync/internal/scheduler"

	"github.com/spf13/cobra"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List registered jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := http.Get(daemonURL("/jobs"))
		if err != nil {
			return fmt.Errorf("daemon not running: %w", err)
		}

		defer func(Body io.ReadCloser) {
			_ = Body.Close()
		}(resp.Body)

		var result struct {
			Jobs []scheduler.JobSnapshot `json:"jobs"`
		}

		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return fmt.Errorf("failed to decode jobs response: %w", err)
		}

		if len(result.Jobs) == 0 {
			fmt.Println("no jobs registered")
			return nil
		}

		fmt.Printf("%-36s %-20s %-8s %-20s %-8s %s\n",
			"ID", "NAME", "TYPE", "TRIGGER", "STATE", "NEXT RUN")

		for _, snap := range result.Jobs {
			state := "idle"
			switch {
			case snap.Running:
				state = "running"
			case snap.Disabled != "":
				state = "disabled"
			case !snap.Enabled:
				state = "off"
			}

			nextRun := "-"
			if !snap.NextRun.IsZero() {
				nextRun = snap.NextRun.Format("2006-01-02 15:04:05")
			}

			fmt.Printf("%-36s %-20s %-8s %-20s %-8s %s\n",
				snap.ID, snap.Name, snap.Type, snap.Trigger, state, nextRun)

			if snap.Disabled != "" {
				fmt.Printf("       reason: %s\n", snap.Disabled)
			}
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(jobsCmd)
}
