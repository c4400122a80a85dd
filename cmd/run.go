package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run [job-id]",
	Short: "Trigger a job immediately",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		url := daemonURL("/jobs/" + args[0] + "/run")
		resp, err := http.Post(url, "application/json", nil)
		if err != nil {
			return fmt.Errorf("daemon not running: %w", err)
		}

		defer func(Body io.ReadCloser) {
			_ = Body.Close()
		}(resp.Body)

		if resp.StatusCode != http.StatusAccepted {
			var result map[string]string
			_ = json.NewDecoder(resp.Body).Decode(&result)
			return fmt.Errorf("run rejected: %s", result["error"])
		}

		fmt.Println("started")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
