package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"chronosync/internal/model"

	"github.com/spf13/cobra"
)

var (
	historyN   int
	historyJob string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View recent job runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		url := fmt.Sprintf("%s?n=%d", daemonURL("/history"), historyN)
		if historyJob != "" {
			url = fmt.Sprintf("%s?n=%d", daemonURL("/jobs/"+historyJob+"/history"), historyN)
		}

		resp, err := http.Get(url)
		if err != nil {
			return fmt.Errorf("daemon not running: %w", err)
		}

		defer func(Body io.ReadCloser) {
			_ = Body.Close()
		}(resp.Body)

		var histories []model.History
		if err := json.NewDecoder(resp.Body).Decode(&histories); err != nil {
			return err
		}

		if len(histories) == 0 {
			fmt.Println("no history yet")
			return nil
		}

		for _, h := range histories {
			status := "✓"
			if h.Status == model.StatusFailed {
				status = "✗"
			}

			line := fmt.Sprintf("%s [%s] %-20s %s",
				status,
				h.StartAt.Format("2006-01-02 15:04:05"),
				h.JobName,
				h.Status,
			)
			if h.Summary != "" {
				line += " " + h.Summary
			}
			fmt.Println(line)
		}

		return nil
	},
}

func init() {
	historyCmd.Flags().IntVar(&historyN, "n", 20, "number of history entries to show")
	historyCmd.Flags().StringVar(&historyJob, "job", "", "filter by job id")
	rootCmd.AddCommand(historyCmd)
}
