// Package notify delivers execution results to configured webhooks.
// Delivery is best effort: failures are logged and never affect the run.
package notify

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"chronosync/internal/logger"
	"chronosync/internal/model"

	"go.uber.org/zap"
)

const requestTimeout = 10 * time.Second

type Notifier struct {
	client *http.Client
}

func New() *Notifier {
	return &Notifier{client: &http.Client{Timeout: requestTimeout}}
}

// payload is the wire form of a result. Command output is truncated so a
// chatty job cannot blow up the receiver.
type payload struct {
	JobID      string            `json:"job_id"`
	JobName    string            `json:"job_name"`
	Status     model.RunStatus   `json:"status"`
	ExitCode   int               `json:"exit_code"`
	Stdout     string            `json:"stdout,omitempty"`
	Stderr     string            `json:"stderr,omitempty"`
	Sync       *model.SyncResult `json:"sync,omitempty"`
	CustomVars map[string]string `json:"custom_vars,omitempty"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
}

// Dispatch posts the result to every URL on its own goroutine and returns
// immediately.
func (n *Notifier) Dispatch(result model.ExecutionResult, urls []string) {
	if len(urls) == 0 {
		return
	}

	body, err := json.Marshal(payload{
		JobID:      result.JobID,
		JobName:    result.JobName,
		Status:     result.Status,
		ExitCode:   result.ExitCode,
		Stdout:     result.TruncatedStdout(),
		Stderr:     result.TruncatedStderr(),
		Sync:       result.Sync,
		CustomVars: result.CustomVars,
		StartedAt:  result.StartedAt,
		FinishedAt: result.FinishedAt,
	})
	if err != nil {
		logger.Log.Warn("failed to encode webhook payload", zap.Error(err))
		return
	}

	for _, url := range urls {
		go n.post(url, result.JobName, body)
	}
}

func (n *Notifier) post(url, jobName string, body []byte) {
	resp, err := n.client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		logger.Log.Warn("webhook delivery failed",
			zap.String("job", jobName),
			zap.String("url", url),
			zap.Error(err))
		return
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= 300 {
		logger.Log.Warn("webhook rejected",
			zap.String("job", jobName),
			zap.String("url", url),
			zap.Int("status", resp.StatusCode))
		return
	}

	logger.Log.Debug("webhook delivered",
		zap.String("job", jobName),
		zap.String("url", url))
}
