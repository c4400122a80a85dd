package model

import (
	"fmt"
	"time"
)

type RunStatus string

const (
	StatusSuccess    RunStatus = "success"
	StatusFailed     RunStatus = "failed"
	StatusWithErrors RunStatus = "completed_with_errors"
)

type FileState string

const (
	FileCopied    FileState = "copied"
	FileUpdated   FileState = "updated"
	FileDeleted   FileState = "deleted"
	FileFailed    FileState = "failed"
	FileUnchanged FileState = "unchanged"
)

// FileResult records the outcome of a single planned operation.
type FileResult struct {
	Path  string    `json:"path"`
	Op    OpType    `json:"op"`
	State FileState `json:"state"`
	Bytes int64     `json:"bytes"`
	Error string    `json:"error,omitempty"`
}

// SyncResult aggregates a sync run.
type SyncResult struct {
	Copied    int          `json:"copied"`
	Updated   int          `json:"updated"`
	Deleted   int          `json:"deleted"`
	Failed    int          `json:"failed"`
	Unchanged int          `json:"unchanged"`
	Bytes     int64        `json:"bytes"`
	Files     []FileResult `json:"files"`
	Summary   string       `json:"summary"`
}

func (r *SyncResult) BuildSummary() {
	switch {
	case r.Failed > 0:
		r.Summary = fmt.Sprintf("sync finished with %d failed file(s): copied %d, updated %d, deleted %d",
			r.Failed, r.Copied, r.Updated, r.Deleted)
	case r.Copied+r.Updated+r.Deleted == 0:
		r.Summary = "all files up to date, nothing to sync"
	default:
		r.Summary = fmt.Sprintf("sync finished: copied %d, updated %d, deleted %d",
			r.Copied, r.Updated, r.Deleted)
	}
}

// ExecutionResult is the outcome of one job run, consumed by the history
// repository and the notification dispatcher.
type ExecutionResult struct {
	JobID      string            `json:"job_id"`
	JobName    string            `json:"job_name"`
	Status     RunStatus         `json:"status"`
	ExitCode   int               `json:"exit_code"`
	Stdout     string            `json:"stdout,omitempty"`
	Stderr     string            `json:"stderr,omitempty"`
	Sync       *SyncResult       `json:"sync,omitempty"`
	CustomVars map[string]string `json:"custom_vars,omitempty"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
}

func (r ExecutionResult) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

const outputTruncateLimit = 2000

// TruncatedStdout returns stdout capped for notification payloads.
func (r ExecutionResult) TruncatedStdout() string {
	if len(r.Stdout) > outputTruncateLimit {
		return r.Stdout[:outputTruncateLimit]
	}
	return r.Stdout
}

func (r ExecutionResult) TruncatedStderr() string {
	if len(r.Stderr) > outputTruncateLimit {
		return r.Stderr[:outputTruncateLimit]
	}
	return r.Stderr
}
