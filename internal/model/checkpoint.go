package model

import "time"

// Checkpoint persists per-file transfer progress so a large file can resume
// after an interrupted run. Invariant: BytesTransferred <= TotalBytes.
type Checkpoint struct {
	TaskID           string    `json:"task_id"`
	Path             string    `json:"path"`
	BytesTransferred int64     `json:"bytes_transferred"`
	TotalBytes       int64     `json:"total_bytes"`
	UpdatedAt        time.Time `json:"updated_at"`
}
