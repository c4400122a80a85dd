package model

import "time"

type FileKind string

const (
	KindFile  FileKind = "file"
	KindDir   FileKind = "dir"
	KindOther FileKind = "other"
)

// FileEntry is one entry of a directory snapshot, keyed by its
// slash-separated path relative to the endpoint root.
type FileEntry struct {
	Path     string    `json:"path"`
	Size     int64     `json:"size"`
	ModTime  time.Time `json:"mod_time"`
	Checksum string    `json:"checksum,omitempty"`
	Kind     FileKind  `json:"kind"`
}

type OpType string

const (
	OpCopy   OpType = "copy"
	OpUpdate OpType = "update"
	OpMkdir  OpType = "mkdir"
	OpDelete OpType = "delete"
	OpSkip   OpType = "skip"
)

// FileOperation is one planned action against the target endpoint.
type FileOperation struct {
	Type   OpType `json:"type"`
	Path   string `json:"path"`
	Size   int64  `json:"size"`
	Reason string `json:"reason,omitempty"`
	// Warning marks skip entries for symlinks and other special files.
	Warning bool `json:"warning,omitempty"`
}

// DiffPlan is the ordered operation list produced by the planner.
type DiffPlan []FileOperation

// Pending reports how many operations actually move or remove data.
func (p DiffPlan) Pending() int {
	n := 0
	for _, op := range p {
		if op.Type != OpSkip {
			n++
		}
	}
	return n
}
