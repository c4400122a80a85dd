package model

import "time"

type TaskType string

const (
	TaskCommand TaskType = "command"
	TaskSync    TaskType = "sync"
)

type ConcurrencyPolicy string

const (
	// PolicySkip drops a trigger fire while the job is already running.
	PolicySkip ConcurrencyPolicy = "skip"
	// PolicyQueueOne holds at most one pending run to start right after
	// the current one finishes.
	PolicyQueueOne ConcurrencyPolicy = "queue_one"
	// PolicyReplace cancels the running execution and starts a fresh one.
	PolicyReplace ConcurrencyPolicy = "replace"
)

type SyncMode string

const (
	ModeMirror      SyncMode = "mirror"
	ModeIncremental SyncMode = "incremental"
	ModeAddOnly     SyncMode = "add_only"
)

type CompareMethod string

const (
	CompareSize     CompareMethod = "size"
	CompareMtime    CompareMethod = "mtime"
	CompareSizeTime CompareMethod = "size_mtime"
	CompareChecksum CompareMethod = "checksum"
)

// Job is a scheduled unit of work, either a shell command or a sync task.
// Jobs are defined by the configuration layer and read by the scheduler.
type Job struct {
	ID      string            `mapstructure:"id" json:"id"`
	Name    string            `mapstructure:"name" json:"name"`
	Trigger string            `mapstructure:"trigger" json:"trigger"`
	Type    TaskType          `mapstructure:"type" json:"type"`
	Enabled bool              `mapstructure:"enabled" json:"enabled"`
	Policy  ConcurrencyPolicy `mapstructure:"policy" json:"policy"`

	// Retries reattempts a failed run with a backoff delay between tries.
	Retries      int           `mapstructure:"retries" json:"retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff" json:"retry_backoff"`

	Command *CommandTask `mapstructure:"command" json:"command,omitempty"`
	Sync    *SyncTask    `mapstructure:"sync" json:"sync,omitempty"`

	// Webhooks receive the execution result, best effort.
	Webhooks []string `mapstructure:"webhooks" json:"webhooks,omitempty"`
}

type CommandTask struct {
	Command    string        `mapstructure:"command" json:"command"`
	WorkingDir string        `mapstructure:"working_dir" json:"working_dir"`
	Timeout    time.Duration `mapstructure:"timeout" json:"timeout"`
}

type SyncTask struct {
	Source  Endpoint      `mapstructure:"source" json:"source"`
	Target  Endpoint      `mapstructure:"target" json:"target"`
	Mode    SyncMode      `mapstructure:"mode" json:"mode"`
	Compare CompareMethod `mapstructure:"compare" json:"compare"`
	Filter  FilterRule    `mapstructure:"filter" json:"filter"`
	Workers int           `mapstructure:"workers" json:"workers"`
}

// FilterRule holds glob patterns applied to relative paths before planning.
// Exclude rules take precedence over include rules.
type FilterRule struct {
	Include []string `mapstructure:"include" json:"include,omitempty"`
	Exclude []string `mapstructure:"exclude" json:"exclude,omitempty"`
}
