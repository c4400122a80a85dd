package model

import (
	"time"

	"gorm.io/gorm"
)

// History is the persisted record of one job execution.
type History struct {
	gorm.Model
	JobID    string    `gorm:"not null;index"`
	JobName  string    `gorm:"not null"`
	Status   RunStatus `gorm:"not null"`
	ExitCode int
	Copied   int
	Updated  int
	Deleted  int
	Failed   int
	Bytes    int64
	Summary  string
	ErrMsg   string
	StartAt  time.Time `gorm:"not null"`
	EndAt    time.Time `gorm:"not null"`
}
