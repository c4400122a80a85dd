package repository

import (
	"chronosync/internal/db"
	"chronosync/internal/model"
)

type HistoryRepository struct{}

func NewHistoryRepository() *HistoryRepository {
	return &HistoryRepository{}
}

func (r *HistoryRepository) Save(result model.ExecutionResult) error {
	history := model.History{
		JobID:    result.JobID,
		JobName:  result.JobName,
		Status:   result.Status,
		ExitCode: result.ExitCode,
		ErrMsg:   result.TruncatedStderr(),
		StartAt:  result.StartedAt,
		EndAt:    result.FinishedAt,
	}

	if result.Sync != nil {
		history.Copied = result.Sync.Copied
		history.Updated = result.Sync.Updated
		history.Deleted = result.Sync.Deleted
		history.Failed = result.Sync.Failed
		history.Bytes = result.Sync.Bytes
		history.Summary = result.Sync.Summary
	}

	return db.DB.Create(&history).Error
}

type Stats struct {
	Total   int64
	Success int64
	Failed  int64
}

func (r *HistoryRepository) GetStats() (Stats, error) {
	var stats Stats
	if err := db.DB.Model(&model.History{}).Count(&stats.Total).Error; err != nil {
		return stats, err
	}

	if err := db.DB.Model(&model.History{}).
		Where("status = ?", model.StatusSuccess).
		Count(&stats.Success).Error; err != nil {
		return stats, err
	}

	stats.Failed = stats.Total - stats.Success
	return stats, nil
}

func (r *HistoryRepository) GetRecent(limit int) ([]model.History, error) {
	var histories []model.History
	result := db.DB.
		Order("start_at desc").
		Limit(limit).
		Find(&histories)

	return histories, result.Error
}

func (r *HistoryRepository) GetByJob(jobID string, limit int) ([]model.History, error) {
	var histories []model.History
	result := db.DB.
		Where("job_id = ?", jobID).
		Order("start_at desc").
		Limit(limit).
		Find(&histories)

	return histories, result.Error
}
