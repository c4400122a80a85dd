package daemon

import (
	"fmt"
	"sync"
	"time"

	"chronosync/internal/checkpoint"
	"chronosync/internal/config"
	"chronosync/internal/logger"
	"chronosync/internal/model"
	"chronosync/internal/notify"
	"chronosync/internal/repository"
	"chronosync/internal/scheduler"

	"go.uber.org/zap"
)

// Manager wires the scheduler to persistence and notifications and reacts
// to configuration reloads.
type Manager struct {
	sched    *scheduler.Scheduler
	store    *checkpoint.Store
	histRepo *repository.HistoryRepository
	notifier *notify.Notifier

	mu  sync.RWMutex
	cfg *config.Config
}

func NewManager(cfg *config.Config) (*Manager, error) {
	store, err := checkpoint.Open(cfg.CheckpointPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint store: %w", err)
	}

	m := &Manager{
		store:    store,
		histRepo: repository.NewHistoryRepository(),
		notifier: notify.New(),
		cfg:      cfg,
	}
	m.sched = scheduler.New(store, time.Duration(cfg.PollInterval)*time.Second, m.onResult)
	return m, nil
}

// Start registers all configured jobs and launches the scheduler. Jobs with
// malformed triggers stay registered but disabled.
func (m *Manager) Start() error {
	m.mu.RLock()
	jobs := m.cfg.Jobs
	m.mu.RUnlock()

	for _, job := range jobs {
		if err := m.sched.Register(job); err != nil {
			logger.Log.Warn("job registered as disabled",
				zap.String("job", job.Name),
				zap.Error(err))
		}
	}

	if err := m.sched.Start(); err != nil {
		return err
	}

	config.Watch(m.reload)
	return nil
}

func (m *Manager) Stop() {
	m.sched.Stop()
	if err := m.store.Close(); err != nil {
		logger.Log.Warn("failed to close checkpoint store", zap.Error(err))
	}
}

func (m *Manager) Scheduler() *scheduler.Scheduler { return m.sched }

func (m *Manager) History() *repository.HistoryRepository { return m.histRepo }

func (m *Manager) reload(cfg *config.Config) {
	m.mu.Lock()
	m.cfg = cfg
	m.mu.Unlock()

	m.sched.Reload(cfg.Jobs)
	logger.Log.Info("configuration reloaded", zap.Int("jobs", len(cfg.Jobs)))
}

// onResult persists every finished run and fans it out to the job's
// webhooks.
func (m *Manager) onResult(result model.ExecutionResult) {
	if err := m.histRepo.Save(result); err != nil {
		logger.Log.Warn("failed to save history",
			zap.String("job", result.JobName),
			zap.Error(err))
	}

	m.mu.RLock()
	cfg := m.cfg
	m.mu.RUnlock()

	for _, job := range cfg.Jobs {
		if job.ID == result.JobID {
			m.notifier.Dispatch(result, cfg.WebhookURLs(job))
			break
		}
	}
}
