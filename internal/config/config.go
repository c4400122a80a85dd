package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"chronosync/internal/model"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/spf13/viper"
)

type Config struct {
	DaemonPort     int          `mapstructure:"daemon_port"`
	DBPath         string       `mapstructure:"db_path"`
	CheckpointPath string       `mapstructure:"checkpoint_path"`
	PollInterval   int          `mapstructure:"poll_interval"`
	Jobs           []model.Job  `mapstructure:"jobs"`
	Webhooks       []WebhookDef `mapstructure:"webhooks"`
}

// WebhookDef names an outbound notification target; jobs reference it by name.
type WebhookDef struct {
	Name string `mapstructure:"name"`
	URL  string `mapstructure:"url"`
}

var Default = Config{
	DaemonPort:     9010,
	DBPath:         "chronosync.db",
	CheckpointPath: "checkpoints.db",
	PollInterval:   30,
}

func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home dir: %w", err)
	}

	configDir := filepath.Join(home, ".chronosync")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create config dir: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)

	viper.SetDefault("daemon_port", Default.DaemonPort)
	viper.SetDefault("db_path", Default.DBPath)
	viper.SetDefault("checkpoint_path", Default.CheckpointPath)
	viper.SetDefault("poll_interval", Default.PollInterval)

	viper.SetEnvPrefix("CHRONOSYNC")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	normalize(&cfg)
	return &cfg, nil
}

// Watch re-reads the config file on change and hands the fresh job list to
// the callback. Reload failures keep the previous configuration.
func Watch(onReload func(*Config)) {
	viper.OnConfigChange(func(_ fsnotify.Event) {
		var cfg Config
		if err := viper.Unmarshal(&cfg); err != nil {
			return
		}
		normalize(&cfg)
		onReload(&cfg)
	})
	viper.WatchConfig()
}

func normalize(cfg *Config) {
	for i := range cfg.Jobs {
		job := &cfg.Jobs[i]
		if job.ID == "" {
			job.ID = uuid.NewString()
		}
		if job.Policy == "" {
			job.Policy = model.PolicySkip
		}
		if job.Type == "" {
			if job.Sync != nil {
				job.Type = model.TaskSync
			} else {
				job.Type = model.TaskCommand
			}
		}
		if job.Sync != nil {
			if job.Sync.Mode == "" {
				job.Sync.Mode = model.ModeIncremental
			}
			if job.Sync.Compare == "" {
				job.Sync.Compare = model.CompareSizeTime
			}
			if job.Sync.Workers <= 0 {
				job.Sync.Workers = 2
			}
		}
	}
}

// WebhookURLs resolves a job's webhook names against the global definitions.
func (c *Config) WebhookURLs(job model.Job) []string {
	byName := make(map[string]string, len(c.Webhooks))
	for _, w := range c.Webhooks {
		byName[w.Name] = w.URL
	}

	urls := make([]string, 0, len(job.Webhooks))
	for _, name := range job.Webhooks {
		if url, ok := byName[name]; ok {
			urls = append(urls, url)
		}
	}
	return urls
}
