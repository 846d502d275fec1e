package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config represents runtime configuration for the service.
type Config struct {
	BasicConfig BasicConfig `json:"basic_config"`
}

type BasicConfig struct {
	ServerAddress     string `json:"server_address"`
	ProcessorURL      string `json:"processor_url"`
	UploadDir         string `json:"upload_dir"`
	MaxUploadMB       int64  `json:"max_upload_mb"`
	UploadTTL         int    `json:"upload_ttl_minutes"`
	CleanInterval     int    `json:"clean_interval_minutes"`
	MinWorkers        int    `json:"min_workers"`
	MaxWorkers        int    `json:"max_workers"`
	QueueSize         int    `json:"queue_size"`
	WorkerIdleTimeout int    `json:"worker_idle_timeout_minutes"`
}

// Load reads configuration from the provided path (defaults to config.json).
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.json"
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	file, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if cfg.BasicConfig.ProcessorURL == "" {
		return nil, fmt.Errorf("processor_url must be configured")
	}

	if cfg.BasicConfig.UploadDir != "" && !filepath.IsAbs(cfg.BasicConfig.UploadDir) {
		cfg.BasicConfig.UploadDir = filepath.Join(filepath.Dir(absPath), cfg.BasicConfig.UploadDir)
	}

	return &cfg, nil
}
