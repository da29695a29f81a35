package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// FileConfig mirrors the optional YAML configuration file. Durations are
// written in Go duration syntax ("2s", "500ms"). Zero values mean "not set"
// and leave the corresponding Config field untouched.
type FileConfig struct {
	SearchURL      string `yaml:"search_url"`
	MaxStories     int    `yaml:"max_stories"`
	Delay          string `yaml:"delay"`
	Timeout        string `yaml:"timeout"`
	MaxRetries     int    `yaml:"max_retries"`
	RetryDelay     string `yaml:"retry_delay"`
	OutputFile     string `yaml:"output_file"`
	OutputFormat   string `yaml:"output_format"`
	ContentDir     string `yaml:"content_dir"`
	DownloadFormat string `yaml:"download_format"`
	UserAgent      string `yaml:"user_agent"`
	LogFile        string `yaml:"log_file"`
	MetricsAddr    string `yaml:"metrics_addr"`
}

// LoadFile reads a YAML config file and applies it over cfg. A missing file
// is not an error; a file that exists but cannot be parsed is.
func LoadFile(path string, cfg *Config) error {
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	var fc FileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}

	return fc.apply(cfg)
}

func (fc *FileConfig) apply(cfg *Config) error {
	if fc.SearchURL != "" {
		cfg.SearchURL = fc.SearchURL
	}
	if fc.MaxStories != 0 {
		cfg.MaxStories = fc.MaxStories
	}
	if err := applyDuration(&cfg.Delay, fc.Delay, "delay"); err != nil {
		return err
	}
	if err := applyDuration(&cfg.Timeout, fc.Timeout, "timeout"); err != nil {
		return err
	}
	if fc.MaxRetries != 0 {
		cfg.MaxRetries = fc.MaxRetries
	}
	if err := applyDuration(&cfg.RetryDelay, fc.RetryDelay, "retry_delay"); err != nil {
		return err
	}
	if fc.OutputFile != "" {
		cfg.OutputFile = fc.OutputFile
	}
	if fc.OutputFormat != "" {
		cfg.OutputFormat = fc.OutputFormat
	}
	if fc.ContentDir != "" {
		cfg.ContentDir = fc.ContentDir
	}
	if fc.DownloadFormat != "" {
		cfg.DownloadFormat = fc.DownloadFormat
	}
	if fc.UserAgent != "" {
		cfg.UserAgent = fc.UserAgent
	}
	if fc.LogFile != "" {
		cfg.LogFile = fc.LogFile
	}
	if fc.MetricsAddr != "" {
		cfg.MetricsAddr = fc.MetricsAddr
	}
	return nil
}

func applyDuration(dst *time.Duration, raw, name string) error {
	if raw == "" {
		return nil
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	*dst = value
	return nil
}
