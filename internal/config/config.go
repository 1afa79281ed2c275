// Package config defines the application configuration and its loading from
// files, environment variables and flags.
package config

import (
	"fmt"
	"time"

	"github.com/instantwaste/formscan/internal/pipeline"
	"github.com/instantwaste/formscan/internal/reconcile"
	"github.com/instantwaste/formscan/internal/recovery"
	"github.com/instantwaste/formscan/internal/segment"
	"github.com/instantwaste/formscan/internal/server"
)

// Config is the complete configuration for the formscan application. It
// covers all commands and loads from configuration files, environment
// variables and command-line flags.
type Config struct {
	// Global settings
	LogLevel  string `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	Verbose   bool   `mapstructure:"verbose" yaml:"verbose" json:"verbose"`
	VocabPath string `mapstructure:"vocab_path" yaml:"vocab_path" json:"vocab_path"`

	// Scan tuning
	Scan ScanConfig `mapstructure:"scan" yaml:"scan" json:"scan"`

	// Server configuration (for serve command)
	Server ServerConfig `mapstructure:"server" yaml:"server" json:"server"`
}

// ScanConfig tunes the reconciliation and recovery passes.
type ScanConfig struct {
	ColumnCeiling   int     `mapstructure:"column_ceiling" yaml:"column_ceiling" json:"column_ceiling"`
	RejectCeiling   int     `mapstructure:"reject_ceiling" yaml:"reject_ceiling" json:"reject_ceiling"`
	ReviewThreshold int     `mapstructure:"review_threshold" yaml:"review_threshold" json:"review_threshold"`
	MaskedPassScale float64 `mapstructure:"masked_pass_scale" yaml:"masked_pass_scale" json:"masked_pass_scale"`
	CellPassScale   float64 `mapstructure:"cell_pass_scale" yaml:"cell_pass_scale" json:"cell_pass_scale"`
	EnableCellPass  bool    `mapstructure:"enable_cell_pass" yaml:"enable_cell_pass" json:"enable_cell_pass"`
	SharpenOnly     bool    `mapstructure:"sharpen_only" yaml:"sharpen_only" json:"sharpen_only"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host              string `mapstructure:"host" yaml:"host" json:"host"`
	Port              int    `mapstructure:"port" yaml:"port" json:"port"`
	CORSOrigin        string `mapstructure:"cors_origin" yaml:"cors_origin" json:"cors_origin"`
	MaxUploadMB       int64  `mapstructure:"max_upload_mb" yaml:"max_upload_mb" json:"max_upload_mb"`
	TimeoutSec        int    `mapstructure:"timeout_sec" yaml:"timeout_sec" json:"timeout_sec"`
	SessionTTLMin     int    `mapstructure:"session_ttl_min" yaml:"session_ttl_min" json:"session_ttl_min"`
	TempDir           string `mapstructure:"temp_dir" yaml:"temp_dir" json:"temp_dir"`
	RequestsPerMinute int    `mapstructure:"requests_per_minute" yaml:"requests_per_minute" json:"requests_per_minute"`
	MaxUploadsPerDay  int    `mapstructure:"max_uploads_per_day" yaml:"max_uploads_per_day" json:"max_uploads_per_day"`
	MaxDataPerDayMB   int64  `mapstructure:"max_data_per_day_mb" yaml:"max_data_per_day_mb" json:"max_data_per_day_mb"`
}

// Validate checks that the configuration values are usable.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log_level %q", c.LogLevel)
	}
	if c.Scan.ColumnCeiling < 0 || c.Scan.RejectCeiling < 0 || c.Scan.ReviewThreshold < 0 {
		return fmt.Errorf("scan thresholds must not be negative")
	}
	if c.Scan.MaskedPassScale < 0 || c.Scan.CellPassScale < 0 {
		return fmt.Errorf("scan pass scales must not be negative")
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Server.MaxUploadMB < 0 {
		return fmt.Errorf("max_upload_mb must not be negative")
	}
	return nil
}

// PipelineConfig maps the loaded settings onto a pipeline configuration,
// leaving zero values at the pipeline defaults.
func (c *Config) PipelineConfig() pipeline.Config {
	cfg := pipeline.DefaultConfig()
	cfg.Layout = segment.DefaultLayout()
	cfg.VocabPath = c.VocabPath

	th := reconcile.DefaultThresholds()
	if c.Scan.ColumnCeiling > 0 {
		th.ColumnCeiling = c.Scan.ColumnCeiling
	}
	if c.Scan.RejectCeiling > 0 {
		th.RejectCeiling = c.Scan.RejectCeiling
	}
	if c.Scan.ReviewThreshold > 0 {
		th.ReviewThreshold = c.Scan.ReviewThreshold
	}
	cfg.Thresholds = th

	rc := recovery.DefaultConfig()
	if c.Scan.MaskedPassScale > 0 {
		rc.MaskedPassScale = c.Scan.MaskedPassScale
	}
	if c.Scan.CellPassScale > 0 {
		rc.CellPassScale = c.Scan.CellPassScale
	}
	rc.EnableCellPass = c.Scan.EnableCellPass
	rc.SharpenOnly = c.Scan.SharpenOnly
	cfg.Recovery = rc

	return cfg
}

// ServerConfigFor maps the loaded settings onto the server configuration.
func (c *Config) ServerConfigFor() server.Config {
	return server.Config{
		Host:              c.Server.Host,
		Port:              c.Server.Port,
		CORSOrigin:        c.Server.CORSOrigin,
		MaxUploadMB:       c.Server.MaxUploadMB,
		TimeoutSec:        c.Server.TimeoutSec,
		SessionTTL:        time.Duration(c.Server.SessionTTLMin) * time.Minute,
		TempDir:           c.Server.TempDir,
		PipelineConfig:    c.PipelineConfig(),
		RequestsPerMinute: c.Server.RequestsPerMinute,
		MaxUploadsPerDay:  c.Server.MaxUploadsPerDay,
		MaxDataPerDay:     c.Server.MaxDataPerDayMB * 1024 * 1024,
	}
}
