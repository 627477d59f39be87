package config

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"
)

const envPrefix = "STARTUP_OPTIMIZER"

type Config struct {
	LogLevel      string `mapstructure:"log_level"`
	LogFormat     string `mapstructure:"log_format"`
	LogFile       string `mapstructure:"log_file"` // empty: console only
	LogMaxSizeMB  int    `mapstructure:"log_max_size_mb"`
	LogMaxBackups int    `mapstructure:"log_max_backups"`

	// Collection
	SourceTimeoutSeconds int      `mapstructure:"source_timeout_seconds"`
	BootPhaseMarkers     []string `mapstructure:"boot_phase_markers"`
	ProtectedEntries     []string `mapstructure:"protected_entries"`

	// Aggregation and recommendation policy
	ServiceWeight            float64 `mapstructure:"service_weight"`
	MaxTotalSeconds          float64 `mapstructure:"max_total_seconds"`
	PriorityThresholdSeconds float64 `mapstructure:"priority_threshold_seconds"`
	DelayThresholdSeconds    float64 `mapstructure:"delay_threshold_seconds"`
	SuggestedDelaySeconds    int     `mapstructure:"suggested_delay_seconds"`
	AutoServiceLimit         int     `mapstructure:"auto_service_limit"`

	// Optimization
	BatchWorkers    int    `mapstructure:"batch_workers"`
	AuditEnabled    bool   `mapstructure:"audit_enabled"`
	AuditDir        string `mapstructure:"audit_dir"`
	AuditMaxSizeMB  int    `mapstructure:"audit_max_size_mb"`
	AuditMaxBackups int    `mapstructure:"audit_max_backups"`
}

func Default() *Config {
	return &Config{
		LogLevel:                 "warn",
		LogFormat:                "text",
		LogMaxSizeMB:             10,
		LogMaxBackups:            2,
		SourceTimeoutSeconds:     5,
		BootPhaseMarkers:         []string{"boot", "firmware", "loader", "kernel", "userspace", "logon"},
		ServiceWeight:            0.4,
		MaxTotalSeconds:          300,
		PriorityThresholdSeconds: 5.0,
		DelayThresholdSeconds:    1.0,
		SuggestedDelaySeconds:    30,
		AutoServiceLimit:         50,
		BatchWorkers:             4,
		AuditEnabled:             true,
		AuditMaxSizeMB:           10,
		AuditMaxBackups:          3,
	}
}

// SourceTimeout returns the per-source collection deadline.
func (c *Config) SourceTimeout() time.Duration {
	return time.Duration(c.SourceTimeoutSeconds) * time.Second
}

// Load reads the config file (explicit path, or startup-optimizer.yaml in
// the platform config dir or the working directory) and environment
// overrides. A missing file is not an error.
func Load(cfgFile string) (*Config, error) {
	cfg := Default()
	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("startup-optimizer")
		v.SetConfigType("yaml")
		v.AddConfigPath(configDir())
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	bindEnv(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// bindEnv registers every key so AutomaticEnv overrides also apply to keys
// that are absent from the config file.
func bindEnv(v *viper.Viper) {
	for _, key := range []string{
		"log_level", "log_format", "log_file", "log_max_size_mb", "log_max_backups",
		"source_timeout_seconds", "boot_phase_markers",
		"protected_entries", "service_weight", "max_total_seconds",
		"priority_threshold_seconds", "delay_threshold_seconds",
		"suggested_delay_seconds", "auto_service_limit", "batch_workers",
		"audit_enabled", "audit_dir", "audit_max_size_mb", "audit_max_backups",
	} {
		_ = v.BindEnv(key)
	}
}

// GetAuditDir returns the directory holding the mutation audit log.
func (c *Config) GetAuditDir() string {
	if c.AuditDir != "" {
		return c.AuditDir
	}
	return dataDir()
}

func configDir() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("ProgramData"), "StartupOptimizer")
	default:
		return filepath.Join(xdg.ConfigHome, "startup-optimizer")
	}
}

func dataDir() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("ProgramData"), "StartupOptimizer", "data")
	default:
		return filepath.Join(xdg.StateHome, "startup-optimizer")
	}
}
