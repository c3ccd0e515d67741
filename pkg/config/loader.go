package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Config file settings
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/lxc-autoscaler")
	}

	// Environment variable settings
	v.SetEnvPrefix("LXC_AUTOSCALER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, use defaults and env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.ApplyDefaults()

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "lxc-autoscaler")
	v.SetDefault("app.mode", "development")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.shutdown_timeout", "30s")

	// Proxmox defaults
	v.SetDefault("proxmox.port", 8006)
	v.SetDefault("proxmox.user", "root@pam")
	v.SetDefault("proxmox.verify_ssl", true)
	v.SetDefault("proxmox.timeout", "30s")

	// Monitoring defaults
	v.SetDefault("monitoring.interval_seconds", 60)
	v.SetDefault("monitoring.enable_dry_run", false)

	// Safety defaults
	v.SetDefault("safety.max_concurrent_operations", 3)
	v.SetDefault("safety.max_cpu_usage_threshold", 95.0)
	v.SetDefault("safety.max_memory_usage_threshold", 95.0)
	v.SetDefault("safety.emergency_scale_down_threshold", 98.0)
	v.SetDefault("safety.enable_host_protection", true)

	// Per-container defaults
	v.SetDefault("defaults.thresholds.cpu_scale_up", 80.0)
	v.SetDefault("defaults.thresholds.cpu_scale_down", 30.0)
	v.SetDefault("defaults.thresholds.memory_scale_up", 85.0)
	v.SetDefault("defaults.thresholds.memory_scale_down", 40.0)
	v.SetDefault("defaults.limits.min_cpu_cores", 1)
	v.SetDefault("defaults.limits.max_cpu_cores", 8)
	v.SetDefault("defaults.limits.min_memory_mb", 512)
	v.SetDefault("defaults.limits.max_memory_mb", 8192)
	v.SetDefault("defaults.limits.cpu_step", 1)
	v.SetDefault("defaults.limits.memory_step_mb", 256)
	v.SetDefault("defaults.cooldown_seconds", 300)
	v.SetDefault("defaults.evaluation_periods", 3)

	// API defaults
	v.SetDefault("api.enabled", true)
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.read_timeout", "15s")
	v.SetDefault("api.write_timeout", "15s")

	// Database defaults
	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "lxc_autoscaler")
	v.SetDefault("database.user", "autoscaler")
	v.SetDefault("database.max_connections", 10)
	v.SetDefault("database.ssl_mode", "disable")
}
