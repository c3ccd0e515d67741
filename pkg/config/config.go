package config

import (
	"time"

	"github.com/pvescale/lxc-autoscaler/pkg/models"
)

type Config struct {
	App        AppConfig         `mapstructure:"app"`
	Proxmox    ProxmoxConfig     `mapstructure:"proxmox"`
	Monitoring MonitoringConfig  `mapstructure:"monitoring"`
	Safety     SafetyConfig      `mapstructure:"safety"`
	Defaults   ContainerDefaults `mapstructure:"defaults"`
	Containers []ContainerConfig `mapstructure:"containers"`
	API        APIConfig         `mapstructure:"api"`
	Database   DatabaseConfig    `mapstructure:"database"`
}

type AppConfig struct {
	Name            string        `mapstructure:"name"`
	Mode            string        `mapstructure:"mode"`
	LogLevel        string        `mapstructure:"log_level"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type ProxmoxConfig struct {
	Host       string        `mapstructure:"host"`
	Port       int           `mapstructure:"port"`
	User       string        `mapstructure:"user"`
	Password   string        `mapstructure:"password"`
	TokenName  string        `mapstructure:"token_name"`
	TokenValue string        `mapstructure:"token_value"`
	VerifySSL  bool          `mapstructure:"verify_ssl"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

func (p ProxmoxConfig) HasTokenAuth() bool {
	return p.TokenName != "" && p.TokenValue != ""
}

type MonitoringConfig struct {
	IntervalSeconds int  `mapstructure:"interval_seconds"`
	EnableDryRun    bool `mapstructure:"enable_dry_run"`
}

func (m MonitoringConfig) Interval() time.Duration {
	return time.Duration(m.IntervalSeconds) * time.Second
}

type SafetyConfig struct {
	MaxConcurrentOperations     int     `mapstructure:"max_concurrent_operations"`
	MaxCPUUsageThreshold        float64 `mapstructure:"max_cpu_usage_threshold"`
	MaxMemoryUsageThreshold     float64 `mapstructure:"max_memory_usage_threshold"`
	EmergencyScaleDownThreshold float64 `mapstructure:"emergency_scale_down_threshold"`
	EnableHostProtection        bool    `mapstructure:"enable_host_protection"`
}

type ThresholdConfig struct {
	CPUScaleUp      float64 `mapstructure:"cpu_scale_up"`
	CPUScaleDown    float64 `mapstructure:"cpu_scale_down"`
	MemoryScaleUp   float64 `mapstructure:"memory_scale_up"`
	MemoryScaleDown float64 `mapstructure:"memory_scale_down"`
}

func (t ThresholdConfig) ToModel() models.Thresholds {
	return models.Thresholds{
		CPUScaleUp:      t.CPUScaleUp,
		CPUScaleDown:    t.CPUScaleDown,
		MemoryScaleUp:   t.MemoryScaleUp,
		MemoryScaleDown: t.MemoryScaleDown,
	}
}

type LimitsConfig struct {
	MinCPUCores  int `mapstructure:"min_cpu_cores"`
	MaxCPUCores  int `mapstructure:"max_cpu_cores"`
	MinMemoryMB  int `mapstructure:"min_memory_mb"`
	MaxMemoryMB  int `mapstructure:"max_memory_mb"`
	CPUStep      int `mapstructure:"cpu_step"`
	MemoryStepMB int `mapstructure:"memory_step_mb"`
}

func (l LimitsConfig) ToModel() models.Limits {
	return models.Limits{
		MinCPUCores:  l.MinCPUCores,
		MaxCPUCores:  l.MaxCPUCores,
		MinMemoryMB:  l.MinMemoryMB,
		MaxMemoryMB:  l.MaxMemoryMB,
		CPUStep:      l.CPUStep,
		MemoryStepMB: l.MemoryStepMB,
	}
}

// ContainerDefaults is applied to containers that omit their own
// thresholds, limits, cooldown, or evaluation periods.
type ContainerDefaults struct {
	Thresholds        ThresholdConfig `mapstructure:"thresholds"`
	Limits            LimitsConfig    `mapstructure:"limits"`
	CooldownSeconds   int             `mapstructure:"cooldown_seconds"`
	EvaluationPeriods int             `mapstructure:"evaluation_periods"`
}

type ContainerConfig struct {
	VMID              int              `mapstructure:"vmid"`
	Enabled           *bool            `mapstructure:"enabled"`
	Node              string           `mapstructure:"node"`
	Thresholds        *ThresholdConfig `mapstructure:"thresholds"`
	Limits            *LimitsConfig    `mapstructure:"limits"`
	CooldownSeconds   int              `mapstructure:"cooldown_seconds"`
	EvaluationPeriods int              `mapstructure:"evaluation_periods"`
}

func (c ContainerConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

func (c ContainerConfig) Cooldown() time.Duration {
	return time.Duration(c.CooldownSeconds) * time.Second
}

type APIConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Name            string        `mapstructure:"name"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	MaxConnections  int           `mapstructure:"max_connections"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	PingTimeout     time.Duration `mapstructure:"ping_timeout"`
}

// ApplyDefaults fills per-container gaps from the defaults block. Load
// calls this once; after that the structure is treated as immutable.
func (c *Config) ApplyDefaults() {
	for i := range c.Containers {
		cc := &c.Containers[i]
		if cc.Thresholds == nil {
			t := c.Defaults.Thresholds
			cc.Thresholds = &t
		}
		if cc.Limits == nil {
			l := c.Defaults.Limits
			cc.Limits = &l
		}
		if cc.CooldownSeconds == 0 {
			cc.CooldownSeconds = c.Defaults.CooldownSeconds
		}
		if cc.EvaluationPeriods == 0 {
			cc.EvaluationPeriods = c.Defaults.EvaluationPeriods
		}
	}
}

// EnabledContainers returns the configured containers with the enabled
// flag set (or unset, which defaults to enabled).
func (c *Config) EnabledContainers() []ContainerConfig {
	out := make([]ContainerConfig, 0, len(c.Containers))
	for _, cc := range c.Containers {
		if cc.IsEnabled() {
			out = append(out, cc)
		}
	}
	return out
}
