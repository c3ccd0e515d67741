package config

import (
	"errors"
	"fmt"
)

// Validate checks the whole configuration and reports every violation at
// once. A non-nil result is fatal at startup.
func (c *Config) Validate() error {
	var errs []error

	// App validation
	validModes := map[string]bool{"development": true, "production": true, "test": true}
	if !validModes[c.App.Mode] {
		errs = append(errs, errors.New("app.mode must be one of: development, production, test"))
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.App.LogLevel] {
		errs = append(errs, errors.New("app.log_level must be one of: debug, info, warn, error"))
	}

	// Proxmox validation
	if c.Proxmox.Host == "" {
		errs = append(errs, errors.New("proxmox.host is required"))
	}
	if c.Proxmox.Port <= 0 || c.Proxmox.Port > 65535 {
		errs = append(errs, errors.New("proxmox.port must be between 1 and 65535"))
	}
	if c.Proxmox.Password == "" && !c.Proxmox.HasTokenAuth() {
		errs = append(errs, errors.New("proxmox requires either password or token authentication"))
	}
	if c.Proxmox.Timeout <= 0 {
		errs = append(errs, errors.New("proxmox.timeout must be positive"))
	}

	// Monitoring validation
	if c.Monitoring.IntervalSeconds < 10 {
		errs = append(errs, errors.New("monitoring.interval_seconds must be at least 10"))
	}

	// Safety validation
	if c.Safety.MaxConcurrentOperations < 1 {
		errs = append(errs, errors.New("safety.max_concurrent_operations must be at least 1"))
	}
	if c.Safety.MaxCPUUsageThreshold < 50 || c.Safety.MaxCPUUsageThreshold > 100 {
		errs = append(errs, errors.New("safety.max_cpu_usage_threshold must be between 50 and 100"))
	}
	if c.Safety.MaxMemoryUsageThreshold < 50 || c.Safety.MaxMemoryUsageThreshold > 100 {
		errs = append(errs, errors.New("safety.max_memory_usage_threshold must be between 50 and 100"))
	}
	if c.Safety.EmergencyScaleDownThreshold < 50 || c.Safety.EmergencyScaleDownThreshold > 100 {
		errs = append(errs, errors.New("safety.emergency_scale_down_threshold must be between 50 and 100"))
	}

	// Container validation
	seen := make(map[int]bool)
	for _, cc := range c.Containers {
		if cc.VMID <= 0 {
			errs = append(errs, fmt.Errorf("container vmid %d must be positive", cc.VMID))
			continue
		}
		if seen[cc.VMID] {
			errs = append(errs, fmt.Errorf("container %d: duplicate vmid", cc.VMID))
		}
		seen[cc.VMID] = true

		errs = append(errs, validateContainer(cc)...)
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed: %v", errs)
	}

	return nil
}

func validateContainer(cc ContainerConfig) []error {
	var errs []error

	if t := cc.Thresholds; t != nil {
		for name, val := range map[string]float64{
			"cpu_scale_up":      t.CPUScaleUp,
			"cpu_scale_down":    t.CPUScaleDown,
			"memory_scale_up":   t.MemoryScaleUp,
			"memory_scale_down": t.MemoryScaleDown,
		} {
			if val <= 0 || val > 100 {
				errs = append(errs, fmt.Errorf("container %d: %s must be between 0 and 100", cc.VMID, name))
			}
		}
		if t.CPUScaleUp <= t.CPUScaleDown {
			errs = append(errs, fmt.Errorf("container %d: cpu_scale_up must be greater than cpu_scale_down", cc.VMID))
		}
		if t.MemoryScaleUp <= t.MemoryScaleDown {
			errs = append(errs, fmt.Errorf("container %d: memory_scale_up must be greater than memory_scale_down", cc.VMID))
		}
	}

	if l := cc.Limits; l != nil {
		if l.MinCPUCores <= 0 {
			errs = append(errs, fmt.Errorf("container %d: min_cpu_cores must be positive", cc.VMID))
		}
		if l.MinCPUCores >= l.MaxCPUCores {
			errs = append(errs, fmt.Errorf("container %d: min_cpu_cores must be less than max_cpu_cores", cc.VMID))
		}
		if l.MinMemoryMB <= 0 {
			errs = append(errs, fmt.Errorf("container %d: min_memory_mb must be positive", cc.VMID))
		}
		if l.MinMemoryMB >= l.MaxMemoryMB {
			errs = append(errs, fmt.Errorf("container %d: min_memory_mb must be less than max_memory_mb", cc.VMID))
		}
		if l.CPUStep <= 0 {
			errs = append(errs, fmt.Errorf("container %d: cpu_step must be positive", cc.VMID))
		}
		if l.MemoryStepMB <= 0 {
			errs = append(errs, fmt.Errorf("container %d: memory_step_mb must be positive", cc.VMID))
		}
	}

	if cc.CooldownSeconds < 60 {
		errs = append(errs, fmt.Errorf("container %d: cooldown_seconds must be at least 60", cc.VMID))
	}
	if cc.EvaluationPeriods < 1 {
		errs = append(errs, fmt.Errorf("container %d: evaluation_periods must be at least 1", cc.VMID))
	}

	return errs
}
