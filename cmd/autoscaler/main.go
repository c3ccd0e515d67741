package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pvescale/lxc-autoscaler/api"
	"github.com/pvescale/lxc-autoscaler/internal/events"
	"github.com/pvescale/lxc-autoscaler/internal/logger"
	"github.com/pvescale/lxc-autoscaler/internal/metrics"
	"github.com/pvescale/lxc-autoscaler/internal/orchestrator"
	"github.com/pvescale/lxc-autoscaler/internal/proxmox"
	"github.com/pvescale/lxc-autoscaler/internal/resilience"
	"github.com/pvescale/lxc-autoscaler/internal/safety"
	"github.com/pvescale/lxc-autoscaler/pkg/config"
	"github.com/pvescale/lxc-autoscaler/pkg/database"
)

func main() {
	var (
		configPath     = flag.String("config", "", "path to configuration file")
		validateConfig = flag.Bool("validate-config", false, "validate configuration and exit")
		dryRun         = flag.Bool("dry-run", false, "log scaling decisions without applying them")
		healthCheck    = flag.Bool("health-check", false, "probe the running daemon's health endpoint and exit")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if *validateConfig {
		if err := cfg.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "Configuration invalid: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Configuration valid")
		return
	}

	if *healthCheck {
		os.Exit(runHealthCheck(cfg))
	}

	if *dryRun {
		cfg.Monitoring.EnableDryRun = true
	}

	if err := run(cfg, *configPath); err != nil {
		logger.WithError(err).Fatal("Autoscaler exited with error")
	}
}

// runHealthCheck probes the daemon's health endpoint. The probe rides
// on the API server, so a configuration with the API disabled cannot be
// health-checked this way and says so instead of reporting a dead
// endpoint.
func runHealthCheck(cfg *config.Config) int {
	if !cfg.API.Enabled {
		fmt.Fprintln(os.Stderr, "Health check requires the API server; set api.enabled to true")
		return 1
	}
	return probeHealth(cfg.API.Port)
}

// probeHealth hits the local health endpoint, for container liveness
// probes that only have the binary available.
func probeHealth(port int) int {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(fmt.Sprintf("http://localhost:%d/health", port))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		return 1
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Health check failed: status %d\n", resp.StatusCode)
		return 1
	}
	fmt.Println("Healthy")
	return 0
}

func run(cfg *config.Config, configPath string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger.Setup(cfg.App.LogLevel, cfg.App.Mode)
	logger.WithFields(map[string]interface{}{
		"mode":       cfg.App.Mode,
		"containers": len(cfg.Containers),
		"dry_run":    cfg.Monitoring.EnableDryRun,
	}).Infof("Starting %s", cfg.App.Name)

	client := buildClient(cfg)
	defer client.Close()

	bus := events.NewEventBus(100)
	publisher := events.NewPublisher(bus)

	var store events.OperationStore
	var db *database.DB
	if cfg.Database.Enabled {
		var err error
		db, err = database.New(cfg.Database)
		if err != nil {
			return fmt.Errorf("database setup failed: %w", err)
		}
		defer db.Close()
		store = db
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eventLogger := events.NewEventLogger(bus, store)
	eventLogger.Start(ctx)

	safetyCtrl := safety.NewController(safety.Config{
		MaxConcurrentOperations:     cfg.Safety.MaxConcurrentOperations,
		MaxCPUUsageThreshold:        cfg.Safety.MaxCPUUsageThreshold,
		MaxMemoryUsageThreshold:     cfg.Safety.MaxMemoryUsageThreshold,
		EmergencyScaleDownThreshold: cfg.Safety.EmergencyScaleDownThreshold,
		EnableHostProtection:        cfg.Safety.EnableHostProtection,
	})

	m := metrics.New()
	orch := orchestrator.New(cfg, client, safetyCtrl, publisher, m)

	var server *api.Server
	serverErr := make(chan error, 1)
	if cfg.API.Enabled {
		server = api.NewServer(cfg.API, cfg.App.Mode, orch, bus, m.Handler())
		go func() {
			serverErr <- server.Start()
		}()
	}

	orchDone := make(chan struct{})
	go func() {
		orch.Run(ctx)
		close(orchDone)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	for {
		select {
		case sig := <-sigCh:
			if sig == syscall.SIGHUP {
				reload(orch, configPath)
				continue
			}
			logger.Infof("Received %s, shutting down", sig)
			return shutdown(cancel, orchDone, server, bus, eventLogger, cfg.App.ShutdownTimeout)

		case err := <-serverErr:
			if err != nil {
				cancel()
				return err
			}
		}
	}
}

func buildClient(cfg *config.Config) proxmox.Client {
	httpClient := proxmox.NewHTTPClient(proxmox.HTTPClientConfig{
		Host:       cfg.Proxmox.Host,
		Port:       cfg.Proxmox.Port,
		User:       cfg.Proxmox.User,
		Password:   cfg.Proxmox.Password,
		TokenName:  cfg.Proxmox.TokenName,
		TokenValue: cfg.Proxmox.TokenValue,
		VerifySSL:  cfg.Proxmox.VerifySSL,
		Timeout:    cfg.Proxmox.Timeout,
	})

	breaker := resilience.NewCircuitBreaker(resilience.BreakerConfig{
		FailureThreshold: 5,
		ResetTimeout:     60 * time.Second,
	})
	return proxmox.NewResilientClient(httpClient, breaker)
}

// reload re-reads the configuration file and hands it to the running
// loop. An invalid file is rejected and the current configuration stays
// in effect.
func reload(orch *orchestrator.Orchestrator, configPath string) {
	logger.Info("Received SIGHUP, reloading configuration")

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.WithError(err).Error("Reload failed, keeping current configuration")
		return
	}
	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Error("Reloaded configuration invalid, keeping current configuration")
		return
	}
	orch.Reload(cfg)
}

func shutdown(cancel context.CancelFunc, orchDone <-chan struct{}, server *api.Server, bus *events.EventBus, eventLogger *events.EventLogger, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), timeout)
	defer cancelShutdown()

	cancel()

	select {
	case <-orchDone:
	case <-shutdownCtx.Done():
		logger.Warn("Orchestrator did not stop within shutdown timeout")
	}

	if server != nil {
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("API server shutdown failed")
		}
	}

	bus.Close()
	eventLogger.Wait()

	logger.Info("Shutdown complete")
	return nil
}
