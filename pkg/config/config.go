package config

import (
	"fmt"
	"log"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"

	"github.com/intentline-hq/intentline/pkg/logger"
)

// Config holds the configuration for the orchestration engine
type Config struct {
	OwnerAddress        common.Address
	OrchestratorAddress common.Address
	PollingInterval     time.Duration
	WorkerCount         int
	MetricsPort         string
	StorePath           string
	MaxRetries          int
	SlippageBps         int64
	QuoteCacheTTL       time.Duration
	CircuitBreaker      CircuitBreakerConfig
	LoggerConfig        LoggerConfig
	Venues              []VenueConfig
	Assets              map[string]common.Address
	EventsWebhookURL    string
	WebhookAuthToken    string
	NATSURL             string
}

// CircuitBreakerConfig holds circuit breaker configuration
type CircuitBreakerConfig struct {
	Enabled        bool
	Threshold      int
	WindowDuration time.Duration
	ResetTimeout   time.Duration
}

// LoggerConfig holds the configuration for logging
type LoggerConfig struct {
	Level    logger.Level
	Coloring bool
}

// LoadConfig loads the configuration from environment variables
func LoadConfig() (*Config, error) {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found, using environment variables")
	}

	ownerAddress, err := GetEnvOwnerAddress()
	if err != nil {
		return nil, err
	}

	orchestratorAddress, err := GetEnvOrchestratorAddress()
	if err != nil {
		return nil, err
	}

	pollingInterval, err := GetEnvPollingInterval()
	if err != nil {
		return nil, err
	}

	workerCount, err := GetEnvWorkerCount()
	if err != nil {
		return nil, err
	}

	metricsPort, err := GetEnvMetricsPort()
	if err != nil {
		return nil, err
	}

	maxRetries, err := GetEnvMaxRetries()
	if err != nil {
		return nil, err
	}

	slippageBps, err := GetEnvSlippageBps()
	if err != nil {
		return nil, err
	}

	quoteCacheTTL, err := GetEnvQuoteCacheTTL()
	if err != nil {
		return nil, err
	}

	cbEnabled, err := GetEnvCircuitBreakerEnabled()
	if err != nil {
		return nil, err
	}

	cbThreshold, err := GetEnvCircuitBreakerThreshold()
	if err != nil {
		return nil, err
	}

	cbWindow, err := GetEnvCircuitBreakerWindow()
	if err != nil {
		return nil, err
	}

	cbReset, err := GetEnvCircuitBreakerReset()
	if err != nil {
		return nil, err
	}

	logLevel, err := GetEnvLogLevel()
	if err != nil {
		return nil, err
	}

	logColoring, err := GetEnvLogColoring()
	if err != nil {
		return nil, err
	}

	venueConfigs, err := GetEnvVenueConfigs()
	if err != nil {
		return nil, err
	}

	assets, err := GetEnvAssets()
	if err != nil {
		return nil, err
	}

	webhookURL, err := GetEnvEventsWebhookURL()
	if err != nil {
		return nil, err
	}

	natsURL, err := GetEnvNATSURL()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		OwnerAddress:        ownerAddress,
		OrchestratorAddress: orchestratorAddress,
		PollingInterval:     pollingInterval,
		WorkerCount:         workerCount,
		MetricsPort:         metricsPort,
		StorePath:           GetEnvStorePath(),
		MaxRetries:          maxRetries,
		SlippageBps:         slippageBps,
		QuoteCacheTTL:       quoteCacheTTL,
		CircuitBreaker: CircuitBreakerConfig{
			Enabled:        cbEnabled,
			Threshold:      cbThreshold,
			WindowDuration: cbWindow,
			ResetTimeout:   cbReset,
		},
		LoggerConfig: LoggerConfig{
			Level:    logLevel,
			Coloring: logColoring,
		},
		Venues:           venueConfigs,
		Assets:           assets,
		EventsWebhookURL: webhookURL,
		WebhookAuthToken: GetEnvWebhookAuthToken(),
		NATSURL:          natsURL,
	}

	// Validate required environment variables
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateConfig validates the configuration
func validateConfig(cfg *Config) error {
	if cfg.OwnerAddress == (common.Address{}) {
		return fmt.Errorf("OWNER_ADDRESS environment variable is required")
	}
	if cfg.OrchestratorAddress == (common.Address{}) {
		return fmt.Errorf("ORCHESTRATOR_ADDRESS must not be the zero address")
	}
	if cfg.OrchestratorAddress == cfg.OwnerAddress {
		return fmt.Errorf("ORCHESTRATOR_ADDRESS must differ from OWNER_ADDRESS")
	}
	if len(cfg.Venues) == 0 {
		return fmt.Errorf("at least one venue configuration is required")
	}

	names := make(map[string]struct{})
	actions := make(map[string]string)
	for _, venue := range cfg.Venues {
		if err := venue.Validate(); err != nil {
			return fmt.Errorf("venue %q: %w", venue.Name, err)
		}
		if _, dup := names[venue.Name]; dup {
			return fmt.Errorf("duplicate venue name %q", venue.Name)
		}
		names[venue.Name] = struct{}{}
		for _, action := range venue.Actions {
			if prev, claimed := actions[action]; claimed {
				return fmt.Errorf("action %q claimed by both %q and %q", action, prev, venue.Name)
			}
			actions[action] = venue.Name
		}
	}
	return nil
}
