package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/intentline-hq/intentline/pkg/logger"
)

const (
	// DefaultPollingInterval defines the default ledger polling interval in seconds
	DefaultPollingInterval = 5

	// DefaultWorkerCount defines the default number of workers to execute intents
	DefaultWorkerCount = 5

	// DefaultMetricsPort defines the default port for the health and metrics server
	DefaultMetricsPort = "8080"

	// DefaultOrchestratorAddress defines the default identity the engine claims
	// and settles intents under
	DefaultOrchestratorAddress = "0x0000000000000000000000000000000000000001"

	// DefaultCircuitBreakerEnabled defines whether venue circuit breakers are enabled
	DefaultCircuitBreakerEnabled = true

	// DefaultCircuitBreakerThreshold defines the failure count that suspends a venue
	DefaultCircuitBreakerThreshold = 5

	// DefaultCircuitBreakerWindow defines the failure counting window in seconds
	DefaultCircuitBreakerWindow = 5

	// DefaultCircuitBreakerReset defines the venue suspension reset timeout in seconds
	DefaultCircuitBreakerReset = 15

	// DefaultMaxRetries defines the maximum number of retries for failed executions
	DefaultMaxRetries = 3

	// DefaultSlippageBps defines the default swap slippage tolerance in basis points
	DefaultSlippageBps = 500

	// DefaultQuoteCacheTTL defines the default venue quote cache lifetime in seconds
	DefaultQuoteCacheTTL = 300
)

// assetSymbols lists the symbols checked for ASSET_<SYMBOL>_ADDRESS overrides
var assetSymbols = []string{"USDC", "USDT", "WETH", "DAI", "WBTC"}

// GetEnvPollingInterval returns the polling interval from environment variables
func GetEnvPollingInterval() (time.Duration, error) {
	interval := os.Getenv("POLLING_INTERVAL")
	if interval == "" {
		return DefaultPollingInterval * time.Second, nil
	}
	intervalInt, err := strconv.Atoi(interval)
	if err != nil {
		return 0, fmt.Errorf("invalid POLLING_INTERVAL value: %s, must be an integer", interval)
	}
	if intervalInt <= 0 {
		return 0, fmt.Errorf("POLLING_INTERVAL must be positive")
	}
	return time.Duration(intervalInt) * time.Second, nil
}

// GetEnvWorkerCount returns the worker count from environment variables
func GetEnvWorkerCount() (int, error) {
	count := os.Getenv("WORKER_COUNT")
	if count == "" {
		return DefaultWorkerCount, nil
	}
	countInt, err := strconv.Atoi(count)
	if err != nil {
		return 0, fmt.Errorf("invalid WORKER_COUNT value: %s, must be an integer", count)
	}
	if countInt <= 0 {
		return 0, fmt.Errorf("WORKER_COUNT must be positive")
	}
	return countInt, nil
}

// GetEnvMetricsPort returns the metrics server port from environment variables
func GetEnvMetricsPort() (string, error) {
	port := os.Getenv("METRICS_PORT")
	if port == "" {
		return DefaultMetricsPort, nil
	}
	portInt, err := strconv.Atoi(port)
	if err != nil || portInt < 1 || portInt > 65535 {
		return "", fmt.Errorf("invalid METRICS_PORT value: %s, must be a port number", port)
	}
	return port, nil
}

// GetEnvOwnerAddress returns the ledger owner address from environment variables.
// The zero value is returned when unset; LoadConfig rejects it during validation.
func GetEnvOwnerAddress() (common.Address, error) {
	owner := os.Getenv("OWNER_ADDRESS")
	if owner == "" {
		return common.Address{}, nil
	}
	if !common.IsHexAddress(owner) {
		return common.Address{}, fmt.Errorf("invalid OWNER_ADDRESS value: %s, must be a valid address", owner)
	}
	return common.HexToAddress(owner), nil
}

// GetEnvOrchestratorAddress returns the orchestrator identity from environment variables
func GetEnvOrchestratorAddress() (common.Address, error) {
	orchestrator := os.Getenv("ORCHESTRATOR_ADDRESS")
	if orchestrator == "" {
		return common.HexToAddress(DefaultOrchestratorAddress), nil
	}
	if !common.IsHexAddress(orchestrator) {
		return common.Address{}, fmt.Errorf("invalid ORCHESTRATOR_ADDRESS value: %s, must be a valid address", orchestrator)
	}
	return common.HexToAddress(orchestrator), nil
}

// GetEnvCircuitBreakerEnabled returns whether venue circuit breakers are enabled
func GetEnvCircuitBreakerEnabled() (bool, error) {
	enabled := os.Getenv("CIRCUIT_BREAKER_ENABLED")
	if enabled == "" {
		return DefaultCircuitBreakerEnabled, nil
	}
	enabledBool, err := strconv.ParseBool(enabled)
	if err != nil {
		return false, fmt.Errorf("invalid CIRCUIT_BREAKER_ENABLED value: %s, must be a boolean", enabled)
	}
	return enabledBool, nil
}

// GetEnvCircuitBreakerThreshold returns the circuit breaker failure threshold
func GetEnvCircuitBreakerThreshold() (int, error) {
	threshold := os.Getenv("CIRCUIT_BREAKER_THRESHOLD")
	if threshold == "" {
		return DefaultCircuitBreakerThreshold, nil
	}
	thresholdInt, err := strconv.Atoi(threshold)
	if err != nil {
		return 0, fmt.Errorf("invalid CIRCUIT_BREAKER_THRESHOLD value: %s, must be an integer", threshold)
	}
	if thresholdInt <= 0 {
		return 0, fmt.Errorf("CIRCUIT_BREAKER_THRESHOLD must be positive")
	}
	return thresholdInt, nil
}

// GetEnvCircuitBreakerWindow returns the circuit breaker failure window
func GetEnvCircuitBreakerWindow() (time.Duration, error) {
	window := os.Getenv("CIRCUIT_BREAKER_WINDOW")
	if window == "" {
		return DefaultCircuitBreakerWindow * time.Second, nil
	}
	windowInt, err := strconv.Atoi(window)
	if err != nil {
		return 0, fmt.Errorf("invalid CIRCUIT_BREAKER_WINDOW value: %s, must be an integer number of seconds", window)
	}
	if windowInt <= 0 {
		return 0, fmt.Errorf("CIRCUIT_BREAKER_WINDOW must be positive")
	}
	return time.Duration(windowInt) * time.Second, nil
}

// GetEnvCircuitBreakerReset returns the circuit breaker reset timeout
func GetEnvCircuitBreakerReset() (time.Duration, error) {
	reset := os.Getenv("CIRCUIT_BREAKER_RESET")
	if reset == "" {
		return DefaultCircuitBreakerReset * time.Second, nil
	}
	resetInt, err := strconv.Atoi(reset)
	if err != nil {
		return 0, fmt.Errorf("invalid CIRCUIT_BREAKER_RESET value: %s, must be an integer number of seconds", reset)
	}
	if resetInt <= 0 {
		return 0, fmt.Errorf("CIRCUIT_BREAKER_RESET must be positive")
	}
	return time.Duration(resetInt) * time.Second, nil
}

// GetEnvMaxRetries returns the maximum retry count from environment variables
func GetEnvMaxRetries() (int, error) {
	retries := os.Getenv("MAX_RETRIES")
	if retries == "" {
		return DefaultMaxRetries, nil
	}
	retriesInt, err := strconv.Atoi(retries)
	if err != nil {
		return 0, fmt.Errorf("invalid MAX_RETRIES value: %s, must be an integer", retries)
	}
	if retriesInt < 0 {
		return 0, fmt.Errorf("MAX_RETRIES must not be negative")
	}
	return retriesInt, nil
}

// GetEnvStorePath returns the SQLite database path from environment variables.
// An empty value keeps the ledger in memory.
func GetEnvStorePath() string {
	return os.Getenv("STORE_PATH")
}

// GetEnvSlippageBps returns the swap slippage tolerance from environment variables
func GetEnvSlippageBps() (int64, error) {
	slippage := os.Getenv("SLIPPAGE_BPS")
	if slippage == "" {
		return DefaultSlippageBps, nil
	}
	slippageInt, err := strconv.ParseInt(slippage, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid SLIPPAGE_BPS value: %s, must be an integer", slippage)
	}
	if slippageInt <= 0 || slippageInt >= 10000 {
		return 0, fmt.Errorf("SLIPPAGE_BPS must be between 1 and 9999")
	}
	return slippageInt, nil
}

// GetEnvQuoteCacheTTL returns the venue quote cache lifetime from environment variables
func GetEnvQuoteCacheTTL() (time.Duration, error) {
	ttl := os.Getenv("QUOTE_CACHE_TTL")
	if ttl == "" {
		return DefaultQuoteCacheTTL * time.Second, nil
	}
	ttlInt, err := strconv.Atoi(ttl)
	if err != nil {
		return 0, fmt.Errorf("invalid QUOTE_CACHE_TTL value: %s, must be an integer number of seconds", ttl)
	}
	if ttlInt <= 0 {
		return 0, fmt.Errorf("QUOTE_CACHE_TTL must be positive")
	}
	return time.Duration(ttlInt) * time.Second, nil
}

// GetEnvEventsWebhookURL returns the lifecycle event webhook URL from
// environment variables. An empty value disables webhook delivery.
func GetEnvEventsWebhookURL() (string, error) {
	webhookURL := os.Getenv("EVENTS_WEBHOOK_URL")
	if webhookURL == "" {
		return "", nil
	}
	if _, err := url.ParseRequestURI(webhookURL); err != nil {
		return "", fmt.Errorf("invalid EVENTS_WEBHOOK_URL value: %s, must be a valid URL", webhookURL)
	}
	return webhookURL, nil
}

// GetEnvWebhookAuthToken returns the bearer token sent with webhook deliveries
func GetEnvWebhookAuthToken() string {
	return os.Getenv("WEBHOOK_AUTH_TOKEN")
}

// GetEnvNATSURL returns the NATS server URL from environment variables.
// An empty value disables JetStream event publishing.
func GetEnvNATSURL() (string, error) {
	natsURL := os.Getenv("NATS_URL")
	if natsURL == "" {
		return "", nil
	}
	if _, err := url.Parse(natsURL); err != nil {
		return "", fmt.Errorf("invalid NATS_URL value: %s, must be a valid URL", natsURL)
	}
	return natsURL, nil
}

// GetEnvLogLevel returns the logging level from environment variables
func GetEnvLogLevel() (logger.Level, error) {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		return logger.InfoLevel, nil
	}
	switch strings.ToLower(level) {
	case "debug":
		return logger.DebugLevel, nil
	case "info":
		return logger.InfoLevel, nil
	case "notice":
		return logger.NoticeLevel, nil
	case "error":
		return logger.ErrorLevel, nil
	}
	return 0, fmt.Errorf("invalid LOG_LEVEL value: %s, must be one of debug, info, notice, error", level)
}

// GetEnvLogColoring returns whether log coloring is enabled
func GetEnvLogColoring() (bool, error) {
	coloring := os.Getenv("LOG_COLORING")
	if coloring == "" {
		return false, nil
	}
	coloringBool, err := strconv.ParseBool(coloring)
	if err != nil {
		return false, fmt.Errorf("invalid LOG_COLORING value: %s, must be a boolean", coloring)
	}
	return coloringBool, nil
}

// GetEnvAssets returns the configured asset address table from environment
// variables. Symbols without an ASSET_<SYMBOL>_ADDRESS entry are omitted and
// the parser derives deterministic placeholder addresses for them.
func GetEnvAssets() (map[string]common.Address, error) {
	assets := make(map[string]common.Address)
	for _, symbol := range assetSymbols {
		key := fmt.Sprintf("ASSET_%s_ADDRESS", symbol)
		val := os.Getenv(key)
		if val == "" {
			continue
		}
		if !common.IsHexAddress(val) {
			return nil, fmt.Errorf("invalid %s value: %s, must be a valid address", key, val)
		}
		assets[symbol] = common.HexToAddress(val)
	}
	return assets, nil
}
