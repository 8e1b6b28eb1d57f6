// Package config loads the desk configuration: YAML file first, then
// TAPE_* environment overrides, then validation. Missing files fall back
// to defaults so `tape` works out of the box.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Default on-disk layout, relative to the working directory
const (
	DefaultDir        = ".tape"
	DefaultDBPath     = ".tape/tape.db"
	DefaultConfigPath = ".tape/config.yaml"
	DefaultSkillsDir  = ".tape/skills"
)

// Duration wraps time.Duration so YAML reads and writes human values
// ("10s", "2m") instead of raw nanosecond integers.
type Duration time.Duration

// UnmarshalYAML decodes either a duration string ("10s") or a bare integer
// second count
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Tag == "!!int" {
		var secs int64
		if err := value.Decode(&secs); err != nil {
			return fmt.Errorf("invalid duration value %q: %w", value.Value, err)
		}
		*d = Duration(time.Duration(secs) * time.Second)
		return nil
	}
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("invalid duration value %q: %w", value.Value, err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML encodes the duration as its canonical string
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the full desk configuration
type Config struct {
	Trading TradingConfig `yaml:"trading"`
	Engine  EngineConfig  `yaml:"engine"`
	Market  MarketConfig  `yaml:"market"`
	API     APIConfig     `yaml:"api"`
}

// TradingConfig holds the ambient trading parameters seeded into every session
type TradingConfig struct {
	// DefaultSymbol is the instrument assumed when the user doesn't name one
	DefaultSymbol string `yaml:"default_symbol"`

	// DefaultExchange is the venue candles are fetched from
	DefaultExchange string `yaml:"default_exchange"`

	// DefaultInterval is the candle interval (e.g. "1h", "4h", "1d")
	DefaultInterval string `yaml:"default_interval"`

	// DefaultSizePct is the account % placed at risk per signal
	// Default: 2.0, Range: (0, 100]
	DefaultSizePct float64 `yaml:"default_size_pct"`

	// MaxLeverage caps the leverage any signal may carry
	// Default: 5.0, Range: [1, 125]
	MaxLeverage float64 `yaml:"max_leverage"`

	// AccountEquity is the reference equity for position sizing, in quote units
	AccountEquity float64 `yaml:"account_equity"`

	// Profile is a free-form note about the trader, injected into session context
	Profile string `yaml:"profile"`
}

// EngineConfig holds conversation-loop limits
type EngineConfig struct {
	// MaxTurns caps supervisor loop iterations before the run is aborted
	// Default: 40, Range: 1-200
	MaxTurns int `yaml:"max_turns"`

	// WorkerMaxTurns caps delegated worker loop iterations
	// Default: 20, Range: 1-200
	WorkerMaxTurns int `yaml:"worker_max_turns"`

	// MaxDelegationDepth is the recursion ceiling for delegate→delegate chains
	// Default: 3, Range: 1-10
	MaxDelegationDepth int `yaml:"max_delegation_depth"`
}

// MarketConfig holds market-data access settings
type MarketConfig struct {
	// Provider selects the data source: "binance" (REST) or "synthetic" (offline)
	Provider string `yaml:"provider"`

	// BaseURL overrides the REST endpoint (testing, mirrors)
	BaseURL string `yaml:"base_url"`

	// RateLimit is the REST request budget in requests/second
	// Default: 10, Range: (0, 100]
	RateLimit float64 `yaml:"rate_limit"`

	// Timeout bounds a single REST call
	// Default: 10s
	Timeout Duration `yaml:"timeout"`
}

// APIConfig holds model-client settings
type APIConfig struct {
	// Model is the supervisor model; empty uses the client default
	Model string `yaml:"model"`

	// WorkerModel is the delegated-worker model; empty uses the cheaper default
	WorkerModel string `yaml:"worker_model"`

	// MaxTokens caps a single completion
	// Default: 4096, Range: 256-64000
	MaxTokens int `yaml:"max_tokens"`

	// MaxAttempts is the completion retry budget (first try included)
	// Default: 5, Range: 1-10
	MaxAttempts int `yaml:"max_attempts"`

	// BaseBackoff is the first retry delay
	// Default: 2s
	BaseBackoff Duration `yaml:"base_backoff"`

	// MaxBackoff caps the retry delay
	// Default: 16s
	MaxBackoff Duration `yaml:"max_backoff"`

	// MaxConcurrentCalls caps in-flight completions across the process
	// Default: 3, Range: 1-32
	MaxConcurrentCalls int `yaml:"max_concurrent_calls"`
}

// Default returns the default configuration
func Default() Config {
	return Config{
		Trading: TradingConfig{
			DefaultSymbol:   "BTCUSDT",
			DefaultExchange: "binance",
			DefaultInterval: "4h",
			DefaultSizePct:  2.0,
			MaxLeverage:     5.0,
			AccountEquity:   10000,
		},
		Engine: EngineConfig{
			MaxTurns:           40,
			WorkerMaxTurns:     20,
			MaxDelegationDepth: 3,
		},
		Market: MarketConfig{
			Provider:  "synthetic",
			BaseURL:   "https://api.binance.com",
			RateLimit: 10,
			Timeout:   Duration(10 * time.Second),
		},
		API: APIConfig{
			MaxTokens:          4096,
			MaxAttempts:        5,
			BaseBackoff:        Duration(2 * time.Second),
			MaxBackoff:         Duration(16 * time.Second),
			MaxConcurrentCalls: 3,
		},
	}
}

// Load reads the YAML file at path (defaults applied underneath), then
// applies environment overrides and validates. A missing file is not an
// error: defaults plus environment win.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = DefaultConfigPath
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// Defaults only
	default:
		return cfg, fmt.Errorf("reading config file: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// applyEnv applies TAPE_* environment overrides
//
// Environment variables:
//   - TAPE_SYMBOL, TAPE_EXCHANGE, TAPE_INTERVAL: trading defaults
//   - TAPE_SIZE_PCT, TAPE_MAX_LEVERAGE, TAPE_EQUITY: sizing parameters
//   - TAPE_MAX_TURNS, TAPE_WORKER_MAX_TURNS, TAPE_MAX_DEPTH: loop limits
//   - TAPE_MARKET_PROVIDER, TAPE_MARKET_BASE_URL: data source
//   - TAPE_MODEL, TAPE_WORKER_MODEL, TAPE_MAX_TOKENS: model client
func (c *Config) applyEnv() error {
	if err := parseEnvString("TAPE_SYMBOL", &c.Trading.DefaultSymbol); err != nil {
		return err
	}
	if err := parseEnvString("TAPE_EXCHANGE", &c.Trading.DefaultExchange); err != nil {
		return err
	}
	if err := parseEnvString("TAPE_INTERVAL", &c.Trading.DefaultInterval); err != nil {
		return err
	}
	if err := parseEnvFloat("TAPE_SIZE_PCT", &c.Trading.DefaultSizePct); err != nil {
		return err
	}
	if err := parseEnvFloat("TAPE_MAX_LEVERAGE", &c.Trading.MaxLeverage); err != nil {
		return err
	}
	if err := parseEnvFloat("TAPE_EQUITY", &c.Trading.AccountEquity); err != nil {
		return err
	}
	if err := parseEnvInt("TAPE_MAX_TURNS", &c.Engine.MaxTurns); err != nil {
		return err
	}
	if err := parseEnvInt("TAPE_WORKER_MAX_TURNS", &c.Engine.WorkerMaxTurns); err != nil {
		return err
	}
	if err := parseEnvInt("TAPE_MAX_DEPTH", &c.Engine.MaxDelegationDepth); err != nil {
		return err
	}
	if err := parseEnvString("TAPE_MARKET_PROVIDER", &c.Market.Provider); err != nil {
		return err
	}
	if err := parseEnvString("TAPE_MARKET_BASE_URL", &c.Market.BaseURL); err != nil {
		return err
	}
	if err := parseEnvString("TAPE_MODEL", &c.API.Model); err != nil {
		return err
	}
	if err := parseEnvString("TAPE_WORKER_MODEL", &c.API.WorkerModel); err != nil {
		return err
	}
	if err := parseEnvInt("TAPE_MAX_TOKENS", &c.API.MaxTokens); err != nil {
		return err
	}
	return nil
}

// Validate checks if the configuration has valid values
func (c *Config) Validate() error {
	if c.Trading.DefaultSymbol == "" {
		return fmt.Errorf("trading.default_symbol is required")
	}
	if c.Trading.DefaultExchange == "" {
		return fmt.Errorf("trading.default_exchange is required")
	}
	if c.Trading.DefaultInterval == "" {
		return fmt.Errorf("trading.default_interval is required")
	}
	if c.Trading.DefaultSizePct <= 0 || c.Trading.DefaultSizePct > 100 {
		return fmt.Errorf("trading.default_size_pct must be in (0, 100] (got %g)", c.Trading.DefaultSizePct)
	}
	if c.Trading.MaxLeverage < 1 || c.Trading.MaxLeverage > 125 {
		return fmt.Errorf("trading.max_leverage must be between 1 and 125 (got %g)", c.Trading.MaxLeverage)
	}
	if c.Trading.AccountEquity <= 0 {
		return fmt.Errorf("trading.account_equity must be positive (got %g)", c.Trading.AccountEquity)
	}

	if c.Engine.MaxTurns < 1 || c.Engine.MaxTurns > 200 {
		return fmt.Errorf("engine.max_turns must be between 1 and 200 (got %d)", c.Engine.MaxTurns)
	}
	if c.Engine.WorkerMaxTurns < 1 || c.Engine.WorkerMaxTurns > 200 {
		return fmt.Errorf("engine.worker_max_turns must be between 1 and 200 (got %d)", c.Engine.WorkerMaxTurns)
	}
	if c.Engine.MaxDelegationDepth < 1 || c.Engine.MaxDelegationDepth > 10 {
		return fmt.Errorf("engine.max_delegation_depth must be between 1 and 10 (got %d)", c.Engine.MaxDelegationDepth)
	}

	if c.Market.Provider != "binance" && c.Market.Provider != "synthetic" {
		return fmt.Errorf("market.provider must be 'binance' or 'synthetic' (got %q)", c.Market.Provider)
	}
	if c.Market.RateLimit <= 0 || c.Market.RateLimit > 100 {
		return fmt.Errorf("market.rate_limit must be in (0, 100] (got %g)", c.Market.RateLimit)
	}
	if c.Market.Timeout <= 0 {
		return fmt.Errorf("market.timeout must be positive (got %v)", c.Market.Timeout.Std())
	}

	if c.API.MaxTokens < 256 || c.API.MaxTokens > 64000 {
		return fmt.Errorf("api.max_tokens must be between 256 and 64000 (got %d)", c.API.MaxTokens)
	}
	if c.API.MaxAttempts < 1 || c.API.MaxAttempts > 10 {
		return fmt.Errorf("api.max_attempts must be between 1 and 10 (got %d)", c.API.MaxAttempts)
	}
	if c.API.BaseBackoff <= 0 || c.API.MaxBackoff < c.API.BaseBackoff {
		return fmt.Errorf("api backoff range invalid (base %v, max %v)", c.API.BaseBackoff.Std(), c.API.MaxBackoff.Std())
	}
	if c.API.MaxConcurrentCalls < 1 || c.API.MaxConcurrentCalls > 32 {
		return fmt.Errorf("api.max_concurrent_calls must be between 1 and 32 (got %d)", c.API.MaxConcurrentCalls)
	}
	return nil
}

// Write serializes the configuration to path (used by `tape init`)
func (c *Config) Write(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// parseEnvString parses a string from an environment variable
func parseEnvString(key string, dest *string) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	*dest = value
	return nil
}

// parseEnvInt parses an int from an environment variable
func parseEnvInt(key string, dest *int) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

// parseEnvFloat parses a float64 from an environment variable
func parseEnvFloat(key string, dest *float64) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}
