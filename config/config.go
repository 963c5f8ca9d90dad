package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the complete bot configuration.
type Config struct {
	Broker     BrokerConfig     `json:"broker" yaml:"broker"`
	Strategy   StrategyConfig   `json:"strategy" yaml:"strategy"`
	Session    SessionConfig    `json:"session" yaml:"session"`
	MarketData MarketDataConfig `json:"market_data" yaml:"market_data"`
	Journal    JournalConfig    `json:"journal" yaml:"journal"`
	Metrics    MetricsConfig    `json:"metrics" yaml:"metrics"`
}

// BrokerConfig contains brokerage connection parameters. Credentials are
// never stored here; they come from the environment (see Credentials).
type BrokerConfig struct {
	BaseURL  string `json:"base_url" yaml:"base_url"`
	Currency string `json:"currency" yaml:"currency"`

	// Codes maps a market-data symbol to the brokerage's tradable
	// instrument code when the two differ (e.g. "RR" -> "RRl_EQ").
	Codes map[string]string `json:"codes,omitempty" yaml:"codes,omitempty"`
}

// Instrument returns the brokerage tradable code for a market-data symbol,
// falling back to the symbol itself when no mapping is configured.
func (b BrokerConfig) Instrument(symbol string) string {
	if code, ok := b.Codes[symbol]; ok && code != "" {
		return code
	}
	return symbol
}

// StrategyConfig contains the gap-fill strategy parameters.
type StrategyConfig struct {
	Universe []string `json:"universe" yaml:"universe"`

	TotalBudget  float64 `json:"total_budget" yaml:"total_budget"`
	PerTradeRisk float64 `json:"per_trade_risk" yaml:"per_trade_risk"` // fraction of free cash, e.g. 0.005

	// Gap bounds are both negative fractions; order does not matter, the
	// evaluator treats them as a closed interval.
	MinGap float64 `json:"min_gap" yaml:"min_gap"` // e.g. -0.005
	MaxGap float64 `json:"max_gap" yaml:"max_gap"` // e.g. -0.030

	RSIPeriod int     `json:"rsi_period" yaml:"rsi_period"`
	RSIMax    float64 `json:"rsi_max" yaml:"rsi_max"`

	SlippageBP    float64 `json:"slippage_bp" yaml:"slippage_bp"`       // basis points inside full gap fill
	StopCap       float64 `json:"stop_cap" yaml:"stop_cap"`             // max protective distance, fraction of entry
	StopDamping   float64 `json:"stop_damping" yaml:"stop_damping"`     // gap -> stop distance factor
	RiskFloorFrac float64 `json:"risk_floor_frac" yaml:"risk_floor_frac"` // per-share risk floor, fraction of entry

	MonitorInterval string `json:"monitor_interval" yaml:"monitor_interval"` // e.g. "45s"
	MonitorCeiling  string `json:"monitor_ceiling" yaml:"monitor_ceiling"`   // e.g. "1h"
}

// SessionConfig describes the trading venue's open window.
type SessionConfig struct {
	Timezone string `json:"timezone" yaml:"timezone"` // e.g. "America/New_York"
	Open     string `json:"open" yaml:"open"`         // "09:30"
	Close    string `json:"close" yaml:"close"`       // "16:00"
}

// MarketDataConfig controls the market-data provider.
type MarketDataConfig struct {
	LookbackDays int    `json:"lookback_days" yaml:"lookback_days"`
	OpenWait     string `json:"open_wait" yaml:"open_wait"` // how long to wait for the first intraday candle
}

// JournalConfig contains journaling parameters.
type JournalConfig struct {
	Type   string `json:"type" yaml:"type"` // "sqlite" or "none"
	DBPath string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
	Port    int  `json:"port" yaml:"port"`
}

// Credentials is the brokerage key pair, read only from the environment.
type Credentials struct {
	APIKey    string
	APISecret string
}

// MonitorIntervalDuration parses the monitor interval.
func (s StrategyConfig) MonitorIntervalDuration() (time.Duration, error) {
	return time.ParseDuration(s.MonitorInterval)
}

// MonitorCeilingDuration parses the monitor ceiling.
func (s StrategyConfig) MonitorCeilingDuration() (time.Duration, error) {
	return time.ParseDuration(s.MonitorCeiling)
}

// OpenWaitDuration parses the opening-candle wait budget.
func (m MarketDataConfig) OpenWaitDuration() (time.Duration, error) {
	if m.OpenWait == "" {
		return 0, nil
	}
	return time.ParseDuration(m.OpenWait)
}

// LoadFromFile loads configuration from a file (JSON or YAML based on content).
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}

	// Try YAML first, fall back to JSON
	err = yaml.Unmarshal(data, cfg)
	if err != nil {
		err = json.Unmarshal(data, cfg)
		if err != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// SaveToFile saves configuration to a file (JSON or YAML based on extension).
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}

	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Broker.BaseURL == "" {
		return fmt.Errorf("broker.base_url is required")
	}
	if len(c.Strategy.Universe) == 0 {
		return fmt.Errorf("strategy.universe must list at least one instrument")
	}
	if c.Strategy.TotalBudget <= 0 {
		return fmt.Errorf("strategy.total_budget must be positive")
	}
	if c.Strategy.PerTradeRisk <= 0 || c.Strategy.PerTradeRisk > 1 {
		return fmt.Errorf("strategy.per_trade_risk must be between 0 and 1")
	}
	if c.Strategy.MinGap >= 0 || c.Strategy.MaxGap >= 0 {
		return fmt.Errorf("strategy gap bounds must both be negative (gap-down filter)")
	}
	if c.Strategy.RSIPeriod <= 0 {
		return fmt.Errorf("strategy.rsi_period must be positive")
	}
	if c.Strategy.SlippageBP < 0 {
		return fmt.Errorf("strategy.slippage_bp must be non-negative")
	}
	if c.Strategy.StopCap <= 0 || c.Strategy.StopDamping <= 0 {
		return fmt.Errorf("strategy stop_cap and stop_damping must be positive")
	}
	if _, err := c.Strategy.MonitorIntervalDuration(); err != nil {
		return fmt.Errorf("strategy.monitor_interval: %w", err)
	}
	if _, err := c.Strategy.MonitorCeilingDuration(); err != nil {
		return fmt.Errorf("strategy.monitor_ceiling: %w", err)
	}
	if _, err := time.LoadLocation(c.Session.Timezone); err != nil {
		return fmt.Errorf("session.timezone: %w", err)
	}
	if _, err := ParseClock(c.Session.Open); err != nil {
		return fmt.Errorf("session.open: %w", err)
	}
	if _, err := ParseClock(c.Session.Close); err != nil {
		return fmt.Errorf("session.close: %w", err)
	}
	if _, err := c.MarketData.OpenWaitDuration(); err != nil {
		return fmt.Errorf("market_data.open_wait: %w", err)
	}
	if c.Journal.Type != "sqlite" && c.Journal.Type != "none" {
		return fmt.Errorf("journal.type must be 'sqlite' or 'none'")
	}
	if c.Journal.Type == "sqlite" && c.Journal.DBPath == "" {
		return fmt.Errorf("journal.db_path required for sqlite type")
	}
	if c.Metrics.Enabled && c.Metrics.Port <= 0 {
		return fmt.Errorf("metrics.port must be positive when metrics are enabled")
	}
	return nil
}

// Clock is a time-of-day in the venue's time zone.
type Clock struct {
	Hour   int
	Minute int
}

// ParseClock parses an "HH:MM" string.
func ParseClock(s string) (Clock, error) {
	var c Clock
	if _, err := fmt.Sscanf(s, "%d:%d", &c.Hour, &c.Minute); err != nil {
		return Clock{}, fmt.Errorf("want HH:MM, got %q: %w", s, err)
	}
	if c.Hour < 0 || c.Hour > 23 || c.Minute < 0 || c.Minute > 59 {
		return Clock{}, fmt.Errorf("want HH:MM, got %q", s)
	}
	return c, nil
}

// Minutes returns the clock as minutes after midnight, handy for window
// comparisons.
func (c Clock) Minutes() int {
	return c.Hour*60 + c.Minute
}

// LoadCredentials reads the brokerage key pair from the environment, loading
// a .env file first if one exists. Missing credentials are a fatal
// configuration error: the caller must not start trading without them.
func LoadCredentials() (Credentials, error) {
	if err := godotenv.Load(); err != nil {
		// No .env file is fine; the process environment may carry the keys.
		if !os.IsNotExist(err) {
			return Credentials{}, fmt.Errorf("load .env: %w", err)
		}
	}

	creds := Credentials{
		APIKey:    strings.TrimSpace(os.Getenv("T212_API_KEY")),
		APISecret: strings.TrimSpace(os.Getenv("T212_API_SECRET")),
	}
	if creds.APIKey == "" || creds.APISecret == "" {
		return Credentials{}, fmt.Errorf("missing T212_API_KEY or T212_API_SECRET in environment")
	}
	return creds, nil
}

// Masked returns the key with all but the last four characters hidden,
// suitable for startup banners.
func (c Credentials) Masked() string {
	if len(c.APIKey) <= 4 {
		return "***"
	}
	return "***" + c.APIKey[len(c.APIKey)-4:]
}

// Default returns a configuration with sensible defaults.
func Default() *Config {
	return &Config{
		Broker: BrokerConfig{
			BaseURL:  "https://live.trading212.com/api/v0",
			Currency: "GBP",
			Codes:    map[string]string{},
		},
		Strategy: StrategyConfig{
			Universe:        []string{"TSLA", "GME", "AMC", "COIN", "AAPL", "NVDA", "AMD", "BABA", "PLTR"},
			TotalBudget:     100,
			PerTradeRisk:    0.005,
			MinGap:          -0.005,
			MaxGap:          -0.030,
			RSIPeriod:       14,
			RSIMax:          50,
			SlippageBP:      5,
			StopCap:         0.006,
			StopDamping:     0.6,
			RiskFloorFrac:   0.002,
			MonitorInterval: "45s",
			MonitorCeiling:  "1h",
		},
		Session: SessionConfig{
			Timezone: "America/New_York",
			Open:     "09:30",
			Close:    "16:00",
		},
		MarketData: MarketDataConfig{
			LookbackDays: 90,
			OpenWait:     "3m",
		},
		Journal: JournalConfig{
			Type:   "sqlite",
			DBPath: "./gapfill.db",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9110,
		},
	}
}
