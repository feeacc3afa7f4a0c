package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/emperorhan/xrpl-insights/internal/domain/model"
	"gopkg.in/yaml.v3"
)

// FileEnv names the optional YAML file applied between defaults and the
// environment.
const FileEnv = "INSIGHTS_CONFIG_FILE"

const defaultEndpoints = "https://s1.ripple.com:51234,https://s2.ripple.com:51234,https://xrplcluster.com"

type Config struct {
	XRPL    XRPLConfig    `yaml:"xrpl"`
	Sampler SamplerConfig `yaml:"sampler"`
	Refresh RefreshConfig `yaml:"refresh"`
	Market  MarketConfig  `yaml:"market"`
	API     APIConfig     `yaml:"api"`
	Server  ServerConfig  `yaml:"server"`
	Alert   AlertConfig   `yaml:"alert"`
	Tracing TracingConfig `yaml:"tracing"`
	Log     LogConfig     `yaml:"log"`
}

type XRPLConfig struct {
	Endpoints  []string `yaml:"endpoints"`
	Network    string   `yaml:"network"`
	TimeoutSec int      `yaml:"timeout_sec"`
	RPS        float64  `yaml:"rps"`
	Burst      int      `yaml:"burst"`
}

func (c XRPLConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}

type SamplerConfig struct {
	LedgersBack int `yaml:"ledgers_back"`
	TxTableRows int `yaml:"tx_table_rows"`
}

type RefreshConfig struct {
	IntervalSec             int `yaml:"interval_sec"`
	UnhealthyThreshold      int `yaml:"unhealthy_threshold"`
	BreakerFailureThreshold int `yaml:"breaker_failure_threshold"`
	BreakerOpenTimeoutSec   int `yaml:"breaker_open_timeout_sec"`
}

func (c RefreshConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSec) * time.Second
}

func (c RefreshConfig) BreakerOpenTimeout() time.Duration {
	return time.Duration(c.BreakerOpenTimeoutSec) * time.Second
}

type MarketConfig struct {
	Enabled     bool   `yaml:"enabled"`
	BaseURL     string `yaml:"base_url"`
	CoinID      string `yaml:"coin_id"`
	VsCurrency  string `yaml:"vs_currency"`
	WindowHours int    `yaml:"window_hours"`
	PageHours   int    `yaml:"page_hours"`
	TimeoutSec  int    `yaml:"timeout_sec"`
}

func (c MarketConfig) Window() time.Duration {
	return time.Duration(c.WindowHours) * time.Hour
}

func (c MarketConfig) PageWidth() time.Duration {
	return time.Duration(c.PageHours) * time.Hour
}

func (c MarketConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}

type APIConfig struct {
	Port               int     `yaml:"port"`
	RPS                float64 `yaml:"rps"`
	Burst              int     `yaml:"burst"`
	AccountRPS         float64 `yaml:"account_rps"`
	AccountBurst       int     `yaml:"account_burst"`
	AccountCacheSize   int     `yaml:"account_cache_size"`
	AccountCacheTTLSec int     `yaml:"account_cache_ttl_sec"`
	NetworkCacheTTLSec int     `yaml:"network_cache_ttl_sec"`
}

func (c APIConfig) AccountCacheTTL() time.Duration {
	return time.Duration(c.AccountCacheTTLSec) * time.Second
}

func (c APIConfig) NetworkCacheTTL() time.Duration {
	return time.Duration(c.NetworkCacheTTLSec) * time.Second
}

type ServerConfig struct {
	HealthPort int `yaml:"health_port"`
}

type AlertConfig struct {
	SlackWebhookURL string `yaml:"slack_webhook_url"`
	WebhookURL      string `yaml:"webhook_url"`
	CooldownMin     int    `yaml:"cooldown_min"`
}

func (c AlertConfig) Cooldown() time.Duration {
	return time.Duration(c.CooldownMin) * time.Minute
}

type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Endpoint    string  `yaml:"endpoint"`
	Insecure    bool    `yaml:"insecure"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

func defaults() *Config {
	return &Config{
		XRPL: XRPLConfig{
			Endpoints:  splitList(defaultEndpoints),
			Network:    string(model.NetworkMainnet),
			TimeoutSec: 20,
			RPS:        10,
			Burst:      5,
		},
		Sampler: SamplerConfig{
			LedgersBack: 20,
			TxTableRows: 50,
		},
		Refresh: RefreshConfig{
			IntervalSec:             60,
			UnhealthyThreshold:      3,
			BreakerFailureThreshold: 3,
			BreakerOpenTimeoutSec:   120,
		},
		Market: MarketConfig{
			Enabled:     true,
			BaseURL:     "https://api.coingecko.com/api/v3",
			CoinID:      "ripple",
			VsCurrency:  "usd",
			WindowHours: 24 * 7,
			PageHours:   24,
			TimeoutSec:  15,
		},
		API: APIConfig{
			Port:               8000,
			RPS:                20,
			Burst:              40,
			AccountRPS:         2,
			AccountBurst:       5,
			AccountCacheSize:   1024,
			AccountCacheTTLSec: 15,
			NetworkCacheTTLSec: 10,
		},
		Server: ServerConfig{
			HealthPort: 8080,
		},
		Alert: AlertConfig{
			CooldownMin: 30,
		},
		Tracing: TracingConfig{
			Endpoint:    "localhost:4317",
			Insecure:    true,
			SampleRatio: 0.1,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load builds the configuration from defaults, then the YAML file named by
// INSIGHTS_CONFIG_FILE, then environment variables.
func Load() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv(FileEnv); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	if v := getEnv("XRPL_RPC_ENDPOINTS", ""); v != "" {
		c.XRPL.Endpoints = splitList(v)
	}
	c.XRPL.Network = getEnv("XRPL_NETWORK", c.XRPL.Network)
	c.XRPL.TimeoutSec = getEnvInt("XRPL_RPC_TIMEOUT_SEC", c.XRPL.TimeoutSec)
	c.XRPL.RPS = getEnvFloat("XRPL_RPC_RPS", c.XRPL.RPS)
	c.XRPL.Burst = getEnvInt("XRPL_RPC_BURST", c.XRPL.Burst)

	c.Sampler.LedgersBack = getEnvInt("SAMPLE_LEDGERS_BACK", c.Sampler.LedgersBack)
	c.Sampler.TxTableRows = getEnvInt("TX_TABLE_ROWS", c.Sampler.TxTableRows)

	c.Refresh.IntervalSec = getEnvInt("REFRESH_INTERVAL_SEC", c.Refresh.IntervalSec)
	c.Refresh.UnhealthyThreshold = getEnvInt("REFRESH_UNHEALTHY_THRESHOLD", c.Refresh.UnhealthyThreshold)
	c.Refresh.BreakerFailureThreshold = getEnvInt("REFRESH_BREAKER_FAILURES", c.Refresh.BreakerFailureThreshold)
	c.Refresh.BreakerOpenTimeoutSec = getEnvInt("REFRESH_BREAKER_OPEN_SEC", c.Refresh.BreakerOpenTimeoutSec)

	c.Market.Enabled = getEnvBool("MARKET_ENABLED", c.Market.Enabled)
	c.Market.BaseURL = getEnv("MARKET_BASE_URL", c.Market.BaseURL)
	c.Market.CoinID = getEnv("MARKET_COIN_ID", c.Market.CoinID)
	c.Market.VsCurrency = getEnv("MARKET_VS_CURRENCY", c.Market.VsCurrency)
	c.Market.WindowHours = getEnvInt("MARKET_WINDOW_HOURS", c.Market.WindowHours)
	c.Market.PageHours = getEnvInt("MARKET_PAGE_HOURS", c.Market.PageHours)
	c.Market.TimeoutSec = getEnvInt("MARKET_TIMEOUT_SEC", c.Market.TimeoutSec)

	c.API.Port = getEnvInt("API_PORT", c.API.Port)
	c.API.RPS = getEnvFloat("API_RPS", c.API.RPS)
	c.API.Burst = getEnvInt("API_BURST", c.API.Burst)
	c.API.AccountRPS = getEnvFloat("API_ACCOUNT_RPS", c.API.AccountRPS)
	c.API.AccountBurst = getEnvInt("API_ACCOUNT_BURST", c.API.AccountBurst)
	c.API.AccountCacheSize = getEnvInt("API_ACCOUNT_CACHE_SIZE", c.API.AccountCacheSize)
	c.API.AccountCacheTTLSec = getEnvInt("API_ACCOUNT_CACHE_TTL_SEC", c.API.AccountCacheTTLSec)
	c.API.NetworkCacheTTLSec = getEnvInt("API_NETWORK_CACHE_TTL_SEC", c.API.NetworkCacheTTLSec)

	c.Server.HealthPort = getEnvInt("HEALTH_PORT", c.Server.HealthPort)

	c.Alert.SlackWebhookURL = getEnv("ALERT_SLACK_WEBHOOK_URL", c.Alert.SlackWebhookURL)
	c.Alert.WebhookURL = getEnv("ALERT_WEBHOOK_URL", c.Alert.WebhookURL)
	c.Alert.CooldownMin = getEnvInt("ALERT_COOLDOWN_MIN", c.Alert.CooldownMin)

	c.Tracing.Enabled = getEnvBool("TRACING_ENABLED", c.Tracing.Enabled)
	c.Tracing.Endpoint = getEnv("TRACING_ENDPOINT", c.Tracing.Endpoint)
	c.Tracing.Insecure = getEnvBool("TRACING_INSECURE", c.Tracing.Insecure)
	c.Tracing.SampleRatio = getEnvFloat("TRACING_SAMPLE_RATIO", c.Tracing.SampleRatio)

	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
}

func (c *Config) validate() error {
	if len(c.XRPL.Endpoints) == 0 {
		return fmt.Errorf("XRPL_RPC_ENDPOINTS must list at least one endpoint")
	}
	for _, ep := range c.XRPL.Endpoints {
		if !strings.HasPrefix(ep, "http://") && !strings.HasPrefix(ep, "https://") {
			return fmt.Errorf("XRPL_RPC_ENDPOINTS: %q is not an http(s) URL", ep)
		}
	}
	switch model.Network(c.XRPL.Network) {
	case model.NetworkMainnet, model.NetworkTestnet, model.NetworkDevnet:
	default:
		return fmt.Errorf("XRPL_NETWORK must be mainnet, testnet or devnet, got %q", c.XRPL.Network)
	}
	if c.XRPL.TimeoutSec <= 0 {
		return fmt.Errorf("XRPL_RPC_TIMEOUT_SEC must be > 0")
	}
	if c.XRPL.RPS < 0 {
		return fmt.Errorf("XRPL_RPC_RPS must be >= 0")
	}
	if c.Sampler.LedgersBack < 1 {
		return fmt.Errorf("SAMPLE_LEDGERS_BACK must be >= 1")
	}
	if c.Sampler.TxTableRows < 1 {
		return fmt.Errorf("TX_TABLE_ROWS must be >= 1")
	}
	if c.Refresh.IntervalSec <= 0 {
		return fmt.Errorf("REFRESH_INTERVAL_SEC must be > 0")
	}
	if c.Market.Enabled {
		if c.Market.BaseURL == "" {
			return fmt.Errorf("MARKET_BASE_URL is required when the market feed is enabled")
		}
		if c.Market.WindowHours <= 0 || c.Market.PageHours <= 0 {
			return fmt.Errorf("MARKET_WINDOW_HOURS and MARKET_PAGE_HOURS must be > 0")
		}
	}
	if c.API.Port == c.Server.HealthPort {
		return fmt.Errorf("API_PORT and HEALTH_PORT must differ")
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("TRACING_SAMPLE_RATIO must be within [0, 1]")
	}
	return nil
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
