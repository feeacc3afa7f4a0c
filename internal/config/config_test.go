package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks every key Load reads so the host environment cannot leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		FileEnv,
		"XRPL_RPC_ENDPOINTS", "XRPL_NETWORK", "XRPL_RPC_TIMEOUT_SEC", "XRPL_RPC_RPS", "XRPL_RPC_BURST",
		"SAMPLE_LEDGERS_BACK", "TX_TABLE_ROWS",
		"REFRESH_INTERVAL_SEC", "REFRESH_UNHEALTHY_THRESHOLD", "REFRESH_BREAKER_FAILURES", "REFRESH_BREAKER_OPEN_SEC",
		"MARKET_ENABLED", "MARKET_BASE_URL", "MARKET_COIN_ID", "MARKET_VS_CURRENCY",
		"MARKET_WINDOW_HOURS", "MARKET_PAGE_HOURS", "MARKET_TIMEOUT_SEC",
		"API_PORT", "API_RPS", "API_BURST", "API_ACCOUNT_RPS", "API_ACCOUNT_BURST",
		"API_ACCOUNT_CACHE_SIZE", "API_ACCOUNT_CACHE_TTL_SEC", "API_NETWORK_CACHE_TTL_SEC",
		"HEALTH_PORT",
		"ALERT_SLACK_WEBHOOK_URL", "ALERT_WEBHOOK_URL", "ALERT_COOLDOWN_MIN",
		"TRACING_ENABLED", "TRACING_ENDPOINT", "TRACING_INSECURE", "TRACING_SAMPLE_RATIO",
		"LOG_LEVEL",
	} {
		t.Setenv(key, "")
	}
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "insights.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{
		"https://s1.ripple.com:51234",
		"https://s2.ripple.com:51234",
		"https://xrplcluster.com",
	}, cfg.XRPL.Endpoints)
	assert.Equal(t, "mainnet", cfg.XRPL.Network)
	assert.Equal(t, 20*time.Second, cfg.XRPL.Timeout())
	assert.Equal(t, 10.0, cfg.XRPL.RPS)
	assert.Equal(t, 5, cfg.XRPL.Burst)
	assert.Equal(t, 20, cfg.Sampler.LedgersBack)
	assert.Equal(t, 50, cfg.Sampler.TxTableRows)
	assert.Equal(t, time.Minute, cfg.Refresh.Interval())
	assert.Equal(t, 3, cfg.Refresh.UnhealthyThreshold)
	assert.Equal(t, 3, cfg.Refresh.BreakerFailureThreshold)
	assert.Equal(t, 2*time.Minute, cfg.Refresh.BreakerOpenTimeout())
	assert.True(t, cfg.Market.Enabled)
	assert.Equal(t, "ripple", cfg.Market.CoinID)
	assert.Equal(t, "usd", cfg.Market.VsCurrency)
	assert.Equal(t, 7*24*time.Hour, cfg.Market.Window())
	assert.Equal(t, 24*time.Hour, cfg.Market.PageWidth())
	assert.Equal(t, 15*time.Second, cfg.Market.Timeout())
	assert.Equal(t, 8000, cfg.API.Port)
	assert.Equal(t, 15*time.Second, cfg.API.AccountCacheTTL())
	assert.Equal(t, 10*time.Second, cfg.API.NetworkCacheTTL())
	assert.Equal(t, 1024, cfg.API.AccountCacheSize)
	assert.Equal(t, 8080, cfg.Server.HealthPort)
	assert.Equal(t, 30*time.Minute, cfg.Alert.Cooldown())
	assert.Empty(t, cfg.Alert.SlackWebhookURL)
	assert.False(t, cfg.Tracing.Enabled)
	assert.Equal(t, 0.1, cfg.Tracing.SampleRatio)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_EnvOverride(t *testing.T) {
	clearEnv(t)
	t.Setenv("XRPL_RPC_ENDPOINTS", " https://a.example:51234 , ,https://b.example ")
	t.Setenv("XRPL_NETWORK", "testnet")
	t.Setenv("XRPL_RPC_TIMEOUT_SEC", "5")
	t.Setenv("XRPL_RPC_RPS", "2.5")
	t.Setenv("SAMPLE_LEDGERS_BACK", "3")
	t.Setenv("TX_TABLE_ROWS", "10")
	t.Setenv("REFRESH_INTERVAL_SEC", "15")
	t.Setenv("MARKET_ENABLED", "false")
	t.Setenv("API_PORT", "9000")
	t.Setenv("ALERT_WEBHOOK_URL", "https://hooks.example/alert")
	t.Setenv("TRACING_ENABLED", "true")
	t.Setenv("TRACING_SAMPLE_RATIO", "1")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"https://a.example:51234", "https://b.example"}, cfg.XRPL.Endpoints)
	assert.Equal(t, "testnet", cfg.XRPL.Network)
	assert.Equal(t, 5*time.Second, cfg.XRPL.Timeout())
	assert.Equal(t, 2.5, cfg.XRPL.RPS)
	assert.Equal(t, 3, cfg.Sampler.LedgersBack)
	assert.Equal(t, 10, cfg.Sampler.TxTableRows)
	assert.Equal(t, 15*time.Second, cfg.Refresh.Interval())
	assert.False(t, cfg.Market.Enabled)
	assert.Equal(t, 9000, cfg.API.Port)
	assert.Equal(t, "https://hooks.example/alert", cfg.Alert.WebhookURL)
	assert.True(t, cfg.Tracing.Enabled)
	assert.Equal(t, 1.0, cfg.Tracing.SampleRatio)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_InvalidNumbersFallBack(t *testing.T) {
	clearEnv(t)
	t.Setenv("SAMPLE_LEDGERS_BACK", "twenty")
	t.Setenv("XRPL_RPC_RPS", "fast")
	t.Setenv("MARKET_ENABLED", "maybe")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 20, cfg.Sampler.LedgersBack)
	assert.Equal(t, 10.0, cfg.XRPL.RPS)
	assert.True(t, cfg.Market.Enabled)
}

func TestLoad_File(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, `
xrpl:
  endpoints:
    - https://testnet.xrpl-labs.com
  network: testnet
sampler:
  ledgers_back: 5
market:
  enabled: false
api:
  port: 9100
log:
  level: warn
`)
	t.Setenv(FileEnv, path)
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"https://testnet.xrpl-labs.com"}, cfg.XRPL.Endpoints)
	assert.Equal(t, "testnet", cfg.XRPL.Network)
	assert.Equal(t, 5, cfg.Sampler.LedgersBack)
	assert.False(t, cfg.Market.Enabled)
	assert.Equal(t, 9100, cfg.API.Port)
	assert.Equal(t, 20, cfg.XRPL.TimeoutSec, "keys absent from the file keep defaults")
	assert.Equal(t, "debug", cfg.Log.Level, "environment wins over the file")
}

func TestLoad_FileErrors(t *testing.T) {
	t.Run("missing", func(t *testing.T) {
		clearEnv(t)
		t.Setenv(FileEnv, filepath.Join(t.TempDir(), "absent.yaml"))
		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "read config file")
	})
	t.Run("malformed", func(t *testing.T) {
		clearEnv(t)
		t.Setenv(FileEnv, writeFile(t, "xrpl: [unterminated"))
		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "parse config file")
	})
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"endpoint scheme", map[string]string{"XRPL_RPC_ENDPOINTS": "s1.ripple.com:51234"}, "not an http(s) URL"},
		{"network", map[string]string{"XRPL_NETWORK": "sidechain"}, "XRPL_NETWORK"},
		{"timeout", map[string]string{"XRPL_RPC_TIMEOUT_SEC": "0"}, "XRPL_RPC_TIMEOUT_SEC"},
		{"depth", map[string]string{"SAMPLE_LEDGERS_BACK": "0"}, "SAMPLE_LEDGERS_BACK"},
		{"table rows", map[string]string{"TX_TABLE_ROWS": "-1"}, "TX_TABLE_ROWS"},
		{"interval", map[string]string{"REFRESH_INTERVAL_SEC": "0"}, "REFRESH_INTERVAL_SEC"},
		{"market window", map[string]string{"MARKET_WINDOW_HOURS": "-1"}, "MARKET_WINDOW_HOURS"},
		{"port clash", map[string]string{"API_PORT": "8080"}, "must differ"},
		{"sample ratio", map[string]string{"TRACING_SAMPLE_RATIO": "1.5"}, "TRACING_SAMPLE_RATIO"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_MarketDisabledSkipsMarketChecks(t *testing.T) {
	clearEnv(t)
	t.Setenv("MARKET_ENABLED", "false")
	t.Setenv("MARKET_WINDOW_HOURS", "-1")
	_, err := Load()
	assert.NoError(t, err)
}
