package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/emission-labs/emission-curve/pkg/emission"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	require.Equal(t, emission.MoneroParams(), cfg.Params())
	require.Equal(t, emission.DefaultBitcoinParams(), cfg.BitcoinParams())
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", viper.New())
	require.NoError(t, err)
	d := Default()
	require.Equal(t, d.HTTP.Addr, cfg.HTTP.Addr)
	require.Equal(t, d.Chart, cfg.Chart)
	require.Equal(t, d.Stats.TTL, cfg.Stats.TTL)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "emission.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
http:
  addr: ":9090"
stats:
  ttl: 30s
chart:
  step: 1000
emission:
  tail-emission: 0.3
`), 0o600))
	t.Setenv("EMISSION_CHART_MAX_HEIGHT", "100000")

	cfg, err := Load(path, viper.New())
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.HTTP.Addr)
	require.Equal(t, 30*time.Second, cfg.Stats.TTL)
	require.Equal(t, uint64(1000), cfg.Chart.Step)
	require.Equal(t, uint64(100000), cfg.Chart.MaxHeight)
	require.Equal(t, 0.3, cfg.Params().TailEmission)
	require.Equal(t, emission.MoneroParams().ActivationHeight, cfg.Params().ActivationHeight)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), viper.New())
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"zero step":       func(c *Config) { c.Chart.Step = 0 },
		"above limit":     func(c *Config) { c.Chart.MaxHeight = c.Chart.MaxHeightLimit + 1 },
		"comparison step": func(c *Config) { c.Comparison.Step = 0 },
		"empty stats url": func(c *Config) { c.Stats.URL = "" },
		"negative tail":   func(c *Config) { c.Emission.TailEmission = -1 },
		"log encoding":    func(c *Config) { c.Log.Encoding = "xml" },
		"log level":       func(c *Config) { c.Log.Level = "loud" },
		"zero max points": func(c *Config) { c.Chart.MaxPoints = 0 },
		"too many points": func(c *Config) { c.Chart.Step = 1 },
		"bad proxy":       func(c *Config) { c.HTTP.TrustedProxies = []string{"10.0.0.0/33"} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}

	cfg := Default()
	cfg.Comparison.Enabled = false
	cfg.Comparison.Step = 0
	require.NoError(t, cfg.Validate())
}

func TestStatsClientConfig(t *testing.T) {
	cfg := Default()
	sc := cfg.StatsClientConfig()
	require.Equal(t, cfg.Stats.URL, sc.URL)
	require.Equal(t, 12, sc.AtomicUnitExponent)
	require.Equal(t, "XMR", sc.Ticker)
}

func TestLogBuild(t *testing.T) {
	logger, err := LogConfig{Level: "DEBUG", Encoding: "console"}.Build()
	require.NoError(t, err)
	require.True(t, logger.Core().Enabled(zap.DebugLevel))

	logger, err = Default().Log.Build()
	require.NoError(t, err)
	require.False(t, logger.Core().Enabled(zap.DebugLevel))

	_, err = LogConfig{Level: "loud"}.Build()
	require.Error(t, err)
}

func TestActivationHeightOverride(t *testing.T) {
	cfg, err := Load("", viper.New())
	require.NoError(t, err)
	require.Nil(t, cfg.Emission.ActivationHeight)
	require.Equal(t, emission.MoneroParams().ActivationHeight, cfg.Params().ActivationHeight)

	path := filepath.Join(t.TempDir(), "emission.yaml")
	require.NoError(t, os.WriteFile(path, []byte("emission:\n  activation-height: 0\n"), 0o600))
	cfg, err = Load(path, viper.New())
	require.NoError(t, err)
	require.NotNil(t, cfg.Emission.ActivationHeight)
	require.Zero(t, cfg.Params().ActivationHeight)

	t.Setenv("EMISSION_EMISSION_ACTIVATION_HEIGHT", "5000")
	cfg, err = Load("", viper.New())
	require.NoError(t, err)
	require.Equal(t, uint64(5000), cfg.Params().ActivationHeight)
}

func TestTrustedProxyPrefixes(t *testing.T) {
	got, err := HTTPConfig{TrustedProxies: []string{"10.1.2.3/8", "127.0.0.1", "::1"}}.TrustedProxyPrefixes()
	require.NoError(t, err)
	require.Equal(t, []string{"10.0.0.0/8", "127.0.0.1/32", "::1/128"}, []string{got[0].String(), got[1].String(), got[2].String()})

	_, err = HTTPConfig{TrustedProxies: []string{"proxy.local"}}.TrustedProxyPrefixes()
	require.Error(t, err)

	got, err = Default().HTTP.TrustedProxyPrefixes()
	require.NoError(t, err)
	require.Empty(t, got)
}
