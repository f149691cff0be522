// Package config loads service configuration from file, environment and flags.
package config

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/emission-labs/emission-curve/pkg/chart"
	"github.com/emission-labs/emission-curve/pkg/emission"
	"github.com/emission-labs/emission-curve/pkg/stats"
)

// EnvPrefix prefixes environment overrides, e.g. EMISSION_HTTP_ADDR.
const EnvPrefix = "EMISSION"

type Config struct {
	HTTP       HTTPConfig       `mapstructure:"http"`
	Stats      StatsConfig      `mapstructure:"stats"`
	Chart      ChartConfig      `mapstructure:"chart"`
	Comparison ComparisonConfig `mapstructure:"comparison"`
	Emission   EmissionConfig   `mapstructure:"emission"`
	Log        LogConfig        `mapstructure:"log"`
}

type HTTPConfig struct {
	Addr        string   `mapstructure:"addr"`
	RatePerMin  int      `mapstructure:"rate-per-min"`
	Burst       int      `mapstructure:"burst"`
	CORSOrigins []string `mapstructure:"cors-origins"`
	// TrustedProxies lists addresses or CIDRs whose X-Forwarded-For header
	// is honoured when identifying clients.
	TrustedProxies []string `mapstructure:"trusted-proxies"`
}

type StatsConfig struct {
	URL        string        `mapstructure:"url"`
	Timeout    time.Duration `mapstructure:"timeout"`
	TTL        time.Duration `mapstructure:"ttl"`
	Retries    int           `mapstructure:"retries"`
	RetryDelay time.Duration `mapstructure:"retry-delay"`
}

type ChartConfig struct {
	MaxHeight uint64 `mapstructure:"max-height"`
	Step      uint64 `mapstructure:"step"`
	// MaxHeightLimit caps max_height accepted from API queries.
	MaxHeightLimit uint64 `mapstructure:"max-height-limit"`
	// MaxPoints caps the number of points per series of any chart request.
	MaxPoints uint64 `mapstructure:"max-points"`
	CacheSize int    `mapstructure:"cache-size"`
}

type ComparisonConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	StartHeight uint64  `mapstructure:"start-height"`
	MaxHeight   uint64  `mapstructure:"max-height"`
	Step        uint64  `mapstructure:"step"`
	RewardScale float64 `mapstructure:"reward-scale"`
}

// EmissionConfig overrides the primary curve. A zero tail emission and a nil
// activation height keep the Monero mainnet constants.
type EmissionConfig struct {
	TailEmission     float64 `mapstructure:"tail-emission"`
	ActivationHeight *uint64 `mapstructure:"activation-height"`
}

type LogConfig struct {
	Level    string `mapstructure:"level"`
	Encoding string `mapstructure:"encoding"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	sc := stats.DefaultConfig()
	return Config{
		HTTP: HTTPConfig{
			Addr:       ":8080",
			RatePerMin: 60,
			Burst:      120,
		},
		Stats: StatsConfig{
			URL:        sc.URL,
			Timeout:    sc.Timeout,
			TTL:        5 * time.Minute,
			Retries:    sc.MaxRequestRetries,
			RetryDelay: sc.RequestRetryDelay,
		},
		Chart: ChartConfig{
			MaxHeight:      3_500_000,
			Step:           75_000,
			MaxHeightLimit: 20_000_000,
			MaxPoints:      10_000,
			CacheSize:      64,
		},
		Comparison: ComparisonConfig{
			Enabled:     true,
			StartHeight: 300_000,
			MaxHeight:   1_000_000,
			Step:        15_000,
			RewardScale: emission.DefaultBitcoinParams().RewardScale,
		},
		Log: LogConfig{
			Level:    "info",
			Encoding: "json",
		},
	}
}

// SetDefaults registers every default with v so that environment variables
// and bound flags can override keys that no config file sets.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("http.addr", d.HTTP.Addr)
	v.SetDefault("http.rate-per-min", d.HTTP.RatePerMin)
	v.SetDefault("http.burst", d.HTTP.Burst)
	v.SetDefault("http.cors-origins", d.HTTP.CORSOrigins)
	v.SetDefault("http.trusted-proxies", d.HTTP.TrustedProxies)
	v.SetDefault("stats.url", d.Stats.URL)
	v.SetDefault("stats.timeout", d.Stats.Timeout)
	v.SetDefault("stats.ttl", d.Stats.TTL)
	v.SetDefault("stats.retries", d.Stats.Retries)
	v.SetDefault("stats.retry-delay", d.Stats.RetryDelay)
	v.SetDefault("chart.max-height", d.Chart.MaxHeight)
	v.SetDefault("chart.step", d.Chart.Step)
	v.SetDefault("chart.max-height-limit", d.Chart.MaxHeightLimit)
	v.SetDefault("chart.max-points", d.Chart.MaxPoints)
	v.SetDefault("chart.cache-size", d.Chart.CacheSize)
	v.SetDefault("comparison.enabled", d.Comparison.Enabled)
	v.SetDefault("comparison.start-height", d.Comparison.StartHeight)
	v.SetDefault("comparison.max-height", d.Comparison.MaxHeight)
	v.SetDefault("comparison.step", d.Comparison.Step)
	v.SetDefault("comparison.reward-scale", d.Comparison.RewardScale)
	v.SetDefault("emission.tail-emission", d.Emission.TailEmission)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.encoding", d.Log.Encoding)
}

// Load reads the optional config file at path, applies EMISSION_* environment
// overrides and validates the result.
func Load(path string, v *viper.Viper) (*Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	// Keys without a default are only seen by Unmarshal once bound.
	if err := v.BindEnv("emission.activation-height"); err != nil {
		return nil, fmt.Errorf("bind env: %w", err)
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c == nil {
		return errors.New("nil config")
	}
	switch {
	case c.Chart.Step == 0:
		return errors.New("chart.step must be positive")
	case c.Chart.MaxHeight > c.Chart.MaxHeightLimit:
		return fmt.Errorf("chart.max-height %d exceeds chart.max-height-limit %d", c.Chart.MaxHeight, c.Chart.MaxHeightLimit)
	case c.Chart.MaxPoints == 0:
		return errors.New("chart.max-points must be positive")
	case chart.PointCount(0, c.Chart.MaxHeight, c.Chart.Step) > c.Chart.MaxPoints:
		return fmt.Errorf("default chart exceeds chart.max-points %d", c.Chart.MaxPoints)
	case c.Comparison.Enabled && c.Comparison.Step == 0:
		return errors.New("comparison.step must be positive")
	case c.Comparison.Enabled && chart.PointCount(c.Comparison.StartHeight, c.Comparison.MaxHeight, c.Comparison.Step) > c.Chart.MaxPoints:
		return fmt.Errorf("default comparison chart exceeds chart.max-points %d", c.Chart.MaxPoints)
	case c.Stats.URL == "":
		return errors.New("stats.url must be set")
	case c.Emission.TailEmission < 0:
		return fmt.Errorf("emission.tail-emission must not be negative, got %v", c.Emission.TailEmission)
	case c.Log.Encoding != "json" && c.Log.Encoding != "console":
		return fmt.Errorf("log.encoding must be json or console, got %q", c.Log.Encoding)
	}
	if _, err := zap.ParseAtomicLevel(strings.ToLower(c.Log.Level)); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	if _, err := c.HTTP.TrustedProxyPrefixes(); err != nil {
		return err
	}
	if err := c.Params().Validate(); err != nil {
		return fmt.Errorf("emission: %w", err)
	}
	if err := c.BitcoinParams().Validate(); err != nil {
		return fmt.Errorf("comparison: %w", err)
	}
	return nil
}

// Params returns the primary curve with configured overrides applied.
func (c *Config) Params() emission.Params {
	p := emission.MoneroParams()
	if c.Emission.TailEmission > 0 {
		p.TailEmission = c.Emission.TailEmission
	}
	if c.Emission.ActivationHeight != nil {
		p.ActivationHeight = *c.Emission.ActivationHeight
	}
	return p
}

// BitcoinParams returns the comparison curve with the configured reward scale.
func (c *Config) BitcoinParams() emission.BitcoinParams {
	p := emission.DefaultBitcoinParams()
	if c.Comparison.RewardScale > 0 {
		p.RewardScale = c.Comparison.RewardScale
	}
	return p
}

// StatsClientConfig returns the stats client settings for the primary curve.
func (c *Config) StatsClientConfig() stats.Config {
	p := c.Params()
	return stats.Config{
		URL:                c.Stats.URL,
		Timeout:            c.Stats.Timeout,
		MaxRequestRetries:  c.Stats.Retries,
		RequestRetryDelay:  c.Stats.RetryDelay,
		AtomicUnitExponent: p.AtomicUnitExponent,
		Ticker:             p.Ticker,
	}
}

// Build returns a zap logger at the configured level and encoding.
func (c LogConfig) Build() (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(strings.ToLower(c.Level))
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	if c.Encoding == "console" {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = lvl
	return zc.Build()
}

// TrustedProxyPrefixes parses TrustedProxies. A bare address is a single-host
// prefix.
func (c HTTPConfig) TrustedProxyPrefixes() ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(c.TrustedProxies))
	for _, s := range c.TrustedProxies {
		if p, err := netip.ParsePrefix(s); err == nil {
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(s)
		if err != nil {
			return nil, fmt.Errorf("http.trusted-proxies: invalid address or CIDR %q", s)
		}
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}
