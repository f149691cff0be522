package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/emission-labs/emission-curve/pkg/cache"
	"github.com/emission-labs/emission-curve/pkg/chart"
	"github.com/emission-labs/emission-curve/pkg/config"
	"github.com/emission-labs/emission-curve/pkg/emission"
	"github.com/emission-labs/emission-curve/pkg/httpserver"
	"github.com/emission-labs/emission-curve/pkg/stats"
	"github.com/emission-labs/emission-curve/pkg/types"
	"github.com/emission-labs/emission-curve/schema"
	"github.com/emission-labs/emission-curve/web"
)

var (
	GitTag    = "dev"
	GitCommit = "unknown"
)

// flagKeys maps command line flags to config keys.
var flagKeys = map[string]string{
	"addr":       "http.addr",
	"stats-url":  "stats.url",
	"log-level":  "log.level",
	"max-height": "chart.max-height",
	"step":       "chart.step",
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgPath string
	v := viper.New()
	cmd := &cobra.Command{
		Use:          "emission-curve",
		Short:        "Serve simulated emission charts and the live total supply",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath, v)
			if err != nil {
				return err
			}
			logger, err := cfg.Log.Build()
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return run(ctx, cfg, logger)
		},
	}
	d := config.Default()
	fs := cmd.Flags()
	fs.StringVar(&cfgPath, "config", os.Getenv(config.EnvPrefix+"_CONFIG"), "path to a YAML, TOML or JSON config file")
	fs.String("addr", d.HTTP.Addr, "HTTP listen address")
	fs.String("stats-url", d.Stats.URL, "block explorer stats endpoint")
	fs.String("log-level", d.Log.Level, "logging level")
	fs.Uint64("max-height", d.Chart.MaxHeight, "default chart max height (exclusive)")
	fs.Uint64("step", d.Chart.Step, "default chart sampling step")
	cobra.CheckErr(bindFlags(v, fs))
	return cmd
}

func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for flag, key := range flagKeys {
		if err := v.BindPFlag(key, fs.Lookup(flag)); err != nil {
			return fmt.Errorf("bind flag %s: %w", flag, err)
		}
	}
	return nil
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	model, err := emission.NewModel(cfg.Params())
	if err != nil {
		return err
	}
	bitcoin, err := emission.NewBitcoinModel(cfg.BitcoinParams())
	if err != nil {
		return err
	}
	sampler := chart.New(model, bitcoin, chart.WithLogger(logger.Named("chart")))
	charts, err := cache.NewChartCache(cfg.Chart.CacheSize)
	if err != nil {
		return err
	}
	proxies, err := cfg.HTTP.TrustedProxyPrefixes()
	if err != nil {
		return err
	}
	client := stats.NewClient(cfg.StatsClientConfig(), stats.WithLogger(logger.Named("stats")))
	statCache := cache.NewStatCache(client, cache.Options{TTL: cfg.Stats.TTL, Logger: logger.Named("stats")})

	srv := httpserver.New(httpserver.Config{
		Sampler:             sampler,
		Charts:              charts,
		Stats:               statCache,
		MaxHeight:           cfg.Chart.MaxHeight,
		Step:                cfg.Chart.Step,
		MaxHeightLimit:      cfg.Chart.MaxHeightLimit,
		MaxPoints:           cfg.Chart.MaxPoints,
		ComparisonEnabled:   cfg.Comparison.Enabled,
		ComparisonStart:     cfg.Comparison.StartHeight,
		ComparisonMaxHeight: cfg.Comparison.MaxHeight,
		ComparisonStep:      cfg.Comparison.Step,
		RatePerMin:          cfg.HTTP.RatePerMin,
		Burst:               cfg.HTTP.Burst,
		CORSOrigins:         cfg.HTTP.CORSOrigins,
		TrustedProxies:      proxies,
		Page:                web.Handler(),
		OpenAPI:             schema.OpenAPI,
		GitTag:              GitTag,
		GitCommit:           GitCommit,
		Logger:              logger.Named("http"),
	})
	httpSrv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	// The live stat is fetched while the default charts are sampled.
	g.Go(func() error {
		statCache.RunRefresher(ctx)
		return nil
	})
	g.Go(func() error {
		if err := precompute(cfg, sampler, charts); err != nil {
			return err
		}
		logger.Info("charts precomputed", zap.Int("sets", charts.Len()))
		return nil
	})
	g.Go(func() error {
		logger.Info("emission curve API listening",
			zap.String("addr", cfg.HTTP.Addr),
			zap.String("stats_url", client.URL()),
			zap.String("git_tag", GitTag),
			zap.String("git_commit", GitCommit),
		)
		if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// precompute samples the default chart sets so the first page load is served
// from cache.
func precompute(cfg *config.Config, sampler *chart.Sampler, charts *cache.ChartCache) error {
	key := cache.ChartKey{Curve: cache.PrimaryCurve, MaxHeight: cfg.Chart.MaxHeight, Step: cfg.Chart.Step}
	if _, err := charts.Get(key, func() (*types.ChartSet, error) {
		return sampler.Charts(cfg.Chart.MaxHeight, cfg.Chart.Step)
	}); err != nil {
		return fmt.Errorf("precompute charts: %w", err)
	}
	if !cfg.Comparison.Enabled {
		return nil
	}
	c := cfg.Comparison
	key = cache.ChartKey{Curve: cache.ComparisonCurve, Start: c.StartHeight, MaxHeight: c.MaxHeight, Step: c.Step}
	if _, err := charts.Get(key, func() (*types.ChartSet, error) {
		return sampler.ComparisonCharts(c.StartHeight, c.MaxHeight, c.Step)
	}); err != nil {
		return fmt.Errorf("precompute comparison charts: %w", err)
	}
	return nil
}
