package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/emission-labs/emission-curve/pkg/chart"
	"github.com/emission-labs/emission-curve/pkg/config"
	"github.com/emission-labs/emission-curve/pkg/emission"
	"github.com/emission-labs/emission-curve/pkg/stats"
	"github.com/emission-labs/emission-curve/pkg/types"
)

type options struct {
	cfgPath    string
	comparison bool
	withStats  bool
	pretty     bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var opts options
	v := viper.New()
	root := &cobra.Command{
		Use:          "emission-curve-cli",
		Short:        "Print sampled emission charts as JSON",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, sampler, err := setup(cmd, opts.cfgPath, v)
			if err != nil {
				return err
			}
			out, err := project(cmd.Context(), cfg, sampler, opts)
			if err != nil {
				return err
			}
			return encode(cmd.OutOrStdout(), out, opts.pretty)
		},
	}
	at := &cobra.Command{
		Use:   "at <height>",
		Short: "Print simulated supply, reward and expected date at a height",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			height, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid height %q: %w", args[0], err)
			}
			_, sampler, err := setup(cmd, opts.cfgPath, v)
			if err != nil {
				return err
			}
			info, err := sampler.HeightInfo(height)
			if err != nil {
				return err
			}
			return encode(cmd.OutOrStdout(), info, opts.pretty)
		},
	}
	root.AddCommand(at)

	d := config.Default()
	pf := root.PersistentFlags()
	pf.StringVar(&opts.cfgPath, "config", os.Getenv(config.EnvPrefix+"_CONFIG"), "path to a config file")
	pf.BoolVar(&opts.pretty, "pretty", true, "pretty-print JSON output")
	pf.Float64("tail-emission", d.Emission.TailEmission, "override the tail emission")
	pf.Uint64("activation-height", emission.MoneroParams().ActivationHeight, "override the block-time change height")

	f := root.Flags()
	f.Uint64("max-height", d.Chart.MaxHeight, "chart max height (exclusive)")
	f.Uint64("step", d.Chart.Step, "chart sampling step")
	f.BoolVar(&opts.comparison, "comparison", false, "include the halving comparison curve")
	f.BoolVar(&opts.withStats, "stats", false, "include the live total emission")
	f.String("stats-url", d.Stats.URL, "block explorer stats endpoint")

	cobra.CheckErr(v.BindPFlag("emission.tail-emission", pf.Lookup("tail-emission")))
	for flag, key := range map[string]string{
		"max-height": "chart.max-height",
		"step":       "chart.step",
		"stats-url":  "stats.url",
	} {
		cobra.CheckErr(v.BindPFlag(key, f.Lookup(flag)))
	}
	return root
}

func setup(cmd *cobra.Command, path string, v *viper.Viper) (*config.Config, *chart.Sampler, error) {
	// An unset activation height must stay nil, so the flag is only applied
	// when given.
	if f := cmd.Flags().Lookup("activation-height"); f != nil && f.Changed {
		h, err := cmd.Flags().GetUint64("activation-height")
		if err != nil {
			return nil, nil, err
		}
		v.Set("emission.activation-height", h)
	}
	cfg, err := config.Load(path, v)
	if err != nil {
		return nil, nil, err
	}
	model, err := emission.NewModel(cfg.Params())
	if err != nil {
		return nil, nil, err
	}
	bitcoin, err := emission.NewBitcoinModel(cfg.BitcoinParams())
	if err != nil {
		return nil, nil, err
	}
	return cfg, chart.New(model, bitcoin), nil
}

type output struct {
	Charts     *types.ChartSet      `json:"charts"`
	Comparison *types.ChartSet      `json:"comparison,omitempty"`
	Total      *types.TotalEmission `json:"total_emission,omitempty"`
}

// project builds the CLI payload. A failed live stat fetch is reported on
// stderr and leaves the field empty.
func project(ctx context.Context, cfg *config.Config, sampler *chart.Sampler, opts options) (*output, error) {
	set, err := sampler.Charts(cfg.Chart.MaxHeight, cfg.Chart.Step)
	if err != nil {
		return nil, fmt.Errorf("sample charts: %w", err)
	}
	out := &output{Charts: set}
	if opts.comparison {
		c := cfg.Comparison
		out.Comparison, err = sampler.ComparisonCharts(c.StartHeight, c.MaxHeight, c.Step)
		if err != nil {
			return nil, fmt.Errorf("sample comparison charts: %w", err)
		}
	}
	if opts.withStats {
		logger, err := cfg.Log.Build()
		if err != nil {
			return nil, err
		}
		client := stats.NewClient(cfg.StatsClientConfig(), stats.WithLogger(logger.Named("stats")))
		total, err := client.TotalEmission(ctx)
		if err != nil {
			logger.Warn("live stat fetch failed", zap.String("url", client.URL()), zap.Error(err))
		}
		out.Total = total
	}
	return out, nil
}

func encode(w io.Writer, v any, pretty bool) error {
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	return nil
}
