package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/anivertis/market-pipeline/internal/analytics"
)

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Compute derived metrics from stored price series",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		params := analytics.DefaultParams()
		if cfg.Metrics.BetaWindow > 0 {
			params.BetaWindow = cfg.Metrics.BetaWindow
		}
		if cfg.Metrics.LeadLagWindow > 0 {
			params.LeadLagWindow = cfg.Metrics.LeadLagWindow
		}
		if cfg.Metrics.LeadLagMaxLag > 0 {
			params.MaxLag = cfg.Metrics.LeadLagMaxLag
		}
		if len(cfg.Metrics.MomentumHorizons) > 0 {
			params.MomentumHorizons = cfg.Metrics.MomentumHorizons
		}

		report, err := analytics.NewEngine(st, params).RunSuite(ctx)
		if err != nil {
			return err
		}

		zap.L().Info("metric suite finished",
			zap.Int("computed", report.Computed),
			zap.Strings("skipped", report.Skipped),
		)

		return nil
	},
}

func init() {
	rootCmd.AddCommand(metricsCmd)
}
