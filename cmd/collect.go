package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var collectJSON bool

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Run the full batch: every catalog source, tier by tier",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		summary, err := env.Orchestrator.RunAll(ctx, env.Sources)
		if err != nil {
			return err
		}

		if collectJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(summary)
		}

		for _, outcome := range summary.Failed {
			zap.L().Warn("source failed",
				zap.String("source", outcome.SourceID),
				zap.String("error", outcome.Error),
			)
		}
		zap.L().Info("batch finished",
			zap.String("run_id", summary.RunID),
			zap.Int("total", summary.Total),
			zap.Int("success", len(summary.Success)),
			zap.Int("failed", len(summary.Failed)),
			zap.Float64("success_rate", summary.SuccessRate()),
			zap.Duration("elapsed", summary.Elapsed),
		)

		return nil
	},
}

func init() {
	collectCmd.Flags().BoolVar(&collectJSON, "json", false, "print the run summary as JSON")
	rootCmd.AddCommand(collectCmd)
}
