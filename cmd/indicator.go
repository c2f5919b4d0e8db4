package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var indicatorCmd = &cobra.Command{
	Use:   "indicator <source-id>",
	Short: "Run a single catalog source and print its outcome",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		var found bool
		for _, src := range env.Sources {
			if src.ID != args[0] {
				continue
			}
			found = true

			outcome := env.Runner.Run(ctx, src)
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(outcome); err != nil {
				return err
			}
			if !outcome.Succeeded() {
				return eris.Errorf("source %s failed: %s", src.ID, outcome.Error)
			}
			break
		}

		if !found {
			return eris.Errorf("source %q not in catalog %s", args[0], cfg.Catalog.Path)
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(indicatorCmd)
}
