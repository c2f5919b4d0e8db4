package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/anivertis/market-pipeline/internal/catalog"
	"github.com/anivertis/market-pipeline/internal/model"
	"github.com/anivertis/market-pipeline/internal/monitoring"
)

var sourcesHealth bool

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List catalog sources and their health",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		sources, err := catalog.Load(cfg.Catalog.Path)
		if err != nil {
			return err
		}

		health := map[string]model.SourceHealth{}
		degraded := map[string]bool{}
		if sourcesHealth {
			st, err := initStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()
			if err := st.Migrate(ctx); err != nil {
				return err
			}

			snap, err := monitoring.NewCollector(st).Snapshot(ctx)
			if err != nil {
				return err
			}
			for _, h := range snap.Sources {
				health[h.SourceID] = h
			}
			for _, id := range snap.Degraded {
				degraded[id] = true
			}
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTIER\tTHEME\tNAME\tOK\tFAIL\tSTATE")
		for _, src := range sources {
			h := health[src.ID]
			state := "-"
			if sourcesHealth {
				state = "ok"
				if degraded[src.ID] {
					state = "degraded"
				}
			}
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%d\t%d\t%s\n",
				src.ID, src.EffectiveTier(), src.CanonicalTheme(), src.Name,
				h.SuccessCount, h.FailureCount, state)
		}
		return w.Flush()
	},
}

func init() {
	sourcesCmd.Flags().BoolVar(&sourcesHealth, "health", false, "include stored health counters")
	rootCmd.AddCommand(sourcesCmd)
}
