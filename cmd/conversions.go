package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/anivertis/market-pipeline/internal/model"
)

var conversionsFile string

// conversionsDoc is the on-disk shape of a conversion-rule seed file.
type conversionsDoc struct {
	Rules []struct {
		AssetID  string  `yaml:"asset_id"`
		FromUnit string  `yaml:"from_unit"`
		ToUnit   string  `yaml:"to_unit"`
		Factor   float64 `yaml:"factor"`
		Offset   float64 `yaml:"offset"`
	} `yaml:"rules"`
}

var conversionsCmd = &cobra.Command{
	Use:   "seed-conversions",
	Short: "Load unit conversion rules into the store",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		data, err := os.ReadFile(conversionsFile)
		if err != nil {
			return eris.Wrapf(err, "read %s", conversionsFile)
		}
		var doc conversionsDoc
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return eris.Wrapf(err, "parse %s", conversionsFile)
		}
		if len(doc.Rules) == 0 {
			return eris.Errorf("%s contains no rules", conversionsFile)
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		for _, r := range doc.Rules {
			if r.AssetID == "" || r.FromUnit == "" || r.ToUnit == "" || r.Factor == 0 {
				return eris.Errorf("rule %s %s->%s is incomplete", r.AssetID, r.FromUnit, r.ToUnit)
			}
			rule := model.ConversionRule{
				AssetID:  r.AssetID,
				FromUnit: r.FromUnit,
				ToUnit:   r.ToUnit,
				Factor:   r.Factor,
				Offset:   r.Offset,
			}
			if err := st.SeedConversionRule(ctx, rule); err != nil {
				return err
			}
		}

		zap.L().Info("conversion rules seeded",
			zap.String("file", conversionsFile),
			zap.Int("rules", len(doc.Rules)),
		)

		return nil
	},
}

func init() {
	conversionsCmd.Flags().StringVar(&conversionsFile, "file", "conversions.yaml", "rule file to load")
	rootCmd.AddCommand(conversionsCmd)
}
