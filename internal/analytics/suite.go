package analytics

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/anivertis/market-pipeline/internal/resilience"
)

// job is one derivation in the standard suite.
type job struct {
	name string
	run  func(ctx context.Context) error
}

// SuiteReport summarizes a suite run.
type SuiteReport struct {
	Computed int
	Skipped  []string
}

// RunSuite executes the standard derivation suite over whatever data the
// store holds. Metrics whose inputs are missing or too short are skipped and
// listed; any other error aborts the run.
func (e *Engine) RunSuite(ctx context.Context) (*SuiteReport, error) {
	jobs := []job{
		{"SEBO_SPREAD_SP_CENTRAL", func(ctx context.Context) error {
			return e.Spread(ctx, "SEBO_SPREAD_SP_CENTRAL",
				[]string{"ABISA_SEBO_BRUTO_FOB_LIMPO"},
				[]string{"SCOT_SEBO_CENTRAL"})
		}},
		{"SEBO_BOVINO_SP", func(ctx context.Context) error {
			return e.Composite(ctx, "SEBO_BOVINO_SP", []Weighted{
				{AssetID: "ABISA_SEBO_BRUTO_FOB_LIMPO", Weight: 0.50},
				{AssetID: "SCOT_SEBO_CENTRAL", Weight: 0.30},
				{AssetID: "SCOT_SEBO_RS", Weight: 0.20},
			})
		}},
		{"RELACAO_BOI_MILHO", func(ctx context.Context) error {
			return e.PriceRatio(ctx, "RELACAO_BOI_MILHO",
				[]string{"BOI_GORDO_CEPEA_SP"},
				[]string{"MILHO_CEPEA_CAMPINAS", "MILHO_CEPEA"})
		}},
		{"BOI_GORDO_CEPEA_SP ma gaps", func(ctx context.Context) error {
			return e.MAGaps(ctx, "BOI_GORDO_CEPEA_SP", "BOI_GORDO_CEPEA_SP")
		}},
		{"MARGEM_FRANGO_FORWARD", func(ctx context.Context) error {
			return e.CrushMargin(ctx, "MARGEM_FRANGO_FORWARD", "FRANGO_ABATIDO_CEPEA", []Weighted{
				{AssetID: "MILHO_CEPEA_CAMPINAS", Weight: 0.65},
				{AssetID: "FARELO_SOJA_CEPEA", Weight: 0.25},
			})
		}},
		{"FRANGO_BETA_MILHO", func(ctx context.Context) error {
			return e.RollingBeta(ctx, "FRANGO_BETA_MILHO", "FRANGO_ABATIDO_CEPEA", "MILHO_CEPEA_CAMPINAS")
		}},
		{"FRANGO_LEADLAG_EXPORT", func(ctx context.Context) error {
			_, err := e.LeadLag(ctx, "FRANGO_LEADLAG_EXPORT", "FRANGO_ABATIDO_CEPEA", "EXPORT_FRANGO_SECEX")
			return err
		}},
		{"FRANGO_ABATIDO_CEPEA momentum", func(ctx context.Context) error {
			return e.Momentum(ctx, "FRANGO_ABATIDO_CEPEA", "FRANGO_ABATIDO_CEPEA")
		}},
	}

	report := &SuiteReport{}
	for _, j := range jobs {
		err := j.run(ctx)
		switch {
		case err == nil:
			report.Computed++
		case errors.Is(err, resilience.ErrInsufficientData):
			zap.L().Info("metric skipped", zap.String("metric", j.name), zap.Error(err))
			report.Skipped = append(report.Skipped, j.name)
		default:
			return nil, err
		}
	}
	return report, nil
}
