package runner

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/anivertis/market-pipeline/internal/catalog"
	"github.com/anivertis/market-pipeline/internal/model"
)

// Orchestrator runs the full catalog. Tiers execute strictly in order:
// official sources must land before sectoral, and both before media, because
// tier-3 interpretation leans on the day's official numbers already being in
// the store. Within a tier, every source fans out at once; the only bound is
// the tier's own size, with per-host pacing left to the strategies.
type Orchestrator struct {
	runner *Runner
}

func NewOrchestrator(r *Runner) *Orchestrator {
	return &Orchestrator{runner: r}
}

// RunAll executes every source, tier by tier, and returns the run report.
// Individual source failures are absorbed into the summary; only context
// cancellation aborts the run.
func (o *Orchestrator) RunAll(ctx context.Context, sources []model.Source) (*model.RunSummary, error) {
	summary := &model.RunSummary{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
		Total:     len(sources),
	}

	tier1, tier2, tier3 := catalog.PartitionByTier(sources)
	tiers := []struct {
		tier    model.Tier
		sources []model.Source
	}{
		{model.TierOfficial, tier1},
		{model.TierSectoral, tier2},
		{model.TierMedia, tier3},
	}

	for _, t := range tiers {
		if len(t.sources) == 0 {
			summary.Tiers = append(summary.Tiers, model.TierCount{Tier: t.tier})
			continue
		}
		zap.L().Info("tier starting",
			zap.String("run", summary.RunID),
			zap.Int("tier", int(t.tier)),
			zap.Int("sources", len(t.sources)))

		outcomes, err := o.runTier(ctx, t.sources)
		if err != nil {
			return nil, err
		}

		count := model.TierCount{Tier: t.tier, Total: len(t.sources)}
		for _, outcome := range outcomes {
			if outcome.Succeeded() {
				count.Success++
				summary.Success = append(summary.Success, outcome)
			} else {
				count.Failed++
				summary.Failed = append(summary.Failed, outcome)
			}
		}
		summary.Tiers = append(summary.Tiers, count)
	}

	summary.Elapsed = time.Since(summary.StartedAt)
	zap.L().Info("run complete",
		zap.String("run", summary.RunID),
		zap.Int("total", summary.Total),
		zap.Int("success", len(summary.Success)),
		zap.Int("failed", len(summary.Failed)),
		zap.Float64("success_rate", summary.SuccessRate()),
		zap.Duration("elapsed", summary.Elapsed))
	return summary, nil
}

// runTier fans all of a tier's sources out at once and collects their
// outcomes. Runner.Run never returns an error; the group only propagates
// context cancellation.
func (o *Orchestrator) runTier(ctx context.Context, sources []model.Source) ([]model.SourceOutcome, error) {
	outcomes := make([]model.SourceOutcome, len(sources))

	g, gctx := errgroup.WithContext(ctx)
	for i, src := range sources {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			outcomes[i] = o.runner.Run(gctx, src)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return outcomes, nil
}
