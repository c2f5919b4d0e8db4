// Package monitoring tracks per-source operational health so degrading
// sources surface before they silently stop contributing data.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/anivertis/market-pipeline/internal/model"
	"github.com/anivertis/market-pipeline/internal/store"
)

// Recorder persists success and failure marks. Recording never fails a run:
// health bookkeeping errors are logged and swallowed.
type Recorder struct {
	store store.Store
}

func NewRecorder(st store.Store) *Recorder {
	return &Recorder{store: st}
}

func (r *Recorder) RecordSuccess(ctx context.Context, sourceID string) {
	if err := r.store.RecordSuccess(ctx, sourceID, time.Now().UTC()); err != nil {
		zap.L().Warn("health record failed", zap.String("source", sourceID), zap.Error(err))
	}
}

func (r *Recorder) RecordFailure(ctx context.Context, sourceID string) {
	if err := r.store.RecordFailure(ctx, sourceID, time.Now().UTC()); err != nil {
		zap.L().Warn("health record failed", zap.String("source", sourceID), zap.Error(err))
	}
}

// Snapshot is the health report for the sources command and the serve API.
type Snapshot struct {
	GeneratedAt time.Time            `json:"generated_at"`
	Sources     []model.SourceHealth `json:"sources"`
	Degraded    []string             `json:"degraded,omitempty"`
}

// DegradedThreshold is the consecutive-failure count at which a source is
// called out as degraded.
const DegradedThreshold = 3

// Collector reads health back out of the store.
type Collector struct {
	store store.Store
}

func NewCollector(st store.Store) *Collector {
	return &Collector{store: st}
}

func (c *Collector) Snapshot(ctx context.Context) (*Snapshot, error) {
	health, err := c.store.ListHealth(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list health")
	}

	snap := &Snapshot{GeneratedAt: time.Now().UTC(), Sources: health}
	for _, h := range health {
		if h.ConsecutiveFailures >= DegradedThreshold {
			snap.Degraded = append(snap.Degraded, h.SourceID)
		}
	}
	return snap, nil
}
