package strategy

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/anivertis/market-pipeline/internal/model"
)

// Manual returns a configured literal without touching the network. Used for
// assets whose value arrives out of band and for pipeline smoke tests.
type Manual struct{}

func (m *Manual) Name() string { return "manual" }

func (m *Manual) Execute(_ context.Context, src model.Source) (*Payload, error) {
	if src.ManualValue == "" {
		return nil, eris.Errorf("strategy: source %s is manual but has no manual_value", src.ID)
	}
	return &Payload{
		Measurement: &model.RawMeasurement{
			AssetID:     src.AssetID,
			RawValue:    src.ManualValue,
			SourceUnit:  src.SourceUnit,
			CollectedAt: time.Now().UTC(),
			Success:     true,
		},
	}, nil
}
