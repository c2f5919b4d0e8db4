package normalize

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/anivertis/market-pipeline/internal/model"
	"github.com/anivertis/market-pipeline/internal/resilience"
)

// RuleSource looks up a conversion rule. A nil rule with a nil error means no
// rule exists for the triple.
type RuleSource interface {
	ConversionRule(ctx context.Context, assetID, fromUnit, toUnit string) (*model.ConversionRule, error)
}

// Converter applies unit conversions from the rule table. Conversion is
// fail-closed: a measurement whose units cannot be converted is rejected, not
// passed through at face value. A raw BRL/L price stored as BRL/m3 would be
// off by three orders of magnitude and silently poison every derived metric
// downstream.
type Converter struct {
	rules RuleSource
}

func NewConverter(rules RuleSource) *Converter {
	return &Converter{rules: rules}
}

// Convert transforms value from fromUnit to toUnit for the given asset. The
// rule lookup is unconditional: same-unit pairs need an explicit rule too, so
// a configured factor always applies and an unconfigured pair is always
// rejected rather than passed through at face value.
func (c *Converter) Convert(ctx context.Context, assetID, fromUnit, toUnit string, value float64) (float64, error) {
	rule, err := c.rules.ConversionRule(ctx, assetID, fromUnit, toUnit)
	if err != nil {
		return 0, eris.Wrapf(err, "normalize: rule lookup %s %s->%s", assetID, fromUnit, toUnit)
	}
	if rule == nil {
		return 0, eris.Wrapf(resilience.ErrConversionNotFound,
			"normalize: no rule for %s %s->%s", assetID, fromUnit, toUnit)
	}
	return value*rule.Factor + rule.Offset, nil
}

// Record parses and converts a raw measurement into a NormalizedRecord ready
// for ingestion. The reference date is the collection date in UTC.
func (c *Converter) Record(ctx context.Context, src model.Source, m model.RawMeasurement) (*model.NormalizedRecord, error) {
	parsed, err := ParseNumeric(m.RawValue)
	if err != nil {
		return nil, err
	}

	target := src.TargetUnit
	if target == "" {
		target = src.SourceUnit
	}

	converted, err := c.Convert(ctx, src.AssetID, src.SourceUnit, target, parsed)
	if err != nil {
		return nil, err
	}

	collected := m.CollectedAt
	if collected.IsZero() {
		collected = time.Now().UTC()
	}

	rec := &model.NormalizedRecord{
		AssetID:         src.AssetID,
		RawValue:        m.RawValue,
		NormalizedValue: converted,
		SourceUnit:      src.SourceUnit,
		TargetUnit:      target,
		ReferenceDate:   collected.UTC().Format("2006-01-02"),
		Source:          src.ID,
		Tier:            src.Tier,
		RawPayload:      m.RawPayload,
	}
	zap.L().Debug("normalized measurement",
		zap.String("asset", rec.AssetID),
		zap.Float64("value", rec.NormalizedValue),
		zap.String("unit", rec.TargetUnit))
	return rec, nil
}
