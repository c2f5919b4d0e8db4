package analytics

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/anivertis/market-pipeline/internal/model"
	"github.com/anivertis/market-pipeline/internal/resilience"
	"github.com/anivertis/market-pipeline/internal/store"
)

// Params are the tunables of the derivation suite.
type Params struct {
	BetaWindow       int
	LeadLagWindow    int
	MaxLag           int
	MomentumHorizons []int
}

func DefaultParams() Params {
	return Params{
		BetaWindow:       90,
		LeadLagWindow:    24,
		MaxLag:           6,
		MomentumHorizons: []int{5, 20, 60},
	}
}

// Weighted pairs an asset with its blend weight.
type Weighted struct {
	AssetID string
	Weight  float64
}

// Engine computes derived metrics from stored series. Missing inputs are not
// errors at the suite level: a metric whose assets have no data yet is
// skipped and reported, never fabricated.
type Engine struct {
	store  store.Store
	params Params
}

func NewEngine(st store.Store, params Params) *Engine {
	if params.BetaWindow <= 0 {
		params = DefaultParams()
	}
	return &Engine{store: st, params: params}
}

func today() string {
	return time.Now().UTC().Format("2006-01-02")
}

// latest fetches the most recent normalized value across the given asset IDs.
func (e *Engine) latest(ctx context.Context, assetIDs ...string) (float64, error) {
	row, err := e.store.LatestPrice(ctx, assetIDs...)
	if err != nil {
		return 0, err
	}
	if row == nil {
		return 0, eris.Wrapf(resilience.ErrInsufficientData, "analytics: no data for %v", assetIDs)
	}
	return row.NormalizedValue, nil
}

func (e *Engine) upsert(ctx context.Context, m model.DerivedMetric) error {
	m.ComputedAt = time.Now().UTC()
	if m.ReferenceDate == "" {
		m.ReferenceDate = today()
	}
	if err := e.store.UpsertMetric(ctx, m); err != nil {
		return err
	}
	zap.L().Info("metric derived",
		zap.String("group", m.AssetGroup),
		zap.String("type", string(m.Type)),
		zap.Float64("value", m.Value),
		zap.String("detail", m.Detail))
	return nil
}

// Spread computes latest(minuend) − latest(subtrahend).
func (e *Engine) Spread(ctx context.Context, group string, minuend, subtrahend []string) error {
	a, err := e.latest(ctx, minuend...)
	if err != nil {
		return err
	}
	b, err := e.latest(ctx, subtrahend...)
	if err != nil {
		return err
	}
	return e.upsert(ctx, model.DerivedMetric{
		AssetGroup: group,
		Type:       model.MetricSpread,
		Value:      a - b,
	})
}

// Composite computes a weighted blend of latest values.
func (e *Engine) Composite(ctx context.Context, group string, components []Weighted) error {
	var value float64
	for _, c := range components {
		v, err := e.latest(ctx, c.AssetID)
		if err != nil {
			return err
		}
		value += v * c.Weight
	}
	return e.upsert(ctx, model.DerivedMetric{
		AssetGroup: group,
		Type:       model.MetricCompositeIndex,
		Value:      value,
	})
}

// CrushMargin computes latest(product) minus the weighted cost of inputs.
func (e *Engine) CrushMargin(ctx context.Context, group, product string, inputs []Weighted) error {
	productValue, err := e.latest(ctx, product)
	if err != nil {
		return err
	}
	var cost float64
	for _, in := range inputs {
		v, err := e.latest(ctx, in.AssetID)
		if err != nil {
			return err
		}
		cost += v * in.Weight
	}
	return e.upsert(ctx, model.DerivedMetric{
		AssetGroup: group,
		Type:       model.MetricCrushMargin,
		Value:      productValue - cost,
	})
}

// PriceRatio computes latest(numerator) / latest(denominator).
func (e *Engine) PriceRatio(ctx context.Context, group string, numerator, denominator []string) error {
	num, err := e.latest(ctx, numerator...)
	if err != nil {
		return err
	}
	den, err := e.latest(ctx, denominator...)
	if err != nil {
		return err
	}
	if den == 0 {
		return eris.Wrapf(resilience.ErrInsufficientData, "analytics: zero denominator for %s", group)
	}
	return e.upsert(ctx, model.DerivedMetric{
		AssetGroup: group,
		Type:       model.MetricPriceRatio,
		Value:      num / den,
	})
}

// RollingBeta computes cov/var of trailing log returns between an asset and
// its benchmark.
func (e *Engine) RollingBeta(ctx context.Context, group, assetID, benchmarkID string) error {
	window := e.params.BetaWindow

	assetSeries, err := e.series(ctx, assetID)
	if err != nil {
		return err
	}
	benchSeries, err := e.series(ctx, benchmarkID)
	if err != nil {
		return err
	}
	if len(assetSeries) < window+1 || len(benchSeries) < window+1 {
		return eris.Wrapf(resilience.ErrInsufficientData,
			"analytics: beta needs %d observations for %s", window+1, group)
	}

	assetReturns := tail(LogReturns(values(assetSeries)), window)
	benchReturns := tail(LogReturns(values(benchSeries)), window)
	if len(assetReturns) != len(benchReturns) {
		return eris.Wrapf(resilience.ErrInsufficientData, "analytics: misaligned return series for %s", group)
	}

	benchVar := Variance(benchReturns)
	if benchVar == 0 || math.IsNaN(benchVar) {
		return eris.Wrapf(resilience.ErrInsufficientData, "analytics: benchmark variance is zero for %s", group)
	}

	return e.upsert(ctx, model.DerivedMetric{
		AssetGroup: group,
		Type:       model.MetricRollingBeta,
		Value:      Covariance(assetReturns, benchReturns) / benchVar,
		Detail:     fmt.Sprintf("window=%d benchmark=%s", window, benchmarkID),
	})
}

// LeadLag scans lags 0..MaxLag for the strongest correlation between monthly
// returns of a driver series and the asset's monthly returns.
func (e *Engine) LeadLag(ctx context.Context, group, assetID, driverID string) (*model.LeadLagResult, error) {
	window, maxLag := e.params.LeadLagWindow, e.params.MaxLag

	assetSeries, err := e.series(ctx, assetID)
	if err != nil {
		return nil, err
	}
	driverSeries, err := e.series(ctx, driverID)
	if err != nil {
		return nil, err
	}

	assetMonthly := monthlyAverages(MonthlyAggregate(assetSeries))
	driverMonthly := monthlyAverages(MonthlyAggregate(driverSeries))
	if len(assetMonthly) < window || len(driverMonthly) < window+maxLag {
		return nil, eris.Wrapf(resilience.ErrInsufficientData,
			"analytics: lead-lag needs %d months for %s", window, group)
	}

	assetReturns := LogReturns(assetMonthly)
	driverReturns := LogReturns(driverMonthly)

	result := scanLags(assetReturns, driverReturns, window, maxLag)
	if result.Classification == model.SignalInsufficient {
		return result, eris.Wrapf(resilience.ErrInsufficientData, "analytics: no valid lag for %s", group)
	}

	err = e.upsert(ctx, model.DerivedMetric{
		AssetGroup: group,
		Type:       model.MetricLeadLag,
		Value:      result.Correlation,
		Detail:     fmt.Sprintf("lag=%d classification=%s driver=%s", result.BestLag, result.Classification, driverID),
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Momentum computes percentage change at each configured horizon. The
// horizon is part of the metric type so each upserts independently.
func (e *Engine) Momentum(ctx context.Context, group, assetID string) error {
	series, err := e.series(ctx, assetID)
	if err != nil {
		return err
	}
	vals := values(series)

	computed := 0
	for _, h := range e.params.MomentumHorizons {
		change := PctChange(vals, h)
		if math.IsNaN(change) {
			continue
		}
		err := e.upsert(ctx, model.DerivedMetric{
			AssetGroup: group,
			Type:       model.MetricType(fmt.Sprintf("%s_%dd", model.MetricMomentum, h)),
			Value:      change,
			Detail:     fmt.Sprintf("horizon=%d", h),
		})
		if err != nil {
			return err
		}
		computed++
	}
	if computed == 0 {
		return eris.Wrapf(resilience.ErrInsufficientData, "analytics: momentum has no horizon with data for %s", group)
	}
	return nil
}

// MAGaps computes price minus trailing moving averages at 20 and 60
// observations.
func (e *Engine) MAGaps(ctx context.Context, group, assetID string) error {
	series, err := e.series(ctx, assetID)
	if err != nil {
		return err
	}
	vals := values(series)
	if len(vals) == 0 {
		return eris.Wrapf(resilience.ErrInsufficientData, "analytics: no series for %s", group)
	}
	current := vals[len(vals)-1]

	computed := 0
	for _, window := range []int{20, 60} {
		ma := MovingAverage(vals, window)
		if math.IsNaN(ma) {
			continue
		}
		err := e.upsert(ctx, model.DerivedMetric{
			AssetGroup: group,
			Type:       model.MetricType(fmt.Sprintf("%s_mm%d", model.MetricMAGap, window)),
			Value:      current - ma,
			Detail:     fmt.Sprintf("window=%d", window),
		})
		if err != nil {
			return err
		}
		computed++
	}
	if computed == 0 {
		return eris.Wrapf(resilience.ErrInsufficientData, "analytics: series shorter than every MA window for %s", group)
	}
	return nil
}

func (e *Engine) series(ctx context.Context, assetID string) ([]model.SeriesPoint, error) {
	series, err := e.store.DailySeries(ctx, assetID)
	if err != nil {
		return nil, err
	}
	if len(series) == 0 {
		return nil, eris.Wrapf(resilience.ErrInsufficientData, "analytics: no series for %s", assetID)
	}
	return series, nil
}

func values(series []model.SeriesPoint) []float64 {
	out := make([]float64, len(series))
	for i, p := range series {
		out[i] = p.Value
	}
	return out
}

func monthlyAverages(months []MonthPoint) []float64 {
	out := make([]float64, len(months))
	for i, m := range months {
		out[i] = m.Average
	}
	return out
}

func tail(xs []float64, n int) []float64 {
	if len(xs) <= n {
		return xs
	}
	return xs[len(xs)-n:]
}

// scanLags evaluates each lag of the driver against the asset's trailing
// window and keeps the strongest absolute correlation.
func scanLags(assetReturns, driverReturns []float64, window, maxLag int) *model.LeadLagResult {
	assetSlice := tail(assetReturns, window)

	best := &model.LeadLagResult{Classification: model.SignalInsufficient}
	found := false
	for lag := 0; lag <= maxLag; lag++ {
		hi := len(driverReturns) - lag
		lo := hi - window
		if lo < 0 {
			continue
		}
		driverSlice := driverReturns[lo:hi]
		if len(driverSlice) != len(assetSlice) {
			continue
		}
		corr := Pearson(driverSlice, assetSlice)
		if math.IsNaN(corr) {
			continue
		}
		if !found || math.Abs(corr) > math.Abs(best.Correlation) {
			best.BestLag = lag
			best.Correlation = corr
			found = true
		}
	}
	if found {
		best.Classification = classify(best.Correlation)
	}
	return best
}

func classify(corr float64) model.SignalStrength {
	switch abs := math.Abs(corr); {
	case abs > 0.6:
		return model.SignalStrong
	case abs > 0.3:
		return model.SignalModerate
	default:
		return model.SignalWeak
	}
}
