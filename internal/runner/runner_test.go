package runner

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anivertis/market-pipeline/internal/analytics"
	"github.com/anivertis/market-pipeline/internal/extract"
	"github.com/anivertis/market-pipeline/internal/ingest"
	"github.com/anivertis/market-pipeline/internal/model"
	"github.com/anivertis/market-pipeline/internal/normalize"
	"github.com/anivertis/market-pipeline/internal/resilience"
	"github.com/anivertis/market-pipeline/internal/store"
	"github.com/anivertis/market-pipeline/internal/strategy"
)

type stubStrategy struct {
	name    string
	payload *strategy.Payload
	err     error
	calls   atomic.Int32
}

func (s *stubStrategy) Name() string { return s.name }

func (s *stubStrategy) Execute(context.Context, model.Source) (*strategy.Payload, error) {
	s.calls.Add(1)
	return s.payload, s.err
}

type stubSelector struct{ strat strategy.Strategy }

func (s *stubSelector) Select(model.Source) strategy.Strategy { return s.strat }

type stubFetcher struct {
	content string
	err     error
}

func (f *stubFetcher) FetchArticle(context.Context, string) (*extract.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &extract.Result{Content: f.content, Method: "structural"}, nil
}

type stubHealth struct {
	mu        sync.Mutex
	successes []string
	failures  []string
}

func (h *stubHealth) RecordSuccess(_ context.Context, id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.successes = append(h.successes, id)
}

func (h *stubHealth) RecordFailure(_ context.Context, id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failures = append(h.failures, id)
}

func fastRetry() resilience.RetryConfig {
	return resilience.RetryConfig{MaxAttempts: 2, InitialBackoff: 1, MaxBackoff: 1}
}

func newRunner(t *testing.T, strat strategy.Strategy, fetcher ArticleFetcher, health *stubHealth) (*Runner, *store.SQLiteStore) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "runner.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))

	converter := normalize.NewConverter(st)
	ingestor := ingest.New(st)
	return New(&stubSelector{strat: strat}, fetcher, converter, ingestor, health, fastRetry(), NewCache(0)), st
}

func seedIdentityRule(t *testing.T, st *store.SQLiteStore, assetID, unit string) {
	t.Helper()
	require.NoError(t, st.SeedConversionRule(context.Background(), model.ConversionRule{
		AssetID:  assetID,
		FromUnit: unit,
		ToUnit:   unit,
		Factor:   1,
	}))
}

func manualSource() model.Source {
	return model.Source{
		ID:             "manual-sebo",
		Name:           "Sebo Manual",
		Tier:           model.TierSectoral,
		AssetID:        "SEBO_BOVINO_SP",
		SourceUnit:     "BRL/kg",
		ExtractionMode: model.ModeManual,
		ManualValue:    "5,90",
	}
}

func TestRunIndicatorPersists(t *testing.T) {
	health := &stubHealth{}
	r, st := newRunner(t, &strategy.Manual{}, &stubFetcher{}, health)
	seedIdentityRule(t, st, "SEBO_BOVINO_SP", "BRL/kg")

	outcome := r.Run(context.Background(), manualSource())
	require.True(t, outcome.Succeeded(), outcome.Error)
	require.Len(t, outcome.Articles, 1)
	assert.Contains(t, outcome.Articles[0].Content, "SEBO_BOVINO_SP")
	assert.Equal(t, []string{"manual-sebo"}, health.successes)

	rows, err := st.ListPrices(context.Background(), "SEBO_BOVINO_SP", 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 5.90, rows[0].NormalizedValue)
}

func TestRunFailureYieldsFallback(t *testing.T) {
	health := &stubHealth{}
	strat := &stubStrategy{name: "static", err: eris.New("connection refused")}
	r, _ := newRunner(t, strat, &stubFetcher{}, health)

	src := model.Source{ID: "dead-portal", Name: "Portal Morto", Tier: model.TierMedia, URL: "https://dead.example"}
	outcome := r.Run(context.Background(), src)

	assert.False(t, outcome.Succeeded())
	require.Len(t, outcome.Articles, 1)
	assert.True(t, outcome.Articles[0].Fallback)
	assert.True(t, strings.HasPrefix(outcome.Articles[0].Title, "[FALHA]"))
	assert.Equal(t, "ECONOMIA", outcome.Articles[0].Theme, "media default theme")
	assert.Equal(t, []string{"dead-portal"}, health.failures)
}

func TestRunRetriesTransientErrors(t *testing.T) {
	health := &stubHealth{}
	strat := &stubStrategy{name: "static", err: &resilience.AcquisitionError{Source: "x", Err: eris.New("timeout")}}
	r, _ := newRunner(t, strat, &stubFetcher{}, health)

	r.Run(context.Background(), model.Source{ID: "flaky", Name: "Flaky", Tier: model.TierMedia})
	assert.Equal(t, int32(2), strat.calls.Load(), "acquisition errors are retried to exhaustion")
}

func TestRunRetriesEveryError(t *testing.T) {
	// A selector miss on a slow page surfaces as a plain error, not an
	// AcquisitionError; source runs still retry it to exhaustion.
	health := &stubHealth{}
	strat := &stubStrategy{name: "browser", err: eris.New("selector not found")}
	r, _ := newRunner(t, strat, &stubFetcher{}, health)

	outcome := r.Run(context.Background(), model.Source{ID: "cepea", Name: "CEPEA", Tier: model.TierOfficial})
	assert.False(t, outcome.Succeeded())
	assert.Equal(t, int32(2), strat.calls.Load())
}

func TestRunResolvesMediaLinks(t *testing.T) {
	health := &stubHealth{}
	links := []model.LinkCandidate{
		{Title: "Boi gordo sobe", URL: "https://portal.example/boi"},
		{Title: "Milho recua", URL: "https://portal.example/milho"},
	}
	strat := &stubStrategy{name: "static", payload: &strategy.Payload{Links: links}}
	body := strings.Repeat("Conteúdo da matéria sobre o mercado físico do boi gordo. ", 5)
	r, _ := newRunner(t, strat, &stubFetcher{content: body}, health)

	outcome := r.Run(context.Background(), model.Source{ID: "portal", Name: "Portal", Tier: model.TierMedia, Theme: "pecuaria"})
	require.True(t, outcome.Succeeded(), outcome.Error)
	require.Len(t, outcome.Articles, 2)
	assert.Equal(t, "PECUARIA", outcome.Articles[0].Theme)
	assert.Equal(t, body, outcome.Articles[0].Content)
}

func TestRunAllLinksUnresolvableFails(t *testing.T) {
	health := &stubHealth{}
	strat := &stubStrategy{name: "static", payload: &strategy.Payload{
		Links: []model.LinkCandidate{{Title: "x", URL: "https://portal.example/x"}},
	}}
	r, _ := newRunner(t, strat, &stubFetcher{err: extract.ErrAllStrategiesFailed}, health)

	outcome := r.Run(context.Background(), model.Source{ID: "portal", Name: "Portal", Tier: model.TierMedia})
	assert.False(t, outcome.Succeeded())
	assert.Equal(t, []string{"portal"}, health.failures)
}

func TestRunUsesCache(t *testing.T) {
	health := &stubHealth{}
	r, st := newRunner(t, &strategy.Manual{}, &stubFetcher{}, health)
	seedIdentityRule(t, st, "SEBO_BOVINO_SP", "BRL/kg")
	src := manualSource()

	first := r.Run(context.Background(), src)
	require.True(t, first.Succeeded())

	second := r.Run(context.Background(), src)
	require.True(t, second.Succeeded())
	assert.Equal(t, first.Articles, second.Articles)
	assert.Len(t, health.successes, 1, "cached run skips re-acquisition")
}

func TestOrchestratorTierOrdering(t *testing.T) {
	var mu sync.Mutex
	var order []model.Tier

	strat := &orderTracker{mu: &mu, order: &order}
	health := &stubHealth{}
	r, st := newRunner(t, strat, &stubFetcher{}, health)
	for _, asset := range []string{"A", "B", "C"} {
		seedIdentityRule(t, st, asset, "u")
	}

	sources := []model.Source{
		{ID: "m1", Name: "Media", Tier: model.TierMedia, AssetID: "A", SourceUnit: "u", ExtractionMode: model.ModeManual, ManualValue: "1"},
		{ID: "o1", Name: "Official", Tier: model.TierOfficial, AssetID: "B", SourceUnit: "u", ExtractionMode: model.ModeManual, ManualValue: "2"},
		{ID: "s1", Name: "Sectoral", Tier: model.TierSectoral, AssetID: "C", SourceUnit: "u", ExtractionMode: model.ModeManual, ManualValue: "3"},
	}

	o := NewOrchestrator(r)
	summary, err := o.RunAll(context.Background(), sources)
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Total)
	assert.Len(t, summary.Success, 3)
	require.Len(t, order, 3)
	assert.Equal(t, []model.Tier{model.TierOfficial, model.TierSectoral, model.TierMedia}, order)

	require.Len(t, summary.Tiers, 3)
	assert.Equal(t, 1, summary.Tiers[0].Success)
}

func TestOrchestratorTierFansOutFully(t *testing.T) {
	// Every source of a tier must run at once: each execution blocks until
	// all of them have started, so any worker cap deadlocks the barrier and
	// the context deadline turns the run into failures.
	const total = 6
	strat := &barrierStrategy{total: total, release: make(chan struct{})}
	health := &stubHealth{}
	r, st := newRunner(t, strat, &stubFetcher{}, health)

	var sources []model.Source
	for i := 0; i < total; i++ {
		asset := fmt.Sprintf("ASSET_%d", i)
		seedIdentityRule(t, st, asset, "u")
		sources = append(sources, model.Source{
			ID:      fmt.Sprintf("src-%d", i),
			Name:    asset,
			Tier:    model.TierOfficial,
			AssetID: asset, SourceUnit: "u",
			ExtractionMode: model.ModeManual, ManualValue: "1",
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	summary, err := NewOrchestrator(r).RunAll(ctx, sources)
	require.NoError(t, err)
	assert.Len(t, summary.Success, total, "all sources of the tier ran concurrently")
}

// barrierStrategy blocks every execution until all expected executions have
// arrived, then delegates to the manual strategy.
type barrierStrategy struct {
	arrivals atomic.Int32
	total    int32
	release  chan struct{}
	once     sync.Once
	manual   strategy.Manual
}

func (b *barrierStrategy) Name() string { return "barrier" }

func (b *barrierStrategy) Execute(ctx context.Context, src model.Source) (*strategy.Payload, error) {
	if b.arrivals.Add(1) == b.total {
		b.once.Do(func() { close(b.release) })
	}
	select {
	case <-b.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return b.manual.Execute(ctx, src)
}

func TestPipelineEndToEndSpread(t *testing.T) {
	// Full chain against one store: two tier-1 manual indicators through the
	// orchestrator, then a weighted spread (per-ton FOB minus the per-kg
	// quote scaled to per-ton) derived from what landed in the fact table.
	health := &stubHealth{}
	r, st := newRunner(t, &strategy.Manual{}, &stubFetcher{}, health)
	ctx := context.Background()

	seedIdentityRule(t, st, "SCOT_SEBO_SP", "BRL/kg")
	seedIdentityRule(t, st, "ABISA_SEBO_FOB", "BRL/ton")

	sources := []model.Source{
		{
			ID: "scot-sebo", Name: "Scot Sebo", Tier: model.TierOfficial,
			AssetID: "SCOT_SEBO_SP", SourceUnit: "BRL/kg",
			ExtractionMode: model.ModeManual, ManualValue: "5,90",
		},
		{
			ID: "abisa-fob", Name: "ABISA FOB", Tier: model.TierOfficial,
			AssetID: "ABISA_SEBO_FOB", SourceUnit: "BRL/ton",
			ExtractionMode: model.ModeManual, ManualValue: "6.650,00",
		},
	}

	summary, err := NewOrchestrator(r).RunAll(ctx, sources)
	require.NoError(t, err)
	require.Len(t, summary.Success, 2, "both indicators must land")

	scot, err := st.ListPrices(ctx, "SCOT_SEBO_SP", 10)
	require.NoError(t, err)
	require.Len(t, scot, 1)
	assert.Equal(t, 5.90, scot[0].NormalizedValue)

	abisa, err := st.ListPrices(ctx, "ABISA_SEBO_FOB", 10)
	require.NoError(t, err)
	require.Len(t, abisa, 1)
	assert.Equal(t, 6650.00, abisa[0].NormalizedValue)

	engine := analytics.NewEngine(st, analytics.DefaultParams())
	require.NoError(t, engine.Composite(ctx, "SEBO_SPREAD_SP", []analytics.Weighted{
		{AssetID: "ABISA_SEBO_FOB", Weight: 1},
		{AssetID: "SCOT_SEBO_SP", Weight: -1000},
	}))

	metrics, err := st.ListMetrics(ctx, "SEBO_SPREAD_SP", 10)
	require.NoError(t, err)
	require.Len(t, metrics, 1)
	assert.Equal(t, 750.0, metrics[0].Value)
	assert.Equal(t, time.Now().UTC().Format("2006-01-02"), metrics[0].ReferenceDate)
}

// orderTracker records the tier of each executed source, then delegates to
// the manual strategy.
type orderTracker struct {
	mu     *sync.Mutex
	order  *[]model.Tier
	manual strategy.Manual
}

func (o *orderTracker) Name() string { return "tracker" }

func (o *orderTracker) Execute(ctx context.Context, src model.Source) (*strategy.Payload, error) {
	o.mu.Lock()
	*o.order = append(*o.order, src.EffectiveTier())
	o.mu.Unlock()
	return o.manual.Execute(ctx, src)
}
