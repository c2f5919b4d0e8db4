// Package runner executes the batch: one Runner per source invocation, one
// Orchestrator per run. Tier ordering, retries, article resolution, and
// fallback synthesis all live here.
package runner

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/anivertis/market-pipeline/internal/extract"
	"github.com/anivertis/market-pipeline/internal/ingest"
	"github.com/anivertis/market-pipeline/internal/model"
	"github.com/anivertis/market-pipeline/internal/normalize"
	"github.com/anivertis/market-pipeline/internal/resilience"
	"github.com/anivertis/market-pipeline/internal/strategy"
)

// Selector picks an acquisition strategy for a source.
type Selector interface {
	Select(src model.Source) strategy.Strategy
}

// ArticleFetcher resolves a harvested link to clean article text.
type ArticleFetcher interface {
	FetchArticle(ctx context.Context, pageURL string) (*extract.Result, error)
}

// HealthRecorder marks source outcomes for monitoring.
type HealthRecorder interface {
	RecordSuccess(ctx context.Context, sourceID string)
	RecordFailure(ctx context.Context, sourceID string)
}

// Runner executes a single source end to end: acquire with retries, resolve
// or normalize the payload, persist, and report the outcome. A failed source
// never fails the batch; it yields a fallback article instead.
type Runner struct {
	selector  Selector
	fetcher   ArticleFetcher
	converter *normalize.Converter
	ingestor  *ingest.Ingestor
	health    HealthRecorder
	retry     resilience.RetryConfig
	cache     *Cache
}

func New(selector Selector, fetcher ArticleFetcher, converter *normalize.Converter,
	ingestor *ingest.Ingestor, health HealthRecorder, retry resilience.RetryConfig, cache *Cache) *Runner {
	if cache == nil {
		cache = NewCache(0)
	}
	return &Runner{
		selector:  selector,
		fetcher:   fetcher,
		converter: converter,
		ingestor:  ingestor,
		health:    health,
		retry:     retry,
		cache:     cache,
	}
}

// Run executes one source. The returned outcome always carries at least one
// article: real content on success, a tagged fallback on failure.
func (r *Runner) Run(ctx context.Context, src model.Source) model.SourceOutcome {
	outcome := model.SourceOutcome{
		SourceID:   src.ID,
		SourceName: src.Name,
		Tier:       src.EffectiveTier(),
		Theme:      src.CanonicalTheme(),
	}

	key := CacheKey(src.ID, time.Now().UTC())
	if cached, ok := r.cache.Get(key); ok {
		zap.L().Debug("cache hit", zap.String("source", src.ID))
		outcome.Articles = cached
		return outcome
	}

	strat := r.selector.Select(src)
	cfg := r.retry
	// Every acquisition error is retried: at this level a selector miss on a
	// slow-rendering page is indistinguishable from a transport fault.
	cfg.ShouldRetry = nil
	cfg.OnRetry = resilience.RetryLogger(src.ID, strat.Name())

	payload, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) (*strategy.Payload, error) {
		return strat.Execute(ctx, src)
	})
	if err != nil {
		return r.fail(ctx, src, outcome, err)
	}

	articles, err := r.resolve(ctx, src, payload)
	if err != nil {
		return r.fail(ctx, src, outcome, err)
	}

	r.cache.Set(key, articles)
	r.health.RecordSuccess(ctx, src.ID)
	outcome.Articles = articles
	return outcome
}

func (r *Runner) fail(ctx context.Context, src model.Source, outcome model.SourceOutcome, err error) model.SourceOutcome {
	zap.L().Error("source failed",
		zap.String("source", src.ID),
		zap.String("name", src.Name),
		zap.Error(err))
	r.health.RecordFailure(ctx, src.ID)
	outcome.Error = err.Error()
	outcome.Articles = []model.Article{fallbackArticle(src, err)}
	return outcome
}

// resolve turns a strategy payload into articles, persisting indicator
// measurements on the way through.
func (r *Runner) resolve(ctx context.Context, src model.Source, payload *strategy.Payload) ([]model.Article, error) {
	if payload.Measurement != nil {
		return r.resolveMeasurement(ctx, src, payload.Measurement)
	}
	return r.resolveLinks(ctx, src, payload.Links)
}

func (r *Runner) resolveMeasurement(ctx context.Context, src model.Source, m *model.RawMeasurement) ([]model.Article, error) {
	rec, err := r.converter.Record(ctx, src, *m)
	if err != nil {
		return nil, err
	}

	res, err := r.ingestor.Save(ctx, *rec)
	if err != nil {
		return nil, err
	}
	zap.L().Info("indicator ingested",
		zap.String("source", src.ID),
		zap.String("asset", rec.AssetID),
		zap.Float64("value", rec.NormalizedValue),
		zap.Bool("inserted", res.Inserted),
		zap.Int("quality", res.Quality))

	card := model.Article{
		Title: src.Name,
		Content: fmt.Sprintf("%s: %.2f %s (ref. %s)",
			rec.AssetID, rec.NormalizedValue, rec.TargetUnit, rec.ReferenceDate),
		URL:         src.URL,
		PublishedAt: m.CollectedAt,
		SourceID:    src.ID,
		SourceName:  src.Name,
		Tier:        src.EffectiveTier(),
		Theme:       src.CanonicalTheme(),
	}
	return []model.Article{card}, nil
}

func (r *Runner) resolveLinks(ctx context.Context, src model.Source, links []model.LinkCandidate) ([]model.Article, error) {
	var articles []model.Article
	for _, link := range links {
		if !strings.HasPrefix(link.URL, "http") {
			continue
		}
		result, err := r.fetcher.FetchArticle(ctx, link.URL)
		if err != nil {
			zap.L().Debug("article resolution failed",
				zap.String("source", src.ID),
				zap.String("url", link.URL),
				zap.Error(err))
			continue
		}
		articles = append(articles, model.Article{
			Title:       link.Title,
			Content:     result.Content,
			URL:         link.URL,
			PublishedAt: link.PublishedAt,
			SourceID:    src.ID,
			SourceName:  src.Name,
			Tier:        src.EffectiveTier(),
			Theme:       src.CanonicalTheme(),
		})
	}
	if len(articles) == 0 {
		return nil, fmt.Errorf("runner: no articles resolved from %d links for %s", len(links), src.ID)
	}
	return articles, nil
}

// fallbackArticle synthesizes a tagged card so the reporting surface stays
// complete when a source fails. Consumers filter on the Fallback flag.
func fallbackArticle(src model.Source, err error) model.Article {
	return model.Article{
		Title:       "[FALHA] " + src.Name,
		Content:     "Erro: " + err.Error(),
		URL:         src.URL,
		PublishedAt: time.Now().UTC(),
		SourceID:    src.ID,
		SourceName:  src.Name,
		Tier:        src.EffectiveTier(),
		Theme:       src.CanonicalTheme(),
		Fallback:    true,
	}
}
