package strategy

import (
	"context"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/anivertis/market-pipeline/internal/model"
	"github.com/anivertis/market-pipeline/internal/resilience"
)

// Feed acquires headline links from RSS and Atom feeds. The cheapest and most
// reliable path for media sources that still publish one.
type Feed struct {
	parser   *gofeed.Parser
	timeout  time.Duration
	maxItems int
}

func NewFeed(timeout time.Duration, maxItems int) *Feed {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if maxItems <= 0 {
		maxItems = 10
	}
	return &Feed{parser: gofeed.NewParser(), timeout: timeout, maxItems: maxItems}
}

func (f *Feed) Name() string { return "feed" }

func (f *Feed) Execute(ctx context.Context, src model.Source) (*Payload, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	feed, err := f.parser.ParseURLWithContext(src.URL, ctx)
	if err != nil {
		return nil, &resilience.AcquisitionError{Source: src.ID, Err: eris.Wrap(err, "strategy: parse feed")}
	}

	items := feed.Items
	if len(items) > f.maxItems {
		items = items[:f.maxItems]
	}

	links := make([]model.LinkCandidate, 0, len(items))
	for _, item := range items {
		if item.Link == "" || item.Title == "" {
			continue
		}
		link := model.LinkCandidate{Title: item.Title, URL: item.Link}
		if item.PublishedParsed != nil {
			link.PublishedAt = *item.PublishedParsed
		}
		links = append(links, link)
	}

	if len(links) == 0 {
		return nil, eris.Errorf("strategy: feed %s yielded no usable items", src.ID)
	}

	zap.L().Debug("feed harvested",
		zap.String("source", src.ID),
		zap.Int("links", len(links)))
	return &Payload{Links: links}, nil
}
