// Package strategy implements the acquisition variants a source can declare:
// manual literals, syndicated feeds, full browser automation, plain HTTP, and
// document downloads. A factory picks one per source by flag precedence.
package strategy

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/anivertis/market-pipeline/internal/model"
)

// Payload is the outcome of one acquisition. Indicator sources fill
// Measurement; media sources fill Links. RawHTML is an audit snapshot of the
// page the value came from and may be empty.
type Payload struct {
	Measurement *model.RawMeasurement
	Links       []model.LinkCandidate
	RawHTML     string
}

// Strategy acquires raw data for one source.
type Strategy interface {
	Name() string
	Execute(ctx context.Context, src model.Source) (*Payload, error)
}

// hostileHosts always get the browser, regardless of flags. These portals
// serve 403 or an empty shell to anything that is not a real browser session.
var hostileHosts = []string{
	"reuters.com",
	"broadcastagro.com.br",
	"noticiasagricolas.com.br",
}

func isHostileHost(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, h := range hostileHosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

// Factory selects strategies and owns the shared clients behind them.
type Factory struct {
	manual   *Manual
	feed     *Feed
	browser  *Browser
	static   *Static
	document *Document
}

// FactoryConfig carries the tunables shared across strategies.
type FactoryConfig struct {
	FetchTimeout      time.Duration
	MaxLinks          int
	FeedItems         int
	RatePerHost       float64
	NavTimeout        time.Duration
	ChallengeAttempts int
	ChallengeWait     time.Duration
}

func NewFactory(cfg FactoryConfig) *Factory {
	return &Factory{
		manual:   &Manual{},
		feed:     NewFeed(cfg.FetchTimeout, cfg.FeedItems),
		browser:  NewBrowser(cfg.NavTimeout, cfg.ChallengeAttempts, cfg.ChallengeWait, cfg.MaxLinks),
		static:   NewStatic(cfg.FetchTimeout, cfg.RatePerHost, cfg.MaxLinks),
		document: NewDocument(cfg.FetchTimeout),
	}
}

// Select returns the strategy for a source. Precedence: manual short-circuit,
// hostile hosts, feeds, browser flag, documents, then plain HTTP.
func (f *Factory) Select(src model.Source) Strategy {
	switch {
	case src.ExtractionMode == model.ModeManual:
		return f.manual
	case isHostileHost(src.URL):
		return f.browser
	case src.IsFeed:
		return f.feed
	case src.RequiresBrowser:
		return f.browser
	case src.IsDocument:
		return f.document
	default:
		return f.static
	}
}
