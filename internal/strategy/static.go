package strategy

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/anivertis/market-pipeline/internal/extract"
	"github.com/anivertis/market-pipeline/internal/model"
	"github.com/anivertis/market-pipeline/internal/resilience"
)

// linkBlacklist filters entertainment and sport noise out of front-page
// harvesting. Matched against the candidate URL, lowercased.
var linkBlacklist = []string{
	"carnaval", "splash", "entretenimento", "celebridades", "fofoca",
	"esporte", "flash", "bbb", "televisao", "novelas", "anitta", "musica",
}

// minTitleLength filters section labels and button text out of harvested
// headline links.
const minTitleLength = 30

// genericLinkSelectors cover most Brazilian news portals.
var genericLinkSelectors = []string{
	"article a", ".noticia a", ".post a", ".feed-post a", ".materia a",
	"h2 a", "h3 a", ".title a", ".manchete a", ".item a",
}

// domainLinkSelectors extend the generic list for portals whose markup needs
// specific hooks. The generic list always runs too.
var domainLinkSelectors = map[string][]string{
	"agrolink.com.br": {".chamada a", ".box-noticia a", "ul.noticias li a"},
	"bloomberg.com":   {`div[class*="story"] a`, `[class*="story-list"] a`, `[data-component="story-list"] a`},
}

// Static acquires pages over plain HTTP. Requests are rate-limited per host
// so a batch with many sources on the same portal does not hammer it.
type Static struct {
	client   *http.Client
	maxLinks int

	perHost float64
	mu      sync.Mutex
	limits  map[string]*rate.Limiter
}

func NewStatic(timeout time.Duration, ratePerHost float64, maxLinks int) *Static {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if ratePerHost <= 0 {
		ratePerHost = 4
	}
	if maxLinks <= 0 {
		maxLinks = 5
	}
	return &Static{
		client:   &http.Client{Timeout: timeout},
		maxLinks: maxLinks,
		perHost:  ratePerHost,
		limits:   make(map[string]*rate.Limiter),
	}
}

func (s *Static) Name() string { return "static" }

func (s *Static) limiter(host string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	if lim, ok := s.limits[host]; ok {
		return lim
	}
	lim := rate.NewLimiter(rate.Limit(s.perHost), 1)
	s.limits[host] = lim
	return lim
}

func (s *Static) Execute(ctx context.Context, src model.Source) (*Payload, error) {
	u, err := url.Parse(src.URL)
	if err != nil {
		return nil, eris.Wrapf(err, "strategy: bad url for %s", src.ID)
	}
	if err := s.limiter(u.Hostname()).Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "strategy: rate wait")
	}

	html, err := s.fetch(ctx, src)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, eris.Wrapf(err, "strategy: parse %s", src.ID)
	}

	if src.EffectiveTier() == model.TierMedia {
		links := harvestLinks(doc, u, s.maxLinks)
		if len(links) == 0 {
			return nil, eris.Errorf("strategy: no links harvested from %s", src.ID)
		}
		return &Payload{Links: links}, nil
	}

	value, err := extractFromDocument(doc, src)
	if err != nil {
		return nil, err
	}
	return &Payload{
		Measurement: &model.RawMeasurement{
			AssetID:     src.AssetID,
			RawValue:    value,
			SourceUnit:  src.SourceUnit,
			CollectedAt: time.Now().UTC(),
			RawPayload:  html,
			Success:     true,
		},
		RawHTML: html,
	}, nil
}

func (s *Static) fetch(ctx context.Context, src model.Source) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return "", eris.Wrapf(err, "strategy: build request %s", src.ID)
	}
	extract.BrowserHeaders(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", &resilience.AcquisitionError{Source: src.ID, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		statusErr := eris.Errorf("strategy: status %d from %s", resp.StatusCode, src.ID)
		if resilience.IsRetryableHTTPStatus(resp.StatusCode) {
			return "", &resilience.AcquisitionError{Source: src.ID, Err: statusErr}
		}
		return "", statusErr
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", eris.Wrapf(err, "strategy: read body %s", src.ID)
	}
	return string(body), nil
}

// harvestLinks collects headline anchors from a front page: generic selectors
// plus any registered for the portal's domain, deduplicated, blacklist
// filtered, capped.
func harvestLinks(doc *goquery.Document, base *url.URL, maxLinks int) []model.LinkCandidate {
	selectors := append([]string{}, genericLinkSelectors...)
	host := strings.TrimPrefix(strings.ToLower(base.Hostname()), "www.")
	for domain, extra := range domainLinkSelectors {
		if host == domain || strings.HasSuffix(host, "."+domain) {
			selectors = append(selectors, extra...)
		}
	}

	seen := make(map[string]bool)
	var links []model.LinkCandidate
	now := time.Now().UTC()

	doc.Find(strings.Join(selectors, ", ")).EachWithBreak(func(_ int, el *goquery.Selection) bool {
		href, ok := el.Attr("href")
		title := strings.Join(strings.Fields(el.Text()), " ")
		if !ok || href == "" || len(title) <= minTitleLength {
			return true
		}

		abs := resolveURL(base, href)
		if abs == "" || seen[abs] || isBlacklisted(abs) {
			return true
		}
		seen[abs] = true
		links = append(links, model.LinkCandidate{Title: title, URL: abs, PublishedAt: now})
		return len(links) < maxLinks
	})

	zap.L().Debug("front page harvested",
		zap.String("host", base.Hostname()),
		zap.Int("links", len(links)))
	return links
}

func resolveURL(base *url.URL, href string) string {
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	abs := base.ResolveReference(ref)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return ""
	}
	return abs.String()
}

func isBlacklisted(rawURL string) bool {
	lower := strings.ToLower(rawURL)
	for _, word := range linkBlacklist {
		if strings.Contains(lower, word) {
			return true
		}
	}
	return false
}

// extractFromDocument reads an indicator value from parsed HTML using the
// source's extraction mode. Shared by the static and document strategies.
func extractFromDocument(doc *goquery.Document, src model.Source) (string, error) {
	switch src.ExtractionMode {
	case model.ModeSingle:
		el := doc.Find(src.Selector).First()
		if el.Length() == 0 {
			return "", eris.Errorf("strategy: selector %q matched nothing for %s", src.Selector, src.ID)
		}
		if v, ok := el.Attr("value"); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v), nil
		}
		return strings.TrimSpace(el.Text()), nil

	case model.ModeTableScan:
		return scanTables(doc, src)

	default:
		return "", eris.Errorf("strategy: source %s has no extraction mode", src.ID)
	}
}

// scanTables finds the table whose text contains TableMatch, then the row
// containing RowMatch, and returns the ColumnIndex-th cell (1-based).
func scanTables(doc *goquery.Document, src model.Source) (string, error) {
	var value string
	doc.Find("table").EachWithBreak(func(_ int, table *goquery.Selection) bool {
		if !strings.Contains(table.Text(), src.TableMatch) {
			return true
		}
		table.Find("tr").EachWithBreak(func(_ int, row *goquery.Selection) bool {
			if !strings.Contains(row.Text(), src.RowMatch) {
				return true
			}
			cell := row.Find("td").Eq(src.ColumnIndex - 1)
			if cell.Length() > 0 {
				value = strings.TrimSpace(cell.Text())
			}
			return false
		})
		return value == ""
	})
	if value == "" {
		return "", eris.Errorf("strategy: table scan found nothing for %s (table %q, row %q)",
			src.ID, src.TableMatch, src.RowMatch)
	}
	return value, nil
}
