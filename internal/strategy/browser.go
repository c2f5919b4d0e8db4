package strategy

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/anivertis/market-pipeline/internal/model"
	"github.com/anivertis/market-pipeline/internal/resilience"
)

// Browser drives a real Chrome session for sources behind anti-bot
// challenges or JS-rendered markup. Each Execute gets its own session, torn
// down unconditionally when the call returns.
type Browser struct {
	navTimeout        time.Duration
	challengeAttempts int
	challengeWait     time.Duration
	maxLinks          int
}

func NewBrowser(navTimeout time.Duration, challengeAttempts int, challengeWait time.Duration, maxLinks int) *Browser {
	if navTimeout <= 0 {
		navTimeout = 60 * time.Second
	}
	if challengeAttempts <= 0 {
		challengeAttempts = 5
	}
	if challengeWait <= 0 {
		challengeWait = 5 * time.Second
	}
	if maxLinks <= 0 {
		maxLinks = 5
	}
	return &Browser{
		navTimeout:        navTimeout,
		challengeAttempts: challengeAttempts,
		challengeWait:     challengeWait,
		maxLinks:          maxLinks,
	}
}

func (b *Browser) Name() string { return "browser" }

func (b *Browser) Execute(ctx context.Context, src model.Source) (*Payload, error) {
	// Headful Chrome: the Turnstile challenge does not resolve in headless
	// mode, and these are exactly the sources that run it.
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", false),
		chromedp.WindowSize(1920, 1080),
		chromedp.NoSandbox,
	)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	sessionCtx, cancelSession := chromedp.NewContext(allocCtx)
	defer cancelSession()

	navCtx, cancelNav := context.WithTimeout(sessionCtx, b.navTimeout)
	defer cancelNav()

	if err := chromedp.Run(navCtx, chromedp.Navigate(src.URL)); err != nil {
		return nil, &resilience.AcquisitionError{Source: src.ID, Err: eris.Wrap(err, "strategy: navigate")}
	}

	if err := b.awaitChallenge(sessionCtx, src.ID); err != nil {
		return nil, &resilience.AcquisitionError{Source: src.ID, Err: err}
	}

	if err := humanize(sessionCtx); err != nil {
		zap.L().Debug("gesture simulation failed", zap.String("source", src.ID), zap.Error(err))
	}

	if src.EffectiveTier() == model.TierMedia {
		return b.harvest(sessionCtx, src)
	}
	return b.readIndicator(sessionCtx, src)
}

// awaitChallenge polls the page title until the anti-bot interstitial clears.
func (b *Browser) awaitChallenge(ctx context.Context, sourceID string) error {
	err := resilience.Poll(ctx, b.challengeAttempts, b.challengeWait, func(ctx context.Context) (bool, error) {
		var title string
		if err := chromedp.Run(ctx, chromedp.Title(&title)); err != nil {
			return false, err
		}
		lower := strings.ToLower(title)
		return !strings.Contains(lower, "just a moment") &&
			!strings.Contains(lower, "attention required"), nil
	})
	if err != nil {
		return eris.Wrapf(err, "strategy: challenge did not clear for %s", sourceID)
	}
	return nil
}

// humanize performs light mouse and scroll gestures so behavioral heuristics
// see something other than an idle page load.
func humanize(ctx context.Context) error {
	return chromedp.Run(ctx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			return input.DispatchMouseEvent(input.MouseMoved, 300, 300).Do(ctx)
		}),
		chromedp.Sleep(1200*time.Millisecond),
		chromedp.ActionFunc(func(ctx context.Context) error {
			return input.DispatchMouseEvent(input.MouseMoved, 600, 400).Do(ctx)
		}),
		chromedp.Sleep(time.Second),
		chromedp.ActionFunc(func(ctx context.Context) error {
			return input.DispatchMouseEvent(input.MouseWheel, 600, 400).
				WithDeltaY(300).Do(ctx)
		}),
		chromedp.Sleep(2*time.Second),
	)
}

// readIndicator waits for tabular content and extracts the configured value.
func (b *Browser) readIndicator(ctx context.Context, src model.Source) (*Payload, error) {
	waitCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := chromedp.Run(waitCtx, chromedp.WaitVisible("table", chromedp.ByQuery)); err != nil {
		return nil, &resilience.AcquisitionError{Source: src.ID, Err: eris.Wrap(err, "strategy: table never rendered")}
	}

	var html string
	if err := chromedp.Run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return nil, eris.Wrapf(err, "strategy: snapshot %s", src.ID)
	}

	var script string
	switch src.ExtractionMode {
	case model.ModeSingle:
		script = singleCellScript(src.Selector)
	case model.ModeTableScan:
		script = tableScanScript(src.TableMatch, src.RowMatch, src.ColumnIndex)
	default:
		return nil, eris.Errorf("strategy: source %s has no extraction mode", src.ID)
	}

	var value string
	if err := chromedp.Run(ctx, chromedp.Evaluate(script, &value)); err != nil {
		return nil, eris.Wrapf(err, "strategy: evaluate extraction for %s", src.ID)
	}
	if strings.TrimSpace(value) == "" {
		return nil, eris.Errorf("strategy: value not found for %s, check selector or table/row match", src.ID)
	}

	return &Payload{
		Measurement: &model.RawMeasurement{
			AssetID:     src.AssetID,
			RawValue:    strings.TrimSpace(value),
			SourceUnit:  src.SourceUnit,
			CollectedAt: time.Now().UTC(),
			RawPayload:  html,
			Success:     true,
		},
		RawHTML: html,
	}, nil
}

// harvest collects headline links from a rendered front page.
func (b *Browser) harvest(ctx context.Context, src model.Source) (*Payload, error) {
	script := harvestScript(b.maxLinks)

	var harvested []struct {
		Title string `json:"title"`
		URL   string `json:"url"`
	}
	if err := chromedp.Run(ctx, chromedp.Evaluate(script, &harvested)); err != nil {
		return nil, eris.Wrapf(err, "strategy: harvest links for %s", src.ID)
	}

	now := time.Now().UTC()
	var links []model.LinkCandidate
	for _, h := range harvested {
		if isBlacklisted(h.URL) {
			continue
		}
		links = append(links, model.LinkCandidate{Title: h.Title, URL: h.URL, PublishedAt: now})
	}
	if len(links) == 0 {
		return nil, eris.Errorf("strategy: no links rendered for %s", src.ID)
	}
	return &Payload{Links: links}, nil
}

func singleCellScript(selector string) string {
	return fmt.Sprintf(`(() => {
		const el = document.querySelector(%s);
		if (!el) return "";
		return (el.getAttribute("value") || el.innerText || el.textContent || "").trim();
	})()`, strconv.Quote(selector))
}

func tableScanScript(tableMatch, rowMatch string, columnIndex int) string {
	return fmt.Sprintf(`(() => {
		const table = Array.from(document.querySelectorAll("table"))
			.find(t => t.innerText.includes(%s));
		if (!table) return "";
		const row = Array.from(table.querySelectorAll("tr"))
			.find(r => r.innerText.includes(%s));
		if (!row) return "";
		const cell = row.querySelector("td:nth-child(%d)");
		return cell ? cell.innerText.trim() : "";
	})()`, strconv.Quote(tableMatch), strconv.Quote(rowMatch), columnIndex)
}

func harvestScript(maxLinks int) string {
	selectors := append(append([]string{}, genericLinkSelectors...),
		".chamada a", ".box-noticia a", "ul.noticias li a",
		`div[class*="story"] a`, `[class*="story-list"] a`, `[data-component="story-list"] a`,
	)
	return fmt.Sprintf(`(() => {
		const seen = new Set();
		const out = [];
		document.querySelectorAll(%s).forEach(el => {
			const title = el.innerText.trim().replace(/\s+/g, " ");
			const href = el.href;
			if (!href || title.length <= %d || seen.has(href)) return;
			seen.add(href);
			out.push({ title, url: href });
		});
		return out.slice(0, %d);
	})()`, strconv.Quote(strings.Join(selectors, ", ")), minTitleLength, maxLinks)
}
