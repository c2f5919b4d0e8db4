// Package extract pulls clean article text out of arbitrary news pages. Three
// strategies run in order and the first acceptable result wins: the Firefox
// reader-mode algorithm, a structural pass that strips noise and probes known
// article containers, and finally sanitized raw body text.
package extract

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// RawTextCap truncates last-resort extractions so a garbage page cannot blow
// up a database row.
const RawTextCap = 5000

// minParagraphLength filters link labels and bylines out of paragraph
// harvesting.
const minParagraphLength = 30

// ErrAllStrategiesFailed is returned when no strategy produced acceptable
// text for a page.
var ErrAllStrategiesFailed = eris.New("extract: all strategies failed")

// noiseSelector matches elements that are removed before any text is read.
// Removal happens first, always: probing containers on an unstripped document
// finds menus and cookie banners instead of prose.
var noiseSelector = strings.Join([]string{
	"script", "style", "noscript", "iframe", "object", "embed",
	"nav", "header", "footer", "aside", "form",
	`[class*="menu"]`, `[class*="navigation"]`, `[class*="sidebar"]`,
	`[class*="banner"]`, `[class*="ad"]`, `[class*="advertisement"]`,
	`[class*="popup"]`, `[class*="modal"]`, `[class*="cookie"]`,
	`[class*="newsletter"]`, `[class*="subscribe"]`, `[class*="social"]`,
	`[class*="share"]`, `[class*="related"]`, `[class*="recommend"]`,
	`[class*="comment"]`, `[id*="comment"]`,
	`[class*="breadcrumb"]`, `[class*="tag"]`, `[class*="author-bio"]`,
	"figure > figcaption",
}, ", ")

// containerSelectors probe for the main article container, most semantic
// first. The Brazilian news portals in the catalog use the materia/noticia
// class conventions alongside the usual WordPress and Schema.org markers.
var containerSelectors = []string{
	`article[class*="content"]`,
	`article[class*="article"]`,
	`article[class*="body"]`,
	`article[class*="text"]`,
	`article[class*="materia"]`,
	"article",
	`[class*="article-body"]`,
	`[class*="article-content"]`,
	`[class*="article-text"]`,
	`[class*="article__body"]`,
	`[class*="article__content"]`,
	`[class*="story-body"]`,
	`[class*="story-content"]`,
	`[class*="post-body"]`,
	`[class*="post-content"]`,
	`[class*="entry-content"]`,
	`[class*="materia-content"]`,
	`[class*="noticia-conteudo"]`,
	`[itemprop="articleBody"]`,
	`[data-testid*="article"]`,
	"main",
}

// Result is one successful extraction and the strategy that produced it.
type Result struct {
	Content string
	Method  string
}

// Content runs the waterfall over already-fetched HTML. pageURL is used by
// the reader-mode pass to resolve relative links; it may be empty.
func Content(html, pageURL string) (*Result, error) {
	if len(html) < 100 {
		return nil, eris.Wrap(ErrAllStrategiesFailed, "extract: empty page")
	}

	if text := withReadability(html, pageURL); text != "" {
		return &Result{Content: text, Method: "readability"}, nil
	}
	if text := withContainers(html); text != "" {
		return &Result{Content: text, Method: "structural"}, nil
	}
	if text := rawText(html); text != "" {
		return &Result{Content: text, Method: "raw_text"}, nil
	}

	zap.L().Warn("extraction failed on all strategies", zap.String("url", pageURL))
	return nil, eris.Wrapf(ErrAllStrategiesFailed, "extract: %s", pageURL)
}

// withReadability applies the reader-mode algorithm. Best quality when it
// works; fails cleanly on index pages and paywalled stubs.
func withReadability(html, pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil {
		u = &url.URL{}
	}
	article, err := readability.FromReader(strings.NewReader(html), u)
	if err != nil {
		return ""
	}
	text := Sanitize(article.TextContent)
	if IsGarbage(text) {
		return ""
	}
	return text
}

// withContainers strips noise, then probes container selectors from most to
// least specific and harvests paragraph-level elements from the first
// container with enough text.
func withContainers(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	doc.Find(noiseSelector).Remove()

	var container *goquery.Selection
	for _, selector := range containerSelectors {
		el := doc.Find(selector).First()
		if el.Length() == 0 {
			continue
		}
		if len(strings.TrimSpace(el.Text())) >= MinContentLength {
			container = el
			break
		}
	}
	if container == nil {
		return ""
	}

	var paragraphs []string
	container.Find("p, h2, h3, h4, blockquote").Each(func(_ int, el *goquery.Selection) {
		text := strings.TrimSpace(el.Text())
		if len(text) >= minParagraphLength {
			paragraphs = append(paragraphs, text)
		}
	})

	text := Sanitize(strings.Join(paragraphs, "\n\n"))
	if len(paragraphs) == 0 {
		text = Sanitize(container.Text())
	}
	// The garbage gate applies to every candidate: a container full of inline
	// analytics snippets reads as prose to the selector probe.
	if IsGarbage(text) {
		return ""
	}
	return text
}

// rawText is the last resort: whole-body text, noise stripped, capped.
func rawText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	doc.Find(noiseSelector).Remove()
	doc.Find("head").Remove()

	text := Sanitize(doc.Find("body").Text())
	if len(text) < MinContentLength || IsGarbage(text) {
		return ""
	}
	if len(text) > RawTextCap {
		text = text[:RawTextCap]
	}
	return text
}
