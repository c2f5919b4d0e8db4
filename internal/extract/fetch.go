package extract

import (
	"context"
	"io"
	"math/rand"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/anivertis/market-pipeline/internal/resilience"
)

// userAgents are rotated per request. Plain Go HTTP clients get served
// challenge pages by most of the portals in the catalog.
var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/118.0.0.0 Safari/537.36",
}

// RandomUA returns one of the rotation pool's user agents.
func RandomUA() string {
	return userAgents[rand.Intn(len(userAgents))]
}

// BrowserHeaders sets the header set a Chrome pageload would send. Shared by
// the static strategy and the article fetcher.
func BrowserHeaders(req *http.Request) {
	req.Header.Set("User-Agent", RandomUA())
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "pt-BR,pt;q=0.9,en-US;q=0.8,en;q=0.7")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Referer", "https://www.google.com/")
}

// Fetcher downloads article pages over plain HTTP.
type Fetcher struct {
	client *http.Client
}

// NewFetcher builds a fetcher with the given timeout and a 3-redirect cap.
func NewFetcher(timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = 12 * time.Second
	}
	return &Fetcher{
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 3 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
	}
}

// Fetch downloads a URL and returns its body as a string. Non-2xx statuses
// are acquisition errors so the retry layer can distinguish transient ones.
func (f *Fetcher) Fetch(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", eris.Wrapf(err, "extract: build request %s", pageURL)
	}
	BrowserHeaders(req)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", &resilience.AcquisitionError{Source: pageURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err := eris.Errorf("extract: status %d from %s", resp.StatusCode, pageURL)
		if resilience.IsRetryableHTTPStatus(resp.StatusCode) {
			return "", &resilience.AcquisitionError{Source: pageURL, Err: err}
		}
		return "", err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", eris.Wrapf(err, "extract: read body %s", pageURL)
	}
	return string(body), nil
}

// FetchArticle downloads a page and runs the extraction waterfall on it.
func (f *Fetcher) FetchArticle(ctx context.Context, pageURL string) (*Result, error) {
	html, err := f.Fetch(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	return Content(html, pageURL)
}
