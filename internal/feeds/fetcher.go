package feeds

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"readz/internal/models"

	"github.com/mmcdole/gofeed"
)

const (
	httpTimeout    = 30 * time.Second
	rateLimitDelay = 1 * time.Second

	// defaultBaseURL is the public shelf feed host.
	defaultBaseURL = "https://www.goodreads.com"
)

// Fetcher retrieves shelf feeds over HTTP with per-domain rate limiting.
type Fetcher struct {
	client      *http.Client
	baseURL     string
	rateLimiter map[string]time.Time // per-domain next allowed request time
	mu          sync.Mutex           // protects rateLimiter
}

// NewFetcher creates a Fetcher for the public feed host, with a 30-second
// HTTP timeout and a browser-like User-Agent.
func NewFetcher() *Fetcher {
	return NewFetcherForHost(defaultBaseURL)
}

// NewFetcherForHost creates a Fetcher whose feed URLs are rooted at baseURL.
// Tests use it to point the fetcher at a local server.
func NewFetcherForHost(baseURL string) *Fetcher {
	return &Fetcher{
		client: &http.Client{
			Timeout: httpTimeout,
			Transport: &userAgentTransport{
				base: http.DefaultTransport,
			},
		},
		baseURL:     baseURL,
		rateLimiter: make(map[string]time.Time),
	}
}

// userAgentTransport wraps an http.RoundTripper to inject a custom User-Agent
// header on every request.
type userAgentTransport struct {
	base http.RoundTripper
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	// Use a browser-like User-Agent to avoid bot detection on some sites.
	req.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36")
	req.Header.Set("Accept", "application/rss+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	return t.base.RoundTrip(req)
}

// FetchShelves retrieves the combined shelf feed for one reader and parses
// it into validated records. The feed covers all of the reader's shelves;
// the parser keeps only the tracked ones. A transport or feed-level parse
// failure is returned to the caller, which skips the account for this pass.
func (f *Fetcher) FetchShelves(ctx context.Context, goodreadsID string) ([]models.FeedRecord, error) {
	feedURL := fmt.Sprintf("%s/review/list_rss/%s", f.baseURL, url.PathEscape(goodreadsID))

	f.waitForRateLimit(extractDomain(feedURL))

	fp := gofeed.NewParser()
	fp.Client = f.client

	feed, err := fp.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching shelf feed %q: %w", feedURL, err)
	}

	return ParseFeed(feed), nil
}

// waitForRateLimit enforces a minimum delay of 1 second between requests to
// the same domain. Each caller reserves its slot under the lock before
// sleeping, so concurrent fetches to one domain queue up instead of all
// observing a stale timestamp and firing together.
func (f *Fetcher) waitForRateLimit(domain string) {
	f.mu.Lock()
	next := f.rateLimiter[domain]
	if now := time.Now(); next.Before(now) {
		next = now
	}
	f.rateLimiter[domain] = next.Add(rateLimitDelay)
	f.mu.Unlock()

	time.Sleep(time.Until(next))
}

// extractDomain parses a URL and returns its hostname. If parsing fails, it
// returns the raw URL as a fallback key.
func extractDomain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.Hostname()
}
