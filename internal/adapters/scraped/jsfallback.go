package scraped

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"
)

// jsRenderer is a minimal adaptation of the teacher's ChromeDPPool
// (internal/services/crawler/chromedp_pool.go): a single lazily-started
// headless browser context rather than a round-robin pool, since the
// Scraped Adapter only reaches for it when a page's initial HTML carries
// no __NEXT_DATA__ blob at all — rare enough that one instance serialized
// behind the adapter's own rate limiter is sufficient.
type jsRenderer struct {
	mu            sync.Mutex
	allocCtx      context.Context
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	userAgent     string
	renderTimeout time.Duration
	logger        arbor.ILogger
}

func newJSRenderer(userAgent string, renderTimeout time.Duration, logger arbor.ILogger) *jsRenderer {
	return &jsRenderer{userAgent: userAgent, renderTimeout: renderTimeout, logger: logger}
}

func (r *jsRenderer) ensureStarted() {
	if r.browserCtx != nil {
		return
	}
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(r.userAgent),
	)
	r.allocCtx, r.allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
	r.browserCtx, r.browserCancel = chromedp.NewContext(r.allocCtx)
	r.logger.Debug().Msg("Scraped adapter: headless renderer started")
}

// Render navigates to url in a headless browser and returns the
// post-JavaScript-execution outer HTML of the document, for pages that
// serve __NEXT_DATA__ only after client-side hydration.
func (r *jsRenderer) Render(ctx context.Context, url string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.ensureStarted()

	renderCtx, cancel := context.WithTimeout(r.browserCtx, r.renderTimeout)
	defer cancel()

	var html string
	err := chromedp.Run(renderCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return "", fmt.Errorf("js renderer: render %s: %w", url, err)
	}
	return html, nil
}

// Close shuts down the renderer's browser instance, if one was started.
func (r *jsRenderer) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.browserCancel != nil {
		r.browserCancel()
	}
	if r.allocCancel != nil {
		r.allocCancel()
	}
}
