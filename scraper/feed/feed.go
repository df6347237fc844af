// Package feed scrapes listing captions from public social-media feeds with a
// headless browser.
package feed

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"

	"margarita-listings/config"
	"margarita-listings/models"
	"margarita-listings/utils"
)

const platform = "instagram"

// UsagePages counts post pages opened in the browser.
const UsagePages = "feed.pages"

// Scraper collects raw caption records from the configured feed URLs.
type Scraper struct {
	cfg        *config.Config
	logger     *utils.Logger
	pool       *utils.WorkerPool
	visitedURL *utils.URLSet
	retry      *utils.RetryConfig
	usage      *utils.UsageCounter
	now        func() time.Time

	mu      sync.Mutex
	records []*models.RawRecord
}

// New creates a ready-to-use feed Scraper.
func New(cfg *config.Config, logger *utils.Logger, usage *utils.UsageCounter) *Scraper {
	return &Scraper{
		cfg:        cfg,
		logger:     logger,
		pool:       utils.NewWorkerPool(cfg.MaxConcurrency, cfg.RateLimitMs),
		visitedURL: utils.NewURLSet(),
		retry: &utils.RetryConfig{
			MaxAttempts: cfg.MaxRetries,
			BaseDelay:   2 * time.Second,
			Logger:      logger,
		},
		usage: usage,
		now:   time.Now,
	}
}

// Fetch visits every feed, collects up to PostsPerFeed post links from each
// and opens the posts concurrently to read their captions.
func (s *Scraper) Fetch(ctx context.Context) ([]*models.RawRecord, error) {
	if len(s.cfg.FeedURLs) == 0 {
		return nil, errors.New("feed: no FEED_URLS configured")
	}
	s.logger.Info("[feed] Starting scrape: %d feeds, %d posts/feed", len(s.cfg.FeedURLs), s.cfg.PostsPerFeed)

	chromeBin := findChromeBinary(s.cfg.ChromeBin)
	s.logger.Info("[feed] Using browser binary: %s", chromeBin)

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent("Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 "+
			"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"),
	)
	if chromeBin != "" {
		opts = append(opts, chromedp.ExecPath(chromeBin))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(string, ...interface{}) {}))
	defer cancelBrowser()

	for _, feedURL := range s.cfg.FeedURLs {
		links, err := s.collectPostLinks(browserCtx, feedURL)
		if err != nil {
			s.logger.Error("[feed] %s failed: %v", feedURL, err)
			continue
		}
		s.logger.Info("[feed] %s: %d new posts", feedURL, len(links))

		for _, link := range links {
			link := link
			s.pool.SubmitContext(ctx, func() {
				rec, err := s.scrapePost(browserCtx, link)
				if err != nil {
					s.logger.Warn("[feed] Post %s failed: %v", link, err)
					return
				}
				s.mu.Lock()
				s.records = append(s.records, rec)
				s.mu.Unlock()
			})
		}
		s.pool.Wait()

		if err := ctx.Err(); err != nil {
			return s.records, fmt.Errorf("feed: %w", err)
		}
	}

	s.logger.Info("[feed] Scrape complete: %d raw records", len(s.records))
	return s.records, nil
}

// collectPostLinks scrolls a feed page and returns unseen post URLs.
func (s *Scraper) collectPostLinks(browserCtx context.Context, feedURL string) ([]string, error) {
	var links []string

	err := s.retry.Do(browserCtx, "feed "+feedURL, func() error {
		ctx, cancel := chromedp.NewContext(browserCtx)
		defer cancel()
		ctx, cancelTimeout := context.WithTimeout(ctx, 60*time.Second)
		defer cancelTimeout()

		var hrefs []string
		err := chromedp.Run(ctx,
			chromedp.Navigate(feedURL),
			chromedp.Sleep(5*time.Second),
			chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`, nil),
			chromedp.Sleep(2*time.Second),
			chromedp.Evaluate(fmt.Sprintf(`
				(function() {
					var out = [], seen = {};
					var anchors = document.querySelectorAll('a[href*="/p/"], a[href*="/reel/"]');
					for (var i = 0; i < anchors.length && out.length < %d; i++) {
						var href = anchors[i].href.split('?')[0];
						if (!seen[href]) { seen[href] = true; out.push(href); }
					}
					return out;
				})()
			`, s.cfg.PostsPerFeed), &hrefs),
		)
		if err != nil {
			return fmt.Errorf("chromedp feed scrape: %w", err)
		}
		links = links[:0]
		for _, h := range hrefs {
			if s.visitedURL.Add(h) {
				links = append(links, h)
			}
		}
		return nil
	})

	return links, err
}

// scrapePost opens one post and reads its caption and metadata.
func (s *Scraper) scrapePost(browserCtx context.Context, postURL string) (*models.RawRecord, error) {
	rec := &models.RawRecord{Platform: platform, SourceURL: postURL}

	err := s.retry.Do(browserCtx, "post "+postURL, func() error {
		ctx, cancel := chromedp.NewContext(browserCtx)
		defer cancel()
		ctx, cancelTimeout := context.WithTimeout(ctx, 45*time.Second)
		defer cancelTimeout()

		type postData struct {
			Description string `json:"description"`
			Caption     string `json:"caption"`
			Image       string `json:"image"`
			Posted      string `json:"posted"`
			Location    string `json:"location"`
		}
		var data postData

		s.usage.Inc(UsagePages)
		err := chromedp.Run(ctx,
			chromedp.Navigate(postURL),
			chromedp.Sleep(3*time.Second),
			chromedp.Evaluate(`
				(function() {
					function meta(p) {
						var el = document.querySelector('meta[property="' + p + '"]');
						return el ? el.getAttribute('content') || '' : '';
					}
					var cap = document.querySelector('article h1') || document.querySelector('h1');
					var t = document.querySelector('time[datetime]');
					var loc = document.querySelector('a[href*="/explore/locations/"]');
					return {
						description: meta('og:description'),
						caption:     cap ? cap.innerText.trim() : '',
						image:       meta('og:image'),
						posted:      t ? t.getAttribute('datetime') : '',
						location:    loc ? loc.innerText.trim() : ''
					};
				})()
			`, &data),
		)
		if err != nil {
			return fmt.Errorf("chromedp post extract: %w", err)
		}

		handle, caption := splitOGDescription(data.Description)
		if data.Caption != "" {
			caption = data.Caption
		}
		rec.Caption = caption
		rec.OwnerHandle = handle
		rec.ThumbnailURL = data.Image
		rec.ZoneHint = data.Location
		rec.PostedAt = parsePostedAt(data.Posted)
		rec.ScrapedAt = s.now()
		return nil
	})

	return rec, err
}

// ogDescription matches `12 likes, 3 comments - handle on May 1, 2026: "caption"`.
var ogDescription = regexp.MustCompile(`(?s)^(?:.*?-\s+)?([A-Za-z0-9._]+) on [^:]+:\s*"(.*)"\.?\s*$`)

// splitOGDescription pulls the owner handle and caption out of an og:description.
// Text in any other shape is returned whole as the caption.
func splitOGDescription(s string) (handle, caption string) {
	s = strings.TrimSpace(s)
	if m := ogDescription.FindStringSubmatch(s); m != nil {
		return m[1], strings.TrimSpace(m[2])
	}
	return "", s
}

func parsePostedAt(s string) time.Time {
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

// findChromeBinary locates a Chrome/Chromium binary, preferring the configured one.
func findChromeBinary(configured string) string {
	if configured != "" {
		return configured
	}

	names := []string{"google-chrome-stable", "google-chrome", "chromium", "chromium-browser"}
	for _, name := range names {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}

	paths := []string{
		"/usr/bin/google-chrome-stable",
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/snap/bin/chromium",
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return ""
}
