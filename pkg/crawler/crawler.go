// Package crawler orchestrates the link-validation crawl: it walks the link
// graph from the seed websites, validates every discovered URL and
// categorizes the outcomes by HTTP status code or failure class.
package crawler

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"linkcrawler/pkg/classify"
	"linkcrawler/pkg/config"
	"linkcrawler/pkg/extract"
	"linkcrawler/pkg/fetch"
	"linkcrawler/pkg/ledger"
	"linkcrawler/pkg/resolve"
	"linkcrawler/pkg/seed"
	"linkcrawler/pkg/storage"
)

// Traversal modes
const (
	ModeBFS = "BFS"
	ModeDFS = "DFS"
)

// Params are the per-run crawl settings from the command line
type Params struct {
	Mode     string
	MaxDepth int
	Workers  int
	RPMLimit int
	Headers  map[string]string
	Cookies  map[string]string
	// Include/Exclude substring filters are accepted and carried for
	// forward compatibility but do not gate traversal yet.
	Include []string
	Exclude []string
}

// Crawler holds the full crawl state for one run
type Crawler struct {
	cfg      *config.AppConfig
	params   Params
	websites []seed.Website

	internalHosts map[string]struct{}
	authByHost    map[string]*seed.Auth
	staticTypes   map[string]struct{}

	ledger   *ledger.Ledger
	resolver *resolve.Resolver
	fetcher  *fetch.Fetcher
	archive  *storage.Archive // nil when archiving is disabled
	log      *logrus.Logger
	runID    string

	// backoffUnit scales the linear retry backoff; 2s in production
	backoffUnit time.Duration

	mu          sync.Mutex
	categorized map[string]map[string]struct{} // outcome key -> urls
	badURLs     map[string]string              // url -> failure detail
	pageLinks   map[string]map[string]struct{} // page url -> resolved links
	testCounter int
}

// New builds a Crawler from the seed specification. Each seed host becomes
// an internal host; credentials attached to a seed apply to every request
// against that host.
func New(cfg *config.AppConfig, params Params, seedSpec string, archive *storage.Archive, log *logrus.Logger) (*Crawler, error) {
	websites, err := seed.ParseWebsites(seedSpec)
	if err != nil {
		return nil, err
	}

	c := &Crawler{
		cfg:           cfg,
		params:        params,
		websites:      websites,
		internalHosts: make(map[string]struct{}),
		authByHost:    make(map[string]*seed.Auth),
		staticTypes:   cfg.StaticContentTypes(),
		ledger:        ledger.New(),
		resolver:      resolve.NewResolver(),
		archive:       archive,
		log:           log,
		runID:         uuid.NewString(),
		backoffUnit:   2 * time.Second,
		categorized:   make(map[string]map[string]struct{}),
		badURLs:       make(map[string]string),
		pageLinks:     make(map[string]map[string]struct{}),
	}

	for _, website := range websites {
		host := c.resolver.Host(website.URL)
		if host == "" {
			return nil, fmt.Errorf("seed url %q has no host", website.URL)
		}
		c.internalHosts[host] = struct{}{}
		if website.Auth != nil {
			c.authByHost[host] = website.Auth
		}
		c.ledger.AddUnvisited(website.URL)
	}

	client := fetch.NewClient(cfg.HTTPClientSettings, log)
	c.fetcher = fetch.NewFetcher(client, params.RPMLimit, log)
	return c, nil
}

// Run executes the crawl in the configured traversal mode and logs the
// total visited count on completion.
func (c *Crawler) Run(ctx context.Context) error {
	mode := strings.ToUpper(c.params.Mode)
	c.log.WithFields(logrus.Fields{
		"mode":      mode,
		"max_depth": c.params.MaxDepth,
		"run_id":    c.runID,
	}).Info("Starting crawl")

	var err error
	if mode == ModeDFS {
		err = c.runDFS(ctx)
	} else {
		err = c.runBFS(ctx)
	}
	if err != nil {
		return err
	}

	c.log.WithField("tested_urls", c.ledger.VisitedCount()).Info("Finished crawl")
	return nil
}

// runBFS visits the frontier one depth level at a time: the queued URLs of
// the current level are drained as a batch and fanned out to a bounded
// worker pool, and the next level starts only after the batch completes.
func (c *Crawler) runBFS(ctx context.Context) error {
	for depth := 0; depth <= c.params.MaxDepth; depth++ {
		batch := c.ledger.DrainUnvisited()
		if len(batch) == 0 {
			break
		}

		workers := c.params.Workers
		if workers > len(batch) {
			workers = len(batch)
		}
		if workers < 1 {
			workers = 1
		}

		urls := make(chan string, len(batch))
		for _, u := range batch {
			urls <- u
		}
		close(urls)

		g, gctx := errgroup.WithContext(ctx)
		for i := 0; i < workers; i++ {
			g.Go(func() error {
				for u := range urls {
					if _, err := c.visit(gctx, u, depth); err != nil {
						return err
					}
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}
	return nil
}

// runDFS visits each seed's link graph depth-first with an explicit work
// stack. URLs discovered beyond the depth bound stay unvisited.
func (c *Crawler) runDFS(ctx context.Context) error {
	type frame struct {
		url   string
		depth int
	}

	for _, u := range c.ledger.DrainUnvisited() {
		stack := []frame{{url: u, depth: 0}}
		for len(stack) > 0 {
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]

			if top.depth > c.params.MaxDepth {
				continue
			}
			if c.ledger.IsVisited(top.url) {
				continue
			}

			links, err := c.visit(ctx, top.url, top.depth)
			if err != nil {
				return err
			}
			for link := range links {
				stack = append(stack, frame{url: link, depth: top.depth + 1})
			}
		}
	}
	return nil
}

// attemptResult is the outcome of a single fetch attempt
type attemptResult struct {
	outcome     string // numeric status code or failure tag
	detail      string
	fingerprint string
	links       map[string]struct{}
	noRetry     bool // failure class that cannot recover on retry
}

// visit fetches one URL with bounded retries and records the terminal
// outcome. Returns the resolved links found on the page (recursive pages
// only).
func (c *Crawler) visit(ctx context.Context, url string, depth int) (map[string]struct{}, error) {
	retries := c.cfg.MaxRetries
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		res := c.attempt(ctx, url, depth)
		if res.noRetry {
			retries = 0
		}

		if retries > 0 && outcomeNeedsRetry(res.outcome) {
			backoff := time.Duration(c.cfg.MaxRetries+1-retries) * c.backoffUnit
			c.log.WithFields(logrus.Fields{
				"url":     url,
				"outcome": res.outcome,
				"backoff": backoff,
			}).Debug("Retrying after backoff")
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			retries--
			continue
		}

		if retries == 0 {
			c.mu.Lock()
			c.badURLs[url] = res.detail
			c.mu.Unlock()
		}

		c.categorize(res.outcome, url)
		c.ledger.MarkVisited(url, res.fingerprint)
		c.archiveVisit(url, depth, res)
		return res.links, nil
	}
}

// outcomeNeedsRetry reports whether an outcome key warrants another
// attempt: any failure tag, or a numeric status strictly above 400.
func outcomeNeedsRetry(outcome string) bool {
	status, err := strconv.Atoi(outcome)
	if err != nil {
		return true
	}
	return status > 400
}

// attempt performs one HEAD-then-maybe-GET cycle against the URL
func (c *Crawler) attempt(ctx context.Context, url string, depth int) attemptResult {
	opts := c.requestOptions(url)

	start := time.Now()
	resp, err := c.fetcher.Head(ctx, url, opts)
	if err != nil {
		res := c.failureResult(err)
		c.logAttempt(depth, url, res.outcome, time.Since(start))
		return res
	}

	var res attemptResult
	kind := classify.Classify(resp.ContentType, resp.HasContentType, c.resolver.Host(url), c.internalHosts, c.staticTypes)
	switch kind {
	case classify.KindStatic, classify.KindExternal:
		res.outcome = strconv.Itoa(resp.StatusCode)

	case classify.KindIgnore:
		res.outcome = strconv.Itoa(resp.StatusCode)
		res.noRetry = true

	default: // recursive: fetch the body and expand its links
		start = time.Now()
		page, err := c.fetcher.Get(ctx, url, opts)
		if err != nil {
			res = c.failureResult(err)
			c.logAttempt(depth, url, res.outcome, time.Since(start))
			return res
		}

		sum := md5.Sum(page.Body)
		res.fingerprint = hex.EncodeToString(sum[:])
		res.outcome = strconv.Itoa(page.StatusCode)
		res.links = c.resolveLinks(extract.Links(page.Body), page.FinalURL)
		c.recordPageLinks(url, res.links)
		c.enqueueLinks(res.links)
		if page.StatusCode > 400 {
			res.detail = fmt.Sprintf("HTTP Status Code is %s.", res.outcome)
		}
	}

	c.logAttempt(depth, url, res.outcome, time.Since(start))
	return res
}

// failureResult maps a transport failure onto an outcome. The failure tag
// becomes the categorization key; timeouts get a human-readable detail
// naming the configured limit.
func (c *Crawler) failureResult(err error) attemptResult {
	var reqErr *fetch.RequestError
	if !errors.As(err, &reqErr) {
		return attemptResult{outcome: string(fetch.KindConnectionError), detail: err.Error()}
	}

	detail := reqErr.Err.Error()
	if reqErr.Kind == fetch.KindTimeout {
		detail = fmt.Sprintf("Timed out for %d seconds", c.cfg.DefaultTimeout.SecondsInt())
	}
	return attemptResult{
		outcome: string(reqErr.Kind),
		detail:  detail,
		noRetry: !reqErr.Kind.Retryable(),
	}
}

// requestOptions builds the per-request settings for a URL: the mobile
// user agent for "m." hosts, seed credentials for the URL's host, and the
// run-wide headers, cookies and timeout.
func (c *Crawler) requestOptions(url string) fetch.Options {
	host := c.resolver.Host(url)

	agent := c.cfg.UserAgents.WWW
	if strings.HasPrefix(host, "m.") {
		agent = c.cfg.UserAgents.Mobile
	}

	return fetch.Options{
		UserAgent: agent,
		BasicAuth: c.authByHost[host],
		Headers:   c.params.Headers,
		Cookies:   c.params.Cookies,
		Timeout:   c.cfg.DefaultTimeout.Duration,
	}
}

// resolveLinks normalizes raw links found on a page against its
// post-redirect URL, dropping the ones resolution discards.
func (c *Crawler) resolveLinks(rawLinks map[string]struct{}, refererURL string) map[string]struct{} {
	resolved := make(map[string]struct{}, len(rawLinks))
	for raw := range rawLinks {
		if link, ok := c.resolver.Resolve(raw, refererURL); ok {
			resolved[link] = struct{}{}
		}
	}
	return resolved
}

// recordPageLinks stores the page's outgoing links for referer lookups.
// Only the first fetch of a page records; retries keep the original set.
func (c *Crawler) recordPageLinks(pageURL string, links map[string]struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.pageLinks[pageURL]; !ok {
		c.pageLinks[pageURL] = links
	}
}

func (c *Crawler) enqueueLinks(links map[string]struct{}) {
	urls := make([]string, 0, len(links))
	for link := range links {
		urls = append(urls, link)
	}
	c.ledger.AddUnvisited(urls...)
}

func (c *Crawler) categorize(outcome, url string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.categorized[outcome]; !ok {
		c.categorized[outcome] = make(map[string]struct{})
	}
	c.categorized[outcome][url] = struct{}{}
}

func (c *Crawler) archiveVisit(url string, depth int, res attemptResult) {
	if c.archive == nil {
		return
	}
	entry := storage.Entry{
		Outcome:     res.outcome,
		Fingerprint: res.fingerprint,
		Depth:       depth,
		RunID:       c.runID,
		VisitedAt:   time.Now().UTC(),
	}
	if err := c.archive.Record(url, entry); err != nil {
		c.log.WithField("url", url).Warnf("Failed to archive visit: %v", err)
	}
}

func (c *Crawler) logAttempt(depth int, url, outcome string, duration time.Duration) {
	c.mu.Lock()
	c.testCounter++
	counter := c.testCounter
	c.mu.Unlock()

	c.log.WithFields(logrus.Fields{
		"test_counter": counter,
		"depth":        depth,
		"url":          url,
		"status_code":  outcome,
		"duration":     duration.Round(time.Millisecond),
	}).Debug("Tested url")
}

// RefererURLs returns every crawled page whose links include the URL
func (c *Crawler) RefererURLs(url string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var referers []string
	for pageURL, links := range c.pageLinks {
		if _, ok := links[url]; ok {
			referers = append(referers, pageURL)
		}
	}
	return referers
}

// VisitedURLs returns the visited url -> fingerprint mapping of this run
func (c *Crawler) VisitedURLs() map[string]string {
	return c.ledger.AllVisited()
}

// VisitedCount returns the number of URLs tested in this run
func (c *Crawler) VisitedCount() int {
	return c.ledger.VisitedCount()
}
