package crawler

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

const maxDisplayedReferers = 5

// sortedOutcomes returns the categorization keys in descending string
// order, so failure tags sort above numeric status codes and higher codes
// come first.
func (c *Crawler) sortedOutcomes() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	outcomes := make([]string, 0, len(c.categorized))
	for outcome := range c.categorized {
		outcomes = append(outcomes, outcome)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(outcomes)))
	return outcomes
}

func (c *Crawler) outcomeURLs(outcome string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	urls := make([]string, 0, len(c.categorized[outcome]))
	for url := range c.categorized[outcome] {
		urls = append(urls, url)
	}
	sort.Strings(urls)
	return urls
}

// Report logs the categorized crawl results, one block per outcome, in
// descending outcome order. Failure tags and status codes of 400 and above
// log as errors with referer pages; 3xx logs as warning; 2xx above 200 as
// info. Plain 200s are omitted.
func (c *Crawler) Report() {
	for _, outcome := range c.sortedOutcomes() {
		urls := c.outcomeURLs(outcome)
		status, numeric := parseStatus(outcome)

		c.log.Info(strings.Repeat("-", 120))
		switch {
		case !numeric:
			c.log.Error(c.formatOutcomeBlock(outcome, urls, true, true))
		case status >= 400:
			c.log.Error(c.formatOutcomeBlock(outcome, urls, false, true))
		case status >= 300:
			c.log.Warn(c.formatOutcomeBlock(outcome, urls, false, false))
		case status > 200:
			c.log.Info(c.formatOutcomeBlock(outcome, urls, false, false))
		}
	}
}

func parseStatus(outcome string) (int, bool) {
	status, err := strconv.Atoi(outcome)
	return status, err == nil
}

// formatOutcomeBlock renders one report block: a headline with the URL
// count, then one line per URL with optional failure detail and referers.
func (c *Crawler) formatOutcomeBlock(outcome string, urls []string, showDetail, showReferer bool) string {
	var b strings.Builder
	if _, numeric := parseStatus(outcome); numeric {
		fmt.Fprintf(&b, "HTTP status code %s, total: %d.\n", outcome, len(urls))
	} else {
		fmt.Fprintf(&b, "%s: %d.\n", outcome, len(urls))
	}

	b.WriteString("urls list:\n")
	for _, url := range urls {
		b.WriteString(url)
		if showDetail {
			c.mu.Lock()
			detail := c.badURLs[url]
			c.mu.Unlock()
			fmt.Fprintf(&b, ", %s: %s", outcome, detail)
		}
		if showReferer {
			referers := c.RefererURLs(url)
			sort.Strings(referers)
			if len(referers) > maxDisplayedReferers {
				fmt.Fprintf(&b, ", referer_urls: %v total %d, displayed %d.",
					referers[:maxDisplayedReferers], len(referers), maxDisplayedReferers)
			} else {
				fmt.Fprintf(&b, ", referer_urls: %v", referers)
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}

// NotificationBody renders an HTML summary of the run for notification
// mails: the tested websites, the total URL count and the per-outcome
// bucket sizes, plus a link to the detailed log when one is given.
func (c *Crawler) NotificationBody(detailLogURL string) string {
	urls := make([]string, 0, len(c.websites))
	for _, website := range c.websites {
		urls = append(urls, website.URL)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Tested websites: %s<br/>", strings.Join(urls, ","))
	fmt.Fprintf(&b, "Total tested urls number: %d<br/><br/>", c.VisitedCount())
	b.WriteString("Categorised urls number by HTTP Status Code: <br/>")

	for _, outcome := range c.sortedOutcomes() {
		count := len(c.outcomeURLs(outcome))
		if _, numeric := parseStatus(outcome); numeric {
			fmt.Fprintf(&b, "status code %s: %d<br/>", outcome, count)
		} else {
			fmt.Fprintf(&b, "%s urls: %d<br/>", outcome, count)
		}
	}

	if detailLogURL != "" {
		fmt.Fprintf(&b, "<br/>Detailed log info: %s", detailLogURL)
	}
	return b.String()
}
