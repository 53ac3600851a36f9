// Package extract parses HTML bodies and yields the raw candidate link
// strings they contain. Resolution against the referer happens elsewhere.
package extract

import (
	"bytes"

	"github.com/PuerkitoBio/goquery"
)

// Links returns the set of raw link strings in an HTML body: the href of
// anchor and stylesheet-link elements and the src of script and image
// elements. Elements lacking the attribute are skipped. An unparseable body
// yields an empty set; extraction failure is never fatal to the crawl.
func Links(body []byte) map[string]struct{} {
	links := make(map[string]struct{})

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return links
	}

	doc.Find("a, link").Each(func(_ int, el *goquery.Selection) {
		if href, ok := el.Attr("href"); ok && href != "" {
			links[href] = struct{}{}
		}
	})
	doc.Find("script, img").Each(func(_ int, el *goquery.Selection) {
		if src, ok := el.Attr("src"); ok && src != "" {
			links[src] = struct{}{}
		}
	})

	return links
}
