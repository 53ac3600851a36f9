// Package resolve classifies and normalizes raw hyperlink strings found in
// page bodies into absolute, canonical URLs, or decides to discard them.
package resolve

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"
)

// cdnSizeSuffixRe matches CDN image-resizing suffixes such as
// "...photo.jpeg@!1200" which must be stripped before resolution.
var cdnSizeSuffixRe = regexp.MustCompile(`@!.*$`)

// Resolver resolves raw links against referer URLs. Parsed URLs are cached
// by their original string; cached values are never mutated.
type Resolver struct {
	mu    sync.Mutex
	cache map[string]*url.URL
}

// NewResolver creates a Resolver with an empty parse cache
func NewResolver() *Resolver {
	return &Resolver{cache: make(map[string]*url.URL)}
}

// parse returns the cached parse of rawURL, parsing and caching on miss.
// Callers must treat the result as read-only.
func (r *Resolver) parse(rawURL string) (*url.URL, error) {
	r.mu.Lock()
	cached, ok := r.cache[rawURL]
	r.mu.Unlock()
	if ok {
		return cached, nil
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.cache[rawURL] = parsed
	r.mu.Unlock()
	return parsed, nil
}

// Host returns the host:port authority of a URL, or "" if it cannot be
// parsed. Used for internal-host bookkeeping and per-host request options.
func (r *Resolver) Host(rawURL string) string {
	parsed, err := r.parse(rawURL)
	if err != nil {
		return ""
	}
	return parsed.Host
}

// Resolve normalizes a raw link found on refererURL into an absolute URL.
// The second return value is false when the link is discarded.
//
// Discarded after whitespace stripping: empty strings, same-page locators
// ("#..."), script pseudo-URLs ("javascript:..."), email ("mailto:..."),
// telephone ("tel:...") and data URIs ("data:...").
//
// The reference forms handled, for referer https://store.example.com/product/osmo:
//
//	https://store.example.com/a  -> unchanged (minus fragment)
//	//asset.cdn.com/a.png        -> http://asset.cdn.com/a.png
//	/category/phantom            -> https://store.example.com/category/phantom
//	../compare-phantom-3         -> https://store.example.com/compare-phantom-3
//	mavic-pro                    -> https://store.example.com/product/mavic-pro
func (r *Resolver) Resolve(rawLink, refererURL string) (string, bool) {
	link := strings.ReplaceAll(rawLink, " ", "")
	if link == "" {
		return "", false
	}

	switch {
	case strings.HasPrefix(link, "#"):
		return "", false
	case strings.HasPrefix(link, "javascript"):
		return "", false
	case strings.HasPrefix(link, "mailto"):
		return "", false
	case strings.HasPrefix(link, "tel:"):
		return "", false
	case strings.HasPrefix(link, "data:"):
		return "", false
	}

	// Links double-escaped as JSON string fragments, e.g.
	// \"https:\/\/store.example.com\/guides\/\" are unescaped and returned
	// without further resolution.
	if strings.HasPrefix(link, `\"`) {
		return unescapeQuotedLink(link), true
	}

	if strings.Contains(link, "@!") {
		link = cdnSizeSuffixRe.ReplaceAllString(link, "")
	}

	parsed, err := r.parse(link)
	if err != nil {
		return "", false
	}

	resolved := r.applyReferer(parsed, refererURL)
	if resolved == nil {
		return "", false
	}
	return resolved.String(), true
}

// applyReferer combines a parsed link with the referer according to its
// reference form. Returns a fresh URL value; never mutates cached parses.
func (r *Resolver) applyReferer(parsed *url.URL, refererURL string) *url.URL {
	out := *parsed
	out.Fragment = ""

	switch {
	case out.Scheme != "":
		// Already absolute
		return &out

	case out.Host != "":
		// Scheme-relative CDN reference, e.g. //asset.cdn.com/a.png
		out.Scheme = "http"
		return &out

	case strings.HasPrefix(out.Path, "/"):
		referer, err := r.parse(refererURL)
		if err != nil {
			return nil
		}
		out.Scheme = referer.Scheme
		out.Host = referer.Host
		return &out

	default:
		referer, err := r.parse(refererURL)
		if err != nil {
			return nil
		}
		// A referer at the host root ("https://a.example.com") carries an
		// empty path; treat it as "/" so the segment math below always has
		// a final segment to replace.
		refererPath := referer.Path
		if refererPath == "" {
			refererPath = "/"
		}
		segments := strings.Split(refererPath, "/")
		if strings.HasPrefix(out.Path, "../") {
			// Parent-relative: pop the referer's last path segment, then
			// substitute the link as the new final segment.
			if len(segments) > 1 {
				segments = segments[:len(segments)-1]
			}
			segments[len(segments)-1] = strings.TrimLeft(out.Path, "./")
		} else {
			// Sibling-relative: replace the referer's final path segment
			segments[len(segments)-1] = out.Path
		}
		out.Path = strings.Join(segments, "/")
		out.Scheme = referer.Scheme
		out.Host = referer.Host
		return &out
	}
}

// unescapeQuotedLink reverses JSON-style string escaping: backslash-escaped
// slashes are collapsed, unicode escapes decoded, and literal quote
// characters stripped.
func unescapeQuotedLink(link string) string {
	link = strings.ReplaceAll(link, `\/`, "/")
	if unquoted, err := strconv.Unquote(`"` + link + `"`); err == nil {
		link = unquoted
	}
	return strings.ReplaceAll(link, `"`, "")
}
