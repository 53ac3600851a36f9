// Package seed parses the crawl seed specification and the header/cookie
// argument lists handed to the crawler on the command line.
package seed

import (
	"fmt"
	"net/url"
	"strings"
)

// Auth carries HTTP basic auth credentials for one seed website.
type Auth struct {
	Username string
	Password string
}

// Website is one crawl starting point, with optional credentials applied to
// every request against its host.
type Website struct {
	URL  string
	Auth *Auth
}

// ParseWebsites parses a pipe-delimited seed specification:
//
//	url1|user2:pwd2@url2|url3
//
// Each entry is a URL, optionally prefixed with "username:password@".
func ParseWebsites(spec string) ([]Website, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, fmt.Errorf("crawl seed not specified")
	}

	var websites []Website
	for _, entry := range strings.Split(spec, "|") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			return nil, fmt.Errorf("empty seed entry in %q", spec)
		}

		website := Website{URL: entry}
		if at := strings.Index(entry, "@"); at >= 0 {
			userPwd, rawURL := entry[:at], entry[at+1:]
			username, password, ok := strings.Cut(userPwd, ":")
			if !ok {
				return nil, fmt.Errorf("malformed credentials %q in seed entry %q (want user:password@url)", userPwd, entry)
			}
			website = Website{
				URL:  rawURL,
				Auth: &Auth{Username: username, Password: password},
			}
		}

		if _, err := url.Parse(website.URL); err != nil || website.URL == "" {
			return nil, fmt.Errorf("invalid seed url %q: %v", website.URL, err)
		}
		websites = append(websites, website)
	}
	return websites, nil
}

// ParseKeyValues parses a list of "key=value" or "key:value" strings into a
// flat map. The separator is "=" when present, otherwise ":". On duplicate
// keys the last value wins.
func ParseKeyValues(items []string) (map[string]string, error) {
	out := make(map[string]string, len(items))
	for _, item := range items {
		sep := ":"
		if strings.Contains(item, "=") {
			sep = "="
		}
		key, value, ok := strings.Cut(item, sep)
		if !ok || key == "" {
			return nil, fmt.Errorf("malformed key-value entry %q (want key=value or key:value)", item)
		}
		out[key] = value
	}
	return out, nil
}
