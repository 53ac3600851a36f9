// Package classify decides how a fetched URL is handled based on its
// response content type and target host.
package classify

import "strings"

// Kind is the handling decision for a fetched URL
type Kind string

const (
	// KindStatic marks a leaf asset: validated, never expanded
	KindStatic Kind = "static"
	// KindExternal marks a URL on a host outside the crawl: validated, never expanded
	KindExternal Kind = "external"
	// KindRecursive marks an internal page whose body is fetched and expanded
	KindRecursive Kind = "recursive"
	// KindIgnore marks a response without a usable content type
	KindIgnore Kind = "ignore"
)

// Classify maps a response content type and target host onto a handling
// decision. Precedence: missing content type -> ignore; static table match
// -> static (even for external hosts); host outside internalHosts ->
// external; otherwise recursive.
//
// The static table is matched against the raw header value first, then with
// media-type parameters (e.g. "; charset=utf-8") stripped.
func Classify(contentType string, hasContentType bool, targetHost string, internalHosts, staticTypes map[string]struct{}) Kind {
	if !hasContentType {
		return KindIgnore
	}
	if _, ok := staticTypes[contentType]; ok {
		return KindStatic
	}
	if mediaType, _, found := strings.Cut(contentType, ";"); found {
		if _, ok := staticTypes[strings.TrimSpace(mediaType)]; ok {
			return KindStatic
		}
	}
	if _, ok := internalHosts[targetHost]; !ok {
		return KindExternal
	}
	return KindRecursive
}
