package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLinks_CollectsAnchorsLinksScriptsImages(t *testing.T) {
	body := []byte(`<html><head>
		<link rel="stylesheet" href="/assets/site.css">
		<script src="/assets/app.js"></script>
	</head><body>
		<a href="/category/phantom">Phantom</a>
		<a href="mavic-pro">Mavic</a>
		<img src="//asset.cdn.com/a.png">
	</body></html>`)

	links := Links(body)

	assert.Equal(t, map[string]struct{}{
		"/assets/site.css":   {},
		"/assets/app.js":     {},
		"/category/phantom":  {},
		"mavic-pro":          {},
		"//asset.cdn.com/a.png": {},
	}, links)
}

func TestLinks_SkipsElementsWithoutAttributes(t *testing.T) {
	body := []byte(`<html><body>
		<a name="anchor-only">no href</a>
		<script>inline()</script>
		<img alt="no src">
		<link rel="canonical">
	</body></html>`)

	links := Links(body)
	assert.Empty(t, links)
}

func TestLinks_DeduplicatesRepeatedLinks(t *testing.T) {
	body := []byte(`<html><body>
		<a href="/page">one</a>
		<a href="/page">two</a>
	</body></html>`)

	links := Links(body)
	assert.Len(t, links, 1)
}

func TestLinks_NonHTMLBody(t *testing.T) {
	links := Links([]byte("\x00\x01\x02 not html at all"))
	// The HTML parser is lenient; whatever it makes of this, no link-bearing
	// elements exist, and extraction must not fail.
	assert.Empty(t, links)
}

func TestLinks_EmptyBody(t *testing.T) {
	assert.Empty(t, Links(nil))
}
