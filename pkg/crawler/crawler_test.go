package crawler

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"linkcrawler/pkg/config"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func testConfig() *config.AppConfig {
	cfg := config.Default()
	cfg.MaxRetries = 0 // keep failure paths fast
	cfg.DefaultTimeout = config.Duration{Duration: 5 * time.Second}
	return cfg
}

// requestRecorder counts requests per "METHOD path"
type requestRecorder struct {
	mu     sync.Mutex
	counts map[string]int
}

func newRequestRecorder() *requestRecorder {
	return &requestRecorder{counts: make(map[string]int)}
}

func (r *requestRecorder) record(req *http.Request) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts[req.Method+" "+req.URL.Path]++
}

func (r *requestRecorder) count(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[key]
}

func htmlPage(links ...string) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	for _, link := range links {
		fmt.Fprintf(&b, `<a href="%s">link</a>`, link)
	}
	b.WriteString("</body></html>")
	return b.String()
}

func serveHTML(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "text/html")
	io.WriteString(w, body)
}

func TestRunBFS_ExpandsInternalValidatesLeaves(t *testing.T) {
	rec := newRequestRecorder()

	external := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.record(r)
		serveHTML(w, htmlPage("/external-child"))
	}))
	defer external.Close()

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		rec.record(r)
		switch r.URL.Path {
		case "/":
			serveHTML(w, htmlPage("/b", "/assets/site.css", external.URL, "/missing"))
		case "/b":
			serveHTML(w, htmlPage("/c"))
		case "/c":
			serveHTML(w, htmlPage())
		case "/assets/site.css":
			w.Header().Set("Content-Type", "text/css")
			io.WriteString(w, "body{}")
		default:
			http.NotFound(w, r)
		}
	})
	site := httptest.NewServer(mux)
	defer site.Close()

	c, err := New(testConfig(), Params{Mode: ModeBFS, MaxDepth: 10, Workers: 4}, site.URL, nil, testLogger())
	require.NoError(t, err)
	require.NoError(t, c.Run(context.Background()))

	visited := c.VisitedURLs()
	assert.Contains(t, visited, site.URL)
	assert.Contains(t, visited, site.URL+"/b")
	assert.Contains(t, visited, site.URL+"/c")
	assert.Contains(t, visited, site.URL+"/assets/site.css")
	assert.Contains(t, visited, external.URL)
	assert.Contains(t, visited, site.URL+"/missing")
	assert.Equal(t, 6, c.VisitedCount())

	// Recursive pages carry a content fingerprint
	assert.NotEmpty(t, visited[site.URL])
	// Leaf assets are validated with HEAD only, never fetched or expanded
	assert.Equal(t, 1, rec.count("HEAD /assets/site.css"))
	assert.Zero(t, rec.count("GET /assets/site.css"))
	// External pages are validated but their links are not followed
	assert.Zero(t, rec.count("HEAD /external-child"))
	assert.Zero(t, rec.count("GET /external-child"))

	// Outcomes are bucketed by status code
	assert.Contains(t, c.categorized["200"], site.URL+"/b")
	assert.Contains(t, c.categorized["200"], external.URL)
	assert.Contains(t, c.categorized["404"], site.URL+"/missing")

	// The seed links to the external site and the broken URL
	assert.Equal(t, []string{site.URL}, c.RefererURLs(external.URL))
	assert.Equal(t, []string{site.URL}, c.RefererURLs(site.URL+"/missing"))
}

func TestRunBFS_MaxDepthBoundsTraversal(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		// /p0 links to /p1, /p1 to /p2, and so on
		var n int
		fmt.Sscanf(r.URL.Path, "/p%d", &n)
		serveHTML(w, htmlPage(fmt.Sprintf("/p%d", n+1)))
	})
	site := httptest.NewServer(mux)
	defer site.Close()

	c, err := New(testConfig(), Params{Mode: ModeBFS, MaxDepth: 2, Workers: 2}, site.URL+"/p0", nil, testLogger())
	require.NoError(t, err)
	require.NoError(t, c.Run(context.Background()))

	visited := c.VisitedURLs()
	assert.Contains(t, visited, site.URL+"/p0")
	assert.Contains(t, visited, site.URL+"/p1")
	assert.Contains(t, visited, site.URL+"/p2")
	// Found at depth 3, beyond the bound: never fetched
	assert.NotContains(t, visited, site.URL+"/p3")
	assert.False(t, c.ledger.IsUnvisitedEmpty())
}

func TestRunDFS_WalksChainAndHonorsDepthBound(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		var n int
		fmt.Sscanf(r.URL.Path, "/p%d", &n)
		serveHTML(w, htmlPage(fmt.Sprintf("/p%d", n+1)))
	})
	site := httptest.NewServer(mux)
	defer site.Close()

	c, err := New(testConfig(), Params{Mode: ModeDFS, MaxDepth: 2}, site.URL+"/p0", nil, testLogger())
	require.NoError(t, err)
	require.NoError(t, c.Run(context.Background()))

	visited := c.VisitedURLs()
	assert.Contains(t, visited, site.URL+"/p0")
	assert.Contains(t, visited, site.URL+"/p1")
	assert.Contains(t, visited, site.URL+"/p2")
	assert.NotContains(t, visited, site.URL+"/p3")
}

func TestVisit_RetriesTransientServerError(t *testing.T) {
	rec := newRequestRecorder()
	var mu sync.Mutex
	attempts := 0

	site := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.record(r)
		mu.Lock()
		attempts++
		failing := attempts <= 2 // first HEAD+GET round fails
		mu.Unlock()
		if failing {
			w.Header().Set("Content-Type", "text/html")
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		serveHTML(w, htmlPage())
	}))
	defer site.Close()

	cfg := testConfig()
	cfg.MaxRetries = 3

	c, err := New(cfg, Params{Mode: ModeBFS, MaxDepth: 1, Workers: 1}, site.URL, nil, testLogger())
	require.NoError(t, err)
	c.backoffUnit = time.Millisecond
	require.NoError(t, c.Run(context.Background()))

	// First attempt saw 503; the retry succeeded
	assert.Equal(t, 2, rec.count("HEAD /"))
	assert.Contains(t, c.categorized["200"], site.URL)
	assert.NotContains(t, c.categorized, "503")
	assert.NotContains(t, c.badURLs, site.URL)
}

func TestVisit_RecordsDetailWhenRetriesExhausted(t *testing.T) {
	site := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer site.Close()

	cfg := testConfig()
	cfg.MaxRetries = 1

	c, err := New(cfg, Params{Mode: ModeBFS, MaxDepth: 1, Workers: 1}, site.URL, nil, testLogger())
	require.NoError(t, err)
	c.backoffUnit = time.Millisecond
	require.NoError(t, c.Run(context.Background()))

	assert.Contains(t, c.categorized["500"], site.URL)
	assert.Equal(t, "HTTP Status Code is 500.", c.badURLs[site.URL])
}

func TestVisit_TransientFailureAttemptedFourTimes(t *testing.T) {
	rec := newRequestRecorder()
	site := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.record(r)
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer site.Close()

	cfg := testConfig()
	cfg.MaxRetries = 3

	c, err := New(cfg, Params{Mode: ModeBFS, MaxDepth: 1, Workers: 1}, site.URL, nil, testLogger())
	require.NoError(t, err)
	c.backoffUnit = time.Millisecond
	require.NoError(t, c.Run(context.Background()))

	// Initial attempt plus three retries
	assert.Equal(t, 4, rec.count("HEAD /"))
	assert.Contains(t, c.categorized["502"], site.URL)
	assert.Equal(t, "HTTP Status Code is 502.", c.badURLs[site.URL])
}

func TestVisit_MissingContentTypeSkipsRetry(t *testing.T) {
	rec := newRequestRecorder()
	site := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.record(r)
		w.Header()["Content-Type"] = nil
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer site.Close()

	cfg := testConfig()
	cfg.MaxRetries = 3 // would retry a 500, but no content type forces a single attempt

	c, err := New(cfg, Params{Mode: ModeBFS, MaxDepth: 1, Workers: 1}, site.URL, nil, testLogger())
	require.NoError(t, err)
	require.NoError(t, c.Run(context.Background()))

	assert.Equal(t, 1, rec.count("HEAD /"))
	assert.Zero(t, rec.count("GET /"))
	assert.Contains(t, c.categorized["500"], site.URL)
}

func TestVisit_ConnectionFailureCategorizedByTag(t *testing.T) {
	site := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	seedURL := site.URL
	site.Close() // nothing listening anymore

	cfg := testConfig()
	cfg.MaxRetries = 3 // connection failures burn the whole retry budget

	c, err := New(cfg, Params{Mode: ModeBFS, MaxDepth: 1, Workers: 1}, seedURL, nil, testLogger())
	require.NoError(t, err)
	c.backoffUnit = time.Millisecond
	require.NoError(t, c.Run(context.Background()))

	assert.Contains(t, c.categorized["ConnectionError"], seedURL)
	assert.NotEmpty(t, c.badURLs[seedURL])
}

func TestRequestOptions_PerHostAgentAndAuth(t *testing.T) {
	cfg := testConfig()
	seedSpec := "user1:pwd1@http://m.example.com|http://www.example.com"

	c, err := New(cfg, Params{Mode: ModeBFS}, seedSpec, nil, testLogger())
	require.NoError(t, err)

	mobile := c.requestOptions("http://m.example.com/page")
	assert.Equal(t, cfg.UserAgents.Mobile, mobile.UserAgent)
	require.NotNil(t, mobile.BasicAuth)
	assert.Equal(t, "user1", mobile.BasicAuth.Username)
	assert.Equal(t, "pwd1", mobile.BasicAuth.Password)

	www := c.requestOptions("http://www.example.com/page")
	assert.Equal(t, cfg.UserAgents.WWW, www.UserAgent)
	assert.Nil(t, www.BasicAuth)
}

func TestOutcomeNeedsRetry(t *testing.T) {
	tests := []struct {
		outcome string
		want    bool
	}{
		{"200", false},
		{"301", false},
		{"400", false}, // 400 itself is terminal
		{"404", true},
		{"500", true},
		{"ConnectionError", true},
		{"Timeout", true},
	}
	for _, tt := range tests {
		t.Run(tt.outcome, func(t *testing.T) {
			assert.Equal(t, tt.want, outcomeNeedsRetry(tt.outcome))
		})
	}
}

func newReportCrawler(t *testing.T) (*Crawler, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	log := logrus.New()
	log.SetOutput(&buf)

	c, err := New(testConfig(), Params{Mode: ModeBFS}, "http://a.example.com", nil, log)
	require.NoError(t, err)

	c.categorized = map[string]map[string]struct{}{
		"200":             {"http://a.example.com/ok": {}},
		"301":             {"http://a.example.com/moved": {}},
		"404":             {"http://a.example.com/missing": {}},
		"ConnectionError": {"http://a.example.com/down": {}},
	}
	c.badURLs = map[string]string{"http://a.example.com/down": "connection refused"}
	c.pageLinks = map[string]map[string]struct{}{
		"http://a.example.com/": {
			"http://a.example.com/missing": {},
			"http://a.example.com/down":    {},
		},
	}
	return c, &buf
}

func TestReport_TiersAndOmitsPlain200(t *testing.T) {
	c, buf := newReportCrawler(t)
	c.Report()
	out := buf.String()

	assert.Contains(t, out, "ConnectionError: 1.")
	assert.Contains(t, out, "connection refused")
	assert.Contains(t, out, "HTTP status code 404, total: 1.")
	assert.Contains(t, out, "HTTP status code 301, total: 1.")
	// Broken links name the pages that reference them
	assert.Contains(t, out, "referer_urls: [http://a.example.com/]")
	// Plain 200s are noise and are not reported
	assert.NotContains(t, out, "HTTP status code 200")
}

func TestNotificationBody_SummarizesBucketsInOrder(t *testing.T) {
	c, _ := newReportCrawler(t)
	body := c.NotificationBody("http://ci.example.com/job/42")

	assert.Contains(t, body, "Tested websites: http://a.example.com<br/>")
	assert.Contains(t, body, "ConnectionError urls: 1<br/>")
	assert.Contains(t, body, "status code 404: 1<br/>")
	assert.Contains(t, body, "status code 200: 1<br/>")
	assert.Contains(t, body, "Detailed log info: http://ci.example.com/job/42")

	// Failure tags sort above numeric codes, higher codes first
	tagIdx := strings.Index(body, "ConnectionError urls")
	code404 := strings.Index(body, "status code 404")
	code200 := strings.Index(body, "status code 200")
	assert.Less(t, tagIdx, code404)
	assert.Less(t, code404, code200)
}
