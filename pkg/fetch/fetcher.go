package fetch

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"linkcrawler/pkg/seed"
)

// Options are the per-request settings, built fresh for every call from the
// base configuration plus per-host overrides. Nothing here is shared or
// mutated between requests.
type Options struct {
	UserAgent string
	BasicAuth *seed.Auth
	Headers   map[string]string
	Cookies   map[string]string
	Timeout   time.Duration
}

// Response is the subset of an HTTP response the crawl engine needs
type Response struct {
	StatusCode     int
	FinalURL       string // post-redirect URL, the referer base for resolution
	ContentType    string
	HasContentType bool
	Body           []byte // populated only for GET
}

// Fetcher issues HEAD and GET requests through the shared client, applying
// the optional requests-per-minute limit before each request.
type Fetcher struct {
	client  *http.Client
	limiter *rate.Limiter
	log     *logrus.Logger
}

// NewFetcher creates a Fetcher. rpmLimit <= 0 disables rate limiting.
func NewFetcher(client *http.Client, rpmLimit int, log *logrus.Logger) *Fetcher {
	var limiter *rate.Limiter
	if rpmLimit > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpmLimit)), 1)
		log.WithField("rpm_limit", rpmLimit).Info("Request rate limiting enabled")
	}
	return &Fetcher{client: client, limiter: limiter, log: log}
}

// Head issues a HEAD request and returns the response without a body
func (f *Fetcher) Head(ctx context.Context, url string, opts Options) (*Response, error) {
	return f.do(ctx, http.MethodHead, url, opts, false)
}

// Get issues a GET request and returns the response with its full body
func (f *Fetcher) Get(ctx context.Context, url string, opts Options) (*Response, error) {
	return f.do(ctx, http.MethodGet, url, opts, true)
}

func (f *Fetcher) do(ctx context.Context, method, url string, opts Options, readBody bool) (*Response, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, &RequestError{Kind: classifyError(err), URL: url, Err: err}
		}
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, &RequestError{Kind: KindInvalidSchema, URL: url, Err: err}
	}

	if opts.UserAgent != "" {
		req.Header.Set("User-Agent", opts.UserAgent)
	}
	for key, value := range opts.Headers {
		req.Header.Set(key, value)
	}
	for name, value := range opts.Cookies {
		req.AddCookie(&http.Cookie{Name: name, Value: value})
	}
	if opts.BasicAuth != nil {
		req.SetBasicAuth(opts.BasicAuth.Username, opts.BasicAuth.Password)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		kind := classifyError(err)
		f.log.WithFields(logrus.Fields{"url": url, "method": method, "kind": kind}).Warnf("Request failed: %v", err)
		return nil, &RequestError{Kind: kind, URL: url, Err: err}
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	contentType := resp.Header.Get("Content-Type")
	out := &Response{
		StatusCode:     resp.StatusCode,
		FinalURL:       resp.Request.URL.String(),
		ContentType:    contentType,
		HasContentType: contentType != "",
	}

	if readBody {
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			kind := classifyBodyError(err)
			f.log.WithFields(logrus.Fields{"url": url, "kind": kind}).Warnf("Reading response body failed: %v", err)
			return nil, &RequestError{Kind: kind, URL: url, Err: err}
		}
		out.Body = body
	}

	return out, nil
}
