package fetch

import (
	"net"
	"net/http"

	"github.com/sirupsen/logrus"

	"linkcrawler/pkg/config"
)

// NewClient creates the shared HTTP client from the configured transport
// settings. Redirects are followed (up to the Go default of 10); the final
// post-redirect URL is reported back on each response. Per-request timeouts
// are applied via context by the Fetcher, not on the client.
func NewClient(cfg config.HTTPClientConfig, log *logrus.Logger) *http.Client {
	dialer := &net.Dialer{
		Timeout:   cfg.DialerTimeout.Duration,
		KeepAlive: cfg.DialerKeepAlive.Duration,
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         dialer.DialContext,
		ForceAttemptHTTP2:   true,
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout.Duration,
		TLSHandshakeTimeout: cfg.TLSHandshakeTimeout.Duration,
	}

	return &http.Client{
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				// Stop following and hand back the last response: a
				// redirect loop is then recorded under its 3xx status
				// instead of failing the request.
				return http.ErrUseLastResponse
			}
			log.Debugf("Redirecting: %s -> %s (hop %d)", via[len(via)-1].URL, req.URL, len(via))
			return nil
		},
	}
}
