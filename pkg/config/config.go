package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ContentTypeConfig classifies response content types. A content type listed
// under Static marks the URL as a leaf asset: validated, never expanded.
type ContentTypeConfig struct {
	Static []string `yaml:"static"`
}

// UserAgentConfig holds the request user-agent strings, keyed by site flavor.
// The mobile agent is selected for hosts beginning with "m.".
type UserAgentConfig struct {
	Mobile string `yaml:"mobile"`
	WWW    string `yaml:"www"`
}

// HTTPClientConfig holds settings for the shared HTTP client transport
type HTTPClientConfig struct {
	MaxIdleConns        int      `yaml:"max_idle_conns,omitempty"`
	MaxIdleConnsPerHost int      `yaml:"max_idle_conns_per_host,omitempty"`
	IdleConnTimeout     Duration `yaml:"idle_conn_timeout,omitempty"`
	TLSHandshakeTimeout Duration `yaml:"tls_handshake_timeout,omitempty"`
	DialerTimeout       Duration `yaml:"dialer_timeout,omitempty"`
	DialerKeepAlive     Duration `yaml:"dialer_keep_alive,omitempty"`
}

// AppConfig holds the global application configuration
type AppConfig struct {
	ContentTypes       ContentTypeConfig `yaml:"content_types"`
	UserAgents         UserAgentConfig   `yaml:"user_agents"`
	DefaultTimeout     Duration          `yaml:"default_timeout"`
	MaxRetries         int               `yaml:"max_retries,omitempty"`
	HTTPClientSettings HTTPClientConfig  `yaml:"http_client_settings,omitempty"`
}

// Default returns the built-in configuration used when no config file is
// given. The static content-type table covers asset types a page links to
// but that never contain further links themselves.
func Default() *AppConfig {
	return &AppConfig{
		ContentTypes: ContentTypeConfig{
			Static: []string{
				"text/css",
				"application/javascript",
				"application/x-javascript",
				"text/javascript",
				"image/png",
				"image/jpeg",
				"image/gif",
				"image/svg+xml",
				"image/x-icon",
				"image/webp",
				"application/font-woff",
				"font/woff2",
				"application/pdf",
				"application/zip",
			},
		},
		UserAgents: UserAgentConfig{
			Mobile: "Mozilla/5.0 (iPhone; CPU iPhone OS 16_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.0 Mobile/15E148 Safari/604.1",
			WWW:    "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		},
		DefaultTimeout: Duration{30 * time.Second},
		MaxRetries:     3,
		HTTPClientSettings: HTTPClientConfig{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     Duration{90 * time.Second},
			TLSHandshakeTimeout: Duration{10 * time.Second},
			DialerTimeout:       Duration{15 * time.Second},
			DialerKeepAlive:     Duration{30 * time.Second},
		},
	}
}

// Load reads and parses a YAML config file, layering it over Default()
func Load(path string) (*AppConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %q: %w", path, err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parse config file %q: %w", path, err)
	}
	return cfg, nil
}

// StaticContentTypes returns the static classification table as a set
func (c *AppConfig) StaticContentTypes() map[string]struct{} {
	set := make(map[string]struct{}, len(c.ContentTypes.Static))
	for _, ct := range c.ContentTypes.Static {
		set[ct] = struct{}{}
	}
	return set
}
