package config

import (
	"fmt"
	"time"
)

// Validate checks the configuration, applies defaults for missing values,
// and returns human-readable warnings for anything it corrected. A non-nil
// error means the configuration is unusable.
func (c *AppConfig) Validate() ([]string, error) {
	var warnings []string

	if len(c.ContentTypes.Static) == 0 {
		return nil, fmt.Errorf("content_types.static must list at least one content type")
	}

	if c.DefaultTimeout.Duration <= 0 {
		warnings = append(warnings, fmt.Sprintf("default_timeout not set, using %v", 30*time.Second))
		c.DefaultTimeout = Duration{30 * time.Second}
	}

	if c.MaxRetries < 0 {
		warnings = append(warnings, "max_retries is negative, using 3")
		c.MaxRetries = 3
	}

	if c.UserAgents.WWW == "" {
		warnings = append(warnings, "user_agents.www not set, using default agent")
		c.UserAgents.WWW = Default().UserAgents.WWW
	}
	if c.UserAgents.Mobile == "" {
		warnings = append(warnings, "user_agents.mobile not set, falling back to www agent")
		c.UserAgents.Mobile = c.UserAgents.WWW
	}

	if c.HTTPClientSettings.MaxIdleConns < 0 {
		warnings = append(warnings, "http_client_settings.max_idle_conns is negative, using 100")
		c.HTTPClientSettings.MaxIdleConns = 100
	}
	if c.HTTPClientSettings.MaxIdleConnsPerHost < 0 {
		warnings = append(warnings, "http_client_settings.max_idle_conns_per_host is negative, using 10")
		c.HTTPClientSettings.MaxIdleConnsPerHost = 10
	}

	return warnings, nil
}
