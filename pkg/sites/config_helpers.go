package sites

import "strings"

// ConfigString returns the trimmed string value for key from site.Config or a fallback.
func ConfigString(s Site, key, fallback string) string {
	if s.Config != nil {
		if raw, ok := s.Config[key]; ok {
			if val, ok := raw.(string); ok {
				if trimmed := strings.TrimSpace(val); trimmed != "" {
					return trimmed
				}
			}
		}
	}
	return fallback
}

const (
	ConfigUserAgentKey      = "user_agent"
	ConfigAcceptKey         = "accept"
	ConfigAcceptLanguageKey = "accept_language"
	ConfigCacheControlKey   = "cache_control"

	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// Headers builds the request headers for a site. User-Agent is always set.
func Headers(s Site) map[string]string {
	headers := make(map[string]string, 4)

	headers["User-Agent"] = ConfigString(s, ConfigUserAgentKey, DefaultUserAgent)
	if v := ConfigString(s, ConfigAcceptKey, ""); v != "" {
		headers["Accept"] = v
	}
	if v := ConfigString(s, ConfigAcceptLanguageKey, ""); v != "" {
		headers["Accept-Language"] = v
	}
	if v := ConfigString(s, ConfigCacheControlKey, ""); v != "" {
		headers["Cache-Control"] = v
	}

	return headers
}
