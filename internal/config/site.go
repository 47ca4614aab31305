package config

// SiteProfile holds site-specific configuration for a single host.
// This allows customizing crawl behavior per mirrored site, for example
// sending a static session cookie to a host that requires one.
type SiteProfile struct {
	// Cookie is an HTTP cookie header value to send to this host.
	// Format: "name=value" or "name1=value1; name2=value2"
	Cookie string `yaml:"cookie,omitempty"`

	// Headers are custom HTTP headers to include in requests to this
	// host. They are static values; no session handling is performed.
	Headers map[string]string `yaml:"headers,omitempty"`

	// Depth overrides the global max depth for this host.
	// If zero, the global MaxDepth is used.
	Depth int `yaml:"depth,omitempty"`

	// UserAgent overrides the global User-Agent for this host.
	UserAgent string `yaml:"userAgent,omitempty"`
}

// File represents the structure of the .webmirror configuration file.
type File struct {
	// Sites maps hostnames to their site-specific profiles.
	// Keys are bare hostnames (e.g., "example.com").
	Sites map[string]SiteProfile `yaml:"sites,omitempty"`

	// Defaults contains the default profile applied to all hosts unless
	// overridden in the site-specific profile.
	Defaults SiteProfile `yaml:"defaults,omitempty"`
}

// GetSiteProfile returns the profile for a specific hostname.
// It merges the site-specific profile over the defaults.
func (cf *File) GetSiteProfile(host string) SiteProfile {
	result := cf.Defaults

	if profile, ok := cf.Sites[host]; ok {
		if profile.Cookie != "" {
			result.Cookie = profile.Cookie
		}
		if profile.Depth != 0 {
			result.Depth = profile.Depth
		}
		if profile.UserAgent != "" {
			result.UserAgent = profile.UserAgent
		}
		if len(profile.Headers) > 0 {
			// Copy before merging so the shared defaults map is never
			// mutated.
			merged := make(map[string]string, len(result.Headers)+len(profile.Headers))
			for k, v := range result.Headers {
				merged[k] = v
			}
			for k, v := range profile.Headers {
				merged[k] = v
			}
			result.Headers = merged
		}
	}

	return result
}
