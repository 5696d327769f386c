package config

// BlogConfig holds per-blog overrides for crawl behavior.
// Heavily commented posts on large blogs often need gentler pacing than
// the defaults, and followers-only blogs need their own cookie.
// Delays are plain milliseconds so the YAML stays a simple integer.
type BlogConfig struct {
	// Cookie is an authentication cookie for this blog's posts.
	// Format: "name=value".
	Cookie string `yaml:"cookie,omitempty"`

	// MaxWorkers overrides the reply-resolution worker count.
	// Zero means use the global setting.
	MaxWorkers int `yaml:"maxWorkers,omitempty"`

	// L1PageDelayMs overrides the pause between comment pages,
	// in milliseconds.
	L1PageDelayMs int `yaml:"l1PageDelayMs,omitempty"`

	// L2RequestDelayMs overrides the pause before each reply request,
	// in milliseconds.
	L2RequestDelayMs int `yaml:"l2RequestDelayMs,omitempty"`

	// GroupByQuote overrides the formatter grouping mode.
	// Nil means use the global setting.
	GroupByQuote *bool `yaml:"groupByQuote,omitempty"`
}

// File represents the structure of the .loftergrab configuration file.
type File struct {
	// Cookie is the default authentication cookie for all blogs.
	Cookie string `yaml:"cookie,omitempty"`

	// Proxy is a SOCKS5 proxy address in "host:port" form.
	Proxy string `yaml:"proxy,omitempty"`

	// UserAgent overrides the client identification header.
	UserAgent string `yaml:"userAgent,omitempty"`

	// OutputDir overrides where comment artifacts are written.
	OutputDir string `yaml:"outputDir,omitempty"`

	// GroupByQuote sets the default formatter grouping mode.
	GroupByQuote *bool `yaml:"groupByQuote,omitempty"`

	// Blogs maps numeric blog IDs to their overrides.
	Blogs map[string]BlogConfig `yaml:"blogs,omitempty"`

	// Defaults contains overrides applied to every blog unless the
	// blog's own entry overrides them again.
	Defaults BlogConfig `yaml:"defaults,omitempty"`
}

// BlogConfig returns the effective per-blog configuration for blogID,
// merging the blog's entry over the file-level defaults.
func (cf *File) BlogConfig(blogID string) BlogConfig {
	result := cf.Defaults

	bc, ok := cf.Blogs[blogID]
	if !ok {
		return result
	}
	if bc.Cookie != "" {
		result.Cookie = bc.Cookie
	}
	if bc.MaxWorkers > 0 {
		result.MaxWorkers = bc.MaxWorkers
	}
	if bc.L1PageDelayMs > 0 {
		result.L1PageDelayMs = bc.L1PageDelayMs
	}
	if bc.L2RequestDelayMs > 0 {
		result.L2RequestDelayMs = bc.L2RequestDelayMs
	}
	if bc.GroupByQuote != nil {
		result.GroupByQuote = bc.GroupByQuote
	}
	return result
}
