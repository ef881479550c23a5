package types

import (
	"fmt"
)

// FingerprintMode controls the fingerprint-protection script injection.
type FingerprintMode string

const (
	FingerprintOff    FingerprintMode = "off"
	FingerprintOn     FingerprintMode = "on"
	FingerprintRandom FingerprintMode = "random"
)

// WhoisServerMode controls how a multi-server whois_server list is consumed.
type WhoisServerMode string

const (
	WhoisServerRandom WhoisServerMode = "random"
	WhoisServerCycle  WhoisServerMode = "cycle"
)

// WindowCleanupMode controls how aggressively a page's storage is wiped
// between loads. "" (zero value) means disabled.
type WindowCleanupMode string

const (
	WindowCleanupOff      WindowCleanupMode = ""
	WindowCleanupRealtime WindowCleanupMode = "realtime"
	WindowCleanupAll      WindowCleanupMode = "all"
)

// StringOrList decodes either a bare YAML scalar string or a YAML sequence
// of strings into a single []string. Mirrors SiteConfig.URL, ForceReload's
// host-suffix-list form, and Whois/Dig term lists.
type StringOrList []string

// UnmarshalYAML implements yaml.Unmarshaler for the string|[]string sum type.
func (s *StringOrList) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var single string
	if err := unmarshal(&single); err == nil {
		if single == "" {
			*s = nil
			return nil
		}
		*s = StringOrList{single}
		return nil
	}

	var list []string
	if err := unmarshal(&list); err != nil {
		return fmt.Errorf("expected a string or list of strings: %w", err)
	}
	*s = StringOrList(list)
	return nil
}

// BoolOrHostList decodes `forcereload: true|false` or a list of host
// suffixes for which reloads should force-bypass the HTTP cache.
type BoolOrHostList struct {
	All   bool
	Hosts []string
}

// UnmarshalYAML implements yaml.Unmarshaler for the bool|[]string sum type.
func (b *BoolOrHostList) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var flag bool
	if err := unmarshal(&flag); err == nil {
		b.All = flag
		b.Hosts = nil
		return nil
	}

	var hosts []string
	if err := unmarshal(&hosts); err != nil {
		return fmt.Errorf("forcereload must be a bool or a list of host suffixes: %w", err)
	}
	b.All = false
	b.Hosts = hosts
	return nil
}

// MatchesHost reports whether force-reload applies to the given registrable domain.
func (b BoolOrHostList) MatchesHost(domain string) bool {
	if b.All {
		return true
	}
	for _, suffix := range b.Hosts {
		if domain == suffix || hasDomainSuffix(domain, suffix) {
			return true
		}
	}
	return false
}

func hasDomainSuffix(domain, suffix string) bool {
	if len(domain) <= len(suffix) {
		return false
	}
	return domain[len(domain)-len(suffix):] == suffix && domain[len(domain)-len(suffix)-1] == '.'
}

// ReferrerMode selects a canned referrer-spoofing strategy.
type ReferrerMode string

const (
	ReferrerModeNone        ReferrerMode = ""
	ReferrerModeSocialMedia ReferrerMode = "social_media"
)

// ReferrerHeaders decodes the referrer_headers field's three shapes:
// a bare URL string, a list of candidate URLs (one is chosen per task),
// or a {mode: "social_media"} struct selecting a canned referrer pool.
type ReferrerHeaders struct {
	URLs []string
	Mode ReferrerMode
}

// UnmarshalYAML implements yaml.Unmarshaler for the referrer_headers sum type.
func (r *ReferrerHeaders) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var single string
	if err := unmarshal(&single); err == nil {
		if single != "" {
			r.URLs = []string{single}
		}
		return nil
	}

	var list []string
	if err := unmarshal(&list); err == nil {
		r.URLs = list
		return nil
	}

	var structured struct {
		Mode string `yaml:"mode"`
	}
	if err := unmarshal(&structured); err != nil {
		return fmt.Errorf("referrer_headers must be a string, list, or {mode: ...}: %w", err)
	}
	r.Mode = ReferrerMode(structured.Mode)
	return nil
}

// GlobalConfig holds process-wide settings applied across all sites.
type GlobalConfig struct {
	IgnoreDomains               []string        `yaml:"ignoreDomains"`
	Blocked                     []string        `yaml:"blocked"`
	IgnoreSimilar               bool            `yaml:"ignore_similar"`
	IgnoreSimilarThreshold      int             `yaml:"ignore_similar_threshold"`
	IgnoreSimilarIgnoredDomains bool            `yaml:"ignore_similar_ignored_domains"`
	MaxConcurrentSites          int             `yaml:"max_concurrent_sites"`
	ResourceCleanupInterval     int             `yaml:"resource_cleanup_interval"`
	WhoisDelay                  Duration        `yaml:"whois_delay"`
	WhoisServerMode             WhoisServerMode `yaml:"whois_server_mode"`

	Sites []SiteConfig `yaml:"sites"`
}

// DefaultGlobalConfig returns a GlobalConfig populated with spec.md's documented defaults.
func DefaultGlobalConfig() GlobalConfig {
	return GlobalConfig{
		IgnoreSimilarThreshold:  80,
		MaxConcurrentSites:      6,
		ResourceCleanupInterval: 80,
		WhoisDelay:              Duration(3000 * 1_000_000), // 3000ms
		WhoisServerMode:         WhoisServerRandom,
	}
}

// ApplyDefaults fills in zero-valued fields with spec.md's documented defaults.
func (g *GlobalConfig) ApplyDefaults() {
	defaults := DefaultGlobalConfig()
	if g.IgnoreSimilarThreshold == 0 {
		g.IgnoreSimilarThreshold = defaults.IgnoreSimilarThreshold
	}
	if g.MaxConcurrentSites == 0 {
		g.MaxConcurrentSites = defaults.MaxConcurrentSites
	}
	if g.ResourceCleanupInterval == 0 {
		g.ResourceCleanupInterval = defaults.ResourceCleanupInterval
	}
	if g.WhoisDelay == 0 {
		g.WhoisDelay = defaults.WhoisDelay
	}
	if g.WhoisServerMode == "" {
		g.WhoisServerMode = defaults.WhoisServerMode
	}
	for i := range g.Sites {
		g.Sites[i].ApplyDefaults()
	}
}

// Validate checks structural invariants documented in spec.md §3/§6.
func (g *GlobalConfig) Validate() error {
	if g.MaxConcurrentSites < 1 || g.MaxConcurrentSites > 50 {
		return fmt.Errorf("max_concurrent_sites must be in [1,50], got %d", g.MaxConcurrentSites)
	}
	if g.IgnoreSimilarThreshold < 0 || g.IgnoreSimilarThreshold > 100 {
		return fmt.Errorf("ignore_similar_threshold must be in [0,100], got %d", g.IgnoreSimilarThreshold)
	}
	if g.WhoisServerMode != "" && g.WhoisServerMode != WhoisServerRandom && g.WhoisServerMode != WhoisServerCycle {
		return fmt.Errorf("whois_server_mode must be 'random' or 'cycle', got %q", g.WhoisServerMode)
	}
	if len(g.Sites) == 0 {
		return fmt.Errorf("at least one site must be configured")
	}
	for i := range g.Sites {
		if err := g.Sites[i].Validate(); err != nil {
			return fmt.Errorf("site[%d] (%v): %w", i, g.Sites[i].URL, err)
		}
	}
	return nil
}

// SiteConfig describes one target's crawl configuration.
type SiteConfig struct {
	URL StringOrList `yaml:"url"`

	FilterRegex StringOrList `yaml:"filterRegex"`
	RegexAnd    bool         `yaml:"regex_and"`

	Blocked      []string `yaml:"blocked"`
	CSSBlocked   []string `yaml:"css_blocked"`
	ResourceType []string `yaml:"resourceTypes"`

	FirstParty *bool `yaml:"firstParty"`
	ThirdParty *bool `yaml:"thirdParty"`

	SearchString    []string `yaml:"searchstring"`
	SearchStringAnd []string `yaml:"searchstring_and"`

	Curl bool `yaml:"curl"`
	Grep bool `yaml:"grep"`

	Whois         []string        `yaml:"whois"`
	WhoisOr       []string        `yaml:"whois-or"`
	WhoisServer   StringOrList    `yaml:"whois_server"`
	Dig           []string        `yaml:"dig"`
	DigOr         []string        `yaml:"dig-or"`
	DigRecordType string          `yaml:"digRecordType"`
	DigSubdomain  bool            `yaml:"dig_subdomain"`
	WhoisMaxRetries         int   `yaml:"whois_max_retries"`
	WhoisTimeoutMultiplier  float64 `yaml:"whois_timeout_multiplier"`
	WhoisUseFallback        bool    `yaml:"whois_use_fallback"`

	Delay          Duration       `yaml:"delay"`
	Reload         int            `yaml:"reload"`
	ForceReload    BoolOrHostList `yaml:"forcereload"`
	FollowRedirect *bool          `yaml:"follow_redirects"`
	MaxRedirects   int            `yaml:"max_redirects"`
	JSRedirectTimeout Duration    `yaml:"js_redirect_timeout"`

	ChallengeBypass bool     `yaml:"challenge_bypass"`
	PhishBypass     bool     `yaml:"phish_bypass"`
	ChallengeRetries int     `yaml:"challenge_retries"`
	ChallengeTimeout Duration `yaml:"challenge_timeout"`

	UserAgent              string          `yaml:"userAgent"`
	IsBrave                bool            `yaml:"isBrave"`
	FingerprintProtection  FlexibleBool    `yaml:"fingerprint_protection"`

	Interact   bool `yaml:"interact"`
	EvenBlocked bool `yaml:"even_blocked"`
	BypassCache bool `yaml:"bypass_cache"`

	ReferrerHeaders ReferrerHeaders   `yaml:"referrer_headers"`
	CustomHeaders   map[string]string `yaml:"custom_headers"`

	WindowCleanup WindowCleanupModeValue `yaml:"window_cleanup"`

	Timeout Duration `yaml:"timeout"`

	// EvalOnDoc enables the document-start fetch/XHR-logging + reload-guard
	// script injection, default comes from the global config in practice but
	// may be overridden per site.
	EvalOnDoc *bool `yaml:"eval_on_doc"`
}

// FlexibleBool decodes fingerprint_protection's bool|"random" sum type.
type FlexibleBool struct {
	Mode FingerprintMode
}

// UnmarshalYAML implements yaml.Unmarshaler for bool|"random".
func (f *FlexibleBool) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var b bool
	if err := unmarshal(&b); err == nil {
		if b {
			f.Mode = FingerprintOn
		} else {
			f.Mode = FingerprintOff
		}
		return nil
	}
	var s string
	if err := unmarshal(&s); err != nil {
		return fmt.Errorf("fingerprint_protection must be a bool or 'random': %w", err)
	}
	if s != string(FingerprintRandom) {
		return fmt.Errorf("fingerprint_protection string value must be 'random', got %q", s)
	}
	f.Mode = FingerprintRandom
	return nil
}

// WindowCleanupModeValue decodes window_cleanup's bool|"realtime"|"all" sum type.
type WindowCleanupModeValue struct {
	Mode WindowCleanupMode
}

// UnmarshalYAML implements yaml.Unmarshaler for bool|string.
func (w *WindowCleanupModeValue) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var b bool
	if err := unmarshal(&b); err == nil {
		if b {
			w.Mode = WindowCleanupAll
		} else {
			w.Mode = WindowCleanupOff
		}
		return nil
	}
	var s string
	if err := unmarshal(&s); err != nil {
		return fmt.Errorf("window_cleanup must be a bool or string: %w", err)
	}
	w.Mode = WindowCleanupMode(s)
	return nil
}

// ApplyDefaults fills zero-valued site fields with spec.md defaults.
func (s *SiteConfig) ApplyDefaults() {
	if s.MaxRedirects == 0 {
		s.MaxRedirects = 10
	}
	if s.Reload == 0 {
		s.Reload = 1
	}
	if s.DigRecordType == "" {
		s.DigRecordType = "A"
	}
	if s.FirstParty == nil {
		t := true
		s.FirstParty = &t
	}
	if s.ThirdParty == nil {
		t := true
		s.ThirdParty = &t
	}
	if s.FollowRedirect == nil {
		t := true
		s.FollowRedirect = &t
	}
	if s.WhoisMaxRetries == 0 {
		s.WhoisMaxRetries = 2
	}
	if s.WhoisTimeoutMultiplier == 0 {
		s.WhoisTimeoutMultiplier = 1.5
	}
	if s.ChallengeRetries == 0 {
		s.ChallengeRetries = 3
	}
}

// Validate checks per-site structural invariants.
func (s *SiteConfig) Validate() error {
	if len(s.URL) == 0 {
		return fmt.Errorf("url is required")
	}
	if s.MaxRedirects < 0 {
		return fmt.Errorf("max_redirects must be >= 0")
	}
	if s.Reload < 0 {
		return fmt.Errorf("reload must be >= 0")
	}
	switch s.FingerprintProtection.Mode {
	case "", FingerprintOff, FingerprintOn, FingerprintRandom:
	default:
		return fmt.Errorf("fingerprint_protection: unrecognized mode %q", s.FingerprintProtection.Mode)
	}
	return nil
}

// EnabledFirstParty reports whether first-party requests should be recorded.
func (s *SiteConfig) EnabledFirstParty() bool {
	return s.FirstParty == nil || *s.FirstParty
}

// EnabledThirdParty reports whether third-party requests should be recorded.
func (s *SiteConfig) EnabledThirdParty() bool {
	return s.ThirdParty == nil || *s.ThirdParty
}

// FollowsRedirects reports whether navigation should follow redirects at all.
func (s *SiteConfig) FollowsRedirects() bool {
	return s.FollowRedirect == nil || *s.FollowRedirect
}
