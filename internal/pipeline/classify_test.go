package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/edgecomet/netscan/internal/cache"
	"github.com/edgecomet/netscan/pkg/types"
)

func newTestCompiler(t *testing.T) *cache.SmartCache {
	t.Helper()
	return cache.New(0, zap.NewNop(), nil)
}

func enabledSite(overrides func(*types.SiteConfig)) *types.SiteConfig {
	enabled := true
	s := &types.SiteConfig{
		FirstParty: &enabled,
		ThirdParty: &enabled,
	}
	if overrides != nil {
		overrides(s)
	}
	return s
}

type fakeFirstParty struct{ domains map[string]struct{} }

func (f fakeFirstParty) Contains(d string) bool { _, ok := f.domains[d]; return ok }

func TestClassifyBlockedAborts(t *testing.T) {
	c := newTestCompiler(t)
	site := enabledSite(func(s *types.SiteConfig) {
		s.Blocked = []string{"ads\\.other"}
		s.FilterRegex = types.StringOrList{"tracker"}
	})
	info := RequestInfo{URL: "https://ads.other/tracker.js", Registrable: "ads.other"}

	result := Classify(c, info, site, &types.GlobalConfig{}, nil, fakeFirstParty{})
	assert.Equal(t, ActionAbort, result.Action)
}

func TestClassifyEvenBlockedStillRecords(t *testing.T) {
	c := newTestCompiler(t)
	site := enabledSite(func(s *types.SiteConfig) {
		s.Blocked = []string{"ads\\.other"}
		s.FilterRegex = types.StringOrList{"tracker"}
		s.EvenBlocked = true
	})
	info := RequestInfo{URL: "https://ads.other/tracker.js", Registrable: "ads.other"}

	result := Classify(c, info, site, &types.GlobalConfig{}, nil, fakeFirstParty{})
	assert.Equal(t, ActionAbortButRecord, result.Action)
	assert.Equal(t, "BLOCKED BUT ADDED", result.Annotation)
}

func TestClassifyIgnoreDomainsWildcard(t *testing.T) {
	c := newTestCompiler(t)
	site := enabledSite(func(s *types.SiteConfig) {
		s.FilterRegex = types.StringOrList{".*"}
	})
	global := &types.GlobalConfig{IgnoreDomains: []string{"*.ads.example.com"}}
	info := RequestInfo{URL: "https://sub.ads.example.com/x", Registrable: "sub.ads.example.com"}

	result := Classify(c, info, site, global, nil, fakeFirstParty{})
	assert.Equal(t, ActionContinueUnrecorded, result.Action)
}

func TestClassifyExcludesIntermediateRedirectHost(t *testing.T) {
	c := newTestCompiler(t)
	site := enabledSite(func(s *types.SiteConfig) { s.FilterRegex = types.StringOrList{".*"} })
	info := RequestInfo{URL: "https://intermediate.test/x", Registrable: "intermediate.test"}
	exclude := map[string]struct{}{"intermediate.test": {}}

	result := Classify(c, info, site, &types.GlobalConfig{}, exclude, fakeFirstParty{})
	assert.Equal(t, ActionContinueUnrecorded, result.Action)
}

func TestClassifyRegexAndRequiresAllPatterns(t *testing.T) {
	c := newTestCompiler(t)
	site := enabledSite(func(s *types.SiteConfig) {
		s.FilterRegex = types.StringOrList{`\.js$`, "track"}
		s.RegexAnd = true
	})

	matched := Classify(c, RequestInfo{URL: "https://a.test/track.js", Registrable: "a.test"}, site, &types.GlobalConfig{}, nil, fakeFirstParty{})
	assert.Equal(t, ActionRecordImmediate, matched.Action)

	unmatched := Classify(c, RequestInfo{URL: "https://a.test/other.js", Registrable: "a.test"}, site, &types.GlobalConfig{}, nil, fakeFirstParty{})
	assert.Equal(t, ActionContinueUnrecorded, unmatched.Action)
}

func TestClassifyResourceTypeGatePrecedence(t *testing.T) {
	c := newTestCompiler(t)
	site := enabledSite(func(s *types.SiteConfig) {
		s.FilterRegex = types.StringOrList{"tracker"}
		s.ResourceType = []string{"script"}
		s.Whois = []string{"term"}
	})
	info := RequestInfo{URL: "https://a.test/tracker.png", Registrable: "a.test", ResourceType: "image"}

	result := Classify(c, info, site, &types.GlobalConfig{}, nil, fakeFirstParty{})
	assert.Equal(t, ActionContinueUnrecorded, result.Action, "resource type gate must reject before any WHOIS/cache side effects")
}

func TestClassifyPartyFilter(t *testing.T) {
	c := newTestCompiler(t)
	no := false
	site := enabledSite(func(s *types.SiteConfig) {
		s.FilterRegex = types.StringOrList{"tracker"}
		s.FirstParty = &no
	})
	fp := fakeFirstParty{domains: map[string]struct{}{"host.test": {}}}
	info := RequestInfo{URL: "https://host.test/tracker.js", Registrable: "host.test"}

	result := Classify(c, info, site, &types.GlobalConfig{}, nil, fp)
	assert.Equal(t, ActionContinueUnrecorded, result.Action)
}

func TestClassifyDecidesRecordPath(t *testing.T) {
	c := newTestCompiler(t)

	immediate := enabledSite(func(s *types.SiteConfig) { s.FilterRegex = types.StringOrList{"tracker"} })
	r := Classify(c, RequestInfo{URL: "https://a.test/tracker.js", Registrable: "a.test"}, immediate, &types.GlobalConfig{}, nil, fakeFirstParty{})
	assert.Equal(t, ActionRecordImmediate, r.Action)

	deferred := enabledSite(func(s *types.SiteConfig) {
		s.FilterRegex = types.StringOrList{"tracker"}
		s.SearchString = []string{"alpha"}
	})
	r = Classify(c, RequestInfo{URL: "https://a.test/tracker.js", Registrable: "a.test"}, deferred, &types.GlobalConfig{}, nil, fakeFirstParty{})
	assert.Equal(t, ActionRecordDeferred, r.Action)
	assert.True(t, r.Plan.NeedsContentMatch)
	assert.False(t, r.Plan.NeedsWhois)
}
