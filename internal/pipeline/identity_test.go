package pipeline

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/edgecomet/netscan/pkg/types"
)

func TestResolveUserAgentKnownAlias(t *testing.T) {
	ua, ok := ResolveUserAgent("firefox_linux")
	assert.True(t, ok)
	assert.Contains(t, ua, "Firefox")
}

func TestResolveUserAgentUnknownAlias(t *testing.T) {
	_, ok := ResolveUserAgent("netscape")
	assert.False(t, ok)
}

func TestSecChUAOnlyForChromeVariants(t *testing.T) {
	assert.NotNil(t, SecChUAHeaders("chrome_mac"))
	assert.Equal(t, `"macOS"`, SecChUAHeaders("chrome_mac")["Sec-CH-UA-Platform"])
	assert.Nil(t, SecChUAHeaders("firefox"))
}

func TestFingerprintScriptOffIsEmpty(t *testing.T) {
	assert.Empty(t, FingerprintScript("off", nil))
	assert.Empty(t, FingerprintScript("", nil))
}

func TestFingerprintScriptFixedContainsDefaults(t *testing.T) {
	script := FingerprintScript("on", nil)
	assert.Contains(t, script, "'deviceMemory', 8")
	assert.Contains(t, script, "Win32")
}

func TestFingerprintScriptRandomDeterministicWithSeed(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	script := FingerprintScript("random", rng)
	assert.NotEmpty(t, script)
	assert.Contains(t, script, "resolvedOptions")
}

func TestCSSBlockedScriptEmptyForNoSelectors(t *testing.T) {
	assert.Empty(t, cssBlockedScript(nil))
}

func TestCSSBlockedScriptBuildsRules(t *testing.T) {
	script := cssBlockedScript([]string{".banner", "#popup"})
	assert.Contains(t, script, ".banner")
	assert.Contains(t, script, "#popup")
	assert.Contains(t, script, "display: none !important")
}

func TestResolveReferrerSingleURL(t *testing.T) {
	rh := types.ReferrerHeaders{URLs: []string{"https://example.test/"}}
	assert.Equal(t, "https://example.test/", ResolveReferrer(rh, nil))
}

func TestResolveReferrerSocialMediaPool(t *testing.T) {
	rh := types.ReferrerHeaders{Mode: types.ReferrerModeSocialMedia}
	ref := ResolveReferrer(rh, rand.New(rand.NewSource(2)))
	assert.Contains(t, socialMediaReferrers, ref)
}

func TestResolveReferrerEmpty(t *testing.T) {
	assert.Empty(t, ResolveReferrer(types.ReferrerHeaders{}, nil))
}
