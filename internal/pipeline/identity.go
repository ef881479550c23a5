// Identity spoofing: user-agent aliasing, Sec-CH-UA hints, Brave spoofing,
// and fingerprint-protection script generation (spec.md §4.F.4). No teacher
// file covers outbound identity spoofing directly -- the teacher's render
// service serves pages, it never disguises its own client identity -- so
// this is grounded on the chromedp emulation/runtime APIs the teacher
// already imports in internal/render/chrome/renderer.go
// (emulation.SetUserAgentOverride, cdproto/runtime script evaluation).
package pipeline

import (
	"fmt"
	"math/rand"

	"github.com/edgecomet/netscan/pkg/types"
)

// userAgentAliases maps spec.md §4.F.4's alias keys to full UA strings.
var userAgentAliases = map[string]string{
	"chrome":        "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"chrome_mac":    "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"chrome_linux":  "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"firefox":       "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0",
	"firefox_mac":   "Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:125.0) Gecko/20100101 Firefox/125.0",
	"firefox_linux": "Mozilla/5.0 (X11; Linux x86_64; rv:125.0) Gecko/20100101 Firefox/125.0",
	"safari":        "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
}

// ResolveUserAgent maps a site's userAgent alias to a concrete UA string.
// An unrecognized or empty alias returns ("", false) so the caller leaves
// the browser's default UA untouched.
func ResolveUserAgent(alias string) (string, bool) {
	ua, ok := userAgentAliases[alias]
	return ua, ok
}

// isChromeVariant reports whether alias names one of the Chrome UA variants,
// which get accompanying Sec-CH-UA client-hint overrides.
func isChromeVariant(alias string) bool {
	switch alias {
	case "chrome", "chrome_mac", "chrome_linux":
		return true
	default:
		return false
	}
}

// secChUAPlatform maps a Chrome UA alias to its Sec-CH-UA-Platform value.
func secChUAPlatform(alias string) string {
	switch alias {
	case "chrome_mac":
		return "macOS"
	case "chrome_linux":
		return "Linux"
	default:
		return "Windows"
	}
}

// SecChUAHeaders returns the Sec-CH-UA client-hint header set consistent
// with a Chrome UA alias, or nil if alias isn't a Chrome variant.
func SecChUAHeaders(alias string) map[string]string {
	if !isChromeVariant(alias) {
		return nil
	}
	return map[string]string{
		"Sec-CH-UA":          `"Chromium";v="124", "Google Chrome";v="124", "Not-A.Brand";v="99"`,
		"Sec-CH-UA-Mobile":   "?0",
		"Sec-CH-UA-Platform": `"` + secChUAPlatform(alias) + `"`,
	}
}

// BraveSpoofScript returns a document-start script making
// navigator.brave.isBrave() resolve to true, for sites with isBrave set.
func BraveSpoofScript() string {
	return `(() => {
  if (!window.navigator.brave) {
    Object.defineProperty(window.navigator, 'brave', {
      value: { isBrave: () => Promise.resolve(true) },
      configurable: true,
    });
  }
})();`
}

// fingerprintDefaults holds the fixed override values used for
// fingerprint_protection: true (non-random) mode.
var fingerprintDefaults = struct {
	DeviceMemory         int
	HardwareConcurrency  int
	ScreenWidth          int
	ScreenHeight         int
	ScreenColorDepth     int
	Platform             string
	TimeZone             string
}{
	DeviceMemory:        8,
	HardwareConcurrency: 4,
	ScreenWidth:         1920,
	ScreenHeight:        1080,
	ScreenColorDepth:    24,
	Platform:            "Win32",
	TimeZone:            "America/New_York",
}

var commonTimeZones = []string{
	"America/New_York", "America/Chicago", "America/Los_Angeles",
	"Europe/London", "Europe/Berlin", "Asia/Tokyo",
}

// FingerprintScript builds the document-start script overriding
// navigator.deviceMemory/hardwareConcurrency, screen.{width,height,colorDepth},
// navigator.platform, and Intl.DateTimeFormat's resolved timeZone (spec.md
// §4.F.4). mode "off" returns "". mode "random" draws values from rng
// instead of the fixed defaults.
func FingerprintScript(mode string, rng *rand.Rand) string {
	if mode == "off" || mode == "" {
		return ""
	}

	deviceMemory := fingerprintDefaults.DeviceMemory
	hwConcurrency := fingerprintDefaults.HardwareConcurrency
	width := fingerprintDefaults.ScreenWidth
	height := fingerprintDefaults.ScreenHeight
	colorDepth := fingerprintDefaults.ScreenColorDepth
	platform := fingerprintDefaults.Platform
	timeZone := fingerprintDefaults.TimeZone

	if mode == "random" && rng != nil {
		memoryChoices := []int{2, 4, 8, 16}
		concurrencyChoices := []int{2, 4, 6, 8, 12}
		deviceMemory = memoryChoices[rng.Intn(len(memoryChoices))]
		hwConcurrency = concurrencyChoices[rng.Intn(len(concurrencyChoices))]
		width = 1366 + rng.Intn(4)*138
		height = 768 + rng.Intn(4)*78
		timeZone = commonTimeZones[rng.Intn(len(commonTimeZones))]
	}

	return fmt.Sprintf(`(() => {
  const define = (obj, prop, value) => Object.defineProperty(obj, prop, { value, configurable: true });
  try { define(navigator, 'deviceMemory', %d); } catch (e) {}
  try { define(navigator, 'hardwareConcurrency', %d); } catch (e) {}
  try { define(navigator, 'platform', %q); } catch (e) {}
  try { define(screen, 'width', %d); } catch (e) {}
  try { define(screen, 'height', %d); } catch (e) {}
  try { define(screen, 'colorDepth', %d); } catch (e) {}
  try {
    const origResolvedOptions = Intl.DateTimeFormat.prototype.resolvedOptions;
    Intl.DateTimeFormat.prototype.resolvedOptions = function () {
      const opts = origResolvedOptions.call(this);
      opts.timeZone = %q;
      return opts;
    };
  } catch (e) {}
})();`, deviceMemory, hwConcurrency, platform, width, height, colorDepth, timeZone)
}

// socialMediaReferrers is the canned pool used by referrer_headers'
// {mode: social_media} shape.
var socialMediaReferrers = []string{
	"https://www.facebook.com/",
	"https://www.google.com/",
	"https://t.co/",
	"https://www.reddit.com/",
	"https://www.instagram.com/",
}

// ResolveReferrer picks one concrete referer URL from a site's
// referrer_headers configuration: a single configured URL is used as-is, a
// list has one entry chosen at random, and {mode: social_media} draws from
// the canned pool. Returns "" when none is configured.
func ResolveReferrer(rh types.ReferrerHeaders, rng *rand.Rand) string {
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	if rh.Mode == types.ReferrerModeSocialMedia {
		return socialMediaReferrers[rng.Intn(len(socialMediaReferrers))]
	}
	if len(rh.URLs) == 0 {
		return ""
	}
	if len(rh.URLs) == 1 {
		return rh.URLs[0]
	}
	return rh.URLs[rng.Intn(len(rh.URLs))]
}
