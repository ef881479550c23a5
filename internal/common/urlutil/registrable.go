package urlutil

import (
	"net"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// RegistrableDomain extracts the effective registrable domain from a raw
// request URL using the public suffix list. Fails silently (returns "") on
// an unparseable URL, an IP literal, or a host that is itself in the
// private suffix list -- per spec.md §4.A.
func RegistrableDomain(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	host := ExtractHostname(strings.ToLower(parsed.Host))
	if host == "" {
		return ""
	}
	if net.ParseIP(host) != nil {
		return ""
	}

	domain, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return ""
	}
	return domain
}

// IsFirstParty reports whether the registrable domain of reqURL is present
// in the task's first-party set (spec.md §4.A).
func IsFirstParty(reqURL string, firstParty map[string]struct{}) bool {
	domain := RegistrableDomain(reqURL)
	if domain == "" {
		return false
	}
	_, ok := firstParty[domain]
	return ok
}

// wildcardMetaEscaper escapes regexp metacharacters other than '*', which is
// handled separately by IgnoreMatch's conversion rule.
var wildcardMetaEscaper = regexp.MustCompile(`[.+?^$()\[\]{}|\\]`)

// IgnoreMatch implements spec.md §4.A / §8's ignore-wildcard invariant:
//
//	ignore_match(p, d) iff p contains '*' and the '*'->'.*', dot-escaped,
//	anchored regexp matches d; else d.ends_with(p).
func IgnoreMatch(pattern, domain string) bool {
	if !strings.Contains(pattern, "*") {
		return strings.HasSuffix(domain, pattern)
	}

	escaped := wildcardMetaEscaper.ReplaceAllStringFunc(pattern, func(m string) string {
		return "\\" + m
	})
	reSrc := "^" + strings.ReplaceAll(escaped, "*", ".*") + "$"
	re, err := regexp.Compile(reSrc)
	if err != nil {
		return false
	}
	return re.MatchString(domain)
}
