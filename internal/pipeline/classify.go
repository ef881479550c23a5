// classify.go implements the pure decision logic of the request-interception
// dispatch core (spec.md §4.F.7, steps 2-8): given one outgoing request and
// the owning site/global config, decide whether to abort, pass through
// unrecorded, or record (immediately or after deferred corroboration).
//
// Kept free of any CDP/network/cache calls so it tests without a browser --
// grounded on the teacher's internal/render/chrome/blocklist.go split
// (compiled-pattern matching isolated from the CDP event handler).
package pipeline

import (
	"regexp"

	"github.com/edgecomet/netscan/internal/common/urlutil"
	"github.com/edgecomet/netscan/pkg/types"
)

// Action is the outcome of classifying one intercepted request.
type Action int

const (
	ActionAbort Action = iota
	ActionAbortButRecord
	ActionContinueUnrecorded
	ActionRecordImmediate
	ActionRecordDeferred
)

// RequestInfo is the subset of an intercepted request classify needs.
type RequestInfo struct {
	URL          string
	Hostname     string
	Registrable  string
	ResourceType string
}

// RecordPlan describes what corroboration a deferred record must satisfy
// before the domain is actually inserted (spec.md §4.F.7.8).
type RecordPlan struct {
	NeedsContentMatch bool
	NeedsWhois        bool
	NeedsDig          bool
}

// ClassifyResult is classify's verdict for one request.
type ClassifyResult struct {
	Action      Action
	Plan        RecordPlan
	Annotation  string // e.g. "BLOCKED BUT ADDED", for the debug log
	IsFirstParty bool
}

// patternCompiler is the minimal interface classify needs to resolve a
// pattern string to its compiled regexp, satisfied by *cache.SmartCache.
type patternCompiler interface {
	CompilePattern(pattern string) (*regexp.Regexp, error)
}

// matchAny reports whether any pattern in patterns matches s.
func matchAny(compiler patternCompiler, patterns []string, s string) bool {
	for _, p := range patterns {
		re, err := compiler.CompilePattern(p)
		if err != nil {
			continue
		}
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

// matchAll reports whether every pattern in patterns matches s (regex_and).
func matchAll(compiler patternCompiler, patterns []string, s string) bool {
	if len(patterns) == 0 {
		return false
	}
	for _, p := range patterns {
		re, err := compiler.CompilePattern(p)
		if err != nil {
			return false
		}
		if !re.MatchString(s) {
			return false
		}
	}
	return true
}

// resourceTypeAllowed reports whether info's resource type passes the
// site's allow-list (empty allow-list means all types pass).
func resourceTypeAllowed(allow []string, resourceType string) bool {
	if len(allow) == 0 {
		return true
	}
	for _, t := range allow {
		if t == resourceType {
			return true
		}
	}
	return false
}

// firstPartyChecker is satisfied by *types.FirstPartySet.
type firstPartyChecker interface {
	Contains(domain string) bool
}

// Classify implements spec.md §4.F.7 steps 2-8 for one intercepted request.
// excludeHosts holds the task's intermediate redirect hosts (step 4);
// firstParty holds the task's first-party registrable domain set (step 7).
func Classify(compiler patternCompiler, info RequestInfo, site *types.SiteConfig, global *types.GlobalConfig, excludeHosts map[string]struct{}, firstParty firstPartyChecker) ClassifyResult {
	filterMatched := evalFilterRegex(compiler, site, info.URL)
	resourceOK := resourceTypeAllowed(site.ResourceType, info.ResourceType)

	// Step 2: blocked-first (spec.md §8 invariant #7).
	blocked := matchAny(compiler, site.Blocked, info.URL) || matchAny(compiler, global.Blocked, info.URL)
	if blocked {
		if site.EvenBlocked && filterMatched && resourceOK {
			return ClassifyResult{Action: ActionAbortButRecord, Annotation: "BLOCKED BUT ADDED"}
		}
		return ClassifyResult{Action: ActionAbort}
	}

	// Step 3: global ignore_domains (wildcarded).
	for _, pattern := range global.IgnoreDomains {
		if urlutil.IgnoreMatch(pattern, info.Registrable) {
			return ClassifyResult{Action: ActionContinueUnrecorded}
		}
	}

	// Step 4: intermediate redirect host exclusion.
	if _, excluded := excludeHosts[info.Registrable]; excluded {
		return ClassifyResult{Action: ActionContinueUnrecorded}
	}

	// Step 5: filter regex (computed above for the blocked-exception check too).
	if !filterMatched {
		return ClassifyResult{Action: ActionContinueUnrecorded}
	}

	// Step 6: resource-type gate precedence (spec.md §8 invariant #8) -- no
	// further processing (no cache write, no WHOIS/DIG dispatch) on a miss.
	if !resourceOK {
		return ClassifyResult{Action: ActionContinueUnrecorded}
	}

	// Step 7: party filter.
	isFirstParty := firstParty.Contains(info.Registrable)
	if isFirstParty && !site.EnabledFirstParty() {
		return ClassifyResult{Action: ActionContinueUnrecorded}
	}
	if !isFirstParty && !site.EnabledThirdParty() {
		return ClassifyResult{Action: ActionContinueUnrecorded}
	}

	// Step 8: decide record path.
	plan := RecordPlan{
		NeedsContentMatch: len(site.SearchString) > 0 || len(site.SearchStringAnd) > 0,
		NeedsWhois:        len(site.Whois) > 0 || len(site.WhoisOr) > 0,
		NeedsDig:          len(site.Dig) > 0 || len(site.DigOr) > 0,
	}
	if !plan.NeedsContentMatch && !plan.NeedsWhois && !plan.NeedsDig {
		return ClassifyResult{Action: ActionRecordImmediate, IsFirstParty: isFirstParty}
	}
	return ClassifyResult{Action: ActionRecordDeferred, Plan: plan, IsFirstParty: isFirstParty}
}

// evalFilterRegex evaluates site.FilterRegex under regex_or (default, any
// match accepts) or regex_and (all patterns must match the same URL).
func evalFilterRegex(compiler patternCompiler, site *types.SiteConfig, url string) bool {
	if len(site.FilterRegex) == 0 {
		return false
	}
	if site.RegexAnd {
		return matchAll(compiler, site.FilterRegex, url)
	}
	return matchAny(compiler, site.FilterRegex, url)
}
