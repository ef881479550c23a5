// record.go implements spec.md §4.F.7 steps 9-10: consulting the smart
// cache's seen-domains and similarity tables before a match is actually
// inserted into the task's MatchedDomains set, then performing the
// insertion and caching the similarity scores computed along the way.
package pipeline

import (
	"github.com/edgecomet/netscan/internal/common/urlutil"
	"github.com/edgecomet/netscan/pkg/types"
)

// similarityCache is the subset of *cache.SmartCache the recorder needs.
type similarityCache interface {
	ShouldSkipDomain(domain string) bool
	MarkSeenDomain(domain string)
	GetCachedSimilarity(a, b string) (int, bool)
	CacheSimilarity(a, b string, score int)
}

// ShouldRecordDomain implements spec.md §4.F.7.9: returns false if the full
// subdomain has already been seen process-wide, or if ignore_similar finds
// the candidate too similar to an already-matched domain in this task or
// (when ignore_similar_ignored_domains is set) to an ignore_domains entry.
func ShouldRecordDomain(c similarityCache, global *types.GlobalConfig, matched *types.MatchedDomains, fullHost, registrable string) bool {
	if c.ShouldSkipDomain(fullHost) {
		return false
	}

	if !global.IgnoreSimilar {
		return true
	}

	for _, existing := range matched.Domains() {
		if similarOrCached(c, registrable, existing, global.IgnoreSimilarThreshold) {
			return false
		}
	}

	if global.IgnoreSimilarIgnoredDomains {
		for _, ignored := range global.IgnoreDomains {
			if similarOrCached(c, registrable, ignored, global.IgnoreSimilarThreshold) {
				return false
			}
		}
	}

	return true
}

// similarOrCached consults the cache first, computing and caching the score
// only on a miss (spec.md §4.B "consults cached scores first").
func similarOrCached(c similarityCache, a, b string, threshold int) bool {
	score, ok := c.GetCachedSimilarity(a, b)
	if !ok {
		score = urlutil.Similarity(a, b)
		c.CacheSimilarity(a, b, score)
	}
	return score >= threshold
}

// RecordDomain performs spec.md §4.F.7.10's insertion: marks the full host
// seen process-wide and inserts the registrable domain (tagged with
// resourceType, if any) into the task's MatchedDomains set.
func RecordDomain(c similarityCache, matched *types.MatchedDomains, fullHost, registrable, resourceType string) {
	c.MarkSeenDomain(fullHost)
	matched.Add(registrable, resourceType)
}
