// Package cache implements the process-wide SmartCache described in
// spec.md §4.B: thread-safe, LRU-bounded caches for domain-seen tracking,
// near-duplicate-domain suppression, compiled patterns, HTTP response
// bodies, and WHOIS/DIG corroboration results, shared across concurrent
// scan workers.
//
// Grounded on the teacher's internal/edge/cache package for the
// coordinator shape (one owning struct, mutex-guarded maps) and promotes
// github.com/hashicorp/golang-lru/v2 -- present only as an indirect
// dependency in the teacher's go.mod -- to direct use for the per-category
// eviction bound spec.md requires.
package cache

import (
	"regexp"
	"strings"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

// DefaultLRUSize is the default per-category eviction bound (spec.md §3).
const DefaultLRUSize = 5000

// Stats holds hit/miss counters for one cache category.
type Stats struct {
	Hits   atomic.Int64
	Misses atomic.Int64
}

// ResponseBody is a cached HTTP fetch result, keyed by URL.
type ResponseBody struct {
	Body        []byte
	Status      int
	ContentType string
}

// SmartCache is the single shared, concurrency-safe cache object described
// in spec.md §3/§4.B. Every category is independently LRU-bounded and
// guarded by its own lock, per §5's "single-map critical section" rule --
// callers must never compose two reads across categories into a decision
// without an explicit helper method that holds the right locks together.
type SmartCache struct {
	logger *zap.Logger

	seenMu     sync.Mutex
	seenDomains *lru.Cache[string, struct{}]
	seenStats   Stats

	simMu        sync.Mutex
	similarity   *lru.Cache[string, int]
	simStats     Stats

	patternMu sync.Mutex
	patterns  *lru.Cache[string, *regexp.Regexp]

	bodyMu   sync.Mutex
	bodies   *lru.Cache[string, ResponseBody]
	bodyStats Stats

	whoisMu    sync.Mutex
	whois      *lru.Cache[string, string]
	whoisStats Stats

	digMu    sync.Mutex
	dig      *lru.Cache[string, string]
	digStats Stats

	remote RemoteCorroborator // optional, nil when Redis corroboration is disabled
}

// RemoteCorroborator is the optional distributed-mode hook (SPEC_FULL's
// Redis-backed smart cache). Implementations dual-write WHOIS/DIG/seen
// entries so a fleet of scanner processes corroborates across machines.
type RemoteCorroborator interface {
	RecordSeenDomain(domain string)
	RecordWhois(domain, result string)
	RecordDig(key, result string)
}

// New builds a SmartCache with the given per-category bound (0 -> default).
func New(size int, logger *zap.Logger, remote RemoteCorroborator) *SmartCache {
	if size <= 0 {
		size = DefaultLRUSize
	}

	seen, _ := lru.New[string, struct{}](size)
	sim, _ := lru.New[string, int](size)
	pat, _ := lru.New[string, *regexp.Regexp](size)
	bodies, _ := lru.New[string, ResponseBody](size)
	whois, _ := lru.New[string, string](size)
	dig, _ := lru.New[string, string](size)

	return &SmartCache{
		logger:      logger,
		seenDomains: seen,
		similarity:  sim,
		patterns:    pat,
		bodies:      bodies,
		whois:       whois,
		dig:         dig,
		remote:      remote,
	}
}

// ShouldSkipDomain reports whether a domain has already been seen in this
// process, per spec.md §4.B's should_skip_domain contract. The lookup is
// keyed on the domain alone.
func (c *SmartCache) ShouldSkipDomain(domain string) bool {
	c.seenMu.Lock()
	defer c.seenMu.Unlock()
	_, ok := c.seenDomains.Get(domain)
	if ok {
		c.seenStats.Hits.Add(1)
	} else {
		c.seenStats.Misses.Add(1)
	}
	return ok
}

// MarkSeenDomain records a domain as seen (idempotent).
func (c *SmartCache) MarkSeenDomain(domain string) {
	c.seenMu.Lock()
	c.seenDomains.Add(domain, struct{}{})
	c.seenMu.Unlock()

	if c.remote != nil {
		c.remote.RecordSeenDomain(domain)
	}
}

// similarityKey canonically orders a pair so (a,b) and (b,a) share a cache slot.
func similarityKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "\x00" + b
}

// GetCachedSimilarity returns a previously cached similarity score for (a,b).
func (c *SmartCache) GetCachedSimilarity(a, b string) (int, bool) {
	c.simMu.Lock()
	defer c.simMu.Unlock()
	score, ok := c.similarity.Get(similarityKey(a, b))
	if ok {
		c.simStats.Hits.Add(1)
	} else {
		c.simStats.Misses.Add(1)
	}
	return score, ok
}

// CacheSimilarity caches a similarity score for (a,b). Write-once: the first
// insertion wins, matching spec.md §5's "similarity entries are write-once".
func (c *SmartCache) CacheSimilarity(a, b string, score int) {
	c.simMu.Lock()
	defer c.simMu.Unlock()
	key := similarityKey(a, b)
	if _, exists := c.similarity.Get(key); exists {
		return
	}
	c.similarity.Add(key, score)
}

// CacheRequest stores a fetched response body, gated by bypass_cache for the
// URL's owning site (spec.md §4.B). Pass bypassCache=true to skip the write.
func (c *SmartCache) CacheRequest(url string, body ResponseBody, bypassCache bool) {
	if bypassCache {
		return
	}
	c.bodyMu.Lock()
	c.bodies.Add(url, body)
	c.bodyMu.Unlock()
}

// GetCachedRequest returns a previously cached response body for a URL.
func (c *SmartCache) GetCachedRequest(url string) (ResponseBody, bool) {
	c.bodyMu.Lock()
	defer c.bodyMu.Unlock()
	body, ok := c.bodies.Get(url)
	if ok {
		c.bodyStats.Hits.Add(1)
	} else {
		c.bodyStats.Misses.Add(1)
	}
	return body, ok
}

// ClearResponseBodies wipes the response-body cache. Called on every browser
// restart (spec.md §3) to avoid stale-session confusion; WHOIS/DIG results
// and seen-domains survive restarts per the Open Questions decision in §9.
func (c *SmartCache) ClearResponseBodies() {
	c.bodyMu.Lock()
	c.bodies.Purge()
	c.bodyMu.Unlock()
	if c.logger != nil {
		c.logger.Debug("cleared response body cache on browser restart")
	}
}

// GetWhois returns a cached WHOIS result for a domain.
func (c *SmartCache) GetWhois(domain string) (string, bool) {
	c.whoisMu.Lock()
	defer c.whoisMu.Unlock()
	v, ok := c.whois.Get(domain)
	if ok {
		c.whoisStats.Hits.Add(1)
	} else {
		c.whoisStats.Misses.Add(1)
	}
	return v, ok
}

// CacheWhois stores a WHOIS result for a domain.
func (c *SmartCache) CacheWhois(domain, result string) {
	c.whoisMu.Lock()
	c.whois.Add(domain, result)
	c.whoisMu.Unlock()
	if c.remote != nil {
		c.remote.RecordWhois(domain, result)
	}
}

func digKey(domain, recordType string) string {
	return strings.ToLower(domain) + "\x00" + strings.ToUpper(recordType)
}

// GetDig returns a cached DIG result for (domain, record type).
func (c *SmartCache) GetDig(domain, recordType string) (string, bool) {
	c.digMu.Lock()
	defer c.digMu.Unlock()
	v, ok := c.dig.Get(digKey(domain, recordType))
	if ok {
		c.digStats.Hits.Add(1)
	} else {
		c.digStats.Misses.Add(1)
	}
	return v, ok
}

// CacheDig stores a DIG result for (domain, record type).
func (c *SmartCache) CacheDig(domain, recordType, result string) {
	key := digKey(domain, recordType)
	c.digMu.Lock()
	c.dig.Add(key, result)
	c.digMu.Unlock()
	if c.remote != nil {
		c.remote.RecordDig(key, result)
	}
}

// GetCompiledPattern returns a previously compiled regexp for pattern, if any.
func (c *SmartCache) GetCompiledPattern(pattern string) (*regexp.Regexp, bool) {
	c.patternMu.Lock()
	defer c.patternMu.Unlock()
	re, ok := c.patterns.Get(pattern)
	return re, ok
}

// CompilePattern returns the cached compiled form of pattern, compiling and
// storing it on first use. Concurrent callers racing on the same new pattern
// may each compile once; the cache keeps whichever write lands first.
func (c *SmartCache) CompilePattern(pattern string) (*regexp.Regexp, error) {
	if re, ok := c.GetCompiledPattern(pattern); ok {
		return re, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	c.patternMu.Lock()
	c.patterns.Add(pattern, re)
	c.patternMu.Unlock()
	return re, nil
}

// StatsSnapshot summarizes hit/miss counters across all categories, for
// debug logging and the orchestrator's end-of-run summary.
type StatsSnapshot struct {
	SeenDomainHits, SeenDomainMisses     int64
	SimilarityHits, SimilarityMisses     int64
	ResponseBodyHits, ResponseBodyMisses int64
	WhoisHits, WhoisMisses               int64
	DigHits, DigMisses                   int64
}

// Stats returns a snapshot of all category counters.
func (c *SmartCache) Stats() StatsSnapshot {
	return StatsSnapshot{
		SeenDomainHits:   c.seenStats.Hits.Load(),
		SeenDomainMisses: c.seenStats.Misses.Load(),
		SimilarityHits:   c.simStats.Hits.Load(),
		SimilarityMisses: c.simStats.Misses.Load(),
		ResponseBodyHits:   c.bodyStats.Hits.Load(),
		ResponseBodyMisses: c.bodyStats.Misses.Load(),
		WhoisHits:   c.whoisStats.Hits.Load(),
		WhoisMisses: c.whoisStats.Misses.Load(),
		DigHits:   c.digStats.Hits.Load(),
		DigMisses: c.digStats.Misses.Load(),
	}
}
