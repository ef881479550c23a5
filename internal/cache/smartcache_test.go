package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestCache(t *testing.T) *SmartCache {
	t.Helper()
	return New(0, zap.NewNop(), nil)
}

func TestShouldSkipDomainAfterMark(t *testing.T) {
	c := newTestCache(t)
	assert.False(t, c.ShouldSkipDomain("ads.example.com"))
	c.MarkSeenDomain("ads.example.com")
	assert.True(t, c.ShouldSkipDomain("ads.example.com"))
}

func TestSimilarityKeyOrderInsensitive(t *testing.T) {
	c := newTestCache(t)
	c.CacheSimilarity("b.test", "a.test", 42)

	score, ok := c.GetCachedSimilarity("a.test", "b.test")
	require.True(t, ok)
	assert.Equal(t, 42, score)
}

func TestCacheSimilarityWriteOnce(t *testing.T) {
	c := newTestCache(t)
	c.CacheSimilarity("a.test", "b.test", 10)
	c.CacheSimilarity("a.test", "b.test", 99)

	score, ok := c.GetCachedSimilarity("a.test", "b.test")
	require.True(t, ok)
	assert.Equal(t, 10, score)
}

func TestCacheRequestRespectsBypassCache(t *testing.T) {
	c := newTestCache(t)
	body := ResponseBody{Body: []byte("hi"), Status: 200, ContentType: "text/plain"}

	c.CacheRequest("https://a.test/", body, true)
	_, ok := c.GetCachedRequest("https://a.test/")
	assert.False(t, ok, "bypassCache=true must skip the write")

	c.CacheRequest("https://a.test/", body, false)
	got, ok := c.GetCachedRequest("https://a.test/")
	require.True(t, ok)
	assert.Equal(t, body, got)
}

func TestClearResponseBodiesPurgesOnlyBodies(t *testing.T) {
	c := newTestCache(t)
	c.CacheRequest("https://a.test/", ResponseBody{Status: 200}, false)
	c.MarkSeenDomain("a.test")
	c.CacheWhois("a.test", "whois data")

	c.ClearResponseBodies()

	_, ok := c.GetCachedRequest("https://a.test/")
	assert.False(t, ok)
	assert.True(t, c.ShouldSkipDomain("a.test"))
	v, ok := c.GetWhois("a.test")
	require.True(t, ok)
	assert.Equal(t, "whois data", v)
}

func TestDigKeyDistinguishesRecordType(t *testing.T) {
	c := newTestCache(t)
	c.CacheDig("a.test", "A", "1.2.3.4")
	c.CacheDig("a.test", "AAAA", "::1")

	v, ok := c.GetDig("a.test", "A")
	require.True(t, ok)
	assert.Equal(t, "1.2.3.4", v)

	v, ok = c.GetDig("a.test", "AAAA")
	require.True(t, ok)
	assert.Equal(t, "::1", v)
}

func TestCompilePatternCachesCompiledForm(t *testing.T) {
	c := newTestCache(t)
	re, err := c.CompilePattern(`tracker\d+`)
	require.NoError(t, err)
	assert.True(t, re.MatchString("tracker42"))

	cached, ok := c.GetCompiledPattern(`tracker\d+`)
	require.True(t, ok)
	assert.Same(t, re, cached)
}

func TestCompilePatternInvalidRegex(t *testing.T) {
	c := newTestCache(t)
	_, err := c.CompilePattern("(unclosed")
	assert.Error(t, err)
}

type fakeCorroborator struct {
	seen   []string
	whois  []string
	digKey []string
}

func (f *fakeCorroborator) RecordSeenDomain(domain string)   { f.seen = append(f.seen, domain) }
func (f *fakeCorroborator) RecordWhois(domain, result string) { f.whois = append(f.whois, domain) }
func (f *fakeCorroborator) RecordDig(key, result string)      { f.digKey = append(f.digKey, key) }

func TestRemoteCorroboratorDualWrite(t *testing.T) {
	remote := &fakeCorroborator{}
	c := New(0, zap.NewNop(), remote)

	c.MarkSeenDomain("a.test")
	c.CacheWhois("a.test", "data")
	c.CacheDig("a.test", "A", "1.2.3.4")

	assert.Equal(t, []string{"a.test"}, remote.seen)
	assert.Equal(t, []string{"a.test"}, remote.whois)
	assert.Len(t, remote.digKey, 1)
}
