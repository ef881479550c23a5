package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/edgecomet/netscan/internal/cache"
	"github.com/edgecomet/netscan/pkg/types"
)

func TestShouldRecordDomainSkipsAlreadySeen(t *testing.T) {
	c := cache.New(0, zap.NewNop(), nil)
	matched := types.NewMatchedDomains()
	global := &types.GlobalConfig{}

	c.MarkSeenDomain("sub.ads.test")
	assert.False(t, ShouldRecordDomain(c, global, matched, "sub.ads.test", "ads.test"))
}

func TestShouldRecordDomainIgnoreSimilarRejectsCloseMatch(t *testing.T) {
	c := cache.New(0, zap.NewNop(), nil)
	matched := types.NewMatchedDomains()
	matched.Add("ads-tracker.test", "")
	global := &types.GlobalConfig{IgnoreSimilar: true, IgnoreSimilarThreshold: 50}

	assert.False(t, ShouldRecordDomain(c, global, matched, "ads-trakcer.test", "ads-trakcer.test"))
}

func TestShouldRecordDomainIgnoreSimilarAllowsDistinctMatch(t *testing.T) {
	c := cache.New(0, zap.NewNop(), nil)
	matched := types.NewMatchedDomains()
	matched.Add("ads.test", "")
	global := &types.GlobalConfig{IgnoreSimilar: true, IgnoreSimilarThreshold: 95}

	assert.True(t, ShouldRecordDomain(c, global, matched, "totally-different.example", "totally-different.example"))
}

func TestShouldRecordDomainAgainstIgnoredDomains(t *testing.T) {
	c := cache.New(0, zap.NewNop(), nil)
	matched := types.NewMatchedDomains()
	global := &types.GlobalConfig{
		IgnoreSimilar:               true,
		IgnoreSimilarThreshold:      50,
		IgnoreSimilarIgnoredDomains: true,
		IgnoreDomains:               []string{"spammy.test"},
	}

	assert.False(t, ShouldRecordDomain(c, global, matched, "spamy.test", "spamy.test"))
}

func TestRecordDomainInsertsAndMarksSeen(t *testing.T) {
	c := cache.New(0, zap.NewNop(), nil)
	matched := types.NewMatchedDomains()

	RecordDomain(c, matched, "cdn.ads.test", "ads.test", "script")

	assert.True(t, c.ShouldSkipDomain("cdn.ads.test"))
	require.True(t, matched.Contains("ads.test"))
	assert.Equal(t, []string{"script"}, matched.ResourceTypes("ads.test"))
}

func TestSimilarityCachePopulatedOnFirstUse(t *testing.T) {
	c := cache.New(0, zap.NewNop(), nil)
	matched := types.NewMatchedDomains()
	matched.Add("ads.test", "")
	global := &types.GlobalConfig{IgnoreSimilar: true, IgnoreSimilarThreshold: 101} // impossible threshold, always false

	ShouldRecordDomain(c, global, matched, "other.test", "other.test")

	_, ok := c.GetCachedSimilarity("ads.test", "other.test")
	assert.True(t, ok, "similarity should be cached after first computation")
}
