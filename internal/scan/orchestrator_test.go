package scan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/edgecomet/netscan/internal/rules"
	"github.com/edgecomet/netscan/pkg/types"
)

func TestResultWindowFailureRate(t *testing.T) {
	w := newResultWindow(20)
	for i := 0; i < 3; i++ {
		w.push(true)
	}
	for i := 0; i < 5; i++ {
		w.push(false)
	}

	rate, n := w.failureRate()
	assert.Equal(t, 8, n)
	assert.InDelta(t, 0.625, rate, 0.0001)
}

func TestResultWindowBelowMinSampleStillReportsSize(t *testing.T) {
	w := newResultWindow(20)
	w.push(false)
	w.push(false)
	_, n := w.failureRate()
	assert.Equal(t, 2, n)
}

func TestResultWindowEvictsOldest(t *testing.T) {
	w := newResultWindow(3)
	w.push(true)
	w.push(true)
	w.push(true)
	w.push(false) // evicts the first "true"

	rate, n := w.failureRate()
	assert.Equal(t, 3, n)
	assert.InDelta(t, 1.0/3.0, rate, 0.0001)
}

func newTestOrchestrator(global *types.GlobalConfig) *Orchestrator {
	return &Orchestrator{
		logger: zap.NewNop(),
		global: global,
		store:  rules.NewStore(),
		recent: newResultWindow(failureRateWindow),
	}
}

func TestIsGloballyIgnoredWildcard(t *testing.T) {
	o := newTestOrchestrator(&types.GlobalConfig{IgnoreDomains: []string{"*.ads.test"}})
	assert.True(t, o.isGloballyIgnored("tracker.ads.test"))
	assert.False(t, o.isGloballyIgnored("example.test"))
}

func TestEmergencyRestartThresholdAbsoluteFloor(t *testing.T) {
	o := newTestOrchestrator(&types.GlobalConfig{ResourceCleanupInterval: 80})
	results := []types.UrlResult{
		{NeedsImmediateRestart: true},
		{NeedsImmediateRestart: true},
		{NeedsImmediateRestart: false},
		{NeedsImmediateRestart: false},
	}
	// batch_size/2 = 2, floor is max(3,2) = 3; only 2 critical results present.
	assert.False(t, o.emergencyRestart(results, 4))
}

func TestEmergencyRestartTriggersAtProportionalThreshold(t *testing.T) {
	o := newTestOrchestrator(&types.GlobalConfig{ResourceCleanupInterval: 80})
	results := make([]types.UrlResult, 10)
	for i := range results[:6] {
		results[i] = types.UrlResult{NeedsImmediateRestart: true}
	}
	// batch_size/2 = 5, floor max(3,5) = 5; 6 critical results clears it.
	assert.True(t, o.emergencyRestart(results, 10))
	assert.Equal(t, 0, o.urlsSinceRestart)
}

func TestNeedsScheduledRestartCleanupIntervalNotOnLastBatch(t *testing.T) {
	o := newTestOrchestrator(&types.GlobalConfig{ResourceCleanupInterval: 80, MaxConcurrentSites: 6})
	o.urlsSinceRestart = 80
	assert.True(t, o.needsScheduledRestart(false))
}

func TestNeedsScheduledRestartSkippedOnLastBatch(t *testing.T) {
	o := newTestOrchestrator(&types.GlobalConfig{ResourceCleanupInterval: 80, MaxConcurrentSites: 6})
	o.urlsSinceRestart = 80
	assert.False(t, o.needsScheduledRestart(true))
}

func TestNeedsScheduledRestartFailureRateTrigger(t *testing.T) {
	o := newTestOrchestrator(&types.GlobalConfig{ResourceCleanupInterval: 80, MaxConcurrentSites: 6})
	for i := 0; i < 6; i++ {
		o.recent.push(false)
	}
	assert.True(t, o.needsScheduledRestart(false))
}

func TestPostProcessFiltersIgnoredAndFirstPartyRules(t *testing.T) {
	firstPartyOff := false
	global := &types.GlobalConfig{IgnoreDomains: []string{"*.ads.test"}}
	o := newTestOrchestrator(global)

	site := &types.SiteConfig{FirstParty: &firstPartyOff}
	tasks := []types.UrlTask{
		{URL: "https://example.test/", Site: site},
	}
	o.store.Add(types.UrlResult{
		URL:      "https://example.test/",
		FinalURL: "https://example.test/",
		Rules: []types.FormattedRule{
			{Domain: "tracker.ads.test"},  // dropped: globally ignored
			{Domain: "example.test"},      // dropped: first-party, site disables it
			{Domain: "cdn.thirdparty.test"}, // kept
		},
	})

	o.postProcess(tasks)

	results := o.store.Results()
	assert.Len(t, results[0].Rules, 1)
	assert.Equal(t, "cdn.thirdparty.test", results[0].Rules[0].Domain)
	assert.True(t, results[0].HasMatches)
}
