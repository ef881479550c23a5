package scan

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/edgecomet/netscan/internal/browser"
	"github.com/edgecomet/netscan/internal/cache"
	"github.com/edgecomet/netscan/internal/common/urlutil"
	"github.com/edgecomet/netscan/internal/pipeline"
	"github.com/edgecomet/netscan/internal/rules"
	"github.com/edgecomet/netscan/pkg/types"
)

const (
	hangDetectorInterval = 30 * time.Second
	healthProbeTimeout   = 5 * time.Second

	// failureRateWindow bounds how many recent results the recent-failure-rate
	// restart trigger looks at (spec.md §4.G: "over the last >= 6 results").
	failureRateWindow = 20
	failureRateMinN   = 6
	failureRateLimit  = 0.75

	// healthProbeMinURLs gates the health-probe restart trigger so a freshly
	// restarted browser isn't immediately re-probed (spec.md §4.G).
	healthProbeMinURLs = 15
)

// Orchestrator drives one full scan run end to end: flattening sites into
// tasks, running them in cleanup-interval batches under a concurrency
// bound, deciding when to restart the browser, and accumulating results
// (spec.md §4.G).
type Orchestrator struct {
	logger *zap.Logger
	global *types.GlobalConfig
	pool   *browser.Pool
	cache  *cache.SmartCache
	pipe   *pipeline.Pipeline
	store  *rules.Store
	debug  bool
	dryRun bool

	urlsSinceRestart int
	recent           *resultWindow
}

// New builds an Orchestrator. dryRun, when true, skips the post-processing
// safety net (spec.md §4.G's "(non-dry-run)" qualifier); the caller is still
// responsible for not writing output in that mode.
func New(logger *zap.Logger, global *types.GlobalConfig, pool *browser.Pool, c *cache.SmartCache, pipe *pipeline.Pipeline, debug, dryRun bool) *Orchestrator {
	return &Orchestrator{
		logger: logger,
		global: global,
		pool:   pool,
		cache:  c,
		pipe:   pipe,
		store:  rules.NewStore(),
		debug:  debug,
		dryRun: dryRun,
		recent: newResultWindow(failureRateWindow),
	}
}

// Run flattens all sites into tasks, processes them in
// resource_cleanup_interval batches under max_concurrent_sites concurrency,
// and returns the accumulated rule store. Honors ctx cancellation at batch
// boundaries and before launching each task within a batch (spec.md §5's
// graceful-shutdown contract); the caller remains responsible for
// force-closing the browser pool afterward.
func (o *Orchestrator) Run(ctx context.Context) (*rules.Store, error) {
	tasks := FlattenTasks(o.global)
	o.logger.Info("scan starting", zap.Int("total_urls", len(tasks)))

	batchSize := o.global.ResourceCleanupInterval
	if batchSize <= 0 {
		batchSize = 80
	}

	var completed int64
	stopHang := o.startHangDetector(ctx, len(tasks), &completed)
	defer stopHang()

	var boundaries [][2]int
	for start := 0; start < len(tasks); start += batchSize {
		end := start + batchSize
		if end > len(tasks) {
			end = len(tasks)
		}
		boundaries = append(boundaries, [2]int{start, end})
	}

	for bi, bound := range boundaries {
		select {
		case <-ctx.Done():
			o.logger.Info("scan cancelled, stopping before next batch")
			return o.store, ctx.Err()
		default:
		}

		batch := tasks[bound[0]:bound[1]]
		results := o.runBatch(ctx, batch, &completed)
		for _, r := range results {
			o.store.Add(r)
			if !r.Skipped {
				o.recent.push(!r.NeedsImmediateRestart && r.Success)
			}
		}

		if o.emergencyRestart(results, len(batch)) {
			continue
		}

		o.urlsSinceRestart += len(batch)

		isLastBatch := bi == len(boundaries)-1
		if o.needsScheduledRestart(isLastBatch) {
			o.restart("scheduled")
		}
	}

	if !o.dryRun {
		o.postProcess(tasks)
	}
	return o.store, nil
}

// runBatch processes one batch under an errgroup bounded by
// max_concurrent_sites, preserving input order in the returned slice
// (spec.md §5's "output preserves input task order").
func (o *Orchestrator) runBatch(ctx context.Context, batch []types.UrlTask, completed *int64) []types.UrlResult {
	results := make([]types.UrlResult, len(batch))

	var g errgroup.Group
	g.SetLimit(o.global.MaxConcurrentSites)

	for i, task := range batch {
		i, task := i, task

		select {
		case <-ctx.Done():
			results[i] = types.UrlResult{URL: task.URL, Skipped: true}
			continue
		default:
		}

		g.Go(func() error {
			results[i] = o.runOne(ctx, task)
			atomic.AddInt64(completed, 1)
			return nil
		})
	}
	g.Wait()

	return results
}

// runOne acquires a browser instance, drives one task through the pipeline,
// and releases the instance regardless of outcome.
func (o *Orchestrator) runOne(ctx context.Context, task types.UrlTask) types.UrlResult {
	inst, err := o.pool.Acquire(ctx)
	if err != nil {
		return types.UrlResult{URL: task.URL, ErrorKind: types.ErrorKindCriticalBrowser, Error: err}
	}
	defer o.pool.Release(inst)

	result, err := o.pipe.Run(ctx, inst, &task)
	if err != nil {
		o.logger.Debug("task finished with error", zap.String("url", task.URL), zap.Error(err))
	}
	return *result
}

// emergencyRestart implements spec.md §4.G's "Emergency restart": when a
// batch's needs_immediate_restart count reaches max(3, batch_size/2),
// restart now rather than waiting for the between-batch decision.
func (o *Orchestrator) emergencyRestart(results []types.UrlResult, batchSize int) bool {
	count := 0
	for _, r := range results {
		if r.NeedsImmediateRestart {
			count++
		}
	}

	threshold := batchSize / 2
	if threshold < 3 {
		threshold = 3
	}
	if count >= threshold && count >= 2 {
		o.logger.Warn("emergency browser restart",
			zap.Int("critical_results", count), zap.Int("batch_size", batchSize))
		o.restart("emergency")
		return true
	}
	return false
}

// needsScheduledRestart implements spec.md §4.G's three between-batch
// restart triggers.
func (o *Orchestrator) needsScheduledRestart(isLastBatch bool) bool {
	cleanupInterval := o.global.ResourceCleanupInterval
	if cleanupInterval <= 0 {
		cleanupInterval = 80
	}
	if !isLastBatch && o.urlsSinceRestart >= cleanupInterval {
		return true
	}

	if rate, n := o.recent.failureRate(); n >= failureRateMinN && rate > failureRateLimit {
		o.logger.Warn("restart triggered by recent failure rate", zap.Float64("rate", rate), zap.Int("sample", n))
		return true
	}

	if o.pool != nil && o.urlsSinceRestart > healthProbeMinURLs && !o.pool.HealthProbe(healthProbeTimeout) {
		o.logger.Warn("restart triggered by failed health probe")
		return true
	}

	return false
}

// restart force-restarts the entire pool and clears the response-body
// cache (spec.md §3's "response_bodies map is cleared on every browser
// restart"), resetting the urls-since-restart counter.
func (o *Orchestrator) restart(reason string) {
	if o.pool != nil {
		if err := o.pool.RestartAll(); err != nil {
			o.logger.Warn("browser restart reported an error", zap.String("reason", reason), zap.Error(err))
		}
	}
	if o.cache != nil {
		o.cache.ClearResponseBodies()
	}
	o.urlsSinceRestart = 0
}

// postProcess implements spec.md §4.G's post-processing safety net. tasks
// and o.store's results share index-for-index correspondence: every task
// produces exactly one result, in the same order it was flattened.
func (o *Orchestrator) postProcess(tasks []types.UrlTask) {
	results := o.store.Results()

	for i := range results {
		if i >= len(tasks) {
			break
		}
		r := &results[i]
		site := tasks[i].Site

		firstPartyDomains := map[string]struct{}{}
		if d := urlutil.RegistrableDomain(r.URL); d != "" {
			firstPartyDomains[d] = struct{}{}
		}
		if d := urlutil.RegistrableDomain(r.FinalURL); d != "" {
			firstPartyDomains[d] = struct{}{}
		}

		kept := r.Rules[:0]
		for _, rule := range r.Rules {
			if o.isGloballyIgnored(rule.Domain) {
				continue
			}
			if !site.EnabledFirstParty() {
				if _, isFP := firstPartyDomains[rule.Domain]; isFP {
					continue
				}
			}
			kept = append(kept, rule)
		}
		r.Rules = kept
		r.HasMatches = len(kept) > 0
	}

	o.store.Replace(results)
}

func (o *Orchestrator) isGloballyIgnored(domain string) bool {
	for _, pattern := range o.global.IgnoreDomains {
		if urlutil.IgnoreMatch(pattern, domain) {
			return true
		}
	}
	return false
}

// startHangDetector launches a background ticker that logs progress every
// 30s in debug mode only (spec.md §4.G: "it never kills work, it only
// observes"). Returns a stop function.
func (o *Orchestrator) startHangDetector(ctx context.Context, total int, completed *int64) func() {
	if !o.debug {
		return func() {}
	}

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(hangDetectorInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				o.logger.Debug("scan progress",
					zap.Int64("completed", atomic.LoadInt64(completed)),
					zap.Int("total", total),
					zap.Int("urls_since_restart", o.urlsSinceRestart))
			}
		}
	}()
	return func() { close(done) }
}

// resultWindow is a fixed-capacity ring of recent task outcomes, backing
// the recent-failure-rate restart trigger.
type resultWindow struct {
	mu  sync.Mutex
	buf []bool
	cap int
}

func newResultWindow(capacity int) *resultWindow {
	return &resultWindow{cap: capacity}
}

func (w *resultWindow) push(success bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf = append(w.buf, success)
	if len(w.buf) > w.cap {
		w.buf = w.buf[len(w.buf)-w.cap:]
	}
}

// failureRate returns the fraction of recent results that failed, and the
// sample size it was computed over.
func (w *resultWindow) failureRate() (rate float64, n int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	n = len(w.buf)
	if n == 0 {
		return 0, 0
	}
	fails := 0
	for _, ok := range w.buf {
		if !ok {
			fails++
		}
	}
	return float64(fails) / float64(n), n
}
