// dispatch.go wires the pure decision core (classify.go, record.go) to the
// actual CDP request-interception channel and the curl/grep/whois/dig
// external-tool adapters (spec.md §4.F.7), grounded on the teacher's
// renderer.go buildTasks fetch.EventRequestPaused handler for the
// short-lived executor context and continue-or-fail shape via
// cdp.WithExecutor. Unlike that handler, which spawns one goroutine per
// paused request, Attach here invokes a single reentrant handler inline per
// spec.md §9.
package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/edgecomet/netscan/internal/cache"
	"github.com/edgecomet/netscan/internal/common/urlutil"
	"github.com/edgecomet/netscan/internal/tools"
	"github.com/edgecomet/netscan/pkg/types"
)

// dispatchCache is everything Dispatcher needs from *cache.SmartCache.
type dispatchCache interface {
	patternCompiler
	similarityCache
	GetCachedRequest(url string) (cache.ResponseBody, bool)
	CacheRequest(url string, body cache.ResponseBody, bypassCache bool)
	GetWhois(domain string) (string, bool)
	CacheWhois(domain, result string)
	GetDig(domain, recordType string) (string, bool)
	CacheDig(domain, recordType, result string)
}

// pendingCorroboration is a deferred record awaiting body/WHOIS/DIG checks,
// queued by the fetch handler and drained by AwaitPending at settle time.
type pendingCorroboration struct {
	info RequestInfo
	plan RecordPlan
}

// Dispatcher owns one task's request-interception state: the classify
// inputs, the deferred-corroboration queue, and the tool adapters used to
// resolve it.
type Dispatcher struct {
	logger *zap.Logger

	site   *types.SiteConfig
	global *types.GlobalConfig

	cache        dispatchCache
	firstParty   *types.FirstPartySet
	excludeHosts map[string]struct{}
	matched      *types.MatchedDomains

	curl  *tools.CurlAdapter
	dig   *tools.DigAdapter
	whois *tools.WhoisAdapter

	grepBinary string

	pendingCh chan pendingCorroboration

	bodyMu      sync.Mutex
	bodyTargets map[network.RequestID]string
}

// NewDispatcher builds a Dispatcher for one UrlTask.
func NewDispatcher(logger *zap.Logger, site *types.SiteConfig, global *types.GlobalConfig, c dispatchCache, firstParty *types.FirstPartySet, excludeHosts map[string]struct{}, matched *types.MatchedDomains, curl *tools.CurlAdapter, dig *tools.DigAdapter, whois *tools.WhoisAdapter, grepBinary string) *Dispatcher {
	return &Dispatcher{
		logger:       logger,
		site:         site,
		global:       global,
		cache:        c,
		firstParty:   firstParty,
		excludeHosts: excludeHosts,
		matched:      matched,
		curl:         curl,
		dig:          dig,
		whois:        whois,
		grepBinary:   grepBinary,
		pendingCh:    make(chan pendingCorroboration, 64),
		bodyTargets:  make(map[network.RequestID]string),
	}
}

// Attach registers the fetch.EventRequestPaused handler on ctx's target, per
// spec.md §4.F.7 and §9's explicit "single reentrant function invoked by the
// browser adapter; do not spawn a worker per request" design note: unlike
// the teacher's renderer.go (which fires a goroutine per paused request for
// its much simpler header-injection-only job), classify+record here runs
// synchronously on chromedp's own callback goroutine, since CDP already
// serializes request-handler invocations and MatchedDomains insertion must
// stay single-writer.
func (d *Dispatcher) Attach(ctx context.Context) {
	chromedp.ListenTarget(ctx, func(ev interface{}) {
		switch e := ev.(type) {
		case *fetch.EventRequestPaused:
			d.handle(ctx, e)
		case *network.EventResponseReceived:
			d.noteResponse(e)
		case *network.EventLoadingFinished:
			d.captureBody(ctx, e)
		}
	})
}

// noteResponse records the URL behind a network.RequestID so captureBody can
// look it up once the response body is actually available (spec.md §4.F.7.8's
// "deferred-by-content, else via the browser response handler" path). Keyed
// by URL rather than request ID to match SmartCache.CacheRequest's keying.
func (d *Dispatcher) noteResponse(e *network.EventResponseReceived) {
	if d.site.Curl {
		return
	}
	d.bodyMu.Lock()
	d.bodyTargets[e.RequestID] = e.Response.URL
	d.bodyMu.Unlock()
}

// captureBody fetches and caches a response body via CDP once loading has
// finished, for sites not configured with curl: true. This is the browser
// response handler dispatch.go's fetchBody comment used to describe without
// implementing.
func (d *Dispatcher) captureBody(ctx context.Context, e *network.EventLoadingFinished) {
	d.bodyMu.Lock()
	url, ok := d.bodyTargets[e.RequestID]
	if ok {
		delete(d.bodyTargets, e.RequestID)
	}
	d.bodyMu.Unlock()
	if !ok {
		return
	}
	if _, cached := d.cache.GetCachedRequest(url); cached {
		return
	}

	cmdCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	c := chromedp.FromContext(cmdCtx)
	executor := cdp.WithExecutor(cmdCtx, c.Target)

	body, err := network.GetResponseBody(e.RequestID).Do(executor)
	if err != nil {
		d.logger.Debug("get response body failed", zap.String("url", url), zap.Error(err))
		return
	}
	d.cache.CacheRequest(url, cache.ResponseBody{Body: body}, d.site.BypassCache)
}

func (d *Dispatcher) handle(ctx context.Context, paused *fetch.EventRequestPaused) {
	cmdCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	c := chromedp.FromContext(cmdCtx)
	executor := cdp.WithExecutor(cmdCtx, c.Target)

	info := RequestInfo{
		URL:          paused.Request.URL,
		Hostname:     urlutil.ExtractHostname(urlutil.ExtractHost(paused.Request.URL)),
		Registrable:  urlutil.RegistrableDomain(paused.Request.URL),
		ResourceType: string(paused.ResourceType),
	}

	result := Classify(d.cache, info, d.site, d.global, d.excludeHosts, d.firstParty)

	switch result.Action {
	case ActionAbort:
		d.fail(executor, paused.RequestID)
	case ActionAbortButRecord:
		d.recordNow(info)
		d.fail(executor, paused.RequestID)
	case ActionContinueUnrecorded:
		d.cont(executor, paused.RequestID)
	case ActionRecordImmediate:
		d.recordNow(info)
		d.cont(executor, paused.RequestID)
	case ActionRecordDeferred:
		d.cont(executor, paused.RequestID)
		select {
		case d.pendingCh <- pendingCorroboration{info: info, plan: result.Plan}:
		default:
			d.logger.Warn("pending corroboration queue full, dropping", zap.String("url", info.URL))
		}
	}
}

func (d *Dispatcher) cont(executor context.Context, id fetch.RequestID) {
	if err := fetch.ContinueRequest(id).Do(executor); err != nil {
		d.logger.Debug("continue request failed, failing instead", zap.Error(err))
		fetch.FailRequest(id, network.ErrorReasonAborted).Do(executor)
	}
}

func (d *Dispatcher) fail(executor context.Context, id fetch.RequestID) {
	if err := fetch.FailRequest(id, network.ErrorReasonAborted).Do(executor); err != nil {
		d.logger.Debug("fail request errored", zap.Error(err))
	}
}

// recordNow applies spec.md §4.F.7 steps 9-10 inline, for requests that need
// no deferred corroboration.
func (d *Dispatcher) recordNow(info RequestInfo) {
	if !ShouldRecordDomain(d.cache, d.global, d.matched, info.Hostname, info.Registrable) {
		return
	}
	RecordDomain(d.cache, d.matched, info.Hostname, info.Registrable, info.ResourceType)
}

// AwaitPending drains the deferred-corroboration queue, running curl/grep
// and/or whois/dig for each entry and recording only on a satisfied plan
// (spec.md §4.F.7.8, "Deferred-by-content"/"Deferred-by-nettools"). Called
// once navigation has settled; safe to call after Attach's tab context has
// been cancelled since it uses a fresh background-derived context per tool.
func (d *Dispatcher) AwaitPending(ctx context.Context) {
	close(d.pendingCh)
	for item := range d.pendingCh {
		if d.resolve(ctx, item) {
			d.recordNow(item.info)
		}
	}
}

func (d *Dispatcher) resolve(ctx context.Context, item pendingCorroboration) bool {
	if item.plan.NeedsContentMatch {
		ok, err := d.contentMatches(ctx, item.info.URL)
		if err != nil {
			d.logger.Debug("content match failed", zap.String("url", item.info.URL), zap.Error(err))
			return false
		}
		if !ok {
			return false
		}
	}
	if item.plan.NeedsWhois {
		ok, err := d.whoisMatches(ctx, item.info.Registrable)
		if err != nil || !ok {
			return false
		}
	}
	if item.plan.NeedsDig {
		ok, err := d.digMatches(ctx, item.info.Registrable, item.info.Hostname)
		if err != nil || !ok {
			return false
		}
	}
	return true
}

func (d *Dispatcher) contentMatches(ctx context.Context, url string) (bool, error) {
	body, err := d.fetchBody(ctx, url)
	if err != nil {
		return false, err
	}

	if len(d.site.SearchString) > 0 {
		ok, err := tools.GrepMatchAny(ctx, d.site.Grep, d.grepBinary, body, d.site.SearchString)
		if err != nil || !ok {
			return false, err
		}
	}
	if len(d.site.SearchStringAnd) > 0 {
		ok, err := tools.GrepMatchAll(ctx, d.site.Grep, d.grepBinary, body, d.site.SearchStringAnd)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func (d *Dispatcher) fetchBody(ctx context.Context, url string) ([]byte, error) {
	if cached, ok := d.cache.GetCachedRequest(url); ok {
		return cached.Body, nil
	}
	if !d.site.Curl {
		// captureBody (the browser's own network.EventLoadingFinished
		// handler) populates the cache as responses land; if it hasn't
		// caught this URL by settle time, there is nothing to match
		// against, per spec.md §4.F.7.8's "else via the browser response
		// handler" path.
		return nil, nil
	}
	result, err := d.curl.Fetch(ctx, url, tools.CurlOptions{CustomHeaders: d.site.CustomHeaders})
	if err != nil {
		return nil, err
	}
	d.cache.CacheRequest(url, cache.ResponseBody{Body: result.Body, Status: result.HTTPCode, ContentType: result.ContentType}, d.site.BypassCache)
	return result.Body, nil
}

func (d *Dispatcher) whoisMatches(ctx context.Context, domain string) (bool, error) {
	result, ok := d.cache.GetWhois(domain)
	if !ok {
		var err error
		result, err = d.whois.Lookup(ctx, domain, tools.WhoisOptions{
			Servers:           []string(d.site.WhoisServer),
			ServerMode:        d.global.WhoisServerMode,
			MaxRetries:        d.site.WhoisMaxRetries,
			TimeoutMultiplier: d.site.WhoisTimeoutMultiplier,
			UseFallback:       d.site.WhoisUseFallback,
		})
		if err != nil {
			return false, err
		}
		d.cache.CacheWhois(domain, result)
	}

	body := []byte(result)
	if len(d.site.Whois) > 0 {
		ok, err := tools.GrepMatchAll(ctx, d.site.Grep, d.grepBinary, body, d.site.Whois)
		if err != nil || !ok {
			return false, err
		}
	}
	if len(d.site.WhoisOr) > 0 {
		ok, err := tools.GrepMatchAny(ctx, d.site.Grep, d.grepBinary, body, d.site.WhoisOr)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func (d *Dispatcher) digMatches(ctx context.Context, registrable, fullHost string) (bool, error) {
	recordType := d.site.DigRecordType
	subject := tools.SubjectName(registrable, fullHost, d.site.DigSubdomain)

	result, ok := d.cache.GetDig(subject, recordType)
	if !ok {
		var err error
		result, err = d.dig.Lookup(ctx, subject, recordType, 0)
		if err != nil {
			return false, err
		}
		d.cache.CacheDig(subject, recordType, result)
	}

	body := []byte(result)
	if len(d.site.Dig) > 0 {
		ok, err := tools.GrepMatchAll(ctx, d.site.Grep, d.grepBinary, body, d.site.Dig)
		if err != nil || !ok {
			return false, err
		}
	}
	if len(d.site.DigOr) > 0 {
		ok, err := tools.GrepMatchAny(ctx, d.site.Grep, d.grepBinary, body, d.site.DigOr)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}
