// pipeline.go drives one UrlTask through the full per-URL sequence spec.md
// §4.F describes: page setup, script injection, identity/fingerprint
// spoofing, site-data clearing, navigation, request-interception dispatch,
// challenge handling, settle, interactions, reloads, and rule emission.
// Grounded on the teacher's ChromeInstance.Render/buildTasks sequencing.
package pipeline

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/edgecomet/netscan/internal/browser"
	"github.com/edgecomet/netscan/internal/cache"
	"github.com/edgecomet/netscan/internal/challenge"
	"github.com/edgecomet/netscan/internal/common/urlutil"
	"github.com/edgecomet/netscan/internal/tools"
	"github.com/edgecomet/netscan/pkg/types"
)

const (
	settleIdleGap = 2 * time.Second
	settleCap     = 10 * time.Second
)

// Pipeline owns the dependencies shared across every task it runs: the
// process-wide smart cache, external-tool adapters, and the pluggable
// challenge handler.
type Pipeline struct {
	logger  *zap.Logger
	global  *types.GlobalConfig
	cache   *cache.SmartCache
	curl    *tools.CurlAdapter
	dig     *tools.DigAdapter
	whois   *tools.WhoisAdapter
	grepBin string
	handler challenge.Handler
}

// New builds a Pipeline. handler may be nil, in which case challenge
// detection is a no-op (challenge.NoopHandler).
func New(logger *zap.Logger, global *types.GlobalConfig, c *cache.SmartCache, curl *tools.CurlAdapter, dig *tools.DigAdapter, whois *tools.WhoisAdapter, grepBin string, handler challenge.Handler) *Pipeline {
	if handler == nil {
		handler = challenge.NoopHandler{}
	}
	return &Pipeline{logger: logger, global: global, cache: c, curl: curl, dig: dig, whois: whois, grepBin: grepBin, handler: handler}
}

// Run executes one UrlTask's full sequence against inst, returning its result.
func (p *Pipeline) Run(ctx context.Context, inst *browser.Instance, task *types.UrlTask) (*types.UrlResult, error) {
	site := task.Site

	// Step 1: pre-checks.
	if !site.EnabledFirstParty() && !site.EnabledThirdParty() {
		return &types.UrlResult{URL: task.URL, Success: false, Skipped: true}, nil
	}

	timeout := time.Duration(site.Timeout)
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	// Step 2: open page.
	tabCtx, tabCancel := inst.GetContext()
	defer tabCancel()
	defer inst.IncrementRequests()

	if err := chromedp.Run(tabCtx, network.Enable(), fetch.Enable()); err != nil {
		return &types.UrlResult{URL: task.URL, Success: false, ErrorKind: types.ErrorKindCriticalBrowser, NeedsImmediateRestart: true}, errors.Join(ErrOpenPageFailed, err)
	}

	initialDomain := urlutil.RegistrableDomain(task.URL)
	firstParty := types.NewFirstPartySet(initialDomain)
	redirect := types.NewRedirectState(task.URL, site.MaxRedirects)
	matched := types.NewMatchedDomains()
	excludeHosts := make(map[string]struct{})

	rng := rand.New(rand.NewSource(int64(len(task.URL)) + 1))

	// Step 3: script injections (best-effort, never fatal).
	if evalOnDocEnabled(site) {
		injectEvalOnDoc(tabCtx, p.logger)
	}
	if len(site.CSSBlocked) > 0 {
		injectCSSBlocked(tabCtx, p.logger, site.CSSBlocked)
	}

	// Step 4: identity.
	p.applyIdentity(tabCtx, site, rng)

	// Step 5: site-data clearing, before the initial load.
	if site.WindowCleanup.Mode != types.WindowCleanupOff {
		clearSiteData(tabCtx, p.logger)
	}

	// Step 6: navigation.
	referer := ResolveReferrer(site.ReferrerHeaders, rng)
	dispatcher := NewDispatcher(p.logger, site, p.global, p.cache, firstParty, excludeHosts, matched, p.curl, p.dig, p.whois, p.grepBin)
	dispatcher.Attach(tabCtx)

	navResult := Navigate(tabCtx, p.logger, task.URL, referer, timeout, redirect, firstParty, excludeHosts)

	result := &types.UrlResult{URL: task.URL, FinalURL: navResult.FinalURL}

	if navResult.ErrorKind != types.ErrorKindNone {
		result.ErrorKind = navResult.ErrorKind
		result.Error = navResult.Err
		p.finishDeferred(tabCtx, dispatcher)
		p.emit(result, matched, excludeHosts)
		return result, nil
	}
	if navResult.Err != nil {
		if browser.IsCriticalError(navResult.Err) {
			result.ErrorKind = types.ErrorKindCriticalBrowser
			result.NeedsImmediateRestart = true
		} else {
			result.ErrorKind = types.ErrorKindPageError
		}
		result.Error = navResult.Err
		p.finishDeferred(tabCtx, dispatcher)
		p.emit(result, matched, excludeHosts)
		return result, navResult.Err
	}

	// Step 8: challenge handling.
	page := &chromedpPage{ctx: tabCtx}
	challengeTimeout := time.Duration(site.ChallengeTimeout)
	if challengeTimeout <= 0 {
		challengeTimeout = 15 * time.Second
	}
	if site.ChallengeBypass || site.PhishBypass {
		if _, err := challenge.Dispatch(tabCtx, p.handler, page, challengeTimeout, site.ChallengeRetries); err != nil {
			result.Error = err
			result.ErrorKind = classifyChallengeErr(err)
			p.emit(result, matched, excludeHosts)
			return result, err
		}
	}

	// Step 9: settle.
	settle(tabCtx)
	if site.Delay > 0 {
		time.Sleep(time.Duration(site.Delay))
	}
	if len(site.CSSBlocked) > 0 {
		evaluateCSSBlockedPostLoad(tabCtx, p.logger, site.CSSBlocked)
	}

	// Step 7's deferred corroboration resolves once the page has settled
	// and produced response bodies via the browser's own fetch.
	p.finishDeferred(tabCtx, dispatcher)

	// Step 10: interactions.
	if site.Interact {
		interact(tabCtx, rng)
	}

	// Step 11: reloads.
	p.reloadLoop(tabCtx, site, initialDomain)

	result.Success = true
	p.emit(result, matched, excludeHosts)
	return result, nil
}

// finishDeferred drains a dispatcher's deferred-corroboration queue. Uses a
// background-derived context with its own deadline since the tab context may
// already be winding down.
func (p *Pipeline) finishDeferred(tabCtx context.Context, d *Dispatcher) {
	corrCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	d.AwaitPending(corrCtx)
}

func (p *Pipeline) emit(result *types.UrlResult, matched *types.MatchedDomains, excludeHosts map[string]struct{}) {
	result.HasMatches = matched.Len() > 0
	for _, domain := range matched.Domains() {
		result.Rules = append(result.Rules, types.FormattedRule{Domain: domain, ResourceTypes: matched.ResourceTypes(domain)})
	}
	for host := range excludeHosts {
		result.RedirectDomains = append(result.RedirectDomains, host)
	}
}

// evalOnDocEnabled reports whether the document-start instrumentation script
// should be injected: enabled by default, disabled only when explicitly set
// to false per-site (spec.md has no global toggle for this field).
func evalOnDocEnabled(site *types.SiteConfig) bool {
	return site.EvalOnDoc == nil || *site.EvalOnDoc
}

func classifyChallengeErr(err error) types.ErrorKind {
	switch {
	case errors.Is(err, challenge.ErrLoopDetected):
		return types.ErrorKindLoopDetected
	case errors.Is(err, challenge.ErrMaxRetriesExceeded):
		return types.ErrorKindMaxRetriesExceeded
	case errors.Is(err, challenge.ErrRequiresHuman):
		return types.ErrorKindRequiresHuman
	default:
		return types.ErrorKindPageError
	}
}

// applyIdentity implements spec.md §4.F.4.
func (p *Pipeline) applyIdentity(ctx context.Context, site *types.SiteConfig, rng *rand.Rand) {
	if ua, ok := ResolveUserAgent(site.UserAgent); ok {
		if err := chromedp.Run(ctx, emulation.SetUserAgentOverride(ua)); err != nil {
			p.logger.Debug("user-agent override failed", zap.Error(err))
		}
		if headers := SecChUAHeaders(site.UserAgent); headers != nil {
			extra := network.Headers{}
			for k, v := range headers {
				extra[k] = v
			}
			if err := chromedp.Run(ctx, network.SetExtraHTTPHeaders(extra)); err != nil {
				p.logger.Debug("sec-ch-ua header override failed", zap.Error(err))
			}
		}
	}

	if site.IsBrave {
		injectDocumentStartScript(ctx, p.logger, "brave-spoof", BraveSpoofScript())
	}

	if script := FingerprintScript(string(site.FingerprintProtection.Mode), rng); script != "" {
		injectDocumentStartScript(ctx, p.logger, "fingerprint-protection", script)
	}
}

// clearSiteData wipes cookies and the HTTP cache (spec.md §4.F.5).
func clearSiteData(ctx context.Context, logger *zap.Logger) {
	if err := chromedp.Run(ctx, network.ClearBrowserCookies(), network.ClearBrowserCache()); err != nil {
		logger.Debug("site-data clearing failed", zap.Error(err))
	}
}

// settle waits for network idle (no in-flight requests for settleIdleGap),
// capped at settleCap. Implemented via a request-count listener rather than
// chromedp's higher-level helpers so it composes with the fetch-interception
// listener already attached to this tab.
func settle(ctx context.Context) {
	deadline := time.Now().Add(settleCap)
	lastActivity := time.Now()
	inFlight := 0

	listenCtx, stop := context.WithCancel(ctx)
	defer stop()

	chromedp.ListenTarget(listenCtx, func(ev interface{}) {
		switch ev.(type) {
		case *network.EventRequestWillBeSent:
			inFlight++
			lastActivity = time.Now()
		case *network.EventLoadingFinished, *network.EventLoadingFailed:
			if inFlight > 0 {
				inFlight--
			}
			lastActivity = time.Now()
		}
	})

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if time.Now().After(deadline) {
				return
			}
			if inFlight == 0 && time.Since(lastActivity) >= settleIdleGap {
				return
			}
		}
	}
}

// interact performs low-intensity pseudo-random mouse movement, grounded on
// chromedp's own cdproto/input package (already part of the chromedp stack
// this module depends on) rather than any teacher file -- the teacher's
// render service never simulates user interaction.
func interact(ctx context.Context, rng *rand.Rand) {
	x := float64(200 + rng.Intn(800))
	y := float64(200 + rng.Intn(400))
	_ = chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return input.DispatchMouseEvent(input.MouseMoved, x, y).Do(ctx)
	}))
}

// reloadLoop implements spec.md §4.F.11.
func (p *Pipeline) reloadLoop(ctx context.Context, site *types.SiteConfig, registrableDomain string) {
	extra := site.Reload - 1
	if extra <= 0 {
		return
	}

	ignoreCache := site.ForceReload.All || site.ForceReload.MatchesHost(registrableDomain)

	for i := 0; i < extra; i++ {
		if !pageStillValid(ctx, 5*time.Second) {
			p.logger.Debug("reload skipped, page no longer valid")
			return
		}
		if site.WindowCleanup.Mode != types.WindowCleanupOff {
			clearSiteData(ctx, p.logger)
		}
		if err := reload(ctx, 15*time.Second, ignoreCache); err != nil {
			p.logger.Debug("reload failed, stopping remaining reloads", zap.Error(err))
			return
		}
	}
}

// chromedpPage adapts a tab context to the challenge.Page contract.
type chromedpPage struct {
	ctx context.Context
}

func (c *chromedpPage) Eval(ctx context.Context, expr string, out interface{}) error {
	return chromedp.Run(c.ctx, chromedp.Evaluate(expr, out))
}

func (c *chromedpPage) Click(ctx context.Context, selector string) error {
	return chromedp.Run(c.ctx, chromedp.Click(selector, chromedp.ByQuery))
}

func (c *chromedpPage) CurrentURL(ctx context.Context) (string, error) {
	var url string
	err := chromedp.Run(c.ctx, chromedp.Location(&url))
	return url, err
}
