// navigate.go drives page navigation with redirect-loop protection
// (spec.md §4.F.6), grounded on the teacher's renderer.go navigateAndWait /
// waitForEvent pattern: a chromedp.ListenTarget handler observing
// network.EventRequestWillBeSent's RedirectResponse field, paired with a
// cancellable navigation context.
package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/edgecomet/netscan/internal/common/urlutil"
	"github.com/edgecomet/netscan/pkg/types"
)

// NavigateResult is the outcome of driving one navigation with redirect
// bookkeeping.
type NavigateResult struct {
	FinalURL   string
	StatusCode int
	ErrorKind  types.ErrorKind
	Err        error
}

// samePageRepeatLimit matches spec.md §4.F.6's "same-URL page-load counter >= 3".
const samePageRepeatLimit = 3

// Navigate calls chromedp's page.Navigate and tracks the redirect chain via
// network.EventRequestWillBeSent, rejecting loops/depth-exceeded/same-page
// repeats per spec.md §4.F.6 by cancelling the tab context mid-flight.
func Navigate(ctx context.Context, logger *zap.Logger, rawURL, referer string, timeout time.Duration, redirect *types.RedirectState, firstParty *types.FirstPartySet, excludeHosts map[string]struct{}) NavigateResult {
	navCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var mu sync.Mutex
	var statusCode int
	var rejectKind types.ErrorKind
	samePageCount := map[string]int{}

	listenCtx, stopListen := context.WithCancel(navCtx)
	defer stopListen()

	chromedp.ListenTarget(listenCtx, func(ev interface{}) {
		switch e := ev.(type) {
		case *network.EventRequestWillBeSent:
			if e.RedirectResponse == nil || e.DocumentURL != e.Request.URL {
				return
			}
			mu.Lock()
			statusCode = int(e.RedirectResponse.Status)
			hop := e.Request.URL

			samePageCount[hop]++
			if samePageCount[hop] >= samePageRepeatLimit {
				rejectKind = types.ErrorKindSamePageRepeat
				mu.Unlock()
				cancel()
				return
			}

			if kind := redirect.Advance(hop); kind != types.ErrorKindNone {
				rejectKind = kind
				mu.Unlock()
				cancel()
				return
			}

			if domain := urlutil.RegistrableDomain(hop); domain != "" {
				firstParty.Add(domain)
				excludeHosts[domain] = struct{}{}
			}
			mu.Unlock()

		case *network.EventResponseReceived:
			if e.Response.URL == rawURL || e.Type == network.ResourceTypeDocument {
				mu.Lock()
				if statusCode == 0 {
					statusCode = int(e.Response.Status)
				}
				mu.Unlock()
			}
		}
	})

	var headers chromedp.Action
	if referer != "" {
		headers = network.SetExtraHTTPHeaders(network.Headers{"Referer": referer})
	} else {
		headers = chromedp.ActionFunc(func(context.Context) error { return nil })
	}

	var finalURL string
	err := chromedp.Run(navCtx,
		network.Enable(),
		headers,
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Location(&finalURL),
	)

	mu.Lock()
	kind := rejectKind
	sc := statusCode
	mu.Unlock()

	if kind != types.ErrorKindNone {
		return NavigateResult{FinalURL: finalURL, StatusCode: sc, ErrorKind: kind, Err: ErrRedirectRejected}
	}

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			logger.Debug("navigation soft timeout", zap.String("url", rawURL))
			return NavigateResult{FinalURL: finalURL, StatusCode: sc, Err: nil}
		}
		return NavigateResult{FinalURL: finalURL, StatusCode: sc, Err: errors.Join(ErrNavigationFailed, err)}
	}

	if domain := urlutil.RegistrableDomain(finalURL); domain != "" {
		firstParty.Add(domain)
	}

	return NavigateResult{FinalURL: finalURL, StatusCode: sc}
}

// pageStillValid is a light probe used before a reload (spec.md §4.F.11):
// confirm the page's document still responds to a trivial evaluate call.
func pageStillValid(ctx context.Context, timeout time.Duration) bool {
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	var readyState string
	err := chromedp.Run(probeCtx, chromedp.Evaluate(`document.readyState`, &readyState))
	return err == nil && readyState != ""
}

// reload performs one page reload, optionally bypassing the HTTP cache
// (spec.md §4.F.11's force_reload behavior).
func reload(ctx context.Context, timeout time.Duration, ignoreCache bool) error {
	reloadCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return chromedp.Run(reloadCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		return page.Reload().WithIgnoreCache(ignoreCache).Do(ctx)
	}), chromedp.WaitReady("body", chromedp.ByQuery))
}
