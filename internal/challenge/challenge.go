// Package challenge defines the pluggable post-navigation "verify you are
// human" / phishing-interstitial handler contract spec.md §4.F.8 and §9
// describe: the core delegates detection and click-through to opaque,
// swappable strategies rather than implementing anti-bot heuristics itself.
package challenge

import (
	"context"
	"errors"
	"time"
)

// Kind classifies what a Detect call found on the page.
type Kind string

const (
	KindNone      Kind = ""
	KindCloudflare Kind = "cloudflare"
	KindPhishing  Kind = "phishing_warning"
	KindCaptcha   Kind = "captcha"
	KindUnknown   Kind = "unknown"
)

// Errors a Handler.Solve may return, mapped to spec.md §7's challenge-handler
// failure error kinds (max_retries_exceeded, loop_detected, requires_human).
var (
	ErrMaxRetriesExceeded = errors.New("challenge: max retries exceeded")
	ErrLoopDetected       = errors.New("challenge: loop detected")
	ErrRequiresHuman      = errors.New("challenge: requires human interaction")
)

// Page is the minimal surface a Handler needs from the pipeline's tab
// context -- kept small and interface-shaped so test doubles never need a
// real browser.
type Page interface {
	// Eval runs a JS expression against the current document and decodes the
	// result into out (pass a pointer), returning an error on eval failure.
	Eval(ctx context.Context, expr string, out interface{}) error
	// Click performs a native click at the element matched by selector.
	Click(ctx context.Context, selector string) error
	// CurrentURL returns the page's current URL.
	CurrentURL(ctx context.Context) (string, error)
}

// Handler is a pluggable challenge-handling strategy.
type Handler interface {
	// Detect inspects the page and reports what kind of challenge, if any,
	// is present.
	Detect(ctx context.Context, page Page) (Kind, error)
	// Solve attempts to pass the detected challenge, bounded by timeout and
	// retries. Returns one of the sentinel errors above on failure.
	Solve(ctx context.Context, page Page, timeout time.Duration, maxRetries int) error
}

// NoopHandler never detects a challenge. It is the default when neither
// challenge_bypass nor phish_bypass is enabled for a site, and the
// reference implementation of the Handler contract (spec.md §9).
type NoopHandler struct{}

// Detect always reports KindNone.
func (NoopHandler) Detect(ctx context.Context, page Page) (Kind, error) {
	return KindNone, nil
}

// Solve is a no-op success; NoopHandler is never asked to solve anything
// since Detect never reports a challenge.
func (NoopHandler) Solve(ctx context.Context, page Page, timeout time.Duration, maxRetries int) error {
	return nil
}

// Dispatch runs detect-then-solve against handler, bounding Solve by
// timeout and returning its error unchanged (no reclassification is done
// here). Returns KindNone with no error when nothing was detected.
func Dispatch(ctx context.Context, handler Handler, page Page, timeout time.Duration, maxRetries int) (Kind, error) {
	if handler == nil {
		handler = NoopHandler{}
	}

	kind, err := handler.Detect(ctx, page)
	if err != nil || kind == KindNone {
		return kind, err
	}

	solveCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := handler.Solve(solveCtx, page, timeout, maxRetries); err != nil {
		return kind, err
	}
	return kind, nil
}
