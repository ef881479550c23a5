package pipeline

import "errors"

// Sentinel errors returned by the per-URL pipeline (spec.md §4.F/§7).
var (
	ErrBothPartiesDisabled = errors.New("pipeline: first-party and third-party both disabled, task skipped")
	ErrOpenPageFailed      = errors.New("pipeline: failed to open page")
	ErrNavigationFailed    = errors.New("pipeline: navigation failed")
	ErrRedirectRejected    = errors.New("pipeline: redirect rejected")
	ErrSettleTimeout       = errors.New("pipeline: settle wait timed out")
	ErrReloadFailed        = errors.New("pipeline: reload failed")
)
