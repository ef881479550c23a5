package browser

import (
	"errors"
	"strings"
)

// Session errors, returned while driving a page through the pipeline.
var (
	ErrWaitTimeout      = errors.New("browser: wait timeout exceeded")
	ErrNavigateFailed   = errors.New("browser: navigation failed")
	ErrResponseTooLarge = errors.New("browser: response exceeds maximum size limit")
	ErrInterceptTimeout = errors.New("browser: request interception enable timed out")
)

// Pool errors, returned during instance lifecycle management.
var (
	ErrPoolShutdown  = errors.New("browser: pool is shutting down")
	ErrInstanceDead  = errors.New("browser: instance is dead")
	ErrRestartFailed = errors.New("browser: restart failed")
)

// criticalErrorSubstrings classifies a CDP/chromedp error as one that
// demands an immediate browser restart (spec.md §7's "Critical browser
// error" kind), grounded on the same substring-match approach the teacher's
// renderer.go uses to classify timeouts vs. protocol failures.
var criticalErrorSubstrings = []string{
	"Protocol error",
	"Target closed",
	"Browser disconnected",
	"Network.enable timed out",
	"context canceled",
}

// IsCriticalError reports whether err's text matches a known critical
// browser failure mode.
func IsCriticalError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, s := range criticalErrorSubstrings {
		if strings.Contains(msg, strings.ToLower(s)) {
			return true
		}
	}
	return false
}
