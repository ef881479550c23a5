package tools

import "errors"

// Sentinel errors for the external-tool adapters (spec.md §4.D), grouped by
// subsystem and wrapped with fmt.Errorf("...: %w") at call sites, following
// the teacher's internal/render/chrome/errors.go convention.
var (
	ErrToolTimeout     = errors.New("tools: subprocess timed out")
	ErrToolNonZeroExit = errors.New("tools: subprocess exited non-zero")
	ErrOutputTooLarge  = errors.New("tools: subprocess output exceeded cap")
	ErrNoServers       = errors.New("tools: no servers configured")
)
