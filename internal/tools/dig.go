package tools

import (
	"context"
	"strings"
	"time"
)

// DigAdapter runs `dig` as a subprocess (spec.md §4.D).
type DigAdapter struct {
	binaryPath string
}

// NewDigAdapter builds a DigAdapter. binaryPath defaults to "dig".
func NewDigAdapter(binaryPath string) *DigAdapter {
	if binaryPath == "" {
		binaryPath = "dig"
	}
	return &DigAdapter{binaryPath: binaryPath}
}

// Lookup queries name for recordType (default "A"), returning the trimmed
// `+short` output.
func (a *DigAdapter) Lookup(ctx context.Context, name, recordType string, timeout time.Duration) (string, error) {
	if recordType == "" {
		recordType = "A"
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	out, err := runSubprocess(ctx, timeout, a.binaryPath, name, recordType, "+short")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// SubjectName picks the root domain or the full subdomain to query, per
// site.dig_subdomain (spec.md §4.D).
func SubjectName(rootDomain, fullHost string, digSubdomain bool) string {
	if digSubdomain && fullHost != "" {
		return fullHost
	}
	return rootDomain
}
