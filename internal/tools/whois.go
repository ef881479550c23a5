package tools

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/edgecomet/netscan/pkg/types"
)

// ServerSelector hands out one server at a time from a list, per
// spec.md §4.D's whois_server_mode (random|cycle). Safe for concurrent use.
type ServerSelector struct {
	servers []string
	mode    types.WhoisServerMode
	next    atomic.Int64
}

// NewServerSelector builds a selector over servers using mode.
func NewServerSelector(servers []string, mode types.WhoisServerMode) *ServerSelector {
	return &ServerSelector{servers: servers, mode: mode}
}

// Pick returns the next server to use, or "" if none are configured.
func (s *ServerSelector) Pick() string {
	if len(s.servers) == 0 {
		return ""
	}
	if len(s.servers) == 1 {
		return s.servers[0]
	}
	if s.mode == types.WhoisServerCycle {
		i := s.next.Add(1) - 1
		return s.servers[int(i)%len(s.servers)]
	}
	return s.servers[rand.Intn(len(s.servers))]
}

// WhoisOptions carries the per-lookup retry/fallback knobs from SiteConfig
// (spec.md §3/§4.D).
type WhoisOptions struct {
	Servers           []string
	ServerMode        types.WhoisServerMode
	Timeout           time.Duration
	MaxRetries        int
	TimeoutMultiplier float64
	UseFallback       bool
	FallbackServers   map[string]string // TLD -> server, used when UseFallback is set
}

// WhoisAdapter runs `whois` as a subprocess, with retry/timeout-multiplier
// and TLD-fallback-server logic (spec.md §4.D). Lookup calls are throttled
// process-wide by minDelay (spec.md §3's whois_delay) since a single
// WhoisAdapter is shared across every concurrent site.
type WhoisAdapter struct {
	binaryPath string
	minDelay   time.Duration

	rateMu   sync.Mutex
	lastCall time.Time
}

// NewWhoisAdapter builds a WhoisAdapter. binaryPath defaults to "whois".
func NewWhoisAdapter(binaryPath string) *WhoisAdapter {
	if binaryPath == "" {
		binaryPath = "whois"
	}
	return &WhoisAdapter{binaryPath: binaryPath}
}

// SetMinDelay configures the minimum spacing enforced between the start of
// successive Lookup calls, per spec.md §3's global whois_delay.
func (a *WhoisAdapter) SetMinDelay(d time.Duration) {
	a.minDelay = d
}

// throttle blocks until minDelay has elapsed since the previous Lookup
// started, or returns early if ctx is cancelled first.
func (a *WhoisAdapter) throttle(ctx context.Context) error {
	if a.minDelay <= 0 {
		return nil
	}
	a.rateMu.Lock()
	wait := a.minDelay - time.Since(a.lastCall)
	if wait < 0 {
		wait = 0
	}
	a.lastCall = time.Now().Add(wait)
	a.rateMu.Unlock()

	if wait <= 0 {
		return nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Lookup performs a WHOIS query for domain, retrying on transient failure up
// to opts.MaxRetries, multiplying the timeout by opts.TimeoutMultiplier each
// attempt, and falling back to a TLD-specific server when opts.UseFallback
// is set and the primary server list is exhausted.
func (a *WhoisAdapter) Lookup(ctx context.Context, domain string, opts WhoisOptions) (string, error) {
	if err := a.throttle(ctx); err != nil {
		return "", err
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	multiplier := opts.TimeoutMultiplier
	if multiplier <= 0 {
		multiplier = 1.5
	}

	selector := NewServerSelector(opts.Servers, opts.ServerMode)

	var lastErr error
	attempts := opts.MaxRetries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		server := selector.Pick()
		out, err := a.query(ctx, domain, server, timeout)
		if err == nil {
			return string(out), nil
		}
		lastErr = err
		timeout = time.Duration(float64(timeout) * multiplier)
	}

	if opts.UseFallback && opts.FallbackServers != nil {
		if server, ok := opts.FallbackServers[tldOf(domain)]; ok {
			out, err := a.query(ctx, domain, server, timeout)
			if err == nil {
				return string(out), nil
			}
			lastErr = err
		}
	}

	return "", fmt.Errorf("whois lookup %q: %w", domain, lastErr)
}

func (a *WhoisAdapter) query(ctx context.Context, domain, server string, timeout time.Duration) ([]byte, error) {
	args := make([]string, 0, 3)
	if server != "" {
		args = append(args, "-h", server)
	}
	args = append(args, domain)
	return runSubprocess(ctx, timeout, a.binaryPath, args...)
}

func tldOf(domain string) string {
	for i := len(domain) - 1; i >= 0; i-- {
		if domain[i] == '.' {
			return domain[i+1:]
		}
	}
	return domain
}
