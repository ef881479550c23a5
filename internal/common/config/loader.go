// Package config loads and validates the crawler's GlobalConfig/SiteConfig
// document (spec.md §3, §6). Adapted from the teacher's internal/common/config
// package, which loaded CDN edge-routing config (bot aliases, tracking-param
// stripping, host resolution) -- none of which this crawler has any use for;
// only the load/validate/default-application shape survives.
package config

import (
	"fmt"
	"os"

	"github.com/edgecomet/netscan/internal/common/yamlutil"
	"github.com/edgecomet/netscan/pkg/types"
)

// Load reads path, strictly decodes it into a GlobalConfig, applies
// defaults, and validates the result.
func Load(path string) (*types.GlobalConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %q: %w", path, err)
	}

	cfg := &types.GlobalConfig{}
	if err := yamlutil.UnmarshalStrict(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %q: %w", path, err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %q: %w", path, err)
	}

	return cfg, nil
}

// Validator performs the deeper, semantic checks --validate-config runs
// beyond Load's structural pass: regex compilation, known resource-type
// names, cross-field consistency. Grounded on the teacher's
// internal/edge/configtest package, which ran an equivalent expanded
// validation pass over its own edge-routing config ahead of a deploy.
type Validator struct {
	KnownResourceTypes map[string]struct{}
}

// NewValidator builds a Validator with spec.md's Chrome DevTools resource
// type vocabulary.
func NewValidator() *Validator {
	types := map[string]struct{}{}
	for _, t := range []string{
		"document", "stylesheet", "image", "media", "font", "script",
		"texttrack", "xhr", "fetch", "prefetch", "eventsource", "websocket",
		"manifest", "signedexchange", "ping", "cspviolationreport", "preflight", "other",
	} {
		types[t] = struct{}{}
	}
	return &Validator{KnownResourceTypes: types}
}

// Validate runs the full structural + semantic pass over cfg, returning every
// problem found (not just the first) so --validate-config can report
// comprehensively.
func (v *Validator) Validate(cfg *types.GlobalConfig) []error {
	var errs []error

	if err := cfg.Validate(); err != nil {
		errs = append(errs, err)
	}

	for i, site := range cfg.Sites {
		for _, pattern := range site.FilterRegex {
			if err := compileCheck(pattern); err != nil {
				errs = append(errs, fmt.Errorf("site[%d] filterRegex %q: %w", i, pattern, err))
			}
		}
		for _, pattern := range site.Blocked {
			if err := compileCheck(pattern); err != nil {
				errs = append(errs, fmt.Errorf("site[%d] blocked %q: %w", i, pattern, err))
			}
		}
		for _, rt := range site.ResourceType {
			if _, ok := v.KnownResourceTypes[rt]; !ok {
				errs = append(errs, fmt.Errorf("site[%d] resourceTypes: unknown type %q", i, rt))
			}
		}
	}

	return errs
}
