package rules

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"sync"

	"github.com/edgecomet/netscan/pkg/types"
)

// Store accumulates UrlResults across all tasks of a run (spec.md §3's
// RuleStore). Mutated only by the orchestrator; final serialization reads
// only and never mutates the accumulated slice.
type Store struct {
	mu      sync.Mutex
	results []types.UrlResult
}

// NewStore creates an empty rule store.
func NewStore() *Store {
	return &Store{}
}

// Add appends one task's result. Safe for concurrent callers; the
// orchestrator's worker goroutines each hold their own UrlResult and call
// this once at task completion (spec.md §5, "the orchestrator-owned result
// slice" is the only cross-task shared mutable state besides the cache).
func (s *Store) Add(result types.UrlResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, result)
}

// Results returns a snapshot of accumulated results in insertion order.
func (s *Store) Results() []types.UrlResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.UrlResult, len(s.results))
	copy(out, s.results)
	return out
}

// Replace swaps the accumulated results wholesale. Used by the
// orchestrator's post-processing safety net (spec.md §4.G), which re-filters
// the full result set once scanning finishes.
func (s *Store) Replace(results []types.UrlResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = results
}

// RenderOptions controls final serialization (spec.md §4.C, §6 CLI surface).
type RenderOptions struct {
	Formatter   *Formatter
	ShowTitles  bool // prepend "! <source-url>" before each task's block
	RemoveDupes bool // drop repeated domain lines, preserving first occurrence
	BaselinePath string // if set, only emit lines absent from this baseline
}

// Render serializes the accumulated results per opts, returning the full
// output text (one rule per line, as spec.md §6 describes).
func (s *Store) Render(opts RenderOptions) (string, error) {
	results := s.Results()

	var baseline map[string]struct{}
	if opts.BaselinePath != "" {
		var err error
		baseline, err = loadBaseline(opts.BaselinePath)
		if err != nil {
			return "", fmt.Errorf("load baseline %q: %w", opts.BaselinePath, err)
		}
	}

	seen := make(map[string]struct{})
	var b strings.Builder

	for _, res := range results {
		if len(res.Rules) == 0 {
			continue
		}
		if opts.ShowTitles {
			b.WriteString(TitleHeader(res.URL))
			b.WriteString("\n")
		}
		for _, rule := range res.Rules {
			line := opts.Formatter.FormatDomainWithTypes(rule.Domain, rule.ResourceTypes)

			if opts.RemoveDupes {
				if _, dup := seen[line]; dup {
					continue
				}
				seen[line] = struct{}{}
			}

			if baseline != nil {
				if _, present := baseline[NormalizeRuleLine(line)]; present {
					continue
				}
			}

			b.WriteString(line)
			b.WriteString("\n")
		}
	}

	return b.String(), nil
}

// WriteTo writes the rendered output to path, truncating unless append is
// set (spec.md §4.C "Append mode").
func WriteTo(path, content string, appendMode bool) error {
	flags := os.O_CREATE | os.O_WRONLY
	if appendMode {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return fmt.Errorf("open output %q: %w", path, err)
	}
	defer f.Close()

	if _, err := io.WriteString(f, content); err != nil {
		return fmt.Errorf("write output %q: %w", path, err)
	}
	return nil
}

var trailingModifier = regexp.MustCompile(`\$.*$`)

// NormalizeRuleLine strips syntax decoration so lines from different
// formatters can be compared for §4.C's "Compare" pass and §8's
// compare-idempotence invariant: strip '‖', '^', "127.0.0.1 ", "0.0.0.0 ",
// and any trailing "$..." modifier.
func NormalizeRuleLine(line string) string {
	line = strings.TrimSpace(line)
	line = strings.TrimPrefix(line, "‖")
	line = strings.TrimPrefix(line, "127.0.0.1 ")
	line = strings.TrimPrefix(line, "0.0.0.0 ")
	line = trailingModifier.ReplaceAllString(line, "")
	line = strings.TrimSuffix(line, "^")
	return line
}

// loadBaseline reads a prior output file line-by-line, normalizes each
// non-comment line, and returns the resulting set (spec.md §4.C "Compare").
func loadBaseline(path string) (map[string]struct{}, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	set := make(map[string]struct{})
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if IsCommentLine(line) || strings.TrimSpace(line) == "" {
			continue
		}
		set[NormalizeRuleLine(line)] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return set, nil
}
