// Package rules accumulates matched domains per task and serializes them to
// one of seven output syntaxes (spec.md §4.C). Grounded on the teacher's
// internal/edge/orchestrator response-writer shape (a small, dependency-free
// struct whose methods do one kind of formatting each, no business logic).
package rules

import (
	"fmt"
	"sort"
	"strings"
)

// Syntax selects the output line grammar (spec.md §4.C / §6).
type Syntax string

const (
	SyntaxAdblock      Syntax = "adblock"
	SyntaxAdblockRules Syntax = "adblock-rules"
	SyntaxHostsLocal   Syntax = "hosts-local"
	SyntaxPlain        Syntax = "plain"
	SyntaxDnsmasq      Syntax = "dnsmasq"
	SyntaxDnsmasqOld   Syntax = "dnsmasq-old"
	SyntaxUnbound      Syntax = "unbound"
	SyntaxPrivoxy      Syntax = "privoxy"
	SyntaxPihole       Syntax = "pihole"
)

// DefaultHostsIP is the address used by hosts-local mode when none is given.
const DefaultHostsIP = "127.0.0.1"

// Formatter renders matched domains into one of the seven output syntaxes.
// Stateless aside from fixed options -- pure formatting, no I/O.
type Formatter struct {
	Syntax  Syntax
	HostsIP string // only used by SyntaxHostsLocal
}

// NewFormatter builds a Formatter, defaulting HostsIP when unset.
func NewFormatter(syntax Syntax, hostsIP string) *Formatter {
	if hostsIP == "" {
		hostsIP = DefaultHostsIP
	}
	return &Formatter{Syntax: syntax, HostsIP: hostsIP}
}

// FormatDomain renders a single domain line with no resource-type qualifier.
func (f *Formatter) FormatDomain(domain string) string {
	switch f.Syntax {
	case SyntaxAdblock, SyntaxAdblockRules:
		return "‖" + domain + "^"
	case SyntaxHostsLocal:
		return f.HostsIP + " " + domain
	case SyntaxDnsmasq:
		return "local=/" + domain + "/"
	case SyntaxDnsmasqOld:
		return "server=/" + domain + "/"
	case SyntaxUnbound:
		return fmt.Sprintf("local-zone: %q always_null", domain+".")
	case SyntaxPrivoxy:
		return "{ +block } ." + domain
	case SyntaxPihole:
		return fmt.Sprintf(`(^|\.)%s$`, regexpEscapeDots(domain))
	case SyntaxPlain:
		fallthrough
	default:
		return domain
	}
}

// FormatDomainWithTypes renders a domain with its resource-type annotation.
// Only SyntaxAdblockRules distinguishes this from FormatDomain; every other
// syntax has no type-qualifier grammar and falls back to the plain line.
func (f *Formatter) FormatDomainWithTypes(domain string, resourceTypes []string) string {
	if f.Syntax != SyntaxAdblockRules || len(resourceTypes) == 0 {
		return f.FormatDomain(domain)
	}
	sorted := append([]string(nil), resourceTypes...)
	sort.Strings(sorted)
	return "‖" + domain + "^$" + strings.Join(sorted, ",")
}

func regexpEscapeDots(domain string) string {
	return strings.ReplaceAll(domain, ".", `\.`)
}

// TitleHeader renders the "! <source-url>" comment line show_titles prepends
// before a task's block.
func TitleHeader(sourceURL string) string {
	return "! " + sourceURL
}

// IsCommentLine reports whether a rendered output line is a comment, per
// spec.md §6 ("Comment lines begin with !").
func IsCommentLine(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), "!")
}
