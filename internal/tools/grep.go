package tools

import (
	"bytes"
	"context"
	"os/exec"
	"time"
)

// GrepMatch runs `grep -F -i <pattern>` over content, piped via stdin, and
// reports whether it matched (spec.md §4.D: "used only in combination with
// curl-fetched bodies", one pattern per invocation, literal + case-insensitive).
// Used when a site's grep: true opts into the external binary; otherwise
// SubstringMatch below performs the same literal/case-insensitive check
// in-process.
func GrepMatch(ctx context.Context, binaryPath string, content []byte, pattern string) (bool, error) {
	if binaryPath == "" {
		binaryPath = "grep"
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, binaryPath, "-F", "-i", pattern)
	cmd.Stdin = bytes.NewReader(content)

	err := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return false, ErrToolTimeout
	}
	if err != nil {
		// grep exits 1 for "no match" -- not an adapter error, just a miss.
		if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() == 1 {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// SubstringMatch reports whether pattern occurs in content, literal and
// case-insensitive, matching GrepMatch's semantics without shelling out.
// This is the spec.md §6 grep: false default's matcher.
func SubstringMatch(content []byte, pattern string) bool {
	return bytes.Contains(bytes.ToLower(content), bytes.ToLower([]byte(pattern)))
}

// matchOne dispatches to the external grep binary or the in-process
// substring matcher depending on useGrepBinary (site.Grep).
func matchOne(ctx context.Context, useGrepBinary bool, binaryPath string, content []byte, pattern string) (bool, error) {
	if !useGrepBinary {
		return SubstringMatch(content, pattern), nil
	}
	return GrepMatch(ctx, binaryPath, content, pattern)
}

// GrepMatchAll reports whether every pattern matches (AND semantics).
func GrepMatchAll(ctx context.Context, useGrepBinary bool, binaryPath string, content []byte, patterns []string) (bool, error) {
	for _, p := range patterns {
		ok, err := matchOne(ctx, useGrepBinary, binaryPath, content, p)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return len(patterns) > 0, nil
}

// GrepMatchAny reports whether at least one pattern matches (OR semantics).
func GrepMatchAny(ctx context.Context, useGrepBinary bool, binaryPath string, content []byte, patterns []string) (bool, error) {
	for _, p := range patterns {
		ok, err := matchOne(ctx, useGrepBinary, binaryPath, content, p)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}
