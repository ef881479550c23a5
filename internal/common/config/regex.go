package config

import "regexp"

// compileCheck validates that pattern is a compilable regular expression,
// without retaining the compiled form -- callers compile+cache their own
// copies via the smart cache's compiled-pattern registry.
func compileCheck(pattern string) error {
	_, err := regexp.Compile(pattern)
	return err
}
