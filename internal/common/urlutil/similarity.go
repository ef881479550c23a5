package urlutil

import (
	"strings"

	"golang.org/x/net/publicsuffix"
)

// BaseLabel derives the similarity-comparison base label for a domain: the
// registrable label with "www." and the public suffix (which may be a
// multi-part suffix like "co.uk") stripped off (spec.md §4.A).
func BaseLabel(domain string) string {
	domain = strings.TrimPrefix(strings.ToLower(domain), "www.")

	suffix, _ := publicsuffix.PublicSuffix(domain)
	if suffix != "" && strings.HasSuffix(domain, suffix) {
		base := strings.TrimSuffix(domain, suffix)
		base = strings.TrimSuffix(base, ".")
		if base != "" {
			return base
		}
	}
	return domain
}

// Similarity computes spec.md §4.A/§8's symmetric similarity score in [0,100]:
//
//	100 * (len(longer) - edit_distance(a,b)) / len(longer), rounded
//
// comparing the two domains' base labels. similarity(a,a) == 100.
func Similarity(a, b string) int {
	la, lb := BaseLabel(a), BaseLabel(b)
	if la == lb {
		return 100
	}

	dist := levenshtein(la, lb)
	longer := len(la)
	if len(lb) > longer {
		longer = len(lb)
	}
	if longer == 0 {
		return 100
	}

	score := float64(longer-dist) / float64(longer) * 100
	if score < 0 {
		score = 0
	}
	return int(score + 0.5)
}

// levenshtein computes the classic edit distance between two strings.
// Implemented directly: no edit-distance library appears anywhere in the
// retrieval pack, so this stays on the standard library per DESIGN.md.
func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			del := prev[j] + 1
			ins := curr[j-1] + 1
			sub := prev[j-1] + cost
			m := del
			if ins < m {
				m = ins
			}
			if sub < m {
				m = sub
			}
			curr[j] = m
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}
