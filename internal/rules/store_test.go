package rules

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgecomet/netscan/pkg/types"
)

func TestStoreRenderPlain(t *testing.T) {
	s := NewStore()
	s.Add(types.UrlResult{
		URL: "https://host.test/",
		Rules: []types.FormattedRule{
			{Domain: "ads.other"},
			{Domain: "tracker.other"},
		},
	})

	out, err := s.Render(RenderOptions{Formatter: NewFormatter(SyntaxPlain, "")})
	require.NoError(t, err)
	assert.Equal(t, "ads.other\ntracker.other\n", out)
}

func TestStoreRenderShowTitles(t *testing.T) {
	s := NewStore()
	s.Add(types.UrlResult{
		URL:   "https://host.test/",
		Rules: []types.FormattedRule{{Domain: "ads.other"}},
	})

	out, err := s.Render(RenderOptions{
		Formatter:  NewFormatter(SyntaxPlain, ""),
		ShowTitles: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "! https://host.test/\nads.other\n", out)
}

func TestStoreRenderRemoveDupes(t *testing.T) {
	s := NewStore()
	s.Add(types.UrlResult{Rules: []types.FormattedRule{{Domain: "ads.other"}}})
	s.Add(types.UrlResult{Rules: []types.FormattedRule{{Domain: "ads.other"}, {Domain: "new.test"}}})

	out, err := s.Render(RenderOptions{
		Formatter:   NewFormatter(SyntaxPlain, ""),
		RemoveDupes: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "ads.other\nnew.test\n", out)
}

// TestStoreRenderCompareAgainstBaseline exercises spec.md §8 scenario S6 /
// invariant #5 (compare idempotence): a baseline containing exactly the
// domains a run would emit yields no non-comment output, and any new domain
// still appears.
func TestStoreRenderCompareAgainstBaseline(t *testing.T) {
	dir := t.TempDir()
	baseline := filepath.Join(dir, "baseline.txt")
	require.NoError(t, os.WriteFile(baseline, []byte("‖ads.other^\n"), 0o644))

	s := NewStore()
	s.Add(types.UrlResult{Rules: []types.FormattedRule{
		{Domain: "ads.other"},
		{Domain: "new.test"},
	}})

	out, err := s.Render(RenderOptions{
		Formatter:    NewFormatter(SyntaxAdblock, ""),
		BaselinePath: baseline,
	})
	require.NoError(t, err)
	assert.Equal(t, "‖new.test^\n", out)
}

func TestStoreRenderCompareIdempotence(t *testing.T) {
	dir := t.TempDir()
	baseline := filepath.Join(dir, "baseline.txt")
	require.NoError(t, os.WriteFile(baseline, []byte("‖ads.other^\n‖new.test^\n"), 0o644))

	s := NewStore()
	s.Add(types.UrlResult{Rules: []types.FormattedRule{
		{Domain: "ads.other"},
		{Domain: "new.test"},
	}})

	out, err := s.Render(RenderOptions{
		Formatter:    NewFormatter(SyntaxAdblock, ""),
		BaselinePath: baseline,
	})
	require.NoError(t, err)
	assert.Equal(t, "", out)
}

func TestNormalizeRuleLine(t *testing.T) {
	cases := map[string]string{
		"‖ads.other^":               "ads.other",
		"‖ads.other^$script,xhr":    "ads.other",
		"127.0.0.1 ads.other":       "ads.other",
		"0.0.0.0 ads.other":         "ads.other",
		"ads.other":                 "ads.other",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeRuleLine(in), in)
	}
}

func TestWriteToAppendVsTruncate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.txt")

	require.NoError(t, WriteTo(path, "first\n", false))
	require.NoError(t, WriteTo(path, "second\n", true))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "first\nsecond\n", string(content))

	require.NoError(t, WriteTo(path, "only\n", false))
	content, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "only\n", string(content))
}
