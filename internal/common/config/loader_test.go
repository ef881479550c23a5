package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
ignoreDomains:
  - example.com
max_concurrent_sites: 4
sites:
  - url: "https://host.test/"
    filterRegex:
      - tracker
`

func TestLoadAppliesDefaultsAndValidates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.MaxConcurrentSites)
	assert.Equal(t, 80, cfg.IgnoreSimilarThreshold)
	assert.Equal(t, 80, cfg.ResourceCleanupInterval)
	assert.Len(t, cfg.Sites, 1)
	assert.Equal(t, []string{"https://host.test/"}, []string(cfg.Sites[0].URL))
}

func TestLoadRejectsUnknownField(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("typo_field: true\nsites: []\n"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	assert.Error(t, err)
}

func TestValidatorCatchesBadRegexAndUnknownResourceType(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	cfg.Sites[0].FilterRegex = append(cfg.Sites[0].FilterRegex, "(unclosed")
	cfg.Sites[0].ResourceType = []string{"not-a-real-type"}

	v := NewValidator()
	errs := v.Validate(cfg)
	assert.Len(t, errs, 2)
}
