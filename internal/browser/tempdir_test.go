package browser

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweepTempDirsRemovesOwnedDirsOnly(t *testing.T) {
	root := t.TempDir()
	t.Setenv("TMPDIR", root)

	owned := filepath.Join(root, "netscan-chrome-3-abc123")
	unrelated := filepath.Join(root, "some-other-tool-xyz")
	require.NoError(t, os.Mkdir(owned, 0o755))
	require.NoError(t, os.Mkdir(unrelated, 0o755))

	n, err := SweepTempDirs()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = os.Stat(owned)
	assert.True(t, os.IsNotExist(err))

	_, err = os.Stat(unrelated)
	assert.NoError(t, err)
}
