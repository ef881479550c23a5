package browser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	t.Run("default config is valid", func(t *testing.T) {
		require.NoError(t, DefaultConfig().Validate())
	})

	t.Run("rejects non-numeric pool size", func(t *testing.T) {
		c := DefaultConfig()
		c.PoolSize = "lots"
		assert.Error(t, c.Validate())
	})

	t.Run("rejects zero restart count", func(t *testing.T) {
		c := DefaultConfig()
		c.RestartAfterCount = 0
		assert.Error(t, c.Validate())
	})
}

func TestCalculatePoolSizeExplicit(t *testing.T) {
	c := DefaultConfig()
	c.PoolSize = "4"
	assert.Equal(t, 4, c.CalculatePoolSize())
}

func TestCalculatePoolSizeAutoIsClamped(t *testing.T) {
	c := DefaultConfig()
	c.PoolSize = "auto"
	size := c.CalculatePoolSize()
	assert.GreaterOrEqual(t, size, 2)
	assert.LessOrEqual(t, size, 50)
}

func TestIsCriticalError(t *testing.T) {
	assert.True(t, IsCriticalError(errString("Protocol error (Target.closeTarget): no such target")))
	assert.True(t, IsCriticalError(errString("context canceled")))
	assert.False(t, IsCriticalError(errString("navigation timed out")))
	assert.False(t, IsCriticalError(nil))
}

type errString string

func (e errString) Error() string { return string(e) }
