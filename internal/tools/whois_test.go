package tools

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgecomet/netscan/pkg/types"
)

func TestServerSelectorCycle(t *testing.T) {
	s := NewServerSelector([]string{"a", "b", "c"}, types.WhoisServerCycle)
	got := []string{s.Pick(), s.Pick(), s.Pick(), s.Pick()}
	assert.Equal(t, []string{"a", "b", "c", "a"}, got)
}

func TestServerSelectorEmpty(t *testing.T) {
	s := NewServerSelector(nil, types.WhoisServerRandom)
	assert.Equal(t, "", s.Pick())
}

func TestServerSelectorSingle(t *testing.T) {
	s := NewServerSelector([]string{"only"}, types.WhoisServerRandom)
	assert.Equal(t, "only", s.Pick())
	assert.Equal(t, "only", s.Pick())
}

func TestTldOf(t *testing.T) {
	assert.Equal(t, "com", tldOf("example.com"))
	assert.Equal(t, "uk", tldOf("example.co.uk"))
	assert.Equal(t, "test", tldOf("test"))
}

func TestWhoisAdapterThrottleSpacesCalls(t *testing.T) {
	a := NewWhoisAdapter("")
	a.SetMinDelay(30 * time.Millisecond)

	start := time.Now()
	require.NoError(t, a.throttle(context.Background()))
	require.NoError(t, a.throttle(context.Background()))
	require.NoError(t, a.throttle(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
}

func TestWhoisAdapterThrottleNoDelayIsNoop(t *testing.T) {
	a := NewWhoisAdapter("")
	start := time.Now()
	require.NoError(t, a.throttle(context.Background()))
	assert.Less(t, time.Since(start), 10*time.Millisecond)
}

func TestWhoisAdapterThrottleRespectsCancellation(t *testing.T) {
	a := NewWhoisAdapter("")
	a.SetMinDelay(time.Hour)
	require.NoError(t, a.throttle(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, a.throttle(ctx), context.Canceled)
}
