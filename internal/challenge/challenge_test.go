package challenge

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPage struct{}

func (stubPage) Eval(ctx context.Context, expr string, out interface{}) error { return nil }
func (stubPage) Click(ctx context.Context, selector string) error            { return nil }
func (stubPage) CurrentURL(ctx context.Context) (string, error)              { return "https://example.com", nil }

func TestNoopHandlerNeverDetects(t *testing.T) {
	kind, err := Dispatch(context.Background(), NoopHandler{}, stubPage{}, time.Second, 3)
	require.NoError(t, err)
	assert.Equal(t, KindNone, kind)
}

func TestDispatchDefaultsToNoop(t *testing.T) {
	kind, err := Dispatch(context.Background(), nil, stubPage{}, time.Second, 3)
	require.NoError(t, err)
	assert.Equal(t, KindNone, kind)
}

type stubHandler struct {
	kind    Kind
	solveErr error
}

func (h stubHandler) Detect(ctx context.Context, page Page) (Kind, error) { return h.kind, nil }
func (h stubHandler) Solve(ctx context.Context, page Page, timeout time.Duration, maxRetries int) error {
	return h.solveErr
}

func TestDispatchPropagatesSolveFailure(t *testing.T) {
	h := stubHandler{kind: KindCloudflare, solveErr: ErrLoopDetected}
	kind, err := Dispatch(context.Background(), h, stubPage{}, time.Second, 3)
	assert.Equal(t, KindCloudflare, kind)
	assert.ErrorIs(t, err, ErrLoopDetected)
}
