package tools

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"time"
)

// MaxOutputBytes caps captured subprocess output at 10 MiB (spec.md §4.D).
const MaxOutputBytes = 10 << 20

// runSubprocess invokes name with args under ctx, enforcing timeout and the
// output cap. No shell is involved -- argv vectors only, per spec.md §4.D.
func runSubprocess(ctx context.Context, timeout time.Duration, name string, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...)

	var stdout bytes.Buffer
	limited := &capBuffer{max: MaxOutputBytes}
	cmd.Stdout = io.MultiWriter(&stdout, limited)
	cmd.Stderr = nil

	err := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return nil, fmt.Errorf("%s: %w", name, ErrToolTimeout)
	}
	if limited.exceeded {
		return nil, fmt.Errorf("%s: %w", name, ErrOutputTooLarge)
	}
	if err != nil {
		if _, isExit := err.(*exec.ExitError); isExit {
			return stdout.Bytes(), fmt.Errorf("%s: %w", name, ErrToolNonZeroExit)
		}
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return stdout.Bytes(), nil
}

// capBuffer counts bytes written without storing them, flagging the cap.
type capBuffer struct {
	max      int
	written  int
	exceeded bool
}

func (c *capBuffer) Write(p []byte) (int, error) {
	c.written += len(p)
	if c.written > c.max {
		c.exceeded = true
	}
	return len(p), nil
}
