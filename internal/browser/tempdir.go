package browser

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// tempDirPrefix matches the naming NewInstance.launch uses for its per-launch
// user-data directories.
const tempDirPrefix = "netscan-chrome-"

// SweepTempDirs deletes any netscan-owned Chrome user-data directories left
// in the OS temp root -- the "comprehensive sweep" spec.md §4.E describes as
// a second, broader pass beyond each instance's own Terminate() cleanup
// (e.g. after a killed process skipped its own teardown). Returns the
// number of directories removed.
func SweepTempDirs() (int, error) {
	root := os.TempDir()
	entries, err := os.ReadDir(root)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), tempDirPrefix) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(root, entry.Name())); err == nil {
			removed++
		}
	}
	return removed, nil
}

// TempSweepWorker periodically runs SweepTempDirs in the background, in
// case a crashed instance skipped its own Terminate() cleanup. Grounded on
// the teacher's internal/edge/cleanup.FilesystemCleanupWorker ticker shape.
type TempSweepWorker struct {
	interval time.Duration
	logger   *zap.Logger
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewTempSweepWorker builds a worker that sweeps every interval.
func NewTempSweepWorker(interval time.Duration, logger *zap.Logger) *TempSweepWorker {
	ctx, cancel := context.WithCancel(context.Background())
	return &TempSweepWorker{interval: interval, logger: logger, ctx: ctx, cancel: cancel}
}

// Start launches the background sweep loop.
func (w *TempSweepWorker) Start() {
	ticker := time.NewTicker(w.interval)
	w.wg.Add(1)

	go func() {
		defer w.wg.Done()
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if n, err := SweepTempDirs(); err != nil {
					w.logger.Warn("temp sweep failed", zap.Error(err))
				} else if n > 0 {
					w.logger.Info("swept leftover browser temp directories", zap.Int("count", n))
				}
			case <-w.ctx.Done():
				return
			}
		}
	}()
}

// Shutdown stops the sweep loop and waits for it to exit.
func (w *TempSweepWorker) Shutdown() {
	w.cancel()
	w.wg.Wait()
}
