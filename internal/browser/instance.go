package browser

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// NewInstance launches a browser process and its scoped temp user-data
// directory. Grounded on the teacher's NewChromeInstance/createBrowser,
// extended with per-site headless/headful switching and the launch flags
// spec.md §4.E mandates (cache caps, window size, ignored TLS errors).
func NewInstance(id int, cfg *Config, logger *zap.Logger) (*Instance, error) {
	now := time.Now().UTC()
	inst := &Instance{
		ID:           id,
		createdAt:    now,
		logger:       logger,
		headless:     cfg.Headless,
		status:       int32(StatusIdle),
		lastUsedNano: now.UnixNano(),
	}

	if err := inst.launch(cfg); err != nil {
		return nil, fmt.Errorf("launch browser instance %d: %w", id, err)
	}

	logger.Info("browser instance launched",
		zap.Int("instance_id", id),
		zap.Bool("headless", cfg.Headless),
		zap.String("user_data_dir", inst.userDataDir))

	if err := inst.Warmup(cfg); err != nil {
		logger.Warn("browser instance warmup failed",
			zap.Int("instance_id", id), zap.Error(err))
	}

	return inst, nil
}

// launch starts the underlying browser process with a fresh, exclusively
// owned temp user-data directory (spec.md §5 "Temp-directory ownership").
func (inst *Instance) launch(cfg *Config) error {
	dir, err := os.MkdirTemp("", fmt.Sprintf("netscan-chrome-%d-*", inst.ID))
	if err != nil {
		return fmt.Errorf("create user-data-dir: %w", err)
	}
	inst.userDataDir = dir

	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("headless", inst.headless),
		chromedp.UserDataDir(dir),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-background-networking", true),
		chromedp.Flag("mute-audio", true),
		chromedp.Flag("disable-sync", true),
		chromedp.Flag("disable-translate", true),
		chromedp.Flag("ignore-certificate-errors", true),
		chromedp.Flag("disk-cache-size", cfg.DiskCacheSizeBytes),
		chromedp.Flag("media-cache-size", cfg.MediaCacheSizeBytes),
		chromedp.WindowSize(cfg.WindowWidth, cfg.WindowHeight),
		chromedp.Flag("js-flags", fmt.Sprintf("--max-old-space-size=%d", cfg.MaxHeapMB)),
	)

	inst.allocatorCtx, inst.allocatorCancel = chromedp.NewExecAllocator(context.Background(), opts...)
	inst.ctx, inst.cancel = chromedp.NewContext(inst.allocatorCtx)

	if err := chromedp.Run(inst.ctx); err != nil {
		os.RemoveAll(dir)
		return fmt.Errorf("start browser process: %w", err)
	}

	return nil
}

// Warmup navigates to a throwaway page to confirm the instance responds.
func (inst *Instance) Warmup(cfg *Config) error {
	ctx, cancel := context.WithTimeout(inst.ctx, cfg.WarmupTimeout)
	defer cancel()

	if err := chromedp.Run(ctx, chromedp.Navigate(cfg.WarmupURL)); err != nil {
		return fmt.Errorf("warmup navigation: %w", err)
	}
	return nil
}

// IsAlive health-probes the instance via a lightweight CDP call (spec.md
// §4.E's is_responsive), bounded by timeout.
func (inst *Instance) IsAlive(timeout time.Duration) bool {
	if Status(atomic.LoadInt32(&inst.status)) == StatusDead {
		return false
	}

	ctx, cancel := context.WithTimeout(inst.ctx, timeout)
	defer cancel()

	err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, _, _, _, _, err := browser.GetVersion().Do(ctx)
		return err
	}))
	return err == nil
}

// Age reports how long this instance has been running.
func (inst *Instance) Age() time.Duration {
	return time.Now().UTC().Sub(inst.createdAt)
}

// ShouldRestart reports whether the per-instance request/age thresholds
// have been exceeded (spec.md §4.E restart policy, distinct from the
// orchestrator-level batch thresholds in §4.G).
func (inst *Instance) ShouldRestart(cfg *Config) bool {
	if int(atomic.LoadInt32(&inst.requestsDone)) >= cfg.RestartAfterCount {
		return true
	}
	return inst.Age() >= cfg.RestartAfterTime
}

// Restart tears down and relaunches the instance, replacing its temp dir.
func (inst *Instance) Restart(cfg *Config) error {
	inst.logger.Info("restarting browser instance",
		zap.Int("instance_id", inst.ID),
		zap.Int32("requests_done", atomic.LoadInt32(&inst.requestsDone)),
		zap.Duration("age", inst.Age()))

	if err := inst.Terminate(); err != nil {
		inst.logger.Warn("error terminating instance during restart",
			zap.Int("instance_id", inst.ID), zap.Error(err))
	}

	now := time.Now().UTC()
	atomic.StoreInt32(&inst.requestsDone, 0)
	inst.createdAt = now
	atomic.StoreInt64(&inst.lastUsedNano, now.UnixNano())
	atomic.StoreInt32(&inst.status, int32(StatusIdle))

	if err := inst.launch(cfg); err != nil {
		atomic.StoreInt32(&inst.status, int32(StatusDead))
		return fmt.Errorf("%w: %v", ErrRestartFailed, err)
	}

	if err := inst.Warmup(cfg); err != nil {
		inst.logger.Warn("warmup failed after restart",
			zap.Int("instance_id", inst.ID), zap.Error(err))
	}
	return nil
}

// Terminate closes the browser and removes its owned temp directory. On
// timeout the caller should escalate to killing the process group; here we
// rely on chromedp's cancel to do so via its allocator's exec.Cmd teardown.
func (inst *Instance) Terminate() error {
	atomic.StoreInt32(&inst.status, int32(StatusDead))

	if inst.cancel != nil {
		inst.cancel()
	}
	if inst.allocatorCancel != nil {
		inst.allocatorCancel()
	}
	if inst.userDataDir != "" {
		if err := os.RemoveAll(inst.userDataDir); err != nil {
			return fmt.Errorf("remove user-data-dir %q: %w", inst.userDataDir, err)
		}
	}
	return nil
}

// IncrementRequests bumps the per-instance request counter and last-used timestamp.
func (inst *Instance) IncrementRequests() {
	atomic.AddInt32(&inst.requestsDone, 1)
	atomic.StoreInt64(&inst.lastUsedNano, time.Now().UTC().UnixNano())
}

// GetContext returns a fresh tab context scoped to this instance's browser.
func (inst *Instance) GetContext() (context.Context, context.CancelFunc) {
	return chromedp.NewContext(inst.ctx)
}

// GetStatus returns the current status.
func (inst *Instance) GetStatus() Status {
	return Status(atomic.LoadInt32(&inst.status))
}

// SetStatus updates the instance status.
func (inst *Instance) SetStatus(status Status) {
	atomic.StoreInt32(&inst.status, int32(status))
}

// GetRequestsDone returns the number of completed page loads.
func (inst *Instance) GetRequestsDone() int32 {
	return atomic.LoadInt32(&inst.requestsDone)
}

// UserDataDir returns the instance's owned temp directory path.
func (inst *Instance) UserDataDir() string {
	return inst.userDataDir
}
