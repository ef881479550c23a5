package browser

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Pool manages a fixed set of browser instances behind a FIFO queue of
// available instance IDs. Adapted from the teacher's ChromePool, with the
// Redis-backed service-registry heartbeat dropped (there is no fleet of
// sibling render services for a standalone scanning CLI to register with;
// see DESIGN.md) and temp-dir sweep wired in at shutdown.
type Pool struct {
	config    *Config
	logger    *zap.Logger
	instances []*Instance
	queue     chan int
	mu        sync.RWMutex

	totalRenders  atomic.Int64
	totalRestarts atomic.Int64
	createdAt     time.Time

	ctx       context.Context
	cancel    context.CancelFunc
	shutdown  atomic.Bool
}

// NewPool launches config.CalculatePoolSize() instances.
func NewPool(config *Config, logger *zap.Logger) (*Pool, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid browser config: %w", err)
	}

	size := config.CalculatePoolSize()
	logger.Info("initializing browser pool", zap.Int("pool_size", size))

	ctx, cancel := context.WithCancel(context.Background())
	pool := &Pool{
		config:    config,
		logger:    logger,
		instances: make([]*Instance, size),
		queue:     make(chan int, size),
		createdAt: time.Now().UTC(),
		ctx:       ctx,
		cancel:    cancel,
	}

	for i := 0; i < size; i++ {
		inst, err := NewInstance(i, config, logger)
		if err != nil {
			pool.terminateAll()
			cancel()
			return nil, fmt.Errorf("launch instance %d: %w", i, err)
		}
		pool.instances[i] = inst
		pool.queue <- i
	}

	return pool, nil
}

// Acquire blocks (respecting ctx) until an instance is available, or
// returns ErrPoolShutdown if the pool is shutting down.
func (p *Pool) Acquire(ctx context.Context) (*Instance, error) {
	if p.shutdown.Load() {
		return nil, ErrPoolShutdown
	}

	select {
	case id, ok := <-p.queue:
		if !ok {
			return nil, ErrPoolShutdown
		}
		p.mu.RLock()
		inst := p.instances[id]
		p.mu.RUnlock()
		inst.SetStatus(StatusInUse)
		return inst, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.ctx.Done():
		return nil, ErrPoolShutdown
	}
}

// Release returns an instance to the queue, restarting it first if its
// per-instance thresholds (count/age) have been exceeded.
func (p *Pool) Release(inst *Instance) {
	inst.IncrementRequests()
	p.totalRenders.Add(1)

	if p.shutdown.Load() {
		return
	}

	if inst.ShouldRestart(p.config) {
		inst.SetStatus(StatusRestarting)
		if err := inst.Restart(p.config); err != nil {
			p.logger.Warn("instance restart failed, returning to queue anyway",
				zap.Int("instance_id", inst.ID), zap.Error(err))
		} else {
			p.totalRestarts.Add(1)
		}
	}

	inst.SetStatus(StatusIdle)

	select {
	case p.queue <- inst.ID:
	default:
		// queue full (shouldn't happen: one slot per instance) -- drop silently.
	}
}

// HealthProbe reports whether every instance in the pool responds to a
// lightweight CDP call within timeout (spec.md §4.G's "browser-health probe
// returns unhealthy" restart trigger).
func (p *Pool) HealthProbe(timeout time.Duration) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, inst := range p.instances {
		if inst == nil || !inst.IsAlive(timeout) {
			return false
		}
	}
	return true
}

// RestartAll force-restarts every instance, used for the orchestrator's
// emergency and between-batch restart decisions (spec.md §4.G).
func (p *Pool) RestartAll() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	for _, inst := range p.instances {
		if err := inst.Restart(p.config); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	p.totalRestarts.Add(int64(len(p.instances)))
	return firstErr
}

// Stats returns a point-in-time snapshot of the pool's shape.
func (p *Pool) Stats() PoolStats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	active := 0
	for _, inst := range p.instances {
		if inst.GetStatus() == StatusInUse {
			active++
		}
	}

	return PoolStats{
		TotalInstances:     len(p.instances),
		AvailableInstances: len(p.queue),
		ActiveInstances:    active,
		QueueDepth:         len(p.queue),
		TotalRenders:       p.totalRenders.Load(),
		TotalRestarts:      p.totalRestarts.Load(),
		Uptime:             time.Since(p.createdAt),
	}
}

// Shutdown drains in-flight renders (bounded by timeout), terminates every
// instance, and sweeps the OS temp root for any leftover launch directories.
func (p *Pool) Shutdown(timeout time.Duration) error {
	p.shutdown.Store(true)
	p.cancel()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if p.allIdle() {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}

	p.terminateAll()
	if n, err := SweepTempDirs(); err != nil {
		p.logger.Warn("temp directory sweep failed", zap.Error(err))
	} else if n > 0 {
		p.logger.Info("swept leftover browser temp directories", zap.Int("count", n))
	}
	return nil
}

func (p *Pool) allIdle() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, inst := range p.instances {
		if inst.GetStatus() == StatusInUse {
			return false
		}
	}
	return true
}

func (p *Pool) terminateAll() {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, inst := range p.instances {
		if inst == nil {
			continue
		}
		if err := inst.Terminate(); err != nil {
			p.logger.Warn("error terminating instance", zap.Int("instance_id", inst.ID), zap.Error(err))
		}
	}
}
