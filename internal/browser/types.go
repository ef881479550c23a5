package browser

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Status represents the current lifecycle state of a browser instance.
// Adapted from the teacher's ChromeStatus.
type Status int32

const (
	StatusIdle Status = iota
	StatusInUse
	StatusRestarting
	StatusDead
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusInUse:
		return "in_use"
	case StatusRestarting:
		return "restarting"
	case StatusDead:
		return "dead"
	default:
		return "unknown"
	}
}

// Instance represents a single headless-browser process and its owned
// temp user-data directory (spec.md §4.E, §5's "temp-directory ownership").
type Instance struct {
	ID int // immutable

	ctx             context.Context
	cancel          context.CancelFunc
	allocatorCtx    context.Context
	allocatorCancel context.CancelFunc

	userDataDir string // immutable after creation; this instance is the only writer
	createdAt   time.Time
	logger      *zap.Logger
	headless    bool

	// mutable, atomic-guarded fields
	status       int32
	requestsDone int32
	lastUsedNano int64
}

// PoolStats summarizes the pool's current shape for metrics/debug logging.
type PoolStats struct {
	TotalInstances     int
	AvailableInstances int
	ActiveInstances    int
	QueueDepth         int
	TotalRenders       int64
	TotalRestarts      int64
	Uptime             time.Duration
}
