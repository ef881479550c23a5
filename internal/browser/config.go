package browser

import (
	"fmt"
	"strconv"
	"time"

	"github.com/shirou/gopsutil/v4/mem"
)

// Config holds browser pool and per-instance settings (spec.md §4.E).
// The pool-sizing formula is grounded on the teacher's
// internal/render/chrome/config.go CalculatePoolSize, repurposed here to
// also back the "auto" default for GlobalConfig.MaxConcurrentSites.
type Config struct {
	PoolSize        string // "auto" or an integer string
	Headless        bool
	WarmupURL       string
	WarmupTimeout   time.Duration
	ShutdownTimeout time.Duration

	RestartAfterCount int
	RestartAfterTime  time.Duration

	// DiskCacheSizeBytes/MediaCacheSizeBytes cap Chrome's on-disk caches
	// (spec.md §4.E: "disk/media cache caps (50 MiB each)").
	DiskCacheSizeBytes  int
	MediaCacheSizeBytes int
	WindowWidth         int
	WindowHeight        int
	MaxHeapMB           int
}

// DefaultConfig returns the spec-mandated launch defaults.
func DefaultConfig() *Config {
	return &Config{
		PoolSize:            "auto",
		Headless:            true,
		WarmupURL:           "about:blank",
		WarmupTimeout:       10 * time.Second,
		ShutdownTimeout:     30 * time.Second,
		RestartAfterCount:   80,
		RestartAfterTime:    60 * time.Minute,
		DiskCacheSizeBytes:  50 * 1024 * 1024,
		MediaCacheSizeBytes: 50 * 1024 * 1024,
		WindowWidth:         1920,
		WindowHeight:        1080,
		MaxHeapMB:           4096,
	}
}

// Validate checks the configuration's structural sanity.
func (c *Config) Validate() error {
	if c.PoolSize != "auto" {
		size, err := strconv.Atoi(c.PoolSize)
		if err != nil {
			return fmt.Errorf("pool size must be 'auto' or an integer")
		}
		if size <= 0 {
			return fmt.Errorf("pool size must be positive")
		}
	}
	if c.RestartAfterCount <= 0 {
		return fmt.Errorf("restart after count must be positive")
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown timeout must be positive")
	}
	return nil
}

// CalculatePoolSize resolves "auto" against available system RAM, reusing
// the teacher's (Total-2GB)/500MB-per-instance formula, clamped to [2,50].
func (c *Config) CalculatePoolSize() int {
	if c.PoolSize != "auto" {
		if size, err := strconv.Atoi(c.PoolSize); err == nil && size > 0 {
			return size
		}
	}
	return autoPoolSizeFromRAM()
}

func autoPoolSizeFromRAM() int {
	var totalRAMBytes int64
	if v, err := mem.VirtualMemory(); err == nil {
		totalRAMBytes = int64(v.Total)
	} else {
		totalRAMBytes = 8 * 1024 * 1024 * 1024
	}

	const reserved = 2 * 1024 * 1024 * 1024
	const perInstance = 500 * 1024 * 1024

	size := int((totalRAMBytes - reserved) / perInstance)
	if size < 2 {
		size = 2
	}
	if size > 50 {
		size = 50
	}
	return size
}
