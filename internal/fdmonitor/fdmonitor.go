// Package fdmonitor counts open file descriptors so long-running processes
// can spot leaked lock files and database handles.
package fdmonitor

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"
)

const (
	DefaultWarningThreshold = 200
	DefaultInterval         = 10 * time.Second
)

// Count returns the number of open descriptors for this process, or -1 where
// that cannot be determined.
func Count() int {
	entries, err := readFDDir()
	if err != nil {
		return -1
	}
	return len(entries)
}

func fdDir() string {
	switch runtime.GOOS {
	case "darwin":
		return "/dev/fd"
	case "linux":
		return fmt.Sprintf("/proc/%d/fd", os.Getpid())
	default:
		return ""
	}
}

func readFDDir() ([]os.DirEntry, error) {
	dir := fdDir()
	if dir == "" {
		return nil, fmt.Errorf("fd listing not supported on %s", runtime.GOOS)
	}
	return os.ReadDir(dir)
}

// Monitor rate-limits descriptor checks and warns above a threshold.
type Monitor struct {
	logger    *slog.Logger
	threshold int
	interval  time.Duration
	now       func() time.Time

	mu        sync.Mutex
	lastCheck time.Time
	lastCount int
}

// New returns a Monitor with the default threshold and interval.
func New(logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		logger:    logger,
		threshold: DefaultWarningThreshold,
		interval:  DefaultInterval,
		now:       time.Now,
	}
}

// SetThreshold changes the warning threshold.
func (m *Monitor) SetThreshold(n int) {
	m.mu.Lock()
	m.threshold = n
	m.mu.Unlock()
}

// Check counts descriptors at most once per interval and logs a warning
// with a breakdown by category when the count reaches the threshold.
func (m *Monitor) Check(trigger string) (count int, warned bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if !m.lastCheck.IsZero() && now.Sub(m.lastCheck) < m.interval {
		return m.lastCount, false
	}

	count = Count()
	if count < 0 {
		return count, false
	}
	m.lastCheck = now
	m.lastCount = count

	if count < m.threshold {
		return count, false
	}
	m.logger.Warn("fdmonitor: high descriptor count",
		"count", count, "threshold", m.threshold, "trigger", trigger, "breakdown", Breakdown())
	return count, true
}

// Breakdown groups open descriptors by what they point at. Container files
// are split into lock, json, database and wal.
func Breakdown() map[string]int {
	info := make(map[string]int)
	entries, err := readFDDir()
	if err != nil {
		return info
	}

	dir := fdDir()
	for _, e := range entries {
		target, err := os.Readlink(filepath.Join(dir, e.Name()))
		if err != nil {
			continue
		}
		info[category(target)]++
	}
	return info
}

func category(target string) string {
	switch {
	case strings.Contains(target, "pipe"):
		return "pipe"
	case strings.HasPrefix(target, "socket") || strings.HasPrefix(target, "["):
		return "socket"
	case strings.HasPrefix(target, "anon_inode:"):
		return "inotify"
	case strings.HasSuffix(target, ".lock"):
		return "lock"
	case strings.HasSuffix(target, "-wal") || strings.HasSuffix(target, "-shm"):
		return "wal"
	case filepath.Ext(target) == ".json":
		return "json"
	case filepath.Ext(target) == ".db":
		return "database"
	default:
		return "file"
	}
}
