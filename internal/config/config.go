package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Store backends.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// DefaultLockTimeout bounds how long a store call waits for the cross-process lock.
const DefaultLockTimeout = 250 * time.Millisecond

// ErrUnknownBackend is returned by Validate for an unsupported store backend.
var ErrUnknownBackend = errors.New("unknown store backend")

// Config is the root configuration structure.
type Config struct {
	Store      StoreConfig      `json:"store"`
	Capability CapabilityConfig `json:"capability"`
	Log        LogConfig        `json:"log"`
}

// StoreConfig configures the shared container both processes read and write.
type StoreConfig struct {
	Backend     string        `json:"backend"`     // "file", "sqlite" or "memory"
	Dir         string        `json:"dir"`         // app group container directory (supports ~ expansion)
	LockTimeout time.Duration `json:"lockTimeout"` // max wait for the container lock
}

// CapabilityConfig configures full access detection.
type CapabilityConfig struct {
	// GrantFile is the marker the OS (or `keyhost access grant`) writes when
	// full access is granted. Defaults to <store dir>/full_access.
	GrantFile string `json:"grantFile,omitempty"`
}

// LogConfig configures diagnostics output.
type LogConfig struct {
	Level string `json:"level"` // "debug", "info", "warn" or "error"
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Store: StoreConfig{
			Backend:     BackendFile,
			Dir:         "~/.local/share/keyhost/group",
			LockTimeout: DefaultLockTimeout,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Validate checks the configuration for errors and fills derived values.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case "":
		c.Store.Backend = BackendFile
	case BackendFile, BackendSQLite, BackendMemory:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownBackend, c.Store.Backend)
	}
	if c.Store.LockTimeout <= 0 {
		c.Store.LockTimeout = DefaultLockTimeout
	}
	if c.Store.Dir == "" {
		c.Store.Dir = Default().Store.Dir
	}
	c.Store.Dir = ExpandPath(c.Store.Dir)
	if c.Capability.GrantFile == "" {
		c.Capability.GrantFile = filepath.Join(c.Store.Dir, "full_access")
	}
	c.Capability.GrantFile = ExpandPath(c.Capability.GrantFile)
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
		c.Log.Level = strings.ToLower(c.Log.Level)
	default:
		c.Log.Level = "info"
	}
	return nil
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
