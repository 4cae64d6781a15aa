// Package host wires the shared store, feature flags and capability cache
// into one per-process service object.
package host

import (
	"fmt"
	"log/slog"

	"github.com/wilbur182/keyhost/internal/capability"
	"github.com/wilbur182/keyhost/internal/config"
	"github.com/wilbur182/keyhost/internal/features"
	"github.com/wilbur182/keyhost/internal/sharedstore"
)

// Role says which side of the app group this process is.
type Role string

const (
	RoleExtension Role = "extension"
	RoleApp       Role = "app"
)

// ParseRole maps a flag value to a Role.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleExtension, RoleApp:
		return Role(s), nil
	default:
		return "", fmt.Errorf("unknown role %q (want %q or %q)", s, RoleExtension, RoleApp)
	}
}

// Context provides shared resources to the UI layer. Build one per process
// with New and pass it to everything that reads flags or capability.
type Context struct {
	Role       Role
	Config     *config.Config
	Store      sharedstore.Store
	Flags      *features.Flags
	Capability *capability.Cache
	Logger     *slog.Logger
}

// New opens the configured store and builds the flag facade and the
// capability cache. provider may be nil to use the config's grant file.
func New(cfg *config.Config, role Role, provider capability.Provider, logger *slog.Logger) (*Context, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("role", string(role))

	store, err := sharedstore.Open(cfg.Store, logger)
	if err != nil {
		return nil, fmt.Errorf("opening shared store: %w", err)
	}

	if provider == nil {
		provider = capability.GrantFileProvider{Path: cfg.Capability.GrantFile}
	}

	return &Context{
		Role:       role,
		Config:     cfg,
		Store:      store,
		Flags:      features.New(store, logger),
		Capability: capability.NewCache(provider, capability.WithLogger(logger)),
		Logger:     logger,
	}, nil
}

// BecameActive is called by the UI layer when the process comes back to the
// foreground. The user may have changed the full access grant meanwhile.
func (c *Context) BecameActive() {
	c.Logger.Debug("host: became active, invalidating capability")
	c.Capability.Invalidate()
}

// Watch starts watching the container for commits from the other process.
// It returns nil, nil for backends without a shared file.
func (c *Context) Watch() (*sharedstore.Watcher, error) {
	src, ok := c.Store.(sharedstore.Watchable)
	if !ok {
		return nil, nil
	}
	return sharedstore.NewWatcher(src, c.Logger)
}

// Close releases the store.
func (c *Context) Close() error {
	return c.Store.Close()
}
