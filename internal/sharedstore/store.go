package sharedstore

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/wilbur182/keyhost/internal/config"
)

// Store is a durable key→bool mapping shared by the keyboard extension and
// its host app. Reads and writes never return errors: a missing record reads
// as false and a failed write is logged and dropped.
type Store interface {
	// GetBool returns the stored value, or false when no record exists.
	GetBool(key string) bool
	// LookupBool returns the stored value and whether a record exists.
	LookupBool(key string) (value, ok bool)
	// SetBool writes through and returns once the value is durable.
	SetBool(key string, value bool)
	// SetBools writes every value in a single atomic commit.
	SetBools(values map[string]bool)
	// Keys returns the sorted keys that currently have a record.
	Keys() []string
	// ClearAllSharedData removes every record. Idempotent.
	ClearAllSharedData()
	// Close releases backend resources.
	Close() error
}

// Watchable is implemented by stores backed by a file another process can
// modify. The Watcher uses it to filter out this handle's own writes.
type Watchable interface {
	// WatchPath is the file whose changes signal a commit.
	WatchPath() string
	// WriterID identifies this store handle in persisted records.
	WriterID() string
	// LastWriter returns the writer ID of the most recent commit, or "".
	LastWriter() string
}

// Option configures a store.
type Option func(*options)

type options struct {
	logger      *slog.Logger
	lockTimeout time.Duration
	writerID    string
	now         func() time.Time
}

// WithLogger sets the logger used to report dropped writes.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithLockTimeout bounds how long a call waits for the container lock.
func WithLockTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.lockTimeout = d
		}
	}
}

// WithWriterID overrides the random writer ID recorded with each commit.
func WithWriterID(id string) Option {
	return func(o *options) {
		if id != "" {
			o.writerID = id
		}
	}
}

// writeLockFactor stretches the lock wait for writes. A read that times out
// serves the last snapshot; a write that times out is lost.
const writeLockFactor = 8

func (o options) writeTimeout() time.Duration {
	return writeLockFactor * o.lockTimeout
}

func buildOptions(opts []Option) options {
	o := options{
		logger:      slog.Default(),
		lockTimeout: config.DefaultLockTimeout,
		writerID:    uuid.NewString(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Open creates the store selected by cfg.Backend.
func Open(cfg config.StoreConfig, logger *slog.Logger) (Store, error) {
	opts := []Option{WithLogger(logger), WithLockTimeout(cfg.LockTimeout)}
	switch cfg.Backend {
	case config.BackendFile, "":
		return NewFileStore(cfg.Dir, opts...)
	case config.BackendSQLite:
		return NewSQLiteStore(cfg.Dir, opts...)
	case config.BackendMemory:
		return NewMemoryStore(opts...), nil
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownBackend, cfg.Backend)
	}
}

func copyValues(m map[string]bool) map[string]bool {
	out := make(map[string]bool, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
