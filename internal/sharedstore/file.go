package sharedstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

// DataFileName is the file the file backend keeps in the container.
const DataFileName = "feature_flags.json"

// documentVersion is the current data file format version.
const documentVersion = 1

// document is the on-disk format of the file backend.
type document struct {
	Version   int             `json:"version"`
	Writer    string          `json:"writer,omitempty"`
	UpdatedAt time.Time       `json:"updatedAt"`
	Values    map[string]bool `json:"values"`
}

// FileStore keeps every record in one JSON file inside the container
// directory. Writes replace the file atomically (temp file + rename) while
// holding an exclusive flock; reads hold a shared flock.
type FileStore struct {
	dir      string
	path     string
	lockPath string
	opts     options

	mu       sync.Mutex
	snapshot map[string]bool // never mutated in place
	hash     uint64
	writer   string
	loaded   bool
}

var (
	_ Store     = (*FileStore)(nil)
	_ Watchable = (*FileStore)(nil)
)

// NewFileStore opens the file backend rooted at dir, creating dir if needed.
func NewFileStore(dir string, opts ...Option) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating container %s: %w", dir, err)
	}
	path := filepath.Join(dir, DataFileName)
	return &FileStore{
		dir:      dir,
		path:     path,
		lockPath: path + ".lock",
		opts:     buildOptions(opts),
		snapshot: map[string]bool{},
	}, nil
}

// GetBool returns the stored value for key, or false if there is none.
func (s *FileStore) GetBool(key string) bool {
	v, _ := s.LookupBool(key)
	return v
}

// LookupBool returns the stored value for key and whether it exists.
func (s *FileStore) LookupBool(key string) (bool, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.loadLocked()[key]
	return v, ok
}

// SetBool writes one record.
func (s *FileStore) SetBool(key string, value bool) {
	s.commit("set", func(values map[string]bool) {
		values[key] = value
	})
}

// SetBools writes several records with one rename.
func (s *FileStore) SetBools(values map[string]bool) {
	s.commit("set_many", func(current map[string]bool) {
		for k, v := range values {
			current[k] = v
		}
	})
}

// ClearAllSharedData removes every record.
func (s *FileStore) ClearAllSharedData() {
	s.commit("clear", func(values map[string]bool) {
		clear(values)
	})
}

// Keys returns the sorted keys with a record.
func (s *FileStore) Keys() []string {
	s.mu.Lock()
	values := s.loadLocked()
	s.mu.Unlock()

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Close is a no-op; the file backend holds no open handles between calls.
func (s *FileStore) Close() error {
	return nil
}

// Dir returns the container directory.
func (s *FileStore) Dir() string {
	return s.dir
}

// WatchPath returns the data file path.
func (s *FileStore) WatchPath() string {
	return s.path
}

// WriterID returns the ID this handle records with its commits.
func (s *FileStore) WriterID() string {
	return s.opts.writerID
}

// LastWriter returns the writer of the data file's latest commit.
func (s *FileStore) LastWriter() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadLocked()
	return s.writer
}

// loadLocked refreshes the snapshot from disk. When the lock cannot be taken
// in time the previous snapshot is served. Caller must hold s.mu.
func (s *FileStore) loadLocked() map[string]bool {
	lockFile, err := acquireLock(s.lockPath, false, s.opts.lockTimeout)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.replaceLocked(nil, map[string]bool{}, "")
			return s.snapshot
		}
		s.opts.logger.Debug("sharedstore: read lock failed, serving snapshot", "path", s.path, "err", err)
		return s.snapshot
	}
	defer releaseLock(lockFile)

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.opts.logger.Warn("sharedstore: read failed", "path", s.path, "err", err)
			return s.snapshot
		}
		data = nil
	}

	sum := xxhash.Sum64(data)
	if s.loaded && sum == s.hash {
		return s.snapshot
	}

	doc := decodeDocument(data, s.opts.logger)
	s.replaceLocked(data, doc.Values, doc.Writer)
	return s.snapshot
}

// replaceLocked installs a new snapshot. Caller must hold s.mu.
func (s *FileStore) replaceLocked(data []byte, values map[string]bool, writer string) {
	if values == nil {
		values = map[string]bool{}
	}
	s.snapshot = values
	s.hash = xxhash.Sum64(data)
	s.writer = writer
	s.loaded = true
}

// commit applies fn to the current on-disk values and atomically replaces
// the file. Failures are logged and dropped.
func (s *FileStore) commit(op string, fn func(values map[string]bool)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.commitLocked(fn); err != nil {
		s.opts.logger.Warn("sharedstore: write dropped", "op", op, "path", s.path, "err", err)
	}
}

// commitLocked does the locked read-modify-write. Caller must hold s.mu.
func (s *FileStore) commitLocked(fn func(values map[string]bool)) error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return err
	}

	lockFile, err := acquireLock(s.lockPath, true, s.opts.writeTimeout())
	if err != nil {
		return err
	}
	defer releaseLock(lockFile)

	// Re-read under the exclusive lock so another process's keys survive.
	current, err := os.ReadFile(s.path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	values := copyValues(decodeDocument(current, s.opts.logger).Values)
	fn(values)

	doc := document{
		Version:   documentVersion,
		Writer:    s.opts.writerID,
		UpdatedAt: s.opts.now().UTC(),
		Values:    values,
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	if err := writeFileSync(s.dir, s.path, data); err != nil {
		return err
	}

	s.replaceLocked(data, values, doc.Writer)
	return nil
}

// writeFileSync writes data to a temp file in dir, fsyncs it and renames it
// over path.
func writeFileSync(dir, path string, data []byte) error {
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpPath) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		cleanup()
		return err
	}
	return nil
}

// decodeDocument parses data. Empty or corrupt data yields an empty document.
func decodeDocument(data []byte, logger *slog.Logger) document {
	doc := document{Values: map[string]bool{}}
	if len(data) == 0 {
		return doc
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		logger.Warn("sharedstore: parse failed, treating as empty", "err", err)
		return document{Values: map[string]bool{}}
	}
	if doc.Values == nil {
		doc.Values = map[string]bool{}
	}
	return doc
}
