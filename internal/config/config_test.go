package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Store.Backend != BackendFile {
		t.Errorf("Backend = %q, want %q", cfg.Store.Backend, BackendFile)
	}
	if cfg.Store.LockTimeout != DefaultLockTimeout {
		t.Errorf("LockTimeout = %v, want %v", cfg.Store.LockTimeout, DefaultLockTimeout)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want info", cfg.Log.Level)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
		check   func(*testing.T, *Config)
	}{
		{
			name:   "empty backend becomes file",
			mutate: func(c *Config) { c.Store.Backend = "" },
			check: func(t *testing.T, c *Config) {
				if c.Store.Backend != BackendFile {
					t.Errorf("Backend = %q", c.Store.Backend)
				}
			},
		},
		{
			name:    "unknown backend",
			mutate:  func(c *Config) { c.Store.Backend = "etcd" },
			wantErr: ErrUnknownBackend,
		},
		{
			name:   "negative lock timeout reset",
			mutate: func(c *Config) { c.Store.LockTimeout = -time.Second },
			check: func(t *testing.T, c *Config) {
				if c.Store.LockTimeout != DefaultLockTimeout {
					t.Errorf("LockTimeout = %v", c.Store.LockTimeout)
				}
			},
		},
		{
			name:   "grant file derived from dir",
			mutate: func(c *Config) { c.Store.Dir = "/tmp/group" },
			check: func(t *testing.T, c *Config) {
				if c.Capability.GrantFile != filepath.Join("/tmp/group", "full_access") {
					t.Errorf("GrantFile = %q", c.Capability.GrantFile)
				}
			},
		},
		{
			name:   "bad log level falls back to info",
			mutate: func(c *Config) { c.Log.Level = "verbose" },
			check: func(t *testing.T, c *Config) {
				if c.Log.Level != "info" {
					t.Errorf("Log.Level = %q", c.Log.Level)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Validate() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Validate() error = %v", err)
			}
			if tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}

func TestLoadFrom_Missing(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if cfg.Store.Backend != BackendFile {
		t.Errorf("Backend = %q, want default", cfg.Store.Backend)
	}
}

func TestLoadFrom_JSONC(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	data := `{
  // shared container used by the extension and the app
  "store": {
    "backend": "sqlite",
    "dir": "/tmp/keyhost-group",
    "lockTimeout": "1s", /* generous */
  },
  "log": {"level": "DEBUG"},
}`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if cfg.Store.Backend != BackendSQLite {
		t.Errorf("Backend = %q, want sqlite", cfg.Store.Backend)
	}
	if cfg.Store.Dir != "/tmp/keyhost-group" {
		t.Errorf("Dir = %q", cfg.Store.Dir)
	}
	if cfg.Store.LockTimeout != time.Second {
		t.Errorf("LockTimeout = %v, want 1s", cfg.Store.LockTimeout)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want debug", cfg.Log.Level)
	}
}

func TestLoadFrom_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"store": [`), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFrom(path); err == nil {
		t.Error("LoadFrom() should fail on malformed JSON")
	}
}

func TestLoadFrom_BadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"store": {"lockTimeout": "soon"}}`), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFrom(path); err == nil {
		t.Error("LoadFrom() should fail on bad duration")
	}
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	SetTestConfigPath(path)
	t.Cleanup(ResetTestConfigPath)

	cfg := Default()
	cfg.Store.Backend = BackendMemory
	cfg.Store.Dir = "/tmp/g"
	cfg.Store.LockTimeout = 2 * time.Second
	if err := Save(cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.Store.Backend != BackendMemory {
		t.Errorf("Backend = %q", loaded.Store.Backend)
	}
	if loaded.Store.LockTimeout != 2*time.Second {
		t.Errorf("LockTimeout = %v", loaded.Store.LockTimeout)
	}
}

func TestConfigPath_Env(t *testing.T) {
	t.Setenv(EnvConfigPath, "/etc/keyhost.json")
	if got := ConfigPath(); got != "/etc/keyhost.json" {
		t.Errorf("ConfigPath() = %q", got)
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	if got := ExpandPath("~/x"); got != filepath.Join(home, "x") {
		t.Errorf("ExpandPath(~/x) = %q", got)
	}
	if got := ExpandPath("/abs"); got != "/abs" {
		t.Errorf("ExpandPath(/abs) = %q", got)
	}
	if got := ExpandPath("~user/x"); got != "~user/x" {
		t.Errorf("ExpandPath(~user/x) = %q", got)
	}
}
