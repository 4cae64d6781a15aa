package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tidwall/jsonc"
)

// EnvConfigPath overrides the config file location.
const EnvConfigPath = "KEYHOST_CONFIG"

var (
	testPathMu sync.Mutex
	testPath   string
)

// saveConfig is the JSON-marshaling intermediary that uses string durations.
type saveConfig struct {
	Store      saveStoreConfig  `json:"store"`
	Capability CapabilityConfig `json:"capability,omitempty"`
	Log        LogConfig        `json:"log"`
}

type saveStoreConfig struct {
	Backend     string `json:"backend,omitempty"`
	Dir         string `json:"dir,omitempty"`
	LockTimeout string `json:"lockTimeout,omitempty"`
}

// toSaveConfig converts Config to the JSON-serializable format.
func toSaveConfig(cfg *Config) saveConfig {
	return saveConfig{
		Store: saveStoreConfig{
			Backend:     cfg.Store.Backend,
			Dir:         cfg.Store.Dir,
			LockTimeout: cfg.Store.LockTimeout.String(),
		},
		Capability: cfg.Capability,
		Log:        cfg.Log,
	}
}

// fromSaveConfig applies parsed values on top of cfg, leaving unset fields alone.
func fromSaveConfig(sc saveConfig, cfg *Config) error {
	if sc.Store.Backend != "" {
		cfg.Store.Backend = sc.Store.Backend
	}
	if sc.Store.Dir != "" {
		cfg.Store.Dir = sc.Store.Dir
	}
	if sc.Store.LockTimeout != "" {
		d, err := time.ParseDuration(sc.Store.LockTimeout)
		if err != nil {
			return fmt.Errorf("store.lockTimeout: %w", err)
		}
		cfg.Store.LockTimeout = d
	}
	if sc.Capability.GrantFile != "" {
		cfg.Capability.GrantFile = sc.Capability.GrantFile
	}
	if sc.Log.Level != "" {
		cfg.Log.Level = sc.Log.Level
	}
	return nil
}

// ConfigPath returns the config file location: a test override, then
// $KEYHOST_CONFIG, then ~/.config/keyhost/config.json.
func ConfigPath() string {
	testPathMu.Lock()
	p := testPath
	testPathMu.Unlock()
	if p != "" {
		return p
	}
	if env := os.Getenv(EnvConfigPath); env != "" {
		return ExpandPath(env)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".keyhost", "config.json")
	}
	return filepath.Join(home, ".config", "keyhost", "config.json")
}

// SetTestConfigPath redirects ConfigPath for tests.
func SetTestConfigPath(path string) {
	testPathMu.Lock()
	defer testPathMu.Unlock()
	testPath = path
}

// ResetTestConfigPath undoes SetTestConfigPath.
func ResetTestConfigPath() {
	SetTestConfigPath("")
}

// Load reads the config from ConfigPath.
func Load() (*Config, error) {
	return LoadFrom(ConfigPath())
}

// LoadFrom reads a JSONC config file. A missing file yields the defaults.
func LoadFrom(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, cfg.Validate()
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var sc saveConfig
	if err := json.Unmarshal(jsonc.ToJSON(data), &sc); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := fromSaveConfig(sc, cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the config to ConfigPath.
func Save(cfg *Config) error {
	return SaveTo(ConfigPath(), cfg)
}

// SaveTo writes the config to path, creating parent directories.
func SaveTo(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	sc := toSaveConfig(cfg)
	data, err := json.MarshalIndent(sc, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
