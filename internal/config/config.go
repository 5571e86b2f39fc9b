// Package config loads and hot-reloads the proxy's YAML configuration:
// listen address, backend list with routing role, pool sizing, and log
// sink settings.
package config

import (
	"fmt"
	"log"
	"os"
	"regexp"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/bigwindlee/mysqlproxy/internal/backend"
)

// Config is the top-level proxy configuration.
type Config struct {
	Listen   ListenConfig    `yaml:"listen"`
	Pool     PoolConfig      `yaml:"pool"`
	Backends []BackendConfig `yaml:"backends"`
	Logging  LoggingConfig   `yaml:"logging"`
}

// ListenConfig defines the bind address and admin API port.
type ListenConfig struct {
	MySQLAddr string `yaml:"mysql_addr"`
	APIAddr   string `yaml:"api_addr"`
	TLSCert   string `yaml:"tls_cert"`
	TLSKey    string `yaml:"tls_key"`
}

// TLSEnabled returns true if both TLS cert and key paths are configured.
func (lc ListenConfig) TLSEnabled() bool {
	return lc.TLSCert != "" && lc.TLSKey != ""
}

// PoolConfig defines connection-pool sizing shared by every backend.
type PoolConfig struct {
	MinIdleConnections int `yaml:"min_idle_connections"`
}

// BackendConfig describes one upstream MySQL server.
type BackendConfig struct {
	Name string `yaml:"name"`
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	Role string `yaml:"role"` // "read-write" or "read-only"
}

// ParseRole maps the configured role string to backend.Role, defaulting
// to ReadWrite for an empty or unrecognized value.
func (b BackendConfig) ParseRole() backend.Role {
	if b.Role == "read-only" {
		return backend.ReadOnly
	}
	return backend.ReadWrite
}

// Address builds the backend.Address this entry describes.
func (b BackendConfig) Address() backend.Address {
	return backend.Address{Name: b.Name, Host: b.Host, Port: b.Port}
}

// LoggingConfig selects the log level and sink destinations.
type LoggingConfig struct {
	Level   string       `yaml:"level"`
	Console bool         `yaml:"console"`
	File    string       `yaml:"file"`
	Rotate  RotateConfig `yaml:"rotate"`
}

// RotateConfig configures log-file rotation (lumberjack settings).
type RotateConfig struct {
	MaxSizeMB  int `yaml:"max_size_mb"`
	MaxBackups int `yaml:"max_backups"`
	MaxAgeDays int `yaml:"max_age_days"`
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// substituteEnvVars replaces ${VAR_NAME} patterns with environment variable values.
func substituteEnvVars(data []byte) []byte {
	return envVarPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		varName := envVarPattern.FindSubmatch(match)[1]
		if val, ok := os.LookupEnv(string(varName)); ok {
			return []byte(val)
		}
		return match
	})
}

// Load reads and parses a YAML config file with env var substitution.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	data = substituteEnvVars(data)

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	applyDefaults(cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Listen.MySQLAddr == "" {
		cfg.Listen.MySQLAddr = "0.0.0.0:3307"
	}
	if cfg.Listen.APIAddr == "" {
		cfg.Listen.APIAddr = "127.0.0.1:8080"
	}
	if cfg.Pool.MinIdleConnections == 0 {
		cfg.Pool.MinIdleConnections = 2
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "message"
	}
	if cfg.Logging.Rotate.MaxSizeMB == 0 {
		cfg.Logging.Rotate.MaxSizeMB = 100
	}
	if cfg.Logging.Rotate.MaxBackups == 0 {
		cfg.Logging.Rotate.MaxBackups = 5
	}
}

func validate(cfg *Config) error {
	seen := map[string]bool{}
	for _, b := range cfg.Backends {
		if b.Name == "" {
			return fmt.Errorf("backend entry: name is required")
		}
		if seen[b.Name] {
			return fmt.Errorf("backend %q: duplicate name", b.Name)
		}
		seen[b.Name] = true
		if b.Host == "" {
			return fmt.Errorf("backend %q: host is required", b.Name)
		}
		if b.Port == 0 {
			return fmt.Errorf("backend %q: port is required", b.Name)
		}
		if b.Role != "" && b.Role != "read-write" && b.Role != "read-only" {
			return fmt.Errorf("backend %q: role must be read-write or read-only, got %q", b.Name, b.Role)
		}
	}
	return nil
}

// Watcher watches a config file for changes and calls the callback with the new config.
type Watcher struct {
	path     string
	callback func(*Config)
	watcher  *fsnotify.Watcher
	mu       sync.Mutex
	stopCh   chan struct{}
}

// NewWatcher creates a new config file watcher.
func NewWatcher(path string, callback func(*Config)) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}

	if err := w.Add(path); err != nil {
		w.Close()
		return nil, fmt.Errorf("watching config file: %w", err)
	}

	cw := &Watcher{
		path:     path,
		callback: callback,
		watcher:  w,
		stopCh:   make(chan struct{}),
	}

	go cw.run()
	return cw, nil
}

func (cw *Watcher) run() {
	var debounce *time.Timer
	for {
		select {
		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(500*time.Millisecond, func() {
					cw.reload()
				})
			}
		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("[config] watcher error: %v", err)
		case <-cw.stopCh:
			return
		}
	}
}

func (cw *Watcher) reload() {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	cfg, err := Load(cw.path)
	if err != nil {
		log.Printf("[config] hot-reload failed: %v", err)
		return
	}

	log.Printf("[config] configuration reloaded from %s", cw.path)
	cw.callback(cfg)
}

// Stop stops the config watcher.
func (cw *Watcher) Stop() error {
	close(cw.stopCh)
	return cw.watcher.Close()
}
