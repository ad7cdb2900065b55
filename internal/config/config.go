// Package config loads console configuration from an optional YAML
// file layered under CONSOLE_-prefixed environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// minReconnectDelay is the floor on the live-channel retry interval.
// The retry loop must never busy-loop against an unavailable backend.
const minReconnectDelay = 100 * time.Millisecond

type Config struct {
	Backend BackendConfig `koanf:"backend"`
	Server  ServerConfig  `koanf:"server"`
	Sync    SyncConfig    `koanf:"sync"`
	Storage StorageConfig `koanf:"storage"`
}

// BackendConfig locates the external support backend.
type BackendConfig struct {
	// BaseURL is the REST endpoint root, e.g. http://localhost:8000.
	BaseURL string `koanf:"base_url"`

	// WSURL is the live-channel endpoint root, e.g. ws://localhost:8000.
	// Derived from BaseURL when empty.
	WSURL string `koanf:"ws_url"`

	// AgentName is the sender tag stamped on operator replies.
	AgentName string `koanf:"agent_name"`
}

type ServerConfig struct {
	// Addr is the listen address of the local read surface.
	Addr string `koanf:"addr"`
}

type SyncConfig struct {
	// ReconnectDelay is the fixed interval between live-channel retry
	// attempts after an unsolicited close.
	ReconnectDelay time.Duration `koanf:"reconnect_delay"`

	// RequestTimeout bounds history fetches and reply sends.
	RequestTimeout time.Duration `koanf:"request_timeout"`
}

type StorageConfig struct {
	// Path is the SQLite file backing the local settings store.
	Path string `koanf:"path"`
}

// Load reads configuration from path (skipped when empty) and then
// from CONSOLE_-prefixed environment variables, with env taking
// precedence. CONSOLE_SERVER_ADDR maps to server.addr and so on.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	applyDefaults(k)

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	// Only the first underscore separates section from key, so
	// CONSOLE_SYNC_RECONNECT_DELAY maps to sync.reconnect_delay.
	if err := k.Load(env.Provider("CONSOLE_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "CONSOLE_")), "_", ".", 1)
	}), nil); err != nil {
		return nil, err
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	cfg.Normalize()
	return &cfg, nil
}

func applyDefaults(k *koanf.Koanf) {
	k.Set("backend.base_url", "http://localhost:8000")
	k.Set("backend.agent_name", "system")
	k.Set("server.addr", ":7700")
	k.Set("sync.reconnect_delay", "5s")
	k.Set("sync.request_timeout", "15s")
	k.Set("storage.path", "./data/console.db")
}

// Normalize fills derived fields and enforces bounds. Callers that
// override fields after Load re-invoke it.
func (c *Config) Normalize() {
	if c.Backend.WSURL == "" {
		ws := c.Backend.BaseURL
		ws = strings.Replace(ws, "https://", "wss://", 1)
		ws = strings.Replace(ws, "http://", "ws://", 1)
		c.Backend.WSURL = ws
	}
	if c.Sync.ReconnectDelay < minReconnectDelay {
		c.Sync.ReconnectDelay = minReconnectDelay
	}
	if c.Sync.RequestTimeout <= 0 {
		c.Sync.RequestTimeout = 15 * time.Second
	}
}
