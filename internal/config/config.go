// Package config loads server configuration with layered precedence:
// environment variables override a TOML file, which overrides built-in
// defaults.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Config holds all configuration for the workflow-coordination engine.
// Precedence: environment variables > config file > defaults.
type Config struct {
	Workspace  WorkspaceConfig  `toml:"workspace"`
	Store      StoreConfig      `toml:"store"`
	Server     ServerConfig     `toml:"server"`
	HTTP       HTTPConfig       `toml:"http"`
	Log        LogConfig        `toml:"log"`
	Security   SecurityConfig   `toml:"security"`
	Checkpoint CheckpointConfig `toml:"checkpoint"`
}

// WorkspaceConfig identifies the working directory this engine instance
// coordinates. ID falls back to a path hash of the working directory
// when unset.
type WorkspaceConfig struct {
	ID   string `toml:"id"`
	Path string `toml:"path"`
}

// StoreConfig points at the embedded store's backing file.
type StoreConfig struct {
	Path string `toml:"path"`
}

// ServerConfig holds MCP server metadata.
type ServerConfig struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

// HTTPConfig controls the read-only loopback API mirror.
type HTTPConfig struct {
	Enabled bool   `toml:"enabled"`
	Port    string `toml:"port"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level string `toml:"level"` // debug, info, warn, error
}

// SecurityConfig toggles the PreToolUse hook pipeline.
type SecurityConfig struct {
	HookEnabled bool `toml:"hook_enabled"`
}

// CheckpointConfig toggles automatic checkpointing on status/iteration
// transitions.
type CheckpointConfig struct {
	AutoEnabled bool `toml:"auto_enabled"`
}

// Load builds a Config from defaults, layered with an optional TOML
// file, layered with environment variables (which always win).
//
// Config file search order (first found wins):
//  1. Path passed via configPath parameter (from --config flag)
//  2. TASKFLOW_CONFIG environment variable
//  3. ./taskflow.toml (current directory)
//  4. ~/.config/taskflow/taskflow.toml (XDG-style)
func Load(configPath string) (*Config, error) {
	cwd, _ := os.Getwd()
	cfg := &Config{
		Workspace:  WorkspaceConfig{Path: cwd},
		Store:      StoreConfig{Path: ".taskflow/store.db"},
		Server:     ServerConfig{Name: "taskflowd", Version: "0.1.0"},
		HTTP:       HTTPConfig{Enabled: true, Port: "7420"},
		Log:        LogConfig{Level: "info"},
		Security:   SecurityConfig{HookEnabled: true},
		Checkpoint: CheckpointConfig{AutoEnabled: true},
	}

	if err := cfg.loadFile(configPath); err != nil {
		return nil, err
	}

	cfg.applyEnv()

	if cfg.Workspace.ID == "" {
		cfg.Workspace.ID = pathHash(cfg.Workspace.Path)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) loadFile(configPath string) error {
	path := resolveConfigPath(configPath)
	if path == "" {
		return nil
	}
	if _, err := toml.DecodeFile(path, c); err != nil {
		return fmt.Errorf("reading config file %s: %w", path, err)
	}
	return nil
}

func resolveConfigPath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if p := os.Getenv("TASKFLOW_CONFIG"); p != "" {
		return p
	}
	if _, err := os.Stat("taskflow.toml"); err == nil {
		return "taskflow.toml"
	}
	if home, err := os.UserHomeDir(); err == nil {
		p := home + "/.config/taskflow/taskflow.toml"
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func (c *Config) applyEnv() {
	envOverride("TASKFLOW_WORKSPACE_ID", &c.Workspace.ID)
	envOverride("TASKFLOW_WORKSPACE_PATH", &c.Workspace.Path)
	envOverride("TASKFLOW_STORE_PATH", &c.Store.Path)
	envOverride("TASKFLOW_HTTP_PORT", &c.HTTP.Port)
	envOverride("TASKFLOW_LOG_LEVEL", &c.Log.Level)

	if v := os.Getenv("TASKFLOW_HTTP_ENABLED"); v != "" {
		c.HTTP.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("TASKFLOW_SECURITY_HOOK_ENABLED"); v != "" {
		c.Security.HookEnabled = v == "true" || v == "1"
	}
	if v := os.Getenv("TASKFLOW_AUTO_CHECKPOINT_ENABLED"); v != "" {
		c.Checkpoint.AutoEnabled = v == "true" || v == "1"
	}
}

// Validate checks that required fields are present.
func (c *Config) Validate() error {
	if c.Store.Path == "" {
		return fmt.Errorf("store.path must not be empty")
	}
	if c.HTTP.Enabled && c.HTTP.Port == "" {
		return fmt.Errorf("http.port must be set when http.enabled is true")
	}
	return nil
}

func envOverride(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// pathHash derives a stable workspace id from a working-directory path
// when no explicit id is configured.
func pathHash(path string) string {
	sum := sha256.Sum256([]byte(path))
	return "ws-" + hex.EncodeToString(sum[:])[:12]
}
