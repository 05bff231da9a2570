package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix           = "PERSTERM"
	DefaultSettingsFile = ".persterm.yaml"
	LogFileName         = "persistent-terminals.log"
)

type HostKind string

const (
	HostTmux   HostKind = "tmux"
	HostPTY    HostKind = "pty"
	HostMemory HostKind = "memory"
)

// Config is process configuration. Terminal definitions live in the settings
// file and are read by a SettingsProvider instead.
//
// Keys are derived with split_words rather than envconfig tags so that no
// unprefixed fallback (HOST, WORKSPACE, ...) is ever consulted.
type Config struct {
	WorkspaceRoot  string        `split_words:"true"`
	SettingsPath   string        `split_words:"true"`
	Host           HostKind      `default:"tmux"`
	TmuxBinary     string        `split_words:"true" default:"tmux"`
	SSHTarget      string        `split_words:"true"`
	ConnectTimeout time.Duration `split_words:"true" default:"3s"`
	CommandTimeout time.Duration `split_words:"true" default:"5s"`
	Shell          string
	JournalPath    string `split_words:"true"`
	MetricsFile    string `split_words:"true"`
	AuditQueueSize int    `split_words:"true" default:"256"`
	Log            LogConfig
}

type LogConfig struct {
	Level string `default:"warn"`
	Dev   bool   `default:"false"`
}

func DefaultConfig() Config {
	return Config{
		Host:           HostTmux,
		TmuxBinary:     "tmux",
		ConnectTimeout: 3 * time.Second,
		CommandTimeout: 5 * time.Second,
		JournalPath:    defaultJournalPath(),
		AuditQueueSize: 256,
		Log: LogConfig{
			Level: "warn",
		},
	}
}

// Load reads PERSTERM_* environment variables (PERSTERM_WORKSPACE_ROOT,
// PERSTERM_HOST, PERSTERM_LOG_LEVEL, ...) on top of DefaultConfig.
func Load() (Config, error) {
	cfg := DefaultConfig()
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.Host {
	case HostTmux, HostPTY, HostMemory:
	default:
		return fmt.Errorf("unsupported host %q", c.Host)
	}
	if c.CommandTimeout <= 0 {
		return fmt.Errorf("command timeout must be positive")
	}
	if c.AuditQueueSize <= 0 {
		return fmt.Errorf("audit queue size must be positive")
	}
	return nil
}

// ResolvedSettingsPath is the explicit settings path, or the default file
// inside the workspace root.
func (c Config) ResolvedSettingsPath() string {
	if c.SettingsPath != "" {
		return c.SettingsPath
	}
	if c.WorkspaceRoot == "" {
		return ""
	}
	return filepath.Join(c.WorkspaceRoot, DefaultSettingsFile)
}

// LogPath is the audit log location, empty when there is no workspace.
func (c Config) LogPath() string {
	if c.WorkspaceRoot == "" {
		return ""
	}
	return filepath.Join(c.WorkspaceRoot, LogFileName)
}

func defaultJournalPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".local", "state", "persterm", "journal.db")
}
