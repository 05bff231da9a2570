package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/pelletier/go-toml/v2"

	"github.com/g960059/persterm/internal/model"
)

// SettingsSection is the namespace used by editor-style settings files.
const SettingsSection = "persistentTerminals"

// Settings is what the user declares: the terminals, extra denylist prefixes
// and whether the audit log is written.
type Settings struct {
	Terminals              []model.TerminalSpec `json:"terminals" yaml:"terminals" toml:"terminals"`
	UserRestrictedCommands []string             `json:"userRestrictedCommands" yaml:"userRestrictedCommands" toml:"userRestrictedCommands"`
	EnableLogging          bool                 `json:"enableLogging" yaml:"enableLogging" toml:"enableLogging"`
}

type settingsFile struct {
	Settings `yaml:",inline"`
	Section  *Settings `yaml:"persistentTerminals"`

	// Flat editor keys, e.g. "persistentTerminals.terminals" in settings.json.
	DottedTerminals     []model.TerminalSpec `yaml:"persistentTerminals.terminals"`
	DottedRestricted    []string             `yaml:"persistentTerminals.userRestrictedCommands"`
	DottedEnableLogging *bool                `yaml:"persistentTerminals.enableLogging"`
}

func (f settingsFile) resolve() Settings {
	if f.Section != nil {
		return *f.Section
	}
	out := f.Settings
	if f.DottedTerminals != nil {
		out.Terminals = f.DottedTerminals
	}
	if f.DottedRestricted != nil {
		out.UserRestrictedCommands = f.DottedRestricted
	}
	if f.DottedEnableLogging != nil {
		out.EnableLogging = *f.DottedEnableLogging
	}
	return out
}

// tomlFile mirrors settingsFile; go-toml has no inline embedding.
type tomlFile struct {
	Terminals              []model.TerminalSpec `toml:"terminals"`
	UserRestrictedCommands []string             `toml:"userRestrictedCommands"`
	EnableLogging          bool                 `toml:"enableLogging"`
	Section                *Settings            `toml:"persistentTerminals"`
}

// SettingsProvider supplies settings. Implementations must not cache: every
// call reflects the current source.
type SettingsProvider interface {
	Settings() (Settings, error)
}

// FileSettings reads a YAML, JSON or TOML settings file on every call.
// A missing file yields empty settings.
type FileSettings struct {
	Path string
}

func NewFileSettings(path string) *FileSettings {
	return &FileSettings{Path: path}
}

func (f *FileSettings) Settings() (Settings, error) {
	if f.Path == "" {
		return Settings{}, nil
	}
	data, err := os.ReadFile(f.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Settings{}, nil
		}
		return Settings{}, fmt.Errorf("read settings %s: %w", f.Path, err)
	}
	return ParseSettings(filepath.Ext(f.Path), data)
}

// ParseSettings decodes settings by file extension. Keys may sit at the top
// level, under a persistentTerminals section, or as flat
// "persistentTerminals.<key>" entries. A section wins over flat keys, flat
// keys win over top-level ones.
func ParseSettings(ext string, data []byte) (Settings, error) {
	switch strings.ToLower(ext) {
	case ".toml":
		var doc tomlFile
		if err := toml.Unmarshal(data, &doc); err != nil {
			return Settings{}, fmt.Errorf("parse toml settings: %w", err)
		}
		if doc.Section != nil {
			return *doc.Section, nil
		}
		return Settings{
			Terminals:              doc.Terminals,
			UserRestrictedCommands: doc.UserRestrictedCommands,
			EnableLogging:          doc.EnableLogging,
		}, nil
	case ".yaml", ".yml", ".json", "":
		var doc settingsFile
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return Settings{}, fmt.Errorf("parse settings: %w", err)
		}
		return doc.resolve(), nil
	default:
		return Settings{}, fmt.Errorf("unsupported settings format %q", ext)
	}
}

// StaticSettings returns fixed settings; used by tests and dry runs.
type StaticSettings Settings

func (s StaticSettings) Settings() (Settings, error) {
	return Settings(s), nil
}
