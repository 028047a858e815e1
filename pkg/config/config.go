// Package config holds waymark's typed configuration and its YAML file
// format. Every option has a documented default so a missing file is a valid
// configuration.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/entrhq/waymark/pkg/fsutil"
)

// EnvConfigPath overrides the default config file location.
const EnvConfigPath = "WAYMARK_CONFIG"

// ScopeMode selects what a scope key is derived from.
type ScopeMode string

const (
	ScopeCwd           ScopeMode = "cwd"             // ScopeCwd keys bookmarks by the working directory.
	ScopeRepoRoot      ScopeMode = "repo_root"       // ScopeRepoRoot keys bookmarks by the repository top level.
	ScopeRepoCommonDir ScopeMode = "repo_common_dir" // ScopeRepoCommonDir keys bookmarks by the main worktree, shared across linked worktrees.
	ScopeGlobal        ScopeMode = "global"          // ScopeGlobal uses one unscoped store with absolute paths.
)

// Open actions understood by the opener.
const (
	OpenEdit   = "edit"
	OpenVSplit = "vsplit"
	OpenHSplit = "hsplit"
	OpenPrint  = "print"
)

// Config is the complete option surface of the engine.
type Config struct {
	// SavePath is the root directory for all backing files.
	SavePath string `yaml:"save_path"`

	// ScopeMode decides where bookmarks belong.
	ScopeMode ScopeMode `yaml:"scope_mode"`

	// SeparateByBranch keys the file list by branch and enables permanent
	// bookmarks.
	SeparateByBranch bool `yaml:"separate_by_branch"`

	// RelativePath stores file bookmarks relative to the scope root.
	RelativePath bool `yaml:"relative_path"`

	// SortLineBookmarks orders line bookmarks by line before each write.
	SortLineBookmarks bool `yaml:"sort_line_bookmarks"`

	// BranchTTL is how long a resolved branch is trusted.
	BranchTTL time.Duration `yaml:"branch_ttl"`

	// WriteDebounce is the quiet period before line bookmarks are written.
	WriteDebounce time.Duration `yaml:"write_debounce"`

	// PollInterval triggers periodic identity checks. Zero disables polling.
	PollInterval time.Duration `yaml:"poll_interval"`

	// GitTimeout bounds each git subprocess.
	GitTimeout time.Duration `yaml:"git_timeout"`

	// Exclude lists glob patterns for paths that are never bookmarked.
	Exclude []string `yaml:"exclude"`

	// OpenAction is one of edit, vsplit, hsplit or print.
	OpenAction string `yaml:"open_action"`

	// LogLevel is one of debug, info, warn or error.
	LogLevel string `yaml:"log_level"`

	// LogDir overrides the log directory (default ~/.waymark/logs).
	LogDir string `yaml:"log_dir"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		SavePath:          "~/.waymark/data",
		ScopeMode:         ScopeCwd,
		SeparateByBranch:  false,
		RelativePath:      true,
		SortLineBookmarks: false,
		BranchTTL:         time.Second,
		WriteDebounce:     100 * time.Millisecond,
		PollInterval:      0,
		GitTimeout:        2 * time.Second,
		Exclude:           []string{},
		OpenAction:        OpenEdit,
		LogLevel:          "info",
	}
}

// DefaultPath returns the config file location, honouring WAYMARK_CONFIG.
func DefaultPath() (string, error) {
	if env := os.Getenv(EnvConfigPath); env != "" {
		return env, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".waymark", "config.yaml"), nil
}

// Load reads the YAML file at path over the defaults. An empty path means
// DefaultPath. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		var err error
		if path, err = DefaultPath(); err != nil {
			return nil, err
		}
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, cfg.normalize()
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Fields absent from the file keep their default values.
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config file %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return cfg, cfg.normalize()
}

// Validate checks option values.
func (c *Config) Validate() error {
	switch c.ScopeMode {
	case ScopeCwd, ScopeRepoRoot, ScopeRepoCommonDir, ScopeGlobal:
	default:
		return fmt.Errorf("unknown scope_mode %q", c.ScopeMode)
	}

	switch c.OpenAction {
	case OpenEdit, OpenVSplit, OpenHSplit, OpenPrint:
	default:
		return fmt.Errorf("unknown open_action %q", c.OpenAction)
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log_level %q", c.LogLevel)
	}

	durations := []struct {
		name string
		d    time.Duration
	}{
		{"branch_ttl", c.BranchTTL},
		{"write_debounce", c.WriteDebounce},
		{"poll_interval", c.PollInterval},
		{"git_timeout", c.GitTimeout},
	}
	for _, d := range durations {
		if d.d < 0 {
			return fmt.Errorf("%s cannot be negative", d.name)
		}
	}

	if c.SavePath == "" {
		return fmt.Errorf("save_path cannot be empty")
	}
	return nil
}

// Global reports whether scoping is bypassed entirely.
func (c *Config) Global() bool {
	return c.ScopeMode == ScopeGlobal
}

// BranchScoped reports whether permanent and branch lists are kept apart.
func (c *Config) BranchScoped() bool {
	return c.SeparateByBranch && !c.Global()
}

func (c *Config) normalize() error {
	expanded, err := ExpandHome(c.SavePath)
	if err != nil {
		return err
	}
	c.SavePath = expanded

	if c.LogDir != "" {
		if c.LogDir, err = ExpandHome(c.LogDir); err != nil {
			return err
		}
	}
	c.LogLevel = strings.ToLower(c.LogLevel)
	return nil
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, path[1:]), nil
}

// fileFormat is the on-disk shape; durations are written as strings so the
// file stays hand-editable.
type fileFormat struct {
	SavePath          string   `yaml:"save_path"`
	ScopeMode         string   `yaml:"scope_mode"`
	SeparateByBranch  bool     `yaml:"separate_by_branch"`
	RelativePath      bool     `yaml:"relative_path"`
	SortLineBookmarks bool     `yaml:"sort_line_bookmarks"`
	BranchTTL         string   `yaml:"branch_ttl"`
	WriteDebounce     string   `yaml:"write_debounce"`
	PollInterval      string   `yaml:"poll_interval"`
	GitTimeout        string   `yaml:"git_timeout"`
	Exclude           []string `yaml:"exclude"`
	OpenAction        string   `yaml:"open_action"`
	LogLevel          string   `yaml:"log_level"`
	LogDir            string   `yaml:"log_dir,omitempty"`
}

// MarshalYAML implements yaml.Marshaler.
func (c Config) MarshalYAML() (interface{}, error) {
	exclude := c.Exclude
	if exclude == nil {
		exclude = []string{}
	}
	return fileFormat{
		SavePath:          c.SavePath,
		ScopeMode:         string(c.ScopeMode),
		SeparateByBranch:  c.SeparateByBranch,
		RelativePath:      c.RelativePath,
		SortLineBookmarks: c.SortLineBookmarks,
		BranchTTL:         c.BranchTTL.String(),
		WriteDebounce:     c.WriteDebounce.String(),
		PollInterval:      c.PollInterval.String(),
		GitTimeout:        c.GitTimeout.String(),
		Exclude:           exclude,
		OpenAction:        c.OpenAction,
		LogLevel:          c.LogLevel,
		LogDir:            c.LogDir,
	}, nil
}

// Save writes the configuration to path atomically.
func (c *Config) Save(path string) error {
	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(c); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return fsutil.WriteFileAtomic(path, buf.Bytes(), 0o600)
}
