// Package config loads .i18nextract.yaml.
//
// Settings come from three layers, later ones winning: the yaml file in the
// project root, the environment (a .env file next to it is loaded first),
// and command-line flags applied by the caller.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/minios-linux/i18nextract/extract"
)

// FileName is the default config file name.
const FileName = ".i18nextract.yaml"

// Environment variables read by Load.
const (
	EnvDSN       = "I18N_DSN"
	EnvLanguages = "I18N_LANGUAGES"
	EnvStore     = "I18N_STORE"
)

// Store back-end names.
const (
	StoreSQL    = "sql"
	StoreBolt   = "bolt"
	StorePO     = "po"
	StoreMemory = "memory"
)

var (
	// ErrNoLanguages is returned when no target language is configured.
	ErrNoLanguages = errors.New("no languages configured")
	// ErrNoPaths is returned when there is nothing to scan.
	ErrNoPaths = errors.New("no paths or files to scan")
)

// ---------------------------------------------------------------------------
// YAML schema
// ---------------------------------------------------------------------------

// Config is the .i18nextract.yaml structure.
type Config struct {
	// Paths are directories searched for sources, relative to the root.
	Paths []string `yaml:"paths,omitempty"`
	// Files, when set, are scanned instead of searching Paths.
	Files []string `yaml:"files,omitempty"`
	// Exclude drops files whose path contains "/<value>".
	Exclude []string `yaml:"exclude,omitempty"`
	// Languages are the locales every message is stored for.
	Languages Languages `yaml:"languages,omitempty"`
	// Domains, when set, limits which domains are stored.
	Domains []string `yaml:"domains,omitempty"`

	Merge         bool `yaml:"merge,omitempty"`
	NoLocation    bool `yaml:"no_location,omitempty"`
	RelativePaths bool `yaml:"relative_paths,omitempty"`
	MarkerError   bool `yaml:"marker_error,omitempty"`

	// ExtractCore adds CorePath to the scanned paths.
	ExtractCore bool `yaml:"extract_core,omitempty"`
	// CorePath is the framework source tree. Diagnostics from it are not
	// counted.
	CorePath string `yaml:"core_path,omitempty"`

	Store StoreConfig `yaml:"store,omitempty"`

	// Jobs is the number of files scanned concurrently (default 1).
	Jobs int `yaml:"jobs,omitempty"`
	// Cache enables the .i18nextract.lock scan cache.
	Cache bool `yaml:"cache,omitempty"`

	// Markers replaces the default __ family when set.
	Markers []MarkerConfig `yaml:"markers,omitempty"`

	root string `yaml:"-"`
}

// StoreConfig selects and configures the message store.
type StoreConfig struct {
	// Type is one of sql, bolt, po, memory (default po).
	Type string `yaml:"type,omitempty"`
	// DSN is the PostgreSQL connection string for the sql store.
	DSN string `yaml:"dsn,omitempty"`
	// Bolt is the database file for the bolt store.
	Bolt string `yaml:"bolt,omitempty"`
	// PODir is the directory for the po store.
	PODir string `yaml:"po_dir,omitempty"`
}

// MarkerConfig declares a custom marker function.
type MarkerConfig struct {
	Name  string   `yaml:"name"`
	Roles []string `yaml:"roles"`
}

// Languages is a list of locales. In yaml it is either a list or a map
// whose values are a locale string or a mapping with a "locale" key; a
// map entry without a locale uses its key.
type Languages []string

// UnmarshalYAML implements yaml.Unmarshaler.
func (l *Languages) UnmarshalYAML(n *yaml.Node) error {
	switch n.Kind {
	case yaml.ScalarNode:
		*l = SplitList(n.Value)
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := n.Decode(&list); err != nil {
			return err
		}
		*l = normalizeList(list)
		return nil
	case yaml.MappingNode:
		var list []string
		for i := 0; i+1 < len(n.Content); i += 2 {
			key, val := n.Content[i].Value, n.Content[i+1]
			switch val.Kind {
			case yaml.ScalarNode:
				if val.ShortTag() != "!!null" && val.Value != "" {
					list = append(list, val.Value)
				} else {
					list = append(list, key)
				}
			case yaml.MappingNode:
				var m map[string]any
				if err := val.Decode(&m); err != nil {
					return err
				}
				if loc, ok := m["locale"].(string); ok && loc != "" {
					list = append(list, loc)
				} else {
					list = append(list, key)
				}
			default:
				list = append(list, key)
			}
		}
		*l = normalizeList(list)
		return nil
	}
	return fmt.Errorf("line %d: languages must be a list or a map", n.Line)
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Paths: []string{"."},
		Store: StoreConfig{
			Type:  StorePO,
			Bolt:  ".i18nextract.db",
			PODir: "locale",
		},
		Jobs: 1,
	}
}

// Load reads .i18nextract.yaml and .env from rootDir and applies the
// environment. A missing config file yields the defaults.
func Load(rootDir string) (*Config, error) {
	cfg := Default()
	cfg.root = rootDir

	path := filepath.Join(rootDir, FileName)
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	case !os.IsNotExist(err):
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	envPath := filepath.Join(rootDir, ".env")
	if err := godotenv.Load(envPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("loading %s: %w", envPath, err)
	}
	cfg.ApplyEnv()

	for i, m := range cfg.Markers {
		if m.Name == "" {
			return nil, fmt.Errorf("%s: marker #%d has no name", path, i+1)
		}
	}
	return cfg, nil
}

// ApplyEnv overrides settings from I18N_* environment variables.
func (c *Config) ApplyEnv() {
	if v := strings.TrimSpace(os.Getenv(EnvStore)); v != "" {
		c.Store.Type = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvDSN)); v != "" {
		c.Store.DSN = v
	}
	if v := os.Getenv(EnvLanguages); strings.TrimSpace(v) != "" {
		c.Languages = SplitList(v)
	}
}

// Root returns the project root the config was loaded from.
func (c *Config) Root() string {
	if c.root == "" {
		return "."
	}
	return c.root
}

// Validate checks that there is something to scan and somewhere to
// store it. Locales that are not valid BCP 47 tags are logged and kept.
func (c *Config) Validate() error {
	if len(c.Languages) == 0 {
		return ErrNoLanguages
	}
	if len(c.Paths) == 0 && len(c.Files) == 0 {
		return ErrNoPaths
	}
	for _, l := range c.Languages {
		if _, err := language.Parse(strings.ReplaceAll(l, "_", "-")); err != nil {
			log.Warn().Str("locale", l).Msg("locale is not a BCP 47 language tag")
		}
	}
	switch c.Store.Type {
	case StoreSQL:
		if c.Store.DSN == "" {
			return fmt.Errorf("sql store needs a DSN (set %s or store.dsn)", EnvDSN)
		}
	case StoreBolt, StorePO, StoreMemory:
	default:
		return fmt.Errorf("unknown store type %q (valid: sql, bolt, po, memory)", c.Store.Type)
	}
	if c.ExtractCore && c.CorePath == "" {
		return fmt.Errorf("extract_core needs core_path")
	}
	return nil
}

// ---------------------------------------------------------------------------
// Resolving
// ---------------------------------------------------------------------------

// resolve makes p absolute against the root.
func (c *Config) resolve(p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	abs, err := filepath.Abs(filepath.Join(c.Root(), p))
	if err != nil {
		return filepath.Join(c.Root(), p)
	}
	return abs
}

// ScanPaths returns the absolute directories to search, including the
// core path when ExtractCore is set.
func (c *Config) ScanPaths() []string {
	var out []string
	for _, p := range c.Paths {
		out = append(out, c.resolve(p))
	}
	if c.ExtractCore {
		out = append(out, c.resolve(c.CorePath))
	}
	return out
}

// ScanFiles returns the absolute explicit file list.
func (c *Config) ScanFiles() []string {
	var out []string
	for _, f := range c.Files {
		out = append(out, c.resolve(f))
	}
	return out
}

// AbsCorePath returns the absolute core path, or "" if unset.
func (c *Config) AbsCorePath() string {
	if c.CorePath == "" {
		return ""
	}
	return c.resolve(c.CorePath)
}

// ReferenceRoots are the prefixes stripped from stored references: every
// scan path plus the project root, each with a trailing separator.
func (c *Config) ReferenceRoots() []string {
	roots := append(c.ScanPaths(), c.resolve("."))
	for i, r := range roots {
		if !strings.HasSuffix(r, string(filepath.Separator)) {
			roots[i] = r + string(filepath.Separator)
		}
	}
	return roots
}

// BoltPath returns the absolute bolt database path.
func (c *Config) BoltPath() string {
	return c.resolve(c.Store.Bolt)
}

// PODir returns the absolute PO store directory.
func (c *Config) PODir() string {
	return c.resolve(c.Store.PODir)
}

// ExtractMarkers converts the configured markers. It returns nil when the
// defaults should be used.
func (c *Config) ExtractMarkers() ([]extract.Marker, error) {
	if len(c.Markers) == 0 {
		return nil, nil
	}
	out := make([]extract.Marker, 0, len(c.Markers))
	for _, mc := range c.Markers {
		m := extract.Marker{Name: mc.Name}
		for _, r := range mc.Roles {
			role, err := extract.ParseRole(r)
			if err != nil {
				return nil, fmt.Errorf("marker %s: %w", mc.Name, err)
			}
			m.Roles = append(m.Roles, role)
		}
		if err := m.Validate(); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// SplitList splits a comma separated option value, trimming blanks and
// dropping duplicates.
func SplitList(s string) []string {
	return normalizeList(strings.Split(s, ","))
}

func normalizeList(in []string) []string {
	var out []string
	seen := make(map[string]bool, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

// ParseYesNo reads the yes/no values the CLI accepts for --merge and
// --extract-core. Booleans are accepted too.
func ParseYesNo(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "y", "yes":
		return true, nil
	case "n", "no":
		return false, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("expected yes or no, got %q", s)
	}
	return b, nil
}
