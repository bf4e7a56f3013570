// Package lockfile implements .i18nextract.lock, a cache of what the
// scanner found in each source file, keyed by the MD5 of the file's
// content. Unchanged files reuse their cached calls on the next run and
// are not tokenized again.
//
// The lock file is stored in the project root.
package lockfile

import (
	"crypto/md5"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// LockFileName is the default lock file name.
const LockFileName = ".i18nextract.lock"

// Version is the lock file format version.
const Version = 1

// ---------------------------------------------------------------------------
// Types
// ---------------------------------------------------------------------------

// Arg is a cached literal argument.
type Arg struct {
	Text   string `yaml:"text"`
	Number bool   `yaml:"number,omitempty"`
}

// Call is a cached matched marker call.
type Call struct {
	Marker string `yaml:"marker"`
	Line   int    `yaml:"line"`
	Args   []Arg  `yaml:"args"`
}

// Diagnostic is a cached malformed call site.
type Diagnostic struct {
	Marker string `yaml:"marker"`
	Line   int    `yaml:"line"`
	Source string `yaml:"source"`
}

// Entry is everything remembered about one source file.
type Entry struct {
	Hash        string       `yaml:"hash"`
	Calls       []Call       `yaml:"calls,omitempty"`
	Diagnostics []Diagnostic `yaml:"diagnostics,omitempty"`
}

// LockFile represents the .i18nextract.lock file structure.
type LockFile struct {
	Version int `yaml:"version"`
	// Markers fingerprints the marker set; a different set invalidates
	// every entry.
	Markers string           `yaml:"markers"`
	Files   map[string]Entry `yaml:"files"`

	mu   sync.Mutex `yaml:"-"`
	path string     `yaml:"-"`
}

// ---------------------------------------------------------------------------
// Loading and saving
// ---------------------------------------------------------------------------

// Load reads the lock file from dir. A missing file, an older format
// version or a different marker fingerprint yields an empty cache.
func Load(dir, markers string) (*LockFile, error) {
	path := filepath.Join(dir, LockFileName)
	fresh := &LockFile{
		Version: Version,
		Markers: markers,
		Files:   make(map[string]Entry),
		path:    path,
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fresh, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	lf := &LockFile{}
	if err := yaml.Unmarshal(data, lf); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if lf.Version != Version || lf.Markers != markers {
		return fresh, nil
	}
	lf.path = path
	if lf.Files == nil {
		lf.Files = make(map[string]Entry)
	}
	return lf, nil
}

// Save writes the lock file to disk.
func (lf *LockFile) Save() error {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	if lf.path == "" {
		return fmt.Errorf("lock file path not set")
	}

	data, err := yaml.Marshal(lf)
	if err != nil {
		return fmt.Errorf("marshaling lock file: %w", err)
	}

	if err := os.WriteFile(lf.path, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", lf.path, err)
	}

	return nil
}

// Path returns the lock file path.
func (lf *LockFile) Path() string {
	return lf.path
}

// ---------------------------------------------------------------------------
// Cache operations
// ---------------------------------------------------------------------------

// Hash computes the MD5 hex digest of data.
func Hash(data []byte) string {
	return fmt.Sprintf("%x", md5.Sum(data))
}

// FileKey normalizes a file path for use as a map key.
func FileKey(path string) string {
	return filepath.ToSlash(path)
}

// Lookup returns the cached entry for file if its content hash matches.
func (lf *LockFile) Lookup(file, hash string) (Entry, bool) {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	e, ok := lf.Files[FileKey(file)]
	if !ok || e.Hash != hash {
		return Entry{}, false
	}
	return e, true
}

// Store records the scan result of file.
func (lf *LockFile) Store(file string, e Entry) {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	lf.Files[FileKey(file)] = e
}

// Clean removes entries for files that are no longer scanned.
func (lf *LockFile) Clean(current []string) {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	valid := make(map[string]bool, len(current))
	for _, f := range current {
		valid[FileKey(f)] = true
	}
	for k := range lf.Files {
		if !valid[k] {
			delete(lf.Files, k)
		}
	}
}

// ---------------------------------------------------------------------------
// Stats
// ---------------------------------------------------------------------------

// Stats returns the number of cached files and cached calls.
func (lf *LockFile) Stats() (files, calls int) {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	files = len(lf.Files)
	for _, e := range lf.Files {
		calls += len(e.Calls)
	}
	return
}

// Summary returns a human-readable summary string.
func (lf *LockFile) Summary() string {
	files, calls := lf.Stats()
	if files == 0 {
		return "empty"
	}

	lf.mu.Lock()
	names := make([]string, 0, len(lf.Files))
	for f := range lf.Files {
		names = append(names, filepath.Base(f))
	}
	lf.mu.Unlock()
	sort.Strings(names)
	if len(names) > 3 {
		names = append(names[:3], "...")
	}
	return fmt.Sprintf("%d files, %d calls (%s)", files, calls, strings.Join(names, ", "))
}
