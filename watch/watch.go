// Package watch re-runs extraction when PHP sources change.
//
// Directories under the scan paths are watched recursively. Events for
// supported source files are collected and delivered as one batch once
// the tree has been quiet for the debounce interval, because editors
// often write a file several times per save.
package watch

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"

	"github.com/minios-linux/i18nextract/extract"
)

// DefaultDebounce is the quiet period before a batch is delivered.
const DefaultDebounce = 50 * time.Millisecond

var ignoreDirs = map[string]bool{
	".git":         true,
	".hg":          true,
	".svn":         true,
	"node_modules": true,
	".idea":        true,
	".vscode":      true,
}

// Watcher watches source trees with fsnotify.
type Watcher struct {
	Exclude  []string
	Debounce time.Duration

	fw      *fsnotify.Watcher
	mu      sync.Mutex
	stopped bool
}

// New creates a watcher that skips paths matching exclude.
func New(exclude []string) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		Exclude:  exclude,
		Debounce: DefaultDebounce,
		fw:       fw,
	}, nil
}

// Add watches every directory below each of paths.
func (w *Watcher) Add(paths ...string) error {
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return err
		}
		if err := w.addTree(abs); err != nil {
			return err
		}
	}
	return nil
}

func (w *Watcher) addTree(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			return nil
		}
		if path != root && (ignoreDirs[info.Name()] || extract.Excluded(path, w.Exclude)) {
			return filepath.SkipDir
		}
		return w.fw.Add(path)
	})
}

// Relevant reports whether a change to path should trigger extraction.
func (w *Watcher) Relevant(path string) bool {
	if !extract.SupportedExtensions[filepath.Ext(path)] {
		return false
	}
	if extract.Excluded(path, w.Exclude) {
		return false
	}
	for dir := filepath.Dir(path); dir != filepath.Dir(dir); dir = filepath.Dir(dir) {
		if ignoreDirs[filepath.Base(dir)] {
			return false
		}
	}
	return true
}

// Run delivers batches of changed files to onChange until ctx is done.
// onChange runs on the watcher goroutine; events arriving meanwhile are
// queued for the next batch.
func (w *Watcher) Run(ctx context.Context, onChange func(files []string)) error {
	pending := make(map[string]bool)
	timer := time.NewTimer(time.Hour)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()

		case event, ok := <-w.fw.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addTree(event.Name); err != nil {
						log.Warn().Err(err).Str("dir", event.Name).Msg("cannot watch new directory")
					}
					continue
				}
			}
			if event.Op == fsnotify.Chmod || !w.Relevant(event.Name) {
				continue
			}
			pending[event.Name] = true
			timer.Reset(w.Debounce)

		case err, ok := <-w.fw.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Msg("watch error")

		case <-timer.C:
			if len(pending) == 0 {
				continue
			}
			files := make([]string, 0, len(pending))
			for f := range pending {
				files = append(files, f)
			}
			sort.Strings(files)
			clear(pending)
			onChange(files)
		}
	}
}

// Close stops watching. It is safe to call more than once.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return nil
	}
	w.stopped = true
	return w.fw.Close()
}
