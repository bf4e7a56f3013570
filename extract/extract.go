// Package extract finds translation marker calls in PHP sources.
//
// Source files are discovered under the configured paths, tokenized with
// the lexer package and scanned for the __ family of marker functions.
// Matched calls are handed to a Recorder; calls whose arguments are not
// literals are reported as diagnostics and never stop the run.
package extract

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/minios-linux/i18nextract/lexer"
	"github.com/minios-linux/i18nextract/lockfile"
	"github.com/minios-linux/i18nextract/worker"
)

// SupportedExtensions lists the file extensions scanned for markers.
var SupportedExtensions = map[string]bool{
	".php":   true,
	".ctp":   true,
	".thtml": true,
	".inc":   true,
	".tpl":   true,
}

// skipDirs contains directory names to skip during source file scanning.
var skipDirs = map[string]bool{
	".git":         true,
	".hg":          true,
	".svn":         true,
	"node_modules": true,
}

// FindSources recursively finds all source files with supported extensions
// under paths. A file whose path contains a separator followed by one of
// the exclude values is skipped, so "test" drops both "app/test/x.php" and
// "app/tests.php". The result is sorted and free of duplicates.
func FindSources(paths, exclude []string) ([]string, error) {
	var files []string
	seen := make(map[string]bool)

	for _, dir := range paths {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return nil, fmt.Errorf("resolving %s: %w", dir, err)
		}
		if _, err := os.Stat(abs); err != nil {
			return nil, fmt.Errorf("scanning %s: %w", dir, err)
		}
		err = filepath.Walk(abs, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return nil // skip unreadable entries
			}
			if info.IsDir() {
				if skipDirs[info.Name()] {
					return filepath.SkipDir
				}
				return nil
			}
			if !SupportedExtensions[filepath.Ext(path)] || Excluded(path, exclude) {
				return nil
			}
			if !seen[path] {
				seen[path] = true
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("scanning %s: %w", dir, err)
		}
	}

	sort.Strings(files)
	return files, nil
}

// Excluded reports whether path matches one of the exclude segments.
func Excluded(path string, exclude []string) bool {
	for _, e := range exclude {
		if e == "" {
			continue
		}
		if strings.Contains(path, string(filepath.Separator)+e) {
			return true
		}
	}
	return false
}

// DescribeFiles returns a human-readable summary of the source files found.
func DescribeFiles(files []string) string {
	byExt := make(map[string]int)
	for _, f := range files {
		byExt[filepath.Ext(f)]++
	}
	var exts []string
	for ext := range byExt {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	var parts []string
	for _, ext := range exts {
		parts = append(parts, fmt.Sprintf("%d %s", byExt[ext], ext))
	}
	return strings.Join(parts, ", ")
}

// ---------------------------------------------------------------------------
// Extraction run
// ---------------------------------------------------------------------------

// Recorder receives every matched call. An empty context means the call
// had none.
type Recorder interface {
	Record(domain, singular string, plural *string, context, file string, line int)
}

// Options configures Run.
type Options struct {
	// Scanner is required.
	Scanner *Scanner
	// CorePath marks framework sources whose diagnostics are not counted.
	CorePath string
	// Root, when set, makes recorded paths relative: "./" + path under Root.
	Root string
	// Jobs is the number of files tokenized concurrently.
	Jobs int
	// Cache, when set, skips tokenizing files whose content is unchanged.
	Cache *lockfile.LockFile
	// Progress is called after each file.
	Progress func(done, total int)
}

// FileError is a source file that could not be read or tokenized.
type FileError struct {
	File string
	Err  error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("%s: %v", e.File, e.Err)
}

func (e *FileError) Unwrap() error {
	return e.Err
}

// Report summarizes a run.
type Report struct {
	Files   int
	Scanned int
	Cached  int
	Calls   int

	Diagnostics Diagnostics
	FileErrors  []*FileError
}

// fileResult is what one worker produces for one file.
type fileResult struct {
	cached bool
	Result
}

// Run scans files and records their calls in file order. Unreadable files
// are collected in the report; only a cancelled ctx aborts the run.
func Run(ctx context.Context, files []string, rec Recorder, opts Options) (*Report, error) {
	if opts.Scanner == nil {
		return nil, fmt.Errorf("extract: no scanner")
	}

	pool := worker.NewPool(opts.Jobs, func(ctx context.Context, file string) (fileResult, error) {
		return scanFile(file, opts)
	})
	if opts.Progress != nil {
		pool.OnDone(opts.Progress)
	}
	tasks := pool.Execute(ctx, files)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rep := &Report{Files: len(files)}
	rep.Diagnostics.CorePath = opts.CorePath
	for _, task := range tasks {
		if task.Err != nil {
			fe := &FileError{File: task.Input, Err: task.Err}
			log.Warn().Err(task.Err).Str("file", task.Input).Msg("skipping unreadable file")
			rep.FileErrors = append(rep.FileErrors, fe)
			continue
		}
		res := task.Result
		if res.cached {
			rep.Cached++
		} else {
			rep.Scanned++
		}
		for _, c := range res.Calls {
			msg := c.Message
			rec.Record(msg.Domain, msg.Singular, msg.Plural, msg.Context, c.File, c.Line)
			rep.Calls++
		}
		for _, d := range res.Diagnostics {
			rep.Diagnostics.add(d, task.Input)
		}
	}

	if opts.Cache != nil {
		opts.Cache.Clean(files)
	}
	return rep, nil
}

// displayName is the path recorded in references and diagnostics.
func displayName(file, root string) string {
	if root == "" {
		return file
	}
	rel, err := filepath.Rel(root, file)
	if err != nil || strings.HasPrefix(rel, "..") {
		return file
	}
	return "./" + filepath.ToSlash(rel)
}

func scanFile(file string, opts Options) (fileResult, error) {
	name := displayName(file, opts.Root)
	src, err := os.ReadFile(file)
	if err != nil {
		return fileResult{}, err
	}

	var hash string
	if opts.Cache != nil {
		hash = lockfile.Hash(src)
		if e, ok := opts.Cache.Lookup(file, hash); ok {
			res, ok := fromCache(name, e, opts.Scanner)
			if ok {
				return fileResult{cached: true, Result: res}, nil
			}
			log.Debug().Str("file", file).Msg("cache entry names unknown marker, rescanning")
		}
	}

	var res Result
	if opts.Scanner.MayContain(src) {
		tokens, err := lexer.Tokenize(src)
		if err != nil {
			return fileResult{}, err
		}
		res = opts.Scanner.Scan(name, tokens)
	}

	if opts.Cache != nil {
		opts.Cache.Store(file, toCache(hash, res))
	}
	return fileResult{Result: res}, nil
}

func toCache(hash string, res Result) lockfile.Entry {
	e := lockfile.Entry{Hash: hash}
	for _, c := range res.Calls {
		args := make([]lockfile.Arg, len(c.Args))
		for i, a := range c.Args {
			args[i] = lockfile.Arg{Text: a.Text, Number: a.Number}
		}
		e.Calls = append(e.Calls, lockfile.Call{Marker: c.Marker, Line: c.Line, Args: args})
	}
	for _, d := range res.Diagnostics {
		e.Diagnostics = append(e.Diagnostics, lockfile.Diagnostic{Marker: d.Marker, Line: d.Line, Source: d.Source})
	}
	return e
}

// fromCache rebuilds a Result for file. It fails if a cached call names a
// marker the scanner does not know or has a different arity.
func fromCache(file string, e lockfile.Entry, s *Scanner) (Result, bool) {
	var res Result
	for _, c := range e.Calls {
		m, ok := s.Marker(c.Marker)
		if !ok || m.Arity() != len(c.Args) {
			return Result{}, false
		}
		args := make([]Value, len(c.Args))
		for i, a := range c.Args {
			args[i] = Value{Text: a.Text, Number: a.Number}
		}
		res.Calls = append(res.Calls, Call{
			Marker:  c.Marker,
			File:    file,
			Line:    c.Line,
			Args:    args,
			Message: m.Decode(args),
		})
	}
	for _, d := range e.Diagnostics {
		res.Diagnostics = append(res.Diagnostics, Diagnostic{
			File:   file,
			Line:   d.Line,
			Marker: d.Marker,
			Source: d.Source,
		})
	}
	return res, true
}
