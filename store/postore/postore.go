// Package postore keeps extracted messages in gettext PO files, one per
// locale and domain: <dir>/<locale>/<domain>.po.
package postore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/minios-linux/i18nextract/pofile"
	"github.com/minios-linux/i18nextract/store"
)

// Store is a store.Store over a directory of PO files. Parsed files are
// kept in memory; every Save rewrites the affected file.
type Store struct {
	dir string

	mu    sync.Mutex
	files map[string]*pofile.File
}

// Open returns a store rooted at dir, creating it if needed.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating %s: %w", dir, err)
	}
	return &Store{dir: dir, files: make(map[string]*pofile.File)}, nil
}

// Path returns the PO file holding domain messages for locale.
func (s *Store) Path(domain, locale string) string {
	return filepath.Join(s.dir, locale, domain+".po")
}

// load returns the parsed file at path, or nil if it does not exist.
// Callers hold s.mu.
func (s *Store) load(path string) (*pofile.File, error) {
	if f, ok := s.files[path]; ok {
		return f, nil
	}
	f, err := pofile.ParseFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	s.files[path] = f
	return f, nil
}

// targets lists (domain, locale, path) triples that may hold records for q.
func (s *Store) targets(q store.Query) ([][3]string, error) {
	if q.Domain != "" && q.Locale != "" {
		return [][3]string{{q.Domain, q.Locale, s.Path(q.Domain, q.Locale)}}, nil
	}
	locale, domain := q.Locale, q.Domain
	if locale == "" {
		locale = "*"
	}
	if domain == "" {
		domain = "*"
	}
	matches, err := filepath.Glob(filepath.Join(s.dir, locale, domain+".po"))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	out := make([][3]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, [3]string{
			strings.TrimSuffix(filepath.Base(m), ".po"),
			filepath.Base(filepath.Dir(m)),
			m,
		})
	}
	return out, nil
}

func (s *Store) Find(_ context.Context, q store.Query) ([]store.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if q.Domain != "" && q.Locale != "" && q.Key != nil {
		f, err := s.load(s.Path(q.Domain, q.Locale))
		if err != nil || f == nil {
			return nil, err
		}
		e := f.Lookup(q.Key.Context, q.Key.Singular)
		if e == nil {
			return nil, nil
		}
		return []store.Record{toRecord(q.Domain, q.Locale, e)}, nil
	}

	targets, err := s.targets(q)
	if err != nil {
		return nil, err
	}
	var out []store.Record
	for _, t := range targets {
		f, err := s.load(t[2])
		if err != nil {
			return nil, err
		}
		if f == nil {
			continue
		}
		for _, e := range f.Entries {
			if e.Obsolete {
				continue
			}
			r := toRecord(t[0], t[1], e)
			if q.Matches(r) {
				out = append(out, r)
			}
		}
	}
	return out, nil
}

func (s *Store) Count(ctx context.Context, q store.Query) (int, error) {
	recs, err := s.Find(ctx, q)
	return len(recs), err
}

func (s *Store) Save(_ context.Context, r store.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.Path(r.Domain, r.Locale)
	f, err := s.load(path)
	if err != nil {
		return err
	}
	if f == nil {
		f = pofile.NewFile()
		f.Header = pofile.MakeHeader(r.Domain, r.Locale)
		s.files[path] = f
	}
	f.Entries = append(f.Entries, toEntry(r))
	f.SetHeaderField("PO-Revision-Date", time.Now().UTC().Format(pofile.DateFormat))
	if err := f.WriteFile(path); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files = make(map[string]*pofile.File)
	return nil
}

func toEntry(r store.Record) *pofile.Entry {
	e := &pofile.Entry{
		MsgCtxt:     r.Context,
		MsgID:       r.Singular,
		MsgIDPlural: r.Plural,
	}
	if r.Refs != nil && *r.Refs != "" {
		e.References = strings.Split(*r.Refs, "\n")
	}
	e.SetTranslations(r.Translations)
	return e
}

func toRecord(domain, locale string, e *pofile.Entry) store.Record {
	r := store.Record{
		Domain:       domain,
		Locale:       locale,
		Singular:     e.MsgID,
		Plural:       e.MsgIDPlural,
		Context:      e.MsgCtxt,
		Translations: e.Translations(),
	}
	if len(e.References) > 0 {
		refs := strings.Join(e.References, "\n")
		r.Refs = &refs
	}
	return r
}
