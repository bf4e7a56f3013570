// Package catalog aggregates extracted messages across source files and
// flushes them into a store.
//
// Messages are keyed by domain, singular and context. Every occurrence
// adds a file:line reference; a plural form, once seen, is kept.
package catalog

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/minios-linux/i18nextract/store"
)

// Key identifies a message in the catalog. An empty Context means none.
type Key struct {
	Domain   string
	Singular string
	Context  string
}

// Entry is an aggregated message.
type Entry struct {
	Key
	Plural *string

	// files in first-seen order, with their lines in first-seen order.
	files []string
	lines map[string][]int
}

// Files returns the referencing files in first-seen order.
func (e *Entry) Files() []string {
	return e.files
}

// Lines returns the distinct lines of file that reference the entry.
func (e *Entry) Lines(file string) []int {
	return e.lines[file]
}

func (e *Entry) addRef(file string, line int) {
	seen, ok := e.lines[file]
	if !ok {
		e.files = append(e.files, file)
	}
	for _, l := range seen {
		if l == line {
			return
		}
	}
	e.lines[file] = append(seen, line)
}

// References renders the entry's locations as "file:l1;l2" per file,
// joined by newlines. Each root is removed wherever it occurs, shortest
// root first, and path separators become '/'.
func (e *Entry) References(roots []string) string {
	parts := make([]string, 0, len(e.files))
	for _, f := range e.files {
		lines := make([]string, len(e.lines[f]))
		for i, l := range e.lines[f] {
			lines[i] = strconv.Itoa(l)
		}
		parts = append(parts, f+":"+strings.Join(lines, ";"))
	}
	refs := strings.Join(parts, "\n")

	sorted := append([]string(nil), roots...)
	sort.SliceStable(sorted, func(i, j int) bool { return len(sorted[i]) < len(sorted[j]) })
	for _, r := range sorted {
		if r != "" {
			refs = strings.ReplaceAll(refs, r, "")
		}
	}
	return filepath.ToSlash(refs)
}

// Catalog accumulates entries. Record may be called concurrently.
type Catalog struct {
	mu      sync.Mutex
	entries map[Key]*Entry
	order   []Key
}

// New returns an empty catalog.
func New() *Catalog {
	return &Catalog{entries: make(map[Key]*Entry)}
}

// Record adds one occurrence of a message. A non-nil plural replaces the
// stored one; a nil plural never clears it.
func (c *Catalog) Record(domain, singular string, plural *string, context, file string, line int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	k := Key{Domain: domain, Singular: singular, Context: context}
	e, ok := c.entries[k]
	if !ok {
		e = &Entry{Key: k, lines: make(map[string][]int)}
		c.entries[k] = e
		c.order = append(c.order, k)
	}
	if plural != nil {
		p := *plural
		e.Plural = &p
	}
	e.addRef(file, line)
}

// Len returns the number of distinct messages.
func (c *Catalog) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.order)
}

// Entries returns the entries in first-seen order.
func (c *Catalog) Entries() []*Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]*Entry, len(c.order))
	for i, k := range c.order {
		out[i] = c.entries[k]
	}
	return out
}

// Domains returns the distinct domains, sorted.
func (c *Catalog) Domains() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	seen := make(map[string]bool)
	var out []string
	for _, k := range c.order {
		if !seen[k.Domain] {
			seen[k.Domain] = true
			out = append(out, k.Domain)
		}
	}
	sort.Strings(out)
	return out
}

// Reset drops every entry.
func (c *Catalog) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[Key]*Entry)
	c.order = nil
}

// FlushOptions controls how entries become store records.
type FlushOptions struct {
	// Languages lists the locales every message is saved for.
	Languages []string
	// Domains, when non-empty, keeps only these domains.
	Domains []string
	// Merge saves every domain as "default".
	Merge bool
	// NoLocation leaves Refs empty.
	NoLocation bool
	// Roots are stripped from references.
	Roots []string
}

// FlushStats counts the outcome of a flush.
type FlushStats struct {
	Inserted int
	Skipped  int
}

// DefaultDomain is the domain merged messages are saved under.
const DefaultDomain = "default"

// Flush saves every entry for every language through store.Upsert and
// empties the catalog. On error the catalog is left intact.
func (c *Catalog) Flush(ctx context.Context, s store.Store, opts FlushOptions) (FlushStats, error) {
	var stats FlushStats
	allowed := make(map[string]bool, len(opts.Domains))
	for _, d := range opts.Domains {
		allowed[d] = true
	}

	for _, e := range c.Entries() {
		if len(allowed) > 0 && !allowed[e.Domain] {
			continue
		}
		domain := e.Domain
		if opts.Merge {
			domain = DefaultDomain
		}
		var refs, ctxt *string
		if !opts.NoLocation {
			r := e.References(opts.Roots)
			refs = &r
		}
		if e.Context != "" {
			v := e.Context
			ctxt = &v
		}
		for _, locale := range opts.Languages {
			if err := ctx.Err(); err != nil {
				return stats, err
			}
			out, err := store.Upsert(ctx, s, store.Record{
				Domain:   domain,
				Locale:   locale,
				Singular: e.Singular,
				Plural:   e.Plural,
				Context:  ctxt,
				Refs:     refs,
			})
			if err != nil {
				return stats, fmt.Errorf("flushing catalog: %w", err)
			}
			if out == store.Inserted {
				stats.Inserted++
			} else {
				stats.Skipped++
			}
		}
	}

	c.Reset()
	return stats, nil
}
