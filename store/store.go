// Package store defines where extracted messages are persisted.
//
// A Store holds one Record per (domain, locale, context, singular). The
// extractor only ever inserts: Upsert leaves existing records, and any
// translations they carry, untouched.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// ErrWrite marks a failed write to the backing store. It halts a flush.
var ErrWrite = errors.New("store write failed")

// Record is one persisted message for one locale.
type Record struct {
	Domain   string
	Locale   string
	Singular string
	// Plural, Context and Refs are nil when absent.
	Plural  *string
	Context *string
	Refs    *string
	// Translations holds the translated forms (singular first). Extraction
	// never writes it.
	Translations []string
}

// Key identifies a message within a domain and locale.
type Key struct {
	Singular string
	Context  *string
}

// Key returns the record's message key.
func (r Record) Key() Key {
	return Key{Singular: r.Singular, Context: r.Context}
}

// Query selects records. Empty Domain or Locale match any value; a nil
// Key matches every message.
type Query struct {
	Domain string
	Locale string
	Key    *Key
}

// ExistenceQuery is the query Upsert uses to look for r.
func ExistenceQuery(r Record) Query {
	k := r.Key()
	return Query{Domain: r.Domain, Locale: r.Locale, Key: &k}
}

// Matches reports whether r is selected by q. A nil Context in the key
// only matches records without a context.
func (q Query) Matches(r Record) bool {
	if q.Domain != "" && q.Domain != r.Domain {
		return false
	}
	if q.Locale != "" && q.Locale != r.Locale {
		return false
	}
	if q.Key == nil {
		return true
	}
	if q.Key.Singular != r.Singular {
		return false
	}
	if q.Key.Context == nil || r.Context == nil {
		return q.Key.Context == nil && r.Context == nil
	}
	return *q.Key.Context == *r.Context
}

// Store is a message repository.
type Store interface {
	Find(ctx context.Context, q Query) ([]Record, error)
	Count(ctx context.Context, q Query) (int, error)
	Save(ctx context.Context, r Record) error
	Close() error
}

// Outcome is the result of an Upsert.
type Outcome int

const (
	Inserted Outcome = iota
	Skipped
)

func (o Outcome) String() string {
	if o == Skipped {
		return "skipped"
	}
	return "inserted"
}

// Upsert saves r unless a record with the same domain, locale, singular
// and context exists.
func Upsert(ctx context.Context, s Store, r Record) (Outcome, error) {
	n, err := s.Count(ctx, ExistenceQuery(r))
	if err != nil {
		return Skipped, fmt.Errorf("%w: checking %s/%s %q: %w", ErrWrite, r.Domain, r.Locale, r.Singular, err)
	}
	if n > 0 {
		return Skipped, nil
	}
	if err := s.Save(ctx, r); err != nil {
		return Skipped, fmt.Errorf("%w: saving %s/%s %q: %w", ErrWrite, r.Domain, r.Locale, r.Singular, err)
	}
	return Inserted, nil
}

// Tally counts the records of one domain and locale.
type Tally struct {
	Domain     string
	Locale     string
	Messages   int
	Translated int
}

// Summarize groups every record in s by domain and locale, sorted.
func Summarize(ctx context.Context, s Store) ([]Tally, error) {
	recs, err := s.Find(ctx, Query{})
	if err != nil {
		return nil, err
	}
	idx := make(map[[2]string]*Tally)
	var out []*Tally
	for _, r := range recs {
		k := [2]string{r.Domain, r.Locale}
		t, ok := idx[k]
		if !ok {
			t = &Tally{Domain: r.Domain, Locale: r.Locale}
			idx[k] = t
			out = append(out, t)
		}
		t.Messages++
		if len(r.Translations) > 0 && r.Translations[0] != "" {
			t.Translated++
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Domain != out[j].Domain {
			return out[i].Domain < out[j].Domain
		}
		return out[i].Locale < out[j].Locale
	})
	res := make([]Tally, len(out))
	for i, t := range out {
		res[i] = *t
	}
	return res, nil
}
