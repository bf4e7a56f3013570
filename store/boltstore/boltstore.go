// Package boltstore keeps extracted messages in an embedded bbolt file.
// Records live in a single "messages" bucket, JSON-encoded, keyed so that
// one domain's records sort together.
package boltstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/minios-linux/i18nextract/store"
)

var bucketMessages = []byte("messages")

// Store is a store.Store backed by bbolt.
type Store struct {
	db *bolt.DB
}

// Open opens (or creates) a bbolt database at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("bbolt open: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketMessages)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bbolt init: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying bbolt database.
func (s *Store) Close() error {
	return s.db.Close()
}

// recordJSON is the stored form of a record.
type recordJSON struct {
	Domain       string   `json:"domain"`
	Locale       string   `json:"locale"`
	Singular     string   `json:"singular"`
	Plural       *string  `json:"plural,omitempty"`
	Context      *string  `json:"context,omitempty"`
	Refs         *string  `json:"refs,omitempty"`
	Translations []string `json:"translations,omitempty"`
	Created      int64    `json:"created"`
}

// recordKey is domain, locale, context and singular separated by NUL.
// A missing context is encoded as "-" and a present one as "+" followed
// by its text, so the empty context stays distinct.
func recordKey(domain, locale string, k store.Key) []byte {
	ctx := "-"
	if k.Context != nil {
		ctx = "+" + *k.Context
	}
	return []byte(domain + "\x00" + locale + "\x00" + ctx + "\x00" + k.Singular)
}

// prefix narrows a bucket scan for q.
func prefix(q store.Query) []byte {
	if q.Domain == "" {
		return nil
	}
	if q.Locale == "" {
		return []byte(q.Domain + "\x00")
	}
	return []byte(q.Domain + "\x00" + q.Locale + "\x00")
}

func (s *Store) Find(_ context.Context, q store.Query) ([]store.Record, error) {
	var out []store.Record
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketMessages)
		if q.Domain != "" && q.Locale != "" && q.Key != nil {
			v := b.Get(recordKey(q.Domain, q.Locale, *q.Key))
			if v == nil {
				return nil
			}
			r, err := decode(v)
			if err != nil {
				return err
			}
			out = append(out, r)
			return nil
		}

		p := prefix(q)
		c := b.Cursor()
		for k, v := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, v = c.Next() {
			r, err := decode(v)
			if err != nil {
				return fmt.Errorf("decoding %q: %w", k, err)
			}
			if q.Matches(r) {
				out = append(out, r)
			}
		}
		return nil
	})
	return out, err
}

func (s *Store) Count(ctx context.Context, q store.Query) (int, error) {
	recs, err := s.Find(ctx, q)
	return len(recs), err
}

func (s *Store) Save(_ context.Context, r store.Record) error {
	data, err := json.Marshal(recordJSON{
		Domain:       r.Domain,
		Locale:       r.Locale,
		Singular:     r.Singular,
		Plural:       r.Plural,
		Context:      r.Context,
		Refs:         r.Refs,
		Translations: r.Translations,
		Created:      time.Now().Unix(),
	})
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketMessages).Put(recordKey(r.Domain, r.Locale, r.Key()), data)
	})
}

// decode copies v out of the transaction as a record.
func decode(v []byte) (store.Record, error) {
	var rj recordJSON
	if err := json.Unmarshal(v, &rj); err != nil {
		return store.Record{}, err
	}
	return store.Record{
		Domain:       rj.Domain,
		Locale:       rj.Locale,
		Singular:     rj.Singular,
		Plural:       rj.Plural,
		Context:      rj.Context,
		Refs:         rj.Refs,
		Translations: rj.Translations,
	}, nil
}
