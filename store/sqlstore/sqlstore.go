// Package sqlstore keeps extracted messages in a PostgreSQL table.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/minios-linux/i18nextract/store"
)

// DefaultTable is the message table name.
const DefaultTable = "i18n_messages"

// maxValues is the number of translation columns (value_0..value_2).
const maxValues = 3

// Store is a store.Store backed by database/sql with the pgx driver.
type Store struct {
	db    *sql.DB
	table string

	schemaOnce sync.Once
	schemaErr  error

	// known caches keys confirmed to exist; records are never deleted by
	// this package, so a positive answer stays valid for the run.
	known *lru.Cache[string, bool]
}

// Open connects to dsn and verifies the connection.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("pgx", strings.TrimSpace(dsn))
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	return New(db, DefaultTable)
}

// New wraps an open database. table must be a plain SQL identifier.
func New(db *sql.DB, table string) (*Store, error) {
	if !validIdent(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	cache, err := lru.New[string, bool](4096)
	if err != nil {
		return nil, err
	}
	return &Store{db: db, table: table, known: cache}, nil
}

func validIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, c := range s {
		switch {
		case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

func (s *Store) ensureSchema(ctx context.Context) error {
	s.schemaOnce.Do(func() {
		_, s.schemaErr = s.db.ExecContext(ctx, fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %[1]s (
  id SERIAL PRIMARY KEY,
  domain TEXT NOT NULL,
  locale TEXT NOT NULL,
  singular TEXT NOT NULL,
  plural TEXT,
  context TEXT,
  refs TEXT,
  value_0 TEXT,
  value_1 TEXT,
  value_2 TEXT,
  created TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
  modified TIMESTAMP WITH TIME ZONE DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_%[1]s_lookup ON %[1]s (domain, locale, singular);
`, s.table))
	})
	return s.schemaErr
}

// where renders q as a WHERE clause with positional arguments.
func where(q store.Query) (string, []any) {
	var conds []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if q.Domain != "" {
		add("domain = $%d", q.Domain)
	}
	if q.Locale != "" {
		add("locale = $%d", q.Locale)
	}
	if q.Key != nil {
		add("singular = $%d", q.Key.Singular)
		if q.Key.Context == nil {
			conds = append(conds, "context IS NULL")
		} else {
			add("context = $%d", *q.Key.Context)
		}
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// cacheKey is set only for fully specified existence queries.
func cacheKey(q store.Query) (string, bool) {
	if q.Domain == "" || q.Locale == "" || q.Key == nil {
		return "", false
	}
	ctx := "\x01"
	if q.Key.Context != nil {
		ctx = *q.Key.Context
	}
	return strings.Join([]string{q.Domain, q.Locale, ctx, q.Key.Singular}, "\x00"), true
}

func (s *Store) Find(ctx context.Context, q store.Query) ([]store.Record, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	cond, args := where(q)
	rows, err := s.db.QueryContext(ctx, `SELECT domain, locale, singular, plural, context, refs, value_0, value_1, value_2
FROM `+s.table+cond+` ORDER BY id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.Record
	for rows.Next() {
		var (
			r                     store.Record
			plural, msgctxt, refs sql.NullString
			values                [maxValues]sql.NullString
		)
		if err := rows.Scan(&r.Domain, &r.Locale, &r.Singular, &plural, &msgctxt, &refs,
			&values[0], &values[1], &values[2]); err != nil {
			return nil, err
		}
		r.Plural = nullable(plural)
		r.Context = nullable(msgctxt)
		r.Refs = nullable(refs)
		for _, v := range values {
			if !v.Valid {
				break
			}
			r.Translations = append(r.Translations, v.String)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) Count(ctx context.Context, q store.Query) (int, error) {
	key, cacheable := cacheKey(q)
	if cacheable {
		if _, ok := s.known.Get(key); ok {
			return 1, nil
		}
	}
	if err := s.ensureSchema(ctx); err != nil {
		return 0, err
	}
	cond, args := where(q)
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+s.table+cond, args...).Scan(&n); err != nil {
		return 0, err
	}
	if cacheable && n > 0 {
		s.known.Add(key, true)
	}
	return n, nil
}

func (s *Store) Save(ctx context.Context, r store.Record) error {
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}
	var values [maxValues]*string
	for i := 0; i < len(r.Translations) && i < maxValues; i++ {
		v := r.Translations[i]
		values[i] = &v
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO `+s.table+` (
  domain, locale, singular, plural, context, refs, value_0, value_1, value_2
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		r.Domain, r.Locale, r.Singular, r.Plural, r.Context, r.Refs, values[0], values[1], values[2])
	if err != nil {
		return err
	}
	if key, ok := cacheKey(store.ExistenceQuery(r)); ok {
		s.known.Add(key, true)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func nullable(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}
