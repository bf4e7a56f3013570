// Package storetest holds the behaviour every store.Store back-end must
// share. Back-end packages call Run from their own tests.
package storetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minios-linux/i18nextract/store"
)

func strp(s string) *string { return &s }

// Run exercises a fresh store returned by open.
func Run(t *testing.T, open func(t *testing.T) store.Store) {
	t.Run("FindByKey", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()

		plain := store.Record{Domain: "default", Locale: "en", Singular: "Hello", Refs: strp("./a.php:3")}
		withCtx := store.Record{Domain: "default", Locale: "en", Singular: "Hello", Context: strp("menu"), Plural: strp("Hellos")}
		other := store.Record{Domain: "cake", Locale: "fr", Singular: "Hello"}
		for _, r := range []store.Record{plain, withCtx, other} {
			require.NoError(t, s.Save(ctx, r))
		}

		got, err := s.Find(ctx, store.ExistenceQuery(plain))
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Nil(t, got[0].Context)
		require.NotNil(t, got[0].Refs)
		assert.Equal(t, "./a.php:3", *got[0].Refs)

		got, err = s.Find(ctx, store.ExistenceQuery(withCtx))
		require.NoError(t, err)
		require.Len(t, got, 1)
		require.NotNil(t, got[0].Plural)
		assert.Equal(t, "Hellos", *got[0].Plural)

		n, err := s.Count(ctx, store.Query{Locale: "en"})
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		n, err = s.Count(ctx, store.Query{})
		require.NoError(t, err)
		assert.Equal(t, 3, n)
	})

	t.Run("UpsertSkipsExisting", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()

		r := store.Record{Domain: "default", Locale: "de", Singular: "Save", Translations: []string{"Speichern"}}
		require.NoError(t, s.Save(ctx, r))

		out, err := store.Upsert(ctx, s, store.Record{Domain: "default", Locale: "de", Singular: "Save", Refs: strp("./b.php:1")})
		require.NoError(t, err)
		assert.Equal(t, store.Skipped, out)

		got, err := s.Find(ctx, store.ExistenceQuery(r))
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Nil(t, got[0].Refs)
		assert.Equal(t, []string{"Speichern"}, got[0].Translations)

		out, err = store.Upsert(ctx, s, store.Record{Domain: "default", Locale: "fr", Singular: "Save"})
		require.NoError(t, err)
		assert.Equal(t, store.Inserted, out)
	})
}
