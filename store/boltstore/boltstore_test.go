package boltstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minios-linux/i18nextract/store"
	"github.com/minios-linux/i18nextract/store/storetest"
)

func open(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "messages.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store { return open(t) })
}

func TestRecordKey_EmptyContextIsDistinct(t *testing.T) {
	empty := ""
	a := recordKey("d", "en", store.Key{Singular: "s"})
	b := recordKey("d", "en", store.Key{Singular: "s", Context: &empty})
	assert.NotEqual(t, a, b)
}

func TestFind_DomainPrefixDoesNotLeak(t *testing.T) {
	s := open(t)
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, store.Record{Domain: "cake", Locale: "en", Singular: "a"}))
	require.NoError(t, s.Save(ctx, store.Record{Domain: "cakephp", Locale: "en", Singular: "b"}))

	got, err := s.Find(ctx, store.Query{Domain: "cake"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].Singular)
}

func TestReopenKeepsRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "messages.db")
	ctx := context.Background()

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, store.Record{Domain: "d", Locale: "fr", Singular: "x", Translations: []string{"y"}}))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	n, err := s.Count(ctx, store.Query{Locale: "fr"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
