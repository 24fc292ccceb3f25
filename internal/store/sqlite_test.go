package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/invoice-rpa/internal/model"
)

func newTestDownloads(t *testing.T) *SQLiteTracker[model.DownloadRecord] {
	t.Helper()
	st, err := OpenSQLiteDownloads(context.Background(), filepath.Join(t.TempDir(), DownloadDBName))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	return st
}

func newTestDocuments(t *testing.T) *SQLiteTracker[model.DocumentRecord] {
	t.Helper()
	st, err := OpenSQLiteDocuments(context.Background(), filepath.Join(t.TempDir(), DocumentDBName))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	return st
}

var acme = model.NewIdentity("INV-001", "Acme Corp.", "1.234,50")

func TestSQLite_Downloads_RecordAndHas(t *testing.T) {
	st := newTestDownloads(t)
	ctx := context.Background()

	has, err := st.Has(ctx, acme)
	require.NoError(t, err)
	assert.False(t, has)

	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	inserted, err := st.Record(ctx, model.DownloadRecord{Identity: acme, Filename: acme.ArchiveName(), DownloadedAt: at})
	require.NoError(t, err)
	assert.True(t, inserted)

	has, err = st.Has(ctx, acme)
	require.NoError(t, err)
	assert.True(t, has)

	recs, err := st.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, acme, recs[0].Identity)
	assert.Equal(t, "INV-001_Acme_Corp.zip", recs[0].Filename)
	assert.True(t, at.Equal(recs[0].DownloadedAt))
}

func TestSQLite_Downloads_InsertOrIgnore(t *testing.T) {
	st := newTestDownloads(t)
	ctx := context.Background()

	first := model.DownloadRecord{Identity: acme, Filename: "first.zip"}
	second := model.DownloadRecord{Identity: acme, Filename: "second.zip"}

	inserted, err := st.Record(ctx, first)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = st.Record(ctx, second)
	require.NoError(t, err)
	assert.False(t, inserted)

	n, err := st.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	recs, err := st.List(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, "first.zip", recs[0].Filename, "existing record is never updated")
}

func TestSQLite_Downloads_IdentityIsAllThreeFields(t *testing.T) {
	st := newTestDownloads(t)
	ctx := context.Background()

	for _, total := range []string{"100", "200"} {
		_, err := st.Record(ctx, model.DownloadRecord{Identity: model.NewIdentity("INV-9", "Beta", total), Filename: "f.zip"})
		require.NoError(t, err)
	}
	n, err := st.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	has, err := st.Has(ctx, model.NewIdentity("INV-9", "Beta", "300"))
	require.NoError(t, err)
	assert.False(t, has)
}

func TestSQLite_Documents_ListLimitAndClear(t *testing.T) {
	st := newTestDocuments(t)
	ctx := context.Background()

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, doc := range []string{"A", "B", "C"} {
		_, err := st.Record(ctx, model.DocumentRecord{
			Identity:     model.NewIdentity(doc, "Acme", "10"),
			Content:      "<Invoice>" + doc + "</Invoice>",
			DownloadedAt: base.Add(time.Duration(i) * time.Hour),
		})
		require.NoError(t, err)
	}

	recs, err := st.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "C", recs[0].DocumentNumber)
	assert.Equal(t, "<Invoice>C</Invoice>", recs[0].Content)

	removed, err := st.Clear(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), removed)

	n, err := st.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSQLite_ReopenKeepsRecords(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", DownloadDBName)

	st, err := OpenSQLiteDownloads(ctx, path)
	require.NoError(t, err)
	_, err = st.Record(ctx, model.DownloadRecord{Identity: acme, Filename: "a.zip"})
	require.NoError(t, err)
	require.NoError(t, st.Close())

	st, err = OpenSQLiteDownloads(ctx, path)
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck
	has, err := st.Has(ctx, acme)
	require.NoError(t, err)
	assert.True(t, has)
	assert.Equal(t, path, st.Path())
}
