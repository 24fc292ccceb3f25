package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/invoice-rpa/internal/model"
)

func newMockPool(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })
	return mock
}

func TestPostgres_Migrate(t *testing.T) {
	mock := newMockPool(t)
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS invoice_downloads`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS invoice_documents \(.*xml_content`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	ctx := context.Background()
	require.NoError(t, NewPostgresDownloads(mock).Migrate(ctx))
	require.NoError(t, NewPostgresDocuments(mock).Migrate(ctx))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Has(t *testing.T) {
	mock := newMockPool(t)
	mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM invoice_downloads`).
		WithArgs("INV-001", "Acme_Corp", "123450").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	has, err := NewPostgresDownloads(mock).Has(context.Background(), acme)
	require.NoError(t, err)
	assert.True(t, has)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Record_OnConflictDoNothing(t *testing.T) {
	mock := newMockPool(t)
	s := NewPostgresDownloads(mock)
	rec := model.DownloadRecord{Identity: acme, Filename: "INV-001_Acme_Corp.zip"}

	mock.ExpectExec(`INSERT INTO invoice_downloads .* ON CONFLICT \(numero_documento, emisor, valor_total\) DO NOTHING`).
		WithArgs("INV-001", "Acme_Corp", "123450", "INV-001_Acme_Corp.zip", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO invoice_downloads`).
		WithArgs("INV-001", "Acme_Corp", "123450", "INV-001_Acme_Corp.zip", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	ctx := context.Background()
	inserted, err := s.Record(ctx, rec)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = s.Record(ctx, rec)
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Record_Error(t *testing.T) {
	mock := newMockPool(t)
	mock.ExpectExec(`INSERT INTO invoice_documents`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(errors.New("connection refused"))

	_, err := NewPostgresDocuments(mock).Record(context.Background(), model.DocumentRecord{Identity: acme, Content: "<x/>"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres: record")
	assert.Contains(t, err.Error(), "connection refused")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_ListCountClear(t *testing.T) {
	mock := newMockPool(t)
	s := NewPostgresDocuments(mock)
	at := time.Date(2025, 2, 3, 4, 5, 6, 0, time.UTC)

	mock.ExpectQuery(`SELECT numero_documento, emisor, valor_total, xml_content, downloaded_at\s+FROM invoice_documents`).
		WithArgs(5).
		WillReturnRows(pgxmock.NewRows([]string{"numero_documento", "emisor", "valor_total", "xml_content", "downloaded_at"}).
			AddRow("INV-001", "Acme", "10", "<Invoice/>", at))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM invoice_documents`).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectExec(`DELETE FROM invoice_documents`).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	ctx := context.Background()
	recs, err := s.List(ctx, 5)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "<Invoice/>", recs[0].Content)
	assert.Equal(t, at, recs[0].DownloadedAt)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	removed, err := s.Clear(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
	assert.NoError(t, mock.ExpectationsWereMet())
}
