package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/roastd/internal/roast"
)

type fakeIDGen struct{ id string }

func (f fakeIDGen) NewID() (string, error) { return f.id, nil }

type fakeClock struct{ now time.Time }

func (c fakeClock) Now() time.Time { return c.now }

func TestNewRecordStoreWithPoolValidation(t *testing.T) {
	t.Parallel()

	_, err := NewRecordStoreWithPool(nil, "roasts", fakeIDGen{}, fakeClock{})
	require.Error(t, err)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	_, err = NewRecordStoreWithPool(mock, "roasts; DROP TABLE x", fakeIDGen{}, fakeClock{})
	require.ErrorContains(t, err, "invalid table name")
}

func TestCreateRecordInsertsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Unix(1700000000, 0).UTC()
	store, err := NewRecordStoreWithPool(mock, "", fakeIDGen{id: "rec-1"}, fakeClock{now: now})
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO roasts").
		WithArgs("rec-1", "https://example.com", "gs://shots/a.jpg", "", "completed", now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	id, err := store.CreateRecord(context.Background(), roast.ContentRecord{
		URL:        "https://example.com",
		StorageRef: "gs://shots/a.jpg",
	})
	require.NoError(t, err)
	require.Equal(t, "rec-1", id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateRecordInsertFailure(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewRecordStoreWithPool(mock, "roasts", fakeIDGen{id: "rec-1"}, fakeClock{now: time.Unix(0, 0)})
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO roasts").WillReturnError(errors.New("connection reset"))

	_, err = store.CreateRecord(context.Background(), roast.ContentRecord{URL: "https://example.com"})
	require.ErrorContains(t, err, "connection reset")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListRecentScansRows(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewRecordStoreWithPool(mock, "roasts", fakeIDGen{}, fakeClock{})
	require.NoError(t, err)

	newer := time.Unix(1700000100, 0).UTC()
	older := time.Unix(1700000000, 0).UTC()
	rows := pgxmock.NewRows([]string{"id", "url", "storage_ref", "content_hash", "status", "created_at"}).
		AddRow("b", "https://b.example", "gs://shots/b.jpg", "", "completed", newer).
		AddRow("a", "https://a.example", "gs://shots/a.jpg", "deadbeef", "completed", older)
	mock.ExpectQuery("SELECT id, url, storage_ref").
		WithArgs("completed", 24).
		WillReturnRows(rows)

	got, err := store.ListRecent(context.Background(), 24)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "b", got[0].ID)
	require.Equal(t, roast.RecordCompleted, got[0].Status)
	require.Equal(t, "deadbeef", got[1].ContentHash)
	require.Equal(t, older, got[1].CreatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureSchema(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewRecordStoreWithPool(mock, "roasts", fakeIDGen{}, fakeClock{})
	require.NoError(t, err)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS roasts").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	require.NoError(t, store.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}
