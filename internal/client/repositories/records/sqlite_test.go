package records

import (
	"context"
	"database/sql"
	"testing"

	"github.com/dmitrijs2005/journalsync/internal/common"
	"github.com/dmitrijs2005/journalsync/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
CREATE TABLE records (
  entity TEXT NOT NULL,
  id TEXT NOT NULL,
  payload BLOB NOT NULL,
  last_updated INTEGER NOT NULL,
  deleted INTEGER NOT NULL DEFAULT 0,
  deleted_at INTEGER NOT NULL DEFAULT 0,
  pending INTEGER NOT NULL DEFAULT 0,
  PRIMARY KEY (entity, id)
);
`)
	require.NoError(t, err)

	return db
}

func newJournals(db *sql.DB) *SQLiteStore[*models.Journal] {
	return NewSQLiteStore(db, models.EntityJournals, func() *models.Journal { return &models.Journal{} })
}

func journal(id, title string, lastUpdated int64) *models.Journal {
	return &models.Journal{
		SyncMeta: models.SyncMeta{ID: id, CreatedAt: 1, LastUpdated: lastUpdated},
		Title:    title,
	}
}

func TestSaveAndGet(t *testing.T) {
	db := setupDB(t)
	s := newJournals(db)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, journal("j1", "Trip", 10)))

	got, found, err := s.Get(ctx, "j1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "Trip", got.Title)
	assert.Equal(t, int64(10), got.LastUpdated)

	var pending int
	require.NoError(t, db.QueryRow(`SELECT pending FROM records WHERE entity=? AND id=?`, "journals", "j1").Scan(&pending))
	assert.Equal(t, 1, pending)

	_, found, err = s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestPut_Upserts(t *testing.T) {
	db := setupDB(t)
	s := newJournals(db)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, journal("j1", "Trip", 10), false))
	require.NoError(t, s.Put(ctx, journal("j1", "Trip 2024", 20), false))

	got, _, err := s.Get(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, "Trip 2024", got.Title)

	n, err := s.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestEntitiesAreIsolated(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	journals := newJournals(db)
	content := NewSQLiteStore(db, models.EntityContent, func() *models.Content { return &models.Content{} })

	require.NoError(t, journals.Save(ctx, journal("x", "J", 1)))

	_, found, err := content.Get(ctx, "x")
	require.NoError(t, err)
	assert.False(t, found)

	n, err := content.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestListAndPending(t *testing.T) {
	db := setupDB(t)
	s := newJournals(db)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, journal("a", "A", 30), false))
	require.NoError(t, s.Save(ctx, journal("b", "B", 10)))
	require.NoError(t, s.Save(ctx, journal("c", "C", 20)))
	require.NoError(t, s.MarkDeleted(ctx, "c", 40))

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "b", list[0].ID)
	assert.Equal(t, "a", list[1].ID)

	pend, err := s.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pend, 2)
	assert.Equal(t, "b", pend[0].ID)
	assert.Equal(t, "c", pend[1].ID)
	assert.True(t, pend[1].Deleted)

	n, err := s.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestIsPending(t *testing.T) {
	s := newJournals(setupDB(t))
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, journal("local", "Mine", 10)))
	require.NoError(t, s.Put(ctx, journal("synced", "Theirs", 10), false))

	for id, want := range map[string]bool{"local": true, "synced": false, "missing": false} {
		got, err := s.IsPending(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, got, id)
	}

	require.NoError(t, s.Acknowledge(ctx, journal("local", "Mine", 10), 20))
	got, err := s.IsPending(ctx, "local")
	require.NoError(t, err)
	assert.False(t, got)
}

func TestMarkDeleted(t *testing.T) {
	db := setupDB(t)
	s := newJournals(db)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, journal("j1", "Trip", 10), false))
	require.NoError(t, s.MarkDeleted(ctx, "j1", 50))

	got, found, err := s.Get(ctx, "j1")
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, got.Deleted)
	assert.Equal(t, int64(50), got.DeletedAt)
	assert.Equal(t, int64(50), got.LastUpdated)

	assert.ErrorIs(t, s.MarkDeleted(ctx, "j1", 60), common.ErrorNotFound)
	assert.ErrorIs(t, s.MarkDeleted(ctx, "nope", 60), common.ErrorNotFound)
}

func TestAcknowledge(t *testing.T) {
	db := setupDB(t)
	s := newJournals(db)
	ctx := context.Background()

	j := journal("j1", "Trip", 10)
	require.NoError(t, s.Save(ctx, j))
	require.NoError(t, s.Acknowledge(ctx, j, 7))

	got, _, err := s.Get(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, int64(7), got.ServerVersion)
	n, err := s.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestAcknowledge_StaleKeepsPending(t *testing.T) {
	db := setupDB(t)
	s := newJournals(db)
	ctx := context.Background()

	uploaded := journal("j1", "Trip", 10)
	require.NoError(t, s.Save(ctx, uploaded))
	// edited again while the upload was in flight
	require.NoError(t, s.Save(ctx, journal("j1", "Trip 2024", 20)))
	require.NoError(t, s.Acknowledge(ctx, uploaded, 7))

	got, _, err := s.Get(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, "Trip 2024", got.Title)
	n, err := s.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestAcknowledge_TombstoneRemoved(t *testing.T) {
	db := setupDB(t)
	s := newJournals(db)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, journal("j1", "Trip", 10)))
	require.NoError(t, s.MarkDeleted(ctx, "j1", 30))

	tomb, _, err := s.Get(ctx, "j1")
	require.NoError(t, err)
	require.NoError(t, s.Acknowledge(ctx, tomb, 0))

	_, found, err := s.Get(ctx, "j1")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRemove(t *testing.T) {
	db := setupDB(t)
	s := newJournals(db)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, journal("j1", "Trip", 10)))
	require.NoError(t, s.Remove(ctx, "j1"))
	require.NoError(t, s.Remove(ctx, "j1"))

	_, found, err := s.Get(ctx, "j1")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestDecodeError(t *testing.T) {
	db := setupDB(t)
	s := newJournals(db)
	ctx := context.Background()

	_, err := db.Exec(`INSERT INTO records (entity, id, payload, last_updated) VALUES ('journals', 'bad', 'not json', 1)`)
	require.NoError(t, err)

	_, _, err = s.Get(ctx, "bad")
	assert.Error(t, err)
}
