package records

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/journalsync/internal/common"
	"github.com/dmitrijs2005/journalsync/internal/dbx"
	"github.com/dmitrijs2005/journalsync/internal/models"
)

type SQLiteStore[T models.Record[T]] struct {
	db        dbx.DBTX
	entity    string
	newRecord func() T
}

func NewSQLiteStore[T models.Record[T]](db dbx.DBTX, entity string, newRecord func() T) *SQLiteStore[T] {
	return &SQLiteStore[T]{db: db, entity: entity, newRecord: newRecord}
}

func (s *SQLiteStore[T]) Entity() string {
	return s.entity
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Put inserts or replaces rec. pending marks it for upload.
func (s *SQLiteStore[T]) Put(ctx context.Context, rec T, pending bool) error {
	m := rec.Meta()
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode %s %s: %w", s.entity, m.ID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO records (entity, id, payload, last_updated, deleted, deleted_at, pending)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(entity, id) DO UPDATE SET
			payload = excluded.payload,
			last_updated = excluded.last_updated,
			deleted = excluded.deleted,
			deleted_at = excluded.deleted_at,
			pending = excluded.pending
	`, s.entity, m.ID, payload, m.LastUpdated, boolInt(m.Deleted), m.DeletedAt, boolInt(pending))
	if err != nil {
		return fmt.Errorf("failed to save %s %s: %w", s.entity, m.ID, err)
	}
	return nil
}

// Save records a local edit.
func (s *SQLiteStore[T]) Save(ctx context.Context, rec T) error {
	return s.Put(ctx, rec, true)
}

func (s *SQLiteStore[T]) decode(payload []byte) (T, error) {
	rec := s.newRecord()
	if err := json.Unmarshal(payload, rec); err != nil {
		var zero T
		return zero, fmt.Errorf("decode %s: %w", s.entity, err)
	}
	return rec, nil
}

// Get returns the record, tombstoned or not.
func (s *SQLiteStore[T]) Get(ctx context.Context, id string) (T, bool, error) {
	var zero T
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM records WHERE entity = ? AND id = ?`, s.entity, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, fmt.Errorf("failed to get %s %s: %w", s.entity, id, err)
	}
	rec, err := s.decode(payload)
	if err != nil {
		return zero, false, err
	}
	return rec, true, nil
}

func (s *SQLiteStore[T]) list(ctx context.Context, where string) ([]T, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT payload FROM records WHERE entity = ? AND `+where+` ORDER BY last_updated, id`, s.entity)
	if err != nil {
		return nil, fmt.Errorf("failed to select %s: %w", s.entity, err)
	}
	defer rows.Close()

	var result []T
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		rec, err := s.decode(payload)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// List returns live records, oldest edit first.
func (s *SQLiteStore[T]) List(ctx context.Context) ([]T, error) {
	return s.list(ctx, `deleted = 0`)
}

// Pending returns records with local changes the server has not
// acknowledged, including local tombstones.
func (s *SQLiteStore[T]) Pending(ctx context.Context) ([]T, error) {
	return s.list(ctx, `pending = 1`)
}

func (s *SQLiteStore[T]) IsPending(ctx context.Context, id string) (bool, error) {
	var pending bool
	err := s.db.QueryRowContext(ctx, `SELECT pending FROM records WHERE entity = ? AND id = ?`, s.entity, id).Scan(&pending)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read pending flag of %s %s: %w", s.entity, id, err)
	}
	return pending, nil
}

func (s *SQLiteStore[T]) PendingCount(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records WHERE entity = ? AND pending = 1`, s.entity).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending %s: %w", s.entity, err)
	}
	return n, nil
}

// MarkDeleted turns the record into a pending local tombstone. It returns
// common.ErrorNotFound when no live record exists under id.
func (s *SQLiteStore[T]) MarkDeleted(ctx context.Context, id string, deletedAt int64) error {
	rec, found, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if !found || rec.Meta().Deleted {
		return common.ErrorNotFound
	}
	m := rec.Meta()
	m.Deleted = true
	m.DeletedAt = deletedAt
	m.LastUpdated = deletedAt
	return s.Put(ctx, rec, true)
}

// Acknowledge clears the pending flag after the server accepted rec. A row
// edited again since rec was read stays pending. Acknowledged tombstones are
// removed.
func (s *SQLiteStore[T]) Acknowledge(ctx context.Context, rec T, serverVersion int64) error {
	m := rec.Meta()
	if m.Deleted {
		_, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE entity = ? AND id = ? AND deleted = 1 AND last_updated = ?`,
			s.entity, m.ID, m.LastUpdated)
		if err != nil {
			return fmt.Errorf("failed to drop tombstone %s %s: %w", s.entity, m.ID, err)
		}
		return nil
	}

	acked := rec.Clone()
	if serverVersion > 0 {
		acked.Meta().ServerVersion = serverVersion
	}
	payload, err := json.Marshal(acked)
	if err != nil {
		return fmt.Errorf("encode %s %s: %w", s.entity, m.ID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE records SET pending = 0, payload = ?
		WHERE entity = ? AND id = ? AND last_updated = ? AND deleted = 0
	`, payload, s.entity, m.ID, m.LastUpdated)
	if err != nil {
		return fmt.Errorf("failed to acknowledge %s %s: %w", s.entity, m.ID, err)
	}
	return nil
}

// Remove physically deletes the row.
func (s *SQLiteStore[T]) Remove(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE entity = ? AND id = ?`, s.entity, id)
	if err != nil {
		return fmt.Errorf("failed to remove %s %s: %w", s.entity, id, err)
	}
	return nil
}
