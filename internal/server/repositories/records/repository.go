// Package records implements per-user, versioned storage of sync records with
// change-feed queries. Every entity type shares one contract; associations and
// media add batch writes and server-side id allocation respectively.
package records

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/journalsync/internal/common"
	"github.com/dmitrijs2005/journalsync/internal/models"
)

// Repository stores records of one entity type. Every method is scoped to a
// single user and never sees another user's rows.
type Repository[T models.Record[T]] interface {
	// Upsert inserts or replaces the record keyed by (userID, id) and returns
	// the stored copy with its new ServerVersion. A tombstone is cleared.
	Upsert(ctx context.Context, userID string, rec T) (T, error)
	// Get reports found=false, not an error, when the record is absent.
	Get(ctx context.Context, userID, id string) (rec T, found bool, err error)
	// Delete tombstones the record. It returns common.ErrorNotFound when
	// nothing was stored under id.
	Delete(ctx context.Context, userID, id string, deletedAt int64) (T, error)
	// ChangesSince reports live records with LastUpdated or ServerVersion
	// above since, and deletion markers for tombstones newer than since.
	ChangesSince(ctx context.Context, userID string, since int64) (*models.ChangeSet[T], error)
	Stats(ctx context.Context, userID string) (models.EntityStats, error)
	// PurgeTombstones physically removes tombstones deleted before the given
	// instant and returns how many rows went away.
	PurgeTombstones(ctx context.Context, userID string, before int64) (int, error)
}

// AssociationRepository adds all-or-nothing batch writes.
type AssociationRepository interface {
	Repository[*models.Association]
	// UpsertMany returns the highest ServerVersion assigned in the batch.
	UpsertMany(ctx context.Context, userID string, recs []*models.Association) (int64, error)
	// DeleteMany tombstones the stored keys; unknown keys are skipped. It
	// returns the number tombstoned and the highest version assigned.
	DeleteMany(ctx context.Context, userID string, keys []models.AssociationKey, deletedAt int64) (int, int64, error)
}

// MediaRepository allocates a media id on Upsert when the record has none.
type MediaRepository interface {
	Repository[*models.Media]
}

// hooks adapt the generic storage to one entity type.
type hooks[T models.Record[T]] struct {
	// prepare normalises a record before it is written.
	prepare func(T) error
	// publish shapes a live record for a change-set.
	publish func(T) T
}

func (h hooks[T]) before(rec T) error {
	if h.prepare == nil {
		return nil
	}
	return h.prepare(rec)
}

func (h hooks[T]) out(rec T) T {
	if h.publish == nil {
		return rec
	}
	return h.publish(rec)
}

func associationHooks() hooks[*models.Association] {
	return hooks[*models.Association]{
		prepare: func(a *models.Association) error {
			if a.JournalID == "" || a.ContentID == "" {
				return fmt.Errorf("%w: association needs journalId and contentId", common.ErrorValidation)
			}
			a.ID = a.Key().String()
			return nil
		},
	}
}

func mediaHooks() hooks[*models.Media] {
	return hooks[*models.Media]{
		prepare: func(m *models.Media) error {
			if m.ID != "" {
				return nil
			}
			id, err := common.NewMediaID()
			if err != nil {
				return fmt.Errorf("allocate media id: %w", err)
			}
			m.ID = id
			return nil
		},
		publish: (*models.Media).WithoutData,
	}
}

// nextVersion keeps versions strictly increasing per record even when the
// clock stalls or steps back.
func nextVersion(now, previous int64) int64 {
	return max(now, previous+1)
}

// watermark trails the clock by one millisecond so a write that lands in the
// same millisecond as the read is sent again rather than lost.
func watermark(now int64) int64 {
	return now - 1
}

// stamp fills the server-owned fields of rec for an upsert.
func stamp(m *models.SyncMeta, userID string, now int64, existing *models.SyncMeta) {
	m.UserID = userID
	m.Deleted = false
	m.DeletedAt = 0
	if m.LastUpdated == 0 {
		m.LastUpdated = now
	}

	var previous int64
	if existing != nil {
		previous = existing.ServerVersion
		if existing.CreatedAt != 0 {
			m.CreatedAt = existing.CreatedAt
		}
	}
	if m.CreatedAt == 0 {
		m.CreatedAt = m.LastUpdated
	}
	m.ServerVersion = nextVersion(now, previous)
}

// live reports whether a record belongs in the changes channel for since.
func live(m *models.SyncMeta, since int64) bool {
	return !m.Deleted && (m.LastUpdated > since || m.ServerVersion > since)
}

// gone reports whether a record belongs in the deletions channel for since.
func gone(m *models.SyncMeta, since int64) bool {
	return m.Deleted && m.DeletedAt > since
}
