package records

import (
	"context"
	"fmt"
	"sort"

	"github.com/dmitrijs2005/journalsync/internal/common"
	"github.com/dmitrijs2005/journalsync/internal/models"
	"github.com/dmitrijs2005/journalsync/internal/timex"
	"github.com/hashicorp/go-memdb"
)

// MemDB is the in-memory backing store shared by the memory repositories.
// Write transactions are serialized by memdb, which keeps ServerVersion
// assignment for one (user, id) monotonic.
type MemDB struct {
	db    *memdb.MemDB
	clock timex.Clock
}

// NewMemDB returns a new in-memory database. A nil clock means the wall clock.
func NewMemDB(clock timex.Clock) (*MemDB, error) {
	db, err := memdb.NewMemDB(schema)
	if err != nil {
		return nil, fmt.Errorf("new memdb: %w", err)
	}
	if clock == nil {
		clock = timex.SystemClock
	}
	return &MemDB{db: db, clock: clock}, nil
}

// MemoryRepository stores one entity type in a MemDB table. Stored values
// are private copies; callers always get clones.
type MemoryRepository[T models.Record[T]] struct {
	store *MemDB
	table string
	hooks hooks[T]
}

func NewMemoryJournals(store *MemDB) *MemoryRepository[*models.Journal] {
	return &MemoryRepository[*models.Journal]{store: store, table: models.EntityJournals}
}

func NewMemoryContent(store *MemDB) *MemoryRepository[*models.Content] {
	return &MemoryRepository[*models.Content]{store: store, table: models.EntityContent}
}

func NewMemoryMedia(store *MemDB) *MemoryRepository[*models.Media] {
	return &MemoryRepository[*models.Media]{store: store, table: models.EntityMedia, hooks: mediaHooks()}
}

// MemoryAssociations is the in-memory AssociationRepository.
type MemoryAssociations struct {
	*MemoryRepository[*models.Association]
}

func NewMemoryAssociations(store *MemDB) *MemoryAssociations {
	return &MemoryAssociations{&MemoryRepository[*models.Association]{
		store: store,
		table: models.EntityAssociations,
		hooks: associationHooks(),
	}}
}

func (r *MemoryRepository[T]) find(txn *memdb.Txn, userID, id string) (T, bool, error) {
	var zero T
	raw, err := txn.First(r.table, idxID, userID, id)
	if err != nil {
		return zero, false, fmt.Errorf("find %s %s: %w", r.table, id, err)
	}
	if raw == nil {
		return zero, false, nil
	}
	return raw.(T), true, nil
}

func (r *MemoryRepository[T]) upsertTxn(txn *memdb.Txn, userID string, rec T, now int64) (T, error) {
	var zero T
	stored := rec.Clone()
	if err := r.hooks.before(stored); err != nil {
		return zero, err
	}

	existing, found, err := r.find(txn, userID, stored.Meta().ID)
	if err != nil {
		return zero, err
	}
	var prev *models.SyncMeta
	if found {
		prev = existing.Meta()
	}
	stamp(stored.Meta(), userID, now, prev)

	if err := txn.Insert(r.table, stored); err != nil {
		return zero, fmt.Errorf("insert %s %s: %w", r.table, stored.Meta().ID, err)
	}
	return stored.Clone(), nil
}

func (r *MemoryRepository[T]) Upsert(_ context.Context, userID string, rec T) (T, error) {
	txn := r.store.db.Txn(true)
	defer txn.Abort()

	out, err := r.upsertTxn(txn, userID, rec, r.store.clock())
	if err != nil {
		return out, err
	}
	txn.Commit()
	return out, nil
}

func (r *MemoryRepository[T]) Get(_ context.Context, userID, id string) (T, bool, error) {
	txn := r.store.db.Txn(false)
	defer txn.Abort()

	rec, found, err := r.find(txn, userID, id)
	if err != nil || !found {
		return rec, false, err
	}
	return rec.Clone(), true, nil
}

// deleteTxn returns found=false when nothing is stored under id.
func (r *MemoryRepository[T]) deleteTxn(txn *memdb.Txn, userID, id string, deletedAt, now int64) (T, bool, error) {
	var zero T
	existing, found, err := r.find(txn, userID, id)
	if err != nil || !found {
		return zero, false, err
	}

	if deletedAt == 0 {
		deletedAt = now
	}
	stored := existing.Clone()
	m := stored.Meta()
	m.Deleted = true
	m.DeletedAt = deletedAt
	m.LastUpdated = deletedAt
	m.ServerVersion = nextVersion(now, existing.Meta().ServerVersion)

	if err := txn.Insert(r.table, stored); err != nil {
		return zero, false, fmt.Errorf("tombstone %s %s: %w", r.table, id, err)
	}
	return stored.Clone(), true, nil
}

func (r *MemoryRepository[T]) Delete(_ context.Context, userID, id string, deletedAt int64) (T, error) {
	txn := r.store.db.Txn(true)
	defer txn.Abort()

	out, found, err := r.deleteTxn(txn, userID, id, deletedAt, r.store.clock())
	if err != nil {
		return out, err
	}
	if !found {
		return out, common.ErrorNotFound
	}
	txn.Commit()
	return out, nil
}

func (r *MemoryRepository[T]) each(userID string, fn func(T)) error {
	txn := r.store.db.Txn(false)
	defer txn.Abort()

	it, err := txn.Get(r.table, idxUserID, userID)
	if err != nil {
		return fmt.Errorf("scan %s: %w", r.table, err)
	}
	for raw := it.Next(); raw != nil; raw = it.Next() {
		fn(raw.(T))
	}
	return nil
}

func (r *MemoryRepository[T]) ChangesSince(_ context.Context, userID string, since int64) (*models.ChangeSet[T], error) {
	cs := models.NewChangeSet[T](watermark(r.store.clock()))

	var tombstones []T
	err := r.each(userID, func(rec T) {
		m := rec.Meta()
		switch {
		case live(m, since):
			cs.Changes = append(cs.Changes, r.hooks.out(rec.Clone()))
		case gone(m, since):
			tombstones = append(tombstones, rec)
		}
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(cs.Changes, func(i, j int) bool {
		return cs.Changes[i].Meta().ServerVersion < cs.Changes[j].Meta().ServerVersion
	})
	sort.SliceStable(tombstones, func(i, j int) bool {
		return tombstones[i].Meta().DeletedAt < tombstones[j].Meta().DeletedAt
	})
	for _, t := range tombstones {
		cs.Deletions = append(cs.Deletions, t.Marker())
	}
	return cs, nil
}

func (r *MemoryRepository[T]) Stats(_ context.Context, userID string) (models.EntityStats, error) {
	var st models.EntityStats
	err := r.each(userID, func(rec T) {
		if rec.Meta().Deleted {
			st.Deleted++
		} else {
			st.Live++
		}
	})
	return st, err
}

func (r *MemoryRepository[T]) PurgeTombstones(_ context.Context, userID string, before int64) (int, error) {
	txn := r.store.db.Txn(true)
	defer txn.Abort()

	it, err := txn.Get(r.table, idxUserID, userID)
	if err != nil {
		return 0, fmt.Errorf("scan %s: %w", r.table, err)
	}
	var doomed []T
	for raw := it.Next(); raw != nil; raw = it.Next() {
		rec := raw.(T)
		if m := rec.Meta(); m.Deleted && m.DeletedAt < before {
			doomed = append(doomed, rec)
		}
	}
	for _, rec := range doomed {
		if err := txn.Delete(r.table, rec); err != nil {
			return 0, fmt.Errorf("purge %s %s: %w", r.table, rec.Meta().ID, err)
		}
	}
	txn.Commit()
	return len(doomed), nil
}

func (r *MemoryAssociations) UpsertMany(_ context.Context, userID string, recs []*models.Association) (int64, error) {
	txn := r.store.db.Txn(true)
	defer txn.Abort()

	now := r.store.clock()
	var top int64
	for _, rec := range recs {
		out, err := r.upsertTxn(txn, userID, rec, now)
		if err != nil {
			return 0, err
		}
		top = max(top, out.ServerVersion)
	}
	txn.Commit()
	return top, nil
}

func (r *MemoryAssociations) DeleteMany(_ context.Context, userID string, keys []models.AssociationKey, deletedAt int64) (int, int64, error) {
	txn := r.store.db.Txn(true)
	defer txn.Abort()

	now := r.store.clock()
	var n int
	var top int64
	for _, k := range keys {
		out, found, err := r.deleteTxn(txn, userID, k.String(), deletedAt, now)
		if err != nil {
			return 0, 0, err
		}
		if found {
			n++
			top = max(top, out.ServerVersion)
		}
	}
	txn.Commit()
	return n, top, nil
}
