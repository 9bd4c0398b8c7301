package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/journalsync/internal/common"
	"github.com/dmitrijs2005/journalsync/internal/dbx"
	"github.com/dmitrijs2005/journalsync/internal/models"
	"github.com/dmitrijs2005/journalsync/internal/timex"
)

type queries struct {
	upsert, get, delete, live, deletions, stats, purge string
}

func buildQueries(name string, payload []string) queries {
	cols := append(append([]string{}, metaColumns...), payload...)
	list := strings.Join(cols, ", ")

	ph := make([]string, len(cols))
	for i := range cols {
		ph[i] = fmt.Sprintf("$%d", i+1)
	}

	sets := []string{
		"last_updated = EXCLUDED.last_updated",
		"server_version = GREATEST(EXCLUDED.server_version, t.server_version + 1)",
		"device_id = EXCLUDED.device_id",
		"deleted = FALSE",
		"deleted_at = 0",
	}
	for _, c := range payload {
		sets = append(sets, c+" = EXCLUDED."+c)
	}

	return queries{
		upsert: fmt.Sprintf(`INSERT INTO %s AS t (%s) VALUES (%s)
			ON CONFLICT (user_id, id) DO UPDATE SET %s
			RETURNING created_at, last_updated, server_version`,
			name, list, strings.Join(ph, ", "), strings.Join(sets, ", ")),
		get: fmt.Sprintf(`SELECT %s FROM %s WHERE user_id = $1 AND id = $2`, list, name),
		delete: fmt.Sprintf(`UPDATE %s SET deleted = TRUE, deleted_at = $3, last_updated = $3,
			server_version = GREATEST($4, server_version + 1)
			WHERE user_id = $1 AND id = $2
			RETURNING %s`, name, list),
		live: fmt.Sprintf(`SELECT %s FROM %s
			WHERE user_id = $1 AND NOT deleted AND (last_updated > $2 OR server_version > $2)
			ORDER BY server_version`, list, name),
		deletions: fmt.Sprintf(`SELECT %s FROM %s
			WHERE user_id = $1 AND deleted AND deleted_at > $2
			ORDER BY deleted_at`, list, name),
		stats: fmt.Sprintf(`SELECT COUNT(*) FILTER (WHERE NOT deleted), COUNT(*) FILTER (WHERE deleted)
			FROM %s WHERE user_id = $1`, name),
		purge: fmt.Sprintf(`DELETE FROM %s WHERE user_id = $1 AND deleted AND deleted_at < $2`, name),
	}
}

// PostgresRepository implements Repository over a dbx.DBTX (*sql.DB or
// *sql.Tx). Version arithmetic happens inside the upsert statement, so
// concurrent writers to one row are serialized by the row lock.
type PostgresRepository[T models.Record[T]] struct {
	db    dbx.DBTX
	clock timex.Clock
	t     *table[T]
	q     queries
	hooks hooks[T]
}

func newPostgresRepository[T models.Record[T]](db dbx.DBTX, clock timex.Clock, t *table[T], h hooks[T]) *PostgresRepository[T] {
	if clock == nil {
		clock = timex.SystemClock
	}
	return &PostgresRepository[T]{db: db, clock: clock, t: t, q: buildQueries(t.name, t.columns), hooks: h}
}

func NewPostgresJournals(db dbx.DBTX, clock timex.Clock) *PostgresRepository[*models.Journal] {
	return newPostgresRepository(db, clock, journalsTable, hooks[*models.Journal]{})
}

func NewPostgresContent(db dbx.DBTX, clock timex.Clock) *PostgresRepository[*models.Content] {
	return newPostgresRepository(db, clock, contentTable, hooks[*models.Content]{})
}

func NewPostgresMedia(db dbx.DBTX, clock timex.Clock) *PostgresRepository[*models.Media] {
	return newPostgresRepository(db, clock, mediaTable, mediaHooks())
}

// PostgresAssociations is the PostgreSQL AssociationRepository.
type PostgresAssociations struct {
	*PostgresRepository[*models.Association]
}

func NewPostgresAssociations(db dbx.DBTX, clock timex.Clock) *PostgresAssociations {
	return &PostgresAssociations{newPostgresRepository(db, clock, associationsTable, associationHooks())}
}

func (r *PostgresRepository[T]) withDB(db dbx.DBTX) *PostgresRepository[T] {
	c := *r
	c.db = db
	return &c
}

// inTx runs fn in a transaction unless the repository is already bound to one.
func (r *PostgresRepository[T]) inTx(ctx context.Context, fn func(ctx context.Context, repo *PostgresRepository[T]) error) error {
	db, ok := r.db.(*sql.DB)
	if !ok {
		return fn(ctx, r)
	}
	return dbx.WithTx(ctx, db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return fn(ctx, r.withDB(tx))
	})
}

type scanner interface {
	Scan(dest ...any) error
}

func (r *PostgresRepository[T]) scan(row scanner) (T, error) {
	rec := r.t.newRecord()
	m := rec.Meta()
	dest := append([]any{
		&m.ID, &m.UserID, &m.CreatedAt, &m.LastUpdated, &m.ServerVersion, &m.DeviceID, &m.Deleted, &m.DeletedAt,
	}, r.t.fields(rec)...)
	if err := row.Scan(dest...); err != nil {
		var zero T
		return zero, err
	}
	return rec, nil
}

func (r *PostgresRepository[T]) upsert(ctx context.Context, userID string, rec T, now int64) (T, error) {
	var zero T
	stored := rec.Clone()
	if err := r.hooks.before(stored); err != nil {
		return zero, err
	}

	m := stored.Meta()
	stamp(m, userID, now, nil)

	args := append([]any{
		m.ID, userID, m.CreatedAt, m.LastUpdated, m.ServerVersion, m.DeviceID, false, int64(0),
	}, r.t.values(stored)...)

	err := r.db.QueryRowContext(ctx, r.q.upsert, args...).Scan(&m.CreatedAt, &m.LastUpdated, &m.ServerVersion)
	if err != nil {
		return zero, fmt.Errorf("upsert %s %s: %w", r.t.name, m.ID, err)
	}
	return stored, nil
}

func (r *PostgresRepository[T]) Upsert(ctx context.Context, userID string, rec T) (T, error) {
	return r.upsert(ctx, userID, rec, r.clock())
}

func (r *PostgresRepository[T]) Get(ctx context.Context, userID, id string) (T, bool, error) {
	rec, err := r.scan(r.db.QueryRowContext(ctx, r.q.get, userID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return rec, false, nil
	}
	if err != nil {
		return rec, false, fmt.Errorf("get %s %s: %w", r.t.name, id, err)
	}
	return rec, true, nil
}

func (r *PostgresRepository[T]) remove(ctx context.Context, userID, id string, deletedAt, now int64) (T, error) {
	if deletedAt == 0 {
		deletedAt = now
	}
	rec, err := r.scan(r.db.QueryRowContext(ctx, r.q.delete, userID, id, deletedAt, now))
	if errors.Is(err, sql.ErrNoRows) {
		return rec, common.ErrorNotFound
	}
	if err != nil {
		return rec, fmt.Errorf("delete %s %s: %w", r.t.name, id, err)
	}
	return rec, nil
}

func (r *PostgresRepository[T]) Delete(ctx context.Context, userID, id string, deletedAt int64) (T, error) {
	return r.remove(ctx, userID, id, deletedAt, r.clock())
}

func (r *PostgresRepository[T]) list(ctx context.Context, query string, args ...any) ([]T, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", r.t.name, err)
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		rec, err := r.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", r.t.name, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows %s: %w", r.t.name, err)
	}
	return out, nil
}

func (r *PostgresRepository[T]) ChangesSince(ctx context.Context, userID string, since int64) (*models.ChangeSet[T], error) {
	cs := models.NewChangeSet[T](watermark(r.clock()))

	changed, err := r.list(ctx, r.q.live, userID, since)
	if err != nil {
		return nil, err
	}
	for _, rec := range changed {
		cs.Changes = append(cs.Changes, r.hooks.out(rec))
	}

	deleted, err := r.list(ctx, r.q.deletions, userID, since)
	if err != nil {
		return nil, err
	}
	for _, rec := range deleted {
		cs.Deletions = append(cs.Deletions, rec.Marker())
	}
	return cs, nil
}

func (r *PostgresRepository[T]) Stats(ctx context.Context, userID string) (models.EntityStats, error) {
	var st models.EntityStats
	if err := r.db.QueryRowContext(ctx, r.q.stats, userID).Scan(&st.Live, &st.Deleted); err != nil {
		return st, fmt.Errorf("stats %s: %w", r.t.name, err)
	}
	return st, nil
}

func (r *PostgresRepository[T]) PurgeTombstones(ctx context.Context, userID string, before int64) (int, error) {
	res, err := r.db.ExecContext(ctx, r.q.purge, userID, before)
	if err != nil {
		return 0, fmt.Errorf("purge %s: %w", r.t.name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected error: %w", err)
	}
	return int(n), nil
}

func (r *PostgresAssociations) UpsertMany(ctx context.Context, userID string, recs []*models.Association) (int64, error) {
	now := r.clock()
	var top int64
	err := r.inTx(ctx, func(ctx context.Context, repo *PostgresRepository[*models.Association]) error {
		for _, rec := range recs {
			out, err := repo.upsert(ctx, userID, rec, now)
			if err != nil {
				return err
			}
			top = max(top, out.ServerVersion)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return top, nil
}

func (r *PostgresAssociations) DeleteMany(ctx context.Context, userID string, keys []models.AssociationKey, deletedAt int64) (int, int64, error) {
	now := r.clock()
	var n int
	var top int64
	err := r.inTx(ctx, func(ctx context.Context, repo *PostgresRepository[*models.Association]) error {
		for _, k := range keys {
			out, err := repo.remove(ctx, userID, k.String(), deletedAt, now)
			if errors.Is(err, common.ErrorNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			n++
			top = max(top, out.ServerVersion)
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return n, top, nil
}
