// Package records provides the client-side persistence layer for sync
// records.
//
// # Overview
//
// SQLiteStore keeps one entity type in the shared records table as a JSON
// payload keyed by (entity, id). Rows carry a pending flag for local changes
// not yet acknowledged by the server and a deleted flag for local tombstones,
// so deletions made offline still reach the server.
//
// # Concurrency
//
// The store is safe for concurrent use when backed by a *sql.DB. When bound
// to a *sql.Tx (dbx.DBTX), follow normal transaction scoping rules.
//
// Typical Usage
//
//	journals := records.NewSQLiteStore(db, models.EntityJournals, func() *models.Journal { return &models.Journal{} })
//	_ = journals.Save(ctx, j)
//	list, _ := journals.List(ctx)
//	_ = journals.MarkDeleted(ctx, id, now)
//	pend, _ := journals.Pending(ctx)
package records
