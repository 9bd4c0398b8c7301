package syncer

import (
	"context"

	"github.com/dmitrijs2005/journalsync/internal/logging"
)

// SyncResult summarizes one pass. Success is true when Errors is empty.
type SyncResult struct {
	Success           bool         `json:"success"`
	Uploaded          int          `json:"uploaded"`
	Downloaded        int          `json:"downloaded"`
	ConflictsResolved int          `json:"conflictsResolved"`
	Errors            []*SyncError `json:"errors,omitempty"`
	// LastSyncAt is the time of the last successful pass, in epoch ms.
	LastSyncAt int64 `json:"lastSyncAt"`
}

// SyncStatus is the state callers poll between passes.
type SyncStatus struct {
	Enabled        bool       `json:"enabled"`
	Syncing        bool       `json:"syncing"`
	LastSyncAt     int64      `json:"lastSyncAt"`
	PendingChanges int        `json:"pendingChanges"`
	HasErrors      bool       `json:"hasErrors"`
	LastError      *SyncError `json:"lastError,omitempty"`
}

func failed(err *SyncError) *SyncResult {
	return &SyncResult{Errors: []*SyncError{err}}
}

// pass accumulates the outcome of one run across lanes.
type pass struct {
	deviceID string
	cps      Checkpoints
	log      logging.Logger
	res      SyncResult
	// aborted stops the remaining lanes after an authentication failure.
	aborted bool
}

func (p *pass) fail(ctx context.Context, err *SyncError) {
	p.log.Warn(ctx, "sync error", "kind", string(err.Kind), "entity", err.Entity, "id", err.ID, "error", err.Err)
	p.res.Errors = append(p.res.Errors, err)
	if err.Kind == AuthenticationError {
		p.aborted = true
	}
}
