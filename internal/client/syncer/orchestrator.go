package syncer

import (
	"context"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/journalsync/internal/logging"
	"github.com/dmitrijs2005/journalsync/internal/models"
	"github.com/dmitrijs2005/journalsync/internal/timex"
)

// Credentials yields the access token; an empty token means logged out.
type Credentials interface {
	AccessToken(ctx context.Context) (string, error)
}

type Orchestrator struct {
	deviceID string
	creds    Credentials
	cps      Checkpoints
	clock    timex.Clock
	log      logging.Logger
	lanes    []Lane

	// run serializes passes.
	run sync.Mutex

	mu      sync.Mutex
	syncing bool
	lastErr *SyncError
}

// New builds an orchestrator. FullSync visits lanes in the given order, so
// pass journals and content before associations.
func New(deviceID string, creds Credentials, cps Checkpoints, clock timex.Clock, l logging.Logger, lanes ...Lane) *Orchestrator {
	if clock == nil {
		clock = timex.SystemClock
	}
	if l == nil {
		l = logging.Nop()
	}
	return &Orchestrator{
		deviceID: deviceID,
		creds:    creds,
		cps:      cps,
		clock:    clock,
		log:      l.With("module", "syncer"),
		lanes:    lanes,
	}
}

type phase func(ctx context.Context, p *pass, l Lane) *SyncError

func uploadPhase(ctx context.Context, p *pass, l Lane) *SyncError   { return l.upload(ctx, p) }
func downloadPhase(ctx context.Context, p *pass, l Lane) *SyncError { return l.download(ctx, p) }

// UploadPendingChanges pushes every lane's pending records.
func (o *Orchestrator) UploadPendingChanges(ctx context.Context) *SyncResult {
	return o.execute(ctx, "upload", o.lanes, uploadPhase)
}

// DownloadRemoteChanges pulls every lane's change-set.
func (o *Orchestrator) DownloadRemoteChanges(ctx context.Context) *SyncResult {
	return o.execute(ctx, "download", o.lanes, downloadPhase)
}

// FullSync uploads all lanes and then downloads all lanes.
func (o *Orchestrator) FullSync(ctx context.Context) *SyncResult {
	return o.execute(ctx, "full", o.lanes, uploadPhase, downloadPhase)
}

func (o *Orchestrator) SyncJournals(ctx context.Context) *SyncResult {
	return o.syncEntity(ctx, models.EntityJournals)
}

func (o *Orchestrator) SyncContent(ctx context.Context) *SyncResult {
	return o.syncEntity(ctx, models.EntityContent)
}

func (o *Orchestrator) SyncAssociations(ctx context.Context) *SyncResult {
	return o.syncEntity(ctx, models.EntityAssociations)
}

func (o *Orchestrator) SyncMedia(ctx context.Context) *SyncResult {
	return o.syncEntity(ctx, models.EntityMedia)
}

func (o *Orchestrator) syncEntity(ctx context.Context, entity string) *SyncResult {
	for _, l := range o.lanes {
		if l.Entity() == entity {
			return o.execute(ctx, entity, []Lane{l}, uploadPhase, downloadPhase)
		}
	}
	return failed(&SyncError{Kind: UnknownError, Entity: entity, Err: fmt.Errorf("no lane for %s", entity)})
}

// Trigger starts a full sync in the background. The channel receives the
// result and is closed; cancelling ctx does not stop the pass.
func (o *Orchestrator) Trigger(ctx context.Context) <-chan *SyncResult {
	ch := make(chan *SyncResult, 1)
	detached := context.WithoutCancel(ctx)
	go func() {
		defer close(ch)
		ch <- o.FullSync(detached)
	}()
	return ch
}

// execute runs the phases over lanes as one pass. The pass is detached from
// ctx; when ctx ends first the caller gets a failed result and the pass goes
// on.
func (o *Orchestrator) execute(ctx context.Context, op string, lanes []Lane, phases ...phase) *SyncResult {
	done := make(chan *SyncResult, 1)
	detached := context.WithoutCancel(ctx)
	go func() {
		o.run.Lock()
		defer o.run.Unlock()
		done <- o.pass(detached, op, lanes, phases)
	}()

	select {
	case res := <-done:
		return res
	case <-ctx.Done():
		return failed(classify("", "", ctx.Err()))
	}
}

func (o *Orchestrator) pass(ctx context.Context, op string, lanes []Lane, phases []phase) *SyncResult {
	tok, err := o.creds.AccessToken(ctx)
	if err != nil {
		return o.finish(ctx, &pass{}, storageError("", "", err))
	}
	if tok == "" {
		return o.finish(ctx, &pass{}, &SyncError{Kind: AuthenticationError, Err: errNotLoggedIn})
	}

	o.setSyncing(true)
	defer o.setSyncing(false)

	p := &pass{deviceID: o.deviceID, cps: o.cps, log: o.log}
	o.log.Info(ctx, "sync started", "op", op)
	for _, ph := range phases {
		for _, l := range lanes {
			if p.aborted {
				break
			}
			if serr := ph(ctx, p, l); serr != nil {
				p.fail(ctx, serr)
			}
		}
	}

	res := o.finish(ctx, p, nil)
	o.log.Info(ctx, "sync finished", "op", op, "success", res.Success,
		"uploaded", res.Uploaded, "downloaded", res.Downloaded,
		"conflicts", res.ConflictsResolved, "errors", len(res.Errors))
	return res
}

// finish stamps LastSyncAt and records the outcome for GetSyncStatus.
func (o *Orchestrator) finish(ctx context.Context, p *pass, early *SyncError) *SyncResult {
	res := p.res
	if early != nil {
		o.log.Warn(ctx, "sync not started", "kind", string(early.Kind), "error", early.Err)
		res.Errors = append(res.Errors, early)
	}
	res.Success = len(res.Errors) == 0

	if res.Success {
		now := o.clock()
		if err := o.cps.SetLastSyncAt(ctx, now); err != nil {
			res.Errors = append(res.Errors, storageError("", "", err))
			res.Success = false
		} else {
			res.LastSyncAt = now
		}
	}
	if res.LastSyncAt == 0 {
		res.LastSyncAt, _ = o.cps.LastSyncAt(ctx)
	}

	o.mu.Lock()
	if res.Success {
		o.lastErr = nil
	} else {
		o.lastErr = res.Errors[len(res.Errors)-1]
	}
	o.mu.Unlock()
	return &res
}

func (o *Orchestrator) setSyncing(v bool) {
	o.mu.Lock()
	o.syncing = v
	o.mu.Unlock()
}

// GetSyncStatus reports the current state without contacting the server.
func (o *Orchestrator) GetSyncStatus(ctx context.Context) (*SyncStatus, error) {
	tok, err := o.creds.AccessToken(ctx)
	if err != nil {
		return nil, err
	}
	last, err := o.cps.LastSyncAt(ctx)
	if err != nil {
		return nil, err
	}

	pending := 0
	for _, l := range o.lanes {
		n, err := l.pendingCount(ctx)
		if err != nil {
			return nil, fmt.Errorf("count pending %s: %w", l.Entity(), err)
		}
		pending += n
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	return &SyncStatus{
		Enabled:        tok != "",
		Syncing:        o.syncing,
		LastSyncAt:     last,
		PendingChanges: pending,
		HasErrors:      o.lastErr != nil,
		LastError:      o.lastErr,
	}, nil
}
