package syncer

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/dmitrijs2005/journalsync/internal/client/client"
	"github.com/dmitrijs2005/journalsync/internal/conflict"
	"github.com/dmitrijs2005/journalsync/internal/models"
)

// LocalStore is the client-side persistence of one entity type.
// *records.SQLiteStore implements it.
type LocalStore[T models.Record[T]] interface {
	Get(ctx context.Context, id string) (T, bool, error)
	Put(ctx context.Context, rec T, pending bool) error
	Pending(ctx context.Context) ([]T, error)
	// IsPending reports whether id holds a local edit the server has not
	// acknowledged. Absent ids are not pending.
	IsPending(ctx context.Context, id string) (bool, error)
	Acknowledge(ctx context.Context, rec T, serverVersion int64) error
	Remove(ctx context.Context, id string) error
	PendingCount(ctx context.Context) (int, error)
}

// Remote is the server side of one entity type. *client.Records implements it.
type Remote[T models.Record[T]] interface {
	Upload(ctx context.Context, rec T) (*models.UploadAck, error)
	Delete(ctx context.Context, rec T) error
	Changes(ctx context.Context, since int64) (*models.ChangeSet[T], error)
}

// BatchUploader is implemented by remotes that accept many records in one
// request, such as *client.Associations.
type BatchUploader[T any] interface {
	UploadBatch(ctx context.Context, recs []T) (*models.BatchAck, error)
}

// Checkpoints persists the change-set cursor per entity type and the time of
// the last successful pass. *metadata.Settings implements it.
type Checkpoints interface {
	Checkpoint(ctx context.Context, entity string) (int64, error)
	SetCheckpoint(ctx context.Context, entity string, ts int64) error
	LastSyncAt(ctx context.Context) (int64, error)
	SetLastSyncAt(ctx context.Context, ts int64) error
}

// Lane synchronizes one entity type. Build lanes with NewLane or
// NewMediaLane.
type Lane interface {
	Entity() string
	upload(ctx context.Context, p *pass) *SyncError
	download(ctx context.Context, p *pass) *SyncError
	pendingCount(ctx context.Context) (int, error)
}

type lane[T models.Record[T]] struct {
	entity   string
	local    LocalStore[T]
	remote   Remote[T]
	resolver conflict.Resolver[T]
	// adopt prepares a remote value for local storage given the local copy.
	adopt func(local, remote T) T
}

// NewLane wires a local store and a remote for entity. A nil resolver means
// last-writer-wins.
func NewLane[T models.Record[T]](entity string, local LocalStore[T], remote Remote[T], resolver conflict.Resolver[T]) Lane {
	if resolver == nil {
		resolver = conflict.LastWriterWins[T]{}
	}
	return &lane[T]{entity: entity, local: local, remote: remote, resolver: resolver}
}

// NewMediaLane syncs media metadata. Change-sets never carry bytes, so bytes
// already held locally survive adopting a remote copy with the same checksum.
func NewMediaLane(local LocalStore[*models.Media], remote Remote[*models.Media]) Lane {
	return &lane[*models.Media]{
		entity:   models.EntityMedia,
		local:    local,
		remote:   remote,
		resolver: conflict.LastWriterWins[*models.Media]{},
		adopt:    keepMediaBytes,
	}
}

func keepMediaBytes(local, remote *models.Media) *models.Media {
	if len(remote.Data) > 0 || len(local.Data) == 0 || local.Checksum != remote.Checksum {
		return remote
	}
	c := remote.Clone()
	c.Data = append([]byte(nil), local.Data...)
	return c
}

func (l *lane[T]) Entity() string {
	return l.entity
}

func (l *lane[T]) pendingCount(ctx context.Context) (int, error) {
	return l.local.PendingCount(ctx)
}

// upload pushes pending records. The returned error aborts the lane; record
// level failures are collected into p.
func (l *lane[T]) upload(ctx context.Context, p *pass) *SyncError {
	pending, err := l.local.Pending(ctx)
	if err != nil {
		return storageError(l.entity, "", err)
	}

	var live []T
	for _, rec := range pending {
		if rec.Meta().Deleted {
			if serr := l.pushDelete(ctx, p, rec); serr != nil {
				return serr
			}
			continue
		}
		live = append(live, rec)
	}

	if b, ok := l.remote.(BatchUploader[T]); ok && len(live) > 0 {
		return l.pushBatch(ctx, p, b, live)
	}
	for _, rec := range live {
		if serr := l.push(ctx, p, rec); serr != nil {
			return serr
		}
	}
	return nil
}

// fatal reports whether a transport failure should stop the lane.
func fatal(err *SyncError) bool {
	return err.Kind == AuthenticationError || err.Kind == NetworkError
}

func (l *lane[T]) push(ctx context.Context, p *pass, rec T) *SyncError {
	id := rec.Meta().ID
	ack, err := l.remote.Upload(ctx, rec)
	if err != nil {
		serr := classify(l.entity, id, err)
		if fatal(serr) {
			return serr
		}
		p.fail(ctx, serr)
		return nil
	}
	if ack.Superseded {
		// the server kept a newer edit; the download phase settles it
		p.log.Debug(ctx, "upload superseded", "entity", l.entity, "id", id)
		return nil
	}
	if err := l.local.Acknowledge(ctx, rec, ack.ServerVersion); err != nil {
		p.fail(ctx, storageError(l.entity, id, err))
		return nil
	}
	p.res.Uploaded++
	return nil
}

// rejected reports whether the server refused the request itself, as opposed
// to failing while handling it.
func rejected(err error) bool {
	var status *client.StatusError
	return errors.As(err, &status) && status.Code >= http.StatusBadRequest && status.Code < http.StatusInternalServerError
}

// pushBatch uploads recs in one request. When the server rejects the batch,
// every record is sent on its own so one bad record does not hold back the
// rest.
func (l *lane[T]) pushBatch(ctx context.Context, p *pass, b BatchUploader[T], recs []T) *SyncError {
	ack, err := b.UploadBatch(ctx, recs)
	if err != nil {
		id := ""
		if len(recs) == 1 {
			id = recs[0].Meta().ID
		}
		serr := classify(l.entity, id, err)
		if fatal(serr) {
			return serr
		}
		if len(recs) > 1 && rejected(err) {
			p.log.Warn(ctx, "batch rejected, uploading one by one", "entity", l.entity, "count", len(recs), "error", err)
			for _, rec := range recs {
				if serr := l.push(ctx, p, rec); serr != nil {
					return serr
				}
			}
			return nil
		}
		p.fail(ctx, serr)
		return nil
	}
	for _, rec := range recs {
		if err := l.local.Acknowledge(ctx, rec, ack.ServerVersion); err != nil {
			p.fail(ctx, storageError(l.entity, rec.Meta().ID, err))
			continue
		}
		p.res.Uploaded++
	}
	return nil
}

func (l *lane[T]) pushDelete(ctx context.Context, p *pass, rec T) *SyncError {
	id := rec.Meta().ID
	// the server never saw the record or already dropped it
	if err := l.remote.Delete(ctx, rec); err != nil && !client.IsNotFound(err) {
		serr := classify(l.entity, id, err)
		if fatal(serr) {
			return serr
		}
		p.fail(ctx, serr)
		return nil
	}
	if err := l.local.Acknowledge(ctx, rec, 0); err != nil {
		p.fail(ctx, storageError(l.entity, id, err))
		return nil
	}
	p.res.Uploaded++
	return nil
}

// download applies the change-set since the lane's checkpoint. The checkpoint
// only moves when every record applied cleanly, so failed records are fetched
// again next time.
func (l *lane[T]) download(ctx context.Context, p *pass) *SyncError {
	since, err := p.cps.Checkpoint(ctx, l.entity)
	if err != nil {
		return storageError(l.entity, "", err)
	}

	cs, err := l.remote.Changes(ctx, since)
	if err != nil {
		return classify(l.entity, "", err)
	}

	clean := true
	for _, rec := range cs.Changes {
		if serr := l.apply(ctx, p, rec); serr != nil {
			p.fail(ctx, serr)
			clean = false
		}
	}
	for _, d := range cs.Deletions {
		if serr := l.applyDeletion(ctx, p, d); serr != nil {
			p.fail(ctx, serr)
			clean = false
		}
	}

	if clean && cs.LastTimestamp > since {
		if err := p.cps.SetCheckpoint(ctx, l.entity, cs.LastTimestamp); err != nil {
			return storageError(l.entity, "", err)
		}
	}
	p.log.Debug(ctx, "change-set applied", "entity", l.entity, "since", since,
		"changes", len(cs.Changes), "deletions", len(cs.Deletions), "watermark", cs.LastTimestamp)
	return nil
}

func (l *lane[T]) store(ctx context.Context, local, remote T, pending bool) error {
	if l.adopt != nil {
		remote = l.adopt(local, remote)
	}
	return l.local.Put(ctx, remote, pending)
}

func (l *lane[T]) apply(ctx context.Context, p *pass, remote T) *SyncError {
	rm := remote.Meta()
	local, found, err := l.local.Get(ctx, rm.ID)
	if err != nil {
		return storageError(l.entity, rm.ID, err)
	}

	if !found {
		if err := l.local.Put(ctx, remote, false); err != nil {
			return storageError(l.entity, rm.ID, err)
		}
		p.res.Downloaded++
		return nil
	}

	lm := local.Meta()
	if lm.Deleted {
		return l.applyOverTombstone(ctx, p, local, remote)
	}
	if lm.LastUpdated == rm.LastUpdated {
		// same edit, typically our own upload coming back
		if err := l.store(ctx, local, remote, false); err != nil {
			return storageError(l.entity, rm.ID, err)
		}
		if rm.DeviceID != p.deviceID {
			p.res.Downloaded++
		}
		return nil
	}

	pending, err := l.local.IsPending(ctx, rm.ID)
	if err != nil {
		return storageError(l.entity, rm.ID, err)
	}
	if !pending {
		// nothing changed here since the last sync; the server copy is current
		if err := l.store(ctx, local, remote, false); err != nil {
			return storageError(l.entity, rm.ID, err)
		}
		p.res.Downloaded++
		return nil
	}

	switch r := l.resolver.Resolve(local, remote, lm.LastUpdated, rm.LastUpdated).(type) {
	case conflict.KeepRemote[T]:
		if err := l.store(ctx, local, r.Value, false); err != nil {
			return storageError(l.entity, rm.ID, err)
		}
		p.res.Downloaded++
	case conflict.KeepLocal[T]:
		// local stays pending and goes up on the next upload
	case conflict.Merge[T]:
		r.Merged.Meta().DeviceID = p.deviceID
		if err := l.store(ctx, local, r.Merged, true); err != nil {
			return storageError(l.entity, rm.ID, err)
		}
		p.res.Downloaded++
	case conflict.RequiresManualResolution[T]:
		return &SyncError{Kind: ConflictError, Entity: l.entity, ID: rm.ID, Err: fmt.Errorf("%w: %s", ErrManualResolution, r.Reason)}
	}
	p.res.ConflictsResolved++
	return nil
}

// applyOverTombstone settles a remote edit against a local deletion that has
// not been pushed yet: the later of the two wins.
func (l *lane[T]) applyOverTombstone(ctx context.Context, p *pass, local, remote T) *SyncError {
	lm, rm := local.Meta(), remote.Meta()
	p.res.ConflictsResolved++
	if lm.DeletedAt > rm.LastUpdated {
		return nil
	}
	if err := l.local.Put(ctx, remote, false); err != nil {
		return storageError(l.entity, rm.ID, err)
	}
	p.res.Downloaded++
	return nil
}

func (l *lane[T]) applyDeletion(ctx context.Context, p *pass, d models.Deletion) *SyncError {
	local, found, err := l.local.Get(ctx, d.ID)
	if err != nil {
		return storageError(l.entity, d.ID, err)
	}
	if !found {
		return nil
	}

	lm := local.Meta()
	if !lm.Deleted && lm.LastUpdated > d.DeletedAt {
		pending, err := l.local.IsPending(ctx, d.ID)
		if err != nil {
			return storageError(l.entity, d.ID, err)
		}
		if pending {
			// edited here after the deletion; the upload resurrects it
			p.res.ConflictsResolved++
			return nil
		}
	}

	if err := l.local.Remove(ctx, d.ID); err != nil {
		return storageError(l.entity, d.ID, err)
	}
	if !lm.Deleted {
		p.res.Downloaded++
	}
	return nil
}
