package syncer

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"sync"
	"testing"

	"github.com/dmitrijs2005/journalsync/internal/client/client"
	"github.com/dmitrijs2005/journalsync/internal/common"
	"github.com/dmitrijs2005/journalsync/internal/conflict"
	"github.com/dmitrijs2005/journalsync/internal/models"
	"github.com/dmitrijs2005/journalsync/internal/server/repositories/records"
	"github.com/dmitrijs2005/journalsync/internal/server/services"
	"github.com/stretchr/testify/require"
)

// memStore is an in-memory LocalStore.
type memStore[T models.Record[T]] struct {
	mu      sync.Mutex
	recs    map[string]T
	pending map[string]bool
	err     error
}

func newMemStore[T models.Record[T]]() *memStore[T] {
	return &memStore[T]{recs: map[string]T{}, pending: map[string]bool{}}
}

// edit stores a local change.
func (s *memStore[T]) edit(rec T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs[rec.Meta().ID] = rec.Clone()
	s.pending[rec.Meta().ID] = true
}

func (s *memStore[T]) isPending(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending[id]
}

func (s *memStore[T]) Get(_ context.Context, id string) (T, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var zero T
	if s.err != nil {
		return zero, false, s.err
	}
	rec, ok := s.recs[id]
	if !ok {
		return zero, false, nil
	}
	return rec.Clone(), true, nil
}

func (s *memStore[T]) Put(_ context.Context, rec T, pending bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.recs[rec.Meta().ID] = rec.Clone()
	s.pending[rec.Meta().ID] = pending
	return nil
}

func (s *memStore[T]) Pending(_ context.Context) ([]T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	var out []T
	for id, p := range s.pending {
		if p {
			out = append(out, s.recs[id].Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Meta().ID < out[j].Meta().ID })
	return out, nil
}

func (s *memStore[T]) Acknowledge(_ context.Context, rec T, serverVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := rec.Meta()
	cur, ok := s.recs[m.ID]
	if !ok || cur.Meta().LastUpdated != m.LastUpdated {
		return nil
	}
	if m.Deleted {
		delete(s.recs, m.ID)
		delete(s.pending, m.ID)
		return nil
	}
	if serverVersion > 0 {
		cur.Meta().ServerVersion = serverVersion
	}
	s.pending[m.ID] = false
	return nil
}

func (s *memStore[T]) Remove(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.recs, id)
	delete(s.pending, id)
	return nil
}

func (s *memStore[T]) IsPending(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return false, s.err
	}
	return s.pending[id], nil
}

func (s *memStore[T]) PendingCount(ctx context.Context) (int, error) {
	p, err := s.Pending(ctx)
	return len(p), err
}

type memCheckpoints struct {
	mu   sync.Mutex
	cps  map[string]int64
	last int64
}

func newMemCheckpoints() *memCheckpoints {
	return &memCheckpoints{cps: map[string]int64{}}
}

func (c *memCheckpoints) Checkpoint(_ context.Context, entity string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cps[entity], nil
}

func (c *memCheckpoints) SetCheckpoint(_ context.Context, entity string, ts int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cps[entity] = ts
	return nil
}

func (c *memCheckpoints) LastSyncAt(context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last, nil
}

func (c *memCheckpoints) SetLastSyncAt(_ context.Context, ts int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last = ts
	return nil
}

// asStatus turns service sentinels into the errors the HTTP client reports.
func asStatus(err error) error {
	switch {
	case errors.Is(err, common.ErrorValidation):
		return &client.StatusError{Code: http.StatusBadRequest, Message: err.Error()}
	case errors.Is(err, common.ErrorNotFound):
		return &client.StatusError{Code: http.StatusNotFound, Message: err.Error()}
	}
	return err
}

// repoRemote serves a device from a server repository through the same
// services the HTTP handlers use.
type repoRemote[T models.Record[T]] struct {
	repo     records.Repository[T]
	userID   string
	deviceID string

	mu    sync.Mutex
	calls int
	err   error
	gate  chan struct{}
}

func (r *repoRemote[T]) enter() error {
	r.mu.Lock()
	r.calls++
	err, gate := r.err, r.gate
	r.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return err
}

func (r *repoRemote[T]) failWith(err error) {
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
}

func (r *repoRemote[T]) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func (r *repoRemote[T]) Upload(ctx context.Context, rec T) (*models.UploadAck, error) {
	if err := r.enter(); err != nil {
		return nil, err
	}
	svc := services.NewRecordService[T]("", r.repo, nil, nil, nil)
	ack, err := svc.Upload(ctx, r.userID, r.deviceID, rec.Clone())
	if err != nil {
		return nil, asStatus(err)
	}
	return ack, nil
}

func (r *repoRemote[T]) Delete(ctx context.Context, rec T) error {
	if err := r.enter(); err != nil {
		return err
	}
	m := rec.Meta()
	_, err := r.repo.Delete(ctx, r.userID, m.ID, m.DeletedAt)
	return asStatus(err)
}

func (r *repoRemote[T]) Changes(ctx context.Context, since int64) (*models.ChangeSet[T], error) {
	if err := r.enter(); err != nil {
		return nil, err
	}
	return r.repo.ChangesSince(ctx, r.userID, since)
}

type batchRemote struct {
	*repoRemote[*models.Association]
	assoc   records.AssociationRepository
	batches int
}

func (b *batchRemote) UploadBatch(ctx context.Context, recs []*models.Association) (*models.BatchAck, error) {
	if err := b.enter(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	b.batches++
	b.mu.Unlock()
	clones := make([]*models.Association, len(recs))
	for i, rec := range recs {
		clones[i] = rec.Clone()
	}
	svc := services.NewAssociationService(b.assoc, nil, nil, nil)
	ack, err := svc.UpsertMany(ctx, b.userID, b.deviceID, &models.AssociationBatch{Associations: clones})
	if err != nil {
		return nil, asStatus(err)
	}
	return ack, nil
}

// server is a shared in-memory backend with a settable clock.
type server struct {
	mu  sync.Mutex
	now int64
	db  *records.MemDB
}

func newServer(t *testing.T) *server {
	t.Helper()
	s := &server{now: 10_000}
	db, err := records.NewMemDB(s.clock)
	require.NoError(t, err)
	s.db = db
	return s
}

func (s *server) clock() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

func (s *server) at(now int64) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

// device is one client installation against server.
type device struct {
	id       string
	journals *memStore[*models.Journal]
	content  *memStore[*models.Content]
	media    *memStore[*models.Media]
	assoc    *memStore[*models.Association]
	cps      *memCheckpoints

	jr *repoRemote[*models.Journal]
	cr *repoRemote[*models.Content]
	mr *repoRemote[*models.Media]
	ar *batchRemote

	orch *Orchestrator
}

type token string

func (t token) AccessToken(context.Context) (string, error) { return string(t), nil }

func newDevice(srv *server, id string, tok token) *device {
	d := &device{
		id:       id,
		journals: newMemStore[*models.Journal](),
		content:  newMemStore[*models.Content](),
		media:    newMemStore[*models.Media](),
		assoc:    newMemStore[*models.Association](),
		cps:      newMemCheckpoints(),
	}
	d.jr = &repoRemote[*models.Journal]{repo: records.NewMemoryJournals(srv.db), userID: "u1", deviceID: id}
	d.cr = &repoRemote[*models.Content]{repo: records.NewMemoryContent(srv.db), userID: "u1", deviceID: id}
	d.mr = &repoRemote[*models.Media]{repo: records.NewMemoryMedia(srv.db), userID: "u1", deviceID: id}
	assoc := records.NewMemoryAssociations(srv.db)
	d.ar = &batchRemote{
		repoRemote: &repoRemote[*models.Association]{repo: assoc, userID: "u1", deviceID: id},
		assoc:      assoc,
	}

	d.orch = New(id, tok, d.cps, srv.clock, nil,
		NewLane[*models.Journal](models.EntityJournals, d.journals, d.jr, conflict.JournalMerger{}),
		NewLane[*models.Content](models.EntityContent, d.content, d.cr, conflict.ContentMerger{}),
		NewMediaLane(d.media, d.mr),
		NewLane[*models.Association](models.EntityAssociations, d.assoc, d.ar, nil),
	)
	return d
}

func journal(id, title string, lastUpdated int64) *models.Journal {
	return &models.Journal{
		SyncMeta: models.SyncMeta{ID: id, CreatedAt: lastUpdated, LastUpdated: lastUpdated},
		Title:    title,
	}
}
