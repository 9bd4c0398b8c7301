package syncer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/dmitrijs2005/journalsync/internal/client/client"
	"github.com/dmitrijs2005/journalsync/internal/conflict"
	"github.com/dmitrijs2005/journalsync/internal/models"
	"github.com/dmitrijs2005/journalsync/internal/server/repositories/records"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func title(t *testing.T, s *memStore[*models.Journal], id string) string {
	t.Helper()
	j, found, err := s.Get(context.Background(), id)
	require.NoError(t, err)
	require.True(t, found, "journal %s missing", id)
	return j.Title
}

func requireSuccess(t *testing.T, res *SyncResult) {
	t.Helper()
	require.True(t, res.Success, "errors: %v", res.Errors)
}

func TestFullSync_TripScenario(t *testing.T) {
	srv := newServer(t)
	a := newDevice(srv, "device-a", "tok")
	b := newDevice(srv, "device-b", "tok")
	ctx := context.Background()

	a.journals.edit(journal("J1", "Trip", 1000))
	srv.at(10_000)
	res := a.orch.FullSync(ctx)
	requireSuccess(t, res)
	assert.Equal(t, 1, res.Uploaded)
	assert.Equal(t, 0, res.Downloaded)

	srv.at(11_000)
	res = b.orch.DownloadRemoteChanges(ctx)
	requireSuccess(t, res)
	assert.Equal(t, 1, res.Downloaded)
	assert.Equal(t, "Trip", title(t, b.journals, "J1"))

	b.journals.edit(journal("J1", "Trip 2024", 2000))
	srv.at(12_000)
	res = b.orch.FullSync(ctx)
	requireSuccess(t, res)
	assert.Equal(t, 1, res.Uploaded)

	// A has no local edit, so B's copy is adopted without a conflict
	srv.at(13_000)
	res = a.orch.FullSync(ctx)
	requireSuccess(t, res)
	assert.Equal(t, 1, res.Downloaded)
	assert.Zero(t, res.ConflictsResolved)
	assert.Equal(t, "Trip 2024", title(t, a.journals, "J1"))
	assert.False(t, a.journals.isPending("J1"))

	// A edits with a timestamp older than B's edit. The server keeps B's
	// copy, and A's download resolves local 1500 against remote 2000.
	a.journals.edit(journal("J1", "My Trip", 1500))
	srv.at(14_000)
	res = a.orch.FullSync(ctx)
	requireSuccess(t, res)
	assert.Zero(t, res.Uploaded)
	assert.Equal(t, 1, res.Downloaded)
	assert.Equal(t, 1, res.ConflictsResolved)
	assert.Equal(t, "Trip 2024", title(t, a.journals, "J1"))
	assert.False(t, a.journals.isPending("J1"))

	srv.at(15_000)
	res = b.orch.FullSync(ctx)
	requireSuccess(t, res)
	assert.Zero(t, res.Uploaded)
	assert.Zero(t, res.ConflictsResolved)

	assert.Equal(t, "Trip 2024", title(t, a.journals, "J1"))
	assert.Equal(t, "Trip 2024", title(t, b.journals, "J1"))
	assert.False(t, b.journals.isPending("J1"))

	stored, _, err := records.NewMemoryJournals(srv.db).Get(ctx, "u1", "J1")
	require.NoError(t, err)
	assert.Equal(t, "Trip 2024", stored.Title)
	assert.Equal(t, int64(2000), stored.LastUpdated)
	assert.Equal(t, "device-b", stored.DeviceID)
}

func TestFullSync_ClearedFieldStaysCleared(t *testing.T) {
	srv := newServer(t)
	a := newDevice(srv, "a", "tok")
	b := newDevice(srv, "b", "tok")
	ctx := context.Background()

	j := journal("J1", "Trip", 1000)
	j.Description = "notes"
	a.journals.edit(j)
	requireSuccess(t, a.orch.FullSync(ctx))
	srv.at(11_000)
	requireSuccess(t, b.orch.FullSync(ctx))

	b.journals.edit(journal("J1", "Trip", 2000))
	srv.at(12_000)
	requireSuccess(t, b.orch.FullSync(ctx))

	for _, at := range []int64{13_000, 14_000} {
		srv.at(at)
		res := a.orch.FullSync(ctx)
		requireSuccess(t, res)
		assert.Zero(t, res.Uploaded)
		assert.Zero(t, res.ConflictsResolved)
	}
	srv.at(15_000)
	requireSuccess(t, b.orch.FullSync(ctx))

	for _, d := range []*device{a, b} {
		got, _, err := d.journals.Get(ctx, "J1")
		require.NoError(t, err)
		assert.Empty(t, got.Description, d.id)
		assert.False(t, d.journals.isPending("J1"), d.id)
	}
	stored, _, err := records.NewMemoryJournals(srv.db).Get(ctx, "u1", "J1")
	require.NoError(t, err)
	assert.Empty(t, stored.Description)
}

func TestUpload_SupersededStaysPending(t *testing.T) {
	srv := newServer(t)
	a := newDevice(srv, "a", "tok")
	b := newDevice(srv, "b", "tok")
	ctx := context.Background()

	a.journals.edit(journal("J1", "Newer", 2000))
	requireSuccess(t, a.orch.FullSync(ctx))

	b.journals.edit(journal("J1", "Older", 1000))
	srv.at(11_000)
	res := b.orch.UploadPendingChanges(ctx)
	requireSuccess(t, res)
	assert.Zero(t, res.Uploaded)
	assert.True(t, b.journals.isPending("J1"))

	stored, _, err := records.NewMemoryJournals(srv.db).Get(ctx, "u1", "J1")
	require.NoError(t, err)
	assert.Equal(t, "Newer", stored.Title)
	assert.Equal(t, int64(11_000), stored.ServerVersion)

	srv.at(12_000)
	res = b.orch.DownloadRemoteChanges(ctx)
	requireSuccess(t, res)
	assert.Equal(t, 1, res.ConflictsResolved)
	assert.Equal(t, "Newer", title(t, b.journals, "J1"))
	assert.False(t, b.journals.isPending("J1"))
}

func TestFullSync_NotLoggedIn(t *testing.T) {
	srv := newServer(t)
	d := newDevice(srv, "a", "")
	d.journals.edit(journal("j1", "Trip", 1000))

	res := d.orch.FullSync(context.Background())

	assert.False(t, res.Success)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, AuthenticationError, res.Errors[0].Kind)
	assert.Zero(t, d.jr.callCount())
	assert.Zero(t, d.cr.callCount())
	assert.True(t, d.journals.isPending("j1"))
}

func TestFullSync_UnauthorizedStopsRemainingLanes(t *testing.T) {
	srv := newServer(t)
	d := newDevice(srv, "a", "tok")
	d.journals.edit(journal("j1", "Trip", 1000))
	d.content.edit(&models.Content{SyncMeta: models.SyncMeta{ID: "c1", LastUpdated: 1000}, Type: "note"})
	d.jr.failWith(fmt.Errorf("%w: token expired", client.ErrUnauthorized))

	res := d.orch.FullSync(context.Background())

	assert.False(t, res.Success)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, AuthenticationError, res.Errors[0].Kind)
	assert.Equal(t, models.EntityJournals, res.Errors[0].Entity)
	assert.Zero(t, d.cr.callCount())
	assert.Zero(t, d.mr.callCount())
	assert.True(t, d.content.isPending("c1"))
}

func TestDownload_NetworkErrorKeepsCheckpoint(t *testing.T) {
	srv := newServer(t)
	d := newDevice(srv, "a", "tok")
	ctx := context.Background()
	d.jr.failWith(fmt.Errorf("%w: connection refused", client.ErrUnavailable))

	res := d.orch.DownloadRemoteChanges(ctx)

	assert.False(t, res.Success)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, NetworkError, res.Errors[0].Kind)

	cp, _ := d.cps.Checkpoint(ctx, models.EntityJournals)
	assert.Equal(t, int64(0), cp)
	cp, _ = d.cps.Checkpoint(ctx, models.EntityContent)
	assert.Equal(t, int64(9_999), cp)

	st, err := d.orch.GetSyncStatus(ctx)
	require.NoError(t, err)
	assert.True(t, st.HasErrors)
	require.NotNil(t, st.LastError)
	assert.Equal(t, NetworkError, st.LastError.Kind)
	assert.Equal(t, int64(0), st.LastSyncAt)
}

func TestUpload_ServerErrorsArePerRecord(t *testing.T) {
	srv := newServer(t)
	d := newDevice(srv, "a", "tok")
	d.journals.edit(journal("j1", "One", 1000))
	d.journals.edit(journal("j2", "Two", 1000))
	d.jr.failWith(&client.StatusError{Code: http.StatusInternalServerError, Message: "boom"})

	res := d.orch.UploadPendingChanges(context.Background())

	assert.False(t, res.Success)
	require.Len(t, res.Errors, 2)
	assert.Equal(t, ServerError, res.Errors[0].Kind)
	assert.Equal(t, "j1", res.Errors[0].ID)
	assert.Equal(t, "j2", res.Errors[1].ID)
	assert.True(t, d.journals.isPending("j1"))
	assert.True(t, d.journals.isPending("j2"))
}

func TestUpload_PushesTombstones(t *testing.T) {
	srv := newServer(t)
	d := newDevice(srv, "a", "tok")
	ctx := context.Background()

	d.journals.edit(journal("j1", "Trip", 1000))
	requireSuccess(t, d.orch.FullSync(ctx))

	gone := journal("j1", "Trip", 10_500)
	gone.Deleted, gone.DeletedAt = true, 10_500
	d.journals.edit(gone)
	ghost := journal("ghost", "Never uploaded", 10_600)
	ghost.Deleted, ghost.DeletedAt = true, 10_600
	d.journals.edit(ghost)

	srv.at(11_000)
	res := d.orch.UploadPendingChanges(ctx)
	requireSuccess(t, res)
	assert.Equal(t, 2, res.Uploaded)

	_, found, _ := d.journals.Get(ctx, "j1")
	assert.False(t, found)
	_, found, _ = d.journals.Get(ctx, "ghost")
	assert.False(t, found)

	stored, _, err := records.NewMemoryJournals(srv.db).Get(ctx, "u1", "j1")
	require.NoError(t, err)
	assert.True(t, stored.Deleted)
	assert.Equal(t, int64(10_500), stored.DeletedAt)
}

func TestDownload_RemoteDeletions(t *testing.T) {
	srv := newServer(t)
	a := newDevice(srv, "a", "tok")
	b := newDevice(srv, "b", "tok")
	ctx := context.Background()

	a.journals.edit(journal("j1", "One", 9_000))
	a.journals.edit(journal("j2", "Two", 9_000))
	requireSuccess(t, a.orch.FullSync(ctx))

	srv.at(11_000)
	requireSuccess(t, b.orch.DownloadRemoteChanges(ctx))

	// b edits j2 after a deletes it
	b.journals.edit(journal("j2", "Two again", 12_800))

	for _, id := range []string{"j1", "j2"} {
		j := journal(id, "x", 12_500)
		j.Deleted, j.DeletedAt = true, 12_500
		a.journals.edit(j)
	}
	srv.at(12_000)
	requireSuccess(t, a.orch.UploadPendingChanges(ctx))

	srv.at(13_000)
	res := b.orch.DownloadRemoteChanges(ctx)
	requireSuccess(t, res)
	assert.Equal(t, 1, res.Downloaded)
	assert.Equal(t, 1, res.ConflictsResolved)

	_, found, _ := b.journals.Get(ctx, "j1")
	assert.False(t, found)
	assert.Equal(t, "Two again", title(t, b.journals, "j2"))
	assert.True(t, b.journals.isPending("j2"))

	srv.at(14_000)
	requireSuccess(t, b.orch.FullSync(ctx))
	stored, _, err := records.NewMemoryJournals(srv.db).Get(ctx, "u1", "j2")
	require.NoError(t, err)
	assert.False(t, stored.Deleted)
	assert.Equal(t, "Two again", stored.Title)
}

func TestDownload_LocalTombstoneAgainstRemoteEdit(t *testing.T) {
	srv := newServer(t)
	a := newDevice(srv, "a", "tok")
	b := newDevice(srv, "b", "tok")
	ctx := context.Background()

	a.journals.edit(journal("old", "Old", 1000))
	a.journals.edit(journal("new", "New", 5000))
	requireSuccess(t, a.orch.UploadPendingChanges(ctx))

	for _, id := range []string{"old", "new"} {
		j := journal(id, "x", 3000)
		j.Deleted, j.DeletedAt = true, 3000
		require.NoError(t, b.journals.Put(ctx, j, true))
	}

	res := b.orch.DownloadRemoteChanges(ctx)
	requireSuccess(t, res)
	assert.Equal(t, 2, res.ConflictsResolved)

	kept, found, _ := b.journals.Get(ctx, "old")
	require.True(t, found)
	assert.True(t, kept.Deleted)
	assert.True(t, b.journals.isPending("old"))
	assert.Equal(t, "New", title(t, b.journals, "new"))
	assert.False(t, b.journals.isPending("new"))
}

func TestDownload_ManualConflictHoldsCheckpoint(t *testing.T) {
	srv := newServer(t)
	a := newDevice(srv, "a", "tok")
	ctx := context.Background()
	a.journals.edit(journal("j1", "Remote", 1000))
	requireSuccess(t, a.orch.FullSync(ctx))

	local := newMemStore[*models.Journal]()
	local.edit(journal("j1", "Local", 500))
	cps := newMemCheckpoints()
	remote := &repoRemote[*models.Journal]{repo: records.NewMemoryJournals(srv.db), userID: "u1", deviceID: "b"}
	orch := New("b", token("tok"), cps, srv.clock, nil,
		NewLane[*models.Journal](models.EntityJournals, local, remote, conflict.Manual[*models.Journal]{Reason: "pick one"}))

	res := orch.SyncJournals(ctx)

	assert.False(t, res.Success)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, ConflictError, res.Errors[0].Kind)
	assert.ErrorIs(t, res.Errors[0], ErrManualResolution)
	assert.Equal(t, 0, res.ConflictsResolved)
	assert.Equal(t, "Local", title(t, local, "j1"))
	assert.True(t, local.isPending("j1"))

	cp, _ := cps.Checkpoint(ctx, models.EntityJournals)
	assert.Equal(t, int64(0), cp)
}

func TestDownload_MergeIsUploadedAgain(t *testing.T) {
	srv := newServer(t)
	a := newDevice(srv, "a", "tok")
	b := newDevice(srv, "b", "tok")
	ctx := context.Background()

	a.journals.edit(journal("j1", "Trip", 2000))
	requireSuccess(t, a.orch.FullSync(ctx))

	withDesc := journal("j1", "Trip", 1000)
	withDesc.Description = "Summer"
	b.journals.edit(withDesc)

	srv.at(11_000)
	res := b.orch.SyncJournals(ctx)
	requireSuccess(t, res)
	assert.Equal(t, 1, res.ConflictsResolved)
	assert.True(t, b.journals.isPending("j1"))

	merged, _, _ := b.journals.Get(ctx, "j1")
	assert.Equal(t, "Summer", merged.Description)
	assert.Equal(t, int64(2000), merged.LastUpdated)

	srv.at(12_000)
	requireSuccess(t, b.orch.SyncJournals(ctx))
	stored, _, err := records.NewMemoryJournals(srv.db).Get(ctx, "u1", "j1")
	require.NoError(t, err)
	assert.Equal(t, "Summer", stored.Description)
}

func TestMediaLane_KeepsLocalBytes(t *testing.T) {
	srv := newServer(t)
	a := newDevice(srv, "a", "tok")
	b := newDevice(srv, "b", "tok")
	ctx := context.Background()

	a.media.edit(&models.Media{
		SyncMeta:  models.SyncMeta{ID: "m1", LastUpdated: 1000},
		ContentID: "c1",
		Checksum:  "sum",
		Data:      []byte("hello"),
	})
	requireSuccess(t, a.orch.SyncMedia(ctx))

	m, found, _ := a.media.Get(ctx, "m1")
	require.True(t, found)
	assert.Equal(t, []byte("hello"), m.Data)
	assert.False(t, a.media.isPending("m1"))

	requireSuccess(t, b.orch.SyncMedia(ctx))
	m, found, _ = b.media.Get(ctx, "m1")
	require.True(t, found)
	assert.Empty(t, m.Data)
	assert.Equal(t, "c1", m.ContentID)
}

func TestKeepMediaBytes(t *testing.T) {
	local := &models.Media{Checksum: "a", Data: []byte("x")}

	got := keepMediaBytes(local, &models.Media{Checksum: "a"})
	assert.Equal(t, []byte("x"), got.Data)

	got = keepMediaBytes(local, &models.Media{Checksum: "b"})
	assert.Nil(t, got.Data)

	got = keepMediaBytes(local, &models.Media{Checksum: "a", Data: []byte("y")})
	assert.Equal(t, []byte("y"), got.Data)
}

func TestAssociations_UploadInOneBatch(t *testing.T) {
	srv := newServer(t)
	d := newDevice(srv, "a", "tok")
	ctx := context.Background()

	d.assoc.edit(models.NewAssociation("j1", "c1", 1000))
	d.assoc.edit(models.NewAssociation("j1", "c2", 1000))

	res := d.orch.SyncAssociations(ctx)
	requireSuccess(t, res)
	assert.Equal(t, 2, res.Uploaded)
	assert.Equal(t, 1, d.ar.batches)

	gone := models.NewAssociation("j1", "c1", 10_500)
	gone.Deleted, gone.DeletedAt = true, 10_500
	d.assoc.edit(gone)
	srv.at(11_000)
	requireSuccess(t, d.orch.SyncAssociations(ctx))

	cs, err := records.NewMemoryAssociations(srv.db).ChangesSince(ctx, "u1", 0)
	require.NoError(t, err)
	require.Len(t, cs.Changes, 1)
	assert.Equal(t, "c2", cs.Changes[0].ContentID)
	require.Len(t, cs.Deletions, 1)
	assert.Equal(t, "j1", cs.Deletions[0].JournalID)
	assert.Equal(t, "c1", cs.Deletions[0].ContentID)
}

func TestAssociations_RejectedBatchFallsBackToSingleUploads(t *testing.T) {
	srv := newServer(t)
	a := newDevice(srv, "a", "tok")
	b := newDevice(srv, "b", "tok")
	ctx := context.Background()

	a.assoc.edit(models.NewAssociation("J1", "C1", 1000))
	a.assoc.edit(models.NewAssociation("J1", "C2", 1000))
	bad := models.NewAssociation("J1", "", 1000)
	a.assoc.edit(bad)

	res := a.orch.SyncAssociations(ctx)
	assert.False(t, res.Success)
	assert.Equal(t, 2, res.Uploaded)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, ServerError, res.Errors[0].Kind)
	assert.Equal(t, bad.ID, res.Errors[0].ID)
	assert.True(t, a.assoc.isPending(bad.ID))
	assert.False(t, a.assoc.isPending(models.NewAssociation("J1", "C1", 0).ID))

	srv.at(11_000)
	res = a.orch.SyncAssociations(ctx)
	assert.Zero(t, res.Uploaded)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, bad.ID, res.Errors[0].ID)

	srv.at(12_000)
	res = b.orch.SyncAssociations(ctx)
	requireSuccess(t, res)
	assert.Equal(t, 2, res.Downloaded)
}

func TestAssociations_ServerFailureIsNotRetriedPerRecord(t *testing.T) {
	srv := newServer(t)
	d := newDevice(srv, "a", "tok")
	d.assoc.edit(models.NewAssociation("J1", "C1", 1000))
	d.assoc.edit(models.NewAssociation("J1", "C2", 1000))
	d.ar.failWith(&client.StatusError{Code: http.StatusServiceUnavailable})

	res := d.orch.UploadPendingChanges(context.Background())

	require.Len(t, res.Errors, 1)
	assert.Equal(t, ServerError, res.Errors[0].Kind)
	assert.Empty(t, res.Errors[0].ID)
	assert.Equal(t, 1, d.ar.callCount())
}

func TestGetSyncStatus(t *testing.T) {
	srv := newServer(t)
	d := newDevice(srv, "a", "tok")
	ctx := context.Background()

	d.journals.edit(journal("j1", "One", 1000))
	d.journals.edit(journal("j2", "Two", 1000))
	d.content.edit(&models.Content{SyncMeta: models.SyncMeta{ID: "c1", LastUpdated: 1000}, Type: "note"})

	st, err := d.orch.GetSyncStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, &SyncStatus{Enabled: true, PendingChanges: 3}, st)

	requireSuccess(t, d.orch.FullSync(ctx))

	st, err = d.orch.GetSyncStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, &SyncStatus{Enabled: true, LastSyncAt: 10_000}, st)
}

func TestAbandonedCallerDoesNotCancelPass(t *testing.T) {
	srv := newServer(t)
	d := newDevice(srv, "a", "tok")
	d.journals.edit(journal("j1", "Trip", 1000))
	gate := make(chan struct{})
	d.jr.gate = gate

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := d.orch.FullSync(ctx)

	assert.False(t, res.Success)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, NetworkError, res.Errors[0].Kind)

	require.Eventually(t, func() bool {
		st, err := d.orch.GetSyncStatus(context.Background())
		return err == nil && st.Syncing
	}, time.Second, 5*time.Millisecond)

	close(gate)
	require.Eventually(t, func() bool {
		st, err := d.orch.GetSyncStatus(context.Background())
		return err == nil && !st.Syncing && st.LastSyncAt == 10_000
	}, time.Second, 5*time.Millisecond)
	assert.False(t, d.journals.isPending("j1"))
}

func TestTrigger(t *testing.T) {
	srv := newServer(t)
	d := newDevice(srv, "a", "tok")
	d.journals.edit(journal("j1", "Trip", 1000))

	ctx, cancel := context.WithCancel(context.Background())
	ch := d.orch.Trigger(ctx)
	cancel()

	res := <-ch
	requireSuccess(t, res)
	assert.Equal(t, 1, res.Uploaded)
	_, open := <-ch
	assert.False(t, open)
}

func TestSyncEntity_UnknownLane(t *testing.T) {
	orch := New("a", token("tok"), newMemCheckpoints(), nil, nil)
	res := orch.SyncJournals(context.Background())
	assert.False(t, res.Success)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, UnknownError, res.Errors[0].Kind)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"unauthorized", fmt.Errorf("%w: expired", client.ErrUnauthorized), AuthenticationError},
		{"unavailable", fmt.Errorf("%w: dial", client.ErrUnavailable), NetworkError},
		{"deadline", context.DeadlineExceeded, NetworkError},
		{"conflict", &client.StatusError{Code: http.StatusConflict}, ConflictError},
		{"bad request", &client.StatusError{Code: http.StatusBadRequest}, ServerError},
		{"other", errors.New("boom"), UnknownError},
		{"already classified", storageError("journals", "j1", errors.New("disk")), StorageError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify("journals", "j1", tt.err)
			assert.Equal(t, tt.want, got.Kind)
			assert.Equal(t, "journals", got.Entity)
		})
	}
}

func TestSyncError_Message(t *testing.T) {
	err := &SyncError{Kind: ServerError, Entity: "journals", ID: "j1", Err: errors.New("boom")}
	assert.Equal(t, "SERVER_ERROR: journals j1: boom", err.Error())

	err = &SyncError{Kind: AuthenticationError, Err: errNotLoggedIn}
	assert.Equal(t, "AUTHENTICATION_ERROR: not logged in", err.Error())
}
