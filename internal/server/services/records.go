package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/journalsync/internal/common"
	"github.com/dmitrijs2005/journalsync/internal/logging"
	"github.com/dmitrijs2005/journalsync/internal/models"
	"github.com/dmitrijs2005/journalsync/internal/server/repositories/records"
	"github.com/dmitrijs2005/journalsync/internal/timex"
)

// RecordService implements upload, partial update, delete and change-set
// queries for one entity type.
type RecordService[T models.Record[T]] struct {
	entity string
	repo   records.Repository[T]
	clock  timex.Clock
	obs    Observer
	log    logging.Logger
}

func NewRecordService[T models.Record[T]](entity string, repo records.Repository[T], clock timex.Clock, obs Observer, log logging.Logger) *RecordService[T] {
	if clock == nil {
		clock = timex.SystemClock
	}
	if log == nil {
		log = logging.Nop()
	}
	return &RecordService[T]{
		entity: entity,
		repo:   repo,
		clock:  clock,
		obs:    observerOrNop(obs),
		log:    log.With("module", "sync", "entity", entity),
	}
}

func (s *RecordService[T]) Entity() string {
	return s.entity
}

// Upload stores rec for userID. deviceID fills in a missing DeviceID.
//
// A live stored record with a later lastUpdated is kept instead of rec. It is
// rewritten under a new version so the uploader's next change-set carries it,
// and the ack is marked Superseded.
func (s *RecordService[T]) Upload(ctx context.Context, userID, deviceID string, rec T) (*models.UploadAck, error) {
	if err := models.Validate(rec); err != nil {
		return nil, err
	}
	m := rec.Meta()
	if m.DeviceID == "" {
		m.DeviceID = deviceID
	}

	existing, found, err := s.repo.Get(ctx, userID, m.ID)
	if err != nil {
		return nil, err
	}
	superseded := found && !existing.Meta().Deleted && existing.Meta().LastUpdated > m.LastUpdated
	if superseded {
		rec = existing
	}

	stored, err := s.repo.Upsert(ctx, userID, rec)
	if err != nil {
		return nil, err
	}
	sm := stored.Meta()
	if superseded {
		s.log.Debug(ctx, "stale upload ignored", "id", sm.ID,
			"stored_last_updated", sm.LastUpdated, "uploaded_last_updated", m.LastUpdated)
	} else {
		s.obs.AddUploaded(s.entity, 1)
		s.log.Debug(ctx, "record uploaded", "id", sm.ID, "server_version", sm.ServerVersion)
	}
	return &models.UploadAck{
		ID:            sm.ID,
		ServerVersion: sm.ServerVersion,
		UploadedAt:    s.clock(),
		Superseded:    superseded,
	}, nil
}

// Patch overlays the JSON fields present in body onto the stored record.
// Fields absent from body keep their stored values; the id cannot change.
// When body does not move lastUpdated forward, the server clock stamps it.
func (s *RecordService[T]) Patch(ctx context.Context, userID, deviceID, id string, body []byte) (*models.UploadAck, error) {
	existing, found, err := s.repo.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if !found || existing.Meta().Deleted {
		return nil, common.ErrorNotFound
	}

	merged := existing.Clone()
	before := existing.Meta().LastUpdated
	if err := json.Unmarshal(body, merged); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrorValidation, err)
	}

	m := merged.Meta()
	m.ID = id
	if m.LastUpdated <= before {
		m.LastUpdated = s.clock()
	}
	if deviceID != "" {
		m.DeviceID = deviceID
	}
	if err := models.Validate(merged); err != nil {
		return nil, err
	}

	stored, err := s.repo.Upsert(ctx, userID, merged)
	if err != nil {
		return nil, err
	}
	s.obs.AddUploaded(s.entity, 1)
	return &models.UploadAck{ID: id, ServerVersion: stored.Meta().ServerVersion, UpdatedAt: s.clock()}, nil
}

func (s *RecordService[T]) Delete(ctx context.Context, userID, id string, deletedAt int64) error {
	if _, err := s.repo.Delete(ctx, userID, id, deletedAt); err != nil {
		return err
	}
	s.obs.AddDeleted(s.entity, 1)
	s.log.Debug(ctx, "record deleted", "id", id)
	return nil
}

func (s *RecordService[T]) Changes(ctx context.Context, userID string, since int64) (*models.ChangeSet[T], error) {
	if since < 0 {
		return nil, common.ErrorBadCursor
	}
	cs, err := s.repo.ChangesSince(ctx, userID, since)
	if err != nil {
		return nil, err
	}
	s.obs.AddChangeSet(s.entity, len(cs.Changes), len(cs.Deletions))
	return cs, nil
}

// AssociationService adds batch writes to the association record service.
type AssociationService struct {
	*RecordService[*models.Association]
	repo records.AssociationRepository
}

func NewAssociationService(repo records.AssociationRepository, clock timex.Clock, obs Observer, log logging.Logger) *AssociationService {
	return &AssociationService{
		RecordService: NewRecordService[*models.Association](models.EntityAssociations, repo, clock, obs, log),
		repo:          repo,
	}
}

func (s *AssociationService) UpsertMany(ctx context.Context, userID, deviceID string, batch *models.AssociationBatch) (*models.BatchAck, error) {
	for _, a := range batch.Associations {
		if a == nil {
			return nil, fmt.Errorf("%w: null association", common.ErrorValidation)
		}
		a.ID = a.Key().String()
		if a.DeviceID == "" {
			a.DeviceID = deviceID
		}
		if a.LastUpdated == 0 {
			a.LastUpdated = a.CreatedAt
		}
	}
	if err := models.Validate(batch); err != nil {
		return nil, err
	}

	top, err := s.repo.UpsertMany(ctx, userID, batch.Associations)
	if err != nil {
		return nil, err
	}
	s.obs.AddUploaded(s.entity, len(batch.Associations))
	return &models.BatchAck{Count: len(batch.Associations), ServerVersion: top}, nil
}

func (s *AssociationService) DeleteMany(ctx context.Context, userID string, batch *models.AssociationDeleteBatch) (*models.BatchAck, error) {
	if err := models.Validate(batch); err != nil {
		return nil, err
	}
	n, top, err := s.repo.DeleteMany(ctx, userID, batch.Keys, batch.DeletedAt)
	if err != nil {
		return nil, err
	}
	s.obs.AddDeleted(s.entity, n)
	return &models.BatchAck{Count: n, ServerVersion: top}, nil
}
