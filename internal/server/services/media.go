package services

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/journalsync/internal/common"
	"github.com/dmitrijs2005/journalsync/internal/logging"
	"github.com/dmitrijs2005/journalsync/internal/models"
	"github.com/dmitrijs2005/journalsync/internal/server/objectstore"
	"github.com/dmitrijs2005/journalsync/internal/server/repositories/records"
	"github.com/dmitrijs2005/journalsync/internal/timex"
)

// MediaPathPrefix is where inline media can be fetched when no object store
// is configured.
const MediaPathPrefix = "/sync/media/"

// MediaService stores media metadata in the repository and the bytes either
// inline or in an object store.
type MediaService struct {
	*RecordService[*models.Media]
	repo  records.MediaRepository
	store objectstore.Store
}

// NewMediaService builds the service. store may be nil, in which case bytes
// stay inline in the repository.
func NewMediaService(repo records.MediaRepository, store objectstore.Store, clock timex.Clock, obs Observer, log logging.Logger) *MediaService {
	return &MediaService{
		RecordService: NewRecordService[*models.Media](models.EntityMedia, repo, clock, obs, log),
		repo:          repo,
		store:         store,
	}
}

// UploadMedia stores m and returns where its bytes can be fetched.
func (s *MediaService) UploadMedia(ctx context.Context, userID, deviceID string, m *models.Media) (*models.MediaUploadAck, error) {
	m = m.Clone()
	if m.ID == "" {
		id, err := common.NewMediaID()
		if err != nil {
			return nil, fmt.Errorf("allocate media id: %w", err)
		}
		m.ID = id
	}
	if err := models.Validate(m); err != nil {
		return nil, err
	}

	received := int64(len(m.Data))
	if received == 0 {
		if err := s.keepStoredBytes(ctx, userID, m); err != nil {
			return nil, err
		}
	}

	if len(m.Data) > 0 {
		sum := models.Checksum(m.Data)
		if m.Checksum != "" && m.Checksum != sum {
			return nil, fmt.Errorf("%w: checksum mismatch", common.ErrorValidation)
		}
		m.Checksum = sum
		m.Size = int64(len(m.Data))
	}
	if m.DeviceID == "" {
		m.DeviceID = deviceID
	}

	now := s.clock()
	if s.store != nil && len(m.Data) > 0 {
		key := objectstore.MediaKey(userID, m.ID, timex.FromMillis(now))
		if err := s.store.Put(ctx, key, m.MimeType, m.Data); err != nil {
			return nil, err
		}
		m.StoragePath = key
		m.Data = nil
	}

	stored, err := s.repo.Upsert(ctx, userID, m)
	if err != nil {
		return nil, err
	}
	s.obs.AddUploaded(s.entity, 1)
	s.obs.AddMediaBytes(received)

	url, err := s.downloadURL(ctx, stored)
	if err != nil {
		return nil, err
	}
	s.log.Info(ctx, "media uploaded", "media_id", stored.ID, "content_id", stored.ContentID, "size", stored.Size)
	return &models.MediaUploadAck{
		ContentID:     stored.ContentID,
		MediaID:       stored.ID,
		ServerVersion: stored.ServerVersion,
		DownloadURL:   url,
		UploadedAt:    now,
	}, nil
}

// keepStoredBytes lets a metadata-only upload keep the bytes already held
// for the same media id.
func (s *MediaService) keepStoredBytes(ctx context.Context, userID string, m *models.Media) error {
	existing, found, err := s.repo.Get(ctx, userID, m.ID)
	if err != nil || !found {
		return err
	}
	m.Data = existing.Data
	m.StoragePath = existing.StoragePath
	if m.Checksum == "" {
		m.Checksum = existing.Checksum
	}
	if m.Size == 0 {
		m.Size = existing.Size
	}
	return nil
}

// Fetch returns the metadata with either inline bytes or a signed URL.
func (s *MediaService) Fetch(ctx context.Context, userID, mediaID string) (*models.MediaEnvelope, error) {
	m, found, err := s.repo.Get(ctx, userID, mediaID)
	if err != nil {
		return nil, err
	}
	if !found || m.Deleted {
		return nil, common.ErrorNotFound
	}

	env := &models.MediaEnvelope{Media: m}
	if m.StoragePath != "" {
		url, err := s.downloadURL(ctx, m)
		if err != nil {
			return nil, err
		}
		env.DownloadURL = url
	}
	return env, nil
}

func (s *MediaService) downloadURL(ctx context.Context, m *models.Media) (string, error) {
	if m.StoragePath != "" && s.store != nil {
		return s.store.SignedURL(ctx, m.StoragePath)
	}
	return MediaPathPrefix + m.ID, nil
}
