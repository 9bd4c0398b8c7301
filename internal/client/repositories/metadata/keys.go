package metadata

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

const (
	keyDeviceID    = "device_id"
	keyAccessToken = "access_token"
	keyLastSyncAt  = "last_sync_at"

	checkpointPrefix = "checkpoint:"
)

// Settings gives typed access to the well-known keys.
type Settings struct {
	repo Repository
}

func NewSettings(repo Repository) *Settings {
	return &Settings{repo: repo}
}

func (s *Settings) getInt(ctx context.Context, key string) (int64, error) {
	v, ok, err := s.repo.Get(ctx, key)
	if err != nil || !ok {
		return 0, err
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("metadata[%s] is not a number: %w", key, err)
	}
	return n, nil
}

func (s *Settings) setInt(ctx context.Context, key string, n int64) error {
	return s.repo.Set(ctx, key, strconv.FormatInt(n, 10))
}

// Checkpoint returns the last change-set watermark applied for entity, or 0.
func (s *Settings) Checkpoint(ctx context.Context, entity string) (int64, error) {
	return s.getInt(ctx, checkpointPrefix+entity)
}

func (s *Settings) SetCheckpoint(ctx context.Context, entity string, ts int64) error {
	return s.setInt(ctx, checkpointPrefix+entity, ts)
}

// Checkpoints returns every stored watermark keyed by entity type.
func (s *Settings) Checkpoints(ctx context.Context) (map[string]int64, error) {
	raw, err := s.repo.Scan(ctx, checkpointPrefix)
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(raw))
	for k, v := range raw {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("metadata[%s] is not a number: %w", k, err)
		}
		out[strings.TrimPrefix(k, checkpointPrefix)] = n
	}
	return out, nil
}

// ResetCheckpoints forgets every watermark so the next pass downloads the
// full change history again.
func (s *Settings) ResetCheckpoints(ctx context.Context) error {
	_, err := s.repo.DeletePrefix(ctx, checkpointPrefix)
	return err
}

func (s *Settings) LastSyncAt(ctx context.Context) (int64, error) {
	return s.getInt(ctx, keyLastSyncAt)
}

func (s *Settings) SetLastSyncAt(ctx context.Context, ts int64) error {
	return s.setInt(ctx, keyLastSyncAt, ts)
}

// DeviceID returns the identifier of this installation, creating it on first
// use.
func (s *Settings) DeviceID(ctx context.Context) (string, error) {
	v, ok, err := s.repo.Get(ctx, keyDeviceID)
	if err != nil {
		return "", err
	}
	if ok && v != "" {
		return v, nil
	}
	id := uuid.NewString()
	if err := s.repo.Set(ctx, keyDeviceID, id); err != nil {
		return "", err
	}
	return id, nil
}

func (s *Settings) AccessToken(ctx context.Context) (string, error) {
	v, _, err := s.repo.Get(ctx, keyAccessToken)
	return v, err
}

func (s *Settings) SetAccessToken(ctx context.Context, token string) error {
	return s.repo.Set(ctx, keyAccessToken, token)
}

func (s *Settings) ClearAccessToken(ctx context.Context) error {
	return s.repo.Delete(ctx, keyAccessToken)
}
