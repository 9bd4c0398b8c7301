package services

import (
	"context"

	"github.com/dmitrijs2005/journalsync/internal/models"
	"github.com/dmitrijs2005/journalsync/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/journalsync/internal/timex"
)

type statsSource interface {
	Stats(ctx context.Context, userID string) (models.EntityStats, error)
}

// StatusService reports per-entity record counts for diagnostics.
type StatusService struct {
	sources map[string]statsSource
	clock   timex.Clock
}

func NewStatusService(m repomanager.RepositoryManager, clock timex.Clock) *StatusService {
	if clock == nil {
		clock = timex.SystemClock
	}
	return &StatusService{
		sources: map[string]statsSource{
			models.EntityJournals:     m.Journals(),
			models.EntityContent:      m.Content(),
			models.EntityAssociations: m.Associations(),
			models.EntityMedia:        m.Media(),
		},
		clock: clock,
	}
}

func (s *StatusService) Status(ctx context.Context, userID string) (*models.Status, error) {
	st := &models.Status{
		UserID:        userID,
		Entities:      make(map[string]models.EntityStats, len(s.sources)),
		LastTimestamp: s.clock(),
	}
	for name, src := range s.sources {
		es, err := src.Stats(ctx, userID)
		if err != nil {
			return nil, err
		}
		st.Entities[name] = es
	}
	return st, nil
}
