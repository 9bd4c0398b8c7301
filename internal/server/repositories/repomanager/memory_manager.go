package repomanager

import (
	"context"

	"github.com/dmitrijs2005/journalsync/internal/models"
	"github.com/dmitrijs2005/journalsync/internal/server/repositories/records"
	"github.com/dmitrijs2005/journalsync/internal/timex"
)

// MemoryRepositoryManager keeps everything in one go-memdb instance. It is
// meant for development and tests; data is gone on restart.
type MemoryRepositoryManager struct {
	journals     *records.MemoryRepository[*models.Journal]
	content      *records.MemoryRepository[*models.Content]
	associations *records.MemoryAssociations
	media        *records.MemoryRepository[*models.Media]
}

func NewMemoryRepositoryManager(clock timex.Clock) (*MemoryRepositoryManager, error) {
	store, err := records.NewMemDB(clock)
	if err != nil {
		return nil, err
	}
	return &MemoryRepositoryManager{
		journals:     records.NewMemoryJournals(store),
		content:      records.NewMemoryContent(store),
		associations: records.NewMemoryAssociations(store),
		media:        records.NewMemoryMedia(store),
	}, nil
}

func (m *MemoryRepositoryManager) Journals() records.Repository[*models.Journal] {
	return m.journals
}

func (m *MemoryRepositoryManager) Content() records.Repository[*models.Content] {
	return m.content
}

func (m *MemoryRepositoryManager) Associations() records.AssociationRepository {
	return m.associations
}

func (m *MemoryRepositoryManager) Media() records.MediaRepository {
	return m.media
}

// RunMigrations is a no-op; the memdb schema is fixed at construction.
func (m *MemoryRepositoryManager) RunMigrations(context.Context) error {
	return nil
}

func (m *MemoryRepositoryManager) Close() error {
	return nil
}
