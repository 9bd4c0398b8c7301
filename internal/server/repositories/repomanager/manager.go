// Package repomanager vends the record repositories for one storage backend
// and owns its lifecycle (migrations, close).
package repomanager

import (
	"context"

	"github.com/dmitrijs2005/journalsync/internal/models"
	"github.com/dmitrijs2005/journalsync/internal/server/repositories/records"
)

type RepositoryManager interface {
	RunMigrations(ctx context.Context) error
	Journals() records.Repository[*models.Journal]
	Content() records.Repository[*models.Content]
	Associations() records.AssociationRepository
	Media() records.MediaRepository
	Close() error
}
