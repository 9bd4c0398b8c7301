package repomanager

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/journalsync/internal/models"
	"github.com/dmitrijs2005/journalsync/internal/server/migrations"
	"github.com/dmitrijs2005/journalsync/internal/server/repositories/records"
	"github.com/dmitrijs2005/journalsync/internal/timex"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// PostgresRepositoryManager vends PostgreSQL-backed repositories sharing one
// connection pool.
type PostgresRepositoryManager struct {
	db           *sql.DB
	journals     *records.PostgresRepository[*models.Journal]
	content      *records.PostgresRepository[*models.Content]
	associations *records.PostgresAssociations
	media        *records.PostgresRepository[*models.Media]
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// OpenPostgres opens a pgx-backed pool and checks it is reachable.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// NewPostgresRepositoryManager constructs a PostgreSQL-backed RepositoryManager.
func NewPostgresRepositoryManager(db *sql.DB, clock timex.Clock) (*PostgresRepositoryManager, error) {
	if db == nil {
		return nil, fmt.Errorf("nil database")
	}
	return &PostgresRepositoryManager{
		db:           db,
		journals:     records.NewPostgresJournals(db, clock),
		content:      records.NewPostgresContent(db, clock),
		associations: records.NewPostgresAssociations(db, clock),
		media:        records.NewPostgresMedia(db, clock),
	}, nil
}

func (m *PostgresRepositoryManager) Journals() records.Repository[*models.Journal] {
	return m.journals
}

func (m *PostgresRepositoryManager) Content() records.Repository[*models.Content] {
	return m.content
}

func (m *PostgresRepositoryManager) Associations() records.AssociationRepository {
	return m.associations
}

func (m *PostgresRepositoryManager) Media() records.MediaRepository {
	return m.media
}

// RunMigrations sets up goose with the embedded migrations and runs them.
func (m *PostgresRepositoryManager) RunMigrations(ctx context.Context) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	return gooseUpContext(ctx, m.db, ".")
}

func (m *PostgresRepositoryManager) Close() error {
	return m.db.Close()
}
