package cli

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/journalsync/internal/client/client"
	"github.com/dmitrijs2005/journalsync/internal/client/config"
	"github.com/dmitrijs2005/journalsync/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/journalsync/internal/client/repositories/records"
	"github.com/dmitrijs2005/journalsync/internal/client/syncer"
	"github.com/dmitrijs2005/journalsync/internal/common"
	"github.com/dmitrijs2005/journalsync/internal/conflict"
	"github.com/dmitrijs2005/journalsync/internal/filex"
	"github.com/dmitrijs2005/journalsync/internal/logging"
	"github.com/dmitrijs2005/journalsync/internal/models"
	"github.com/dmitrijs2005/journalsync/internal/timex"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// App is the local state behind every command.
type App struct {
	config   *config.Config
	db       *sql.DB
	log      logging.Logger
	logFile  io.Closer
	clock    timex.Clock
	deviceID string

	settings *metadata.Settings
	journals *records.SQLiteStore[*models.Journal]
	content  *records.SQLiteStore[*models.Content]
	assoc    *records.SQLiteStore[*models.Association]
	media    *records.SQLiteStore[*models.Media]

	api    *client.Client
	remote *client.Media
	syncer *syncer.Orchestrator
}

func newLogger(c *config.Config) (logging.Logger, io.Closer, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return nil, nil, fmt.Errorf("invalid log level %q", c.LogLevel)
	}
	if c.LogFile == "" {
		h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: max(level, slog.LevelWarn)})
		return logging.NewSlogLogger(slog.New(h)), nil, nil
	}
	l, closer := logging.NewRotatingSlogLogger(c.LogFile, 10, level)
	return l, closer, nil
}

// NewApp opens (and migrates) the local database and wires the stores, the
// HTTP client and the sync orchestrator.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	l, logFile, err := newLogger(c)
	if err != nil {
		return nil, err
	}

	path, err := filex.EnsureParentDir(c.DatabasePath)
	if err != nil {
		return nil, err
	}
	db, err := client.InitDatabase(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("open local database: %w", err)
	}

	a := &App{
		config:   c,
		db:       db,
		log:      l,
		logFile:  logFile,
		clock:    timex.SystemClock,
		settings: metadata.NewSettings(metadata.NewSQLiteRepository(db)),
		journals: records.NewSQLiteStore(db, models.EntityJournals, func() *models.Journal { return &models.Journal{} }),
		content:  records.NewSQLiteStore(db, models.EntityContent, func() *models.Content { return &models.Content{} }),
		assoc:    records.NewSQLiteStore(db, models.EntityAssociations, func() *models.Association { return &models.Association{} }),
		media:    records.NewSQLiteStore(db, models.EntityMedia, func() *models.Media { return &models.Media{} }),
	}

	a.deviceID, err = a.settings.DeviceID(ctx)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	a.api, err = client.New(c.ServerURL, c.RequestTimeout, a.deviceID, a.settings)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.remote = client.NewMedia(a.api)

	a.syncer = syncer.New(a.deviceID, a.settings, a.settings, a.clock, l,
		syncer.NewLane[*models.Journal](models.EntityJournals, a.journals,
			client.NewRecords[*models.Journal](a.api, models.EntityJournals), conflict.JournalMerger{}),
		syncer.NewLane[*models.Content](models.EntityContent, a.content,
			client.NewRecords[*models.Content](a.api, models.EntityContent), conflict.ContentMerger{}),
		syncer.NewMediaLane(a.media, a.remote),
		syncer.NewLane[*models.Association](models.EntityAssociations, a.assoc, client.NewAssociations(a.api), nil),
	)
	return a, nil
}

func (a *App) Close() error {
	err := a.db.Close()
	if a.logFile != nil {
		_ = a.logFile.Close()
	}
	return err
}

// stamp fills the sync fields of a record edited on this device.
func (a *App) stamp(m *models.SyncMeta, created bool) {
	now := a.clock()
	if created {
		m.CreatedAt = now
	}
	m.LastUpdated = now
	m.DeviceID = a.deviceID
}

func (a *App) Login(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("empty access token")
	}
	return a.settings.SetAccessToken(ctx, token)
}

func (a *App) Logout(ctx context.Context) error {
	return a.settings.ClearAccessToken(ctx)
}

// Sync runs a full pass, or a single entity lane when entity is set.
func (a *App) Sync(ctx context.Context, entity string) (*syncer.SyncResult, error) {
	switch entity {
	case "":
		return a.syncer.FullSync(ctx), nil
	case models.EntityJournals:
		return a.syncer.SyncJournals(ctx), nil
	case models.EntityContent:
		return a.syncer.SyncContent(ctx), nil
	case models.EntityMedia:
		return a.syncer.SyncMedia(ctx), nil
	case models.EntityAssociations:
		return a.syncer.SyncAssociations(ctx), nil
	}
	return nil, fmt.Errorf("unknown entity %q", entity)
}

// ResetCheckpoints makes the next pass download every entity from scratch.
func (a *App) ResetCheckpoints(ctx context.Context) error {
	return a.settings.ResetCheckpoints(ctx)
}

func (a *App) Status(ctx context.Context) (*syncer.SyncStatus, error) {
	return a.syncer.GetSyncStatus(ctx)
}

func (a *App) Checkpoints(ctx context.Context) (map[string]int64, error) {
	return a.settings.Checkpoints(ctx)
}

func (a *App) RemoteStatus(ctx context.Context) (*models.Status, error) {
	return a.api.Status(ctx)
}

func (a *App) AddJournal(ctx context.Context, title, description string) (*models.Journal, error) {
	j := &models.Journal{Title: title, Description: description}
	j.ID = uuid.NewString()
	a.stamp(&j.SyncMeta, true)
	if err := models.Validate(j); err != nil {
		return nil, err
	}
	if err := a.journals.Save(ctx, j); err != nil {
		return nil, err
	}
	return j, nil
}

func (a *App) liveJournal(ctx context.Context, id string) (*models.Journal, error) {
	j, found, err := a.journals.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !found || j.Deleted {
		return nil, fmt.Errorf("journal %s: %w", id, common.ErrorNotFound)
	}
	return j, nil
}

func (a *App) liveContent(ctx context.Context, id string) (*models.Content, error) {
	c, found, err := a.content.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !found || c.Deleted {
		return nil, fmt.Errorf("content %s: %w", id, common.ErrorNotFound)
	}
	return c, nil
}

// EditJournal changes the fields that are not nil.
func (a *App) EditJournal(ctx context.Context, id string, title, description *string) (*models.Journal, error) {
	j, err := a.liveJournal(ctx, id)
	if err != nil {
		return nil, err
	}
	if title != nil {
		j.Title = *title
	}
	if description != nil {
		j.Description = *description
	}
	a.stamp(&j.SyncMeta, false)
	if err := models.Validate(j); err != nil {
		return nil, err
	}
	if err := a.journals.Save(ctx, j); err != nil {
		return nil, err
	}
	return j, nil
}

func (a *App) ListJournals(ctx context.Context) ([]*models.Journal, error) {
	return a.journals.List(ctx)
}

// DeleteJournal tombstones the journal and its associations.
func (a *App) DeleteJournal(ctx context.Context, id string) error {
	now := a.clock()
	if err := a.journals.MarkDeleted(ctx, id, now); err != nil {
		return fmt.Errorf("journal %s: %w", id, err)
	}
	return a.unlinkWhere(ctx, now, func(as *models.Association) bool { return as.JournalID == id })
}

func (a *App) AddContent(ctx context.Context, typ, body, journalID string) (*models.Content, error) {
	if journalID != "" {
		if _, err := a.liveJournal(ctx, journalID); err != nil {
			return nil, err
		}
	}

	c := &models.Content{Type: typ, Content: body}
	c.ID = uuid.NewString()
	a.stamp(&c.SyncMeta, true)
	if err := models.Validate(c); err != nil {
		return nil, err
	}
	if err := a.content.Save(ctx, c); err != nil {
		return nil, err
	}
	if journalID != "" {
		if err := a.Link(ctx, journalID, c.ID); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// ListContent lists all content, or only the items linked to journalID.
func (a *App) ListContent(ctx context.Context, journalID string) ([]*models.Content, error) {
	all, err := a.content.List(ctx)
	if err != nil || journalID == "" {
		return all, err
	}

	links, err := a.assoc.List(ctx)
	if err != nil {
		return nil, err
	}
	linked := make(map[string]bool)
	for _, l := range links {
		if l.JournalID == journalID {
			linked[l.ContentID] = true
		}
	}

	var out []*models.Content
	for _, c := range all {
		if linked[c.ID] {
			out = append(out, c)
		}
	}
	return out, nil
}

// DeleteContent tombstones the item and its associations.
func (a *App) DeleteContent(ctx context.Context, id string) error {
	now := a.clock()
	if err := a.content.MarkDeleted(ctx, id, now); err != nil {
		return fmt.Errorf("content %s: %w", id, err)
	}
	return a.unlinkWhere(ctx, now, func(as *models.Association) bool { return as.ContentID == id })
}

func (a *App) Link(ctx context.Context, journalID, contentID string) error {
	if _, err := a.liveJournal(ctx, journalID); err != nil {
		return err
	}
	if _, err := a.liveContent(ctx, contentID); err != nil {
		return err
	}

	as := models.NewAssociation(journalID, contentID, a.clock())
	as.DeviceID = a.deviceID
	return a.assoc.Save(ctx, as)
}

func (a *App) Unlink(ctx context.Context, journalID, contentID string) error {
	key := models.AssociationKey{JournalID: journalID, ContentID: contentID}
	if err := a.assoc.MarkDeleted(ctx, key.String(), a.clock()); err != nil {
		return fmt.Errorf("link %s: %w", key, err)
	}
	return nil
}

func (a *App) unlinkWhere(ctx context.Context, now int64, match func(*models.Association) bool) error {
	links, err := a.assoc.List(ctx)
	if err != nil {
		return err
	}
	for _, l := range links {
		if match(l) {
			if err := a.assoc.MarkDeleted(ctx, l.ID, now); err != nil {
				return err
			}
		}
	}
	return nil
}

// AttachMedia stores the file at path as a media record and points the
// content item at it.
func (a *App) AttachMedia(ctx context.Context, contentID, path string) (*models.Media, error) {
	c, err := a.liveContent(ctx, contentID)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) > client.MaxMediaBytes {
		return nil, fmt.Errorf("%s is larger than %d bytes", path, client.MaxMediaBytes)
	}

	id, err := common.NewMediaID()
	if err != nil {
		return nil, err
	}
	m := &models.Media{
		ContentID: contentID,
		FileName:  filepath.Base(path),
		MimeType:  mimetype.Detect(data).String(),
		Size:      int64(len(data)),
		Checksum:  models.Checksum(data),
		Data:      data,
	}
	m.ID = id
	a.stamp(&m.SyncMeta, true)
	if err := a.media.Save(ctx, m); err != nil {
		return nil, err
	}

	c.MediaRef = m.ID
	a.stamp(&c.SyncMeta, false)
	if err := a.content.Save(ctx, c); err != nil {
		return nil, err
	}
	return m, nil
}

// FetchMedia writes the media bytes to out, downloading them when only the
// metadata is held locally.
func (a *App) FetchMedia(ctx context.Context, mediaID, out string) (*models.Media, error) {
	m, found, err := a.media.Get(ctx, mediaID)
	if err != nil {
		return nil, err
	}
	if !found || len(m.Data) == 0 {
		m, err = a.remote.Fetch(ctx, mediaID)
		if err != nil {
			return nil, err
		}
	}
	if m.Checksum != "" && models.Checksum(m.Data) != m.Checksum {
		return nil, fmt.Errorf("media %s: checksum mismatch", mediaID)
	}
	if err := os.WriteFile(out, m.Data, 0o600); err != nil {
		return nil, err
	}
	return m, nil
}
