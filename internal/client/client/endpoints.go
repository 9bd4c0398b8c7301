package client

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/journalsync/internal/models"
	"github.com/dmitrijs2005/journalsync/internal/netx"
)

// MaxMediaBytes bounds a single media download.
const MaxMediaBytes = 64 << 20

// Records is the /sync/{entity} endpoint family for one entity type.
type Records[T models.Record[T]] struct {
	c      *Client
	entity string
}

func NewRecords[T models.Record[T]](c *Client, entity string) *Records[T] {
	return &Records[T]{c: c, entity: entity}
}

func (r *Records[T]) Entity() string {
	return r.entity
}

func (r *Records[T]) path(parts ...string) string {
	escaped := make([]string, 0, len(parts)+2)
	escaped = append(escaped, "/sync", r.entity)
	for _, p := range parts {
		escaped = append(escaped, url.PathEscape(p))
	}
	return strings.Join(escaped, "/")
}

func (r *Records[T]) Upload(ctx context.Context, rec T) (*models.UploadAck, error) {
	var ack models.UploadAck
	if err := r.c.do(ctx, http.MethodPost, r.path(), rec, &ack); err != nil {
		return nil, err
	}
	return &ack, nil
}

// Patch sends only the fields present in fields, e.g. a map or a struct with
// omitempty tags.
func (r *Records[T]) Patch(ctx context.Context, id string, fields any) (*models.UploadAck, error) {
	var ack models.UploadAck
	if err := r.c.do(ctx, http.MethodPost, r.path(id), fields, &ack); err != nil {
		return nil, err
	}
	return &ack, nil
}

// Delete tombstones rec on the server at its local DeletedAt.
func (r *Records[T]) Delete(ctx context.Context, rec T) error {
	m := rec.Meta()
	return r.c.do(ctx, http.MethodPost, r.path(m.ID, "delete"), models.DeleteRequest{DeletedAt: m.DeletedAt}, nil)
}

func (r *Records[T]) Changes(ctx context.Context, since int64) (*models.ChangeSet[T], error) {
	cs := &models.ChangeSet[T]{}
	path := r.path("changes") + "?since=" + strconv.FormatInt(since, 10)
	if err := r.c.do(ctx, http.MethodGet, path, nil, cs); err != nil {
		return nil, err
	}
	return cs, nil
}

// Associations uses the batch endpoints for writes.
type Associations struct {
	*Records[*models.Association]
}

func NewAssociations(c *Client) *Associations {
	return &Associations{Records: NewRecords[*models.Association](c, models.EntityAssociations)}
}

func (a *Associations) UploadBatch(ctx context.Context, recs []*models.Association) (*models.BatchAck, error) {
	var ack models.BatchAck
	if err := a.c.do(ctx, http.MethodPost, a.path(), models.AssociationBatch{Associations: recs}, &ack); err != nil {
		return nil, err
	}
	return &ack, nil
}

func (a *Associations) Upload(ctx context.Context, rec *models.Association) (*models.UploadAck, error) {
	ack, err := a.UploadBatch(ctx, []*models.Association{rec})
	if err != nil {
		return nil, err
	}
	return &models.UploadAck{ID: rec.Key().String(), ServerVersion: ack.ServerVersion}, nil
}

func (a *Associations) DeleteBatch(ctx context.Context, keys []models.AssociationKey, deletedAt int64) (*models.BatchAck, error) {
	var ack models.BatchAck
	req := models.AssociationDeleteBatch{Keys: keys, DeletedAt: deletedAt}
	if err := a.c.do(ctx, http.MethodPost, a.path("delete"), req, &ack); err != nil {
		return nil, err
	}
	return &ack, nil
}

func (a *Associations) Delete(ctx context.Context, rec *models.Association) error {
	_, err := a.DeleteBatch(ctx, []models.AssociationKey{rec.Key()}, rec.DeletedAt)
	return err
}

// Media uploads through POST /sync/media and fetches bytes lazily.
type Media struct {
	*Records[*models.Media]
}

func NewMedia(c *Client) *Media {
	return &Media{Records: NewRecords[*models.Media](c, models.EntityMedia)}
}

func (m *Media) UploadMedia(ctx context.Context, rec *models.Media) (*models.MediaUploadAck, error) {
	var ack models.MediaUploadAck
	if err := m.c.do(ctx, http.MethodPost, m.path(), rec, &ack); err != nil {
		return nil, err
	}
	return &ack, nil
}

func (m *Media) Upload(ctx context.Context, rec *models.Media) (*models.UploadAck, error) {
	ack, err := m.UploadMedia(ctx, rec)
	if err != nil {
		return nil, err
	}
	return &models.UploadAck{ID: ack.MediaID, ServerVersion: ack.ServerVersion, UploadedAt: ack.UploadedAt}, nil
}

// Fetch returns the media metadata with its bytes, following the signed URL
// when the server keeps them in object storage.
func (m *Media) Fetch(ctx context.Context, mediaID string) (*models.Media, error) {
	var env models.MediaEnvelope
	if err := m.c.do(ctx, http.MethodGet, m.path(mediaID), nil, &env); err != nil {
		return nil, err
	}
	if env.Media == nil {
		return nil, &StatusError{Code: http.StatusNotFound, Message: "empty media envelope"}
	}
	if len(env.Data) == 0 && env.DownloadURL != "" {
		data, err := netx.Download(ctx, m.c.hc, env.DownloadURL, MaxMediaBytes)
		if err != nil {
			return nil, err
		}
		env.Data = data
	}
	return env.Media, nil
}

// Status fetches the caller's per-entity record counts and the server clock.
func (c *Client) Status(ctx context.Context) (*models.Status, error) {
	var st models.Status
	if err := c.do(ctx, http.MethodGet, "/sync/status", nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}
