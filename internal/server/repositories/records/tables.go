package records

import "github.com/dmitrijs2005/journalsync/internal/models"

// metaColumns are shared by every record table, in scan order.
var metaColumns = []string{
	"id", "user_id", "created_at", "last_updated", "server_version", "device_id", "deleted", "deleted_at",
}

// table maps one entity type onto its relational table.
type table[T models.Record[T]] struct {
	name    string
	columns []string
	// newRecord returns an empty, non-nil record to scan into.
	newRecord func() T
	// fields returns pointers to the payload fields, in columns order.
	fields func(T) []any
}

// values dereferences fields for use as query arguments.
func (t *table[T]) values(rec T) []any {
	ptrs := t.fields(rec)
	out := make([]any, len(ptrs))
	for i, p := range ptrs {
		switch v := p.(type) {
		case *string:
			out[i] = *v
		case *int64:
			out[i] = *v
		case *[]byte:
			out[i] = *v
		default:
			out[i] = p
		}
	}
	return out
}

var journalsTable = &table[*models.Journal]{
	name:      models.EntityJournals,
	columns:   []string{"title", "description"},
	newRecord: func() *models.Journal { return &models.Journal{} },
	fields: func(j *models.Journal) []any {
		return []any{&j.Title, &j.Description}
	},
}

var contentTable = &table[*models.Content]{
	name:      models.EntityContent,
	columns:   []string{"type", "content", "media_ref"},
	newRecord: func() *models.Content { return &models.Content{} },
	fields: func(c *models.Content) []any {
		return []any{&c.Type, &c.Content, &c.MediaRef}
	},
}

var associationsTable = &table[*models.Association]{
	name:      models.EntityAssociations,
	columns:   []string{"journal_id", "content_id"},
	newRecord: func() *models.Association { return &models.Association{} },
	fields: func(a *models.Association) []any {
		return []any{&a.JournalID, &a.ContentID}
	},
}

var mediaTable = &table[*models.Media]{
	name:      models.EntityMedia,
	columns:   []string{"content_id", "file_name", "mime_type", "size", "checksum", "data", "storage_path"},
	newRecord: func() *models.Media { return &models.Media{} },
	fields: func(m *models.Media) []any {
		return []any{&m.ContentID, &m.FileName, &m.MimeType, &m.Size, &m.Checksum, &m.Data, &m.StoragePath}
	},
}
