// Package models defines the sync-managed records shared by the server, the
// client and the wire protocol: journals, content items, journal-content
// associations and media, plus change-sets and response envelopes.
package models

// Entity names double as URL path segments and storage table suffixes.
const (
	EntityJournals     = "journals"
	EntityContent      = "content"
	EntityAssociations = "associations"
	EntityMedia        = "media"
)

// SyncMeta carries the versioning and tombstone fields every record shares.
// All instants are epoch milliseconds.
type SyncMeta struct {
	// ID is the client-generated identifier, unique per entity type and user.
	ID string `json:"id" validate:"required"`
	// UserID scopes the record; it is never read from or written to the wire.
	UserID string `json:"-"`

	CreatedAt   int64 `json:"createdAt"`
	LastUpdated int64 `json:"lastUpdated"`

	// ServerVersion is assigned by the server on every write and never decreases.
	ServerVersion int64 `json:"serverVersion"`
	// DeviceID names the device that made the last write.
	DeviceID string `json:"deviceId,omitempty"`

	Deleted   bool  `json:"deleted,omitempty"`
	DeletedAt int64 `json:"deletedAt,omitempty"`
}

// Meta gives generic code access to the shared fields.
func (m *SyncMeta) Meta() *SyncMeta {
	return m
}

// Record is implemented by the pointer types of every sync-managed entity.
type Record[T any] interface {
	Meta() *SyncMeta
	// Marker returns the lightweight deletion marker for the record.
	Marker() Deletion
	// Clone returns a deep copy so stores never share mutable state with callers.
	Clone() T
}

// Deletion is the marker reported for a tombstoned record. JournalID and
// ContentID are only set for associations.
type Deletion struct {
	ID        string `json:"id"`
	JournalID string `json:"journalId,omitempty"`
	ContentID string `json:"contentId,omitempty"`
	DeletedAt int64  `json:"deletedAt"`
}

// ChangeSet is the answer to "everything changed since T": live records,
// deletion markers and the watermark to persist as the next cursor.
type ChangeSet[T any] struct {
	Changes       []T        `json:"changes"`
	Deletions     []Deletion `json:"deletions"`
	LastTimestamp int64      `json:"lastTimestamp"`
}

// NewChangeSet returns an empty change-set with non-nil slices so it encodes
// as [] rather than null.
func NewChangeSet[T any](watermark int64) *ChangeSet[T] {
	return &ChangeSet[T]{
		Changes:       []T{},
		Deletions:     []Deletion{},
		LastTimestamp: watermark,
	}
}
