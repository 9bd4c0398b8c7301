package models

import "net/url"

// AssociationKey is the composite key of an association.
type AssociationKey struct {
	JournalID string `json:"journalId" validate:"required"`
	ContentID string `json:"contentId" validate:"required"`
}

// String renders the key as the record ID used by storage. Each part is
// query-escaped, so ':' only ever appears as the separator and distinct pairs
// never share an ID.
func (k AssociationKey) String() string {
	return url.QueryEscape(k.JournalID) + ":" + url.QueryEscape(k.ContentID)
}

// Association attaches a content item to a journal (many-to-many).
type Association struct {
	SyncMeta
	JournalID string `json:"journalId" validate:"required"`
	ContentID string `json:"contentId" validate:"required"`
}

// NewAssociation builds an association with its derived ID.
func NewAssociation(journalID, contentID string, createdAt int64) *Association {
	a := &Association{JournalID: journalID, ContentID: contentID}
	a.CreatedAt = createdAt
	a.LastUpdated = createdAt
	a.ID = a.Key().String()
	return a
}

func (a *Association) Key() AssociationKey {
	return AssociationKey{JournalID: a.JournalID, ContentID: a.ContentID}
}

func (a *Association) Marker() Deletion {
	return Deletion{ID: a.ID, JournalID: a.JournalID, ContentID: a.ContentID, DeletedAt: a.DeletedAt}
}

func (a *Association) Clone() *Association {
	c := *a
	return &c
}
