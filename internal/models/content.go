package models

// Content is a note or other content item. MediaRef points at a Media record
// when the item carries a binary attachment.
type Content struct {
	SyncMeta
	Type     string `json:"type" validate:"required"`
	Content  string `json:"content"`
	MediaRef string `json:"mediaRef,omitempty"`
}

func (c *Content) Marker() Deletion {
	return Deletion{ID: c.ID, DeletedAt: c.DeletedAt}
}

func (c *Content) Clone() *Content {
	cp := *c
	return &cp
}
