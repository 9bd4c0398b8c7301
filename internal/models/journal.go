package models

// Journal is a named collection that content items are attached to.
type Journal struct {
	SyncMeta
	Title       string `json:"title" validate:"required"`
	Description string `json:"description"`
}

func (j *Journal) Marker() Deletion {
	return Deletion{ID: j.ID, DeletedAt: j.DeletedAt}
}

func (j *Journal) Clone() *Journal {
	c := *j
	return &c
}
