package models

// UploadAck answers a single-record upload or partial update. Superseded is
// set when the server already held a newer edit and kept it; ServerVersion is
// then the version of the kept record.
type UploadAck struct {
	ID            string `json:"id"`
	ServerVersion int64  `json:"serverVersion"`
	UploadedAt    int64  `json:"uploadedAt,omitempty"`
	UpdatedAt     int64  `json:"updatedAt,omitempty"`
	Superseded    bool   `json:"superseded,omitempty"`
}

// AssociationBatch is the body of POST /sync/associations.
type AssociationBatch struct {
	Associations []*Association `json:"associations" validate:"dive"`
}

// AssociationDeleteBatch is the body of POST /sync/associations/delete.
type AssociationDeleteBatch struct {
	Keys      []AssociationKey `json:"keys" validate:"dive"`
	DeletedAt int64            `json:"deletedAt"`
}

// BatchAck answers association batch writes.
type BatchAck struct {
	Count         int   `json:"count"`
	ServerVersion int64 `json:"serverVersion"`
}

// MediaUploadAck answers POST /sync/media.
type MediaUploadAck struct {
	ContentID     string `json:"contentId"`
	MediaID       string `json:"mediaId"`
	ServerVersion int64  `json:"serverVersion"`
	DownloadURL   string `json:"downloadUrl"`
	UploadedAt    int64  `json:"uploadedAt"`
}

// MediaEnvelope answers GET /sync/media/{mediaId}: metadata plus either the
// inline bytes or a signed download URL.
type MediaEnvelope struct {
	*Media
	DownloadURL string `json:"downloadUrl,omitempty"`
}

// DeleteRequest is the optional body of POST /sync/{entity}/{id}/delete.
type DeleteRequest struct {
	DeletedAt int64 `json:"deletedAt"`
}

// EntityStats counts a user's records of one entity type.
type EntityStats struct {
	Live    int `json:"live"`
	Deleted int `json:"deleted"`
}

// Status answers GET /sync/status.
type Status struct {
	UserID        string                 `json:"userId"`
	Entities      map[string]EntityStats `json:"entities"`
	LastTimestamp int64                  `json:"lastTimestamp"`
}
