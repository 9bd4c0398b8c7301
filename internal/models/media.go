package models

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// Media describes a binary blob referenced by a content item. The ID is the
// media id; it is allocated by the server when the uploader leaves it empty.
//
// Exactly one of Data and StoragePath is meaningful for a stored record: small
// deployments keep bytes inline, object-storage deployments keep the key.
type Media struct {
	SyncMeta
	ContentID string `json:"contentId" validate:"required"`
	FileName  string `json:"fileName"`
	MimeType  string `json:"mimeType"`
	Size      int64  `json:"size"`
	Checksum  string `json:"checksum,omitempty"`

	Data        []byte `json:"data,omitempty"`
	StoragePath string `json:"-"`
}

func (m *Media) Marker() Deletion {
	return Deletion{ID: m.ID, ContentID: m.ContentID, DeletedAt: m.DeletedAt}
}

func (m *Media) Clone() *Media {
	c := *m
	if m.Data != nil {
		c.Data = append([]byte(nil), m.Data...)
	}
	return &c
}

// WithoutData returns a copy stripped of inline bytes, as served in change-sets.
func (m *Media) WithoutData() *Media {
	c := *m
	c.Data = nil
	return &c
}

// Checksum returns the hex BLAKE2b-256 digest of data.
func Checksum(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}
