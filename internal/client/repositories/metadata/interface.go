package metadata

import (
	"context"
)

// Repository is a small key/value store for client-local settings such as
// sync checkpoints, the device identifier and the access token. A missing
// key reads as ("", false, nil).
type Repository interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	// Scan returns every pair whose key starts with prefix.
	Scan(ctx context.Context, prefix string) (map[string]string, error)
	DeletePrefix(ctx context.Context, prefix string) (int64, error)
}
