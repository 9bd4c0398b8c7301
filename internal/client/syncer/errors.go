package syncer

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/dmitrijs2005/journalsync/internal/client/client"
)

// ErrorKind classifies a sync failure.
type ErrorKind string

const (
	AuthenticationError ErrorKind = "AUTHENTICATION_ERROR"
	NetworkError        ErrorKind = "NETWORK_ERROR"
	ServerError         ErrorKind = "SERVER_ERROR"
	ConflictError       ErrorKind = "CONFLICT_ERROR"
	StorageError        ErrorKind = "STORAGE_ERROR"
	UnknownError        ErrorKind = "UNKNOWN_ERROR"
)

// SyncError is one failure collected during a pass. Entity and ID are empty
// when the failure is not tied to a record.
type SyncError struct {
	Kind   ErrorKind `json:"kind"`
	Entity string    `json:"entity,omitempty"`
	ID     string    `json:"id,omitempty"`
	Err    error     `json:"-"`
}

func (e *SyncError) Error() string {
	where := e.Entity
	if e.ID != "" {
		where += " " + e.ID
	}
	if where == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, where, e.Err)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

var (
	// ErrManualResolution marks a record the resolver refused to settle.
	ErrManualResolution = errors.New("manual resolution required")

	errNotLoggedIn = errors.New("not logged in")
)

// classify maps a transport error onto the taxonomy.
func classify(entity, id string, err error) *SyncError {
	var se *SyncError
	if errors.As(err, &se) {
		return se
	}

	kind := UnknownError
	var status *client.StatusError
	switch {
	case errors.Is(err, client.ErrUnauthorized):
		kind = AuthenticationError
	case errors.Is(err, client.ErrUnavailable),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		kind = NetworkError
	case errors.As(err, &status):
		if status.Code == http.StatusConflict {
			kind = ConflictError
		} else {
			kind = ServerError
		}
	}
	return &SyncError{Kind: kind, Entity: entity, ID: id, Err: err}
}

func storageError(entity, id string, err error) *SyncError {
	return &SyncError{Kind: StorageError, Entity: entity, ID: id, Err: err}
}
