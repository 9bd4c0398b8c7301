package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/dmitrijs2005/journalsync/internal/common"
	"github.com/dmitrijs2005/journalsync/internal/models"
	"github.com/dmitrijs2005/journalsync/internal/server/auth"
	"github.com/dmitrijs2005/journalsync/internal/server/services"
	"github.com/go-chi/chi/v5"
)

// maxBodyBytes caps request bodies; media bytes travel base64 encoded.
const maxBodyBytes = 32 << 20

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return nil, fmt.Errorf("%w: body exceeds %d bytes", common.ErrorValidation, tooBig.Limit)
		}
		return nil, err
	}
	return body, nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	body, err := readBody(w, r)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: %v", common.ErrorValidation, err)
	}
	return nil
}

func caller(r *http.Request) (userID, deviceID string, err error) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		return "", "", common.ErrorUnauthorized
	}
	return userID, auth.DeviceIDFromContext(r.Context()), nil
}

func mountRecordRoutes[T models.Record[T]](r chi.Router, s *Server, svc *services.RecordService[T]) {
	r.Get("/changes", changes(s, svc))
	r.Post("/{id}", patchRecord(s, svc))
	r.Post("/{id}/delete", deleteRecord(s, svc))
}

func uploadRecord[T models.Record[T]](s *Server, svc *services.RecordService[T], newRecord func() T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, deviceID, err := caller(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		rec := newRecord()
		if err := decodeJSON(w, r, rec); err != nil {
			s.writeError(w, r, err)
			return
		}
		ack, err := svc.Upload(r.Context(), userID, deviceID, rec)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, ack)
	}
}

func patchRecord[T models.Record[T]](s *Server, svc *services.RecordService[T]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, deviceID, err := caller(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		body, err := readBody(w, r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		ack, err := svc.Patch(r.Context(), userID, deviceID, chi.URLParam(r, "id"), body)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, ack)
	}
}

// deleteRecord accepts an optional {"deletedAt": ms} body; without one the
// server clock is used.
func deleteRecord[T models.Record[T]](s *Server, svc *services.RecordService[T]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, _, err := caller(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		body, err := readBody(w, r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		var req models.DeleteRequest
		if len(body) > 0 {
			if err := json.Unmarshal(body, &req); err != nil {
				s.writeError(w, r, fmt.Errorf("%w: %v", common.ErrorValidation, err))
				return
			}
		}
		if err := svc.Delete(r.Context(), userID, chi.URLParam(r, "id"), req.DeletedAt); err != nil {
			s.writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

func parseSince(r *http.Request) (int64, error) {
	raw := r.URL.Query().Get("since")
	if raw == "" {
		return 0, nil
	}
	since, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, common.ErrorBadCursor
	}
	return since, nil
}

func changes[T models.Record[T]](s *Server, svc *services.RecordService[T]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, _, err := caller(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		since, err := parseSince(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		cs, err := svc.Changes(r.Context(), userID, since)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, cs)
	}
}

func (s *Server) upsertAssociations(w http.ResponseWriter, r *http.Request) {
	userID, deviceID, err := caller(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var batch models.AssociationBatch
	if err := decodeJSON(w, r, &batch); err != nil {
		s.writeError(w, r, err)
		return
	}
	ack, err := s.svc.Associations.UpsertMany(r.Context(), userID, deviceID, &batch)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ack)
}

func (s *Server) deleteAssociations(w http.ResponseWriter, r *http.Request) {
	userID, _, err := caller(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var batch models.AssociationDeleteBatch
	if err := decodeJSON(w, r, &batch); err != nil {
		s.writeError(w, r, err)
		return
	}
	ack, err := s.svc.Associations.DeleteMany(r.Context(), userID, &batch)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ack)
}

func (s *Server) uploadMedia(w http.ResponseWriter, r *http.Request) {
	userID, deviceID, err := caller(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var m models.Media
	if err := decodeJSON(w, r, &m); err != nil {
		s.writeError(w, r, err)
		return
	}
	ack, err := s.svc.Media.UploadMedia(r.Context(), userID, deviceID, &m)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ack)
}

func (s *Server) fetchMedia(w http.ResponseWriter, r *http.Request) {
	userID, _, err := caller(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	env, err := s.svc.Media.Fetch(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, env)
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	userID, _, err := caller(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	st, err := s.svc.Status.Status(r.Context(), userID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}
