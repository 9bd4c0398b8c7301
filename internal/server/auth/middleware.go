package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/dmitrijs2005/journalsync/internal/common"
)

type ctxKey int

const (
	userIDKey ctxKey = iota
	deviceIDKey
)

// WithUserID stores the authenticated user id on ctx.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserIDFromContext returns the user id put there by Middleware.
func UserIDFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(userIDKey).(string)
	return v, ok && v != ""
}

// DeviceIDFromContext returns the X-Device-ID header of the request, if any.
func DeviceIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(deviceIDKey).(string)
	return v
}

// BearerToken extracts the token from an "Authorization: Bearer ..." header.
func BearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get(common.AuthorizationHeaderName)
	if len(h) <= len(common.BearerPrefix) || !strings.EqualFold(h[:len(common.BearerPrefix)], common.BearerPrefix) {
		return "", false
	}
	tok := strings.TrimSpace(h[len(common.BearerPrefix):])
	return tok, tok != ""
}

// Middleware rejects requests without a valid bearer token and scopes the
// rest of the chain to the token's user. onError writes the rejection.
func Middleware(secretKey []byte, onError func(w http.ResponseWriter, r *http.Request, err error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tok, ok := BearerToken(r)
			if !ok {
				onError(w, r, common.ErrorUnauthorized)
				return
			}

			userID, err := GetUserIDFromToken(tok, secretKey)
			if err != nil {
				onError(w, r, err)
				return
			}

			ctx := WithUserID(r.Context(), userID)
			if dev := r.Header.Get(common.DeviceIDHeaderName); dev != "" {
				ctx = context.WithValue(ctx, deviceIDKey, dev)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
