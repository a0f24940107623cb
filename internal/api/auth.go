package api

import (
	"context"
	"net/http"

	"clipstream/internal/models"
)

type contextKey string

const userContextKey contextKey = "authenticatedUser"

// ContextWithUser stores the authenticated user in the provided context.
func ContextWithUser(ctx context.Context, user models.User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// UserFromContext retrieves the authenticated user from context if present.
func UserFromContext(ctx context.Context) (models.User, bool) {
	user, ok := ctx.Value(userContextKey).(models.User)
	return user, ok
}

// AuthenticateRequest validates the access token on the request and returns
// the user. Token absence, verification failure, and a deleted account all
// produce the same error so callers cannot distinguish them.
func (h *Handler) AuthenticateRequest(r *http.Request) (models.User, error) {
	return h.Sessions.AuthenticateAccessToken(ExtractAccessToken(r))
}

// requireAuth wraps a handler with the request authenticator. Every failure
// is a single 401 envelope.
func (h *Handler) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := h.AuthenticateRequest(r)
		if err != nil {
			writeFailure(w, http.StatusUnauthorized, "unauthorized request")
			return
		}
		next(w, r.WithContext(ContextWithUser(r.Context(), user)))
	}
}

func (h *Handler) requireAuthenticatedUser(w http.ResponseWriter, r *http.Request) (models.User, bool) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		writeFailure(w, http.StatusUnauthorized, "unauthorized request")
		return models.User{}, false
	}
	return user, true
}
