package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/meridianbank/core/internal/models"
)

type contextKey string

const actorKey contextKey = "actor"

// authenticate resolves the bearer token into an actor identity and stores
// it on the request context.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			s.writeJSON(w, http.StatusUnauthorized, errorResponse{Code: "BAD_CREDENTIALS", Message: "missing bearer token"})
			return
		}
		actor, err := s.auth.ParseToken(token)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), actorKey, actor)))
	})
}

// requireRole gates a route to the listed roles.
func (s *Server) requireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor := actorFrom(r)
			for _, role := range roles {
				if actor.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			s.writeJSON(w, http.StatusForbidden, errorResponse{Code: "FORBIDDEN", Message: "insufficient role"})
		})
	}
}

func actorFrom(r *http.Request) models.Actor {
	actor, _ := r.Context().Value(actorKey).(models.Actor)
	return actor
}
