package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/crypto/bcrypt"

	"github.com/foldershare/folderd/internal/components/api"
	"github.com/foldershare/folderd/internal/store"
)

type contextKey string

// userContextKey is the context key for the authenticated user ID.
const userContextKey contextKey = "user"

// errUnauthenticated is returned by currentUser when the request carries
// no authenticated user.
var errUnauthenticated = errors.New("unauthenticated")

// loggingMiddleware logs request information using slog.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			s.logger.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", middleware.GetReqID(r.Context()),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}

// authMiddleware authenticates requests with HTTP basic credentials
// against the user store and puts the resolved user ID on the context.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		email, password, ok := r.BasicAuth()
		if !ok {
			w.Header().Set("WWW-Authenticate", `Basic realm="folderd"`)
			api.WriteUnauthorized(w, api.ReasonUnauthenticated, "authentication required")
			return
		}

		user, err := s.deps.Store.GetUserByEmail(r.Context(), email)
		if errors.Is(err, store.ErrNotFound) {
			api.WriteUnauthorized(w, api.ReasonInvalidCredentials, "invalid credentials")
			return
		}
		if err != nil {
			s.logger.Error("failed to resolve account", "error", err)
			api.WriteInternalError(w, "authentication failed")
			return
		}
		if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
			api.WriteUnauthorized(w, api.ReasonInvalidCredentials, "invalid credentials")
			return
		}

		ctx := context.WithValue(r.Context(), userContextKey, user.ID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// currentUser resolves the authenticated user ID placed on the context
// by authMiddleware.
func (s *Server) currentUser(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userContextKey).(string)
	if !ok || userID == "" {
		return "", errUnauthenticated
	}
	return userID, nil
}
