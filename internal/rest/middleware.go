package rest

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/Icerzack/wordlobby/internal/auth"
	"github.com/Icerzack/wordlobby/internal/rest/ws"
)

type contextKey struct{}

var userIDKey = contextKey{}

// bearerAuth verifies the bearer token and stores its user id in the request context.
func (rest *Rest) bearerAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := ws.ParseBearer(r.Header.Get("Authorization"))
		if !ok {
			rest.writeError(w, fmt.Errorf("missing bearer token: %w", auth.ErrUnauthenticated))
			return
		}
		userID, err := rest.tokens.Verify(token)
		if err != nil {
			rest.config.Logger.Debug("Failed to validate token", zap.Error(err))
			rest.writeError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userIDKey, userID)))
	})
}

func userFromContext(ctx context.Context) string {
	userID, _ := ctx.Value(userIDKey).(string)
	return userID
}

func (rest *Rest) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		rest.config.Logger.Debug("Request served",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	})
}
