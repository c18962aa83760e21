package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/DoyleJ11/fightcard-backend/internal/hub"
)

type ctxKey int

const ctxKeyEntry ctxKey = iota

// cardMiddleware resolves {slug}, or the default card on the unprefixed
// routes, and stores the entry on the request context.
func (a *API) cardMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		slug := chi.URLParam(r, "slug")
		if slug == "" {
			slug = a.cfg.DefaultCard
		}
		entry, err := a.hub.Get(r.Context(), slug)
		if err != nil {
			writeError(w, "", err)
			return
		}
		ctx := context.WithValue(r.Context(), ctxKeyEntry, entry)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func entryFrom(r *http.Request) *hub.Entry {
	return r.Context().Value(ctxKeyEntry).(*hub.Entry)
}

func (a *API) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.isAdmin(tokenFrom(r)) {
			writeError(w, "", ErrUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("elapsed", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			}
			if ww.Status() >= http.StatusInternalServerError {
				log.Warn("request failed", fields...)
				return
			}
			log.Debug("request", fields...)
		})
	}
}
