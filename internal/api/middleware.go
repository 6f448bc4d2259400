package api

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

type requestAttrsKey struct{}

// requestAttrs collects fields handlers add to the access log line.
type requestAttrs struct {
	mu    sync.Mutex
	attrs []any
}

// annotate adds key/value pairs to the access log line of the request
// carried by ctx. It does nothing outside requestLogger.
func annotate(ctx context.Context, kv ...any) {
	ra, ok := ctx.Value(requestAttrsKey{}).(*requestAttrs)
	if !ok {
		return
	}
	ra.mu.Lock()
	ra.attrs = append(ra.attrs, kv...)
	ra.mu.Unlock()
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ra := &requestAttrs{}
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(context.WithValue(r.Context(), requestAttrsKey{}, ra)))

		args := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		}
		ra.mu.Lock()
		args = append(args, ra.attrs...)
		ra.mu.Unlock()
		slog.Info("http request", args...)
	})
}
