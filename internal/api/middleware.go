// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	xglog "github.com/nicolasdesilles/aes67-nmos-node/internal/log"
)

// requestLogger logs one structured line per request with method, path,
// status, and duration.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		ctx := xglog.ContextWithRequestID(r.Context(), chimw.GetReqID(r.Context()))
		next.ServeHTTP(ww, r.WithContext(ctx))

		logger := xglog.FromContext(ctx)
		logger.Debug().
			Str(xglog.FieldComponent, "http").
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}
