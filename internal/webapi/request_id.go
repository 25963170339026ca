package webapi

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

const requestIDHeader = "x-request-id"

type requestIDKey struct{}

// RequestIDMiddleware tags every request with an id, minting one when
// the caller did not supply the header. The id is echoed back on the
// response so clients can correlate their logs with ours.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}

		ctx := context.WithValue(r.Context(), requestIDKey{}, id)
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID returns the id assigned to the request, or "" when the
// middleware did not run.
func GetRequestID(r *http.Request) string {
	if r == nil {
		return ""
	}
	id, _ := r.Context().Value(requestIDKey{}).(string)
	return id
}
