package auth

import (
	"context"
	"net/http"
)

// ContextKey is the key type for context values set by the middleware.
type ContextKey string

// ReaderContextKey holds the *ReaderContext of the authenticated request.
const ReaderContextKey ContextKey = "reader"

// HTTPMiddleware enforces bearer auth when a signing key is configured.
// Without one it passes requests through with an anonymous identity.
func (j *JWTManager) HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !j.Enabled() {
			ctx := context.WithValue(r.Context(), ReaderContextKey, &ReaderContext{Role: RoleReader})
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		header := r.Header.Get("Authorization")
		if header == "" {
			// The browser WebSocket API cannot set headers; allow a query
			// token on stream endpoints only.
			if q := r.URL.Query().Get("token"); q != "" {
				header = "Bearer " + q
			}
		}
		token, err := ExtractBearerToken(header)
		if err != nil {
			http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
			return
		}
		reader, err := j.Validate(token)
		if err != nil {
			http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
			return
		}
		ctx := context.WithValue(r.Context(), ReaderContextKey, reader)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ReaderFromContext returns the identity set by the middleware.
func ReaderFromContext(ctx context.Context) (*ReaderContext, bool) {
	rc, ok := ctx.Value(ReaderContextKey).(*ReaderContext)
	return rc, ok
}
