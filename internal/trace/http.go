// Package trace - HTTP middleware for trace extraction.
package trace

import "net/http"

// Middleware extracts or creates trace context for HTTP requests.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := WithContext(r.Context(), extractFromHeaders(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// extractFromHeaders gets trace context from HTTP headers; the caller's span
// becomes the parent.
func extractFromHeaders(r *http.Request) Context {
	tc := Context{
		TraceID:      r.Header.Get(TraceIDKey),
		ParentSpanID: r.Header.Get(SpanIDKey),
		SpanID:       randomHex(8),
	}
	if tc.TraceID == "" {
		tc.TraceID = randomHex(16)
	}
	return tc
}
