package httpx

import (
	"encoding/json"
	"net/http"
	"slices"
	"time"
)

type Middleware func(http.Handler) http.Handler

// Chain wraps h so that the first middleware sees the request first.
func Chain(h http.Handler, m ...Middleware) http.Handler {
	for _, mw := range slices.Backward(m) {
		if mw != nil {
			h = mw(h)
		}
	}
	return h
}

type errorBody struct {
	Error string `json:"error"`
}

// WriteError writes a JSON error body. Every error leaving the availability API
// has the same {"error": "..."} shape.
func WriteError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Error: msg})
}

func WithBodyLimit(limitBytes int64) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > limitBytes {
				WriteError(w, http.StatusRequestEntityTooLarge, "request body too large")
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, limitBytes)
			next.ServeHTTP(w, r)
		})
	}
}

// WithTimeout bounds the whole request. Handlers observe the deadline through the
// request context, which in turn cancels in-flight calendar fetches.
func WithTimeout(d time.Duration) Middleware {
	body, _ := json.Marshal(errorBody{Error: "request timed out"})
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, string(body))
	}
}
