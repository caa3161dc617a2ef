package httpx

import (
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"
)

// CORSPolicy controls which browser origins may query slots. Methods and headers
// default to what the public slots endpoint accepts.
type CORSPolicy struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	AllowCredentials bool
	MaxAge           time.Duration
}

var (
	defaultCORSMethods = []string{http.MethodGet, http.MethodOptions}
	defaultCORSHeaders = []string{"Content-Type", RequestIDHeader}
)

// WithCORS is a no-op when no origin is allowed.
func WithCORS(cfg CORSPolicy) Middleware {
	origins := normalizeList(cfg.AllowedOrigins)
	if len(origins) == 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	methods := normalizeList(cfg.AllowedMethods)
	if len(methods) == 0 {
		methods = defaultCORSMethods
	}
	headers := normalizeList(cfg.AllowedHeaders)
	if len(headers) == 0 {
		headers = defaultCORSHeaders
	}
	wildcard := slices.Contains(origins, "*")

	static := http.Header{}
	static.Set("Access-Control-Allow-Methods", strings.Join(methods, ", "))
	static.Set("Access-Control-Allow-Headers", strings.Join(headers, ", "))
	static.Set("Access-Control-Expose-Headers", RequestIDHeader)
	if cfg.AllowCredentials {
		static.Set("Access-Control-Allow-Credentials", "true")
	}
	if secs := int(cfg.MaxAge.Seconds()); secs > 0 {
		static.Set("Access-Control-Max-Age", strconv.Itoa(secs))
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			h := w.Header()
			h.Add("Vary", "Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}
			allow, ok := allowedOrigin(origin, origins, wildcard, cfg.AllowCredentials)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			h.Set("Access-Control-Allow-Origin", allow)
			for k, v := range static {
				h[k] = v
			}
			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func normalizeList(values []string) []string {
	var out []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// allowedOrigin echoes the origin back when credentials are allowed, since browsers
// reject "*" in that case.
func allowedOrigin(origin string, allowed []string, wildcard, credentials bool) (string, bool) {
	if wildcard {
		if credentials {
			return origin, true
		}
		return "*", true
	}
	for _, candidate := range allowed {
		if strings.EqualFold(candidate, origin) {
			return origin, true
		}
	}
	return "", false
}
