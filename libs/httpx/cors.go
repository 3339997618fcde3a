package httpx

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// CORSPolicy is the cross-origin policy applied by WithCORS.
type CORSPolicy struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	AllowCredentials bool
	MaxAge           time.Duration
}

// WithCORS answers preflights and stamps CORS headers for allowed origins.
// With no allowed origins configured it passes requests through untouched.
func WithCORS(policy CORSPolicy) Middleware {
	if len(policy.AllowedOrigins) == 0 {
		return func(next http.Handler) http.Handler { return next }
	}

	origins := map[string]bool{}
	wildcard := false
	for _, o := range policy.AllowedOrigins {
		o = strings.TrimSpace(o)
		if o == "*" {
			wildcard = true
		} else if o != "" {
			origins[strings.ToLower(o)] = true
		}
	}
	methods := strings.Join(trimAll(policy.AllowedMethods), ", ")
	headers := strings.Join(trimAll(policy.AllowedHeaders), ", ")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			allowed := origin != "" && (wildcard || origins[strings.ToLower(origin)])
			if !allowed {
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			if wildcard && !policy.AllowCredentials {
				h.Set("Access-Control-Allow-Origin", "*")
			} else {
				h.Set("Access-Control-Allow-Origin", origin)
			}
			if policy.AllowCredentials {
				h.Set("Access-Control-Allow-Credentials", "true")
			}
			if methods != "" {
				h.Set("Access-Control-Allow-Methods", methods)
			}
			if headers != "" {
				h.Set("Access-Control-Allow-Headers", headers)
			}
			if secs := int(policy.MaxAge.Seconds()); secs > 0 {
				h.Set("Access-Control-Max-Age", strconv.Itoa(secs))
			}
			h.Add("Vary", "Origin")

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
