package middleware

import (
	"net/http"
	"strconv"
	"strings"
)

// CORSOptions controls which browser origins may call the status server.
type CORSOptions struct {
	// Origins is the allowlist; "*" echoes any Origin back.
	Origins []string
	Methods []string
	Headers []string
	MaxAge  int
}

func (o CORSOptions) withDefaults() CORSOptions {
	if len(o.Methods) == 0 {
		o.Methods = []string{http.MethodGet, http.MethodPost, http.MethodOptions}
	}
	if len(o.Headers) == 0 {
		o.Headers = []string{"Authorization", "Content-Type", "X-Request-ID"}
	}
	if o.MaxAge <= 0 {
		o.MaxAge = 600
	}
	return o
}

// CORS answers preflights and tags responses for allowed origins. Requests
// without an Origin, or from unlisted ones, pass through untouched.
func CORS(opts CORSOptions) func(http.Handler) http.Handler {
	opts = opts.withDefaults()
	anyOrigin := false
	allowed := make(map[string]bool, len(opts.Origins))
	for _, origin := range opts.Origins {
		switch origin = strings.TrimRight(strings.TrimSpace(origin), "/"); origin {
		case "":
		case "*":
			anyOrigin = true
		default:
			allowed[origin] = true
		}
	}
	methods := strings.Join(opts.Methods, ", ")
	headers := strings.Join(opts.Headers, ", ")
	maxAge := strconv.Itoa(opts.MaxAge)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := strings.TrimSpace(r.Header.Get("Origin"))
			if origin == "" || !(anyOrigin || allowed[origin]) {
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Add("Vary", "Origin")
			h.Set("Access-Control-Expose-Headers", "X-Request-ID")

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				h.Set("Access-Control-Allow-Methods", methods)
				h.Set("Access-Control-Allow-Headers", headers)
				h.Set("Access-Control-Max-Age", maxAge)
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
