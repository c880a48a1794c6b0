package middleware

import (
	"net/http"
	"strings"

	"sketchbook/internal/sketch/api"
)

const (
	corsAllowHeaders  = "Accept, Content-Type, Content-Length, Accept-Encoding, Authorization, Connect-Protocol-Version, Connect-Timeout-Ms, " + api.HeaderClientID
	corsExposeHeaders = "Connect-Content-Encoding, Connect-Accept-Encoding, " + api.HeaderErrorKind
)

// OriginAllowed reports whether an Origin header value is in allowed. An
// allowed list containing "*" admits every origin.
func OriginAllowed(allowed []string) func(origin string) bool {
	allowAll := false
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			allowAll = true
		}
		set[strings.TrimRight(o, "/")] = struct{}{}
	}
	return func(origin string) bool {
		if allowAll {
			return true
		}
		_, ok := set[strings.TrimRight(origin, "/")]
		return ok
	}
}

// CORS answers preflight requests and echoes allowed origins.
func CORS(allowed []string) func(http.Handler) http.Handler {
	isAllowed := OriginAllowed(allowed)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := strings.TrimSpace(r.Header.Get("Origin"))
			if origin != "" {
				if isAllowed(origin) {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Set("Access-Control-Allow-Credentials", "true")
				}
				w.Header().Add("Vary", "Origin")
			}
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", corsAllowHeaders)
			w.Header().Set("Access-Control-Expose-Headers", corsExposeHeaders)
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
