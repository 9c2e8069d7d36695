package middleware

import (
	"net/http"
	"strings"
)

// Headers browser clients are allowed to send. The two signature headers
// carry the participant's personal-sign signature and the oracle's callback
// HMAC respectively.
const allowHeaders = "Content-Type, Authorization, X-API-Key, X-Veilcast-Signature, X-Oracle-Signature"

// CORS returns middleware answering cross-origin requests for the configured
// origins. An empty origin list permits every origin; preflight OPTIONS
// requests are terminated here and never reach the mux.
func CORS(origins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if origin := r.Header.Get("Origin"); origin != "" && originAllowed(origins, origin) {
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				h.Set("Access-Control-Allow-Headers", allowHeaders)
				h.Set("Access-Control-Max-Age", "86400")
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func originAllowed(origins []string, origin string) bool {
	if len(origins) == 0 {
		return true
	}
	for _, o := range origins {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}
