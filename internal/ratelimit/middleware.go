package ratelimit

import (
	"encoding/json"
	"net/http"
)

// TooManyRequestsMessage is the body text returned on HTTP rejections.
const TooManyRequestsMessage = "Too many requests, please try again later"

// Middleware rejects HTTP requests over the limit with 429 and a JSON body.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow(r.Context(), ClientKey(r.RemoteAddr)) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"success": false,
				"error":   TooManyRequestsMessage,
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}
