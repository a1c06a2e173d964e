// Package auth guards the envelope endpoint with a shared bearer key.
package auth

import (
	"crypto/subtle"
	"net"
	"net/http"
	"strings"
)

const bearerPrefix = "Bearer "

// ValidateKey compares provided against expected in constant time. An
// empty expected key never matches.
func ValidateKey(provided, expected string) bool {
	if expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) == 1
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, bearerPrefix) {
		return "", false
	}
	return strings.TrimPrefix(h, bearerPrefix), true
}

// SetBearer adds key to an outbound request. An empty key is a no-op.
func SetBearer(r *http.Request, key string) {
	if key != "" {
		r.Header.Set("Authorization", bearerPrefix+key)
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
