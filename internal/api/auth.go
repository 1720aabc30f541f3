package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"net/http"
	"strings"
)

// PlayerHeader carries the player id set by the upstream gateway after it
// has authenticated the client.
const PlayerHeader = "X-Player-ID"

// MatchmakerAuth guards session creation and teardown with a shared bearer
// key. An empty key disables the check.
type MatchmakerAuth struct {
	digest []byte
}

// NewMatchmakerAuth creates the guard for key.
func NewMatchmakerAuth(key string) *MatchmakerAuth {
	if key == "" {
		return &MatchmakerAuth{}
	}
	return &MatchmakerAuth{digest: keyDigest(key)}
}

// keyDigest hashes keys so comparison time does not depend on their length.
func keyDigest(key string) []byte {
	sum := sha256.Sum256([]byte(key))
	return sum[:]
}

// Enabled reports whether a key is configured.
func (a *MatchmakerAuth) Enabled() bool { return len(a.digest) > 0 }

// Middleware rejects requests without the matchmaker key.
func (a *MatchmakerAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Enabled() {
			next.ServeHTTP(w, r)
			return
		}
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || !hmac.Equal(keyDigest(token), a.digest) {
			RecordConnectionRejected("unauthorized")
			writeError(w, "matchmaker key required", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// PlayerID returns the gateway-supplied player id, falling back to the
// player query parameter for clients that cannot set headers on upgrade.
func PlayerID(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(PlayerHeader)); id != "" {
		return id
	}
	return strings.TrimSpace(r.URL.Query().Get("player"))
}
