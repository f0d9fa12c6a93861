package middleware

import (
	"net/http"
	"strings"

	"github.com/harishm17/study-buddy/internal/api/response"
	"golang.org/x/crypto/bcrypt"
)

// InternalAuth checks the shared bearer token that dispatchers present on
// job deliveries.
type InternalAuth struct {
	hash []byte
}

// NewInternalAuth returns an InternalAuth for a bcrypt hash of the token.
// An empty hash disables the check.
func NewInternalAuth(tokenHash string) *InternalAuth {
	return &InternalAuth{hash: []byte(tokenHash)}
}

// Enabled reports whether requests must carry the token.
func (a *InternalAuth) Enabled() bool {
	return a != nil && len(a.hash) > 0
}

// Authenticate rejects requests whose bearer token does not match the hash.
func (a *InternalAuth) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		token := extractBearerToken(r)
		if token == "" {
			response.Error(w, http.StatusUnauthorized,
				"INVALID_TOKEN", "Missing or invalid Authorization header", nil)
			return
		}

		if bcrypt.CompareHashAndPassword(a.hash, []byte(token)) != nil {
			response.Error(w, http.StatusUnauthorized,
				"INVALID_TOKEN", "Invalid internal token", nil)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
