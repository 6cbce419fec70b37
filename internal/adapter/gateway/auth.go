package gateway

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"

	"lumen-agent/internal/domain"
)

// ClientInfo holds metadata about an authenticated gateway client.
type ClientInfo struct {
	Name string
}

// Authenticator validates incoming gateway connections.
type Authenticator interface {
	Authenticate(token string) (*ClientInfo, error)
}

// StaticTokenAuth authenticates clients against a static token list
// using constant-time comparison. An empty list admits everyone.
type StaticTokenAuth struct {
	tokens [][]byte
}

// NewStaticTokenAuth builds an authenticator from configured tokens.
func NewStaticTokenAuth(tokens []string) *StaticTokenAuth {
	a := &StaticTokenAuth{}
	for _, t := range tokens {
		if t = strings.TrimSpace(t); t != "" {
			a.tokens = append(a.tokens, []byte(t))
		}
	}
	return a
}

// Open reports whether no tokens are configured.
func (a *StaticTokenAuth) Open() bool { return len(a.tokens) == 0 }

// Authenticate returns client info if the token is valid.
func (a *StaticTokenAuth) Authenticate(token string) (*ClientInfo, error) {
	if a.Open() {
		return &ClientInfo{Name: "anonymous"}, nil
	}
	tb := []byte(token)
	for i, t := range a.tokens {
		if subtle.ConstantTimeCompare(tb, t) == 1 {
			return &ClientInfo{Name: fmt.Sprintf("token-%d", i+1)}, nil
		}
	}
	return nil, domain.ErrGatewayAuthFailed
}

// requestToken reads the token from the query string or a Bearer header.
func requestToken(r *http.Request) string {
	if t := r.URL.Query().Get("token"); t != "" {
		return t
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return ""
}

// requireAuth rejects HTTP requests without a valid token.
func requireAuth(auth Authenticator, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := auth.Authenticate(requestToken(r)); err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
