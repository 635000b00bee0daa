package ws

import (
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"

	socketio "github.com/googollee/go-socket.io"

	"go_sitegen/internal/auth"
)

// extractToken extracts the JWT from the handshake.
// Priority: 1. token query parameter, 2. Authorization header
func extractToken(u *url.URL, header http.Header) string {
	if u != nil {
		if token := u.Query().Get("token"); token != "" {
			return token
		}
	}
	if token, ok := auth.BearerToken(header.Get("Authorization")); ok {
		return token
	}
	return ""
}

// WrapWithAuth rejects Socket.IO handshakes without a valid token
func WrapWithAuth(server http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Socket.IO handshake is a GET request to /socket.io/?EIO=4&transport=polling
		if r.Method == http.MethodGet && strings.Contains(r.URL.Path, "/socket.io/") {
			token := extractToken(r.URL, r.Header)
			if token == "" {
				log.Printf("[WebSocket] Handshake rejected: No token from %s", r.RemoteAddr)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			if _, err := auth.ParseToken(token); err != nil {
				log.Printf("[WebSocket] Handshake rejected: Invalid token from %s: %v", r.RemoteAddr, err)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
		}
		server.ServeHTTP(w, r)
	})
}

// claimsFromConn re-reads the handshake token of an accepted connection
func claimsFromConn(s socketio.Conn) (*auth.Claims, error) {
	u := s.URL()
	token := extractToken(&u, s.RemoteHeader())
	if token == "" {
		return nil, fmt.Errorf("no token on connection")
	}
	return auth.ParseToken(token)
}

// userFromConn returns the claims stored at connect time
func userFromConn(s socketio.Conn) (*auth.Claims, bool) {
	claims, ok := s.Context().(*auth.Claims)
	return claims, ok && claims != nil
}
