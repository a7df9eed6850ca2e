package handlers

import (
	"net/http"
	"strings"

	"github.com/sketchdash/sketchdash/internal/auth"
)

// EnsureEphemeralUser resolves the requester's guest identity from the
// auth_token cookie, minting a fresh one when the cookie is missing or its
// token no longer verifies. The display name for a fresh guest comes from the
// "name" query parameter when present.
func EnsureEphemeralUser(w http.ResponseWriter, r *http.Request) (auth.Guest, error) {
	cookieHeader := r.Header.Get("Cookie")
	if strings.Contains(cookieHeader, "auth_token=") {
		token := extractCookieToken(cookieHeader, "auth_token")
		if guest, err := auth.AuthenticateJWT(token); err == nil {
			return guest, nil
		}
		// Fall through and mint a replacement for the stale token.
	}

	guest := auth.NewGuest(strings.TrimSpace(r.URL.Query().Get("name")))
	token, err := auth.CreateJWT(guest)
	if err != nil {
		return auth.Guest{}, err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     "auth_token",
		Value:    token,
		HttpOnly: true,
		Path:     "/",
	})
	return guest, nil
}

// extractCookieToken extracts a named cookie value from the Cookie header, or
// returns empty if not found.
func extractCookieToken(cookieHeader, cookieName string) string {
	parts := strings.Split(cookieHeader, cookieName+"=")
	if len(parts) < 2 {
		return ""
	}
	token := parts[1]
	if idx := strings.Index(token, ";"); idx != -1 {
		token = token[:idx]
	}
	return token
}
