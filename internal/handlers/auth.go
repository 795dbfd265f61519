package handlers

import (
	"net/http"

	"github.com/abrezinsky/weeklyvote/internal/auth"
)

// handleLogin exchanges admin credentials for a session cookie
func (h *Handlers) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respondError(w, err)
		return
	}

	token, ok := h.Auth.Login(req.Username, req.Password)
	if !ok {
		h.Log.Warn("Admin login failed", "username", req.Username)
		h.respondError(w, &APIError{Status: http.StatusUnauthorized, Code: ErrCodeUnauthorized, Message: "Invalid username or password"})
		return
	}

	auth.SetSessionCookie(w, token)
	respondOK(w, map[string]string{"message": "Logged in"})
}

// handleLogout clears the session
func (h *Handlers) handleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(auth.CookieName); err == nil {
		h.Auth.Logout(cookie.Value)
	}

	auth.ClearSessionCookie(w)
	respondOK(w, map[string]string{"message": "Logged out"})
}
