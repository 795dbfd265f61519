package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/abrezinsky/weeklyvote/internal/models"
)

const (
	CookieName    = "weeklyvote_session"
	SessionExpiry = 24 * time.Hour
)

// Words for generated admin passwords
var passwordWords = []string{
	"chorus", "verse", "bridge", "tempo", "treble",
	"bass", "reverb", "vinyl", "encore", "riff",
	"melody", "harmony", "octave", "groove", "synth",
	"snare", "cadence", "remix", "stereo",
}

type session struct {
	username string
	expiry   time.Time
}

// Auth handles operator sessions for the admin API
type Auth struct {
	username string
	password string
	sessions map[string]session
	mu       sync.RWMutex
}

// New creates a new Auth instance for a single admin account
func New(username, password string) *Auth {
	return &Auth{
		username: username,
		password: password,
		sessions: make(map[string]session),
	}
}

// GeneratePassword creates a random 3-word password
func GeneratePassword() string {
	words := make([]string, 3)
	for i := range words {
		words[i] = passwordWords[randomInt(len(passwordWords))]
	}
	return strings.Join(words, "-")
}

// Login validates the credentials and returns a session token if valid
func (a *Auth) Login(username, password string) (string, bool) {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(a.username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(a.password)) == 1
	if !userOK || !passOK || a.password == "" {
		return "", false
	}

	token := generateToken()
	a.mu.Lock()
	a.sessions[token] = session{username: username, expiry: time.Now().Add(SessionExpiry)}
	a.mu.Unlock()

	return token, true
}

// Logout invalidates a session token
func (a *Auth) Logout(token string) {
	a.mu.Lock()
	delete(a.sessions, token)
	a.mu.Unlock()
}

// ValidateSession returns the session's username if the token is valid
func (a *Auth) ValidateSession(token string) (string, bool) {
	a.mu.RLock()
	s, exists := a.sessions[token]
	a.mu.RUnlock()

	if !exists {
		return "", false
	}

	if time.Now().After(s.expiry) {
		a.mu.Lock()
		delete(a.sessions, token)
		a.mu.Unlock()
		return "", false
	}

	return s.username, true
}

// ActorFromRequest resolves the operator behind a request. Requests without
// a valid session get a non-admin actor.
func (a *Auth) ActorFromRequest(r *http.Request) models.Actor {
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return models.Actor{}
	}
	username, ok := a.ValidateSession(cookie.Value)
	if !ok {
		return models.Actor{}
	}
	return models.Actor{ID: username, IsAdmin: true}
}

// RequireAuthAPI middleware for API endpoints (returns 401)
func (a *Auth) RequireAuthAPI(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.ActorFromRequest(r).IsAdmin {
			next.ServeHTTP(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"code":"UNAUTHORIZED","error":"Unauthorized - please log in"}`))
	})
}

// SetSessionCookie sets the session cookie on the response
func SetSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(SessionExpiry.Seconds()),
	})
}

// ClearSessionCookie removes the session cookie
func ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
}

// generateToken creates a random session token
func generateToken() string {
	bytes := make([]byte, 32)
	rand.Read(bytes)
	return hex.EncodeToString(bytes)
}

// randomInt returns a random int in [0, max)
func randomInt(max int) int {
	bytes := make([]byte, 1)
	rand.Read(bytes)
	return int(bytes[0]) % max
}
