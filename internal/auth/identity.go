package auth

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/abrezinsky/weeklyvote/internal/models"
)

// Headers set by the upstream identity provider
const (
	HeaderUserID           = "X-Auth-User-Id"
	HeaderEmail            = "X-Auth-Email"
	HeaderEmailVerified    = "X-Auth-Email-Verified"
	HeaderDisplayName      = "X-Auth-Display-Name"
	HeaderAccountCreatedAt = "X-Auth-Account-Created-At"
)

// IdentityFromRequest returns the caller asserted by the identity provider,
// or nil when the request is anonymous. A malformed creation time is
// treated as unknown.
func IdentityFromRequest(r *http.Request) *models.Identity {
	userID := strings.TrimSpace(r.Header.Get(HeaderUserID))
	if userID == "" {
		return nil
	}

	id := &models.Identity{
		UserID:      userID,
		Email:       strings.TrimSpace(r.Header.Get(HeaderEmail)),
		DisplayName: strings.TrimSpace(r.Header.Get(HeaderDisplayName)),
	}
	if verified, err := strconv.ParseBool(r.Header.Get(HeaderEmailVerified)); err == nil {
		id.EmailConfirmed = verified
	}
	if raw := r.Header.Get(HeaderAccountCreatedAt); raw != "" {
		if created, err := time.Parse(time.RFC3339, raw); err == nil {
			created = created.UTC()
			id.AccountCreatedAt = &created
		}
	}
	return id
}
