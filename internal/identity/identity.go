// Package identity resolves the signed-in user from the API bearer token.
package identity

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNoToken is returned when there is nothing to resolve an identity from.
var ErrNoToken = errors.New("identity: no token")

// Identity is the authenticated caller.
type Identity struct {
	UserID    string
	Role      string
	ExpiresAt time.Time
}

// IsAdmin reports whether the caller may use admin endpoints.
func (i Identity) IsAdmin() bool {
	switch strings.ToLower(i.Role) {
	case "admin", "super_admin", "superadmin":
		return true
	}
	return false
}

// Expired reports whether the token carried an expiry that has passed.
func (i Identity) Expired(now time.Time) bool {
	return !i.ExpiresAt.IsZero() && now.After(i.ExpiresAt)
}

// FromToken reads the identity claims from a JWT. The signature is not
// checked here; the backend verifies every request.
func FromToken(token string) (Identity, error) {
	token = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(token), "Bearer "))
	if token == "" {
		return Identity{}, ErrNoToken
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return Identity{}, fmt.Errorf("identity: parse token: %w", err)
	}

	id := Identity{Role: claimString(claims, "role")}
	for _, key := range []string{"user_id", "sub", "id"} {
		if v := claimString(claims, key); v != "" {
			id.UserID = v
			break
		}
	}
	if id.UserID == "" {
		return Identity{}, fmt.Errorf("identity: token has no user id claim")
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		id.ExpiresAt = exp.Time
	}
	return id, nil
}

func claimString(claims jwt.MapClaims, key string) string {
	switch v := claims[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return fmt.Sprintf("%.0f", v)
	case int64:
		return fmt.Sprintf("%d", v)
	}
	return ""
}

// Resolver holds the current identity once it is known. Booking checks that
// need a user must treat an unresolved identity as "not yet".
type Resolver struct {
	mu      sync.RWMutex
	current Identity
	ok      bool
}

// NewResolver builds a resolver from a token and an optional explicit user
// ID override. Neither being usable leaves the resolver unresolved.
func NewResolver(token, userIDOverride string) *Resolver {
	r := &Resolver{}
	if id, err := FromToken(token); err == nil {
		r.Set(id)
	}
	if override := strings.TrimSpace(userIDOverride); override != "" {
		r.mu.Lock()
		r.current.UserID = override
		r.ok = true
		r.mu.Unlock()
	}
	return r
}

// Set records a resolved identity.
func (r *Resolver) Set(id Identity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.current = id
	r.ok = id.UserID != ""
}

// Clear forgets the identity (sign-out).
func (r *Resolver) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.current = Identity{}
	r.ok = false
}

// Current returns the identity and whether it has been resolved.
func (r *Resolver) Current() (Identity, bool) {
	if r == nil {
		return Identity{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current, r.ok
}
