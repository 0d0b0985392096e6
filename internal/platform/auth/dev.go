package auth

import (
	"context"
	"net/http"
	"strings"
)

type Authenticator interface {
	Authenticate(ctx context.Context, r *http.Request) (Identity, error)
}

// DevActorHeader lets local callers such as rebitctl name themselves in the
// replay audit log while AUTH_MODE=dev.
const DevActorHeader = "X-Rebit-Actor"

// DevAuthenticator accepts every request with the configured roles. The
// subject comes from DevActorHeader when present.
type DevAuthenticator struct {
	identity Identity
}

func NewDevAuthenticator(cfg Config) *DevAuthenticator {
	return &DevAuthenticator{
		identity: Identity{
			Subject: cfg.DevSubject,
			Email:   cfg.DevEmail,
			Roles:   cfg.DevRoles,
		},
	}
}

func (a *DevAuthenticator) Authenticate(ctx context.Context, r *http.Request) (Identity, error) {
	identity := a.identity
	if actor := strings.TrimSpace(r.Header.Get(DevActorHeader)); actor != "" {
		identity.Subject = actor
		identity.Email = ""
	}
	return identity, nil
}
