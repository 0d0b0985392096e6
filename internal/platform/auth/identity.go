package auth

import (
	"context"
	"strings"
)

type Identity struct {
	Subject string
	Email   string
	Roles   []string
}

// Actor names the identity in replay audit rows: email when the provider
// sent one, subject otherwise.
func (i Identity) Actor() string {
	if email := strings.TrimSpace(i.Email); email != "" {
		return email
	}
	return strings.TrimSpace(i.Subject)
}

// CanResubmit reports whether the identity may trigger replays.
func (i Identity) CanResubmit() bool {
	return HasAtLeast(i.Roles, RoleOperator)
}

type ctxKeyIdentity struct{}

func ContextWithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, ctxKeyIdentity{}, identity)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	v, ok := ctx.Value(ctxKeyIdentity{}).(Identity)
	return v, ok
}
