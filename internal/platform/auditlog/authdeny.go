package auditlog

import (
	"context"
	"strings"

	"github.com/animus-labs/rebit/internal/platform/auth"
)

const ResourceTypeHTTP = "http"

// InsertAuthDeny records a request the auth middleware turned away.
func InsertAuthDeny(ctx context.Context, q QueryRower, service string, event auth.DenyEvent) error {
	_, err := Insert(ctx, q, Event{
		OccurredAt:   event.Time,
		Actor:        actorOrAnonymous(event.Subject),
		Action:       "auth." + strings.TrimSpace(event.Reason),
		ResourceType: ResourceTypeHTTP,
		ResourceID:   event.Method + " " + event.Path,
		RequestID:    event.RequestID,
		IP:           remoteIP(event.RemoteAddr),
		UserAgent:    event.UserAgent,
		Payload: map[string]any{
			"service": service,
			"status":  event.Status,
			"reason":  event.Reason,
			"error":   event.Error,
			"subject": event.Subject,
			"roles":   event.Roles,
		},
	})
	return err
}
