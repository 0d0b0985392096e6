package auditlog

import (
	"context"
	"strings"
	"time"
)

const (
	ActionResubmitSucceeded = "resubmit.succeeded"
	ActionResubmitFailed    = "resubmit.failed"

	ResourceTypeCapture = "capture"
)

// ReplayAttempt is one call of the resubmit endpoint, successful or not.
type ReplayAttempt struct {
	Time                time.Time
	Actor               string
	FunctionName        string
	CorrelationID       string
	ReplayCorrelationID string
	Kind                string
	Status              int
	Success             bool
	ErrorKind           string
	Message             string
	ResubmitCount       int
	RequestID           string
	RemoteAddr          string
	UserAgent           string
}

func (a ReplayAttempt) Event() Event {
	action := ActionResubmitFailed
	if a.Success {
		action = ActionResubmitSucceeded
	}

	payload := map[string]any{
		"function_name":  a.FunctionName,
		"correlation_id": a.CorrelationID,
		"status":         a.Status,
		"message":        a.Message,
	}
	if a.Kind != "" {
		payload["kind"] = a.Kind
	}
	if a.ErrorKind != "" && a.ErrorKind != "None" {
		payload["error_kind"] = a.ErrorKind
	}
	if a.ReplayCorrelationID != "" {
		payload["replay_correlation_id"] = a.ReplayCorrelationID
	}
	if a.ResubmitCount > 0 {
		payload["resubmit_count"] = a.ResubmitCount
	}

	return Event{
		OccurredAt:   a.Time,
		Actor:        actorOrAnonymous(a.Actor),
		Action:       action,
		ResourceType: ResourceTypeCapture,
		ResourceID:   strings.ToLower(strings.TrimSpace(a.FunctionName)) + "/" + strings.TrimSpace(a.CorrelationID),
		RequestID:    a.RequestID,
		IP:           remoteIP(a.RemoteAddr),
		UserAgent:    a.UserAgent,
		Payload:      payload,
	}
}

func InsertReplay(ctx context.Context, q QueryRower, attempt ReplayAttempt) (int64, error) {
	return Insert(ctx, q, attempt.Event())
}
