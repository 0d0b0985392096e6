// Package auditlog appends tamper-evident rows to the audit_events table.
package auditlog

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

type Event struct {
	OccurredAt   time.Time
	Actor        string
	Action       string
	ResourceType string
	ResourceID   string
	RequestID    string
	IP           net.IP
	UserAgent    string
	Payload      any
}

type QueryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (e Event) Validate() error {
	required := []struct {
		name  string
		value string
	}{
		{"Actor", e.Actor},
		{"Action", e.Action},
		{"ResourceType", e.ResourceType},
		{"ResourceID", e.ResourceID},
	}
	if e.OccurredAt.IsZero() {
		return errors.New("OccurredAt is required")
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			return fmt.Errorf("%s is required", f.name)
		}
	}
	return nil
}

// row is the normalized form of an Event; the integrity hash is computed
// over exactly what gets inserted.
type row struct {
	OccurredAt   time.Time       `json:"occurred_at"`
	Actor        string          `json:"actor"`
	Action       string          `json:"action"`
	ResourceType string          `json:"resource_type"`
	ResourceID   string          `json:"resource_id"`
	RequestID    string          `json:"request_id,omitempty"`
	IP           string          `json:"ip,omitempty"`
	UserAgent    string          `json:"user_agent,omitempty"`
	Payload      json.RawMessage `json:"payload"`
}

func newRow(e Event, payloadJSON []byte) row {
	return row{
		OccurredAt:   e.OccurredAt.UTC(),
		Actor:        strings.TrimSpace(e.Actor),
		Action:       strings.TrimSpace(e.Action),
		ResourceType: strings.TrimSpace(e.ResourceType),
		ResourceID:   strings.TrimSpace(e.ResourceID),
		RequestID:    strings.TrimSpace(e.RequestID),
		IP:           ipString(e.IP),
		UserAgent:    strings.TrimSpace(e.UserAgent),
		Payload:      payloadJSON,
	}
}

func (r row) integrity() (string, error) {
	blob, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("marshal integrity: %w", err)
	}
	sum := sha256.Sum256(blob)
	return hex.EncodeToString(sum[:]), nil
}

const insertSQL = `INSERT INTO audit_events (
	occurred_at, actor, action, resource_type, resource_id,
	request_id, ip, user_agent, payload, integrity_sha256
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
RETURNING event_id`

func Insert(ctx context.Context, q QueryRower, event Event) (int64, error) {
	if q == nil {
		return 0, errors.New("queryer is required")
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	if err := event.Validate(); err != nil {
		return 0, err
	}

	payload := event.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("marshal payload: %w", err)
	}
	r := newRow(event, payloadJSON)
	sum, err := r.integrity()
	if err != nil {
		return 0, err
	}

	var id int64
	err = q.QueryRowContext(ctx, insertSQL,
		r.OccurredAt, r.Actor, r.Action, r.ResourceType, r.ResourceID,
		nullable(r.RequestID), nullable(r.IP), nullable(r.UserAgent),
		[]byte(r.Payload), sum,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert audit event: %w", err)
	}
	return id, nil
}

// ComputeIntegritySHA256 hashes the normalized event and its payload.
func ComputeIntegritySHA256(event Event, payloadJSON []byte) (string, error) {
	return newRow(event, payloadJSON).integrity()
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func ipString(ip net.IP) string {
	if len(ip) == 0 {
		return ""
	}
	return ip.String()
}

// remoteIP extracts the host part of a host:port remote address.
func remoteIP(addr string) net.IP {
	host, _, err := net.SplitHostPort(strings.TrimSpace(addr))
	if err != nil {
		return nil
	}
	return net.ParseIP(host)
}

func actorOrAnonymous(subject string) string {
	if s := strings.TrimSpace(subject); s != "" {
		return s
	}
	return "anonymous"
}
