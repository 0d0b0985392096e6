// Package queue moves messages between producers and queue-triggered
// functions.
package queue

import (
	"context"
	"errors"
	"maps"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrClosed          = errors.New("queue closed")
	ErrInvalidQueue    = errors.New("queue name is required")
	ErrUnsupportedDSN  = errors.New("unsupported queue dsn")
	ErrMalformedRecord = errors.New("malformed queue message")
)

// Attribute keys carried on messages.
const (
	AttrCorrelationID = "correlationId"
	AttrResubmitCount = "resubmitCount"
	AttrResubmitOf    = "resubmitOf"
)

type Message struct {
	ID         string            `json:"id"`
	Body       []byte            `json:"body"`
	Attributes map[string]string `json:"attributes,omitempty"`
	EnqueuedAt time.Time         `json:"enqueuedAt"`
}

// NewMessage stamps a fresh id and enqueue time.
func NewMessage(body []byte, attrs map[string]string) Message {
	return Message{
		ID:         uuid.NewString(),
		Body:       append([]byte(nil), body...),
		Attributes: maps.Clone(attrs),
		EnqueuedAt: time.Now().UTC(),
	}
}

type Queue interface {
	Enqueue(ctx context.Context, queue string, msg Message) error
	// Dequeue waits up to wait for a message. ok is false on timeout.
	Dequeue(ctx context.Context, queue string, wait time.Duration) (msg Message, ok bool, err error)
	Close() error
}

func validName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrInvalidQueue
	}
	return name, nil
}
