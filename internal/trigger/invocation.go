package trigger

import (
	"context"
	"net/http"
	"time"

	"github.com/animus-labs/rebit/internal/correlation"
)

// Invocation is one call of a function as seen before its handler runs.
// Exactly one of Request, Object, Message or Tick is set, matching the
// function's trigger kind.
type Invocation struct {
	ID           string
	FunctionName string
	// Bindings overrides the catalog bindings when the host knows them.
	Bindings []Binding

	Request *http.Request
	Object  *ObjectEvent
	Message *Message
	Tick    *Tick
}

type ObjectEvent struct {
	Container string `json:"container"`
	Key       string `json:"key"`
	Size      int64  `json:"size"`
	ETag      string `json:"etag,omitempty"`
}

type Message struct {
	ID         string            `json:"id"`
	Queue      string            `json:"queue"`
	Body       []byte            `json:"body"`
	Attributes map[string]string `json:"attributes,omitempty"`
	EnqueuedAt time.Time         `json:"enqueuedAt"`
}

type Tick struct {
	Schedule    string    `json:"schedule"`
	ScheduledAt time.Time `json:"scheduledAt"`
	PastDue     bool      `json:"pastDue"`
}

// Payload is what a capture strategy extracted from an invocation.
type Payload struct {
	Bytes       []byte
	ContentType string
	// Tags already attached to the source, merged into the stored tag set.
	Tags     map[string]string
	Metadata map[string]string
	// CorrelationID overrides the invocation id when the caller supplied one.
	CorrelationID string
	// ResubmitOf is set when the invocation is itself a replay of the named
	// correlation id.
	ResubmitOf string
}

type CaptureStrategy interface {
	Capture(ctx context.Context, fn Function, inv Invocation) (Payload, error)
}

// ReplayInput is handed to a replay strategy after the record is fetched
// and its tags cleaned.
type ReplayInput struct {
	Original correlation.Record
	// Tags is the cleaned copy: no correlation tag, counter bumped.
	Tags          map[string]string
	CorrelationID string
	ResubmitCount int
}

type Delivery struct {
	// Target names where the payload went, e.g. "inbox/cats.json".
	Target string
	Status int
}

type ReplayStrategy interface {
	Replay(ctx context.Context, fn Function, in ReplayInput) (Delivery, error)
}
