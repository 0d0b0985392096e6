// Package replay re-delivers captured payloads through the channel of their
// trigger kind.
package replay

import (
	"net/http"

	"github.com/animus-labs/rebit/internal/trigger"
)

// ErrorKind classifies replay outcomes. Successes, validation and
// configuration failures carry None; the HTTP status tells them apart.
type ErrorKind string

const (
	ErrorKindNone             ErrorKind = "None"
	ErrorKindNotFound         ErrorKind = "NotFound"
	ErrorKindTransportFailure ErrorKind = "TransportFailure"
	ErrorKindUnexpected       ErrorKind = "Unexpected"
)

type Request struct {
	FunctionName  string
	CorrelationID string
	Caller        Caller
}

// Caller identifies who asked for the replay, for the audit trail.
type Caller struct {
	Actor      string
	RequestID  string
	RemoteAddr string
	UserAgent  string
}

// Result is the outcome of one replay request. It is the response body of
// the resubmit endpoint, success or not.
type Result struct {
	IsSuccess           bool      `json:"isSuccess"`
	Message             string    `json:"message"`
	FunctionName        string    `json:"functionName,omitempty"`
	CorrelationID       string    `json:"correlationId,omitempty"`
	ReplayCorrelationID string    `json:"replayCorrelationId,omitempty"`
	ResubmitCount       int       `json:"resubmitCount,omitempty"`
	Target              string    `json:"target,omitempty"`
	ErrorKind           ErrorKind `json:"errorKind"`

	Status int          `json:"-"`
	Kind   trigger.Kind `json:"-"`
}

func (r Request) result(status int, kind ErrorKind, message string) Result {
	return Result{
		IsSuccess:     status == http.StatusOK,
		Message:       message,
		FunctionName:  r.FunctionName,
		CorrelationID: r.CorrelationID,
		ErrorKind:     kind,
		Status:        status,
	}
}
