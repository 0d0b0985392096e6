// Package correlation persists captured invocation payloads and finds them
// again by the correlation id tag they carry.
package correlation

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"
)

var (
	ErrNotFound         = errors.New("captured record not found")
	ErrTagLimitExceeded = errors.New("tag limit exceeded")
	ErrTagMismatch      = errors.New("correlation tag does not match location")
	ErrInvalidLocation  = errors.New("invalid record location")
	ErrInvalidTag       = errors.New("invalid tag")
)

// Location addresses one record: <lower(function)>/<correlationId>.
type Location struct {
	FunctionName  string
	CorrelationID string
}

func (l Location) Validate() error {
	fn := strings.TrimSpace(l.FunctionName)
	id := strings.TrimSpace(l.CorrelationID)
	if fn == "" {
		return fmt.Errorf("%w: function name is required", ErrInvalidLocation)
	}
	if id == "" {
		return fmt.Errorf("%w: correlation id is required", ErrInvalidLocation)
	}
	if strings.Contains(fn, "/") || strings.Contains(id, "/") {
		return fmt.Errorf("%w: %q/%q contains a path separator", ErrInvalidLocation, fn, id)
	}
	if id == "." || id == ".." {
		return fmt.Errorf("%w: correlation id %q", ErrInvalidLocation, id)
	}
	return nil
}

func (l Location) Key() string {
	return Prefix(l.FunctionName) + strings.TrimSpace(l.CorrelationID)
}

func (l Location) String() string {
	return l.Key()
}

// Prefix is the key prefix grouping every record of a function.
func Prefix(functionName string) string {
	return strings.ToLower(strings.TrimSpace(functionName)) + "/"
}

// ParseKey reverses Location.Key. The function name comes back lower-cased.
func ParseKey(key string) (Location, error) {
	fn, id, ok := strings.Cut(key, "/")
	if !ok {
		return Location{}, fmt.Errorf("%w: key %q", ErrInvalidLocation, key)
	}
	loc := Location{FunctionName: fn, CorrelationID: id}
	if err := loc.Validate(); err != nil {
		return Location{}, err
	}
	return loc, nil
}

// Metadata keys stored next to the payload. They do not count against the
// tag limit.
const (
	MetaKind       = "kind"
	MetaSourceKey  = "source"
	MetaCapturedAt = "captured-at"
)

type Record struct {
	Location     Location
	Bytes        []byte
	ContentType  string
	Tags         map[string]string
	Metadata     map[string]string
	LastModified time.Time
}

func (r Record) Clone() Record {
	out := r
	out.Bytes = append([]byte(nil), r.Bytes...)
	out.Tags = maps.Clone(r.Tags)
	out.Metadata = maps.Clone(r.Metadata)
	return out
}

// Validate checks the invariants every stored record holds: a well formed
// location, a tag set within capacity, and a correlation tag equal to the
// location's id.
func (r Record) Validate() error {
	if err := r.Location.Validate(); err != nil {
		return err
	}
	if err := ValidateTags(r.Tags); err != nil {
		return err
	}
	if got := r.Tags[TagCorrelationID]; got != strings.TrimSpace(r.Location.CorrelationID) {
		return fmt.Errorf("%w: tag=%q location=%q", ErrTagMismatch, got, r.Location.CorrelationID)
	}
	return nil
}

// Entry is a listing row used by retention and operator tooling.
type Entry struct {
	Location     Location
	Size         int64
	LastModified time.Time
}

// TagUpdate receives a copy of the stored tags and returns the new set.
type TagUpdate func(tags map[string]string) (map[string]string, error)

type Store interface {
	// Save writes the record, replacing any previous record at the same
	// location. Records failing Validate are rejected before any write.
	Save(ctx context.Context, rec Record) error
	// FindByCorrelationID scans the function's records for the correlation
	// tag. An empty function name scans every function.
	FindByCorrelationID(ctx context.Context, functionName string, correlationID string) (Location, error)
	Read(ctx context.Context, loc Location) (Record, error)
	Delete(ctx context.Context, loc Location) (bool, error)
	// UpdateTags is a read-modify-write of the tag set. Stores are not
	// required to make it atomic.
	UpdateTags(ctx context.Context, loc Location, update TagUpdate) (map[string]string, error)
	List(ctx context.Context, functionName string) ([]Entry, error)
}
