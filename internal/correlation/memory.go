package correlation

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"
)

// MemoryStore keeps records in process. Every operation holds the lock for
// its full duration, so UpdateTags is atomic here.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]Record),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) Save(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := rec.Validate(); err != nil {
		return err
	}
	stored := rec.Clone()
	stored.LastModified = s.now()
	if stored.ContentType == "" {
		stored.ContentType = "application/octet-stream"
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.Location.Key()] = stored
	return nil
}

func (s *MemoryStore) FindByCorrelationID(ctx context.Context, functionName string, correlationID string) (Location, error) {
	if err := ctx.Err(); err != nil {
		return Location{}, err
	}
	correlationID = strings.TrimSpace(correlationID)
	prefix := ""
	if strings.TrimSpace(functionName) != "" {
		prefix = Prefix(functionName)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range slices.Sorted(maps.Keys(s.records)) {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		if s.records[key].Tags[TagCorrelationID] != correlationID {
			continue
		}
		return ParseKey(key)
	}
	return Location{}, fmt.Errorf("%w: %s/%s", ErrNotFound, strings.ToLower(functionName), correlationID)
}

func (s *MemoryStore) Read(ctx context.Context, loc Location) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[loc.Key()]
	if !ok {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, loc.Key())
	}
	return rec.Clone(), nil
}

func (s *MemoryStore) Delete(ctx context.Context, loc Location) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[loc.Key()]; !ok {
		return false, nil
	}
	delete(s.records, loc.Key())
	return true, nil
}

func (s *MemoryStore) UpdateTags(ctx context.Context, loc Location, update TagUpdate) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[loc.Key()]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, loc.Key())
	}
	next, err := update(maps.Clone(rec.Tags))
	if err != nil {
		return nil, err
	}
	rec.Tags = maps.Clone(next)
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	s.records[loc.Key()] = rec
	return maps.Clone(next), nil
}

func (s *MemoryStore) List(ctx context.Context, functionName string) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prefix := ""
	if strings.TrimSpace(functionName) != "" {
		prefix = Prefix(functionName)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, 0, len(s.records))
	for _, key := range slices.Sorted(maps.Keys(s.records)) {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		rec := s.records[key]
		out = append(out, Entry{
			Location:     rec.Location,
			Size:         int64(len(rec.Bytes)),
			LastModified: rec.LastModified,
		})
	}
	return out, nil
}
