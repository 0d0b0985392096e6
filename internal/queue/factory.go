package queue

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
)

// BuildFromDSN opens a queue backend:
//
//	redis://[:password@]host:port/db
//	rediss://...
//	memory://?capacity=N
func BuildFromDSN(dsn string) (Queue, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("%w: empty", ErrUnsupportedDSN)
	}
	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse queue dsn: %w", err)
	}
	switch strings.ToLower(parsed.Scheme) {
	case "redis", "rediss":
		opts, err := redis.ParseURL(dsn)
		if err != nil {
			return nil, fmt.Errorf("parse redis dsn: %w", err)
		}
		return NewRedisQueue(redis.NewClient(opts)), nil
	case "memory", "mem", "inmem":
		capacity := 0
		if raw := parsed.Query().Get("capacity"); raw != "" {
			capacity, err = strconv.Atoi(raw)
			if err != nil {
				return nil, fmt.Errorf("parse capacity: %w", err)
			}
		}
		return NewMemoryQueue(capacity), nil
	default:
		return nil, fmt.Errorf("%w: scheme %q", ErrUnsupportedDSN, parsed.Scheme)
	}
}

// Factory opens each DSN once and shares the backend between the host's
// consumers and replay producers.
type Factory struct {
	mu    sync.Mutex
	byDSN map[string]Queue
	Build func(dsn string) (Queue, error)
}

func NewFactory() *Factory {
	return &Factory{byDSN: make(map[string]Queue), Build: BuildFromDSN}
}

func (f *Factory) Get(dsn string) (Queue, error) {
	key := strings.TrimSpace(dsn)
	f.mu.Lock()
	defer f.mu.Unlock()
	if q, ok := f.byDSN[key]; ok {
		return q, nil
	}
	q, err := f.Build(key)
	if err != nil {
		return nil, err
	}
	f.byDSN[key] = q
	return q, nil
}

func (f *Factory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var firstErr error
	for dsn, q := range f.byDSN {
		if err := q.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close %s: %w", dsn, err)
		}
		delete(f.byDSN, dsn)
	}
	return firstErr
}
