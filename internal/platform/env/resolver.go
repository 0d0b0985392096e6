package env

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

var ErrConnectionNotFound = errors.New("connection not found")

// Resolver looks up connection strings and credentials by logical name.
// Components receive one at construction time instead of reading the
// process environment.
type Resolver interface {
	Lookup(name string) (string, bool)
}

// ConnPrefix is prepended to the upper-cased logical name by EnvResolver.
const ConnPrefix = "REBIT_CONN_"

// EnvResolver resolves "queues" to REBIT_CONN_QUEUES and "public-url" to
// REBIT_CONN_PUBLIC_URL.
type EnvResolver struct {
	Prefix string
}

func (r EnvResolver) Lookup(name string) (string, bool) {
	key := r.key(name)
	if key == "" {
		return "", false
	}
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func (r EnvResolver) key(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	prefix := r.Prefix
	if prefix == "" {
		prefix = ConnPrefix
	}
	normalized := strings.Map(func(c rune) rune {
		switch {
		case c >= 'a' && c <= 'z':
			return c - 'a' + 'A'
		case c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			return c
		default:
			return '_'
		}
	}, name)
	return prefix + normalized
}

// MapResolver is a fixed name to value table. Lookups are case-insensitive.
type MapResolver map[string]string

func (m MapResolver) Lookup(name string) (string, bool) {
	want := strings.ToLower(strings.TrimSpace(name))
	for k, v := range m {
		if strings.ToLower(strings.TrimSpace(k)) == want {
			return v, true
		}
	}
	return "", false
}

// Require returns the resolved value or an error naming the missing connection.
func Require(r Resolver, name string) (string, error) {
	if r == nil {
		return "", fmt.Errorf("%w: %q (no resolver)", ErrConnectionNotFound, name)
	}
	v, ok := r.Lookup(name)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrConnectionNotFound, name)
	}
	return v, nil
}

// Chain asks each resolver in order and returns the first hit.
type Chain []Resolver

func (c Chain) Lookup(name string) (string, bool) {
	for _, r := range c {
		if r == nil {
			continue
		}
		if v, ok := r.Lookup(name); ok {
			return v, true
		}
	}
	return "", false
}
