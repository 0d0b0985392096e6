package trigger

import (
	"log/slog"
	"maps"
	"strings"
)

// Direction values for Binding. Only input bindings decide the kind.
const (
	DirectionIn  = "in"
	DirectionOut = "out"
)

// Binding is the raw trigger descriptor of one function binding as declared
// in the manifest.
type Binding struct {
	Type       string   `json:"type" yaml:"type"`
	Direction  string   `json:"direction,omitempty" yaml:"direction,omitempty"`
	Path       string   `json:"path,omitempty" yaml:"path,omitempty"`
	Route      string   `json:"route,omitempty" yaml:"route,omitempty"`
	Methods    []string `json:"methods,omitempty" yaml:"methods,omitempty"`
	Queue      string   `json:"queue,omitempty" yaml:"queue,omitempty"`
	Connection string   `json:"connection,omitempty" yaml:"connection,omitempty"`
	Schedule   string   `json:"schedule,omitempty" yaml:"schedule,omitempty"`
}

func (b Binding) IsInput() bool {
	d := strings.ToLower(strings.TrimSpace(b.Direction))
	return d == "" || d == DirectionIn
}

// Function is the descriptor of one registered handler. Values are built
// during discovery and never change afterwards.
type Function struct {
	Name     string
	Kind     Kind
	Metadata map[string]string
	Bindings []Binding
	// Target is the handler endpoint the host dispatches invocations to.
	Target string
}

func (f Function) Meta(key string) string {
	return f.Metadata[key]
}

func (f Function) clone() Function {
	out := f
	out.Metadata = maps.Clone(f.Metadata)
	out.Bindings = append([]Binding(nil), f.Bindings...)
	return out
}

// Catalog is the read-only, case-insensitive set of discovered functions.
type Catalog struct {
	byName map[string]Function
	order  []string
}

// NewCatalog keeps the first function registered under each name and logs
// the duplicates it drops.
func NewCatalog(logger *slog.Logger, functions ...Function) *Catalog {
	c := &Catalog{byName: make(map[string]Function, len(functions))}
	for _, fn := range functions {
		key := normalizeName(fn.Name)
		if key == "" {
			continue
		}
		if _, ok := c.byName[key]; ok {
			if logger != nil {
				logger.Warn("duplicate function ignored", "function", fn.Name)
			}
			continue
		}
		c.byName[key] = fn.clone()
		c.order = append(c.order, key)
	}
	return c
}

func (c *Catalog) Lookup(name string) (Function, bool) {
	if c == nil {
		return Function{}, false
	}
	fn, ok := c.byName[normalizeName(name)]
	if !ok {
		return Function{}, false
	}
	return fn.clone(), true
}

// All returns the functions in discovery order.
func (c *Catalog) All() []Function {
	if c == nil {
		return nil
	}
	out := make([]Function, 0, len(c.order))
	for _, key := range c.order {
		out = append(out, c.byName[key].clone())
	}
	return out
}

func (c *Catalog) OfKind(kind Kind) []Function {
	var out []Function
	for _, fn := range c.All() {
		if fn.Kind == kind {
			out = append(out, fn)
		}
	}
	return out
}

func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.order)
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// NameSet is a case-insensitive set of function names.
type NameSet map[string]struct{}

func NewNameSet(names ...string) NameSet {
	set := make(NameSet, len(names))
	for _, n := range names {
		if key := normalizeName(n); key != "" {
			set[key] = struct{}{}
		}
	}
	return set
}

func (s NameSet) Contains(name string) bool {
	_, ok := s[normalizeName(name)]
	return ok
}
