package trigger

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Plugin supplies the strategies for one trigger kind. Plugins are listed
// explicitly at startup and looked up by Kind afterwards.
type Plugin interface {
	Kind() Kind
	// BindingTypes are the manifest binding types this plugin claims,
	// e.g. "blobTrigger".
	BindingTypes() []string
	// Describe extracts the kind specific metadata of a binding.
	Describe(b Binding) (map[string]string, error)
	Init(ctx context.Context) (Strategies, error)
}

// Strategies is the pair a plugin provides. Replay is nil for kinds that
// can only be captured.
type Strategies struct {
	Capture CaptureStrategy
	Replay  ReplayStrategy
}

type entry struct {
	plugin     Plugin
	strategies Strategies
}

// Registry is built once and read concurrently without locking.
type Registry struct {
	entries  [kindCount]*entry
	bindings map[string]Kind
}

// NewRegistry initializes every plugin. A plugin that fails or panics in
// Init is left out and logged; the rest still register.
func NewRegistry(ctx context.Context, logger *slog.Logger, plugins ...Plugin) *Registry {
	r := &Registry{bindings: make(map[string]Kind)}
	for _, p := range plugins {
		if p == nil {
			continue
		}
		kind := p.Kind()
		if !kind.Known() {
			logWarn(logger, "plugin declares unknown kind", "kind", kind.String())
			continue
		}
		if r.entries[kind] != nil {
			logWarn(logger, "plugin ignored", "kind", kind.String(), "error", ErrDuplicateRegistered)
			continue
		}
		strategies, err := initPlugin(ctx, p)
		if err == nil && strategies.Capture == nil {
			err = fmt.Errorf("%s plugin returned no capture strategy", kind)
		}
		if err != nil {
			logWarn(logger, "plugin init failed", "kind", kind.String(), "error", err)
			continue
		}
		r.entries[kind] = &entry{plugin: p, strategies: strategies}
		for _, bt := range p.BindingTypes() {
			key := strings.ToLower(strings.TrimSpace(bt))
			if key == "" {
				continue
			}
			if _, taken := r.bindings[key]; taken {
				continue
			}
			r.bindings[key] = kind
		}
		if logger != nil {
			logger.Info("trigger plugin registered", "kind", kind.String(), "replay", strategies.Replay != nil)
		}
	}
	return r
}

func initPlugin(ctx context.Context, p Plugin) (s Strategies, err error) {
	defer func() {
		if v := recover(); v != nil {
			err = fmt.Errorf("panic: %v", v)
		}
	}()
	return p.Init(ctx)
}

// ResolveKind maps a binding to the kind of the plugin claiming its type,
// or Unknown.
func (r *Registry) ResolveKind(b Binding) Kind {
	if r == nil {
		return Unknown
	}
	return r.bindings[strings.ToLower(strings.TrimSpace(b.Type))]
}

// ResolveBindings returns the first input binding with a registered kind.
func (r *Registry) ResolveBindings(bindings []Binding) (Kind, Binding, bool) {
	for _, b := range bindings {
		if !b.IsInput() {
			continue
		}
		if kind := r.ResolveKind(b); kind.Known() {
			return kind, b, true
		}
	}
	return Unknown, Binding{}, false
}

func (r *Registry) Describe(b Binding) (map[string]string, error) {
	kind := r.ResolveKind(b)
	e := r.lookup(kind)
	if e == nil {
		return nil, fmt.Errorf("%w: binding type %q", ErrUnknownKind, b.Type)
	}
	return e.plugin.Describe(b)
}

func (r *Registry) CaptureStrategyFor(kind Kind) (CaptureStrategy, error) {
	e := r.lookup(kind)
	if e == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	return e.strategies.Capture, nil
}

func (r *Registry) ReplayStrategyFor(kind Kind) (ReplayStrategy, error) {
	e := r.lookup(kind)
	if e == nil || e.strategies.Replay == nil {
		return nil, fmt.Errorf("%w: %s", ErrReplayNotSupported, kind)
	}
	return e.strategies.Replay, nil
}

// Kinds lists the registered kinds in enum order.
func (r *Registry) Kinds() []Kind {
	var out []Kind
	for k := Unknown + 1; k < kindCount; k++ {
		if r.lookup(k) != nil {
			out = append(out, k)
		}
	}
	return out
}

func (r *Registry) lookup(kind Kind) *entry {
	if r == nil || !kind.Known() {
		return nil
	}
	return r.entries[kind]
}

func logWarn(logger *slog.Logger, msg string, args ...any) {
	if logger != nil {
		logger.Warn(msg, args...)
	}
}
