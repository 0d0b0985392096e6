// Package capture records the payload of every invocation before its
// handler runs.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"strings"
	"time"

	"github.com/animus-labs/rebit/internal/correlation"
	"github.com/animus-labs/rebit/internal/trigger"
	"github.com/google/uuid"
)

// ResubmitFunctionName is the replay endpoint's own function. It is never
// captured.
const ResubmitFunctionName = "Resubmit"

type Status int

const (
	StatusSkipped Status = iota
	StatusCaptured
	// StatusCounted means the invocation was a replay and only the original
	// record's counter moved.
	StatusCounted
)

func (s Status) String() string {
	switch s {
	case StatusCaptured:
		return "captured"
	case StatusCounted:
		return "counted"
	default:
		return "skipped"
	}
}

type Outcome struct {
	Status   Status
	Kind     trigger.Kind
	Location correlation.Location
}

type Pipeline struct {
	catalog  *trigger.Catalog
	registry *trigger.Registry
	store    correlation.Store
	excluded trigger.NameSet
	logger   *slog.Logger
	now      func() time.Time
}

// NewPipeline builds a pipeline that skips excluded plus the resubmit
// function.
func NewPipeline(catalog *trigger.Catalog, registry *trigger.Registry, store correlation.Store, logger *slog.Logger, excluded ...string) *Pipeline {
	names := append([]string{ResubmitFunctionName}, excluded...)
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Pipeline{
		catalog:  catalog,
		registry: registry,
		store:    store,
		excluded: trigger.NewNameSet(names...),
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// OnInvocation captures inv and never fails: every error is logged and the
// caller goes on to run the handler.
func (p *Pipeline) OnInvocation(ctx context.Context, inv trigger.Invocation) {
	defer func() {
		if v := recover(); v != nil {
			p.logger.Error("capture panicked", "function", inv.FunctionName, "invocation_id", inv.ID, "panic", v)
		}
	}()

	out, err := p.Capture(ctx, inv)
	if err != nil {
		msg := "capture failed"
		if errors.Is(err, trigger.ErrUnknownKind) {
			msg = "capture skipped"
		}
		p.logger.Warn(msg,
			"function", inv.FunctionName,
			"invocation_id", inv.ID,
			"kind", out.Kind.String(),
			"error", err,
		)
		return
	}
	if out.Status == StatusSkipped {
		return
	}
	p.logger.Debug("invocation captured",
		"function", inv.FunctionName,
		"kind", out.Kind.String(),
		"correlation_id", out.Location.CorrelationID,
		"status", out.Status.String(),
	)
}

// Capture runs the capture steps and reports what happened.
func (p *Pipeline) Capture(ctx context.Context, inv trigger.Invocation) (Outcome, error) {
	if strings.TrimSpace(inv.FunctionName) == "" {
		return Outcome{}, fmt.Errorf("%w: function name is required", trigger.ErrInvalidInvocation)
	}
	if p.excluded.Contains(inv.FunctionName) {
		return Outcome{Status: StatusSkipped}, nil
	}

	fn, ok := p.catalog.Lookup(inv.FunctionName)
	if !ok {
		fn = trigger.Function{Name: inv.FunctionName}
	}
	bindings := inv.Bindings
	if len(bindings) == 0 {
		bindings = fn.Bindings
	}
	kind, _, known := p.registry.ResolveBindings(bindings)
	if !known {
		return Outcome{}, fmt.Errorf("%w: no registered binding on %s", trigger.ErrUnknownKind, fn.Name)
	}
	out := Outcome{Kind: kind}

	strategy, err := p.registry.CaptureStrategyFor(kind)
	if err != nil {
		return out, err
	}
	payload, err := extract(ctx, strategy, fn, inv)
	if err != nil {
		return out, fmt.Errorf("extract %s payload: %w", kind, err)
	}

	if payload.ResubmitOf != "" {
		loc, err := p.countResubmit(ctx, fn, payload.ResubmitOf)
		out.Location = loc
		if err != nil {
			return out, err
		}
		out.Status = StatusCounted
		return out, nil
	}

	correlationID := strings.TrimSpace(payload.CorrelationID)
	if correlationID == "" {
		correlationID = strings.TrimSpace(inv.ID)
	}
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	loc := correlation.Location{FunctionName: fn.Name, CorrelationID: correlationID}
	out.Location = loc

	tags, err := correlation.WithCorrelation(payload.Tags, correlationID)
	if err != nil {
		return out, err
	}
	meta := maps.Clone(payload.Metadata)
	if meta == nil {
		meta = map[string]string{}
	}
	meta[correlation.MetaKind] = kind.String()
	meta[correlation.MetaCapturedAt] = p.now().Format(time.RFC3339)

	if err := p.store.Save(ctx, correlation.Record{
		Location:    loc,
		Bytes:       payload.Bytes,
		ContentType: payload.ContentType,
		Tags:        tags,
		Metadata:    meta,
	}); err != nil {
		return out, fmt.Errorf("save %s: %w", loc.Key(), err)
	}
	out.Status = StatusCaptured
	return out, nil
}

// countResubmit bumps the counter on the record a replayed invocation came
// from. The read-modify-write is not conditional, so concurrent replays of
// one id may undercount.
func (p *Pipeline) countResubmit(ctx context.Context, fn trigger.Function, originalID string) (correlation.Location, error) {
	loc, err := p.store.FindByCorrelationID(ctx, fn.Name, originalID)
	if err != nil {
		return correlation.Location{FunctionName: fn.Name, CorrelationID: originalID}, fmt.Errorf("find replay origin: %w", err)
	}
	if _, err := p.store.UpdateTags(ctx, loc, correlation.BumpResubmitCount); err != nil {
		return loc, fmt.Errorf("count resubmit %s: %w", loc.Key(), err)
	}
	return loc, nil
}

func extract(ctx context.Context, strategy trigger.CaptureStrategy, fn trigger.Function, inv trigger.Invocation) (payload trigger.Payload, err error) {
	defer func() {
		if v := recover(); v != nil {
			err = fmt.Errorf("capture strategy panic: %v", v)
		}
	}()
	return strategy.Capture(ctx, fn, inv)
}

// Run captures inv and then calls handler, whatever the capture outcome.
func (p *Pipeline) Run(ctx context.Context, inv trigger.Invocation, handler func(context.Context) error) error {
	p.OnInvocation(ctx, inv)
	return handler(ctx)
}

// Middleware captures each request to functionName before next serves it.
func (p *Pipeline) Middleware(functionName string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p.OnInvocation(r.Context(), trigger.Invocation{
			ID:           uuid.NewString(),
			FunctionName: functionName,
			Request:      r,
		})
		next.ServeHTTP(w, r)
	})
}
