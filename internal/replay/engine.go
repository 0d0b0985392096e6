package replay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/animus-labs/rebit/internal/correlation"
	"github.com/animus-labs/rebit/internal/trigger"
	"github.com/google/uuid"
)

// AuditFunc records a finished replay attempt. Failures are logged and do
// not change the result.
type AuditFunc func(ctx context.Context, req Request, res Result) error

type Engine struct {
	catalog  *trigger.Catalog
	registry *trigger.Registry
	store    correlation.Store
	logger   *slog.Logger

	Audit AuditFunc
	NewID func() string
}

func NewEngine(catalog *trigger.Catalog, registry *trigger.Registry, store correlation.Store, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Engine{
		catalog:  catalog,
		registry: registry,
		store:    store,
		logger:   logger,
		NewID:    uuid.NewString,
	}
}

// Resubmit runs validate, resolve, fetch, clean, deliver and respond for
// one request. It never retries; a failed replay is re-issued by the
// caller.
func (e *Engine) Resubmit(ctx context.Context, req Request) Result {
	req.FunctionName = strings.TrimSpace(req.FunctionName)
	req.CorrelationID = strings.TrimSpace(req.CorrelationID)

	res := e.resubmit(ctx, req)
	e.report(ctx, req, res)
	return res
}

func (e *Engine) resubmit(ctx context.Context, req Request) (res Result) {
	defer func() {
		if v := recover(); v != nil {
			res = req.result(http.StatusInternalServerError, ErrorKindUnexpected, fmt.Sprintf("unexpected error: %v", v))
		}
	}()

	// validate
	if req.FunctionName == "" {
		return req.result(http.StatusBadRequest, ErrorKindNone, "functionName is required")
	}
	if req.CorrelationID == "" {
		return req.result(http.StatusBadRequest, ErrorKindNone, "correlationId is required")
	}
	fn, ok := e.catalog.Lookup(req.FunctionName)
	if !ok {
		return req.result(http.StatusBadRequest, ErrorKindNone, fmt.Sprintf("functionName %q does not match a registered function", req.FunctionName))
	}

	// resolve
	strategy, err := e.registry.ReplayStrategyFor(fn.Kind)
	if err != nil {
		res := req.result(http.StatusInternalServerError, ErrorKindNone, fmt.Sprintf("unsupported kind: no replay strategy for %s functions", fn.Kind))
		res.Kind = fn.Kind
		return res
	}

	// fetch
	loc, err := e.store.FindByCorrelationID(ctx, fn.Name, req.CorrelationID)
	if err == nil {
		var rec correlation.Record
		rec, err = e.store.Read(ctx, loc)
		if err == nil {
			return e.deliver(ctx, req, fn, strategy, rec)
		}
	}
	if errors.Is(err, correlation.ErrNotFound) {
		res := req.result(http.StatusNotFound, ErrorKindNotFound, fmt.Sprintf("no captured payload for correlationId %q", req.CorrelationID))
		res.Kind = fn.Kind
		return res
	}
	res = req.result(http.StatusInternalServerError, ErrorKindUnexpected, fmt.Sprintf("fetch captured payload: %v", err))
	res.Kind = fn.Kind
	return res
}

func (e *Engine) deliver(ctx context.Context, req Request, fn trigger.Function, strategy trigger.ReplayStrategy, rec correlation.Record) Result {
	// clean
	tags, count, err := correlation.CleanForReplay(rec.Tags)
	if err != nil {
		res := req.result(http.StatusInternalServerError, ErrorKindUnexpected, fmt.Sprintf("prepare tags: %v", err))
		res.Kind = fn.Kind
		return res
	}

	replayID := e.NewID()
	delivery, err := replayWith(ctx, strategy, fn, trigger.ReplayInput{
		Original:      rec,
		Tags:          tags,
		CorrelationID: replayID,
		ResubmitCount: count,
	})
	if err != nil {
		kind := ErrorKindUnexpected
		if errors.Is(err, trigger.ErrTransport) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			kind = ErrorKindTransportFailure
		}
		res := req.result(http.StatusInternalServerError, kind, err.Error())
		res.Kind = fn.Kind
		return res
	}

	res := req.result(http.StatusOK, ErrorKindNone, fmt.Sprintf("resubmitted %s %s as %s", fn.Name, req.CorrelationID, replayID))
	res.Kind = fn.Kind
	res.ReplayCorrelationID = replayID
	res.ResubmitCount = count
	res.Target = delivery.Target
	return res
}

func replayWith(ctx context.Context, strategy trigger.ReplayStrategy, fn trigger.Function, in trigger.ReplayInput) (d trigger.Delivery, err error) {
	defer func() {
		if v := recover(); v != nil {
			err = fmt.Errorf("replay strategy panic: %v", v)
		}
	}()
	return strategy.Replay(ctx, fn, in)
}

func (e *Engine) report(ctx context.Context, req Request, res Result) {
	attrs := []any{
		"function", req.FunctionName,
		"correlation_id", req.CorrelationID,
		"kind", res.Kind.String(),
		"status", res.Status,
	}
	switch {
	case res.IsSuccess:
		e.logger.Info("resubmit succeeded", append(attrs, "replay_correlation_id", res.ReplayCorrelationID, "resubmit_count", res.ResubmitCount)...)
	case res.ErrorKind == ErrorKindUnexpected || res.Status >= http.StatusInternalServerError:
		e.logger.Error("resubmit failed", append(attrs, "error_kind", string(res.ErrorKind), "error", res.Message)...)
	default:
		e.logger.Warn("resubmit rejected", append(attrs, "error_kind", string(res.ErrorKind), "error", res.Message)...)
	}

	if e.Audit == nil {
		return
	}
	if err := e.Audit(context.WithoutCancel(ctx), req, res); err != nil {
		e.logger.Warn("resubmit audit failed", "function", req.FunctionName, "correlation_id", req.CorrelationID, "error", err)
	}
}
