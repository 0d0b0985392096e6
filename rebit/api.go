package main

import (
	"context"
	_ "embed"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/animus-labs/rebit/internal/platform/auditlog"
	"github.com/animus-labs/rebit/internal/platform/auth"
	"github.com/animus-labs/rebit/internal/platform/httpserver"
	"github.com/animus-labs/rebit/internal/replay"
)

//go:embed openapi.yaml
var openAPISpec []byte

type resubmitAPI struct {
	logger *slog.Logger
	engine *replay.Engine
}

func newResubmitAPI(logger *slog.Logger, engine *replay.Engine) *resubmitAPI {
	return &resubmitAPI{logger: logger, engine: engine}
}

func (api *resubmitAPI) register(mux *http.ServeMux) {
	mux.HandleFunc("GET /resubmit", api.handleResubmit)
	mux.HandleFunc("POST /resubmit", api.handleResubmit)
	mux.HandleFunc("GET /openapi.yaml", handleOpenAPI)
}

func (api *resubmitAPI) handleResubmit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := replay.Request{
		FunctionName:  strings.TrimSpace(q.Get("functionName")),
		CorrelationID: strings.TrimSpace(q.Get("correlationId")),
		Caller: replay.Caller{
			RemoteAddr: r.RemoteAddr,
			UserAgent:  r.UserAgent(),
		},
	}
	if identity, ok := auth.IdentityFromContext(r.Context()); ok {
		req.Caller.Actor = identity.Actor()
	}
	if id, ok := httpserver.RequestIDFromContext(r.Context()); ok {
		req.Caller.RequestID = id
	}

	res := api.engine.Resubmit(r.Context(), req)
	httpserver.WriteJSON(w, res.Status, res)
}

func handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(openAPISpec)
}

// replayAuditor appends every resubmit attempt to the audit log.
func replayAuditor(db auditlog.QueryRower) replay.AuditFunc {
	return func(ctx context.Context, req replay.Request, res replay.Result) error {
		auditCtx, cancel := context.WithTimeout(ctx, 750*time.Millisecond)
		defer cancel()
		_, err := auditlog.InsertReplay(auditCtx, db, auditlog.ReplayAttempt{
			Time:                time.Now().UTC(),
			Actor:               req.Caller.Actor,
			FunctionName:        req.FunctionName,
			CorrelationID:       req.CorrelationID,
			ReplayCorrelationID: res.ReplayCorrelationID,
			Kind:                res.Kind.String(),
			Status:              res.Status,
			Success:             res.IsSuccess,
			ErrorKind:           string(res.ErrorKind),
			Message:             res.Message,
			ResubmitCount:       res.ResubmitCount,
			RequestID:           req.Caller.RequestID,
			RemoteAddr:          req.Caller.RemoteAddr,
			UserAgent:           req.Caller.UserAgent,
		})
		return err
	}
}
