package replay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"testing"

	"github.com/animus-labs/rebit/internal/correlation"
	"github.com/animus-labs/rebit/internal/trigger"
)

type noopCapture struct{}

func (noopCapture) Capture(ctx context.Context, fn trigger.Function, inv trigger.Invocation) (trigger.Payload, error) {
	return trigger.Payload{}, nil
}

type stubReplay struct {
	err    error
	panics bool
	calls  []trigger.ReplayInput
}

func (s *stubReplay) Replay(ctx context.Context, fn trigger.Function, in trigger.ReplayInput) (trigger.Delivery, error) {
	s.calls = append(s.calls, in)
	if s.panics {
		panic("nil transport")
	}
	if s.err != nil {
		return trigger.Delivery{}, s.err
	}
	if err := ctx.Err(); err != nil {
		return trigger.Delivery{}, fmt.Errorf("%w: %v", trigger.ErrTransport, err)
	}
	return trigger.Delivery{Target: fn.Meta("container") + "/replayed"}, nil
}

type stubPlugin struct {
	kind   trigger.Kind
	typ    string
	replay trigger.ReplayStrategy
}

func (p stubPlugin) Kind() trigger.Kind     { return p.kind }
func (p stubPlugin) BindingTypes() []string { return []string{p.typ} }
func (p stubPlugin) Describe(b trigger.Binding) (map[string]string, error) {
	return map[string]string{"container": b.Path}, nil
}
func (p stubPlugin) Init(ctx context.Context) (trigger.Strategies, error) {
	return trigger.Strategies{Capture: noopCapture{}, Replay: p.replay}, nil
}

type fixture struct {
	engine *Engine
	store  *correlation.MemoryStore
	file   *stubReplay
	logs   *bytes.Buffer
	audits []Result
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store: correlation.NewMemoryStore(),
		file:  &stubReplay{},
		logs:  &bytes.Buffer{},
	}
	logger := slog.New(slog.NewJSONHandler(f.logs, nil))
	reg := trigger.NewRegistry(context.Background(), logger,
		stubPlugin{kind: trigger.File, typ: "blobTrigger", replay: f.file},
		stubPlugin{kind: trigger.Timer, typ: "timerTrigger"},
	)
	m := trigger.Manifest{Schema: trigger.ManifestSchemaV1, Functions: []trigger.FunctionSpec{
		{Name: "TransferCats", Bindings: []trigger.Binding{{Type: "blobTrigger", Path: "cats-inbox"}}},
		{Name: "NightlyReport", Bindings: []trigger.Binding{{Type: "timerTrigger", Schedule: "24h"}}},
	}}
	catalog, err := trigger.Discover(m, reg, logger)
	if err != nil {
		t.Fatalf("Discover() err=%v", err)
	}
	f.engine = NewEngine(catalog, reg, f.store, logger)
	f.engine.NewID = func() string { return "replay-1" }
	f.engine.Audit = func(ctx context.Context, req Request, res Result) error {
		f.audits = append(f.audits, res)
		return nil
	}

	err = f.store.Save(context.Background(), correlation.Record{
		Location: correlation.Location{FunctionName: "TransferCats", CorrelationID: "abc-123"},
		Bytes:    []byte("hello"),
		Tags:     map[string]string{correlation.TagCorrelationID: "abc-123", "owner": "ops"},
	})
	if err != nil {
		t.Fatalf("Save() err=%v", err)
	}
	return f
}

func TestResubmit_Validation(t *testing.T) {
	f := newFixture(t)
	cases := []struct {
		req  Request
		want string
	}{
		{Request{CorrelationID: "abc-123"}, "functionName"},
		{Request{FunctionName: "TransferCats", CorrelationID: "  "}, "correlationId"},
		{Request{FunctionName: "DoesNotExist", CorrelationID: "abc-123"}, "DoesNotExist"},
	}
	for _, tc := range cases {
		res := f.engine.Resubmit(context.Background(), tc.req)
		if res.Status != http.StatusBadRequest || res.IsSuccess {
			t.Fatalf("Resubmit(%+v) status=%d, want 400", tc.req, res.Status)
		}
		if res.ErrorKind != ErrorKindNone {
			t.Fatalf("ErrorKind=%q, want none", res.ErrorKind)
		}
		if !strings.Contains(res.Message, tc.want) {
			t.Fatalf("Message=%q, want mention of %q", res.Message, tc.want)
		}
	}
	if len(f.file.calls) != 0 {
		t.Fatalf("strategy called on invalid request")
	}
	res := f.engine.Resubmit(context.Background(), Request{FunctionName: "DoesNotExist", CorrelationID: "x"})
	if res.FunctionName != "DoesNotExist" || res.CorrelationID != "x" {
		t.Fatalf("result does not echo request: %+v", res)
	}
}

func TestResubmit_UnsupportedKind(t *testing.T) {
	f := newFixture(t)
	res := f.engine.Resubmit(context.Background(), Request{FunctionName: "NightlyReport", CorrelationID: "t-1"})
	if res.Status != http.StatusInternalServerError {
		t.Fatalf("status=%d, want 500", res.Status)
	}
	if !strings.Contains(res.Message, "unsupported kind") {
		t.Fatalf("Message=%q", res.Message)
	}
}

func TestResubmit_NotFound(t *testing.T) {
	f := newFixture(t)
	res := f.engine.Resubmit(context.Background(), Request{FunctionName: "TransferCats", CorrelationID: "0b7f3c55-unseen"})
	if res.Status != http.StatusNotFound || res.ErrorKind != ErrorKindNotFound {
		t.Fatalf("Resubmit()=%+v, want 404 NotFound", res)
	}
}

func TestResubmit_Success(t *testing.T) {
	f := newFixture(t)
	res := f.engine.Resubmit(context.Background(), Request{FunctionName: "transfercats", CorrelationID: "abc-123"})
	if res.Status != http.StatusOK || !res.IsSuccess {
		t.Fatalf("Resubmit()=%+v, want 200", res)
	}
	if res.ReplayCorrelationID != "replay-1" || res.ResubmitCount != 1 {
		t.Fatalf("Resubmit()=%+v", res)
	}
	if res.Target != "cats-inbox/replayed" {
		t.Fatalf("Target=%q", res.Target)
	}

	if len(f.file.calls) != 1 {
		t.Fatalf("strategy calls=%d, want 1", len(f.file.calls))
	}
	in := f.file.calls[0]
	if string(in.Original.Bytes) != "hello" {
		t.Fatalf("Original.Bytes=%q", in.Original.Bytes)
	}
	if _, ok := in.Tags[correlation.TagCorrelationID]; ok {
		t.Fatalf("stale correlation tag leaked: %v", in.Tags)
	}
	if in.Tags["owner"] != "ops" || in.Tags[correlation.TagResubmitCount] != "1" {
		t.Fatalf("cleaned tags=%v", in.Tags)
	}
	if in.CorrelationID != "replay-1" {
		t.Fatalf("CorrelationID=%q", in.CorrelationID)
	}

	// the stored record is untouched, so a second replay sees the same input
	_ = f.engine.Resubmit(context.Background(), Request{FunctionName: "TransferCats", CorrelationID: "abc-123"})
	second := f.file.calls[1]
	if second.Tags[correlation.TagResubmitCount] != "1" {
		t.Fatalf("second replay tags=%v, want reproducible", second.Tags)
	}
	rec, _ := f.store.Read(context.Background(), correlation.Location{FunctionName: "TransferCats", CorrelationID: "abc-123"})
	if rec.Tags[correlation.TagCorrelationID] != "abc-123" || rec.Tags[correlation.TagResubmitCount] != "" {
		t.Fatalf("stored tags mutated: %v", rec.Tags)
	}

	if len(f.audits) != 2 || !f.audits[0].IsSuccess {
		t.Fatalf("audits=%+v", f.audits)
	}
}

func TestResubmit_TransportFailure(t *testing.T) {
	f := newFixture(t)
	f.file.err = fmt.Errorf("%w: connection refused", trigger.ErrTransport)
	res := f.engine.Resubmit(context.Background(), Request{FunctionName: "TransferCats", CorrelationID: "abc-123"})
	if res.Status != http.StatusInternalServerError || res.ErrorKind != ErrorKindTransportFailure {
		t.Fatalf("Resubmit()=%+v, want 500 TransportFailure", res)
	}
	if !strings.Contains(res.Message, "connection refused") {
		t.Fatalf("Message=%q, want transport error text", res.Message)
	}
}

func TestResubmit_CanceledIsTransportFailure(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := f.engine.Resubmit(ctx, Request{FunctionName: "TransferCats", CorrelationID: "abc-123"})
	if res.IsSuccess {
		t.Fatalf("canceled replay reported success")
	}
	if res.ErrorKind != ErrorKindTransportFailure && res.ErrorKind != ErrorKindUnexpected {
		t.Fatalf("ErrorKind=%q", res.ErrorKind)
	}
}

func TestResubmit_UnexpectedIsLogged(t *testing.T) {
	f := newFixture(t)
	f.file.err = errors.New("captured snapshot is corrupt")
	res := f.engine.Resubmit(context.Background(), Request{FunctionName: "TransferCats", CorrelationID: "abc-123"})
	if res.Status != http.StatusInternalServerError || res.ErrorKind != ErrorKindUnexpected {
		t.Fatalf("Resubmit()=%+v, want 500 Unexpected", res)
	}
	out := f.logs.String()
	if !strings.Contains(out, `"function":"TransferCats"`) || !strings.Contains(out, `"correlation_id":"abc-123"`) {
		t.Fatalf("failure not logged with function/correlation pair: %s", out)
	}

	f.file.err = nil
	f.file.panics = true
	res = f.engine.Resubmit(context.Background(), Request{FunctionName: "TransferCats", CorrelationID: "abc-123"})
	if res.ErrorKind != ErrorKindUnexpected || !strings.Contains(res.Message, "nil transport") {
		t.Fatalf("Resubmit() after panic=%+v", res)
	}
}

func TestResult_JSON(t *testing.T) {
	res := Request{FunctionName: "GetCats", CorrelationID: "x"}.result(http.StatusBadRequest, ErrorKindNone, "bad")
	raw, err := json.Marshal(res)
	if err != nil {
		t.Fatalf("Marshal() err=%v", err)
	}
	var got map[string]any
	_ = json.Unmarshal(raw, &got)
	if got["isSuccess"] != false || got["functionName"] != "GetCats" || got["correlationId"] != "x" {
		t.Fatalf("json=%s", raw)
	}
	if got["errorKind"] != "None" {
		t.Fatalf("errorKind=%v, want None: %s", got["errorKind"], raw)
	}
	if _, ok := got["Status"]; ok {
		t.Fatalf("status leaked into body: %s", raw)
	}
}
