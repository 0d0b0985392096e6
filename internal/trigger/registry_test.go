package trigger

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

type stubCapture struct{}

func (stubCapture) Capture(ctx context.Context, fn Function, inv Invocation) (Payload, error) {
	return Payload{Bytes: []byte(fn.Name)}, nil
}

type stubReplay struct{}

func (stubReplay) Replay(ctx context.Context, fn Function, in ReplayInput) (Delivery, error) {
	return Delivery{Target: fn.Name}, nil
}

type stubPlugin struct {
	kind     Kind
	types    []string
	replay   bool
	initErr  error
	panicMsg string
}

func (p stubPlugin) Kind() Kind             { return p.kind }
func (p stubPlugin) BindingTypes() []string { return p.types }

func (p stubPlugin) Describe(b Binding) (map[string]string, error) {
	if b.Path == "bad" {
		return nil, errors.New("bad path")
	}
	return map[string]string{"type": b.Type, "path": b.Path}, nil
}

func (p stubPlugin) Init(ctx context.Context) (Strategies, error) {
	if p.panicMsg != "" {
		panic(p.panicMsg)
	}
	if p.initErr != nil {
		return Strategies{}, p.initErr
	}
	s := Strategies{Capture: stubCapture{}}
	if p.replay {
		s.Replay = stubReplay{}
	}
	return s, nil
}

func testLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, nil))
}

func TestRegistry_Lookup(t *testing.T) {
	var logs bytes.Buffer
	reg := NewRegistry(context.Background(), testLogger(&logs),
		stubPlugin{kind: File, types: []string{"blobTrigger"}, replay: true},
		stubPlugin{kind: Timer, types: []string{"timerTrigger"}},
	)

	if got := reg.ResolveKind(Binding{Type: "BLOBTRIGGER"}); got != File {
		t.Fatalf("ResolveKind(blob)=%v, want File", got)
	}
	if got := reg.ResolveKind(Binding{Type: "eventHubTrigger"}); got != Unknown {
		t.Fatalf("ResolveKind(eventHub)=%v, want Unknown", got)
	}

	if _, err := reg.CaptureStrategyFor(File); err != nil {
		t.Fatalf("CaptureStrategyFor(File) err=%v", err)
	}
	if _, err := reg.ReplayStrategyFor(File); err != nil {
		t.Fatalf("ReplayStrategyFor(File) err=%v", err)
	}
	if _, err := reg.CaptureStrategyFor(Timer); err != nil {
		t.Fatalf("CaptureStrategyFor(Timer) err=%v", err)
	}
	if _, err := reg.ReplayStrategyFor(Timer); !errors.Is(err, ErrReplayNotSupported) {
		t.Fatalf("ReplayStrategyFor(Timer) err=%v, want ErrReplayNotSupported", err)
	}
	if _, err := reg.CaptureStrategyFor(Unknown); !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("CaptureStrategyFor(Unknown) err=%v, want ErrUnknownKind", err)
	}
	if _, err := reg.ReplayStrategyFor(Queue); !errors.Is(err, ErrReplayNotSupported) {
		t.Fatalf("ReplayStrategyFor(Queue) err=%v, want ErrReplayNotSupported", err)
	}

	kinds := reg.Kinds()
	if len(kinds) != 2 || kinds[0] != File || kinds[1] != Timer {
		t.Fatalf("Kinds()=%v, want [File Timer]", kinds)
	}
}

func TestRegistry_FailingPluginsAreExcluded(t *testing.T) {
	var logs bytes.Buffer
	reg := NewRegistry(context.Background(), testLogger(&logs),
		stubPlugin{kind: File, types: []string{"blobTrigger"}, initErr: errors.New("no bucket")},
		stubPlugin{kind: Queue, types: []string{"queueTrigger"}, panicMsg: "boom"},
		stubPlugin{kind: HTTP, types: []string{"httpTrigger"}, replay: true},
		stubPlugin{kind: HTTP, types: []string{"webhook"}, replay: true},
	)

	if got := reg.Kinds(); len(got) != 1 || got[0] != HTTP {
		t.Fatalf("Kinds()=%v, want [Http]", got)
	}
	if got := reg.ResolveKind(Binding{Type: "blobTrigger"}); got != Unknown {
		t.Fatalf("failed plugin still resolves: %v", got)
	}
	if got := reg.ResolveKind(Binding{Type: "webhook"}); got != Unknown {
		t.Fatalf("duplicate plugin binding registered: %v", got)
	}
	out := logs.String()
	if !strings.Contains(out, "no bucket") || !strings.Contains(out, "panic: boom") {
		t.Fatalf("expected init failures to be logged: %s", out)
	}
}

func TestRegistry_NilIsEmpty(t *testing.T) {
	var reg *Registry
	if got := reg.ResolveKind(Binding{Type: "httpTrigger"}); got != Unknown {
		t.Fatalf("ResolveKind()=%v, want Unknown", got)
	}
	if _, err := reg.ReplayStrategyFor(HTTP); !errors.Is(err, ErrReplayNotSupported) {
		t.Fatalf("ReplayStrategyFor() err=%v", err)
	}
}

func TestKind_TextRoundTrip(t *testing.T) {
	for k := Unknown; k < kindCount; k++ {
		text, _ := k.MarshalText()
		var got Kind
		if err := got.UnmarshalText(text); err != nil || got != k {
			t.Fatalf("round trip %v -> %q -> %v err=%v", k, text, got, err)
		}
	}
	if got, ok := ParseKind("http"); !ok || got != HTTP {
		t.Fatalf("ParseKind(http)=%v,%v", got, ok)
	}
	var k Kind
	if err := k.UnmarshalText([]byte("eventhub")); err == nil {
		t.Fatalf("UnmarshalText(eventhub) expected error")
	}
	if Kind(42).String() != "Kind(42)" {
		t.Fatalf("String() out of range=%q", Kind(42).String())
	}
}
