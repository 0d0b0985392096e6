package plugins

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"
	"testing"

	"github.com/animus-labs/rebit/internal/platform/env"
	"github.com/animus-labs/rebit/internal/queue"
	"github.com/animus-labs/rebit/internal/trigger"
)

type memObjects struct {
	mu      sync.Mutex
	objects map[string]Object
	putErr  error
}

func newMemObjects() *memObjects {
	return &memObjects{objects: map[string]Object{}}
}

func (m *memObjects) Get(ctx context.Context, container, key string) (Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[container+"/"+key]
	if !ok {
		return Object{}, fmt.Errorf("get %s/%s: not found", container, key)
	}
	obj.Tags = maps.Clone(obj.Tags)
	obj.Metadata = maps.Clone(obj.Metadata)
	return obj, nil
}

func (m *memObjects) Put(ctx context.Context, container, key string, obj Object) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return m.putErr
	}
	obj.Bytes = append([]byte(nil), obj.Bytes...)
	obj.Tags = maps.Clone(obj.Tags)
	obj.Metadata = maps.Clone(obj.Metadata)
	m.objects[container+"/"+key] = obj
	return nil
}

func TestDefault_InitFailuresDropOnlyThatKind(t *testing.T) {
	reg := trigger.NewRegistry(context.Background(), nil, Default(Deps{
		Resolver: env.MapResolver{},
		Queues:   queue.NewFactory(),
	})...)

	if _, err := reg.CaptureStrategyFor(trigger.File); !errors.Is(err, trigger.ErrUnknownKind) {
		t.Fatalf("CaptureStrategyFor(File) err=%v, want ErrUnknownKind", err)
	}
	for _, k := range []trigger.Kind{trigger.HTTP, trigger.Queue, trigger.Timer} {
		if _, err := reg.CaptureStrategyFor(k); err != nil {
			t.Fatalf("CaptureStrategyFor(%s) err=%v", k, err)
		}
	}
	if _, err := reg.ReplayStrategyFor(trigger.Timer); !errors.Is(err, trigger.ErrReplayNotSupported) {
		t.Fatalf("ReplayStrategyFor(Timer) err=%v, want ErrReplayNotSupported", err)
	}
}

func TestDefault_BindingTypes(t *testing.T) {
	reg := trigger.NewRegistry(context.Background(), nil, Default(Deps{
		Objects:  newMemObjects(),
		Resolver: env.MapResolver{},
		Queues:   queue.NewFactory(),
	})...)
	cases := map[string]trigger.Kind{
		"blobTrigger":  trigger.File,
		"fileTrigger":  trigger.File,
		"httpTrigger":  trigger.HTTP,
		"queueTrigger": trigger.Queue,
		"timerTrigger": trigger.Timer,
		"eventHub":     trigger.Unknown,
	}
	for typ, want := range cases {
		if got := reg.ResolveKind(trigger.Binding{Type: typ}); got != want {
			t.Fatalf("ResolveKind(%q)=%s, want %s", typ, got, want)
		}
	}
}
