package plugins

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/animus-labs/rebit/internal/correlation"
	"github.com/animus-labs/rebit/internal/platform/env"
	"github.com/animus-labs/rebit/internal/queue"
	"github.com/animus-labs/rebit/internal/trigger"
)

const (
	MetaQueue = "queue"

	// DefaultQueueConnection is used when a binding names no connection.
	DefaultQueueConnection = "queues"
)

// QueuePlugin captures message bodies and replays them by enqueueing a new
// message on the function's queue.
type QueuePlugin struct {
	Resolver env.Resolver
	Queues   *queue.Factory
}

func (p *QueuePlugin) Kind() trigger.Kind { return trigger.Queue }

func (p *QueuePlugin) BindingTypes() []string {
	return []string{"queueTrigger"}
}

func (p *QueuePlugin) Describe(b trigger.Binding) (map[string]string, error) {
	name := strings.TrimSpace(b.Queue)
	if name == "" {
		return nil, fmt.Errorf("queue binding: queue is required")
	}
	conn := strings.TrimSpace(b.Connection)
	if conn == "" {
		conn = DefaultQueueConnection
	}
	return map[string]string{MetaQueue: name, MetaConnection: conn}, nil
}

func (p *QueuePlugin) Init(ctx context.Context) (trigger.Strategies, error) {
	if p.Resolver == nil || p.Queues == nil {
		return trigger.Strategies{}, fmt.Errorf("%w: queue plugin needs a resolver and a queue factory", errNotConfigured)
	}
	return trigger.Strategies{
		Capture: queueCapture{},
		Replay:  queueReplay{resolver: p.Resolver, queues: p.Queues},
	}, nil
}

type queueCapture struct{}

// Capture stores the decoded body. The correlationId attribute overrides
// the invocation id and a resubmitCount attribute is kept as a tag.
func (queueCapture) Capture(ctx context.Context, fn trigger.Function, inv trigger.Invocation) (trigger.Payload, error) {
	msg := inv.Message
	if msg == nil {
		return trigger.Payload{}, fmt.Errorf("%w: missing message", trigger.ErrNoPayload)
	}
	payload := trigger.Payload{
		Bytes:         msg.Body,
		CorrelationID: strings.TrimSpace(msg.Attributes[queue.AttrCorrelationID]),
		Metadata: map[string]string{
			MetaQueue:    msg.Queue,
			"message-id": msg.ID,
		},
	}
	if raw := msg.Attributes[queue.AttrResubmitCount]; raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			payload.Tags = map[string]string{correlation.TagResubmitCount: strconv.Itoa(n)}
		}
	}
	if of := msg.Attributes[queue.AttrResubmitOf]; of != "" {
		payload.Metadata["resubmit-of"] = of
	}
	return payload, nil
}

type queueReplay struct {
	resolver env.Resolver
	queues   *queue.Factory
}

func (r queueReplay) Replay(ctx context.Context, fn trigger.Function, in trigger.ReplayInput) (trigger.Delivery, error) {
	name := fn.Meta(MetaQueue)
	if name == "" {
		return trigger.Delivery{}, fmt.Errorf("function %s has no input queue", fn.Name)
	}
	conn := fn.Meta(MetaConnection)
	if conn == "" {
		conn = DefaultQueueConnection
	}
	dsn, err := env.Require(r.resolver, conn)
	if err != nil {
		return trigger.Delivery{}, err
	}
	q, err := r.queues.Get(dsn)
	if err != nil {
		return trigger.Delivery{}, fmt.Errorf("%w: open queue %s: %w", trigger.ErrTransport, name, err)
	}

	msg := queue.NewMessage(in.Original.Bytes, map[string]string{
		queue.AttrCorrelationID: in.CorrelationID,
		queue.AttrResubmitCount: strconv.Itoa(in.ResubmitCount),
		queue.AttrResubmitOf:    in.Original.Location.CorrelationID,
	})
	if err := q.Enqueue(ctx, name, msg); err != nil {
		return trigger.Delivery{}, fmt.Errorf("%w: enqueue %s: %w", trigger.ErrTransport, name, err)
	}
	return trigger.Delivery{Target: "queue/" + name}, nil
}
