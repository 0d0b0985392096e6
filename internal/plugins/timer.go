package plugins

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/animus-labs/rebit/internal/trigger"
)

const MetaSchedule = "schedule"

// TimerPlugin captures ticks for inspection. Timer functions cannot be
// replayed.
type TimerPlugin struct{}

func (TimerPlugin) Kind() trigger.Kind { return trigger.Timer }

func (TimerPlugin) BindingTypes() []string {
	return []string{"timerTrigger"}
}

func (TimerPlugin) Describe(b trigger.Binding) (map[string]string, error) {
	schedule := strings.TrimSpace(b.Schedule)
	if schedule == "" {
		return nil, fmt.Errorf("timer binding: schedule is required")
	}
	return map[string]string{MetaSchedule: schedule}, nil
}

func (TimerPlugin) Init(ctx context.Context) (trigger.Strategies, error) {
	return trigger.Strategies{Capture: timerCapture{}}, nil
}

type timerCapture struct{}

func (timerCapture) Capture(ctx context.Context, fn trigger.Function, inv trigger.Invocation) (trigger.Payload, error) {
	tick := inv.Tick
	if tick == nil {
		return trigger.Payload{}, fmt.Errorf("%w: missing tick", trigger.ErrNoPayload)
	}
	raw, err := json.Marshal(struct {
		Schedule    string    `json:"schedule,omitempty"`
		ScheduledAt time.Time `json:"scheduledAt"`
		PastDue     bool      `json:"pastDue"`
	}{tick.Schedule, tick.ScheduledAt.UTC(), tick.PastDue})
	if err != nil {
		return trigger.Payload{}, err
	}
	return trigger.Payload{Bytes: raw, ContentType: "application/json"}, nil
}
