// Package host turns trigger sources into invocations, captures them and
// forwards them to the function handlers.
package host

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/animus-labs/rebit/internal/capture"
	"github.com/animus-labs/rebit/internal/platform/env"
	"github.com/animus-labs/rebit/internal/queue"
	"github.com/animus-labs/rebit/internal/trigger"
)

const defaultPollWait = 5 * time.Second

type Host struct {
	Catalog  *trigger.Catalog
	Pipeline *capture.Pipeline
	Invoker  *Invoker
	Logger   *slog.Logger

	// Notifier feeds File functions. Nil disables them.
	Notifier Notifier
	Resolver env.Resolver
	Queues   *queue.Factory
	PollWait time.Duration
}

// Run starts one source per non-HTTP function and blocks until ctx ends
// and every source has stopped.
func (h *Host) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	start := func(fn trigger.Function, run func(context.Context, trigger.Function)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			run(ctx, fn)
		}()
	}

	for _, fn := range h.Catalog.OfKind(trigger.File) {
		if h.Notifier == nil {
			h.logger().Warn("file function has no notification source", "function", fn.Name)
			continue
		}
		start(fn, h.listenFiles)
	}
	for _, fn := range h.Catalog.OfKind(trigger.Queue) {
		start(fn, h.consume)
	}
	for _, fn := range h.Catalog.OfKind(trigger.Timer) {
		start(fn, h.tick)
	}

	<-ctx.Done()
	wg.Wait()
	return nil
}

// Dispatch captures inv and then forwards it to the function's handler.
func (h *Host) Dispatch(ctx context.Context, fn trigger.Function, inv trigger.Invocation) {
	err := h.Pipeline.Run(ctx, inv, func(ctx context.Context) error {
		return h.Invoker.Invoke(ctx, fn, inv)
	})
	if err != nil {
		h.logger().Error("invocation failed", "function", fn.Name, "invocation_id", inv.ID, "error", err)
	}
}

func (h *Host) logger() *slog.Logger {
	if h.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return h.Logger
}

func (h *Host) pollWait() time.Duration {
	if h.PollWait <= 0 {
		return defaultPollWait
	}
	return h.PollWait
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
