package host

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/animus-labs/rebit/internal/platform/env"
	"github.com/animus-labs/rebit/internal/plugins"
	"github.com/animus-labs/rebit/internal/queue"
	"github.com/animus-labs/rebit/internal/trigger"
	"github.com/google/uuid"
	"github.com/minio/minio-go/v7/pkg/notification"
)

// Notifier is the bucket notification part of *minio.Client.
type Notifier interface {
	ListenBucketNotification(ctx context.Context, bucketName, prefix, suffix string, events []string) <-chan notification.Info
}

const retryDelay = 2 * time.Second

// listenFiles dispatches an invocation for every object created under the
// function's container and prefix. The listener is reopened when the
// stream ends before ctx does.
func (h *Host) listenFiles(ctx context.Context, fn trigger.Function) {
	container := fn.Meta(plugins.MetaContainer)
	prefix := fn.Meta(plugins.MetaPrefix)
	logger := h.logger().With("function", fn.Name, "container", container)

	for ctx.Err() == nil {
		events := h.Notifier.ListenBucketNotification(ctx, container, prefix, "", []string{string(notification.ObjectCreatedAll)})
		for info := range events {
			if info.Err != nil {
				logger.Warn("bucket notification failed", "error", info.Err)
				continue
			}
			for _, rec := range info.Records {
				key, err := url.QueryUnescape(rec.S3.Object.Key)
				if err != nil {
					logger.Warn("bad object key in notification", "key", rec.S3.Object.Key, "error", err)
					continue
				}
				bucket := rec.S3.Bucket.Name
				if bucket == "" {
					bucket = container
				}
				h.Dispatch(ctx, fn, trigger.Invocation{
					ID:           uuid.NewString(),
					FunctionName: fn.Name,
					Object: &trigger.ObjectEvent{
						Container: bucket,
						Key:       key,
						Size:      rec.S3.Object.Size,
						ETag:      rec.S3.Object.ETag,
					},
				})
			}
		}
		if !sleepCtx(ctx, retryDelay) {
			return
		}
	}
}

// consume polls the function's queue until ctx ends.
func (h *Host) consume(ctx context.Context, fn trigger.Function) {
	name := fn.Meta(plugins.MetaQueue)
	logger := h.logger().With("function", fn.Name, "queue", name)

	conn := fn.Meta(plugins.MetaConnection)
	if conn == "" {
		conn = plugins.DefaultQueueConnection
	}
	dsn, err := env.Require(h.Resolver, conn)
	if err != nil {
		logger.Error("queue consumer disabled", "error", err)
		return
	}
	q, err := h.Queues.Get(dsn)
	if err != nil {
		logger.Error("queue consumer disabled", "error", err)
		return
	}

	for ctx.Err() == nil {
		msg, ok, err := q.Dequeue(ctx, name, h.pollWait())
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, queue.ErrClosed) {
				return
			}
			logger.Warn("dequeue failed", "error", err)
			if !sleepCtx(ctx, retryDelay) {
				return
			}
			continue
		}
		if !ok {
			continue
		}
		h.Dispatch(ctx, fn, trigger.Invocation{
			ID:           msg.ID,
			FunctionName: fn.Name,
			Message: &trigger.Message{
				ID:         msg.ID,
				Queue:      name,
				Body:       msg.Body,
				Attributes: msg.Attributes,
				EnqueuedAt: msg.EnqueuedAt,
			},
		})
	}
}

// tick runs an interval schedule such as "5m". Other schedule formats are
// not supported and leave the function idle.
func (h *Host) tick(ctx context.Context, fn trigger.Function) {
	schedule := fn.Meta(plugins.MetaSchedule)
	interval, err := time.ParseDuration(schedule)
	if err != nil || interval <= 0 {
		h.logger().Warn("unsupported timer schedule", "function", fn.Name, "schedule", schedule)
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case at := <-ticker.C:
			h.Dispatch(ctx, fn, trigger.Invocation{
				ID:           uuid.NewString(),
				FunctionName: fn.Name,
				Tick: &trigger.Tick{
					Schedule:    schedule,
					ScheduledAt: at.UTC(),
					PastDue:     time.Since(at) > interval,
				},
			})
		}
	}
}
