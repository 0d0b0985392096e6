// Package plugins holds the trigger-kind plugins the host registers at
// startup.
package plugins

import (
	"errors"
	"net/http"
	"time"

	"github.com/animus-labs/rebit/internal/platform/env"
	"github.com/animus-labs/rebit/internal/queue"
	"github.com/animus-labs/rebit/internal/trigger"
)

var errNotConfigured = errors.New("plugin not configured")

// Deps carries the clients the plugins need. Missing clients make the
// affected plugin fail its Init, which drops only that kind.
type Deps struct {
	Objects    Objects
	Resolver   env.Resolver
	Queues     *queue.Factory
	HTTPClient *http.Client
}

// Default lists every built-in plugin in registration order.
func Default(d Deps) []trigger.Plugin {
	return []trigger.Plugin{
		&FilePlugin{Objects: d.Objects},
		&HTTPPlugin{Resolver: d.Resolver, Client: d.HTTPClient},
		&QueuePlugin{Resolver: d.Resolver, Queues: d.Queues},
		TimerPlugin{},
	}
}

const defaultHTTPTimeout = 30 * time.Second
