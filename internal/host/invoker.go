package host

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/animus-labs/rebit/internal/trigger"
)

var ErrNoTarget = errors.New("function has no handler target")

// Event is the JSON body posted to file, queue and timer handlers.
type Event struct {
	InvocationID string               `json:"invocationId"`
	FunctionName string               `json:"functionName"`
	Kind         trigger.Kind         `json:"kind"`
	Object       *trigger.ObjectEvent `json:"object,omitempty"`
	Message      *trigger.Message     `json:"message,omitempty"`
	Tick         *trigger.Tick        `json:"tick,omitempty"`
}

// Invoker posts events to function handler endpoints.
type Invoker struct {
	Client *http.Client
}

func (i *Invoker) Invoke(ctx context.Context, fn trigger.Function, inv trigger.Invocation) error {
	target := strings.TrimSpace(fn.Target)
	if target == "" {
		return fmt.Errorf("%w: %s", ErrNoTarget, fn.Name)
	}
	body, err := json.Marshal(Event{
		InvocationID: inv.ID,
		FunctionName: fn.Name,
		Kind:         fn.Kind,
		Object:       inv.Object,
		Message:      inv.Message,
		Tick:         inv.Tick,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	client := i.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("handler %s returned %d", fn.Name, resp.StatusCode)
	}
	return nil
}
