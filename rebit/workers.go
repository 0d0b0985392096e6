package main

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// workers tracks the host listeners and the retention sweeper so main can
// wait for them before closing the queue factory and the audit database.
type workers struct {
	logger *slog.Logger
	wg     sync.WaitGroup
}

func (w *workers) Go(ctx context.Context, name string, run func(context.Context) error) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) && w.logger != nil {
			w.logger.Error("background worker stopped", "worker", name, "error", err)
		}
	}()
}

// Wait reports whether every worker returned within timeout.
func (w *workers) Wait(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}
