package correlation

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

const DefaultRetention = 4 * 24 * time.Hour

type SweepReport struct {
	Scanned int `json:"scanned"`
	Deleted int `json:"deleted"`
	Failed  int `json:"failed"`
}

// Sweeper removes records older than Retention, including orphans left by
// interrupted captures.
type Sweeper struct {
	Store     Store
	Retention time.Duration
	Logger    *slog.Logger
	Now       func() time.Time
}

func (s Sweeper) Sweep(ctx context.Context) (SweepReport, error) {
	if s.Store == nil {
		return SweepReport{}, errors.New("store is required")
	}
	retention := s.Retention
	if retention <= 0 {
		retention = DefaultRetention
	}
	now := time.Now().UTC()
	if s.Now != nil {
		now = s.Now()
	}
	cutoff := now.Add(-retention)

	entries, err := s.Store.List(ctx, "")
	if err != nil {
		return SweepReport{}, err
	}

	var report SweepReport
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Scanned++
		if !entry.LastModified.Before(cutoff) {
			continue
		}
		if _, err := s.Store.Delete(ctx, entry.Location); err != nil {
			report.Failed++
			if s.Logger != nil {
				s.Logger.Warn("sweep delete failed", "location", entry.Location.Key(), "error", err)
			}
			continue
		}
		report.Deleted++
	}

	if s.Logger != nil {
		s.Logger.Info("sweep finished",
			"scanned", report.Scanned,
			"deleted", report.Deleted,
			"failed", report.Failed,
			"cutoff", cutoff.Format(time.RFC3339),
		)
	}
	return report, nil
}

// Run sweeps once per interval until ctx is done.
func (s Sweeper) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil && s.Logger != nil {
				s.Logger.Warn("sweep failed", "error", err)
			}
		}
	}
}
