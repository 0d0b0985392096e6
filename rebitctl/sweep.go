package main

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/animus-labs/rebit/internal/correlation"
	"github.com/spf13/cobra"
)

func newSweepCommand(root *rootOptions) *cobra.Command {
	var retention time.Duration
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Delete captured records older than the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			if retention <= 0 {
				return commandError("retention must be positive", nil)
			}
			st, err := root.store(cmd.Context())
			if err != nil {
				return err
			}
			sweeper := correlation.Sweeper{
				Store:     st,
				Retention: retention,
				Logger:    slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), nil)),
			}
			report, err := sweeper.Sweep(cmd.Context())
			if err != nil {
				return commandError("sweep", err)
			}
			if perr := root.print(cmd.OutOrStdout(), report, func(w io.Writer) {
				fmt.Fprintf(w, "scanned %d, deleted %d, failed %d\n", report.Scanned, report.Deleted, report.Failed)
			}); perr != nil {
				return perr
			}
			if report.Failed > 0 {
				return &exitError{code: exitFailure, msg: fmt.Sprintf("%d records could not be deleted", report.Failed)}
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&retention, "retention", correlation.DefaultRetention, "delete records older than this")
	return cmd
}
