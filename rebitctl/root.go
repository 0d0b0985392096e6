package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/animus-labs/rebit/internal/correlation"
	"github.com/animus-labs/rebit/internal/platform/objectstore"
	"github.com/spf13/cobra"
)

const (
	exitFailure      = 1
	exitCommandError = 2
)

var validFormats = []string{"text", "json"}

// exitError carries the process exit code of a failed command.
type exitError struct {
	code int
	msg  string
	err  error
}

func (e *exitError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.err)
	}
	return e.msg
}

func (e *exitError) Unwrap() error { return e.err }

func commandError(msg string, err error) error {
	return &exitError{code: exitCommandError, msg: msg, err: err}
}

func exitCode(err error) int {
	var e *exitError
	if errors.As(err, &e) {
		return e.code
	}
	// cobra flag and argument errors
	return exitCommandError
}

// StoreOpener builds the correlation store the record commands work on.
type StoreOpener func(ctx context.Context) (correlation.Store, error)

type rootOptions struct {
	Format    string
	openStore StoreOpener
}

func newRootCommand(openStore StoreOpener) *cobra.Command {
	if openStore == nil {
		openStore = storeFromEnv
	}
	opts := &rootOptions{openStore: openStore}

	cmd := &cobra.Command{
		Use:   "rebitctl",
		Short: "Operate the rebit record-and-replay service",
		Long:  "Resubmit captured invocations, inspect captured records and run the retention sweep.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(validFormats, opts.Format) {
				return commandError(fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, validFormats), nil)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(newResubmitCommand(opts))
	cmd.AddCommand(newRecordsCommand(opts))
	cmd.AddCommand(newSweepCommand(opts))
	return cmd
}

func storeFromEnv(ctx context.Context) (correlation.Store, error) {
	cfg, err := objectstore.ConfigFromEnv()
	if err != nil {
		return nil, err
	}
	client, err := objectstore.NewMinIOClient(cfg)
	if err != nil {
		return nil, err
	}
	st, err := correlation.NewMinioStore(client, cfg.BucketCorrelation)
	if err != nil {
		return nil, err
	}
	return st, nil
}

func (o *rootOptions) store(ctx context.Context) (correlation.Store, error) {
	st, err := o.openStore(ctx)
	if err != nil {
		return nil, commandError("open correlation store", err)
	}
	return st, nil
}

// print writes v as indented JSON, or calls text for the text format.
func (o *rootOptions) print(w io.Writer, v any, text func(io.Writer)) error {
	if o.Format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(w)
	return nil
}
