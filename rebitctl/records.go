package main

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/animus-labs/rebit/internal/correlation"
	"github.com/spf13/cobra"
)

type recordOptions struct {
	*rootOptions
	Function      string
	CorrelationID string
}

func newRecordsCommand(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "records",
		Short: "Inspect captured records",
	}
	cmd.AddCommand(newRecordsListCommand(root))
	cmd.AddCommand(newRecordsFindCommand(root))
	cmd.AddCommand(newRecordsShowCommand(root))
	cmd.AddCommand(newRecordsDeleteCommand(root))
	return cmd
}

func (o *recordOptions) bind(cmd *cobra.Command, requireFunction bool) {
	cmd.Flags().StringVar(&o.Function, "function", "", "function name")
	cmd.Flags().StringVar(&o.CorrelationID, "correlation-id", "", "correlation id (required)")
	_ = cmd.MarkFlagRequired("correlation-id")
	if requireFunction {
		_ = cmd.MarkFlagRequired("function")
	}
}

type recordView struct {
	Key           string            `json:"key"`
	FunctionName  string            `json:"functionName"`
	CorrelationID string            `json:"correlationId"`
	Size          int64             `json:"size"`
	LastModified  time.Time         `json:"lastModified,omitzero"`
	ContentType   string            `json:"contentType,omitempty"`
	ResubmitCount int               `json:"resubmitCount"`
	Tags          map[string]string `json:"tags,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	Body          string            `json:"body,omitempty"`
}

func newRecordsListCommand(root *rootOptions) *cobra.Command {
	var function string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List captured records, optionally for one function",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := root.store(cmd.Context())
			if err != nil {
				return err
			}
			entries, err := st.List(cmd.Context(), function)
			if err != nil {
				return commandError("list records", err)
			}
			views := make([]recordView, 0, len(entries))
			for _, e := range entries {
				views = append(views, recordView{
					Key:           e.Location.Key(),
					FunctionName:  e.Location.FunctionName,
					CorrelationID: e.Location.CorrelationID,
					Size:          e.Size,
					LastModified:  e.LastModified,
				})
			}
			return root.print(cmd.OutOrStdout(), views, func(w io.Writer) {
				if len(views) == 0 {
					fmt.Fprintln(w, "No records found.")
					return
				}
				for _, v := range views {
					fmt.Fprintf(w, "%s\t%d bytes\t%s\n", v.Key, v.Size, v.LastModified.Format(time.RFC3339))
				}
			})
		},
	}
	cmd.Flags().StringVar(&function, "function", "", "function name")
	return cmd
}

func newRecordsFindCommand(root *rootOptions) *cobra.Command {
	opts := &recordOptions{rootOptions: root}
	cmd := &cobra.Command{
		Use:   "find",
		Short: "Locate the record of a correlation id",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := root.store(cmd.Context())
			if err != nil {
				return err
			}
			loc, err := st.FindByCorrelationID(cmd.Context(), opts.Function, opts.CorrelationID)
			if err != nil {
				return lookupError(err)
			}
			view := recordView{Key: loc.Key(), FunctionName: loc.FunctionName, CorrelationID: loc.CorrelationID}
			return root.print(cmd.OutOrStdout(), view, func(w io.Writer) {
				fmt.Fprintln(w, view.Key)
			})
		},
	}
	opts.bind(cmd, false)
	return cmd
}

func newRecordsShowCommand(root *rootOptions) *cobra.Command {
	opts := &recordOptions{rootOptions: root}
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print a captured record with its tags and payload",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := root.store(cmd.Context())
			if err != nil {
				return err
			}
			loc, err := st.FindByCorrelationID(cmd.Context(), opts.Function, opts.CorrelationID)
			if err != nil {
				return lookupError(err)
			}
			rec, err := st.Read(cmd.Context(), loc)
			if err != nil {
				return lookupError(err)
			}
			view := recordView{
				Key:           loc.Key(),
				FunctionName:  loc.FunctionName,
				CorrelationID: loc.CorrelationID,
				Size:          int64(len(rec.Bytes)),
				LastModified:  rec.LastModified,
				ContentType:   rec.ContentType,
				ResubmitCount: correlation.ResubmitCount(rec.Tags),
				Tags:          rec.Tags,
				Metadata:      rec.Metadata,
				Body:          string(rec.Bytes),
			}
			return root.print(cmd.OutOrStdout(), view, func(w io.Writer) {
				fmt.Fprintf(w, "key:       %s\n", view.Key)
				fmt.Fprintf(w, "size:      %d\n", view.Size)
				fmt.Fprintf(w, "resubmits: %d\n", view.ResubmitCount)
				for _, k := range sortedKeys(view.Tags) {
					fmt.Fprintf(w, "tag:       %s=%s\n", k, view.Tags[k])
				}
				for _, k := range sortedKeys(view.Metadata) {
					fmt.Fprintf(w, "meta:      %s=%s\n", k, view.Metadata[k])
				}
				fmt.Fprintf(w, "\n%s\n", view.Body)
			})
		},
	}
	opts.bind(cmd, false)
	return cmd
}

func newRecordsDeleteCommand(root *rootOptions) *cobra.Command {
	opts := &recordOptions{rootOptions: root}
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete the record of a correlation id",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := root.store(cmd.Context())
			if err != nil {
				return err
			}
			loc := correlation.Location{FunctionName: opts.Function, CorrelationID: strings.TrimSpace(opts.CorrelationID)}
			deleted, err := st.Delete(cmd.Context(), loc)
			if err != nil {
				return commandError("delete record", err)
			}
			if !deleted {
				return &exitError{code: exitFailure, msg: "no record for " + loc.Key()}
			}
			return root.print(cmd.OutOrStdout(), map[string]any{"deleted": loc.Key()}, func(w io.Writer) {
				fmt.Fprintf(w, "deleted %s\n", loc.Key())
			})
		},
	}
	opts.bind(cmd, true)
	return cmd
}

func lookupError(err error) error {
	if errors.Is(err, correlation.ErrNotFound) {
		return &exitError{code: exitFailure, msg: "record not found", err: err}
	}
	return commandError("lookup record", err)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
