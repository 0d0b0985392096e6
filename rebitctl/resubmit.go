package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/animus-labs/rebit/internal/platform/env"
	"github.com/animus-labs/rebit/internal/replay"
	"github.com/spf13/cobra"
	"golang.org/x/oauth2/clientcredentials"
)

type resubmitOptions struct {
	*rootOptions
	Function      string
	CorrelationID string
	URL           string
	Method        string
	Timeout       time.Duration

	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
}

func newResubmitCommand(root *rootOptions) *cobra.Command {
	opts := &resubmitOptions{rootOptions: root}

	cmd := &cobra.Command{
		Use:   "resubmit",
		Short: "Replay a captured invocation",
		Long: `Ask the service to replay the invocation captured under a correlation id.

Exit codes:
  0 - replayed
  1 - the service reported a failed replay
  2 - command error (bad flags, service unreachable)

Examples:
  rebitctl resubmit --function TransferCats --correlation-id abc-123
  rebitctl resubmit --function GetCats --correlation-id abc-123 --format json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResubmit(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Function, "function", "", "function name (required)")
	cmd.Flags().StringVar(&opts.CorrelationID, "correlation-id", "", "correlation id of the captured invocation (required)")
	_ = cmd.MarkFlagRequired("function")
	_ = cmd.MarkFlagRequired("correlation-id")
	cmd.Flags().StringVar(&opts.URL, "url", env.String("REBIT_URL", "http://localhost:8080"), "service base url")
	cmd.Flags().StringVar(&opts.Method, "method", http.MethodPost, "http method (GET|POST)")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 2*time.Minute, "request timeout")
	cmd.Flags().StringVar(&opts.TokenURL, "token-url", env.String("REBIT_TOKEN_URL", ""), "oauth2 token endpoint for client credentials")
	cmd.Flags().StringVar(&opts.ClientID, "client-id", env.String("REBIT_CLIENT_ID", ""), "oauth2 client id")
	cmd.Flags().StringVar(&opts.ClientSecret, "client-secret", env.String("REBIT_CLIENT_SECRET", ""), "oauth2 client secret")
	cmd.Flags().StringSliceVar(&opts.Scopes, "scope", nil, "oauth2 scopes")
	return cmd
}

func runResubmit(cmd *cobra.Command, opts *resubmitOptions) error {
	method := strings.ToUpper(strings.TrimSpace(opts.Method))
	if method != http.MethodGet && method != http.MethodPost {
		return commandError(fmt.Sprintf("invalid method %q: must be GET or POST", opts.Method), nil)
	}
	endpoint, err := url.Parse(strings.TrimRight(opts.URL, "/") + "/resubmit")
	if err != nil {
		return commandError("invalid url", err)
	}
	q := endpoint.Query()
	q.Set("functionName", opts.Function)
	q.Set("correlationId", opts.CorrelationID)
	endpoint.RawQuery = q.Encode()

	ctx, cancel := context.WithTimeout(cmd.Context(), opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), nil)
	if err != nil {
		return commandError("build request", err)
	}
	req.Header.Set("User-Agent", "rebitctl")

	resp, err := opts.client(ctx).Do(req)
	if err != nil {
		return commandError("call resubmit", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return commandError("read response", err)
	}

	var res replay.Result
	if err := json.Unmarshal(body, &res); err != nil {
		return commandError(fmt.Sprintf("unexpected response (%d)", resp.StatusCode), err)
	}
	res.Status = resp.StatusCode

	err = opts.print(cmd.OutOrStdout(), res, func(w io.Writer) {
		if res.IsSuccess {
			fmt.Fprintf(w, "ok: %s\n", res.Message)
			return
		}
		kind := string(res.ErrorKind)
		if res.ErrorKind == replay.ErrorKindNone || kind == "" {
			kind = http.StatusText(res.Status)
		}
		fmt.Fprintf(w, "failed (%d %s): %s\n", res.Status, kind, res.Message)
	})
	if err != nil {
		return err
	}
	if !res.IsSuccess {
		return &exitError{code: exitFailure, msg: "resubmit failed"}
	}
	return nil
}

// client returns an oauth2 client when client credentials are configured.
func (o *resubmitOptions) client(ctx context.Context) *http.Client {
	if strings.TrimSpace(o.TokenURL) == "" {
		return http.DefaultClient
	}
	cc := clientcredentials.Config{
		ClientID:     o.ClientID,
		ClientSecret: o.ClientSecret,
		TokenURL:     o.TokenURL,
		Scopes:       o.Scopes,
	}
	return cc.Client(ctx)
}
