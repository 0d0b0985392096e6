package plugins

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/animus-labs/rebit/internal/platform/env"
	"github.com/animus-labs/rebit/internal/platform/httpserver"
	"github.com/animus-labs/rebit/internal/trigger"
)

// Replay marker headers set on re-sent requests.
const (
	ResubmitOfHeader    = "X-Rebit-Resubmit-Of"
	ResubmitCountHeader = "X-Rebit-Resubmit-Count"
)

const (
	MetaRoute   = "route"
	MetaMethods = "methods"

	// PublicURLName is the logical connection name of the host's own base URL.
	PublicURLName = "public-url"

	defaultMaxBody = 10 << 20
)

// Headers never stored with a snapshot or copied onto a replayed request.
var droppedHeaders = headerSet(
	"Authorization", "Cookie", "Proxy-Authorization",
	"Connection", "Content-Length", "Host", "Keep-Alive", "Te", "Trailer", "Transfer-Encoding", "Upgrade",
	"X-Request-Id",
	httpserver.CorrelationHeader, ResubmitOfHeader, ResubmitCountHeader,
)

func headerSet(names ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(names))
	for _, n := range names {
		out[http.CanonicalHeaderKey(n)] = struct{}{}
	}
	return out
}

// HTTPPlugin snapshots inbound requests and replays them against the host's
// own route.
type HTTPPlugin struct {
	Resolver env.Resolver
	Client   *http.Client
	MaxBody  int64
}

func (p *HTTPPlugin) Kind() trigger.Kind { return trigger.HTTP }

func (p *HTTPPlugin) BindingTypes() []string {
	return []string{"httpTrigger"}
}

func (p *HTTPPlugin) Describe(b trigger.Binding) (map[string]string, error) {
	methods := make([]string, 0, len(b.Methods))
	for _, m := range b.Methods {
		m = strings.ToUpper(strings.TrimSpace(m))
		if m == "" {
			continue
		}
		methods = append(methods, m)
	}
	return map[string]string{
		MetaRoute:   strings.Trim(strings.TrimSpace(b.Route), "/"),
		MetaMethods: strings.Join(methods, ","),
	}, nil
}

func (p *HTTPPlugin) Init(ctx context.Context) (trigger.Strategies, error) {
	if p.Resolver == nil {
		return trigger.Strategies{}, fmt.Errorf("%w: http plugin needs a connection resolver", errNotConfigured)
	}
	client := p.Client
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	maxBody := p.MaxBody
	if maxBody <= 0 {
		maxBody = defaultMaxBody
	}
	return trigger.Strategies{
		Capture: httpCapture{maxBody: maxBody},
		Replay:  httpReplay{resolver: p.Resolver, client: client},
	}, nil
}

// httpSnapshot is the stored form of a captured request.
type httpSnapshot struct {
	ID           string              `json:"id"`
	Method       string              `json:"method"`
	Path         string              `json:"path"`
	Query        string              `json:"query,omitempty"`
	Headers      map[string][]string `json:"headers,omitempty"`
	Body         []byte              `json:"body,omitempty"`
	TimestampUTC time.Time           `json:"timestampUtc"`
}

type httpCapture struct {
	maxBody int64
}

// Capture reads the request body and puts it back so the handler sees the
// same bytes.
func (c httpCapture) Capture(ctx context.Context, fn trigger.Function, inv trigger.Invocation) (trigger.Payload, error) {
	r := inv.Request
	if r == nil {
		return trigger.Payload{}, fmt.Errorf("%w: missing request", trigger.ErrNoPayload)
	}

	var body []byte
	if r.Body != nil && r.Body != http.NoBody {
		var err error
		body, err = io.ReadAll(io.LimitReader(r.Body, c.maxBody+1))
		r.Body = readCloser{Reader: io.MultiReader(bytes.NewReader(body), r.Body), Closer: r.Body}
		if err != nil {
			return trigger.Payload{}, fmt.Errorf("read request body: %w", err)
		}
		if int64(len(body)) > c.maxBody {
			return trigger.Payload{}, fmt.Errorf("request body exceeds %d bytes", c.maxBody)
		}
	}

	headers := make(map[string][]string, len(r.Header))
	for k, v := range r.Header {
		if _, drop := droppedHeaders[http.CanonicalHeaderKey(k)]; drop {
			continue
		}
		headers[k] = append([]string(nil), v...)
	}

	raw, err := json.Marshal(httpSnapshot{
		ID:           inv.ID,
		Method:       r.Method,
		Path:         r.URL.EscapedPath(),
		Query:        r.URL.RawQuery,
		Headers:      headers,
		Body:         body,
		TimestampUTC: time.Now().UTC(),
	})
	if err != nil {
		return trigger.Payload{}, err
	}
	return trigger.Payload{
		Bytes:         raw,
		ContentType:   "application/json",
		Metadata:      map[string]string{"method": r.Method, "path": r.URL.Path},
		CorrelationID: strings.TrimSpace(r.Header.Get(httpserver.CorrelationHeader)),
		ResubmitOf:    strings.TrimSpace(r.Header.Get(ResubmitOfHeader)),
	}, nil
}

// replayURL appends the captured escaped path to base, keeping escaped
// separators and reserved characters as they arrived.
func replayURL(base, escapedPath string) (*url.URL, error) {
	target, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil {
		return nil, err
	}
	decoded, err := url.PathUnescape(escapedPath)
	if err != nil {
		// snapshot holds an already decoded path
		target.Path += escapedPath
		target.RawPath = ""
		return target, nil
	}
	raw := target.EscapedPath() + escapedPath
	target.Path += decoded
	target.RawPath = raw
	return target, nil
}

type readCloser struct {
	io.Reader
	io.Closer
}

type httpReplay struct {
	resolver env.Resolver
	client   *http.Client
}

// Replay re-sends the captured request to the host. Any failure to get a
// 2xx answer is a transport failure.
func (r httpReplay) Replay(ctx context.Context, fn trigger.Function, in trigger.ReplayInput) (trigger.Delivery, error) {
	var snap httpSnapshot
	if err := json.Unmarshal(in.Original.Bytes, &snap); err != nil {
		return trigger.Delivery{}, fmt.Errorf("decode captured request: %w", err)
	}
	base, err := env.Require(r.resolver, PublicURLName)
	if err != nil {
		return trigger.Delivery{}, err
	}
	target, err := replayURL(base, snap.Path)
	if err != nil {
		return trigger.Delivery{}, fmt.Errorf("build replay url: %w", err)
	}
	target.RawQuery = snap.Query

	method := snap.Method
	if method == "" {
		method = http.MethodGet
	}
	req, err := http.NewRequestWithContext(ctx, method, target.String(), bytes.NewReader(snap.Body))
	if err != nil {
		return trigger.Delivery{}, fmt.Errorf("build replay request: %w", err)
	}
	for k, v := range snap.Headers {
		if _, drop := droppedHeaders[http.CanonicalHeaderKey(k)]; drop {
			continue
		}
		req.Header[http.CanonicalHeaderKey(k)] = append([]string(nil), v...)
	}
	req.Header.Set(httpserver.CorrelationHeader, in.CorrelationID)
	req.Header.Set(ResubmitOfHeader, in.Original.Location.CorrelationID)
	req.Header.Set(ResubmitCountHeader, strconv.Itoa(in.ResubmitCount))

	resp, err := r.client.Do(req)
	if err != nil {
		return trigger.Delivery{}, fmt.Errorf("%w: %s %s: %w", trigger.ErrTransport, method, snap.Path, err)
	}
	defer resp.Body.Close()
	excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	_, _ = io.Copy(io.Discard, resp.Body)

	delivery := trigger.Delivery{Target: method + " " + snap.Path, Status: resp.StatusCode}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := strings.TrimSpace(string(excerpt))
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return delivery, fmt.Errorf("%w: %s %s returned %d: %s", trigger.ErrTransport, method, snap.Path, resp.StatusCode, msg)
	}
	return delivery, nil
}

// SplitMethods parses the methods metadata written by Describe.
func SplitMethods(raw string) []string {
	var out []string
	for _, m := range strings.Split(raw, ",") {
		if m = strings.TrimSpace(m); m != "" {
			out = append(out, m)
		}
	}
	return out
}
