package host

import (
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/animus-labs/rebit/internal/plugins"
	"github.com/animus-labs/rebit/internal/trigger"
)

// RoutePrefix is where HTTP functions are mounted.
const RoutePrefix = "/api/"

// Mount registers every HTTP function on mux under /api/<route>. Requests
// are captured and then proxied to the function's target.
func (h *Host) Mount(mux *http.ServeMux) error {
	seen := map[string]string{}
	for _, fn := range h.Catalog.OfKind(trigger.HTTP) {
		route := fn.Meta(plugins.MetaRoute)
		if route == "" {
			route = fn.Name
		}
		path := RoutePrefix + route
		if other, ok := seen[strings.ToLower(path)]; ok {
			return fmt.Errorf("route %s of %s already used by %s", path, fn.Name, other)
		}
		seen[strings.ToLower(path)] = fn.Name

		next, err := h.forward(fn)
		if err != nil {
			return fmt.Errorf("function %s: %w", fn.Name, err)
		}
		handler := h.Pipeline.Middleware(fn.Name, next)

		methods := plugins.SplitMethods(fn.Meta(plugins.MetaMethods))
		if len(methods) == 0 {
			mux.Handle(path, handler)
		}
		for _, m := range methods {
			mux.Handle(m+" "+path, handler)
		}
		h.logger().Info("http function mounted", "function", fn.Name, "path", path, "methods", methods)
	}
	return nil
}

func (h *Host) forward(fn trigger.Function) (http.Handler, error) {
	if strings.TrimSpace(fn.Target) == "" {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}), nil
	}
	upstream, err := url.Parse(fn.Target)
	if err != nil {
		return nil, err
	}
	if upstream.Scheme == "" || upstream.Host == "" {
		return nil, fmt.Errorf("invalid target url: %q", fn.Target)
	}

	logger := h.logger()
	proxy := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			out := *upstream
			out.RawQuery = pr.In.URL.RawQuery
			pr.Out.URL = &out
			pr.Out.Host = ""
			pr.SetXForwarded()
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			logger.Error("proxy error", "function", fn.Name, "request_id", r.Header.Get("X-Request-Id"), "error", err)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte("{\"error\":\"bad_gateway\"}\n"))
		},
	}
	return proxy, nil
}
