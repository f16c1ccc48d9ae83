package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/cuemby/coupe-sentinel/pkg/errs"
	"github.com/cuemby/coupe-sentinel/pkg/log"
	"github.com/cuemby/coupe-sentinel/pkg/metrics"
	"github.com/cuemby/coupe-sentinel/pkg/types"
)

// sessionStarter is the subset of *coordinator.FunctionCoordinator the
// gateway depends on.
type sessionStarter interface {
	StartSession(ctx context.Context, functionName string) (endsAt time.Time, coldstarted bool, err error)
}

// RequestGateway resolves an inbound request through a RouteTable,
// wakes the matched function, and streams the request to its
// container.
type RequestGateway struct {
	stack       *types.Stack
	routes      *RouteTable
	coordinator sessionStarter
}

// New builds a RequestGateway over stack's compiled routes and
// coordinator.
func New(stack *types.Stack, routes *RouteTable, coordinator sessionStarter) *RequestGateway {
	return &RequestGateway{stack: stack, routes: routes, coordinator: coordinator}
}

func (g *RequestGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	functionName, ok := g.routes.Resolve(r.Method, r.URL.Path)
	if !ok {
		http.NotFound(w, r)
		return
	}

	fn, ok := g.stack.Functions[functionName]
	if !ok {
		// RouteTable was built from this same stack; this would only
		// happen if the stack were swapped out from under the gateway.
		writeError(w, http.StatusInternalServerError, "route points at unknown function "+functionName)
		return
	}

	timer := metrics.NewTimer()

	if _, _, err := g.coordinator.StartSession(r.Context(), functionName); err != nil {
		status := http.StatusInternalServerError
		if kind, ok := errs.KindOf(err); ok && kind == errs.HealthcheckTimeout {
			status = http.StatusServiceUnavailable
		}
		metrics.ProxyRequestsTotal.WithLabelValues(functionName, statusLabel(status)).Inc()
		log.WithFunction(functionName).Error().Err(err).Msg("start_session failed")
		writeError(w, status, err.Error())
		return
	}

	target, err := url.Parse(types.InternalURL(g.stack.Name, functionName, fn.EffectiveHandlerPort()))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "invalid internal url: "+err.Error())
		return
	}

	proxy := httputil.NewSingleHostReverseProxy(target)
	originalDirector := proxy.Director
	proxy.Director = func(req *http.Request) {
		originalDirector(req)
		req.Host = r.Host
		req.Header.Set("X-Forwarded-For", r.RemoteAddr)
		req.Header.Set("X-Forwarded-Proto", "http")
		req.Header.Set("X-Forwarded-Host", r.Host)
	}
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		log.WithFunction(functionName).Error().Err(err).Msg("proxy error")
		metrics.ProxyRequestsTotal.WithLabelValues(functionName, statusLabel(http.StatusBadGateway)).Inc()
		writeError(w, http.StatusBadGateway, err.Error())
	}

	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	proxy.ServeHTTP(rec, r)
	timer.ObserveDurationVec(metrics.ProxyRequestDuration, functionName)
	metrics.ProxyRequestsTotal.WithLabelValues(functionName, statusLabel(rec.status)).Inc()
}

// statusRecorder captures the status code a reverse-proxied response
// was written with, so successful proxy calls can be labeled by their
// actual upstream status rather than assumed 200.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func statusLabel(status int) string {
	switch {
	case status < 300:
		return "2xx"
	case status < 400:
		return "3xx"
	case status < 500:
		return "4xx"
	default:
		return "5xx"
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
