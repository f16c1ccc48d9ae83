package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/cuemby/coupe-sentinel/pkg/errs"
	"github.com/cuemby/coupe-sentinel/pkg/log"
	"github.com/cuemby/coupe-sentinel/pkg/metrics"
	"github.com/cuemby/coupe-sentinel/pkg/storage"
	"github.com/cuemby/coupe-sentinel/pkg/types"
)

// ControlAPI serves the endpoints that sit outside a stack's function
// router: liveness, session introspection, the compiled config, and a
// manual wake. It is mounted on its own http.ServeMux and consulted
// before the RequestGateway, so a stack's "*" wildcard route never
// shadows it.
type ControlAPI struct {
	stack       *types.Stack
	store       storage.SessionStore
	coordinator starter
	mux         *http.ServeMux
}

// starter avoids importing pkg/coordinator directly, keeping pkg/api
// dependent only on the narrow surface it actually calls.
type starter interface {
	StartSession(ctx context.Context, functionName string) (endsAt time.Time, coldstarted bool, err error)
}

// New builds a ControlAPI over stack, store and coordinator, registering
// every handler on its own mux.
func New(stack *types.Stack, store storage.SessionStore, coordinator starter) *ControlAPI {
	api := &ControlAPI{stack: stack, store: store, coordinator: coordinator, mux: http.NewServeMux()}
	api.mux.HandleFunc("GET /health", api.handleHealth)
	api.mux.HandleFunc("GET /system/sessions", api.handleSessions)
	api.mux.HandleFunc("GET /system/config", api.handleConfig)
	api.mux.HandleFunc("POST /system/functions/start", api.handleStartFunction)
	api.mux.Handle("GET /metrics", metrics.Handler())
	api.mux.Handle("GET /live", metrics.LivenessHandler())
	return api
}

// ServeHTTP implements http.Handler, tagging every request with a
// request ID and recording Control API request metrics by path/status.
func (a *ControlAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-Id")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	w.Header().Set("X-Request-Id", requestID)

	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	a.mux.ServeHTTP(rec, r)
	metrics.ControlAPIRequestsTotal.WithLabelValues(r.URL.Path, statusLabel(rec.status)).Inc()
}

func (a *ControlAPI) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"running": true})
}

type sessionView struct {
	FunctionName string `json:"function_name"`
	EndsAt       string `json:"ends_at"`
}

func (a *ControlAPI) handleSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := a.store.Iter()
	if err != nil {
		log.WithComponent("api").Error().Err(err).Msg("list sessions failed")
		writeError(w, errs.HTTPStatus(err), err.Error())
		return
	}
	views := make([]sessionView, 0, len(sessions))
	for _, session := range sessions {
		views = append(views, sessionView{
			FunctionName: session.FunctionName,
			EndsAt:       session.EndsAt().Format(time.RFC3339Nano),
		})
	}
	writeJSON(w, http.StatusOK, views)
}

func (a *ControlAPI) handleConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toConfigView(a.stack))
}

// configView mirrors types.Stack with JSON tags matching coupe.yaml's own
// field names, so /system/config reads like the source file rather than
// exposing Go's exported-field casing.
type configView struct {
	Name      string                  `json:"name"`
	Sentinel  sentinelView            `json:"sentinel"`
	Functions map[string]functionView `json:"functions"`
}

type sentinelView struct {
	Port         int           `json:"port"`
	Registry     *registryView `json:"registry,omitempty"`
	OtelEndpoint string        `json:"otel_endpoint,omitempty"`
}

type registryView struct {
	URL       string `json:"url"`
	Namespace string `json:"namespace"`
}

type functionView struct {
	Image       string       `json:"image"`
	Trigger     triggerView  `json:"trigger"`
	Scaling     *scalingView `json:"scaling,omitempty"`
	HandlerPort int          `json:"handler_port"`
}

type triggerView struct {
	Type   string          `json:"type"`
	Path   string          `json:"path,omitempty"`
	Method string          `json:"method,omitempty"`
	Schema json.RawMessage `json:"schema,omitempty"`
	Auth   json.RawMessage `json:"auth,omitempty"`
	Queue  map[string]any  `json:"queue,omitempty"`
	Stream map[string]any  `json:"stream,omitempty"`
	Timer  map[string]any  `json:"timer,omitempty"`
}

type scalingView struct {
	SessionDurationSeconds int `json:"session_duration"`
	HealthCheckIntervalMs  int `json:"health_check_interval"`
}

func toConfigView(stack *types.Stack) configView {
	view := configView{
		Name:      stack.Name,
		Sentinel:  sentinelView{Port: stack.Sentinel.Port, OtelEndpoint: stack.Sentinel.OtelEndpoint},
		Functions: make(map[string]functionView, len(stack.Functions)),
	}
	if stack.Sentinel.Registry != nil {
		view.Sentinel.Registry = &registryView{
			URL:       stack.Sentinel.Registry.URL,
			Namespace: stack.Sentinel.Registry.Namespace,
		}
	}
	for name, fn := range stack.Functions {
		fv := functionView{
			Image:       fn.Image,
			HandlerPort: fn.HandlerPort,
			Trigger:     triggerView{Type: string(fn.Trigger.Type)},
		}
		if fn.Trigger.Http != nil {
			fv.Trigger.Path = fn.Trigger.Http.Path
			fv.Trigger.Method = string(fn.Trigger.Http.EffectiveMethod())
			fv.Trigger.Schema = fn.Trigger.Http.Schema
			fv.Trigger.Auth = fn.Trigger.Http.Auth
		}
		fv.Trigger.Queue = fn.Trigger.Queue
		fv.Trigger.Stream = fn.Trigger.Stream
		fv.Trigger.Timer = fn.Trigger.Timer
		if fn.Scaling != nil {
			fv.Scaling = &scalingView{
				SessionDurationSeconds: fn.Scaling.SessionDurationSeconds,
				HealthCheckIntervalMs:  fn.Scaling.HealthCheckIntervalMs,
			}
		}
		view.Functions[name] = fv
	}
	return view
}

type startRequest struct {
	FunctionName string `json:"function_name"`
}

func (a *ControlAPI) handleStartFunction(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.FunctionName == "" {
		writeError(w, http.StatusBadRequest, "function_name is required")
		return
	}

	_, _, err := a.coordinator.StartSession(r.Context(), req.FunctionName)
	if err != nil {
		log.WithFunction(req.FunctionName).Error().Err(err).Msg("manual start_session failed")
		writeError(w, errs.HTTPStatusControlPath(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"started": true})
}

const rfc3339 = "2006-01-02T15:04:05.999999999Z07:00"

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

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
