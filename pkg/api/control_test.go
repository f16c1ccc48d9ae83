package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/coupe-sentinel/pkg/errs"
	"github.com/cuemby/coupe-sentinel/pkg/types"
)

type fakeStore struct {
	sessions []*types.Session
	iterErr  error
}

func (s *fakeStore) ExtendOrCreate(functionName string, candidateEndsAtNs int64) (int64, error) {
	return candidateEndsAtNs, nil
}
func (s *fakeStore) Get(functionName string) (*types.Session, error) { return nil, nil }
func (s *fakeStore) Delete(functionName string) error                { return nil }
func (s *fakeStore) Iter() ([]*types.Session, error) {
	if s.iterErr != nil {
		return nil, s.iterErr
	}
	return s.sessions, nil
}
func (s *fakeStore) Close() error { return nil }

type fakeStarter struct {
	err error
}

func (f *fakeStarter) StartSession(ctx context.Context, functionName string) (time.Time, bool, error) {
	if f.err != nil {
		return time.Time{}, false, f.err
	}
	return time.Now().Add(30 * time.Second), false, nil
}

func demoStack() *types.Stack {
	return &types.Stack{
		Name: "demo",
		Sentinel: types.SentinelConfig{
			Port: 8080,
		},
		Functions: map[string]*types.Function{
			"echo": {
				Name:        "echo",
				Image:       "registry.example/echo:latest",
				HandlerPort: 9000,
				Trigger:     types.Trigger{Type: types.TriggerHTTP, Http: &types.HttpTrigger{Path: "/echo", Method: types.MethodGet}},
			},
		},
	}
}

func TestHealth_ReturnsRunningTrue(t *testing.T) {
	api := New(demoStack(), &fakeStore{}, &fakeStarter{})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	api.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]bool
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	require.True(t, body["running"])
}

func TestSessions_ListsCurrentLeases(t *testing.T) {
	now := time.Now()
	store := &fakeStore{sessions: []*types.Session{
		{FunctionName: "echo", EndsAtNs: now.Add(30 * time.Second).UnixNano()},
	}}
	api := New(demoStack(), store, &fakeStarter{})

	req := httptest.NewRequest(http.MethodGet, "/system/sessions", nil)
	w := httptest.NewRecorder()
	api.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var views []sessionView
	require.NoError(t, json.NewDecoder(w.Body).Decode(&views))
	require.Len(t, views, 1)
	require.Equal(t, "echo", views[0].FunctionName)
	require.NotEmpty(t, views[0].EndsAt)
}

func TestSessions_StoreErrorMapsToHTTPStatus(t *testing.T) {
	store := &fakeStore{iterErr: errs.New(errs.StoreError, "db closed")}
	api := New(demoStack(), store, &fakeStarter{})

	req := httptest.NewRequest(http.MethodGet, "/system/sessions", nil)
	w := httptest.NewRecorder()
	api.ServeHTTP(w, req)

	require.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestConfig_ReturnsCompiledStack(t *testing.T) {
	api := New(demoStack(), &fakeStore{}, &fakeStarter{})

	req := httptest.NewRequest(http.MethodGet, "/system/config", nil)
	w := httptest.NewRecorder()
	api.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var view configView
	require.NoError(t, json.NewDecoder(w.Body).Decode(&view))
	require.Equal(t, "demo", view.Name)
	fn, ok := view.Functions["echo"]
	require.True(t, ok, "expected echo function in config view")
	require.Equal(t, "/echo", fn.Trigger.Path)
	require.Equal(t, "GET", fn.Trigger.Method)
}

func TestStartFunction_Success(t *testing.T) {
	api := New(demoStack(), &fakeStore{}, &fakeStarter{})

	body := strings.NewReader(`{"function_name": "echo"}`)
	req := httptest.NewRequest(http.MethodPost, "/system/functions/start", body)
	w := httptest.NewRecorder()
	api.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
}

func TestStartFunction_MissingNameIsBadRequest(t *testing.T) {
	api := New(demoStack(), &fakeStore{}, &fakeStarter{})

	body := strings.NewReader(`{}`)
	req := httptest.NewRequest(http.MethodPost, "/system/functions/start", body)
	w := httptest.NewRecorder()
	api.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStartFunction_UnknownFunctionMaps404(t *testing.T) {
	starter := &fakeStarter{err: errs.New(errs.NotFound, "function missing not found in stack demo")}
	api := New(demoStack(), &fakeStore{}, starter)

	body := strings.NewReader(`{"function_name": "missing"}`)
	req := httptest.NewRequest(http.MethodPost, "/system/functions/start", body)
	w := httptest.NewRecorder()
	api.ServeHTTP(w, req)

	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestMetrics_IsMounted(t *testing.T) {
	api := New(demoStack(), &fakeStore{}, &fakeStarter{})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	api.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
}

func TestLive_IsMounted(t *testing.T) {
	api := New(demoStack(), &fakeStore{}, &fakeStarter{})

	req := httptest.NewRequest(http.MethodGet, "/live", nil)
	w := httptest.NewRecorder()
	api.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	require.Equal(t, "alive", body["status"])
}
