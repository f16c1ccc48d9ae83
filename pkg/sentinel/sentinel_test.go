package sentinel

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cuemby/coupe-sentinel/pkg/storage"
	"github.com/cuemby/coupe-sentinel/pkg/types"
)

type fakeDriver struct {
	status types.ContainerStatus
}

func (d *fakeDriver) Inspect(ctx context.Context, containerName string) (types.ContainerStatus, error) {
	return d.status, nil
}
func (d *fakeDriver) Start(ctx context.Context, containerName string) error  { return nil }
func (d *fakeDriver) Unpause(ctx context.Context, containerName string) error { return nil }
func (d *fakeDriver) Stop(ctx context.Context, containerName string, timeout time.Duration) error {
	return nil
}
func (d *fakeDriver) CreateNetwork(ctx context.Context, networkName string) error { return nil }
func (d *fakeDriver) RemoveNetwork(ctx context.Context, networkName string) error { return nil }
func (d *fakeDriver) CreateFunctionContainer(ctx context.Context, containerName, image, networkName string, handlerPort int) error {
	return nil
}
func (d *fakeDriver) RemoveFunctionContainer(ctx context.Context, containerName string) error {
	return nil
}
func (d *fakeDriver) Close() error { return nil }

func demoStack() *types.Stack {
	return &types.Stack{
		Name: "demo",
		Functions: map[string]*types.Function{
			"default": {
				Name:        "default",
				Image:       "registry.example/default:latest",
				HandlerPort: 9000,
				Trigger:     types.Trigger{Type: types.TriggerHTTP, Http: &types.HttpTrigger{Path: types.WildcardPath, Method: types.MethodAny}},
			},
		},
	}
}

func openStore(t *testing.T) storage.SessionStore {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewBoltStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestIsControlPath(t *testing.T) {
	cases := map[string]bool{
		"/health":                 true,
		"/metrics":                true,
		"/live":                   true,
		"/system/sessions":        true,
		"/system/config":          true,
		"/system/functions/start": true,
		"/":                       false,
		"/echo":                   false,
		"/systemic":               false,
	}
	for path, want := range cases {
		if got := isControlPath(path); got != want {
			t.Errorf("isControlPath(%q) = %v, want %v", path, got, want)
		}
	}
}

func TestNew_ControlPathTakesPrecedenceOverWildcardRoute(t *testing.T) {
	store := openStore(t)
	s, err := New(Config{
		Stack:  demoStack(),
		Store:  store,
		Driver: &fakeDriver{status: types.StatusRunning},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	s.server.Handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("GET /health status = %d, want 200", w.Code)
	}
	var body map[string]bool
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body["running"] {
		t.Error(`expected {"running": true} even though a "*" route claims every other path`)
	}
}

func TestNew_UnmatchedControlPathFallsThroughToGateway(t *testing.T) {
	store := openStore(t)
	// StatusEmpty makes EnsureRunning fail fast with NotFound, so the
	// gateway never attempts a real proxy dial to an unresolvable
	// container hostname.
	s, err := New(Config{
		Stack:  demoStack(),
		Store:  store,
		Driver: &fakeDriver{status: types.StatusEmpty},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/anything", nil)
	w := httptest.NewRecorder()
	s.server.Handler.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500 (gateway routed the wildcard, coordinator reported NotFound)", w.Code)
	}
}

func TestStartShutdown_GracefulLifecycle(t *testing.T) {
	store := openStore(t)
	s, err := New(Config{
		Stack:      demoStack(),
		Store:      store,
		Driver:     &fakeDriver{status: types.StatusRunning},
		ListenAddr: "127.0.0.1:0",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- s.Start() }()

	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Start returned error after Shutdown: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Start did not return after Shutdown")
	}
}
