package sentinel

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cuemby/coupe-sentinel/pkg/api"
	"github.com/cuemby/coupe-sentinel/pkg/coordinator"
	"github.com/cuemby/coupe-sentinel/pkg/gateway"
	"github.com/cuemby/coupe-sentinel/pkg/log"
	"github.com/cuemby/coupe-sentinel/pkg/metrics"
	"github.com/cuemby/coupe-sentinel/pkg/reaper"
	"github.com/cuemby/coupe-sentinel/pkg/runtime"
	"github.com/cuemby/coupe-sentinel/pkg/storage"
	"github.com/cuemby/coupe-sentinel/pkg/types"
)

// Config holds everything needed to bring up a Sentinel for one stack.
type Config struct {
	Stack          *types.Stack
	Store          storage.SessionStore
	Driver         runtime.ContainerDriver
	ReaperInterval time.Duration
	ListenAddr     string
}

// Sentinel is one stack's control plane: the RequestGateway, ControlAPI
// and Reaper running behind a single HTTP listener, plus the
// metrics.Collector keeping gauge metrics current.
type Sentinel struct {
	cfg       Config
	server    *http.Server
	reaper    *reaper.Reaper
	collector *metrics.Collector
}

// New wires a Sentinel's components over an already-loaded stack, store
// and driver. It does not start anything; call Start.
func New(cfg Config) (*Sentinel, error) {
	if cfg.Stack == nil {
		return nil, errors.New("sentinel: Config.Stack is required")
	}
	if cfg.ReaperInterval <= 0 {
		cfg.ReaperInterval = reaper.DefaultInterval
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = fmt.Sprintf(":%d", defaultPort(cfg.Stack))
	}

	coord := coordinator.New(cfg.Stack, cfg.Store, cfg.Driver)

	routes, err := gateway.Build(cfg.Stack)
	if err != nil {
		return nil, err
	}
	gw := gateway.New(cfg.Stack, routes, coord)
	controlAPI := api.New(cfg.Stack, cfg.Store, coord)

	metrics.RegisterComponent("store", true, "opened")
	metrics.RegisterComponent("containerd", true, "connected")

	mux := &rootMux{control: controlAPI, gateway: gw}

	return &Sentinel{
		cfg: cfg,
		server: &http.Server{
			Addr:    cfg.ListenAddr,
			Handler: mux,
		},
		reaper:    reaper.New(cfg.Store, coord, cfg.ReaperInterval),
		collector: metrics.NewCollector(cfg.Store),
	}, nil
}

func defaultPort(stack *types.Stack) int {
	if stack.Sentinel.Port != 0 {
		return stack.Sentinel.Port
	}
	return 8080
}

// rootMux sends the Control API's fixed path set to ControlAPI and
// everything else to the stack's RequestGateway, so a "*" wildcard
// function route can never shadow the Control API (P5).
type rootMux struct {
	control *api.ControlAPI
	gateway *gateway.RequestGateway
}

func (m *rootMux) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if isControlPath(r.URL.Path) {
		m.control.ServeHTTP(w, r)
		return
	}
	m.gateway.ServeHTTP(w, r)
}

func isControlPath(path string) bool {
	return path == "/health" || path == "/metrics" || path == "/live" || strings.HasPrefix(path, "/system/")
}

// Start runs the reaper and metrics collector in the background and
// blocks serving HTTP until the listener fails or Shutdown is called.
func (s *Sentinel) Start() error {
	log.WithStack(s.cfg.Stack.Name).Info().Str("addr", s.cfg.ListenAddr).Msg("sentinel starting")
	s.reaper.Start()
	s.collector.Start()

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the reaper and collector and gracefully closes the
// HTTP listener, then closes the session store.
func (s *Sentinel) Shutdown(ctx context.Context) error {
	s.reaper.Stop()
	s.collector.Stop()
	if err := s.server.Shutdown(ctx); err != nil {
		return err
	}
	return s.cfg.Store.Close()
}
