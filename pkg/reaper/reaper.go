package reaper

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cuemby/coupe-sentinel/pkg/log"
	"github.com/cuemby/coupe-sentinel/pkg/metrics"
	"github.com/cuemby/coupe-sentinel/pkg/storage"
)

// sessionEnder is the subset of *coordinator.FunctionCoordinator the
// reaper depends on, kept narrow so tests can fake it without pulling
// in a real ContainerDriver/SessionStore pair.
type sessionEnder interface {
	EndSession(ctx context.Context, functionName string) error
}

// maxConcurrentEnds bounds how many end_session calls a single sweep
// runs at once, so one stack with many simultaneously-expiring
// functions can't pile up unbounded concurrent container stops.
const maxConcurrentEnds = 8

// Reaper sweeps store on a fixed interval, ending every session whose
// lease has expired.
type Reaper struct {
	store    storage.SessionStore
	sessions sessionEnder
	interval time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

// New builds a Reaper that sweeps store every interval.
func New(store storage.SessionStore, sessions sessionEnder, interval time.Duration) *Reaper {
	return &Reaper{
		store:    store,
		sessions: sessions,
		interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// DefaultInterval is the sweep period used in production: frequent
// enough that a lease rarely outlives its deadline by more than a
// second, without hammering the store.
const DefaultInterval = time.Second

// Start begins the sweep loop in a goroutine.
func (r *Reaper) Start() {
	go r.run()
}

// Stop ends the sweep loop and waits for the in-flight cycle, if any,
// to finish.
func (r *Reaper) Stop() {
	close(r.stopCh)
	<-r.doneCh
}

func (r *Reaper) run() {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	logger := log.WithComponent("reaper")
	logger.Info().Msg("reaper started")

	for {
		select {
		case <-ticker.C:
			r.sweep(context.Background())
		case <-r.stopCh:
			logger.Info().Msg("reaper stopped")
			return
		}
	}
}

// sweep ends every session whose deadline has passed as of now,
// fanning out the end_session calls with bounded concurrency. A
// failure on one function is logged and does not prevent the others
// in the same cycle from being ended.
func (r *Reaper) sweep(ctx context.Context) {
	timer := metrics.NewTimer()
	defer func() {
		metrics.ReaperCyclesTotal.Inc()
		_ = timer
	}()

	sessions, err := r.store.Iter()
	if err != nil {
		log.Errorf("reaper: list sessions", err)
		return
	}

	now := time.Now()
	var g errgroup.Group
	g.SetLimit(maxConcurrentEnds)

	for _, session := range sessions {
		if !session.IsExpired(now) {
			continue
		}
		functionName := session.FunctionName
		g.Go(func() error {
			if err := r.sessions.EndSession(ctx, functionName); err != nil {
				metrics.ReaperSessionsEndedTotal.WithLabelValues(functionName, "error").Inc()
				log.WithFunction(functionName).Error().Err(err).Msg("reaper: end_session failed")
				return nil
			}
			metrics.ReaperSessionsEndedTotal.WithLabelValues(functionName, "ended").Inc()
			return nil
		})
	}

	_ = g.Wait()
}
