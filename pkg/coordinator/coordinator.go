package coordinator

import (
	"context"
	"sync"
	"time"

	"github.com/cuemby/coupe-sentinel/pkg/errs"
	"github.com/cuemby/coupe-sentinel/pkg/health"
	"github.com/cuemby/coupe-sentinel/pkg/log"
	"github.com/cuemby/coupe-sentinel/pkg/metrics"
	"github.com/cuemby/coupe-sentinel/pkg/runtime"
	"github.com/cuemby/coupe-sentinel/pkg/storage"
	"github.com/cuemby/coupe-sentinel/pkg/types"
)

// FunctionCoordinator serializes start_session/end_session for each
// function in a stack behind a lazily-created, never-removed mutex, so
// a wake triggered by an incoming request and an expiry-triggered stop
// from the reaper can never race each other for the same function.
type FunctionCoordinator struct {
	stack  *types.Stack
	store  storage.SessionStore
	driver runtime.ContainerDriver
	probe  *health.Probe
	poll   runtime.PollConfig

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	// healthURL resolves the URL a cold-started function's probe polls.
	// Defaults to types.HealthURL; overridden in tests that can't rely on
	// the deterministic container DNS name resolving.
	healthURL func(functionName string, handlerPort int) string
}

// New builds a FunctionCoordinator over stack, wiring in the store and
// driver it serializes access to.
func New(stack *types.Stack, store storage.SessionStore, driver runtime.ContainerDriver) *FunctionCoordinator {
	return &FunctionCoordinator{
		stack:  stack,
		store:  store,
		driver: driver,
		probe:  health.NewProbe(),
		poll:   runtime.DefaultPollConfig(),
		locks:  make(map[string]*sync.Mutex),
		healthURL: func(functionName string, handlerPort int) string {
			return types.HealthURL(stack.Name, functionName, handlerPort)
		},
	}
}

// lockFor returns functionName's mutex, creating it on first use. The
// registry itself never shrinks: a function's lock lives as long as the
// process, which is what lets callers always find the same lock instance.
func (c *FunctionCoordinator) lockFor(functionName string) *sync.Mutex {
	c.locksMu.Lock()
	defer c.locksMu.Unlock()
	l, ok := c.locks[functionName]
	if !ok {
		l = &sync.Mutex{}
		c.locks[functionName] = l
	}
	return l
}

// StartSession wakes functionName if needed and extends its lease,
// returning the lease's effective deadline and whether this call
// performed a cold start. Concurrent calls for the same function
// serialize on its lock: exactly one of them issues the EnsureRunning
// call that actually starts the container.
func (c *FunctionCoordinator) StartSession(ctx context.Context, functionName string) (endsAt time.Time, coldstarted bool, err error) {
	fn, ok := c.stack.Functions[functionName]
	if !ok {
		return time.Time{}, false, errs.New(errs.NotFound, "function "+functionName+" not found in stack "+c.stack.Name)
	}

	lock := c.lockFor(functionName)
	lock.Lock()
	defer lock.Unlock()

	containerName := types.FunctionContainerName(c.stack.Name, functionName)

	timer := metrics.NewTimer()
	coldstarted, err = runtime.EnsureRunning(ctx, c.driver, containerName, c.poll)
	if err != nil {
		return time.Time{}, false, err
	}

	// The lease is persisted before the health probe runs, not after: if
	// WaitReady times out below, the container is left running and the
	// store still holds its lease, so the Reaper can still find and stop
	// it rather than leaking an un-leased container no record points to.
	candidateEndsAtNs := time.Now().Add(fn.Scaling.EffectiveSessionDuration()).UnixNano()
	effectiveEndsAtNs, err := c.store.ExtendOrCreate(functionName, candidateEndsAtNs)
	if err != nil {
		return time.Time{}, false, err
	}

	if coldstarted {
		healthURL := c.healthURL(functionName, fn.EffectiveHandlerPort())
		if err := c.probe.WaitReady(ctx, healthURL); err != nil {
			return time.Time{}, false, err
		}
		metrics.ColdStartsTotal.WithLabelValues(functionName).Inc()
		timer.ObserveDurationVec(metrics.ColdStartDuration, functionName)
		log.WithFunction(functionName).Info().Msg("cold start completed")
	}

	return time.Unix(0, effectiveEndsAtNs).UTC(), coldstarted, nil
}

// EndSession stops functionName's container after first deleting its
// lease. The store delete happens before the stop call, not after: once
// the lease is gone a concurrent StartSession blocked on the same lock
// will re-create it and re-wake the container, rather than racing a
// delete against a session that a stop call has already invalidated.
func (c *FunctionCoordinator) EndSession(ctx context.Context, functionName string) error {
	if _, ok := c.stack.Functions[functionName]; !ok {
		return errs.New(errs.NotFound, "function "+functionName+" not found in stack "+c.stack.Name)
	}

	lock := c.lockFor(functionName)
	lock.Lock()
	defer lock.Unlock()

	if err := c.store.Delete(functionName); err != nil {
		return err
	}

	containerName := types.FunctionContainerName(c.stack.Name, functionName)
	if err := c.driver.Stop(ctx, containerName, 10*time.Second); err != nil {
		return err
	}

	log.WithFunction(functionName).Info().Msg("session ended")
	return nil
}
