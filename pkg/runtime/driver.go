package runtime

import (
	"context"
	"time"

	"github.com/cuemby/coupe-sentinel/pkg/errs"
	"github.com/cuemby/coupe-sentinel/pkg/types"
)

// ContainerDriver is everything the coordinator needs from the container
// daemon: status inspection, the three state-recovery verbs EnsureRunning
// can issue, and the setup/teardown primitives the bootstrap command uses
// to materialize a stack's network and function containers.
type ContainerDriver interface {
	Inspect(ctx context.Context, containerName string) (types.ContainerStatus, error)
	Start(ctx context.Context, containerName string) error
	Unpause(ctx context.Context, containerName string) error
	Stop(ctx context.Context, containerName string, timeout time.Duration) error

	CreateNetwork(ctx context.Context, networkName string) error
	RemoveNetwork(ctx context.Context, networkName string) error
	CreateFunctionContainer(ctx context.Context, containerName, image, networkName string, handlerPort int) error
	RemoveFunctionContainer(ctx context.Context, containerName string) error

	Close() error
}

// PollConfig bounds how EnsureRunning waits for a container to reach
// RUNNING after it issues a start/unpause call.
type PollConfig struct {
	Timeout  time.Duration
	Interval time.Duration
}

// DefaultPollConfig is the 30s-timeout, 500ms-interval schedule used on
// the request path.
func DefaultPollConfig() PollConfig {
	return PollConfig{Timeout: 30 * time.Second, Interval: 500 * time.Millisecond}
}

// EnsureRunning drives containerName through the wake-up state table,
// returning coldstarted=false only when the container was already
// RUNNING at the moment of the first Inspect call.
func EnsureRunning(ctx context.Context, driver ContainerDriver, containerName string, poll PollConfig) (coldstarted bool, err error) {
	status, err := driver.Inspect(ctx, containerName)
	if err != nil {
		return false, err
	}

	switch status {
	case types.StatusRunning:
		return false, nil

	case types.StatusEmpty, types.StatusRemoving:
		return false, errs.New(errs.NotFound, "container "+containerName+" not found")

	case types.StatusDead:
		return false, errs.New(errs.Unrecoverable, "container "+containerName+" is dead")

	case types.StatusCreated, types.StatusExited:
		if err := driver.Start(ctx, containerName); err != nil {
			return false, errs.Wrap(errs.DaemonError, "start container "+containerName, err)
		}
		return true, pollUntilRunning(ctx, driver, containerName, poll)

	case types.StatusPaused:
		if err := driver.Unpause(ctx, containerName); err != nil {
			return false, errs.Wrap(errs.DaemonError, "unpause container "+containerName, err)
		}
		return true, pollUntilRunning(ctx, driver, containerName, poll)

	case types.StatusRestarting:
		return true, pollUntilRunning(ctx, driver, containerName, poll)

	default:
		return false, errs.New(errs.Unrecoverable, "container "+containerName+" in unexpected state "+string(status))
	}
}

func pollUntilRunning(ctx context.Context, driver ContainerDriver, containerName string, poll PollConfig) error {
	deadline := time.Now().Add(poll.Timeout)
	for time.Now().Before(deadline) {
		status, err := driver.Inspect(ctx, containerName)
		if err != nil {
			return err
		}
		if status == types.StatusRunning {
			return nil
		}

		select {
		case <-ctx.Done():
			return errs.Wrap(errs.StartupTimeout, "ensure running "+containerName, ctx.Err())
		case <-time.After(poll.Interval):
		}
	}
	return errs.New(errs.StartupTimeout, "container "+containerName+" did not reach RUNNING before the startup deadline")
}
