package runtime

import (
	"context"
	"errors"
	"syscall"
	"time"

	"github.com/containerd/containerd"
	"github.com/containerd/containerd/cio"
	"github.com/containerd/containerd/errdefs"
	"github.com/containerd/containerd/namespaces"
	"github.com/containerd/containerd/oci"

	"github.com/cuemby/coupe-sentinel/pkg/errs"
	"github.com/cuemby/coupe-sentinel/pkg/types"
)

const (
	// Namespace isolates coupe-sentinel's containers from anything else
	// sharing the containerd daemon.
	Namespace = "coupe"

	// DefaultSocketPath is the default containerd socket.
	DefaultSocketPath = "/run/containerd/containerd.sock"
)

// ContainerdDriver implements ContainerDriver against a real containerd
// daemon. One instance is shared by every function in a stack.
type ContainerdDriver struct {
	client *containerd.Client
}

// NewContainerdDriver connects to containerd at socketPath (defaulting to
// DefaultSocketPath) in the coupe namespace.
func NewContainerdDriver(socketPath string) (*ContainerdDriver, error) {
	if socketPath == "" {
		socketPath = DefaultSocketPath
	}

	client, err := containerd.New(socketPath)
	if err != nil {
		return nil, errs.Wrap(errs.DaemonError, "connect to containerd", err)
	}
	return &ContainerdDriver{client: client}, nil
}

// Close releases the containerd client connection.
func (d *ContainerdDriver) Close() error {
	if d.client == nil {
		return nil
	}
	return d.client.Close()
}

func (d *ContainerdDriver) ctx(ctx context.Context) context.Context {
	return namespaces.WithNamespace(ctx, Namespace)
}

// Inspect maps a container's containerd task status onto the domain's
// ContainerStatus. A missing container reports StatusEmpty rather than
// an error so EnsureRunning's NotFound branch applies uniformly.
func (d *ContainerdDriver) Inspect(ctx context.Context, containerName string) (types.ContainerStatus, error) {
	ctx = d.ctx(ctx)

	container, err := d.client.LoadContainer(ctx, containerName)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return types.StatusEmpty, nil
		}
		return types.StatusOther, errs.Wrap(errs.DaemonError, "load container "+containerName, err)
	}

	task, err := container.Task(ctx, nil)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return types.StatusCreated, nil
		}
		return types.StatusOther, errs.Wrap(errs.DaemonError, "load task for "+containerName, err)
	}

	status, err := task.Status(ctx)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return types.StatusRemoving, nil
		}
		return types.StatusOther, errs.Wrap(errs.DaemonError, "get task status for "+containerName, err)
	}

	switch status.Status {
	case containerd.Running:
		return types.StatusRunning, nil
	case containerd.Created:
		return types.StatusCreated, nil
	case containerd.Stopped:
		return types.StatusExited, nil
	case containerd.Paused:
		return types.StatusPaused, nil
	case containerd.Pausing:
		return types.StatusRestarting, nil
	default:
		return types.StatusOther, nil
	}
}

// Start creates and starts a new task for a CREATED or EXITED container.
func (d *ContainerdDriver) Start(ctx context.Context, containerName string) error {
	ctx = d.ctx(ctx)

	container, err := d.client.LoadContainer(ctx, containerName)
	if err != nil {
		return errs.Wrap(errs.DaemonError, "load container "+containerName, err)
	}

	// A previously-exited container still has a stale task object;
	// delete it before creating a fresh one.
	if task, err := container.Task(ctx, nil); err == nil {
		_, _ = task.Delete(ctx)
	}

	task, err := container.NewTask(ctx, cio.NullIO)
	if err != nil {
		return errs.Wrap(errs.DaemonError, "create task for "+containerName, err)
	}
	if err := task.Start(ctx); err != nil {
		return errs.Wrap(errs.DaemonError, "start task for "+containerName, err)
	}
	return nil
}

// Unpause resumes a PAUSED container's task.
func (d *ContainerdDriver) Unpause(ctx context.Context, containerName string) error {
	ctx = d.ctx(ctx)

	container, err := d.client.LoadContainer(ctx, containerName)
	if err != nil {
		return errs.Wrap(errs.DaemonError, "load container "+containerName, err)
	}
	task, err := container.Task(ctx, nil)
	if err != nil {
		return errs.Wrap(errs.DaemonError, "load task for "+containerName, err)
	}
	if err := task.Resume(ctx); err != nil {
		return errs.Wrap(errs.DaemonError, "resume task for "+containerName, err)
	}
	return nil
}

// Stop gracefully stops a running container: SIGTERM, wait up to
// timeout, then SIGKILL. The task is left in place (not deleted) so the
// container returns to EXITED and can be woken again by Start.
func (d *ContainerdDriver) Stop(ctx context.Context, containerName string, timeout time.Duration) error {
	ctx = d.ctx(ctx)

	container, err := d.client.LoadContainer(ctx, containerName)
	if err != nil {
		return errs.Wrap(errs.DaemonError, "load container "+containerName, err)
	}

	task, err := container.Task(ctx, nil)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return nil // already stopped
		}
		return errs.Wrap(errs.DaemonError, "load task for "+containerName, err)
	}

	stopCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := task.Kill(stopCtx, syscall.SIGTERM); err != nil {
		return errs.Wrap(errs.DaemonError, "SIGTERM "+containerName, err)
	}

	statusC, err := task.Wait(stopCtx)
	if err != nil {
		return errs.Wrap(errs.DaemonError, "wait for "+containerName, err)
	}

	select {
	case <-statusC:
	case <-stopCtx.Done():
		if err := task.Kill(ctx, syscall.SIGKILL); err != nil {
			return errs.Wrap(errs.DaemonError, "SIGKILL "+containerName, err)
		}
	}

	return nil
}

// CreateNetwork is a no-op on containerd: containerd has no first-class
// network object the way Docker does. Stack-local addressing instead
// relies on CNI loopback/bridge plumbing set up once per host; this hook
// exists so the bootstrap command has a single place to extend if that
// changes, and so it mirrors RemoveNetwork symmetrically.
func (d *ContainerdDriver) CreateNetwork(ctx context.Context, networkName string) error {
	return nil
}

// RemoveNetwork mirrors CreateNetwork; see its comment.
func (d *ContainerdDriver) RemoveNetwork(ctx context.Context, networkName string) error {
	return nil
}

// CreateFunctionContainer pulls image if needed and creates (but does
// not start) a container for a function, leaving it in CREATED state so
// the first request's EnsureRunning call performs the actual cold start.
func (d *ContainerdDriver) CreateFunctionContainer(ctx context.Context, containerName, image, networkName string, handlerPort int) error {
	ctx = d.ctx(ctx)

	img, err := d.client.GetImage(ctx, image)
	if err != nil {
		img, err = d.client.Pull(ctx, image, containerd.WithPullUnpack)
		if err != nil {
			return errs.Wrap(errs.DaemonError, "pull image "+image, err)
		}
	}

	opts := []oci.SpecOpts{
		oci.WithImageConfig(img),
		oci.WithHostname(containerName),
	}

	_, err = d.client.NewContainer(
		ctx,
		containerName,
		containerd.WithImage(img),
		containerd.WithNewSnapshot(containerName+"-snapshot", img),
		containerd.WithNewSpec(opts...),
	)
	if err != nil {
		return errs.Wrap(errs.DaemonError, "create container "+containerName, err)
	}
	return nil
}

// RemoveFunctionContainer stops (if running) and deletes a function's
// container and its snapshot. Absence is not an error.
func (d *ContainerdDriver) RemoveFunctionContainer(ctx context.Context, containerName string) error {
	ctx = d.ctx(ctx)

	container, err := d.client.LoadContainer(ctx, containerName)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return nil
		}
		return errs.Wrap(errs.DaemonError, "load container "+containerName, err)
	}

	if err := d.Stop(ctx, containerName, 10*time.Second); err != nil && !errors.Is(err, errdefs.ErrNotFound) {
		// Best-effort: proceed to delete regardless.
		_ = err
	}

	if err := container.Delete(ctx, containerd.WithSnapshotCleanup); err != nil {
		return errs.Wrap(errs.DaemonError, "delete container "+containerName, err)
	}
	return nil
}
