package runtime

import (
	"context"
	"testing"
	"time"

	"github.com/cuemby/coupe-sentinel/pkg/errs"
	"github.com/cuemby/coupe-sentinel/pkg/types"
)

// fakeDriver is an in-memory ContainerDriver for exercising the
// EnsureRunning state table without a containerd daemon.
type fakeDriver struct {
	status       types.ContainerStatus
	startCalls   int
	unpauseCalls int
	// afterStartStatus is what Inspect reports once Start/Unpause has
	// been called, simulating the container reaching RUNNING.
	afterStartStatus types.ContainerStatus
}

func (f *fakeDriver) Inspect(ctx context.Context, containerName string) (types.ContainerStatus, error) {
	return f.status, nil
}

func (f *fakeDriver) Start(ctx context.Context, containerName string) error {
	f.startCalls++
	f.status = f.afterStartStatus
	return nil
}

func (f *fakeDriver) Unpause(ctx context.Context, containerName string) error {
	f.unpauseCalls++
	f.status = f.afterStartStatus
	return nil
}

func (f *fakeDriver) Stop(ctx context.Context, containerName string, timeout time.Duration) error {
	return nil
}
func (f *fakeDriver) CreateNetwork(ctx context.Context, networkName string) error { return nil }
func (f *fakeDriver) RemoveNetwork(ctx context.Context, networkName string) error { return nil }
func (f *fakeDriver) CreateFunctionContainer(ctx context.Context, containerName, image, networkName string, handlerPort int) error {
	return nil
}
func (f *fakeDriver) RemoveFunctionContainer(ctx context.Context, containerName string) error {
	return nil
}
func (f *fakeDriver) Close() error { return nil }

func fastPoll() PollConfig {
	return PollConfig{Timeout: time.Second, Interval: time.Millisecond}
}

func TestEnsureRunning_AlreadyRunningIsNotColdstart(t *testing.T) {
	d := &fakeDriver{status: types.StatusRunning}

	coldstarted, err := EnsureRunning(context.Background(), d, "coupe-demo-function-echo", fastPoll())
	if err != nil {
		t.Fatalf("EnsureRunning: %v", err)
	}
	if coldstarted {
		t.Error("coldstarted = true for an already-running container")
	}
	if d.startCalls != 0 || d.unpauseCalls != 0 {
		t.Error("EnsureRunning should not touch an already-running container")
	}
}

func TestEnsureRunning_CreatedStartsAndColdstarts(t *testing.T) {
	d := &fakeDriver{status: types.StatusCreated, afterStartStatus: types.StatusRunning}

	coldstarted, err := EnsureRunning(context.Background(), d, "coupe-demo-function-echo", fastPoll())
	if err != nil {
		t.Fatalf("EnsureRunning: %v", err)
	}
	if !coldstarted {
		t.Error("coldstarted = false, want true")
	}
	if d.startCalls != 1 {
		t.Errorf("startCalls = %d, want 1", d.startCalls)
	}
}

func TestEnsureRunning_ExitedStarts(t *testing.T) {
	d := &fakeDriver{status: types.StatusExited, afterStartStatus: types.StatusRunning}

	coldstarted, err := EnsureRunning(context.Background(), d, "c", fastPoll())
	if err != nil {
		t.Fatalf("EnsureRunning: %v", err)
	}
	if !coldstarted || d.startCalls != 1 {
		t.Errorf("coldstarted=%v startCalls=%d, want true/1", coldstarted, d.startCalls)
	}
}

func TestEnsureRunning_PausedUnpauses(t *testing.T) {
	d := &fakeDriver{status: types.StatusPaused, afterStartStatus: types.StatusRunning}

	coldstarted, err := EnsureRunning(context.Background(), d, "c", fastPoll())
	if err != nil {
		t.Fatalf("EnsureRunning: %v", err)
	}
	if !coldstarted {
		t.Error("coldstarted = false, want true")
	}
	if d.unpauseCalls != 1 {
		t.Errorf("unpauseCalls = %d, want 1", d.unpauseCalls)
	}
}

func TestEnsureRunning_RestartingPollsWithoutAction(t *testing.T) {
	d := &fakeDriver{status: types.StatusRestarting, afterStartStatus: types.StatusRunning}
	// Flip to RUNNING after a short delay without Start/Unpause being called.
	go func() {
		time.Sleep(5 * time.Millisecond)
		d.status = types.StatusRunning
	}()

	coldstarted, err := EnsureRunning(context.Background(), d, "c", fastPoll())
	if err != nil {
		t.Fatalf("EnsureRunning: %v", err)
	}
	if !coldstarted {
		t.Error("coldstarted = false, want true")
	}
	if d.startCalls != 0 || d.unpauseCalls != 0 {
		t.Error("RESTARTING should only poll, never call Start/Unpause")
	}
}

func TestEnsureRunning_DeadIsUnrecoverable(t *testing.T) {
	d := &fakeDriver{status: types.StatusDead}

	_, err := EnsureRunning(context.Background(), d, "c", fastPoll())
	if kind, ok := errs.KindOf(err); !ok || kind != errs.Unrecoverable {
		t.Errorf("err kind = %v (ok=%v), want Unrecoverable", kind, ok)
	}
}

func TestEnsureRunning_UnmappedStatusIsUnrecoverable(t *testing.T) {
	d := &fakeDriver{status: types.StatusOther}

	_, err := EnsureRunning(context.Background(), d, "c", fastPoll())
	if kind, ok := errs.KindOf(err); !ok || kind != errs.Unrecoverable {
		t.Errorf("err kind = %v (ok=%v), want Unrecoverable", kind, ok)
	}
}

func TestEnsureRunning_EmptyAndRemovingAreNotFound(t *testing.T) {
	for _, status := range []types.ContainerStatus{types.StatusEmpty, types.StatusRemoving} {
		d := &fakeDriver{status: status}
		_, err := EnsureRunning(context.Background(), d, "c", fastPoll())
		if kind, ok := errs.KindOf(err); !ok || kind != errs.NotFound {
			t.Errorf("status %s: err kind = %v (ok=%v), want NotFound", status, kind, ok)
		}
	}
}

func TestEnsureRunning_StartupTimeout(t *testing.T) {
	// afterStartStatus left as zero value ("") so the container never
	// reaches RUNNING, forcing the poll loop to time out.
	d := &fakeDriver{status: types.StatusCreated}

	_, err := EnsureRunning(context.Background(), d, "c", PollConfig{Timeout: 20 * time.Millisecond, Interval: 2 * time.Millisecond})
	if kind, ok := errs.KindOf(err); !ok || kind != errs.StartupTimeout {
		t.Errorf("err kind = %v (ok=%v), want StartupTimeout", kind, ok)
	}
}
