// Package runtime wraps a containerd client to manage one function's
// container: inspecting its state, waking it from CREATED/EXITED/PAUSED
// back to RUNNING, and stopping it again once its lease expires.
//
// EnsureRunning implements the state table from the wake path: a
// RUNNING container is left alone, CREATED/EXITED containers are
// started, PAUSED containers are unpaused, RESTARTING containers are
// just polled, and DEAD/EMPTY/REMOVING containers fail fast rather than
// being silently retried.
package runtime
