// Package health implements the bounded-retry HTTP healthcheck used on
// the cold-start path: after EnsureRunning reports a container woke up,
// Probe.WaitReady polls its /health endpoint until it answers 2xx or the
// overall deadline passes.
package health
