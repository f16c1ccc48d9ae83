// Package reaper periodically sweeps the session store for expired
// leases and ends each one through the FunctionCoordinator, so a
// function's container is stopped once nothing is holding it warm
// anymore. A sweep never blocks on a single slow end_session: expired
// sessions within one cycle are ended concurrently, bounded, and a
// failure on one function is logged and does not abort the rest of
// the cycle.
package reaper
