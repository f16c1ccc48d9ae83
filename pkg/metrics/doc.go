// Package metrics defines and registers coupe-sentinel's Prometheus
// metrics (active sessions, cold starts, proxy requests, reaper
// cycles, Control API requests) and exposes them via Handler for
// mounting at /metrics. Collector periodically samples the session
// store to keep gauge metrics current between scrapes. A separate,
// small operability surface (RegisterComponent/GetHealth/
// LivenessHandler) tracks whether the sentinel's own dependencies
// (containerd, the session store) are reachable.
package metrics
