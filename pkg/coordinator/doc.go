// Package coordinator implements FunctionCoordinator: the per-function
// serialization point between the gateway and a function's container.
//
// Every function gets exactly one mutex, created lazily on first use and
// never removed, guarding both StartSession and EndSession so a wake and
// a sweep-triggered stop for the same function can never interleave
// (single-flight wake, the coordinator's core invariant).
package coordinator
