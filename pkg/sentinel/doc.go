// Package sentinel is the composition root: it wires a loaded
// types.Stack together with its SessionStore, ContainerDriver,
// FunctionCoordinator, RouteTable, RequestGateway, ControlAPI, Reaper
// and metrics.Collector into one running process, and owns the
// listen/serve/shutdown lifecycle around them.
package sentinel
