// Package gateway turns a stack's HTTP triggers into an addressable
// router and reverse proxy: RouteTable resolves an incoming
// (method, path) to a function name once at startup, and
// RequestGateway wakes that function through the FunctionCoordinator
// before proxying the request to its container.
package gateway
