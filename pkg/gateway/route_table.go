package gateway

import (
	"github.com/cuemby/coupe-sentinel/pkg/errs"
	"github.com/cuemby/coupe-sentinel/pkg/types"
)

// routeKey is an exact (method, path) route registration.
type routeKey struct {
	method types.HttpMethod
	path   string
}

// RouteTable resolves an inbound (method, path) to the function that
// should handle it. It is built once at startup from a Stack's HTTP
// triggers and never mutated afterward.
type RouteTable struct {
	routes   map[routeKey]string
	fallback string // function name registered against path "*", if any
}

// Build compiles a RouteTable from stack, iterating functions with an
// HTTP trigger. A path of "*" registers the fallback route (last one
// wins if more than one function claims it); every other path is
// registered as an exact (method, path) route, and a duplicate
// (method, path) pair across two functions is a fatal ConfigError.
func Build(stack *types.Stack) (*RouteTable, error) {
	rt := &RouteTable{routes: make(map[routeKey]string)}

	for name, fn := range stack.Functions {
		if fn.Trigger.Type != types.TriggerHTTP || fn.Trigger.Http == nil {
			continue
		}
		http := fn.Trigger.Http

		if http.Path == types.WildcardPath {
			rt.fallback = name
			continue
		}

		key := routeKey{method: http.EffectiveMethod(), path: http.Path}
		if existing, ok := rt.routes[key]; ok {
			return nil, errs.New(errs.ConfigError,
				"duplicate route "+string(key.method)+" "+key.path+" claimed by both "+existing+" and "+name)
		}
		rt.routes[key] = name
	}

	return rt, nil
}

// Resolve returns the function name that should handle a request for
// method and path, falling back to the wildcard registration (if any)
// when no exact route matches. The second return value is false when
// neither an exact route nor a fallback exists.
func (rt *RouteTable) Resolve(method, path string) (string, bool) {
	if name, ok := rt.routes[routeKey{method: types.HttpMethod(method), path: path}]; ok {
		return name, true
	}
	if name, ok := rt.routes[routeKey{method: types.MethodAny, path: path}]; ok {
		return name, true
	}
	if rt.fallback != "" {
		return rt.fallback, true
	}
	return "", false
}
