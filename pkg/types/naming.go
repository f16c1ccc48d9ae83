package types

import "fmt"

// SentinelContainerName is the deterministic container name for a stack's
// sentinel process.
func SentinelContainerName(stack string) string {
	return fmt.Sprintf("coupe-%s-sentinel", stack)
}

// NetworkName is the deterministic Docker/containerd network name for a stack.
func NetworkName(stack string) string {
	return fmt.Sprintf("coupe-%s-network", stack)
}

// FunctionContainerName is the deterministic container name for a function.
func FunctionContainerName(stack, function string) string {
	return fmt.Sprintf("coupe-%s-function-%s", stack, function)
}

// InternalURL is the address a function's container is reachable at on the
// stack network.
func InternalURL(stack, function string, handlerPort int) string {
	return fmt.Sprintf("http://%s:%d", FunctionContainerName(stack, function), handlerPort)
}

// HealthURL is the health-check endpoint used on cold-start paths.
func HealthURL(stack, function string, handlerPort int) string {
	return InternalURL(stack, function, handlerPort) + "/health"
}
