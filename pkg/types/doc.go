// Package types defines the stack/function/trigger/session data model
// shared across coupe-sentinel, plus the deterministic naming scheme that
// ties a stack's containers, network and sentinel together.
package types
