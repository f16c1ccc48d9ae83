// Package config loads and validates a stack's coupe.yaml into the
// in-memory types.Stack, and resolves the deployment-directory path the
// deploy tooling writes that file to.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cuemby/coupe-sentinel/pkg/errs"
	"github.com/cuemby/coupe-sentinel/pkg/types"
	"gopkg.in/yaml.v3"
)

// DeploymentDir returns ~/.coupe/<stack>, the directory the CLI writes
// coupe.yaml into and bind-mounts read-write into the sentinel container.
func DeploymentDir(stack string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".coupe", stack), nil
}

// ConfigPath returns the coupe.yaml path for a stack's deployment directory.
func ConfigPath(stack string) (string, error) {
	dir, err := DeploymentDir(stack)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "coupe.yaml"), nil
}

// DataDir returns the directory the session store opens its database
// in: $DB_DIR if set, otherwise <cwd>/db. This is deliberately separate
// from DeploymentDir — coupe.yaml lives under the CLI's per-stack
// deployment directory, but the store's location is the sentinel
// process's own environment-variable contract with the deploy tooling.
func DataDir() (string, error) {
	if dir := os.Getenv("DB_DIR"); dir != "" {
		return dir, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("resolve working directory: %w", err)
	}
	return filepath.Join(cwd, "db"), nil
}

// rawConfig mirrors coupe.yaml verbatim (§6). All fields use yaml tags so
// unknown top-level keys can be rejected with strict decoding.
type rawConfig struct {
	Name        string                  `yaml:"name"`
	Version     string                  `yaml:"version"`
	Description string                  `yaml:"description"`
	Sentinel    rawSentinel             `yaml:"sentinel"`
	Functions   map[string]rawFunction  `yaml:"functions"`
}

type rawSentinel struct {
	Port         int            `yaml:"port"`
	Registry     *rawRegistry   `yaml:"registry"`
	OtelEndpoint string         `yaml:"otel_endpoint"`
}

type rawRegistry struct {
	URL       string `yaml:"url"`
	Namespace string `yaml:"namespace"`
}

type rawFunction struct {
	Image       string       `yaml:"image"`
	Trigger     rawTrigger   `yaml:"trigger"`
	Scaling     *rawScaling  `yaml:"scaling"`
	HandlerPort int          `yaml:"handler_port"`
}

type rawTrigger struct {
	Type   string         `yaml:"type"`
	Path   string         `yaml:"path"`
	Method string         `yaml:"method"`
	Schema map[string]any `yaml:"schema"`
	Auth   map[string]any `yaml:"auth"`

	// Queue/Stream/Timer are opaque; captured generically so they
	// round-trip even though this core never inspects them.
	Queue  map[string]any `yaml:"queue"`
	Stream map[string]any `yaml:"stream"`
	Timer  map[string]any `yaml:"timer"`
}

type rawScaling struct {
	SessionDuration     int `yaml:"session_duration"`
	HealthCheckInterval int `yaml:"health_check_interval"`
}

// Load reads and validates a coupe.yaml file at path, returning the
// compiled Stack. Unknown keys at any level are a ConfigError, as is any
// structural violation (missing name, unknown trigger type, duplicate
// route — duplicate-route detection happens in pkg/gateway when the
// RouteTable is built, since it needs the full function set).
func Load(path string) (*types.Stack, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Wrap(errs.ConfigError, "read config file", err)
	}
	return Parse(data)
}

// Parse validates and decodes raw coupe.yaml bytes into a Stack.
func Parse(data []byte) (*types.Stack, error) {
	decoder := yaml.NewDecoder(strings.NewReader(string(data)))
	decoder.KnownFields(true)

	var raw rawConfig
	if err := decoder.Decode(&raw); err != nil {
		return nil, errs.Wrap(errs.ConfigError, "parse coupe.yaml", err)
	}

	if raw.Name == "" {
		return nil, errs.New(errs.ConfigError, "coupe.yaml: name is required")
	}

	stack := &types.Stack{
		Name: raw.Name,
		Sentinel: types.SentinelConfig{
			Port:         raw.Sentinel.Port,
			OtelEndpoint: raw.Sentinel.OtelEndpoint,
		},
		Functions: make(map[string]*types.Function, len(raw.Functions)),
	}
	if raw.Sentinel.Registry != nil {
		stack.Sentinel.Registry = &types.ContainerRegistry{
			URL:       raw.Sentinel.Registry.URL,
			Namespace: raw.Sentinel.Registry.Namespace,
		}
	}

	for name, rf := range raw.Functions {
		fn, err := compileFunction(name, rf)
		if err != nil {
			return nil, err
		}
		stack.Functions[name] = fn
	}

	return stack, nil
}

func compileFunction(name string, rf rawFunction) (*types.Function, error) {
	if rf.Image == "" {
		return nil, errs.New(errs.ConfigError, fmt.Sprintf("function %q: image is required", name))
	}

	trigger, err := compileTrigger(name, rf.Trigger)
	if err != nil {
		return nil, err
	}

	fn := &types.Function{
		Name:        name,
		Image:       rf.Image,
		Trigger:     trigger,
		HandlerPort: rf.HandlerPort,
	}
	if rf.Scaling != nil {
		fn.Scaling = &types.Scaling{
			SessionDurationSeconds: rf.Scaling.SessionDuration,
			HealthCheckIntervalMs:  rf.Scaling.HealthCheckInterval,
		}
	}
	return fn, nil
}

func compileTrigger(functionName string, rt rawTrigger) (types.Trigger, error) {
	switch types.TriggerType(rt.Type) {
	case types.TriggerHTTP:
		if rt.Path == "" {
			return types.Trigger{}, errs.New(errs.ConfigError,
				fmt.Sprintf("function %q: http trigger requires path", functionName))
		}
		method := types.HttpMethod(strings.ToUpper(rt.Method))
		switch method {
		case "", types.MethodAny, types.MethodGet, types.MethodPost, types.MethodPut, types.MethodDelete, types.MethodPatch:
		default:
			return types.Trigger{}, errs.New(errs.ConfigError,
				fmt.Sprintf("function %q: unknown http method %q", functionName, rt.Method))
		}

		var schemaJSON json.RawMessage
		if rt.Schema != nil {
			b, err := json.Marshal(rt.Schema)
			if err != nil {
				return types.Trigger{}, errs.Wrap(errs.ConfigError, "encode schema", err)
			}
			schemaJSON = b
		}
		var authJSON json.RawMessage
		if rt.Auth != nil {
			b, err := json.Marshal(rt.Auth)
			if err != nil {
				return types.Trigger{}, errs.Wrap(errs.ConfigError, "encode auth", err)
			}
			authJSON = b
		}

		return types.Trigger{
			Type: types.TriggerHTTP,
			Http: &types.HttpTrigger{
				Path:   rt.Path,
				Method: method,
				Schema: schemaJSON,
				Auth:   authJSON,
			},
		}, nil

	case types.TriggerQueue:
		return types.Trigger{Type: types.TriggerQueue, Queue: rt.Queue}, nil
	case types.TriggerStream:
		return types.Trigger{Type: types.TriggerStream, Stream: rt.Stream}, nil
	case types.TriggerTimer:
		return types.Trigger{Type: types.TriggerTimer, Timer: rt.Timer}, nil
	default:
		return types.Trigger{}, errs.New(errs.ConfigError,
			fmt.Sprintf("function %q: unknown trigger type %q", functionName, rt.Type))
	}
}
