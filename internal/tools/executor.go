package tools

import (
	"context"
	"encoding/json"
	"fmt"
)

// Info is a tool declaration as exchanged with the master and the oracle.
type Info struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

// Executor is the actuator-facing interface a robot calls to perform a real
// action. The transport behind it (in-process skills or a remote tool
// server) is not the robot's concern.
type Executor interface {
	ListTools(ctx context.Context) ([]Info, error)
	CallTool(ctx context.Context, name string, arguments string) (string, error)
}

// LocalExecutor dispatches tool calls against an in-process Registry. Tool
// names resolve through the registered-capability table and arguments are
// checked against the declared schema before invocation.
type LocalExecutor struct {
	registry *Registry
}

func NewLocalExecutor(registry *Registry) *LocalExecutor {
	return &LocalExecutor{registry: registry}
}

func (e *LocalExecutor) ListTools(ctx context.Context) ([]Info, error) {
	var infos []Info
	for _, t := range e.registry.List() {
		infos = append(infos, Info{
			Name:        t.Name(),
			Description: t.Description(),
			InputSchema: t.Parameters(),
		})
	}
	return infos, nil
}

func (e *LocalExecutor) CallTool(ctx context.Context, name string, arguments string) (string, error) {
	tool := e.registry.Get(name)
	if tool == nil {
		return "", fmt.Errorf("tool %s not found", name)
	}
	if err := validateArguments(tool.Parameters(), arguments); err != nil {
		return "", fmt.Errorf("tool %s: %w", name, err)
	}
	return tool.Execute(ctx, arguments)
}

// validateArguments checks the argument payload is a JSON object carrying
// every property the schema marks required.
func validateArguments(schema map[string]any, arguments string) error {
	var args map[string]any
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	required, _ := schema["required"].([]string)
	if required == nil {
		if raw, ok := schema["required"].([]any); ok {
			for _, r := range raw {
				if s, ok := r.(string); ok {
					required = append(required, s)
				}
			}
		}
	}
	for _, field := range required {
		if _, ok := args[field]; !ok {
			return fmt.Errorf("missing required argument %q", field)
		}
	}
	return nil
}
