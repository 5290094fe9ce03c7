package tools

import (
	"context"
	"encoding/json"
	"fmt"
)

// Demo robot skills. They acknowledge the action rather than drive real
// hardware; hardware drivers live behind a remote tool server.

type NavigateTool struct{}

func NewNavigateTool() *NavigateTool { return &NavigateTool{} }

func (t *NavigateTool) Name() string { return "navigate_to_target" }

func (t *NavigateTool) Description() string {
	return "Navigate to target, do not call when navigation to target has already been successfully performed."
}

func (t *NavigateTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"target": map[string]any{
				"type":        "string",
				"description": "The navigation destination.",
			},
		},
		"required": []string{"target"},
	}
}

func (t *NavigateTool) Execute(ctx context.Context, input string) (string, error) {
	var args struct {
		Target string `json:"target"`
	}
	if err := json.Unmarshal([]byte(input), &args); err != nil {
		return "", fmt.Errorf("invalid input: %w", err)
	}
	if args.Target == "" {
		return "", fmt.Errorf("target is required")
	}
	return fmt.Sprintf("Navigation to %s has been successfully performed.", args.Target), nil
}

type GraspTool struct{}

func NewGraspTool() *GraspTool { return &GraspTool{} }

func (t *GraspTool) Name() string { return "grasp_object" }

func (t *GraspTool) Description() string {
	return "Pick up the object, do not call when the object has already been successfully grasped."
}

func (t *GraspTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"object": map[string]any{
				"type":        "string",
				"description": "The object to grasp.",
			},
		},
		"required": []string{"object"},
	}
}

func (t *GraspTool) Execute(ctx context.Context, input string) (string, error) {
	var args struct {
		Object string `json:"object"`
	}
	if err := json.Unmarshal([]byte(input), &args); err != nil {
		return "", fmt.Errorf("invalid input: %w", err)
	}
	if args.Object == "" {
		return "", fmt.Errorf("object is required")
	}
	return fmt.Sprintf("%s has been successfully grasped.", args.Object), nil
}

type PlaceTool struct{}

func NewPlaceTool() *PlaceTool { return &PlaceTool{} }

func (t *PlaceTool) Name() string { return "place_to_affordance" }

func (t *PlaceTool) Description() string {
	return "Place the grasped object on the affordance, do not call when the object has already been successfully placed."
}

func (t *PlaceTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"affordance": map[string]any{
				"type":        "string",
				"description": "Where to place the object.",
			},
			"object": map[string]any{
				"type":        "string",
				"description": "The object currently grasped.",
			},
		},
		"required": []string{"affordance"},
	}
}

func (t *PlaceTool) Execute(ctx context.Context, input string) (string, error) {
	var args struct {
		Affordance string `json:"affordance"`
		Object     string `json:"object"`
	}
	if err := json.Unmarshal([]byte(input), &args); err != nil {
		return "", fmt.Errorf("invalid input: %w", err)
	}
	if args.Affordance == "" {
		return "", fmt.Errorf("affordance is required")
	}
	return fmt.Sprintf("%s has been successfully placed on %s.", args.Object, args.Affordance), nil
}

// DefaultRegistry returns the demo skill set a locally-executing robot
// declares at registration.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(NewNavigateTool())
	r.Register(NewGraspTool())
	r.Register(NewPlaceTool())
	return r
}
