package scene

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Side-effect classifications a tool execution can map to.
const (
	EffectAddObject    = "add_object"
	EffectRemoveObject = "remove_object"
	EffectPosition     = "position"
)

// ClassifyPrompt asks the oracle to name the scene-level effect of one tool
// execution. The answer must be exactly one classification token.
func ClassifyPrompt(toolName, arguments, observation string) string {
	return fmt.Sprintf(`You are a robot task planner responsible for updating a symbolic scene memory.

Each tool the robot calls has a side effect on the world, which can be one of the following scene-level action types:

- add_object: An object that was previously held by the robot is placed back into the environment, like placing an apple into a basket.
- remove_object: An object is taken out of the environment (e.g., from a table) and held by the robot, such as grasping or picking up something.
- position: The environment is not changed; the robot itself may move (e.g., navigation), but no object is added, removed, or moved.

Given the following tool execution, predict what scene-level action type this tool represents.

Tool name: %s
Arguments: %s
Result: %s

Answer strictly with one of: [add_object, remove_object, position]
Answer with only one action type from the list above. Do not include any explanation.`,
		toolName, arguments, observation)
}

// ApplyEffect applies a classified side effect to the world model. The
// returned bool reports whether a mutation was applied; an unrecognized
// classification is a skip, not an error, since the physical action already
// happened and its symbolic mirror is best-effort.
func (s *Store) ApplyEffect(ctx context.Context, robotName, actionType, arguments string) (bool, error) {
	var args map[string]any
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		return false, fmt.Errorf("decode effect arguments: %w", err)
	}

	str := func(key string) string {
		v, _ := args[key].(string)
		return v
	}

	actionType = strings.ToLower(strings.TrimSpace(actionType))
	switch {
	case strings.Contains(actionType, EffectRemoveObject):
		target := str("object")
		if target == "" {
			return false, fmt.Errorf("missing object for remove_object")
		}
		return true, s.RemoveObject(ctx, robotName, target)
	case strings.Contains(actionType, EffectAddObject):
		target := str("object")
		if target == "" {
			return false, fmt.Errorf("missing object for add_object")
		}
		return true, s.AddObject(ctx, robotName, target)
	case strings.Contains(actionType, EffectPosition):
		target := str("target")
		if target == "" {
			return false, fmt.Errorf("missing target for position")
		}
		return true, s.Position(ctx, robotName, target)
	}
	// Unrecognized classification: nothing to mirror.
	return false, nil
}
