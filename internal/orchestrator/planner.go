package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/botfleet/fleetos/internal/oracle"
	"github.com/botfleet/fleetos/internal/registry"
	"github.com/botfleet/fleetos/internal/scene"
)

const plannerPromptTemplate = `Please only use robots %s with skills:
%s
You must also consider the following scene information when decomposing the task:
%s

Please break down the given task into sub-tasks, each of which cannot be too complex; make sure a single robot can do it.
It can't be too simple either, e.g. it can't be a sub-task that a single robot tool call would finish.
Each sub-task in the output needs a concise description which names the robot that completes it.
Additionally give a 200+ word reasoning explanation of the decomposition and analyze whether each step can be done by a single robot based on each robot's tools.

## The output format is as follows, in the form of a JSON structure:
` + "```json" + `
{
    "reasoning_explanation": "...",
    "subtask_list": [
        {"robot_name": "...", "subtask": "...", "subtask_order": 0}
    ]
}
` + "```" + `

## Note: 'subtask_order' means the order of the sub-task.
If sub-tasks are independent they share the same 'subtask_order' and run concurrently.
If a sub-task must start after another finishes, give it a higher 'subtask_order'.

# The task to be completed is: %s. Your output answer:`

// Planner turns a free-text task into a raw decomposition response using
// the live registry and scene as context.
type Planner struct {
	Oracle   oracle.Oracle
	Registry *registry.Registry
	Scene    *scene.Store
}

func NewPlanner(o oracle.Oracle, reg *registry.Registry, sc *scene.Store) *Planner {
	return &Planner{Oracle: o, Registry: reg, Scene: sc}
}

// Decompose performs one planning call. The registry and scene are read
// fresh on every call so retries see registration churn.
func (p *Planner) Decompose(ctx context.Context, task string) (string, error) {
	records, err := p.Registry.ListAll(ctx)
	if err != nil {
		return "", fmt.Errorf("read registry: %w", err)
	}

	names := make([]string, 0, len(records))
	var toolLines strings.Builder
	for _, rec := range records {
		names = append(names, rec.Name)
		for _, t := range rec.Tools {
			fmt.Fprintf(&toolLines, "- %s: %s (%s)\n", rec.Name, t.Name, t.Description)
		}
	}

	sceneInfo := ""
	if p.Scene != nil {
		sceneInfo, err = p.Scene.Summary(ctx)
		if err != nil {
			return "", fmt.Errorf("read scene: %w", err)
		}
	}

	nameList, _ := json.Marshal(names)
	prompt := fmt.Sprintf(plannerPromptTemplate, nameList, toolLines.String(), sceneInfo, task)

	resp, err := p.Oracle.Complete(ctx, oracle.Request{User: prompt})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}
