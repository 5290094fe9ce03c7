package orchestrator

import (
	"encoding/json"
	"sort"
	"strings"
)

// Subtask is one planned unit of work for a named robot. Subtasks sharing
// an order value form one wave.
type Subtask struct {
	RobotName string `json:"robot_name"`
	Subtask   string `json:"subtask"`
	Order     int    `json:"subtask_order"`
}

// Plan is the oracle's structured decomposition of a task.
type Plan struct {
	ReasoningExplanation string    `json:"reasoning_explanation"`
	SubtaskList          []Subtask `json:"subtask_list"`
}

// Wave is the set of subtasks dispatched together.
type Wave struct {
	Order    int
	Subtasks []Subtask
}

// ExtractJSON pulls the first fenced ```json block out of a model response.
// A missing or malformed block yields nil, never an error: the caller
// retries planning instead of failing.
func ExtractJSON(input string) []byte {
	const startMarker = "```json"
	const endMarker = "```"

	start := strings.Index(input, startMarker)
	if start < 0 {
		return nil
	}
	rest := input[start+len(startMarker):]
	end := strings.Index(rest, endMarker)
	if end < 0 {
		return nil
	}
	raw := strings.TrimSpace(rest[:end])
	if !json.Valid([]byte(raw)) {
		return nil
	}
	return []byte(raw)
}

// ParsePlan extracts and decodes a plan from a raw oracle response.
// Returns nil when no valid plan can be recovered.
func ParsePlan(response string) *Plan {
	raw := ExtractJSON(response)
	if raw == nil {
		return nil
	}
	var plan Plan
	if err := json.Unmarshal(raw, &plan); err != nil {
		return nil
	}
	return &plan
}

// Validate checks a plan against a registry snapshot: a non-empty subtask
// list whose robot names are all currently live. The snapshot must be
// re-read per attempt; robots churn between retries.
func (p *Plan) Validate(liveRobots []string) bool {
	if p == nil || len(p.SubtaskList) == 0 {
		return false
	}
	live := make(map[string]bool, len(liveRobots))
	for _, name := range liveRobots {
		live[name] = true
	}
	for _, st := range p.SubtaskList {
		if st.RobotName == "" || !live[st.RobotName] {
			return false
		}
	}
	return true
}

// Waves groups the subtasks by order, ascending.
func (p *Plan) Waves() []Wave {
	grouped := make(map[int][]Subtask)
	for _, st := range p.SubtaskList {
		grouped[st.Order] = append(grouped[st.Order], st)
	}
	orders := make([]int, 0, len(grouped))
	for order := range grouped {
		orders = append(orders, order)
	}
	sort.Ints(orders)

	waves := make([]Wave, 0, len(orders))
	for _, order := range orders {
		waves = append(waves, Wave{Order: order, Subtasks: grouped[order]})
	}
	return waves
}
