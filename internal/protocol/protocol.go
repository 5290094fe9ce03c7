// Package protocol defines the message shapes and channel names exchanged
// between the master and its robots over the coordination backend. All
// payloads are JSON-encoded UTF-8.
package protocol

import "fmt"

// RegistrationChannel is the shared channel on which every robot announces
// its name right after writing its registry record.
const RegistrationChannel = "AGENT_REGISTRATION"

// Dispatch is one subtask sent from the master to a robot's inbound channel.
type Dispatch struct {
	TaskID string `json:"task_id"`
	Task   string `json:"task"`
	// OrderFlag is "true" when the subtask is part of a multi-wave
	// sequence and "false" for a standalone single-wave task. It is
	// bookkeeping context for the robot, not barrier input.
	OrderFlag string `json:"order_flag"`
}

// Result is published by a robot on its outbound channel when a subtask run
// terminates, by any path.
type Result struct {
	RobotName     string     `json:"robot_name"`
	SubtaskHandle string     `json:"subtask_handle"`
	SubtaskResult string     `json:"subtask_result"`
	ToolCalls     []ToolCall `json:"tools"`
	TaskID        string     `json:"task_id"`
}

// ToolCall records one actuator invocation made during a run.
type ToolCall struct {
	Name      string `json:"tool_name"`
	Arguments string `json:"tool_arguments"`
}

// InboundChannel is the robot's dedicated subtask channel.
func InboundChannel(masterID, robotName string) string {
	return fmt.Sprintf("%s_to_%s", masterID, robotName)
}

// OutboundChannel is the robot's dedicated result channel.
func OutboundChannel(masterID, robotName string) string {
	return fmt.Sprintf("%s_to_%s", robotName, masterID)
}
