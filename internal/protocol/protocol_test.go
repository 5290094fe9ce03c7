package protocol

import (
	"encoding/json"
	"testing"
)

func TestChannelNames(t *testing.T) {
	if got := InboundChannel("fleetos", "robot_1"); got != "fleetos_to_robot_1" {
		t.Errorf("inbound = %q", got)
	}
	if got := OutboundChannel("fleetos", "robot_1"); got != "robot_1_to_fleetos" {
		t.Errorf("outbound = %q", got)
	}
}

func TestDispatchWireFormat(t *testing.T) {
	data, err := json.Marshal(Dispatch{TaskID: "abc", Task: "fetch the mug", OrderFlag: "true"})
	if err != nil {
		t.Fatal(err)
	}
	want := `{"task_id":"abc","task":"fetch the mug","order_flag":"true"}`
	if string(data) != want {
		t.Errorf("dispatch wire format = %s", data)
	}
}

func TestResultWireFormat(t *testing.T) {
	payload := `{
		"robot_name": "robot_1",
		"subtask_handle": "fetch the mug",
		"subtask_result": "done",
		"tools": [{"tool_name": "grasp_object", "tool_arguments": "{\"object\":\"mug\"}"}],
		"task_id": "abc"
	}`
	var r Result
	if err := json.Unmarshal([]byte(payload), &r); err != nil {
		t.Fatal(err)
	}
	if r.RobotName != "robot_1" || r.TaskID != "abc" {
		t.Errorf("result = %+v", r)
	}
	if len(r.ToolCalls) != 1 || r.ToolCalls[0].Name != "grasp_object" {
		t.Errorf("tool calls = %+v", r.ToolCalls)
	}
}
