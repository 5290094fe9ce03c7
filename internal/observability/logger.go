package observability

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"
)

// EventType defines the category of the log event.
type EventType string

const (
	EventTypePlan        EventType = "plan"
	EventTypeValidation  EventType = "validation"
	EventTypeWave        EventType = "wave"
	EventTypeDispatch    EventType = "dispatch"
	EventTypeBarrier     EventType = "barrier"
	EventTypeResult      EventType = "result"
	EventTypeReasoning   EventType = "reasoning"
	EventTypeToolCall    EventType = "tool_call"
	EventTypeToolResult  EventType = "tool_result"
	EventTypeSceneUpdate EventType = "scene_update"
	EventTypePolicyCheck EventType = "policy_check"
	EventTypeHeartbeat   EventType = "heartbeat"
	EventTypeLLM         EventType = "llm"
)

// Event represents a structured log entry.
type Event struct {
	Type      EventType `json:"type"`
	Robot     string    `json:"robot,omitempty"`
	TaskID    string    `json:"task_id,omitempty"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// Logger handles structured logging.
type Logger struct {
	// Out receives the event stream; nil means stdout.
	Out io.Writer

	llmLogPath string
	maxSize    int64
}

func NewLogger() *Logger {
	return NewLoggerAt("logs")
}

// NewLoggerAt places the LLM transcript sink under dir.
func NewLoggerAt(dir string) *Logger {
	return &Logger{
		llmLogPath: filepath.Join(dir, "llm.jsonl"),
		maxSize:    10 * 1024 * 1024, // 10MB
	}
}

// Log emits a structured JSON event to Out.
func (l *Logger) Log(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	out := l.Out
	if out == nil {
		out = os.Stdout
	}
	data, err := json.Marshal(evt)
	if err != nil {
		fmt.Fprintf(out, "{\"error\": \"failed to marshal event: %v\"}\n", err)
		return
	}
	fmt.Fprintln(out, string(data))

	if evt.Type == EventTypeLLM {
		l.writeToFile(data)
	}
}

func (l *Logger) writeToFile(data []byte) {
	if err := os.MkdirAll(filepath.Dir(l.llmLogPath), 0755); err != nil {
		log.Printf("failed to create log directory: %v", err)
		return
	}

	// Check size before writing
	info, err := os.Stat(l.llmLogPath)
	if err == nil && info.Size() > l.maxSize {
		l.rotateLogs()
	}

	f, err := os.OpenFile(l.llmLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.Printf("failed to open log file: %v", err)
		return
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		log.Printf("failed to write to log file: %v", err)
	}
}

func (l *Logger) rotateLogs() {
	// Simple rotation: keep one .old file
	oldPath := l.llmLogPath + ".old"
	_ = os.Remove(oldPath)
	_ = os.Rename(l.llmLogPath, oldPath)
}

// Helper methods for common events

func (l *Logger) LogPlan(taskID string, reasoning string, subtasks int) {
	l.Log(Event{
		Type:   EventTypePlan,
		TaskID: taskID,
		Data: map[string]any{
			"reasoning": reasoning,
			"subtasks":  subtasks,
		},
	})
}

func (l *Logger) LogValidation(taskID, reason string, attempt int) {
	l.Log(Event{
		Type:   EventTypeValidation,
		TaskID: taskID,
		Data: map[string]any{
			"reason":  reason,
			"attempt": attempt,
		},
	})
}

func (l *Logger) LogWave(taskID string, order int, robots []string) {
	l.Log(Event{
		Type:   EventTypeWave,
		TaskID: taskID,
		Data: map[string]any{
			"order":  order,
			"robots": robots,
		},
	})
}

func (l *Logger) LogDispatch(taskID, robot, subtask string) {
	l.Log(Event{
		Type:   EventTypeDispatch,
		Robot:  robot,
		TaskID: taskID,
		Data:   map[string]string{"subtask": subtask},
	})
}

func (l *Logger) LogBarrier(taskID string, order int, outcome string) {
	l.Log(Event{
		Type:   EventTypeBarrier,
		TaskID: taskID,
		Data: map[string]any{
			"order":   order,
			"outcome": outcome,
		},
	})
}

func (l *Logger) LogResult(taskID, robot, subtask, result string) {
	l.Log(Event{
		Type:   EventTypeResult,
		Robot:  robot,
		TaskID: taskID,
		Data: map[string]string{
			"subtask": subtask,
			"result":  result,
		},
	})
}

func (l *Logger) LogToolCall(robot, taskID, tool, args string) {
	l.Log(Event{
		Type:   EventTypeToolCall,
		Robot:  robot,
		TaskID: taskID,
		Data: map[string]string{
			"tool": tool,
			"args": args,
		},
	})
}

func (l *Logger) LogToolResult(robot, taskID, tool, observation string) {
	l.Log(Event{
		Type:   EventTypeToolResult,
		Robot:  robot,
		TaskID: taskID,
		Data: map[string]string{
			"tool":        tool,
			"observation": observation,
		},
	})
}

func (l *Logger) LogReasoning(robot, taskID, content string) {
	l.Log(Event{
		Type:   EventTypeReasoning,
		Robot:  robot,
		TaskID: taskID,
		Data:   map[string]string{"content": content},
	})
}

func (l *Logger) LogPolicyCheck(robot, tool, effect, reason string) {
	l.Log(Event{
		Type:  EventTypePolicyCheck,
		Robot: robot,
		Data: map[string]string{
			"tool":   tool,
			"effect": effect,
			"reason": reason,
		},
	})
}

// LogSceneSkip marks a classified tool effect that required no scene change.
func (l *Logger) LogSceneSkip(robot, action string, args any) {
	l.Log(Event{
		Type:  EventTypeSceneUpdate,
		Robot: robot,
		Data: map[string]any{
			"action": action,
			"args":   args,
			"status": "no update required",
		},
	})
}

func (l *Logger) LogSceneUpdate(robot, action string, args any, err error) {
	data := map[string]any{
		"action": action,
		"args":   args,
	}
	if err != nil {
		data["error"] = err.Error()
	}
	l.Log(Event{
		Type:  EventTypeSceneUpdate,
		Robot: robot,
		Data:  data,
	})
}

func (l *Logger) LogHeartbeat(robot string) {
	l.Log(Event{
		Type:  EventTypeHeartbeat,
		Robot: robot,
		Data:  map[string]string{"status": "alive"},
	})
}

func (l *Logger) LogLLM(robot, taskID string, prompt any, response string, toolCalls any) {
	l.Log(Event{
		Type:   EventTypeLLM,
		Robot:  robot,
		TaskID: taskID,
		Data: map[string]any{
			"prompt":     prompt,
			"response":   response,
			"tool_calls": toolCalls,
		},
	})
}
