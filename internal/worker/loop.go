package worker

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/botfleet/fleetos/internal/governance"
	"github.com/botfleet/fleetos/internal/oracle"
	"github.com/botfleet/fleetos/internal/protocol"
	"github.com/botfleet/fleetos/internal/scene"
)

const robotSystemPrompt = `You are a robot control agent. You solve the assigned task step by step.
At each step, either call exactly one tool to act in the world, or answer in plain text when the task is complete.
Never repeat a tool call that has already succeeded; consult the completed-action summary before acting.`

// Outcome names how a task run terminated.
type Outcome string

const (
	OutcomeFinalAnswer     Outcome = "final_answer"
	OutcomeStalled         Outcome = "stalled"
	OutcomeMaxStepsReached Outcome = "max_steps_reached"
	OutcomeError           Outcome = "error"
)

// ActionStep is one loop iteration. Steps live only for the duration of
// the run; the reported tool-call log is the only thing that survives.
type ActionStep struct {
	StepNumber  int
	ModelOutput string
	ToolName    string
	ToolArgs    string
	Observation string
	StartTime   time.Time
	EndTime     time.Time
	Err         error
}

// RunResult is what a finished loop hands back to the engine.
type RunResult struct {
	Outcome   Outcome
	Answer    string
	Steps     []ActionStep
	ToolCalls []protocol.ToolCall
}

// runTask drives the bounded think/act/observe loop for one subtask.
//
// Termination paths: the oracle answers in plain text (final answer), the
// oracle proposes the same tool call twice in a row (no-progress stall),
// or the step ceiling is hit, in which case one extra call synthesizes a
// best-effort answer.
func (e *Engine) runTask(ctx context.Context, taskID, task string) RunResult {
	var run RunResult

	for step := 1; step <= e.MaxSteps; step++ {
		actionStep := ActionStep{StepNumber: step, StartTime: time.Now()}

		digest, err := e.Registry.ReadStatus(ctx, e.Name)
		if err != nil {
			log.Printf("read status digest: %v", err)
		}

		resp, err := e.Oracle.Complete(ctx, oracle.Request{
			System: robotSystemPrompt,
			User:   e.taskPrompt(task, digest),
			Tools:  e.declaredTools,
			Stop:   []string{"Observation:"},
		})
		if err != nil {
			actionStep.Err = err
			actionStep.EndTime = time.Now()
			run.Steps = append(run.Steps, actionStep)
			run.Outcome = OutcomeError
			run.Answer = fmt.Sprintf("Task failed: reasoning call error: %v", err)
			return run
		}
		actionStep.ModelOutput = resp.Content
		e.Logger.LogLLM(e.Name, taskID, task, resp.Content, resp.ToolCalls)
		if resp.Content != "" && len(resp.ToolCalls) > 0 {
			e.Logger.LogReasoning(e.Name, taskID, resp.Content)
		}

		// Plain text means the task is done.
		if len(resp.ToolCalls) == 0 {
			actionStep.EndTime = time.Now()
			run.Steps = append(run.Steps, actionStep)
			run.Outcome = OutcomeFinalAnswer
			run.Answer = finalAnswer(resp.Content)
			return run
		}

		call := resp.ToolCalls[0]
		actionStep.ToolName = call.Name
		actionStep.ToolArgs = call.Arguments

		// An oracle that re-proposes the identical call is making no
		// progress; stop rather than spin.
		if n := len(run.ToolCalls); n > 0 {
			prev := run.ToolCalls[n-1]
			if prev.Name == call.Name && prev.Arguments == call.Arguments {
				actionStep.EndTime = time.Now()
				run.Steps = append(run.Steps, actionStep)
				run.Outcome = OutcomeStalled
				run.Answer = finalAnswer(resp.Content)
				return run
			}
		}
		run.ToolCalls = append(run.ToolCalls, protocol.ToolCall{Name: call.Name, Arguments: call.Arguments})

		observation := e.executeTool(ctx, taskID, call)
		actionStep.Observation = observation
		actionStep.EndTime = time.Now()
		run.Steps = append(run.Steps, actionStep)

		line := fmt.Sprintf("Step %d: %s(%s) -> %s", step, call.Name, call.Arguments, observation)
		if err := e.Registry.RecordStatus(ctx, e.Name, line); err != nil {
			log.Printf("record status digest: %v", err)
		}
	}

	run.Outcome = OutcomeMaxStepsReached
	run.Answer = e.synthesizeAnswer(ctx, task)
	return run
}

func (e *Engine) taskPrompt(task, digest string) string {
	if digest == "" {
		return fmt.Sprintf("Task: %s", task)
	}
	return fmt.Sprintf("Task: %s\n\nCompleted actions so far:\n%s", task, digest)
}

// executeTool runs one actuator call. Policy denials and execution errors
// both come back as observation text; the loop keeps reasoning and lets
// the oracle decide what to do next.
func (e *Engine) executeTool(ctx context.Context, taskID string, call oracle.ToolCall) string {
	e.Logger.LogToolCall(e.Name, taskID, call.Name, call.Arguments)

	if e.Policy != nil {
		verdict, err := e.Policy.Evaluate(ctx, governance.Request{
			Tool:      call.Name,
			Arguments: call.Arguments,
			Robot:     e.Name,
		})
		if err == nil {
			e.Logger.LogPolicyCheck(e.Name, call.Name, string(verdict.Effect), verdict.Reason)
		}
		if err == nil && verdict.Effect == governance.EffectDeny {
			observation := fmt.Sprintf("Tool call denied: %s", verdict.Reason)
			e.Logger.LogToolResult(e.Name, taskID, call.Name, observation)
			return observation
		}
	}

	observation, err := e.Executor.CallTool(ctx, call.Name, call.Arguments)
	if err != nil {
		observation = fmt.Sprintf("Error: %v", err)
	}
	e.Logger.LogToolResult(e.Name, taskID, call.Name, observation)

	// Mirror the action into the world model off the hot path. The
	// physical action already happened; a failed mirror is logged, not
	// fatal.
	go e.predictSceneEffect(ctx, call, observation)

	return observation
}

func (e *Engine) predictSceneEffect(ctx context.Context, call oracle.ToolCall, observation string) {
	if e.Scene == nil {
		return
	}
	prompt := scene.ClassifyPrompt(call.Name, call.Arguments, observation)
	resp, err := e.Oracle.Complete(ctx, oracle.Request{User: prompt})
	if err != nil {
		e.Logger.LogSceneUpdate(e.Name, "", call.Arguments, err)
		return
	}
	action := strings.ToLower(strings.TrimSpace(resp.Content))
	applied, err := e.Scene.ApplyEffect(ctx, e.Name, action, call.Arguments)
	if err != nil {
		e.Logger.LogSceneUpdate(e.Name, action, call.Arguments, err)
		return
	}
	if !applied {
		e.Logger.LogSceneSkip(e.Name, action, call.Arguments)
		return
	}
	e.Logger.LogSceneUpdate(e.Name, action, call.Arguments, nil)
}

// synthesizeAnswer makes one final oracle call after the step ceiling so
// the robot reports a best-effort result instead of nothing.
func (e *Engine) synthesizeAnswer(ctx context.Context, task string) string {
	digest, err := e.Registry.ReadStatus(ctx, e.Name)
	if err != nil {
		log.Printf("read status digest: %v", err)
	}
	prompt := fmt.Sprintf(
		"The step limit for this task was reached. Provide your best final answer given everything so far.\n\nTask: %s\n\nCompleted actions:\n%s",
		task, digest)
	resp, err := e.Oracle.Complete(ctx, oracle.Request{System: robotSystemPrompt, User: prompt})
	if err != nil || resp.Content == "" {
		return "Maximum number of attempts reached, mission not completed"
	}
	return resp.Content
}

func finalAnswer(content string) string {
	if strings.TrimSpace(content) == "" {
		return "Mission accomplished"
	}
	return content
}
