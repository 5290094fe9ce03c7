// Package orchestrator plans tasks against the live robot registry and
// drives wave-by-wave dispatch with a completion barrier between waves.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/botfleet/fleetos/internal/backend"
	"github.com/botfleet/fleetos/internal/observability"
	"github.com/botfleet/fleetos/internal/protocol"
	"github.com/botfleet/fleetos/internal/registry"
	"github.com/botfleet/fleetos/internal/store"
	"github.com/google/uuid"
)

// Engine is the master's coordination core.
type Engine struct {
	MasterID string
	Backend  backend.Backend
	Registry *registry.Registry
	Planner  *Planner
	Runs     *store.RunStore
	Logger   *observability.Logger

	PlanRetries int
	WaveTimeout time.Duration // non-positive waits forever
	pollEvery   time.Duration

	mu        sync.Mutex
	listening map[string]bool
}

func NewEngine(masterID string, b backend.Backend, reg *registry.Registry, planner *Planner, runs *store.RunStore, logger *observability.Logger) *Engine {
	return &Engine{
		MasterID:    masterID,
		Backend:     b,
		Registry:    reg,
		Planner:     planner,
		Runs:        runs,
		Logger:      logger,
		PlanRetries: 3,
		pollEvery:   200 * time.Millisecond,
		listening:   make(map[string]bool),
	}
}

// Start subscribes to robot registrations and begins listening on the
// result channel of every robot already live.
func (e *Engine) Start(ctx context.Context) error {
	err := e.Backend.Subscribe(ctx, protocol.RegistrationChannel, func(payload string) {
		e.handleRegistration(ctx, strings.TrimSpace(payload))
	})
	if err != nil {
		return fmt.Errorf("subscribe registrations: %w", err)
	}

	names, err := e.Registry.ListNames(ctx)
	if err != nil {
		return fmt.Errorf("list robots: %w", err)
	}
	for _, name := range names {
		e.handleRegistration(ctx, name)
	}
	return nil
}

func (e *Engine) handleRegistration(ctx context.Context, robotName string) {
	if robotName == "" {
		return
	}
	e.mu.Lock()
	if e.listening[robotName] {
		e.mu.Unlock()
		return
	}
	e.listening[robotName] = true
	e.mu.Unlock()

	channel := protocol.OutboundChannel(e.MasterID, robotName)
	if err := e.Backend.Subscribe(ctx, channel, func(payload string) {
		e.handleResult(ctx, payload)
	}); err != nil {
		log.Printf("failed to listen on %s: %v", channel, err)
		e.mu.Lock()
		delete(e.listening, robotName)
		e.mu.Unlock()
		return
	}
	log.Printf("%s listening to [%s] on channel [%s]", e.MasterID, robotName, channel)
}

func (e *Engine) handleResult(ctx context.Context, payload string) {
	var result protocol.Result
	if err := json.Unmarshal([]byte(payload), &result); err != nil {
		log.Printf("received malformed result payload: %v", err)
		return
	}
	if result.RobotName == "" {
		log.Printf("received incomplete result data")
		return
	}

	e.Logger.LogResult(result.TaskID, result.RobotName, result.SubtaskHandle, result.SubtaskResult)
	if err := e.Registry.SetBusy(ctx, result.RobotName, false); err != nil {
		log.Printf("failed to mark %s idle: %v", result.RobotName, err)
	}
	if e.Runs != nil {
		calls, _ := json.Marshal(result.ToolCalls)
		if err := e.Runs.AddResult(result.TaskID, result.RobotName, result.SubtaskHandle, result.SubtaskResult, string(calls)); err != nil {
			log.Printf("failed to journal result: %v", err)
		}
	}
}

// PublishTask plans a task and, on a valid plan, kicks off asynchronous
// wave dispatch. It returns the validated plan immediately; dispatch
// progress is not the caller's concern. An exhausted retry budget abandons
// the task: nothing is ever partially dispatched.
func (e *Engine) PublishTask(ctx context.Context, task string, refresh bool, taskID string) (*Plan, error) {
	var plan *Plan
	for attempt := 0; attempt <= e.PlanRetries; attempt++ {
		if attempt > 0 {
			e.Logger.LogValidation(taskID, "plan rejected, retrying", attempt)
		}
		response, err := e.Planner.Decompose(ctx, task)
		if err != nil {
			log.Printf("planning call failed (attempt %d): %v", attempt+1, err)
			continue
		}
		candidate := ParsePlan(response)

		// Fresh snapshot per attempt: robots appear and disappear
		// between retries.
		names, err := e.Registry.ListNames(ctx)
		if err != nil {
			log.Printf("registry snapshot failed (attempt %d): %v", attempt+1, err)
			continue
		}
		if candidate.Validate(names) {
			plan = candidate
			break
		}
	}
	if taskID == "" {
		taskID = strings.ReplaceAll(uuid.NewString(), "-", "")
	}

	if plan == nil {
		e.Logger.LogValidation(taskID, "abandoned after retry budget", e.PlanRetries)
		if e.Runs != nil {
			if err := e.Runs.AddRun(taskID, task, ""); err != nil {
				log.Printf("failed to journal run: %v", err)
			} else if err := e.Runs.UpdateRunStatus(taskID, store.RunStatusAbandoned); err != nil {
				log.Printf("failed to journal run status: %v", err)
			}
		}
		return nil, fmt.Errorf("task %q could not be decomposed into a valid plan", task)
	}
	e.Logger.LogPlan(taskID, plan.ReasoningExplanation, len(plan.SubtaskList))

	if e.Runs != nil {
		planJSON, _ := json.Marshal(plan)
		if err := e.Runs.AddRun(taskID, task, string(planJSON)); err != nil {
			log.Printf("failed to journal run: %v", err)
		}
	}

	// Dispatch never blocks the planning caller. It outlives the request
	// context deliberately; in-flight waves keep draining after the HTTP
	// response is gone.
	go e.dispatch(context.Background(), taskID, plan.Waves(), refresh)

	return plan, nil
}

func (e *Engine) dispatch(ctx context.Context, taskID string, waves []Wave, refresh bool) {
	orderFlag := "false"
	if len(waves) > 1 {
		orderFlag = "true"
	}

	for _, wave := range waves {
		robots := make([]string, 0, len(wave.Subtasks))
		for _, st := range wave.Subtasks {
			robots = append(robots, st.RobotName)
		}
		e.Logger.LogWave(taskID, wave.Order, robots)

		for _, st := range wave.Subtasks {
			if refresh {
				if err := e.Registry.ClearStatus(ctx, st.RobotName); err != nil {
					log.Printf("failed to clear status for %s: %v", st.RobotName, err)
				}
			}
			if err := e.Registry.SetBusy(ctx, st.RobotName, true); err != nil {
				log.Printf("failed to mark %s busy: %v", st.RobotName, err)
			}

			msg, _ := json.Marshal(protocol.Dispatch{
				TaskID:    taskID,
				Task:      st.Subtask,
				OrderFlag: orderFlag,
			})
			channel := protocol.InboundChannel(e.MasterID, st.RobotName)
			if err := e.Backend.Publish(ctx, channel, string(msg)); err != nil {
				log.Printf("failed to dispatch to %s: %v", st.RobotName, err)
			}
			e.Logger.LogDispatch(taskID, st.RobotName, st.Subtask)
		}

		if !e.waitWaveIdle(ctx, robots) {
			e.Logger.LogBarrier(taskID, wave.Order, "timeout")
			if e.Runs != nil {
				if err := e.Runs.UpdateRunStatus(taskID, store.RunStatusFailed); err != nil {
					log.Printf("failed to journal run status: %v", err)
				}
			}
			return
		}
		e.Logger.LogBarrier(taskID, wave.Order, "complete")
	}

	if e.Runs != nil {
		if err := e.Runs.UpdateRunStatus(taskID, store.RunStatusDone); err != nil {
			log.Printf("failed to journal run status: %v", err)
		}
	}
}

// waitWaveIdle blocks until every named robot is idle again. The wait is
// bounded by WaveTimeout when it is non-zero; the reference system waited
// forever, which turns one dead robot into a wedged orchestrator.
func (e *Engine) waitWaveIdle(ctx context.Context, robots []string) bool {
	var deadline <-chan time.Time
	if e.WaveTimeout > 0 {
		timer := time.NewTimer(e.WaveTimeout)
		defer timer.Stop()
		deadline = timer.C
	}

	ticker := time.NewTicker(e.pollEvery)
	defer ticker.Stop()

	for {
		if e.allIdle(ctx, robots) {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-deadline:
			return false
		case <-ticker.C:
		}
	}
}

func (e *Engine) allIdle(ctx context.Context, robots []string) bool {
	for _, name := range robots {
		rec, err := e.Registry.Read(ctx, name)
		if err != nil || rec == nil {
			// Expired or unreadable robots keep the barrier held
			// until the bounded wait gives up.
			return false
		}
		if rec.State != registry.StateIdle {
			return false
		}
	}
	return true
}
