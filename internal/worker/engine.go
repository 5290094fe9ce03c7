// Package worker runs one robot: registration, liveness heartbeats, the
// subtask listener, and the bounded think/act/observe loop per subtask.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/botfleet/fleetos/internal/backend"
	"github.com/botfleet/fleetos/internal/governance"
	"github.com/botfleet/fleetos/internal/observability"
	"github.com/botfleet/fleetos/internal/oracle"
	"github.com/botfleet/fleetos/internal/protocol"
	"github.com/botfleet/fleetos/internal/registry"
	"github.com/botfleet/fleetos/internal/scene"
	"github.com/botfleet/fleetos/internal/tools"
)

type Engine struct {
	Name     string
	MasterID string

	Backend  backend.Backend
	Registry *registry.Registry
	Scene    *scene.Store
	Oracle   oracle.Oracle
	Executor tools.Executor
	Policy   governance.PolicyEngine
	Logger   *observability.Logger

	MaxSteps        int
	HeartbeatPeriod time.Duration
	RegistrationTTL time.Duration

	declaredTools []tools.Info

	// taskMu serializes task execution: at most one subtask runs at a
	// time, later dispatches queue behind it.
	taskMu sync.Mutex
}

// Start performs the tool-executor handshake, registers the robot, and
// launches the heartbeat and subtask-listener loops. It returns once the
// robot is live; the loops stop when ctx is cancelled.
func (e *Engine) Start(ctx context.Context) error {
	declared, err := e.Executor.ListTools(ctx)
	if err != nil {
		return fmt.Errorf("tool executor handshake: %w", err)
	}
	e.declaredTools = declared

	rec := registry.AgentRecord{
		Name:  e.Name,
		Tools: declared,
		State: registry.StateIdle,
	}
	if err := e.Registry.Register(ctx, rec, e.RegistrationTTL); err != nil {
		return fmt.Errorf("register robot: %w", err)
	}
	if err := e.Backend.Publish(ctx, protocol.RegistrationChannel, e.Name); err != nil {
		return fmt.Errorf("announce registration: %w", err)
	}

	go e.heartbeatLoop(ctx)

	channel := protocol.InboundChannel(e.MasterID, e.Name)
	if err := e.Backend.Subscribe(ctx, channel, func(payload string) {
		e.handleDispatch(ctx, payload)
	}); err != nil {
		return fmt.Errorf("subscribe subtasks: %w", err)
	}

	log.Printf("robot %s registered with %d tools, listening on [%s]", e.Name, len(declared), channel)
	return nil
}

// heartbeatLoop refreshes the registration TTL regardless of task
// activity; a robot stuck in a long tool call is still alive.
func (e *Engine) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(e.HeartbeatPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.Registry.Heartbeat(ctx, e.Name, e.RegistrationTTL); err != nil {
				log.Printf("heartbeat error: %v", err)
				continue
			}
			e.Logger.LogHeartbeat(e.Name)
		}
	}
}

func (e *Engine) handleDispatch(ctx context.Context, payload string) {
	var dispatch protocol.Dispatch
	if err := json.Unmarshal([]byte(payload), &dispatch); err != nil {
		log.Printf("malformed dispatch payload: %v", err)
		return
	}

	e.taskMu.Lock()
	defer e.taskMu.Unlock()

	run := e.runTask(ctx, dispatch.TaskID, dispatch.Task)

	result := protocol.Result{
		RobotName:     e.Name,
		SubtaskHandle: dispatch.Task,
		SubtaskResult: run.Answer,
		ToolCalls:     run.ToolCalls,
		TaskID:        dispatch.TaskID,
	}
	data, err := json.Marshal(result)
	if err != nil {
		log.Printf("marshal result: %v", err)
		return
	}
	channel := protocol.OutboundChannel(e.MasterID, e.Name)
	if err := e.Backend.Publish(ctx, channel, string(data)); err != nil {
		log.Printf("publish result: %v", err)
	}
	if err := e.Registry.SetBusy(ctx, e.Name, false); err != nil {
		log.Printf("failed to mark %s idle: %v", e.Name, err)
	}
}

// Unregister removes the robot's record explicitly on clean shutdown.
func (e *Engine) Unregister(ctx context.Context) error {
	return e.Registry.Unregister(ctx, e.Name)
}
