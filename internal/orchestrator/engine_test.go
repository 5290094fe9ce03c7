package orchestrator

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/botfleet/fleetos/internal/backend"
	"github.com/botfleet/fleetos/internal/observability"
	"github.com/botfleet/fleetos/internal/oracle"
	"github.com/botfleet/fleetos/internal/protocol"
	"github.com/botfleet/fleetos/internal/registry"
	"github.com/botfleet/fleetos/internal/store"
)

// scriptedOracle returns canned responses in order, then repeats the last.
type scriptedOracle struct {
	mu        sync.Mutex
	responses []string
	calls     int
}

func (o *scriptedOracle) Complete(ctx context.Context, req oracle.Request) (*oracle.Response, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	idx := o.calls
	if idx >= len(o.responses) {
		idx = len(o.responses) - 1
	}
	o.calls++
	return &oracle.Response{Content: o.responses[idx]}, nil
}

func planResponse(subtasks ...Subtask) string {
	plan := Plan{ReasoningExplanation: "scripted", SubtaskList: subtasks}
	raw, _ := json.Marshal(plan)
	return "```json\n" + string(raw) + "\n```"
}

func newTestEngine(t *testing.T, o oracle.Oracle) (*Engine, *registry.Registry, backend.Backend) {
	t.Helper()
	b := backend.NewMemory()
	reg := registry.New(b)
	planner := NewPlanner(o, reg, nil)
	e := NewEngine("fleetos", b, reg, planner, nil, observability.NewLogger())
	e.pollEvery = 10 * time.Millisecond
	return e, reg, b
}

func registerRobot(t *testing.T, reg *registry.Registry, name string) {
	t.Helper()
	if err := reg.Register(context.Background(), registry.AgentRecord{Name: name}, time.Minute); err != nil {
		t.Fatal(err)
	}
}

// dispatchRecorder collects dispatches sent to a robot's inbound channel
// and answers like an instantly-successful robot when echo is set.
type dispatchRecorder struct {
	mu       sync.Mutex
	received []protocol.Dispatch
	stamps   []time.Time
}

func recordDispatches(t *testing.T, ctx context.Context, b backend.Backend, reg *registry.Registry, robot string, autoIdle bool) *dispatchRecorder {
	t.Helper()
	rec := &dispatchRecorder{}
	err := b.Subscribe(ctx, protocol.InboundChannel("fleetos", robot), func(payload string) {
		var d protocol.Dispatch
		if err := json.Unmarshal([]byte(payload), &d); err != nil {
			t.Errorf("bad dispatch payload: %v", err)
			return
		}
		rec.mu.Lock()
		rec.received = append(rec.received, d)
		rec.stamps = append(rec.stamps, time.Now())
		rec.mu.Unlock()
		if autoIdle {
			result, _ := json.Marshal(protocol.Result{
				RobotName:     robot,
				SubtaskHandle: d.Task,
				SubtaskResult: "done",
				TaskID:        d.TaskID,
			})
			_ = b.Publish(ctx, protocol.OutboundChannel("fleetos", robot), string(result))
		}
	})
	if err != nil {
		t.Fatal(err)
	}
	return rec
}

func (r *dispatchRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.received)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestPublishTask_RejectsUnregisteredRobot(t *testing.T) {
	o := &scriptedOracle{responses: []string{
		planResponse(Subtask{RobotName: "robot_c", Subtask: "x", Order: 0}),
	}}
	e, reg, b := newTestEngine(t, o)
	e.PlanRetries = 2
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registerRobot(t, reg, "robot_a")
	registerRobot(t, reg, "robot_b")

	recA := recordDispatches(t, ctx, b, reg, "robot_a", false)
	recC := recordDispatches(t, ctx, b, reg, "robot_c", false)

	plan, err := e.PublishTask(ctx, "move something", false, "")
	if err == nil {
		t.Fatalf("expected abandonment, got plan %+v", plan)
	}
	if o.calls != 3 {
		t.Errorf("expected initial attempt + 2 retries = 3 oracle calls, got %d", o.calls)
	}

	time.Sleep(50 * time.Millisecond)
	if recA.count() != 0 || recC.count() != 0 {
		t.Error("abandoned plan must never be partially dispatched")
	}
}

func TestPublishTask_AbandonedRunJournaled(t *testing.T) {
	o := &scriptedOracle{responses: []string{
		planResponse(Subtask{RobotName: "robot_ghost", Subtask: "x", Order: 0}),
	}}
	e, _, _ := newTestEngine(t, o)
	e.PlanRetries = 1

	runs, err := store.NewRunStore(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer runs.Close()
	e.Runs = runs

	if _, err := e.PublishTask(context.Background(), "impossible task", false, ""); err == nil {
		t.Fatal("expected abandonment")
	}

	var status string
	if err := runs.DB.QueryRow(`SELECT status FROM runs WHERE task = ?`, "impossible task").Scan(&status); err != nil {
		t.Fatal(err)
	}
	if status != store.RunStatusAbandoned {
		t.Errorf("status = %q, want %q", status, store.RunStatusAbandoned)
	}
}

func TestPublishTask_RetrySeesFreshRegistry(t *testing.T) {
	o := &scriptedOracle{responses: []string{
		planResponse(Subtask{RobotName: "robot_late", Subtask: "x", Order: 0}),
	}}
	e, reg, _ := newTestEngine(t, o)
	e.PlanRetries = 5
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The robot registers only after the first attempt has failed.
	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = reg.Register(context.Background(), registry.AgentRecord{Name: "robot_late"}, time.Minute)
	}()

	var plan *Plan
	var err error
	waitFor(t, 2*time.Second, func() bool {
		plan, err = e.PublishTask(ctx, "task", false, "")
		return err == nil
	}, "plan never validated against the fresh registry")
	if plan == nil || len(plan.SubtaskList) != 1 {
		t.Fatalf("unexpected plan: %+v", plan)
	}
}

func TestDispatch_WavesAscendWithBarrier(t *testing.T) {
	o := &scriptedOracle{responses: []string{planResponse(
		Subtask{RobotName: "robot_a", Subtask: "wave0-a", Order: 0},
		Subtask{RobotName: "robot_b", Subtask: "wave0-b", Order: 0},
		Subtask{RobotName: "robot_a", Subtask: "wave1", Order: 1},
		Subtask{RobotName: "robot_b", Subtask: "wave2", Order: 2},
	)}}
	e, reg, b := newTestEngine(t, o)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registerRobot(t, reg, "robot_a")
	registerRobot(t, reg, "robot_b")
	if err := e.Start(ctx); err != nil {
		t.Fatal(err)
	}

	recA := recordDispatches(t, ctx, b, reg, "robot_a", true)
	recB := recordDispatches(t, ctx, b, reg, "robot_b", true)

	plan, err := e.PublishTask(ctx, "multi wave task", false, "task123")
	if err != nil {
		t.Fatal(err)
	}
	if len(plan.Waves()) != 3 {
		t.Fatalf("expected 3 waves, got %d", len(plan.Waves()))
	}

	waitFor(t, 3*time.Second, func() bool {
		return recA.count() == 2 && recB.count() == 2
	}, "not all waves dispatched")

	recA.mu.Lock()
	defer recA.mu.Unlock()
	recB.mu.Lock()
	defer recB.mu.Unlock()

	if recA.received[0].Task != "wave0-a" || recA.received[1].Task != "wave1" {
		t.Errorf("robot_a dispatch order wrong: %+v", recA.received)
	}
	if recB.received[0].Task != "wave0-b" || recB.received[1].Task != "wave2" {
		t.Errorf("robot_b dispatch order wrong: %+v", recB.received)
	}
	// Wave 2 must not start before wave 1 completed; wave 1's dispatch
	// precedes wave 2's dispatch on the other robot.
	if recB.stamps[1].Before(recA.stamps[1]) {
		t.Error("wave 2 dispatched before wave 1")
	}
	for _, d := range recA.received {
		if d.OrderFlag != "true" {
			t.Errorf("multi-wave task should carry order_flag true, got %q", d.OrderFlag)
		}
	}
}

func TestDispatch_SingleWaveTask(t *testing.T) {
	o := &scriptedOracle{responses: []string{planResponse(
		Subtask{RobotName: "robot_1", Subtask: "fetch apple from table", Order: 0},
	)}}
	e, reg, b := newTestEngine(t, o)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registerRobot(t, reg, "robot_1")
	registerRobot(t, reg, "robot_2")
	if err := e.Start(ctx); err != nil {
		t.Fatal(err)
	}

	rec1 := recordDispatches(t, ctx, b, reg, "robot_1", true)
	rec2 := recordDispatches(t, ctx, b, reg, "robot_2", true)

	if _, err := e.PublishTask(ctx, "robot_1 fetch apple from table", false, ""); err != nil {
		t.Fatal(err)
	}

	waitFor(t, 2*time.Second, func() bool { return rec1.count() == 1 }, "subtask not dispatched")

	// The barrier releases on robot_1's result alone.
	waitFor(t, 2*time.Second, func() bool {
		r, _ := reg.Read(ctx, "robot_1")
		return r != nil && r.State == registry.StateIdle
	}, "robot_1 never returned to idle")

	if rec2.count() != 0 {
		t.Error("uninvolved robot received a dispatch")
	}
	rec1.mu.Lock()
	if rec1.received[0].OrderFlag != "false" {
		t.Errorf("single-wave task should carry order_flag false, got %q", rec1.received[0].OrderFlag)
	}
	rec1.mu.Unlock()
}

func TestDispatch_BarrierTimeout(t *testing.T) {
	o := &scriptedOracle{responses: []string{planResponse(
		Subtask{RobotName: "robot_silent", Subtask: "never answers", Order: 0},
		Subtask{RobotName: "robot_silent", Subtask: "unreached wave", Order: 1},
	)}}
	e, reg, b := newTestEngine(t, o)
	e.WaveTimeout = 100 * time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registerRobot(t, reg, "robot_silent")
	if err := e.Start(ctx); err != nil {
		t.Fatal(err)
	}

	// Robot swallows dispatches and never reports.
	rec := recordDispatches(t, ctx, b, reg, "robot_silent", false)

	if _, err := e.PublishTask(ctx, "stuck task", false, ""); err != nil {
		t.Fatal(err)
	}

	waitFor(t, 2*time.Second, func() bool { return rec.count() >= 1 }, "first wave not dispatched")
	time.Sleep(300 * time.Millisecond)

	if rec.count() != 1 {
		t.Errorf("second wave dispatched after barrier timeout, got %d dispatches", rec.count())
	}
}

func TestDispatch_RefreshClearsStatus(t *testing.T) {
	o := &scriptedOracle{responses: []string{planResponse(
		Subtask{RobotName: "robot_1", Subtask: "task", Order: 0},
	)}}
	e, reg, b := newTestEngine(t, o)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registerRobot(t, reg, "robot_1")
	if err := e.Start(ctx); err != nil {
		t.Fatal(err)
	}
	_ = recordDispatches(t, ctx, b, reg, "robot_1", true)

	if err := reg.RecordStatus(ctx, "robot_1", "old line"); err != nil {
		t.Fatal(err)
	}
	if _, err := e.PublishTask(ctx, "task", true, ""); err != nil {
		t.Fatal(err)
	}

	waitFor(t, 2*time.Second, func() bool {
		digest, _ := reg.ReadStatus(ctx, "robot_1")
		return digest == ""
	}, "status digest not cleared on refresh")
}
