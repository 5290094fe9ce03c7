package registry

import (
	"context"
	"testing"
	"time"

	"github.com/botfleet/fleetos/internal/backend"
	"github.com/botfleet/fleetos/internal/tools"
)

func testRecord(name string) AgentRecord {
	return AgentRecord{
		Name: name,
		Tools: []tools.Info{
			{Name: "navigate_to_target", Description: "Navigate to target"},
		},
	}
}

func TestRegistry_RegisterAndRead(t *testing.T) {
	reg := New(backend.NewMemory())
	ctx := context.Background()

	if err := reg.Register(ctx, testRecord("robot_1"), time.Minute); err != nil {
		t.Fatal(err)
	}

	rec, err := reg.Read(ctx, "robot_1")
	if err != nil {
		t.Fatal(err)
	}
	if rec == nil {
		t.Fatal("record not found")
	}
	if rec.State != StateIdle {
		t.Errorf("expected idle default state, got %s", rec.State)
	}
	if rec.RegisteredAt == 0 {
		t.Error("expected timestamp to be stamped")
	}
	if len(rec.Tools) != 1 || rec.Tools[0].Name != "navigate_to_target" {
		t.Errorf("tool declaration not preserved: %+v", rec.Tools)
	}
}

func TestRegistry_ExpiryRemovesAgent(t *testing.T) {
	reg := New(backend.NewMemory())
	ctx := context.Background()

	if err := reg.Register(ctx, testRecord("robot_1"), 20*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	time.Sleep(40 * time.Millisecond)

	rec, err := reg.Read(ctx, "robot_1")
	if err != nil {
		t.Fatal(err)
	}
	if rec != nil {
		t.Error("expired record should silently disappear")
	}

	names, err := reg.ListNames(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 0 {
		t.Errorf("expired agent still listed: %v", names)
	}
}

func TestRegistry_HeartbeatKeepsAlive(t *testing.T) {
	reg := New(backend.NewMemory())
	ctx := context.Background()

	if err := reg.Register(ctx, testRecord("robot_1"), 40*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	time.Sleep(25 * time.Millisecond)
	if err := reg.Heartbeat(ctx, "robot_1", 100*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	time.Sleep(40 * time.Millisecond)

	rec, err := reg.Read(ctx, "robot_1")
	if err != nil {
		t.Fatal(err)
	}
	if rec == nil {
		t.Error("heartbeat should keep the record live")
	}
}

func TestRegistry_SetBusy(t *testing.T) {
	reg := New(backend.NewMemory())
	ctx := context.Background()

	if err := reg.Register(ctx, testRecord("robot_1"), time.Minute); err != nil {
		t.Fatal(err)
	}

	if err := reg.SetBusy(ctx, "robot_1", true); err != nil {
		t.Fatal(err)
	}
	rec, _ := reg.Read(ctx, "robot_1")
	if rec.State != StateBusy {
		t.Errorf("expected busy, got %s", rec.State)
	}

	if err := reg.SetBusy(ctx, "robot_1", false); err != nil {
		t.Fatal(err)
	}
	rec, _ = reg.Read(ctx, "robot_1")
	if rec.State != StateIdle {
		t.Errorf("expected idle, got %s", rec.State)
	}

	// Flipping a vanished robot is not an error.
	if err := reg.SetBusy(ctx, "ghost", true); err != nil {
		t.Errorf("SetBusy on missing robot: %v", err)
	}
}

func TestRegistry_StatusDigest(t *testing.T) {
	reg := New(backend.NewMemory())
	ctx := context.Background()

	if err := reg.RecordStatus(ctx, "robot_1", "Step 1: navigated to kitchenTable"); err != nil {
		t.Fatal(err)
	}
	if err := reg.RecordStatus(ctx, "robot_1", "Step 2: grasped apple"); err != nil {
		t.Fatal(err)
	}

	digest, err := reg.ReadStatus(ctx, "robot_1")
	if err != nil {
		t.Fatal(err)
	}
	want := "Step 1: navigated to kitchenTable\nStep 2: grasped apple"
	if digest != want {
		t.Errorf("digest mismatch:\ngot  %q\nwant %q", digest, want)
	}

	if err := reg.ClearStatus(ctx, "robot_1"); err != nil {
		t.Fatal(err)
	}
	digest, err = reg.ReadStatus(ctx, "robot_1")
	if err != nil {
		t.Fatal(err)
	}
	if digest != "" {
		t.Errorf("expected cleared digest, got %q", digest)
	}
}
