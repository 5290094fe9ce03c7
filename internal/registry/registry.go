// Package registry keeps the record of every live robot: its declared
// tools, busy/idle state and symbolic pose. Records live under TTL'd keys
// so a crashed robot disappears once its heartbeats stop.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/botfleet/fleetos/internal/backend"
	"github.com/botfleet/fleetos/internal/tools"
)

const (
	agentKeyPrefix  = "agent:"
	statusKeyPrefix = "agentstatus:"
)

// State is a robot's dispatch availability.
type State string

const (
	StateIdle State = "idle"
	StateBusy State = "busy"
)

// AgentRecord is one robot's registry entry.
type AgentRecord struct {
	Name         string       `json:"robot_name"`
	Tools        []tools.Info `json:"robot_tool"`
	State        State        `json:"robot_state"`
	Position     string       `json:"position"`
	Holding      string       `json:"holding"`
	RegisteredAt int64        `json:"timestamp"`
}

type Registry struct {
	backend backend.Backend
}

func New(b backend.Backend) *Registry {
	return &Registry{backend: b}
}

func agentKey(name string) string  { return agentKeyPrefix + name }
func statusKey(name string) string { return statusKeyPrefix + name }

// Register writes the robot's record with a TTL.
func (r *Registry) Register(ctx context.Context, rec AgentRecord, ttl time.Duration) error {
	if rec.Name == "" {
		return fmt.Errorf("robot name is empty")
	}
	if rec.State == "" {
		rec.State = StateIdle
	}
	if rec.RegisteredAt == 0 {
		rec.RegisteredAt = time.Now().Unix()
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal agent record: %w", err)
	}
	return r.backend.Register(ctx, agentKey(rec.Name), string(data), ttl)
}

// Heartbeat refreshes the record's TTL without touching its contents.
func (r *Registry) Heartbeat(ctx context.Context, name string, ttl time.Duration) error {
	return r.backend.SetTTL(ctx, agentKey(name), ttl)
}

// Unregister removes the record explicitly; TTL expiry does it implicitly.
func (r *Registry) Unregister(ctx context.Context, name string) error {
	if err := r.backend.Delete(ctx, agentKey(name)); err != nil {
		return err
	}
	return r.backend.Delete(ctx, statusKey(name))
}

// Read returns the record, or nil if the robot is not (or no longer) live.
func (r *Registry) Read(ctx context.Context, name string) (*AgentRecord, error) {
	raw, ok, err := r.backend.Get(ctx, agentKey(name))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	var rec AgentRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("unmarshal agent record %s: %w", name, err)
	}
	return &rec, nil
}

// Update rewrites the record, keeping whatever TTL the key already carries.
func (r *Registry) Update(ctx context.Context, rec AgentRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal agent record: %w", err)
	}
	return r.backend.Set(ctx, agentKey(rec.Name), string(data))
}

// ListNames returns the names of all currently live robots.
func (r *Registry) ListNames(ctx context.Context) ([]string, error) {
	keys, err := r.backend.Scan(ctx, agentKeyPrefix+"*")
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(keys))
	for _, k := range keys {
		names = append(names, strings.TrimPrefix(k, agentKeyPrefix))
	}
	return names, nil
}

// ListAll returns every live record.
func (r *Registry) ListAll(ctx context.Context) ([]AgentRecord, error) {
	names, err := r.ListNames(ctx)
	if err != nil {
		return nil, err
	}
	var recs []AgentRecord
	for _, name := range names {
		rec, err := r.Read(ctx, name)
		if err != nil {
			return nil, err
		}
		if rec != nil {
			recs = append(recs, *rec)
		}
	}
	return recs, nil
}

// SetBusy flips the robot's dispatch state. A missing record is not an
// error: the robot may have expired between the snapshot and the flip.
func (r *Registry) SetBusy(ctx context.Context, name string, busy bool) error {
	rec, err := r.Read(ctx, name)
	if err != nil {
		return err
	}
	if rec == nil {
		return nil
	}
	if busy {
		rec.State = StateBusy
	} else {
		rec.State = StateIdle
	}
	return r.Update(ctx, *rec)
}

// RecordStatus appends one completed-action line to the robot's status
// digest. The digest is the compact summary fed back to the oracle on the
// next reasoning step, not a full transcript.
func (r *Registry) RecordStatus(ctx context.Context, name, line string) error {
	current, _, err := r.backend.Get(ctx, statusKey(name))
	if err != nil {
		return err
	}
	if current != "" {
		current += "\n"
	}
	return r.backend.Set(ctx, statusKey(name), current+line)
}

// ReadStatus returns the robot's status digest, empty if none.
func (r *Registry) ReadStatus(ctx context.Context, name string) (string, error) {
	raw, _, err := r.backend.Get(ctx, statusKey(name))
	return raw, err
}

// ClearStatus wipes the digest; used when a task is dispatched with refresh.
func (r *Registry) ClearStatus(ctx context.Context, name string) error {
	return r.backend.Delete(ctx, statusKey(name))
}
