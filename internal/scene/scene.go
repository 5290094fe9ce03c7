// Package scene maintains the symbolic world model: which location holds
// which objects, and what each robot is carrying. It mirrors physical
// actions; it never drives them.
package scene

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/botfleet/fleetos/internal/backend"
	"github.com/botfleet/fleetos/internal/registry"
	"gopkg.in/yaml.v3"
)

const sceneKeyPrefix = "scene:"

// Object is one receptacle/location and the object ids it contains.
type Object struct {
	Name     string   `json:"-" yaml:"name"`
	Contains []string `json:"contains" yaml:"contains"`
}

// Profile is the scene seed file loaded by the master at startup.
type Profile struct {
	Scene []Object `yaml:"scene"`
}

type Store struct {
	backend  backend.Backend
	registry *registry.Registry
}

func NewStore(b backend.Backend, reg *registry.Registry) *Store {
	return &Store{backend: b, registry: reg}
}

func sceneKey(name string) string { return sceneKeyPrefix + name }

// LoadProfile reads a scene seed file.
func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scene profile: %w", err)
	}
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode scene profile: %w", err)
	}
	return &p, nil
}

// Seed writes every profile location into the store.
func (s *Store) Seed(ctx context.Context, p *Profile) error {
	for _, obj := range p.Scene {
		if obj.Name == "" {
			return fmt.Errorf("scene profile entry missing name")
		}
		if err := s.Update(ctx, obj); err != nil {
			return err
		}
	}
	return nil
}

// Get returns a location's record, or nil if unknown.
func (s *Store) Get(ctx context.Context, name string) (*Object, error) {
	raw, ok, err := s.backend.Get(ctx, sceneKey(name))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	var obj Object
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return nil, fmt.Errorf("unmarshal scene object %s: %w", name, err)
	}
	obj.Name = name
	return &obj, nil
}

func (s *Store) Update(ctx context.Context, obj Object) error {
	data, err := json.Marshal(obj)
	if err != nil {
		return fmt.Errorf("marshal scene object: %w", err)
	}
	return s.backend.Set(ctx, sceneKey(obj.Name), string(data))
}

// All returns every known location, for the planner's scene summary.
func (s *Store) All(ctx context.Context) ([]Object, error) {
	keys, err := s.backend.Scan(ctx, sceneKeyPrefix+"*")
	if err != nil {
		return nil, err
	}
	var objs []Object
	for _, k := range keys {
		obj, err := s.Get(ctx, strings.TrimPrefix(k, sceneKeyPrefix))
		if err != nil {
			return nil, err
		}
		if obj != nil {
			objs = append(objs, *obj)
		}
	}
	return objs, nil
}

// Summary renders the scene as one line per location for a prompt.
func (s *Store) Summary(ctx context.Context) (string, error) {
	objs, err := s.All(ctx)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	for _, o := range objs {
		fmt.Fprintf(&sb, "- %s contains [%s]\n", o.Name, strings.Join(o.Contains, ", "))
	}
	return sb.String(), nil
}

// RemoveObject takes target out of the robot's current location and into
// its hand. Reads and writes are per-key with no cross-key transaction;
// two robots mutating the same location race last-write-wins.
func (s *Store) RemoveObject(ctx context.Context, robotName, target string) error {
	rec, err := s.registry.Read(ctx, robotName)
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("robot %s not found", robotName)
	}

	obj, err := s.Get(ctx, rec.Position)
	if err != nil {
		return err
	}
	if obj == nil {
		return fmt.Errorf("scene object at position %q not found", rec.Position)
	}

	idx := -1
	for i, o := range obj.Contains {
		if o == target {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("object %q not found in %q", target, rec.Position)
	}
	obj.Contains = append(obj.Contains[:idx], obj.Contains[idx+1:]...)

	rec.Holding = target
	if err := s.Update(ctx, *obj); err != nil {
		return err
	}
	return s.registry.Update(ctx, *rec)
}

// AddObject puts the object the robot is holding into its current location.
func (s *Store) AddObject(ctx context.Context, robotName, target string) error {
	rec, err := s.registry.Read(ctx, robotName)
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("robot %s not found", robotName)
	}
	if rec.Holding != target {
		return fmt.Errorf("robot %s is not holding %q (holding %q)", robotName, target, rec.Holding)
	}

	obj, err := s.Get(ctx, rec.Position)
	if err != nil {
		return err
	}
	if obj == nil {
		return fmt.Errorf("scene object at position %q not found", rec.Position)
	}

	present := false
	for _, o := range obj.Contains {
		if o == target {
			present = true
			break
		}
	}
	if !present {
		obj.Contains = append(obj.Contains, target)
	}

	rec.Holding = ""
	if err := s.Update(ctx, *obj); err != nil {
		return err
	}
	return s.registry.Update(ctx, *rec)
}

// Position moves the robot itself; no object changes place.
func (s *Store) Position(ctx context.Context, robotName, target string) error {
	rec, err := s.registry.Read(ctx, robotName)
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("robot %s not found", robotName)
	}
	rec.Position = target
	return s.registry.Update(ctx, *rec)
}
