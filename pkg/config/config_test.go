package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
app:
  name: fleetos-test
backend:
  url: redis://redis.internal:6379/1
providers:
  openai:
    api_key: sk-test
    model: gpt-4o-mini
    enabled: true
master:
  id: master01
  listen: ":8080"
  plan_retries: 5
  wave_timeout: 2m
robot:
  name: robot_kitchen
  executor: remote
  executor_url: http://localhost:9000
  max_steps: 8
  heartbeat_period: 10s
  ttl_factor: 3
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.App.Name != "fleetos-test" {
		t.Errorf("app name = %q", cfg.App.Name)
	}
	if cfg.Master.PlanRetries != 5 {
		t.Errorf("plan retries = %d", cfg.Master.PlanRetries)
	}
	if cfg.Master.WaveTimeout.Std() != 2*time.Minute {
		t.Errorf("wave timeout = %v", cfg.Master.WaveTimeout.Std())
	}
	if cfg.Robot.HeartbeatPeriod.Std() != 10*time.Second {
		t.Errorf("heartbeat period = %v", cfg.Robot.HeartbeatPeriod.Std())
	}
	if got := cfg.Robot.RegistrationTTL(); got != 30*time.Second {
		t.Errorf("registration TTL = %v, want 30s", got)
	}
	if cfg.Robot.Executor != "remote" || cfg.Robot.ExecutorURL != "http://localhost:9000" {
		t.Errorf("executor config wrong: %+v", cfg.Robot)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, `
robot:
  name: robot_1
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Master.ID != "fleetos" {
		t.Errorf("master id = %q", cfg.Master.ID)
	}
	if cfg.Master.Listen != ":5000" {
		t.Errorf("listen = %q", cfg.Master.Listen)
	}
	if cfg.Master.PlanRetries != 3 {
		t.Errorf("plan retries = %d", cfg.Master.PlanRetries)
	}
	if cfg.Robot.MaxSteps != 20 {
		t.Errorf("max steps = %d", cfg.Robot.MaxSteps)
	}
	if cfg.Master.WaveTimeout.Std() != 10*time.Minute {
		t.Errorf("wave timeout = %v, want 10m default", cfg.Master.WaveTimeout.Std())
	}
	if got := cfg.Robot.RegistrationTTL(); got != time.Minute {
		t.Errorf("registration TTL = %v, want 1m", got)
	}
	if cfg.Robot.Executor != "local" {
		t.Errorf("executor = %q", cfg.Robot.Executor)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestGetDefaultProvider(t *testing.T) {
	cfg := &Config{Providers: map[string]ProviderConfig{
		"openai":     {Model: "gpt-4o", Enabled: false},
		"openrouter": {Model: "qwen-2.5", Enabled: true},
	}}
	name, p := cfg.GetDefaultProvider()
	if name != "openrouter" || p.Model != "qwen-2.5" {
		t.Errorf("default provider = %s %+v", name, p)
	}

	cfg = &Config{}
	if name, _ := cfg.GetDefaultProvider(); name != "" {
		t.Errorf("expected no provider, got %s", name)
	}
}

func TestDurationUnmarshalRejectsGarbage(t *testing.T) {
	path := writeConfig(t, `
master:
  wave_timeout: soon
`)
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected error for unparseable duration")
	}
}
