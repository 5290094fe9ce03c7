package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App       AppConfig                 `yaml:"app"`
	Backend   BackendConfig             `yaml:"backend"`
	Providers map[string]ProviderConfig `yaml:"providers"`
	Master    MasterConfig              `yaml:"master"`
	Robot     RobotConfig               `yaml:"robot"`
	Memory    MemoryConfig              `yaml:"memory"`
}

type AppConfig struct {
	Name string `yaml:"name"`
}

// BackendConfig points at the shared Redis instance used for the agent
// registry, the scene store and all pub/sub channels.
type BackendConfig struct {
	URL string `yaml:"url"`
}

type ProviderConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url,omitempty"`
	Enabled bool   `yaml:"enabled"`
}

type MasterConfig struct {
	ID          string   `yaml:"id"`
	Listen      string   `yaml:"listen"`
	ScenePath   string   `yaml:"scene_path"`
	PlanRetries int      `yaml:"plan_retries"`
	WaveTimeout Duration `yaml:"wave_timeout"` // negative waits forever
}

type RobotConfig struct {
	Name            string   `yaml:"name"`
	Executor        string   `yaml:"executor"` // "local" or "remote"
	ExecutorURL     string   `yaml:"executor_url,omitempty"`
	MaxSteps        int      `yaml:"max_steps"`
	HeartbeatPeriod Duration `yaml:"heartbeat_period"`
	TTLFactor       int      `yaml:"ttl_factor"`
}

type MemoryConfig struct {
	Path string `yaml:"path"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}
	cfg.applyDefaults()

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "fleetos"
	}
	if c.Backend.URL == "" {
		c.Backend.URL = "redis://localhost:6379/0"
	}
	if c.Master.ID == "" {
		c.Master.ID = "fleetos"
	}
	if c.Master.Listen == "" {
		c.Master.Listen = ":5000"
	}
	if c.Master.PlanRetries == 0 {
		c.Master.PlanRetries = 3
	}
	if c.Master.WaveTimeout == 0 {
		c.Master.WaveTimeout = Duration(10 * time.Minute)
	}
	if c.Robot.Executor == "" {
		c.Robot.Executor = "local"
	}
	if c.Robot.MaxSteps == 0 {
		c.Robot.MaxSteps = 20
	}
	if c.Robot.HeartbeatPeriod == 0 {
		c.Robot.HeartbeatPeriod = Duration(30 * time.Second)
	}
	if c.Robot.TTLFactor == 0 {
		c.Robot.TTLFactor = 2
	}
	if c.Memory.Path == "" {
		c.Memory.Path = "fleetos.db"
	}
}

// GetDefaultProvider returns the first enabled provider.
func (c *Config) GetDefaultProvider() (string, ProviderConfig) {
	for name, p := range c.Providers {
		if p.Enabled {
			return name, p
		}
	}
	return "", ProviderConfig{}
}

// RegistrationTTL is how long an agent record survives without a heartbeat.
func (c *RobotConfig) RegistrationTTL() time.Duration {
	return c.HeartbeatPeriod.Std() * time.Duration(c.TTLFactor)
}
