package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/botfleet/fleetos/internal/backend"
	"github.com/botfleet/fleetos/internal/governance"
	"github.com/botfleet/fleetos/internal/observability"
	"github.com/botfleet/fleetos/internal/oracle"
	"github.com/botfleet/fleetos/internal/registry"
	"github.com/botfleet/fleetos/internal/scene"
	"github.com/botfleet/fleetos/internal/tools"
	"github.com/botfleet/fleetos/internal/worker"
	"github.com/botfleet/fleetos/pkg/config"
)

func main() {
	configPath := "config.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatal(err)
	}
	if cfg.Robot.Name == "" {
		log.Fatal("robot.name is required")
	}

	observability.PrintBanner("robot", cfg.Robot.Name)
	logger := observability.NewLogger()

	be, err := backend.NewRedis(cfg.Backend.URL)
	if err != nil {
		log.Fatal(err)
	}
	defer be.Close()

	reg := registry.New(be)
	sceneStore := scene.NewStore(be, reg)

	llm, err := oracle.NewFromConfig(cfg)
	if err != nil {
		log.Fatal(err)
	}

	var executor tools.Executor
	switch cfg.Robot.Executor {
	case "local":
		executor = tools.NewLocalExecutor(tools.DefaultRegistry())
	case "remote":
		if cfg.Robot.ExecutorURL == "" {
			log.Fatal("robot.executor_url is required for the remote executor")
		}
		executor = tools.NewRemoteExecutor(cfg.Robot.ExecutorURL)
	default:
		log.Fatalf("unknown executor type %q", cfg.Robot.Executor)
	}

	policy := governance.NewDefaultPolicyEngine()
	// Default safety rules: never act on hazardous targets.
	_ = policy.DenyArguments(`(?i)"target"\s*:\s*"(stairwell|loading_dock_edge)"`)

	engine := &worker.Engine{
		Name:            cfg.Robot.Name,
		MasterID:        cfg.Master.ID,
		Backend:         be,
		Registry:        reg,
		Scene:           sceneStore,
		Oracle:          llm,
		Executor:        executor,
		Policy:          policy,
		Logger:          logger,
		MaxSteps:        cfg.Robot.MaxSteps,
		HeartbeatPeriod: cfg.Robot.HeartbeatPeriod.Std(),
		RegistrationTTL: cfg.Robot.RegistrationTTL(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := engine.Start(ctx); err != nil {
		log.Fatal(err)
	}

	<-ctx.Done()

	cleanupCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := engine.Unregister(cleanupCtx); err != nil {
		log.Printf("unregister: %v", err)
	}
	log.Printf("robot %s stopped", cfg.Robot.Name)
}
