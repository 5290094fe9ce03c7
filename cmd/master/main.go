package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/botfleet/fleetos/internal/backend"
	"github.com/botfleet/fleetos/internal/observability"
	"github.com/botfleet/fleetos/internal/oracle"
	"github.com/botfleet/fleetos/internal/orchestrator"
	"github.com/botfleet/fleetos/internal/registry"
	"github.com/botfleet/fleetos/internal/scene"
	"github.com/botfleet/fleetos/internal/store"
	"github.com/botfleet/fleetos/pkg/config"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
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

	observability.PrintBanner("master", cfg.Master.ID)
	logger := observability.NewLogger()

	be, err := backend.NewRedis(cfg.Backend.URL)
	if err != nil {
		log.Fatal(err)
	}
	defer be.Close()

	reg := registry.New(be)
	sceneStore := scene.NewStore(be, reg)

	if cfg.Master.ScenePath != "" {
		profile, err := scene.LoadProfile(cfg.Master.ScenePath)
		if err != nil {
			log.Fatal(err)
		}
		if err := sceneStore.Seed(context.Background(), profile); err != nil {
			log.Fatal(err)
		}
		log.Printf("scene seeded from %s (%d locations)", cfg.Master.ScenePath, len(profile.Scene))
	}

	llm, err := oracle.NewFromConfig(cfg)
	if err != nil {
		log.Fatal(err)
	}

	runs, err := store.NewRunStore(cfg.Memory.Path)
	if err != nil {
		log.Fatal(err)
	}
	defer runs.Close()

	planner := orchestrator.NewPlanner(llm, reg, sceneStore)
	engine := orchestrator.NewEngine(cfg.Master.ID, be, reg, planner, runs, logger)
	engine.PlanRetries = cfg.Master.PlanRetries
	engine.WaveTimeout = cfg.Master.WaveTimeout.Std()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := engine.Start(ctx); err != nil {
		log.Fatal(err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/publish_task", handlePublishTask(engine))
	mux.HandleFunc("/robot_status", handleRobotStatus(reg))
	mux.HandleFunc("/system_status", handleSystemStatus)

	server := &http.Server{Addr: cfg.Master.Listen, Handler: mux}
	go func() {
		log.Printf("master %s listening on %s", cfg.Master.ID, cfg.Master.Listen)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("http server error: %v", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
	log.Println("master stopped")
}

type publishRequest struct {
	Task    string `json:"task"`
	Refresh bool   `json:"refresh"`
	TaskID  string `json:"task_id"`
}

func handlePublishTask(engine *orchestrator.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
			return
		}

		var req publishRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Task == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request - 'task' field required"})
			return
		}

		plan, err := engine.PublishTask(r.Context(), req.Task, req.Refresh, req.TaskID)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status":  "success",
			"message": "Task published successfully",
			"data":    plan,
		})
	}
}

func handleRobotStatus(reg *registry.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		records, err := reg.ListAll(r.Context())
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Internal server error", "details": err.Error()})
			return
		}
		out := make([]map[string]string, 0, len(records))
		for _, rec := range records {
			out = append(out, map[string]string{
				"robot_name":  rec.Name,
				"robot_state": string(rec.State),
			})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func handleSystemStatus(w http.ResponseWriter, r *http.Request) {
	load, err := cpu.Percent(time.Second, false)
	if err != nil || len(load) == 0 {
		load = []float64{0}
	}
	vm, err := mem.VirtualMemory()
	usage := 0.0
	if err == nil {
		usage = vm.UsedPercent
	}
	writeJSON(w, http.StatusOK, map[string]float64{
		"cpu_load":     load[0],
		"memory_usage": usage,
	})
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
