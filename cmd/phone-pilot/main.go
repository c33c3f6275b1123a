package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/chenhg5/phone-pilot/config"
	"github.com/chenhg5/phone-pilot/core"
	"github.com/chenhg5/phone-pilot/dualmodel"
	"github.com/chenhg5/phone-pilot/model"
	"github.com/chenhg5/phone-pilot/server"
	"github.com/chenhg5/phone-pilot/store"

	_ "github.com/chenhg5/phone-pilot/device/adb"
	_ "github.com/chenhg5/phone-pilot/device/remote"
)

var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

func main() {
	// Handle subcommands before flag parsing
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "send":
			runSend(os.Args[2:])
			return
		case "run":
			// One-shot: like send, but always waits for the result.
			runSend(append([]string{"--wait"}, os.Args[2:]...))
			return
		case "devices":
			runDevices(os.Args[2:])
			return
		case "pair":
			runPair(os.Args[2:])
			return
		case "shell":
			runShell(os.Args[2:])
			return
		case "cron":
			runCron(os.Args[2:])
			return
		}
	}

	configFlag := flag.String("config", "", "path to config file (default: ./config.toml or ~/.phone-pilot/config.toml)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("phone-pilot %s\ncommit:  %s\nbuilt:   %s\n", version, commit, buildTime)
		return
	}

	configPath := resolveConfigPath(*configFlag)

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := bootstrapConfig(configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Error creating config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Created default config at %s\n", configPath)
		fmt.Println("Please edit this file to add your model endpoint and devices, then run phone-pilot again.")
		os.Exit(0)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config (%s): %v\n", configPath, err)
		os.Exit(1)
	}

	config.ConfigPath = configPath
	slog.Info("config loaded", "path", configPath)

	setupLogger(cfg.Log.Level)

	// Parse language setting
	var lang core.Language
	switch cfg.Language {
	case "zh", "chinese":
		lang = core.LangChinese
	case "en", "english":
		lang = core.LangEnglish
	default:
		lang = core.LangAuto // auto-detect
	}

	var history store.Store
	if cfg.Store.Driver != "off" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		history, err = store.Open(ctx, cfg.Store.Driver, storeDSN(cfg))
		cancel()
		if err != nil {
			slog.Warn("task history unavailable", "driver", cfg.Store.Driver, "error", err)
			history = nil
		}
	}

	visionClient := model.NewClient(model.Config{
		BaseURL:          cfg.VisionModel.BaseURL,
		APIKey:           cfg.VisionModel.APIKey,
		ModelName:        cfg.VisionModel.ModelName,
		MaxTokens:        cfg.VisionModel.MaxTokens,
		Temperature:      cfg.VisionModel.Temperature,
		TopP:             cfg.VisionModel.TopP,
		FrequencyPenalty: cfg.VisionModel.FrequencyPenalty,
		ExtraBody:        cfg.VisionModel.ExtraBody,
		Timeout:          time.Duration(cfg.VisionModel.TimeoutSeconds) * time.Second,
	})

	var decisionClient *model.Client
	if cfg.DecisionModel.Enabled {
		decisionClient = model.NewClient(model.Config{
			BaseURL:     cfg.DecisionModel.BaseURL,
			APIKey:      cfg.DecisionModel.APIKey,
			ModelName:   cfg.DecisionModel.ModelName,
			MaxTokens:   cfg.DecisionModel.MaxTokens,
			Temperature: cfg.DecisionModel.Temperature,
		})
	}

	engines := make([]*server.Engine, 0, len(cfg.Devices))
	for _, dc := range cfg.Devices {
		dev, err := core.CreateDevice(dc.Kind, dc.Options)
		if err != nil {
			slog.Error("failed to create device", "name", dc.Name, "error", err)
			os.Exit(1)
		}

		agent := core.NewAgent(core.AgentConfig{
			MaxSteps:     cfg.Agent.MaxSteps,
			SystemPrompt: cfg.Agent.SystemPrompt,
		}, dev, visionClient, lang)

		// Persist the detected language so later runs skip detection.
		if lang == core.LangAuto {
			agent.SetLanguageSaveFunc(func(l core.Language) error {
				return config.SaveLanguage(string(l))
			})
		}

		var orch *dualmodel.Orchestrator
		if decisionClient != nil {
			mode := dualmodel.ModeDeep
			if cfg.DecisionModel.ThinkingMode == "fast" {
				mode = dualmodel.ModeFast
			}
			orch = dualmodel.NewOrchestrator(decisionClient, mode, nil)
		}

		engines = append(engines, server.NewEngine(dc.Name, dev, agent, orch, history))
		slog.Info("device ready", "name", dc.Name, "kind", dc.Kind, "serial", dev.Serial())
	}

	apiSrv, err := server.NewAPIServer(cfg.DataDir, cfg.API.Listen)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error starting API server: %v\n", err)
		os.Exit(1)
	}
	for i, e := range engines {
		apiSrv.RegisterEngine(cfg.Devices[i].Name, e)
	}
	if history != nil {
		apiSrv.SetHistory(history)
	}

	cronStore, err := server.NewCronStore(cfg.DataDir)
	if err != nil {
		slog.Warn("cron store unavailable", "error", err)
	} else {
		scheduler := server.NewCronScheduler(cronStore)
		for i, e := range engines {
			scheduler.RegisterEngine(cfg.Devices[i].Name, e)
		}
		if err := scheduler.Start(); err != nil {
			slog.Warn("cron scheduler failed to start", "error", err)
		} else {
			apiSrv.SetCronScheduler(scheduler)
			defer scheduler.Stop()
		}
	}

	apiSrv.Start()

	slog.Info("phone-pilot is running", "devices", len(engines))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	slog.Info("shutting down...")
	apiSrv.Stop()
	for _, e := range engines {
		e.Abort()
		if err := e.Close(); err != nil {
			slog.Error("shutdown error", "device", e.Name(), "error", err)
		}
	}
	if history != nil {
		history.Close()
	}
	slog.Info("bye")
}

// storeDSN defaults the sqlite database file into the data dir.
func storeDSN(cfg *config.Config) string {
	if cfg.Store.DSN != "" {
		return cfg.Store.DSN
	}
	if cfg.Store.Driver == "" || cfg.Store.Driver == "sqlite" {
		os.MkdirAll(cfg.DataDir, 0o755)
		return filepath.Join(cfg.DataDir, "tasks.db")
	}
	return ""
}

// resolveConfigPath determines which config file to use.
// Priority: explicit flag → ./config.toml → ~/.phone-pilot/config.toml
func resolveConfigPath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if _, err := os.Stat("config.toml"); err == nil {
		return "config.toml"
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".phone-pilot", "config.toml")
	}
	return "config.toml"
}

func bootstrapConfig(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	const tmpl = `# phone-pilot configuration

[log]
level = "info"

# Vision-language action model (OpenAI-compatible streaming endpoint)
[vision_model]
base_url = "http://localhost:8000/v1"
model_name = "autoglm-phone"
# api_key = "EMPTY"

# Optional planning model for the dual-model API
[decision_model]
enabled = false
# base_url = "https://api-inference.modelscope.cn/v1"
# api_key = "your-api-key"
# model_name = "ZhipuAI/GLM-4.7"
# thinking_mode = "deep"   # or "fast"

[agent]
max_steps = 100

# Task history: "sqlite" (default), "postgres", "mongo", or "off"
[store]
driver = "sqlite"

[[devices]]
name = "phone"
kind = "adb"

[devices.options]
serial = "your-device-serial"   # see: phone-pilot devices
`
	return os.WriteFile(path, []byte(tmpl), 0o644)
}

func setupLogger(level string) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))
}
