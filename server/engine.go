// Package server wires agents, devices, the decision orchestrator, task
// history, and scheduling together behind a local HTTP API.
package server

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/chenhg5/phone-pilot/core"
	"github.com/chenhg5/phone-pilot/dualmodel"
	"github.com/chenhg5/phone-pilot/store"
)

// ErrBusy is returned when a task is requested on a device that is
// already running one.
var ErrBusy = errors.New("a task is already running on this device")

// Engine owns everything attached to one device: its agent, its event
// surface, and (optionally) a decision orchestrator. One task at a time.
type Engine struct {
	name    string
	device  core.Device
	agent   *core.Agent
	orch    *dualmodel.Orchestrator // nil when the decision model is disabled
	history store.Store             // nil when history is disabled
	emitter *dualmodel.Emitter

	taskMu sync.Mutex // held for the whole duration of a task run

	mu          sync.Mutex
	currentTask string
}

func NewEngine(name string, device core.Device, agent *core.Agent, orch *dualmodel.Orchestrator, history store.Store) *Engine {
	emitter := dualmodel.NewEmitter()
	if orch != nil {
		emitter = orch.Events()
	}
	return &Engine{
		name:    name,
		device:  device,
		agent:   agent,
		orch:    orch,
		history: history,
		emitter: emitter,
	}
}

func (e *Engine) Name() string { return e.name }

func (e *Engine) Device() core.Device { return e.device }

// Events is the live event surface shared by the agent loop and the
// decision orchestrator.
func (e *Engine) Events() *dualmodel.Emitter { return e.emitter }

// Orchestrator returns the decision-model orchestrator, or nil when the
// decision model is not configured.
func (e *Engine) Orchestrator() *dualmodel.Orchestrator { return e.orch }

// BusyMessage is the localized notice for a refused task.
func (e *Engine) BusyMessage() string { return e.agent.BusyMessage() }

// Busy reports whether a task is currently running.
func (e *Engine) Busy() bool {
	if e.taskMu.TryLock() {
		e.taskMu.Unlock()
		return false
	}
	return true
}

// EngineStatus is a point-in-time snapshot for the status API.
type EngineStatus struct {
	Name        string `json:"name"`
	Serial      string `json:"serial"`
	Busy        bool   `json:"busy"`
	AgentStatus string `json:"agent_status"`
	Steps       int    `json:"steps"`
	CurrentTask string `json:"current_task,omitempty"`
}

func (e *Engine) Status() EngineStatus {
	e.mu.Lock()
	task := e.currentTask
	e.mu.Unlock()
	return EngineStatus{
		Name:        e.name,
		Serial:      e.device.Serial(),
		Busy:        e.Busy(),
		AgentStatus: string(e.agent.Status()),
		Steps:       e.agent.StepCount(),
		CurrentTask: task,
	}
}

// RunTask executes one task to completion, records it in history, and
// emits lifecycle events. Returns ErrBusy if a task is already running.
func (e *Engine) RunTask(ctx context.Context, task string) (string, error) {
	if !e.taskMu.TryLock() {
		return "", ErrBusy
	}
	defer e.taskMu.Unlock()

	e.mu.Lock()
	e.currentTask = task
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.currentTask = ""
		e.mu.Unlock()
	}()

	e.agent.SetThinkingCallback(func(chunk string) {
		e.emitter.Emit(dualmodel.EventVisionRecognition, dualmodel.RoleVision, e.agent.StepCount(),
			map[string]any{"text": chunk})
	})
	e.agent.SetStepCallback(func(step core.StepResult) {
		e.emitter.Emit(dualmodel.EventActionResult, dualmodel.RoleVision, e.agent.StepCount(), map[string]any{
			"action":  step.Action.Name(),
			"success": step.Success,
			"message": step.Message,
		})
		e.emitter.Emit(dualmodel.EventStepComplete, dualmodel.RoleVision, e.agent.StepCount(),
			map[string]any{"finished": step.Finished})
	})

	slog.Info("task started", "device", e.name, "task", task)
	e.emitter.Emit(dualmodel.EventVisionStart, dualmodel.RoleVision, 0, map[string]any{"task": task})

	started := time.Now()
	message, err := e.agent.Run(ctx, task)
	finished := time.Now()

	status := string(e.agent.Status())
	steps := e.agent.StepCount()

	if e.history != nil {
		rec := &store.TaskRecord{
			DeviceSerial: e.device.Serial(),
			Task:         task,
			Status:       status,
			Message:      message,
			Steps:        steps,
			StartedAt:    started,
			FinishedAt:   finished,
		}
		if err != nil {
			rec.Status = string(core.StatusError)
			rec.Message = err.Error()
		}
		if saveErr := e.history.SaveTask(context.Background(), rec); saveErr != nil {
			slog.Warn("failed to record task run", "device", e.name, "error", saveErr)
		}
	}

	switch {
	case err != nil:
		e.emitter.Emit(dualmodel.EventError, dualmodel.RoleVision, steps, map[string]any{"error": err.Error()})
	case e.agent.Status() == core.StatusAborted:
		e.emitter.Emit(dualmodel.EventAborted, dualmodel.RoleVision, steps, map[string]any{"message": message})
	default:
		e.emitter.Emit(dualmodel.EventTaskComplete, dualmodel.RoleVision, steps,
			map[string]any{"status": status, "message": message})
	}

	slog.Info("task finished", "device", e.name, "status", status, "steps", steps, "duration", finished.Sub(started))
	return message, err
}

// Abort requests cooperative cancellation of the running task. No-op when
// idle.
func (e *Engine) Abort() {
	e.agent.Abort()
}

// Close releases the device connection.
func (e *Engine) Close() error {
	return e.device.Close()
}
