package core

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
)

// Status is the agent's lifecycle state, observable between steps.
type Status string

const (
	StatusIdle            Status = "idle"
	StatusRunning         Status = "running"
	StatusFinished        Status = "finished"
	StatusAborted         Status = "aborted"
	StatusMaxStepsReached Status = "max_steps_reached"
	StatusError           Status = "error"
)

// AgentConfig controls one agent instance.
type AgentConfig struct {
	MaxSteps     int
	SystemPrompt string
}

// Agent drives one task end-to-end as a bounded sequence of
// perceive→request→parse→execute cycles. One Agent owns one Context and
// one Device; independent tasks run on independent Agent instances.
type Agent struct {
	cfg     AgentConfig
	device  Device
	model   ModelCaller
	i18n    *I18n
	onThink func(string)
	onStep  func(StepResult)

	context   *Context
	stepCount int
	status    Status
	running   atomic.Bool
}

func NewAgent(cfg AgentConfig, device Device, model ModelCaller, lang Language) *Agent {
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = 100
	}
	return &Agent{
		cfg:     cfg,
		device:  device,
		model:   model,
		i18n:    NewI18n(lang),
		context: NewContext(),
		status:  StatusIdle,
	}
}

// SetThinkingCallback installs a progressive thinking observer. Must be
// called before Run/Step.
func (a *Agent) SetThinkingCallback(fn func(string)) { a.onThink = fn }

// SetStepCallback installs an observer invoked after every completed step,
// including the final one. Must be called before Run/Step.
func (a *Agent) SetStepCallback(fn func(StepResult)) { a.onStep = fn }

// SetLanguageSaveFunc installs a hook that persists the auto-detected
// language.
func (a *Agent) SetLanguageSaveFunc(fn func(Language) error) { a.i18n.SetSaveFunc(fn) }

// BusyMessage is the localized notice shown when a task is refused because
// one is already running.
func (a *Agent) BusyMessage() string { return a.i18n.T(MsgTaskRunning) }

func (a *Agent) StepCount() int { return a.stepCount }

func (a *Agent) Status() Status { return a.status }

func (a *Agent) IsRunning() bool { return a.running.Load() }

// Context returns a copy of the conversation log.
func (a *Agent) Context() []Message { return a.context.Snapshot() }

// Run executes the task until it finishes, is aborted, or the step budget
// is exhausted. A model transport failure ends the task immediately.
func (a *Agent) Run(ctx context.Context, task string) (string, error) {
	if task == "" {
		return "", fmt.Errorf("task is required")
	}

	a.i18n.DetectAndSet(task)
	a.context.Reset()
	a.stepCount = 0
	a.status = StatusRunning
	a.running.Store(true)
	defer a.running.Store(false)

	result := a.executeStep(ctx, task, true)
	if result.Finished {
		return a.finalMessage(result), nil
	}

	for a.stepCount < a.cfg.MaxSteps && a.running.Load() {
		result = a.executeStep(ctx, "", false)
		if result.Finished {
			return a.finalMessage(result), nil
		}
	}

	if !a.running.Load() {
		a.status = StatusAborted
		return a.i18n.T(MsgAborted), nil
	}
	a.status = StatusMaxStepsReached
	return a.i18n.T(MsgMaxSteps), nil
}

// Step executes a single cycle. The first step of a task requires a
// non-empty task string.
func (a *Agent) Step(ctx context.Context, task string) (StepResult, error) {
	first := a.context.Len() == 0
	if first && task == "" {
		return StepResult{}, fmt.Errorf("task is required for the first step")
	}
	return a.executeStep(ctx, task, first), nil
}

// Abort requests cooperative cancellation. It only sets a flag inspected
// at step boundaries; an in-flight model call is not interrupted. Safe to
// call from another goroutine, and when idle.
func (a *Agent) Abort() {
	a.running.Store(false)
	slog.Info("agent aborted by user")
}

// Reset clears the conversation and counters. Legal from any state.
func (a *Agent) Reset() {
	a.context.Reset()
	a.stepCount = 0
	a.status = StatusIdle
	a.running.Store(false)
}

func (a *Agent) finalMessage(result StepResult) string {
	if result.Success {
		a.status = StatusFinished
	} else {
		a.status = StatusError
	}
	if result.Message != "" {
		return result.Message
	}
	return a.i18n.T(MsgTaskCompleted)
}

func (a *Agent) executeStep(ctx context.Context, task string, first bool) StepResult {
	a.stepCount++

	screenshot, err := a.device.GetScreenshot(ctx)
	if err != nil {
		return StepResult{Success: false, Finished: true, Message: fmt.Sprintf(a.i18n.T(MsgDeviceOffline), err)}
	}
	currentApp, err := a.device.GetCurrentApp(ctx)
	if err != nil {
		return StepResult{Success: false, Finished: true, Message: fmt.Sprintf(a.i18n.T(MsgDeviceOffline), err)}
	}

	screenInfo := fmt.Sprintf(a.i18n.T(MsgCurrentApp), currentApp)
	if first {
		systemPrompt := a.cfg.SystemPrompt
		if systemPrompt == "" {
			systemPrompt = DefaultSystemPrompt(a.i18n.CurrentLang())
		}
		a.context.Append(NewSystemMessage(systemPrompt))
		a.context.Append(NewUserMessage(task+"\n\n"+screenInfo, screenshot.Base64Data))
	} else {
		a.context.Append(NewUserMessage(screenInfo, screenshot.Base64Data))
	}

	response, err := a.model.Request(ctx, a.context.Snapshot(), a.onThink)
	if err != nil {
		// A model failure always ends the task; it is never retried here.
		slog.Error("model request failed", "step", a.stepCount, "error", err)
		return StepResult{Success: false, Finished: true, Message: fmt.Sprintf("Model error: %v", err)}
	}

	action, err := ParseAction(response.Action)
	if err != nil {
		slog.Warn("failed to parse action, treating as finish", "error", err)
		action = FinishAction(response.Action)
	}

	// The screenshot has been consumed; keep only the text of that turn.
	if last, ok := a.context.Last(); ok {
		a.context.ReplaceLast(last.WithoutImage())
	}

	result, err := a.device.Execute(ctx, action, screenshot.Width, screenshot.Height)
	if err != nil {
		slog.Error("action execution failed", "step", a.stepCount, "action", action.Name(), "error", err)
		result = ActionResult{Success: false, ShouldFinish: true, Message: err.Error()}
	}

	// The assistant turn is recorded unconditionally, failures included,
	// so the context stays an accurate audit trail.
	a.context.Append(NewAssistantMessage(
		fmt.Sprintf("<think>%s</think><answer>%s</answer>", response.Thinking, response.Action)))

	finished := action.IsFinish() || result.ShouldFinish

	message := result.Message
	if message == "" {
		message = action.Message()
	}

	slog.Debug("step complete",
		"step", a.stepCount,
		"action", action.Name(),
		"success", result.Success,
		"finished", finished,
		"ttft", response.TimeToFirstToken,
	)

	step := StepResult{
		Success:  result.Success,
		Finished: finished,
		Action:   action,
		Thinking: response.Thinking,
		Message:  message,
	}
	if a.onStep != nil {
		a.onStep(step)
	}
	return step
}
