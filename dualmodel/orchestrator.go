package dualmodel

import (
	"context"
	"sync"
)

// Orchestrator wraps a DecisionModel with machine-readable progress
// events. It is the planning half of the dual-model protocol; the vision
// agent is a separate state machine composed by the caller, and the two
// share no state.
type Orchestrator struct {
	decision *DecisionModel
	emitter  *Emitter

	mu   sync.Mutex
	step int
}

func NewOrchestrator(streamer Streamer, mode ThinkingMode, emitter *Emitter) *Orchestrator {
	if emitter == nil {
		emitter = NewEmitter()
	}
	return &Orchestrator{
		decision: NewDecisionModel(streamer, mode),
		emitter:  emitter,
	}
}

// Events exposes the live event surface.
func (o *Orchestrator) Events() *Emitter { return o.emitter }

// Step returns the current decision turn number.
func (o *Orchestrator) Step() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.step
}

// AnalyzeTask produces the task plan and emits task_plan. Never fails:
// extraction errors degrade to a single-step plan.
func (o *Orchestrator) AnalyzeTask(ctx context.Context, task string) TaskPlan {
	o.mu.Lock()
	step := o.step
	o.mu.Unlock()

	o.emitter.Emit(EventDecisionStart, RoleDecision, step, map[string]any{"stage": "analyzing", "task": task})

	plan := o.decision.AnalyzeTask(ctx, task, func(chunk string) {
		o.emitter.Emit(EventDecisionThinking, RoleDecision, step, map[string]any{"text": chunk})
	}, nil)

	o.emitter.Emit(EventTaskPlan, RoleDecision, step, map[string]any{
		"summary":           plan.Summary,
		"steps":             plan.Steps,
		"estimated_actions": plan.EstimatedActions,
	})
	return plan
}

// MakeDecision produces the next decision and emits decision_result, plus
// task_complete when the decision is terminal.
func (o *Orchestrator) MakeDecision(ctx context.Context, screenDescription, taskContext string) (Decision, error) {
	o.mu.Lock()
	o.step++
	step := o.step
	o.mu.Unlock()

	o.emitter.Emit(EventDecisionStart, RoleDecision, step, map[string]any{"stage": "deciding"})

	decision, err := o.decision.MakeDecision(ctx, screenDescription, taskContext, func(chunk string) {
		o.emitter.Emit(EventDecisionThinking, RoleDecision, step, map[string]any{"text": chunk})
	}, nil)
	if err != nil {
		o.emitter.Emit(EventError, RoleDecision, step, map[string]any{"error": err.Error()})
		return Decision{}, err
	}

	o.emitter.Emit(EventDecisionResult, RoleDecision, step, map[string]any{
		"action":    decision.Action,
		"target":    decision.Target,
		"reasoning": decision.Reasoning,
		"finished":  decision.Finished,
	})
	if decision.Finished {
		o.emitter.Emit(EventTaskComplete, RoleDecision, step, map[string]any{"message": decision.Reasoning})
	}
	return decision, nil
}

// GenerateContent produces free text for a type operation and emits
// content_generation.
func (o *Orchestrator) GenerateContent(ctx context.Context, contentType, contextInfo, requirements string) (string, error) {
	o.mu.Lock()
	step := o.step
	o.mu.Unlock()

	o.emitter.Emit(EventDecisionStart, RoleDecision, step, map[string]any{"stage": "generating", "content_type": contentType})

	content, err := o.decision.GenerateContent(ctx, contentType, contextInfo, requirements, nil, nil)
	if err != nil {
		o.emitter.Emit(EventError, RoleDecision, step, map[string]any{"error": err.Error()})
		return "", err
	}

	o.emitter.Emit(EventContentGeneration, RoleDecision, step, map[string]any{
		"content_type": contentType,
		"length":       len(content),
	})
	return content, nil
}

// Reset clears the decision history and turn counter only; the vision
// agent's state is deliberately untouched.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	o.step = 0
	o.mu.Unlock()
	o.decision.Reset()
}
