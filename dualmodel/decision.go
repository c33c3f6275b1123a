package dualmodel

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/chenhg5/phone-pilot/core"
)

// ThinkingMode selects the decision model's prompt depth.
type ThinkingMode string

const (
	ModeFast ThinkingMode = "fast"
	ModeDeep ThinkingMode = "deep"
)

// Streamer is the transport used by the decision model: one streamed chat
// call with separate reasoning and answer channels.
type Streamer interface {
	Stream(ctx context.Context, messages []core.Message, onThinking, onAnswer func(string)) (string, error)
}

// TaskPlan is the decision model's per-task execution plan, produced once
// and cached for the task's lifetime.
type TaskPlan struct {
	Summary          string
	Steps            []string
	EstimatedActions int
	RawResponse      string
}

// Decision is one decision-model turn.
type Decision struct {
	Action      string
	Target      string
	Reasoning   string
	Content     string
	Finished    bool
	RawResponse string
}

// DecisionModel is the planning half of the dual-model protocol. It keeps
// its own replayable conversation history, fully decoupled from the vision
// agent's context.
type DecisionModel struct {
	streamer     Streamer
	mode         ThinkingMode
	systemPrompt string
	history      []core.Message
}

func NewDecisionModel(streamer Streamer, mode ThinkingMode) *DecisionModel {
	prompt := decisionSystemPrompt
	if mode == ModeFast {
		prompt = decisionSystemPromptFast
	}
	return &DecisionModel{
		streamer:     streamer,
		mode:         mode,
		systemPrompt: prompt,
	}
}

// AnalyzeTask asks the model for an execution plan. Extraction failures
// degrade to a single-step plan carrying the raw task; this never returns
// an error to the caller.
func (d *DecisionModel) AnalyzeTask(ctx context.Context, task string, onThinking, onAnswer func(string)) TaskPlan {
	slog.Info("analyzing task", "task", truncate(task, 50), "mode", string(d.mode))

	messages := []core.Message{
		core.NewSystemMessage(d.systemPrompt),
		core.NewUserMessage(fmt.Sprintf(
			"Analyze the following task and produce an execution plan.\n\nTask: %s\n\nReturn the plan as JSON.", task), ""),
	}

	response, err := d.streamer.Stream(ctx, messages, onThinking, onAnswer)
	if err != nil {
		slog.Warn("task analysis call failed, falling back to single-step plan", "error", err)
		response = ""
	}

	plan := TaskPlan{Summary: task, Steps: []string{task}, EstimatedActions: 5, RawResponse: response}
	if obj, err := ExtractJSON(response); err == nil && obj["type"] == "plan" {
		plan.Summary = stringOr(obj, "summary", task)
		if steps := stringSlice(obj["steps"]); len(steps) > 0 {
			plan.Steps = steps
		}
		plan.EstimatedActions = intOr(obj, "estimated_actions", 5)
	} else if err != nil {
		slog.Warn("failed to extract task plan", "error", err)
	}

	// Seed the shared history for subsequent decisions.
	d.history = []core.Message{
		core.NewSystemMessage(d.systemPrompt),
		core.NewUserMessage("Task: "+task, ""),
		core.NewAssistantMessage(response),
	}

	slog.Info("task plan ready", "summary", plan.Summary, "estimated_actions", plan.EstimatedActions)
	return plan
}

// MakeDecision asks the model for the next operation given the current
// screen description. The raw assistant reply is appended to history
// regardless of parse outcome, preserving full replay fidelity.
func (d *DecisionModel) MakeDecision(ctx context.Context, screenDescription, taskContext string, onThinking, onAnswer func(string)) (Decision, error) {
	var sb strings.Builder
	sb.WriteString("Current screen state:\n")
	sb.WriteString(screenDescription)
	if taskContext != "" {
		sb.WriteString("\n\nAdditional context: ")
		sb.WriteString(taskContext)
	}
	sb.WriteString("\n\nDecide the next operation based on the screen state. Return the decision as JSON.")

	d.history = append(d.history, core.NewUserMessage(sb.String(), ""))

	response, err := d.streamer.Stream(ctx, d.history, onThinking, onAnswer)
	if err != nil {
		return Decision{}, fmt.Errorf("decision call: %w", err)
	}

	d.history = append(d.history, core.NewAssistantMessage(response))

	obj, err := ExtractJSON(response)
	if err != nil {
		slog.Warn("failed to extract decision", "error", err)
		// Best effort: the whole reply becomes the reasoning.
		return Decision{Action: "unknown", Reasoning: response, RawResponse: response}, nil
	}

	switch obj["type"] {
	case "finish":
		return Decision{
			Action:      "finish",
			Reasoning:   stringOr(obj, "message", "Task completed"),
			Finished:    true,
			RawResponse: response,
		}, nil
	case "decision":
		return Decision{
			Action:      stringOr(obj, "action", "tap"),
			Target:      stringOr(obj, "target", ""),
			Reasoning:   stringOr(obj, "reasoning", ""),
			Content:     stringOr(obj, "content", ""),
			Finished:    boolOr(obj, "finished"),
			RawResponse: response,
		}, nil
	default:
		// Unrecognized shape: try reading it as a bare decision object.
		return Decision{
			Action:      stringOr(obj, "action", "tap"),
			Target:      stringOr(obj, "target", "unknown target"),
			Reasoning:   stringOr(obj, "reasoning", response),
			Content:     stringOr(obj, "content", ""),
			Finished:    boolOr(obj, "finished"),
			RawResponse: response,
		}, nil
	}
}

// GenerateContent produces free text to type into the device (a post, a
// reply, a message). No structured parsing; surrounding quotes and code
// fences are stripped.
func (d *DecisionModel) GenerateContent(ctx context.Context, contentType, contextInfo, requirements string, onThinking, onAnswer func(string)) (string, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Generate content for the following scenario.\n\nContent type: %s\nContext: %s\n", contentType, contextInfo)
	if requirements != "" {
		fmt.Fprintf(&sb, "Requirements: %s\n", requirements)
	}
	sb.WriteString("\nReturn only the content text, no JSON, no explanations.")

	messages := []core.Message{
		core.NewSystemMessage("You are a content writing assistant. Return only the requested content, without explanations or formatting markers."),
		core.NewUserMessage(sb.String(), ""),
	}

	content, err := d.streamer.Stream(ctx, messages, onThinking, onAnswer)
	if err != nil {
		return "", fmt.Errorf("content generation: %w", err)
	}

	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, `"`) && strings.HasSuffix(content, `"`) && len(content) >= 2 {
		content = content[1 : len(content)-1]
	}
	if strings.HasPrefix(content, "```") && strings.HasSuffix(content, "```") {
		lines := strings.Split(content, "\n")
		if len(lines) >= 2 {
			content = strings.Join(lines[1:len(lines)-1], "\n")
		}
	}
	return content, nil
}

// History returns a copy of the shared conversation history.
func (d *DecisionModel) History() []core.Message {
	out := make([]core.Message, len(d.history))
	copy(out, d.history)
	return out
}

// Reset clears the shared history only; any vision-agent state is
// untouched, the two loops are intentionally decoupled.
func (d *DecisionModel) Reset() {
	d.history = nil
	slog.Info("decision model history reset")
}

func stringOr(m map[string]any, key, def string) string {
	if v, ok := m[key].(string); ok && v != "" {
		return v
	}
	return def
}

func boolOr(m map[string]any, key string) bool {
	v, _ := m[key].(bool)
	return v
}

func intOr(m map[string]any, key string, def int) int {
	switch v := m[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return def
}

func stringSlice(v any) []string {
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, item := range arr {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
