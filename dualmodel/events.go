package dualmodel

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// ModelRole identifies which model produced an event.
type ModelRole string

const (
	RoleDecision ModelRole = "decision"
	RoleVision   ModelRole = "vision"
)

// EventType distinguishes the kinds of orchestration progress events.
type EventType string

const (
	EventDecisionStart     EventType = "decision_start"
	EventDecisionThinking  EventType = "decision_thinking"
	EventDecisionResult    EventType = "decision_result"
	EventContentGeneration EventType = "content_generation"
	EventTaskPlan          EventType = "task_plan"

	EventVisionStart       EventType = "vision_start"
	EventVisionRecognition EventType = "vision_recognition"
	EventActionStart       EventType = "action_start"
	EventActionResult      EventType = "action_result"

	EventStepComplete EventType = "step_complete"
	EventTaskComplete EventType = "task_complete"
	EventError        EventType = "error"
	EventAborted      EventType = "aborted"
)

// Event is one machine-readable progress notification. Events are
// immutable after emission and sequentially numbered by step.
type Event struct {
	Type      EventType      `json:"type"`
	Data      map[string]any `json:"data"`
	Model     ModelRole      `json:"model,omitempty"`
	Step      int            `json:"step"`
	Timestamp time.Time      `json:"timestamp"`
}

// SSE renders the event as a server-sent-event record: a type tag line, a
// JSON data line, and a blank-line terminator.
func (e Event) SSE() string {
	payload := map[string]any{
		"type":      string(e.Type),
		"step":      e.Step,
		"timestamp": e.Timestamp.Unix(),
	}
	if e.Model != "" {
		payload["model"] = string(e.Model)
	}
	for k, v := range e.Data {
		payload[k] = v
	}
	data, err := json.Marshal(payload)
	if err != nil {
		data = []byte(`{}`)
	}
	return fmt.Sprintf("event: %s\ndata: %s\n\n", e.Type, data)
}

// Emitter fans events out to subscribers. Slow subscribers drop events
// rather than block the orchestration loop.
type Emitter struct {
	mu   sync.Mutex
	subs map[chan Event]struct{}
}

func NewEmitter() *Emitter {
	return &Emitter{subs: make(map[chan Event]struct{})}
}

// Subscribe returns a live event channel and a cancel function.
func (em *Emitter) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 64)
	em.mu.Lock()
	em.subs[ch] = struct{}{}
	em.mu.Unlock()

	cancel := func() {
		em.mu.Lock()
		if _, ok := em.subs[ch]; ok {
			delete(em.subs, ch)
			close(ch)
		}
		em.mu.Unlock()
	}
	return ch, cancel
}

// Emit publishes an event to all current subscribers.
func (em *Emitter) Emit(typ EventType, model ModelRole, step int, data map[string]any) {
	if data == nil {
		data = map[string]any{}
	}
	ev := Event{
		Type:      typ,
		Data:      data,
		Model:     model,
		Step:      step,
		Timestamp: time.Now(),
	}

	em.mu.Lock()
	defer em.mu.Unlock()
	for ch := range em.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
