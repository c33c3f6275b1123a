package dualmodel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drainEvents(ch <-chan Event) []Event {
	var out []Event
	for {
		select {
		case ev := <-ch:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func eventTypes(events []Event) []EventType {
	out := make([]EventType, len(events))
	for i, ev := range events {
		out[i] = ev.Type
	}
	return out
}

func TestOrchestratorAnalyzeEmitsPlan(t *testing.T) {
	streamer := &fakeStreamer{answers: []string{
		`{"type": "plan", "summary": "order food", "steps": ["open app", "order"], "estimated_actions": 4}`,
	}}
	o := NewOrchestrator(streamer, ModeDeep, nil)
	ch, cancel := o.Events().Subscribe()
	defer cancel()

	plan := o.AnalyzeTask(context.Background(), "order dinner")
	assert.Equal(t, "order food", plan.Summary)

	types := eventTypes(drainEvents(ch))
	assert.Equal(t, []EventType{EventDecisionStart, EventTaskPlan}, types)
}

func TestOrchestratorDecisionEmitsResult(t *testing.T) {
	streamer := &fakeStreamer{answers: []string{
		`{"type": "decision", "action": "tap", "target": "cart"}`,
	}}
	o := NewOrchestrator(streamer, ModeDeep, nil)
	ch, cancel := o.Events().Subscribe()
	defer cancel()

	decision, err := o.MakeDecision(context.Background(), "cart screen", "")
	require.NoError(t, err)
	assert.Equal(t, "tap", decision.Action)
	assert.Equal(t, 1, o.Step())

	events := drainEvents(ch)
	types := eventTypes(events)
	assert.Equal(t, []EventType{EventDecisionStart, EventDecisionResult}, types)
	assert.Equal(t, "tap", events[1].Data["action"])
	assert.Equal(t, 1, events[1].Step)
}

func TestOrchestratorFinishedDecisionEmitsTaskComplete(t *testing.T) {
	streamer := &fakeStreamer{answers: []string{
		`{"type": "finish", "message": "ordered"}`,
	}}
	o := NewOrchestrator(streamer, ModeDeep, nil)
	ch, cancel := o.Events().Subscribe()
	defer cancel()

	decision, err := o.MakeDecision(context.Background(), "confirmation screen", "")
	require.NoError(t, err)
	require.True(t, decision.Finished)

	types := eventTypes(drainEvents(ch))
	assert.Equal(t, []EventType{EventDecisionStart, EventDecisionResult, EventTaskComplete}, types)
}

func TestOrchestratorResetRestartsStepCounter(t *testing.T) {
	streamer := &fakeStreamer{answers: []string{`{"type": "decision", "action": "tap", "target": "x"}`}}
	o := NewOrchestrator(streamer, ModeDeep, nil)

	_, err := o.MakeDecision(context.Background(), "screen", "")
	require.NoError(t, err)
	require.Equal(t, 1, o.Step())

	o.Reset()
	assert.Equal(t, 0, o.Step())
}
